// Package flow hides the entry of a method body behind a switch dispatch.
//
// The scrambled body starts with a selector computation whose result picks
// exactly one arm of a switch. That arm is the original first instruction;
// the other arms and the default target are decoy blocks which rejoin the
// body if ever reached.
package flow

import (
	"math/rand/v2"

	"github.com/odvcencio/shroud/pkg/module"
)

// DefaultArms is the switch width used when Scrambler.Arms is unset.
const DefaultArms = 5

// Scrambler rewrites method bodies. It draws selectors and junk values
// from rng, so a seeded source gives reproducible output.
type Scrambler struct {
	Arms int
	rng  *rand.Rand
}

// New returns a Scrambler over rng.
func New(rng *rand.Rand) *Scrambler {
	return &Scrambler{Arms: DefaultArms, rng: rng}
}

// Eligible reports whether md can be scrambled. Constructors and methods
// without instructions are left alone.
func Eligible(md *module.MethodDef) bool {
	return md.HasBody() && !md.IsConstructor()
}

// Scramble wraps md's body and reports whether it did.
//
//	ldc.i4 sel
//	ldc.i4 off
//	sub
//	switch (arm0 .. armN-1)
//	br decoyD
//	decoy: ldc.i4 junk; pop; br first
//	first: original body
func (s *Scrambler) Scramble(md *module.MethodDef) bool {
	if !Eligible(md) {
		return false
	}
	arms := s.Arms
	if arms < 2 {
		arms = DefaultArms
	}
	body := md.Body
	first := body.Instructions[0]

	pick := s.rng.IntN(arms)
	off := s.rng.Int32N(1 << 20)
	sel := off + int32(pick)

	targets := make([]*module.Instruction, arms)
	var decoys []*module.Instruction
	for i := range targets {
		if i == pick {
			targets[i] = first
			continue
		}
		block := s.decoy(first)
		targets[i] = block[0]
		decoys = append(decoys, block...)
	}
	dflt := s.decoy(first)
	decoys = append(decoys, dflt...)

	prefix := []*module.Instruction{
		module.NewInstruction(module.OpLdcI4, sel),
		module.NewInstruction(module.OpLdcI4, off),
		module.NewInstruction(module.OpSub, nil),
		module.NewInstruction(module.OpSwitch, targets),
		module.NewInstruction(module.OpBr, dflt[0]),
	}
	body.Prepend(append(prefix, decoys...)...)
	body.MaxStack += 2
	return true
}

func (s *Scrambler) decoy(first *module.Instruction) []*module.Instruction {
	return []*module.Instruction{
		module.NewInstruction(module.OpLdcI4, s.rng.Int32()),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpBr, first),
	}
}

// Selected returns the instruction the dispatch prefix of a scrambled body
// transfers to, by evaluating the selector. It returns nil when body does
// not start with a dispatch prefix.
func Selected(body *module.Body) *module.Instruction {
	ins := body.Instructions
	if len(ins) < 4 || ins[0].Op != module.OpLdcI4 || ins[1].Op != module.OpLdcI4 ||
		ins[2].Op != module.OpSub || ins[3].Op != module.OpSwitch {
		return nil
	}
	sel, _ := ins[0].Operand.(int32)
	off, _ := ins[1].Operand.(int32)
	targets, _ := ins[3].Operand.([]*module.Instruction)
	idx := sel - off
	if idx < 0 || int(idx) >= len(targets) {
		return nil
	}
	return targets[idx]
}
