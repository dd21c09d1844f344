package module

import "fmt"

// Instruction is one IL instruction. Branch operands point at other
// instructions of the same body.
type Instruction struct {
	Op      OpCode
	Operand any
}

// NewInstruction returns op with operand.
func NewInstruction(op OpCode, operand any) *Instruction {
	return &Instruction{Op: op, Operand: operand}
}

func (ins *Instruction) String() string {
	switch v := ins.Operand.(type) {
	case nil:
		return ins.Op.String()
	case string:
		return fmt.Sprintf("%s %q", ins.Op, v)
	case *Instruction:
		return ins.Op.String() + " <label>"
	case []*Instruction:
		return fmt.Sprintf("%s (%d targets)", ins.Op, len(v))
	default:
		return fmt.Sprintf("%s %v", ins.Op, v)
	}
}

// Body is the executable part of a method.
type Body struct {
	InitLocals   bool
	MaxStack     int
	Locals       []*TypeRef
	Instructions []*Instruction
}

// Emit appends instructions and returns the first one.
func (b *Body) Emit(ins ...*Instruction) *Instruction {
	b.Instructions = append(b.Instructions, ins...)
	if len(ins) == 0 {
		return nil
	}
	return ins[0]
}

// Index returns the position of ins, or -1.
func (b *Body) Index(ins *Instruction) int {
	for i, cur := range b.Instructions {
		if cur == ins {
			return i
		}
	}
	return -1
}

// InsertAfter places ins directly behind at. Branches keep their targets.
func (b *Body) InsertAfter(at *Instruction, ins ...*Instruction) error {
	i := b.Index(at)
	if i < 0 {
		return fmt.Errorf("insert after: instruction %s not in body", at)
	}
	b.splice(i+1, ins)
	return nil
}

// Replace swaps old for ins in place and retargets every branch that
// pointed at old.
func (b *Body) Replace(old, ins *Instruction) error {
	i := b.Index(old)
	if i < 0 {
		return fmt.Errorf("replace: instruction %s not in body", old)
	}
	b.Instructions[i] = ins
	for _, cur := range b.Instructions {
		switch t := cur.Operand.(type) {
		case *Instruction:
			if t == old {
				cur.Operand = ins
			}
		case []*Instruction:
			for j := range t {
				if t[j] == old {
					t[j] = ins
				}
			}
		}
	}
	return nil
}

// Prepend places ins in front of the first instruction.
func (b *Body) Prepend(ins ...*Instruction) {
	b.splice(0, ins)
}

func (b *Body) splice(at int, ins []*Instruction) {
	out := make([]*Instruction, 0, len(b.Instructions)+len(ins))
	out = append(out, b.Instructions[:at]...)
	out = append(out, ins...)
	out = append(out, b.Instructions[at:]...)
	b.Instructions = out
}

// ExpandShortBranches rewrites every short branch to its long form so
// instructions can be inserted without overflowing one-byte offsets.
func (b *Body) ExpandShortBranches() int {
	n := 0
	for _, ins := range b.Instructions {
		if ins.Op.Operand() != OperandShortBranch {
			continue
		}
		ins.Op = ins.Op.LongForm()
		n++
	}
	return n
}

// Validate checks that operands have the type their opcode expects and
// that branch targets live in this body.
func (b *Body) Validate() error {
	in := make(map[*Instruction]bool, len(b.Instructions))
	for _, ins := range b.Instructions {
		in[ins] = true
	}
	for i, ins := range b.Instructions {
		ok := true
		switch ins.Op.Operand() {
		case OperandNone:
			ok = ins.Operand == nil
		case OperandInt8:
			_, ok = ins.Operand.(int8)
		case OperandInt32:
			_, ok = ins.Operand.(int32)
		case OperandInt64:
			_, ok = ins.Operand.(int64)
		case OperandFloat32:
			_, ok = ins.Operand.(float32)
		case OperandFloat64:
			_, ok = ins.Operand.(float64)
		case OperandString:
			_, ok = ins.Operand.(string)
		case OperandType:
			_, ok = ins.Operand.(*TypeRef)
		case OperandMethod:
			_, ok = ins.Operand.(*MethodRef)
		case OperandField:
			_, ok = ins.Operand.(*FieldRef)
		case OperandToken:
			switch ins.Operand.(type) {
			case *TypeRef, *MethodRef, *FieldRef:
			default:
				ok = false
			}
		case OperandShortBranch, OperandBranch:
			var t *Instruction
			t, ok = ins.Operand.(*Instruction)
			ok = ok && in[t]
		case OperandSwitch:
			var ts []*Instruction
			ts, ok = ins.Operand.([]*Instruction)
			for _, t := range ts {
				ok = ok && in[t]
			}
		case OperandLocal, OperandArg:
			_, ok = ins.Operand.(int)
		}
		if !ok {
			return fmt.Errorf("instruction %d (%s): bad operand %T", i, ins.Op, ins.Operand)
		}
	}
	return nil
}
