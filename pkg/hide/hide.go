// Package hide moves literal constants out of method bodies.
//
// String literals are packed into a masked byte payload and each distinct
// string gets a small accessor that decodes and caches it. Numeric
// literals are replaced by their bit-reversed value followed by a call to a
// memoizing accessor that reverses them back at run time. All of it lives
// in one synthesized type per module.
//
// A Hider runs four phases in order: Collect, Synthesize, Rewrite and
// Finalize. Calling a phase out of order returns ErrPhase.
package hide

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/names"
)

// ErrPhase is returned when a phase is run out of order.
var ErrPhase = errors.New("hide: phase out of order")

// TypePrefix starts the name of every synthesized accessor type.
const TypePrefix = "<PrivateImplementationDetails>"

// Phase is the last completed step of a Hider.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseCollected
	PhaseSynthesized
	PhaseRewritten
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseCollected:
		return "collected"
	case PhaseSynthesized:
		return "synthesized"
	case PhaseRewritten:
		return "rewritten"
	case PhaseFinalized:
		return "finalized"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Options select what is hidden and how the accessor type is named.
type Options struct {
	// Names produces the accessor type's member names. Nil uses the
	// default alphabet.
	Names names.Factory
	// Rand feeds the accessor type's identifier. Nil uses the system
	// source.
	Rand io.Reader
	// Strings and Numbers filter the methods whose literals are hidden.
	// Nil accepts every method. Constructors never have their numbers
	// hidden.
	Strings func(*module.MethodDef) bool
	Numbers func(*module.MethodDef) bool
}

// Result summarizes one module's pass.
type Result struct {
	Module string
	// Type is the synthesized accessor type, nil when nothing was hidden.
	Type     *module.TypeDef
	Strings  int
	Distinct int
	Numbers  int
	// Payload is the masked string payload as embedded in the module.
	Payload []byte
}

type kind int

const (
	kindByte kind = iota
	kindInt
	kindLong
	kindFloat
	kindDouble
	kindCount
)

var kindTypes = [kindCount]string{"Byte", "Int32", "Int64", "Single", "Double"}

// width is the bit width of the reversal applied to k.
func (k kind) width() int {
	switch k {
	case kindByte:
		return 8
	case kindInt, kindFloat:
		return 32
	}
	return 64
}

type site struct {
	body *module.Body
	ins  *module.Instruction
	kind kind
}

type span struct {
	index, start, count int
}

// Hider hides the constants of one module.
type Hider struct {
	mod   *module.Module
	opts  Options
	phase Phase
	names names.Iterator

	strs  []site
	nums  []site
	spans map[string]span
	order []string
	used  [kindCount]bool

	payload []byte
	aux     *module.TypeDef
	data    *module.FieldDef
	cache   *module.FieldDef
	dicts   [kindCount]*module.FieldDef

	decode    *module.MethodDef
	wrappers  map[string]*module.MethodDef
	reversers map[int]*module.MethodDef
	getters   [kindCount]*module.MethodDef

	result Result
}

// New returns a Hider for m.
func New(m *module.Module, opts Options) *Hider {
	it := names.Default()
	if opts.Names != nil {
		it = opts.Names()
	}
	return &Hider{
		mod:       m,
		opts:      opts,
		names:     it,
		spans:     make(map[string]span),
		wrappers:  make(map[string]*module.MethodDef),
		reversers: make(map[int]*module.MethodDef),
		result:    Result{Module: m.Name},
	}
}

// Phase returns the last completed phase.
func (h *Hider) Phase() Phase { return h.phase }

// Run performs every phase.
func (h *Hider) Run() (*Result, error) {
	for _, step := range []func() error{h.Collect, h.Synthesize, h.Rewrite, h.Finalize} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return &h.result, nil
}

func (h *Hider) expect(p Phase, op string) error {
	if h.phase != p {
		return fmt.Errorf("%s after %s: %w", op, h.phase, ErrPhase)
	}
	return nil
}

func (h *Hider) empty() bool { return len(h.strs) == 0 && len(h.nums) == 0 }

// ----------------------------------------------------------------------------
// Collect

// Collect finds every literal to hide and lays out the string payload.
func (h *Hider) Collect() error {
	if err := h.expect(PhaseNew, "collect"); err != nil {
		return err
	}
	for _, td := range h.mod.Types {
		if td.IsInterface() {
			continue
		}
		for _, md := range td.Methods {
			if !md.HasBody() {
				continue
			}
			strs := h.opts.Strings == nil || h.opts.Strings(md)
			nums := !md.IsConstructor() && (h.opts.Numbers == nil || h.opts.Numbers(md))
			for _, ins := range md.Body.Instructions {
				if ins.Op == module.OpLdstr {
					if strs {
						h.strs = append(h.strs, site{body: md.Body, ins: ins})
					}
					continue
				}
				if !nums {
					continue
				}
				if k, ok := numericKind(ins.Op); ok {
					h.nums = append(h.nums, site{body: md.Body, ins: ins, kind: k})
					h.used[k] = true
				}
			}
		}
	}

	for _, s := range h.strs {
		str := s.ins.Operand.(string)
		if _, ok := h.spans[str]; ok {
			continue
		}
		h.spans[str] = span{index: len(h.order), start: len(h.payload), count: len(str)}
		h.order = append(h.order, str)
		h.payload = append(h.payload, str...)
	}
	h.phase = PhaseCollected
	return nil
}

func numericKind(op module.OpCode) (kind, bool) {
	if _, ok := op.SmallInt(); ok {
		return kindByte, true
	}
	switch op {
	case module.OpLdcI4S:
		return kindByte, true
	case module.OpLdcI4:
		return kindInt, true
	case module.OpLdcI8:
		return kindLong, true
	case module.OpLdcR4:
		return kindFloat, true
	case module.OpLdcR8:
		return kindDouble, true
	}
	return 0, false
}

// ----------------------------------------------------------------------------
// Synthesize

// Synthesize declares the accessor type with its fields and methods. The
// type is appended to the module by Finalize.
func (h *Hider) Synthesize() error {
	if err := h.expect(PhaseCollected, "synthesize"); err != nil {
		return err
	}
	if h.empty() {
		h.phase = PhaseSynthesized
		return nil
	}
	id, err := h.newID()
	if err != nil {
		return fmt.Errorf("synthesize %s: %w", h.mod.Name, err)
	}
	h.aux = module.NewType("", TypePrefix+"{"+strings.ToUpper(id.String())+"}",
		module.TypeSealed|module.TypeAbstract|module.TypeBeforeFieldInit)
	h.aux.BaseType = h.core("System", "Object")

	const static = module.FieldPrivate | module.FieldStatic
	if len(h.order) > 0 {
		h.data = h.aux.AddField(h.names.Next(), module.ArrayOf(h.core("System", "Byte")), static)
		h.cache = h.aux.AddField(h.names.Next(), module.ArrayOf(h.core("System", "String")), static)
	}
	for k := kind(0); k < kindCount; k++ {
		if h.used[k] {
			h.dicts[k] = h.aux.AddField(h.names.Next(), h.dictOf(k), static)
		}
	}

	if len(h.order) > 0 {
		h.decode = h.synthDecode()
		for _, str := range h.order {
			h.wrappers[str] = h.synthWrapper(h.spans[str])
		}
	}
	for k := kind(0); k < kindCount; k++ {
		if h.used[k] {
			h.getters[k] = h.synthGetter(k)
		}
	}
	h.phase = PhaseSynthesized
	return nil
}

func (h *Hider) newID() (uuid.UUID, error) {
	if h.opts.Rand == nil {
		return uuid.New(), nil
	}
	return uuid.NewRandomFromReader(h.opts.Rand)
}

// ----------------------------------------------------------------------------
// Rewrite

// Rewrite points every collected site at its accessor.
func (h *Hider) Rewrite() error {
	if err := h.expect(PhaseSynthesized, "rewrite"); err != nil {
		return err
	}
	for _, s := range h.strs {
		w := h.wrappers[s.ins.Operand.(string)]
		if err := s.body.Replace(s.ins, module.NewInstruction(module.OpCall, h.ref(w))); err != nil {
			return fmt.Errorf("rewrite %s: %w", h.mod.Name, err)
		}
	}
	for _, s := range h.nums {
		if err := h.rewriteNumber(s); err != nil {
			return fmt.Errorf("rewrite %s: %w", h.mod.Name, err)
		}
	}
	h.result.Strings = len(h.strs)
	h.result.Distinct = len(h.order)
	h.result.Numbers = len(h.nums)
	h.phase = PhaseRewritten
	return nil
}

// rewriteNumber loads the reversed constant in place of the original and
// calls the kind's accessor right after it. The instruction object is
// kept so branches into it stay valid.
func (h *Hider) rewriteNumber(s site) error {
	ins := s.ins
	call := module.NewInstruction(module.OpCall, h.ref(h.getters[s.kind]))
	switch s.kind {
	case kindByte:
		v, ok := ins.Op.SmallInt()
		if !ok {
			v = int32(ins.Operand.(int8))
		}
		ins.Op = module.OpLdcI4S
		ins.Operand = int8(ReverseByte(uint8(int8(v))))
		// The accessor returns an unsigned byte; conv.i1 restores the sign.
		return s.body.InsertAfter(ins, call, module.NewInstruction(module.OpConvI1, nil))
	case kindInt:
		ins.Operand = ReverseInt32(ins.Operand.(int32))
	case kindLong:
		ins.Operand = ReverseInt64(ins.Operand.(int64))
	case kindFloat:
		ins.Operand = ReverseFloat32(ins.Operand.(float32))
	case kindDouble:
		ins.Operand = ReverseFloat64(ins.Operand.(float64))
	}
	return s.body.InsertAfter(ins, call)
}

// ----------------------------------------------------------------------------
// Finalize

// Finalize masks the payload, emits the type initializer and appends the
// accessor type to the module.
func (h *Hider) Finalize() error {
	if err := h.expect(PhaseRewritten, "finalize"); err != nil {
		return err
	}
	if h.aux == nil {
		h.phase = PhaseFinalized
		return nil
	}
	masked := append([]byte(nil), h.payload...)
	Mask(masked)

	var blob *module.FieldDef
	if h.data != nil {
		blob = h.aux.AddField(h.names.Next(), module.ArrayOf(h.core("System", "Byte")),
			module.FieldPrivate|module.FieldStatic|module.FieldHasRVA)
		blob.InitialValue = masked
	}
	h.synthInitializer(blob)
	h.mod.AddType(h.aux)

	h.result.Type = h.aux
	h.result.Payload = masked
	h.phase = PhaseFinalized
	return nil
}
