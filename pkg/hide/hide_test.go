package hide

import (
	"bytes"
	"errors"
	"math"
	"math/bits"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/odvcencio/shroud/pkg/module"
)

func TestReverseIsInvolution(t *testing.T) {
	for d := 0; d < 256; d++ {
		b := uint8(d)
		if got := ReverseByte(ReverseByte(b)); got != b {
			t.Fatalf("ReverseByte twice(%d) = %d", b, got)
		}
		if got, want := ReverseByte(b), bits.Reverse8(^b); got != want {
			t.Fatalf("ReverseByte(%d) = %d, want %d", b, got, want)
		}
	}

	rng := rand.New(rand.NewPCG(7, 11))
	ints := []int32{0, 1, -1, 42, math.MaxInt32, math.MinInt32}
	longs := []int64{0, 1, -1, 42, math.MaxInt64, math.MinInt64}
	for i := 0; i < 1000; i++ {
		ints = append(ints, rng.Int32()-rng.Int32())
		longs = append(longs, rng.Int64()-rng.Int64())
	}
	for _, d := range ints {
		if got := ReverseInt32(ReverseInt32(d)); got != d {
			t.Fatalf("ReverseInt32 twice(%d) = %d", d, got)
		}
		if got, want := uint32(ReverseInt32(d)), bits.Reverse32(^uint32(d)); got != want {
			t.Fatalf("ReverseInt32(%d) = %#x, want %#x", d, got, want)
		}
	}
	for _, d := range longs {
		if got := ReverseInt64(ReverseInt64(d)); got != d {
			t.Fatalf("ReverseInt64 twice(%d) = %d", d, got)
		}
		if got, want := uint64(ReverseInt64(d)), bits.Reverse64(^uint64(d)); got != want {
			t.Fatalf("ReverseInt64(%d) = %#x, want %#x", d, got, want)
		}
	}
}

func TestReverseFloatsPreserveBits(t *testing.T) {
	for _, f := range []float32{0, 1.5, -2.25, 3.14159, math.MaxFloat32, float32(math.Inf(-1))} {
		got := ReverseFloat32(ReverseFloat32(f))
		if math.Float32bits(got) != math.Float32bits(f) {
			t.Fatalf("ReverseFloat32 twice(%v) = %v", f, got)
		}
	}
	for _, f := range []float64{0, 1.5, -2.25, math.Pi, math.SmallestNonzeroFloat64, math.Inf(1)} {
		got := ReverseFloat64(ReverseFloat64(f))
		if math.Float64bits(got) != math.Float64bits(f) {
			t.Fatalf("ReverseFloat64 twice(%v) = %v", f, got)
		}
	}
}

func TestMaskRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("hello world ", 40))
	orig := append([]byte(nil), data...)
	Mask(data)
	if bytes.Contains(data, []byte("hello")) {
		t.Fatal("masked payload still contains plain text")
	}
	Mask(data)
	if !bytes.Equal(data, orig) {
		t.Fatal("Mask twice did not restore the payload")
	}
}

func buildStrings(t *testing.T) (*module.Module, *module.MethodDef) {
	t.Helper()
	m := module.NewModule("Greeter")
	td := m.AddType(module.NewType("Acme", "Greeter", module.TypePublic))
	td.BaseType = m.Core("System", "Object")
	md := td.AddMethod("Greet", module.MethodPublic|module.MethodStatic, m.Core("System", "Void"))
	writeLine := &module.MethodRef{
		DeclaringType: m.Core("System", "Console"),
		Name:          "WriteLine",
		ReturnType:    m.Core("System", "Void"),
		Params:        []*module.TypeRef{m.Core("System", "String")},
	}
	md.Body.Emit(
		module.NewInstruction(module.OpLdstr, "hello"),
		module.NewInstruction(module.OpCall, writeLine),
		module.NewInstruction(module.OpLdstr, "world"),
		module.NewInstruction(module.OpCall, writeLine),
		module.NewInstruction(module.OpLdstr, "hello"),
		module.NewInstruction(module.OpCall, writeLine),
		module.NewInstruction(module.OpRet, nil),
	)
	return m, md
}

func TestHideStringsDeduplicates(t *testing.T) {
	m, md := buildStrings(t)
	res, err := New(m, Options{Rand: rand.NewChaCha8([32]byte{1})}).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Strings != 3 || res.Distinct != 2 {
		t.Fatalf("strings = %d distinct = %d, want 3 and 2", res.Strings, res.Distinct)
	}

	code := md.Body.Instructions
	calls := []*module.MethodRef{}
	for _, i := range []int{0, 2, 4} {
		if code[i].Op != module.OpCall {
			t.Fatalf("instruction %d = %s, want call", i, code[i])
		}
		calls = append(calls, code[i].Operand.(*module.MethodRef))
	}
	if calls[0].Name != calls[2].Name {
		t.Fatalf("hello sites call %s and %s", calls[0].Name, calls[2].Name)
	}
	if calls[0].Name == calls[1].Name {
		t.Fatalf("hello and world share accessor %s", calls[0].Name)
	}

	plain := append([]byte(nil), res.Payload...)
	Mask(plain)
	if n := bytes.Count(plain, []byte("hello")); n != 1 {
		t.Fatalf("payload holds hello %d times, want 1", n)
	}
	if n := bytes.Count(plain, []byte("world")); n != 1 {
		t.Fatalf("payload holds world %d times, want 1", n)
	}
	if bytes.Contains(res.Payload, []byte("hello")) {
		t.Fatal("embedded payload is not masked")
	}

	// Each accessor's span decodes to its original string.
	for i, want := range []string{"hello", "world"} {
		w := findMethod(t, res.Type, calls[i].Name)
		start := int(w.Body.Instructions[7].Operand.(int32))
		count := int(w.Body.Instructions[8].Operand.(int32))
		if got := string(plain[start : start+count]); got != want {
			t.Fatalf("accessor %s decodes %q, want %q", w.Name, got, want)
		}
	}

	if m.Type(res.Type.FullName()) != res.Type {
		t.Fatal("accessor type not appended to the module")
	}
	if !strings.HasPrefix(res.Type.Name, TypePrefix) {
		t.Fatalf("accessor type name = %q", res.Type.Name)
	}
	for _, md := range res.Type.Methods {
		if err := md.Body.Validate(); err != nil {
			t.Fatalf("%s: %v", md.Name, err)
		}
	}
}

func findMethod(t *testing.T, td *module.TypeDef, name string) *module.MethodDef {
	t.Helper()
	for _, md := range td.Methods {
		if md.Name == name {
			return md
		}
	}
	t.Fatalf("method %s not found on %s", name, td.FullName())
	return nil
}

func TestHideNumbersRewritesSites(t *testing.T) {
	m := module.NewModule("Numbers")
	td := m.AddType(module.NewType("Acme", "Calc", module.TypePublic))
	md := td.AddMethod("Run", module.MethodPublic|module.MethodStatic, m.Core("System", "Void"))
	target := module.NewInstruction(module.OpLdcI4, int32(42))
	md.Body.Emit(
		module.NewInstruction(module.OpBr, target),
		target,
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpLdcI4M1, nil),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpLdcI8, int64(-5)),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpLdcR8, 2.5),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpRet, nil),
	)
	ctor := td.AddMethod(".ctor", module.MethodPublic, m.Core("System", "Void"))
	ctor.Body.Emit(
		module.NewInstruction(module.OpLdcI4, int32(7)),
		module.NewInstruction(module.OpPop, nil),
		module.NewInstruction(module.OpRet, nil),
	)

	res, err := New(m, Options{}).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Numbers != 4 {
		t.Fatalf("numbers = %d, want 4", res.Numbers)
	}
	if ctor.Body.Instructions[0].Operand != int32(7) {
		t.Fatal("constructor constant was rewritten")
	}

	code := md.Body.Instructions
	if code[0].Operand != target || code[1] != target {
		t.Fatal("branch into rewritten constant lost its target")
	}
	if got := ReverseInt32(target.Operand.(int32)); got != 42 {
		t.Fatalf("visible int reverses to %d, want 42", got)
	}
	if code[2].Op != module.OpCall {
		t.Fatalf("after int constant: %s, want call", code[2])
	}

	narrow := code[4]
	if narrow.Op != module.OpLdcI4S {
		t.Fatalf("narrow constant op = %s, want ldc.i4.s", narrow.Op)
	}
	if got := int8(ReverseByte(uint8(narrow.Operand.(int8)))); got != -1 {
		t.Fatalf("visible byte reverses to %d, want -1", got)
	}
	if code[5].Op != module.OpCall || code[6].Op != module.OpConvI1 {
		t.Fatalf("narrow constant followed by %s, %s", code[5], code[6])
	}

	for _, ins := range code {
		switch v := ins.Operand.(type) {
		case int64:
			if ReverseInt64(v) != -5 {
				t.Fatalf("visible long reverses to %d", ReverseInt64(v))
			}
		case float64:
			if ReverseFloat64(v) != 2.5 {
				t.Fatalf("visible double reverses to %v", ReverseFloat64(v))
			}
		}
	}
	if err := md.Body.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestHideFilters(t *testing.T) {
	m, md := buildStrings(t)
	res, err := New(m, Options{Strings: func(*module.MethodDef) bool { return false }}).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Type != nil || res.Strings != 0 {
		t.Fatalf("filtered pass still hid %d strings", res.Strings)
	}
	if md.Body.Instructions[0].Op != module.OpLdstr {
		t.Fatal("filtered method was rewritten")
	}
	if len(m.Types) != 1 {
		t.Fatalf("types = %d, want no accessor type", len(m.Types))
	}
}

func TestPhaseOrder(t *testing.T) {
	m, _ := buildStrings(t)
	h := New(m, Options{})
	if err := h.Rewrite(); !errors.Is(err, ErrPhase) {
		t.Fatalf("Rewrite before Collect: %v, want ErrPhase", err)
	}
	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if err := h.Collect(); !errors.Is(err, ErrPhase) {
		t.Fatalf("second Collect: %v, want ErrPhase", err)
	}
	if h.Phase() != PhaseCollected {
		t.Fatalf("phase = %s", h.Phase())
	}
}

func TestHiddenModuleSurvivesImageRoundTrip(t *testing.T) {
	m, _ := buildStrings(t)
	td := m.Types[0]
	md := td.AddMethod("Ratio", module.MethodPublic|module.MethodStatic, m.Core("System", "Single"))
	md.Body.Emit(
		module.NewInstruction(module.OpLdcR4, float32(0.75)),
		module.NewInstruction(module.OpRet, nil),
	)
	if _, err := New(m, Options{}).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	visible := md.Body.Instructions[0].Operand.(float32)

	data, err := module.Marshal(m, true)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := module.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got := back.Type("Acme.Greeter").Methods[1].Body.Instructions[0].Operand.(float32)
	if math.Float32bits(got) != math.Float32bits(visible) {
		t.Fatalf("float operand bits %#x, want %#x", math.Float32bits(got), math.Float32bits(visible))
	}
	if ReverseFloat32(got) != 0.75 {
		t.Fatalf("decoded float = %v", ReverseFloat32(got))
	}
}
