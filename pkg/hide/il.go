package hide

import (
	"github.com/odvcencio/shroud/pkg/module"
)

func op(code module.OpCode, operand any) *module.Instruction {
	return module.NewInstruction(code, operand)
}

// ----------------------------------------------------------------------------
// References

func (h *Hider) core(namespace, name string) *module.TypeRef {
	return h.mod.Core(namespace, name)
}

func (h *Hider) self() *module.TypeRef {
	return module.NamedRef(h.mod.Name, h.aux.Namespace, h.aux.Name)
}

// ref returns a call reference to a method of the accessor type.
func (h *Hider) ref(md *module.MethodDef) *module.MethodRef {
	params := make([]*module.TypeRef, len(md.Params))
	for i, p := range md.Params {
		params[i] = p.Clone()
	}
	return &module.MethodRef{
		DeclaringType: h.self(),
		Name:          md.Name,
		HasThis:       !md.IsStatic(),
		ReturnType:    md.ReturnType.Clone(),
		Params:        params,
	}
}

func (h *Hider) field(fd *module.FieldDef) *module.FieldRef {
	return &module.FieldRef{DeclaringType: h.self(), Name: fd.Name, FieldType: fd.Type.Clone()}
}

func (h *Hider) numType(k kind) *module.TypeRef {
	return h.core("System", kindTypes[k])
}

func (h *Hider) dictOf(k kind) *module.TypeRef {
	return module.Instance(h.core("System.Collections.Generic", "Dictionary`2"), h.numType(k), h.numType(k))
}

// dictMethod references an instance method of Dictionary<K,K>.
func (h *Hider) dictMethod(k kind, name string, ret *module.TypeRef, params ...*module.TypeRef) *module.MethodRef {
	if ret == nil {
		ret = h.core("System", "Void")
	}
	return &module.MethodRef{DeclaringType: h.dictOf(k), Name: name, HasThis: true, ReturnType: ret, Params: params}
}

// coreCall references a method of a core library type.
func (h *Hider) coreCall(namespace, typ, name string, instance bool, ret *module.TypeRef, params ...*module.TypeRef) *module.MethodRef {
	return &module.MethodRef{DeclaringType: h.core(namespace, typ), Name: name, HasThis: instance, ReturnType: ret, Params: params}
}

func (h *Hider) bitConverter(name string, ret *module.TypeRef, params ...*module.TypeRef) *module.MethodRef {
	return h.coreCall("System", "BitConverter", name, false, ret, params...)
}

func (h *Hider) bytes() *module.TypeRef { return module.ArrayOf(h.core("System", "Byte")) }
func (h *Hider) i32() *module.TypeRef   { return h.core("System", "Int32") }

// ----------------------------------------------------------------------------
// Strings

// synthDecode declares
//
//	static string decode(int index, int start, int count)
//
// which decodes payload[start:start+count] as UTF-8 and caches the result
// at cache[index].
func (h *Hider) synthDecode() *module.MethodDef {
	md := h.aux.AddMethod(h.names.Next(), module.MethodPrivate|module.MethodStatic|module.MethodHideBySig,
		h.core("System", "String"), h.i32(), h.i32(), h.i32())
	md.Body.Locals = []*module.TypeRef{h.core("System", "String")}
	encoding := h.core("System.Text", "Encoding")
	md.Body.Emit(
		op(module.OpCall, h.coreCall("System.Text", "Encoding", "get_UTF8", false, encoding)),
		op(module.OpLdsfld, h.field(h.data)),
		op(module.OpLdarg1, nil),
		op(module.OpLdarg2, nil),
		op(module.OpCallvirt, h.coreCall("System.Text", "Encoding", "GetString", true,
			h.core("System", "String"), h.bytes(), h.i32(), h.i32())),
		op(module.OpStloc0, nil),
		op(module.OpLdsfld, h.field(h.cache)),
		op(module.OpLdarg0, nil),
		op(module.OpLdloc0, nil),
		op(module.OpStelemRef, nil),
		op(module.OpLdloc0, nil),
		op(module.OpRet, nil),
	)
	return md
}

// synthWrapper declares the parameterless accessor of one distinct string.
func (h *Hider) synthWrapper(sp span) *module.MethodDef {
	md := h.aux.AddMethod(h.names.Next(), module.MethodPublic|module.MethodStatic|module.MethodHideBySig,
		h.core("System", "String"))
	end := op(module.OpRet, nil)
	md.Body.Emit(
		op(module.OpLdsfld, h.field(h.cache)),
		op(module.OpLdcI4, int32(sp.index)),
		op(module.OpLdelemRef, nil),
		op(module.OpDup, nil),
		op(module.OpBrtrue, end),
		op(module.OpPop, nil),
		op(module.OpLdcI4, int32(sp.index)),
		op(module.OpLdcI4, int32(sp.start)),
		op(module.OpLdcI4, int32(sp.count)),
		op(module.OpCall, h.ref(h.decode)),
		end,
	)
	return md
}

// ----------------------------------------------------------------------------
// Numbers

// reverser returns the bit reversal method for width, declaring it on
// first use.
func (h *Hider) reverser(width int) *module.MethodDef {
	if md, ok := h.reversers[width]; ok {
		return md
	}
	var signed, unsigned string
	switch width {
	case 8:
		signed, unsigned = "Byte", "Byte"
	case 32:
		signed, unsigned = "Int32", "UInt32"
	default:
		signed, unsigned = "Int64", "UInt64"
	}
	md := h.aux.AddMethod(h.names.Next(), module.MethodPrivate|module.MethodStatic|module.MethodHideBySig,
		h.core("System", signed), h.core("System", signed))
	md.Body.Locals = []*module.TypeRef{h.core("System", unsigned), h.core("System", unsigned), h.i32()}

	// v = ~d; r = v; s = width-1
	// for v >>= 1; v != 0; v >>= 1 { r = r<<1 | v&1; s-- }
	// return r << s
	loop := op(module.OpLdloc1, nil)
	check := op(module.OpLdloc0, nil)
	b := md.Body
	b.Emit(
		op(module.OpLdarg0, nil),
		op(module.OpNot, nil),
		op(module.OpStloc0, nil),
		op(module.OpLdloc0, nil),
		op(module.OpStloc1, nil),
		op(module.OpLdcI4S, int8(width-1)),
		op(module.OpStloc2, nil),
		op(module.OpLdloc0, nil),
		op(module.OpLdcI4_1, nil),
		op(module.OpShrUn, nil),
		op(module.OpStloc0, nil),
		op(module.OpBr, check),
		loop,
		op(module.OpLdcI4_1, nil),
		op(module.OpShl, nil),
		op(module.OpLdloc0, nil),
		op(module.OpLdcI4_1, nil),
	)
	if width == 64 {
		b.Emit(op(module.OpConvI8, nil))
	}
	b.Emit(op(module.OpAnd, nil), op(module.OpOr, nil))
	if width == 8 {
		b.Emit(op(module.OpConvU1, nil))
	}
	b.Emit(
		op(module.OpStloc1, nil),
		op(module.OpLdloc2, nil),
		op(module.OpLdcI4_1, nil),
		op(module.OpSub, nil),
		op(module.OpStloc2, nil),
		op(module.OpLdloc0, nil),
		op(module.OpLdcI4_1, nil),
		op(module.OpShrUn, nil),
		op(module.OpStloc0, nil),
		check,
		op(module.OpBrtrue, loop),
		op(module.OpLdloc1, nil),
		op(module.OpLdloc2, nil),
		op(module.OpShl, nil),
	)
	if width == 8 {
		b.Emit(op(module.OpConvU1, nil))
	}
	b.Emit(op(module.OpRet, nil))

	h.reversers[width] = md
	return md
}

// synthGetter declares the memoizing accessor of kind k:
//
//	static T get(T visible) {
//	    if dict.ContainsKey(visible) { return dict[visible] }
//	    T v = reverse(visible); dict.Add(visible, v); return v
//	}
func (h *Hider) synthGetter(k kind) *module.MethodDef {
	rev := h.reverser(k.width())
	md := h.aux.AddMethod(h.names.Next(), module.MethodPublic|module.MethodStatic|module.MethodHideBySig,
		h.numType(k), h.numType(k))
	md.Body.Locals = []*module.TypeRef{h.numType(k)}
	dict := h.dicts[k]

	miss := op(module.OpLdarg0, nil)
	md.Body.Emit(
		op(module.OpLdsfld, h.field(dict)),
		op(module.OpLdarg0, nil),
		op(module.OpCallvirt, h.dictMethod(k, "ContainsKey", h.core("System", "Boolean"), module.TypeParam(0))),
		op(module.OpBrfalse, miss),
		op(module.OpLdsfld, h.field(dict)),
		op(module.OpLdarg0, nil),
		op(module.OpCallvirt, h.dictMethod(k, "get_Item", module.TypeParam(1), module.TypeParam(0))),
		op(module.OpRet, nil),
		miss,
	)
	switch k {
	case kindFloat:
		md.Body.Emit(
			op(module.OpCall, h.bitConverter("GetBytes", h.bytes(), h.core("System", "Single"))),
			op(module.OpLdcI4_0, nil),
			op(module.OpCall, h.bitConverter("ToInt32", h.i32(), h.bytes(), h.i32())),
			op(module.OpCall, h.ref(rev)),
			op(module.OpCall, h.bitConverter("GetBytes", h.bytes(), h.i32())),
			op(module.OpLdcI4_0, nil),
			op(module.OpCall, h.bitConverter("ToSingle", h.core("System", "Single"), h.bytes(), h.i32())),
		)
	case kindDouble:
		i64 := func() *module.TypeRef { return h.core("System", "Int64") }
		f64 := func() *module.TypeRef { return h.core("System", "Double") }
		md.Body.Emit(
			op(module.OpCall, h.bitConverter("DoubleToInt64Bits", i64(), f64())),
			op(module.OpCall, h.ref(rev)),
			op(module.OpCall, h.bitConverter("Int64BitsToDouble", f64(), i64())),
		)
	default:
		md.Body.Emit(op(module.OpCall, h.ref(rev)))
	}
	md.Body.Emit(
		op(module.OpStloc0, nil),
		op(module.OpLdsfld, h.field(dict)),
		op(module.OpLdarg0, nil),
		op(module.OpLdloc0, nil),
		op(module.OpCallvirt, h.dictMethod(k, "Add", nil, module.TypeParam(0), module.TypeParam(1))),
		op(module.OpLdloc0, nil),
		op(module.OpRet, nil),
	)
	return md
}

// ----------------------------------------------------------------------------
// Initializer

// synthInitializer declares the type initializer: it allocates the memo
// dictionaries and the string cache, copies the embedded payload into the
// data array and unmasks it.
func (h *Hider) synthInitializer(blob *module.FieldDef) {
	md := h.aux.AddMethod(".cctor",
		module.MethodPrivate|module.MethodStatic|module.MethodHideBySig|module.MethodSpecialName|module.MethodRTSpecialName,
		h.core("System", "Void"))
	md.Body.Locals = []*module.TypeRef{h.i32()}
	b := md.Body

	for k := kind(0); k < kindCount; k++ {
		if h.dicts[k] == nil {
			continue
		}
		b.Emit(
			op(module.OpNewobj, h.dictMethod(k, ".ctor", nil)),
			op(module.OpStsfld, h.field(h.dicts[k])),
		)
	}

	if blob != nil {
		initArray := h.coreCall("System.Runtime.CompilerServices", "RuntimeHelpers", "InitializeArray", false,
			h.core("System", "Void"), h.core("System", "Array"), h.core("System", "RuntimeFieldHandle"))
		b.Emit(
			op(module.OpLdcI4, int32(len(h.order))),
			op(module.OpNewarr, h.core("System", "String")),
			op(module.OpStsfld, h.field(h.cache)),
			op(module.OpLdcI4, int32(len(blob.InitialValue))),
			op(module.OpNewarr, h.core("System", "Byte")),
			op(module.OpDup, nil),
			op(module.OpLdtoken, h.field(blob)),
			op(module.OpCall, initArray),
			op(module.OpStsfld, h.field(h.data)),
		)

		// for i := 0; i < data.Length; i++ { data[i] = data[i] ^ i ^ 0xAA }
		loop := op(module.OpLdsfld, h.field(h.data))
		check := op(module.OpLdloc0, nil)
		b.Emit(
			op(module.OpLdcI4_0, nil),
			op(module.OpStloc0, nil),
			op(module.OpBr, check),
			loop,
			op(module.OpLdloc0, nil),
			op(module.OpLdsfld, h.field(h.data)),
			op(module.OpLdloc0, nil),
			op(module.OpLdelemU1, nil),
			op(module.OpLdloc0, nil),
			op(module.OpXor, nil),
			op(module.OpLdcI4, int32(0xAA)),
			op(module.OpXor, nil),
			op(module.OpConvU1, nil),
			op(module.OpStelemI1, nil),
			op(module.OpLdloc0, nil),
			op(module.OpLdcI4_1, nil),
			op(module.OpAdd, nil),
			op(module.OpStloc0, nil),
			check,
			op(module.OpLdsfld, h.field(h.data)),
			op(module.OpLdlen, nil),
			op(module.OpConvI4, nil),
			op(module.OpClt, nil),
			op(module.OpBrtrue, loop),
		)
	}
	b.Emit(op(module.OpRet, nil))
}
