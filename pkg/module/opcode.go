package module

import "fmt"

// OperandKind describes what an instruction's operand holds.
type OperandKind uint8

const (
	OperandNone        OperandKind = iota
	OperandInt8                    // int8
	OperandInt32                   // int32
	OperandInt64                   // int64
	OperandFloat32                 // float32
	OperandFloat64                 // float64
	OperandString                  // string
	OperandType                    // *TypeRef
	OperandMethod                  // *MethodRef
	OperandField                   // *FieldRef
	OperandToken                   // *TypeRef, *MethodRef or *FieldRef
	OperandShortBranch             // *Instruction
	OperandBranch                  // *Instruction
	OperandSwitch                  // []*Instruction
	OperandLocal                   // int
	OperandArg                     // int
)

// OpCode identifies an instruction.
type OpCode uint8

const (
	OpNop OpCode = iota
	OpLdarg
	OpLdarg0
	OpLdarg1
	OpLdarg2
	OpLdarg3
	OpStarg
	OpLdloc
	OpLdloc0
	OpLdloc1
	OpLdloc2
	OpLdloc3
	OpLdloca
	OpStloc
	OpStloc0
	OpStloc1
	OpStloc2
	OpStloc3
	OpLdnull
	OpLdcI4M1
	OpLdcI4_0
	OpLdcI4_1
	OpLdcI4_2
	OpLdcI4_3
	OpLdcI4_4
	OpLdcI4_5
	OpLdcI4_6
	OpLdcI4_7
	OpLdcI4_8
	OpLdcI4S
	OpLdcI4
	OpLdcI8
	OpLdcR4
	OpLdcR8
	OpLdstr
	OpDup
	OpPop
	OpCall
	OpCallvirt
	OpRet
	OpNewobj
	OpLdfld
	OpStfld
	OpLdflda
	OpLdsfld
	OpStsfld
	OpLdsflda
	OpLdtoken
	OpLdftn
	OpLdvirtftn
	OpBox
	OpUnboxAny
	OpCastclass
	OpIsinst
	OpNewarr
	OpLdlen
	OpLdelemU1
	OpLdelemI4
	OpLdelemRef
	OpStelemI1
	OpStelemI4
	OpStelemRef
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpShrUn
	OpNot
	OpNeg
	OpConvI1
	OpConvU1
	OpConvI4
	OpConvU4
	OpConvI8
	OpConvR4
	OpConvR8
	OpCeq
	OpCgt
	OpClt
	OpThrow
	OpBrS
	OpBrfalseS
	OpBrtrueS
	OpBeqS
	OpBgeS
	OpBgtS
	OpBleS
	OpBltS
	OpBneUnS
	OpBgeUnS
	OpBgtUnS
	OpBleUnS
	OpBltUnS
	OpLeaveS
	OpBr
	OpBrfalse
	OpBrtrue
	OpBeq
	OpBge
	OpBgt
	OpBle
	OpBlt
	OpBneUn
	OpBgeUn
	OpBgtUn
	OpBleUn
	OpBltUn
	OpLeave
	OpSwitch

	opCount
)

type opInfo struct {
	name    string
	operand OperandKind
}

var opTable = [opCount]opInfo{
	OpNop:       {"nop", OperandNone},
	OpLdarg:     {"ldarg", OperandArg},
	OpLdarg0:    {"ldarg.0", OperandNone},
	OpLdarg1:    {"ldarg.1", OperandNone},
	OpLdarg2:    {"ldarg.2", OperandNone},
	OpLdarg3:    {"ldarg.3", OperandNone},
	OpStarg:     {"starg", OperandArg},
	OpLdloc:     {"ldloc", OperandLocal},
	OpLdloc0:    {"ldloc.0", OperandNone},
	OpLdloc1:    {"ldloc.1", OperandNone},
	OpLdloc2:    {"ldloc.2", OperandNone},
	OpLdloc3:    {"ldloc.3", OperandNone},
	OpLdloca:    {"ldloca", OperandLocal},
	OpStloc:     {"stloc", OperandLocal},
	OpStloc0:    {"stloc.0", OperandNone},
	OpStloc1:    {"stloc.1", OperandNone},
	OpStloc2:    {"stloc.2", OperandNone},
	OpStloc3:    {"stloc.3", OperandNone},
	OpLdnull:    {"ldnull", OperandNone},
	OpLdcI4M1:   {"ldc.i4.m1", OperandNone},
	OpLdcI4_0:   {"ldc.i4.0", OperandNone},
	OpLdcI4_1:   {"ldc.i4.1", OperandNone},
	OpLdcI4_2:   {"ldc.i4.2", OperandNone},
	OpLdcI4_3:   {"ldc.i4.3", OperandNone},
	OpLdcI4_4:   {"ldc.i4.4", OperandNone},
	OpLdcI4_5:   {"ldc.i4.5", OperandNone},
	OpLdcI4_6:   {"ldc.i4.6", OperandNone},
	OpLdcI4_7:   {"ldc.i4.7", OperandNone},
	OpLdcI4_8:   {"ldc.i4.8", OperandNone},
	OpLdcI4S:    {"ldc.i4.s", OperandInt8},
	OpLdcI4:     {"ldc.i4", OperandInt32},
	OpLdcI8:     {"ldc.i8", OperandInt64},
	OpLdcR4:     {"ldc.r4", OperandFloat32},
	OpLdcR8:     {"ldc.r8", OperandFloat64},
	OpLdstr:     {"ldstr", OperandString},
	OpDup:       {"dup", OperandNone},
	OpPop:       {"pop", OperandNone},
	OpCall:      {"call", OperandMethod},
	OpCallvirt:  {"callvirt", OperandMethod},
	OpRet:       {"ret", OperandNone},
	OpNewobj:    {"newobj", OperandMethod},
	OpLdfld:     {"ldfld", OperandField},
	OpStfld:     {"stfld", OperandField},
	OpLdflda:    {"ldflda", OperandField},
	OpLdsfld:    {"ldsfld", OperandField},
	OpStsfld:    {"stsfld", OperandField},
	OpLdsflda:   {"ldsflda", OperandField},
	OpLdtoken:   {"ldtoken", OperandToken},
	OpLdftn:     {"ldftn", OperandMethod},
	OpLdvirtftn: {"ldvirtftn", OperandMethod},
	OpBox:       {"box", OperandType},
	OpUnboxAny:  {"unbox.any", OperandType},
	OpCastclass: {"castclass", OperandType},
	OpIsinst:    {"isinst", OperandType},
	OpNewarr:    {"newarr", OperandType},
	OpLdlen:     {"ldlen", OperandNone},
	OpLdelemU1:  {"ldelem.u1", OperandNone},
	OpLdelemI4:  {"ldelem.i4", OperandNone},
	OpLdelemRef: {"ldelem.ref", OperandNone},
	OpStelemI1:  {"stelem.i1", OperandNone},
	OpStelemI4:  {"stelem.i4", OperandNone},
	OpStelemRef: {"stelem.ref", OperandNone},
	OpAdd:       {"add", OperandNone},
	OpSub:       {"sub", OperandNone},
	OpMul:       {"mul", OperandNone},
	OpDiv:       {"div", OperandNone},
	OpRem:       {"rem", OperandNone},
	OpAnd:       {"and", OperandNone},
	OpOr:        {"or", OperandNone},
	OpXor:       {"xor", OperandNone},
	OpShl:       {"shl", OperandNone},
	OpShr:       {"shr", OperandNone},
	OpShrUn:     {"shr.un", OperandNone},
	OpNot:       {"not", OperandNone},
	OpNeg:       {"neg", OperandNone},
	OpConvI1:    {"conv.i1", OperandNone},
	OpConvU1:    {"conv.u1", OperandNone},
	OpConvI4:    {"conv.i4", OperandNone},
	OpConvU4:    {"conv.u4", OperandNone},
	OpConvI8:    {"conv.i8", OperandNone},
	OpConvR4:    {"conv.r4", OperandNone},
	OpConvR8:    {"conv.r8", OperandNone},
	OpCeq:       {"ceq", OperandNone},
	OpCgt:       {"cgt", OperandNone},
	OpClt:       {"clt", OperandNone},
	OpThrow:     {"throw", OperandNone},
	OpBrS:       {"br.s", OperandShortBranch},
	OpBrfalseS:  {"brfalse.s", OperandShortBranch},
	OpBrtrueS:   {"brtrue.s", OperandShortBranch},
	OpBeqS:      {"beq.s", OperandShortBranch},
	OpBgeS:      {"bge.s", OperandShortBranch},
	OpBgtS:      {"bgt.s", OperandShortBranch},
	OpBleS:      {"ble.s", OperandShortBranch},
	OpBltS:      {"blt.s", OperandShortBranch},
	OpBneUnS:    {"bne.un.s", OperandShortBranch},
	OpBgeUnS:    {"bge.un.s", OperandShortBranch},
	OpBgtUnS:    {"bgt.un.s", OperandShortBranch},
	OpBleUnS:    {"ble.un.s", OperandShortBranch},
	OpBltUnS:    {"blt.un.s", OperandShortBranch},
	OpLeaveS:    {"leave.s", OperandShortBranch},
	OpBr:        {"br", OperandBranch},
	OpBrfalse:   {"brfalse", OperandBranch},
	OpBrtrue:    {"brtrue", OperandBranch},
	OpBeq:       {"beq", OperandBranch},
	OpBge:       {"bge", OperandBranch},
	OpBgt:       {"bgt", OperandBranch},
	OpBle:       {"ble", OperandBranch},
	OpBlt:       {"blt", OperandBranch},
	OpBneUn:     {"bne.un", OperandBranch},
	OpBgeUn:     {"bge.un", OperandBranch},
	OpBgtUn:     {"bgt.un", OperandBranch},
	OpBleUn:     {"ble.un", OperandBranch},
	OpBltUn:     {"blt.un", OperandBranch},
	OpLeave:     {"leave", OperandBranch},
	OpSwitch:    {"switch", OperandSwitch},
}

// longForm maps each short branch to its long encoding.
var longForm = map[OpCode]OpCode{
	OpBrS:      OpBr,
	OpBrfalseS: OpBrfalse,
	OpBrtrueS:  OpBrtrue,
	OpBeqS:     OpBeq,
	OpBgeS:     OpBge,
	OpBgtS:     OpBgt,
	OpBleS:     OpBle,
	OpBltS:     OpBlt,
	OpBneUnS:   OpBneUn,
	OpBgeUnS:   OpBgeUn,
	OpBgtUnS:   OpBgtUn,
	OpBleUnS:   OpBleUn,
	OpBltUnS:   OpBltUn,
	OpLeaveS:   OpLeave,
}

var opByName = func() map[string]OpCode {
	m := make(map[string]OpCode, opCount)
	for op := OpCode(0); op < opCount; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

func (op OpCode) String() string {
	if op < opCount {
		return opTable[op].name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Operand returns the operand kind of op.
func (op OpCode) Operand() OperandKind {
	if op < opCount {
		return opTable[op].operand
	}
	return OperandNone
}

// IsBranch reports whether op transfers control to operand targets.
func (op OpCode) IsBranch() bool {
	k := op.Operand()
	return k == OperandShortBranch || k == OperandBranch || k == OperandSwitch
}

// LongForm returns the long encoding of a short branch, or op itself.
func (op OpCode) LongForm() OpCode {
	if l, ok := longForm[op]; ok {
		return l
	}
	return op
}

// ParseOpCode looks up an opcode by its mnemonic.
func ParseOpCode(name string) (OpCode, error) {
	op, ok := opByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown opcode %q", name)
	}
	return op, nil
}

// SmallInt returns the value pushed by ldc.i4.m1 through ldc.i4.8.
func (op OpCode) SmallInt() (int32, bool) {
	if op >= OpLdcI4M1 && op <= OpLdcI4_8 {
		return int32(op) - int32(OpLdcI4_0), true
	}
	return 0, false
}
