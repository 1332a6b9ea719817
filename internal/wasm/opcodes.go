package wasm

import (
	"errors"
	"fmt"
)

// Opcode is a single-byte WebAssembly MVP opcode.
type Opcode byte

// Control
const (
	OpUnreachable  Opcode = 0x00
	OpNop          Opcode = 0x01
	OpBlock        Opcode = 0x02
	OpLoop         Opcode = 0x03
	OpIf           Opcode = 0x04
	OpElse         Opcode = 0x05
	OpEnd          Opcode = 0x0B
	OpBr           Opcode = 0x0C
	OpBrIf         Opcode = 0x0D
	OpBrTable      Opcode = 0x0E
	OpReturn       Opcode = 0x0F
	OpCall         Opcode = 0x10
	OpCallIndirect Opcode = 0x11
)

// Parametric
const (
	OpDrop   Opcode = 0x1A
	OpSelect Opcode = 0x1B
)

// Variables
const (
	OpLocalGet  Opcode = 0x20
	OpLocalSet  Opcode = 0x21
	OpLocalTee  Opcode = 0x22
	OpGlobalGet Opcode = 0x23
	OpGlobalSet Opcode = 0x24
)

// Memory
const (
	OpI32Load    Opcode = 0x28
	OpI64Load    Opcode = 0x29
	OpF32Load    Opcode = 0x2A
	OpF64Load    Opcode = 0x2B
	OpI32Load8S  Opcode = 0x2C
	OpI32Load8U  Opcode = 0x2D
	OpI32Load16S Opcode = 0x2E
	OpI32Load16U Opcode = 0x2F
	OpI64Load8S  Opcode = 0x30
	OpI64Load8U  Opcode = 0x31
	OpI64Load16S Opcode = 0x32
	OpI64Load16U Opcode = 0x33
	OpI64Load32S Opcode = 0x34
	OpI64Load32U Opcode = 0x35
	OpI32Store   Opcode = 0x36
	OpI64Store   Opcode = 0x37
	OpF32Store   Opcode = 0x38
	OpF64Store   Opcode = 0x39
	OpI32Store8  Opcode = 0x3A
	OpI32Store16 Opcode = 0x3B
	OpI64Store8  Opcode = 0x3C
	OpI64Store16 Opcode = 0x3D
	OpI64Store32 Opcode = 0x3E
	OpMemorySize Opcode = 0x3F
	OpMemoryGrow Opcode = 0x40
)

// Constants
const (
	OpI32Const Opcode = 0x41
	OpI64Const Opcode = 0x42
	OpF32Const Opcode = 0x43
	OpF64Const Opcode = 0x44
)

// i32 comparisons
const (
	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32LtU Opcode = 0x49
	OpI32GtS Opcode = 0x4A
	OpI32GtU Opcode = 0x4B
	OpI32LeS Opcode = 0x4C
	OpI32LeU Opcode = 0x4D
	OpI32GeS Opcode = 0x4E
	OpI32GeU Opcode = 0x4F
)

// i64 comparisons
const (
	OpI64Eqz Opcode = 0x50
	OpI64Eq  Opcode = 0x51
	OpI64Ne  Opcode = 0x52
	OpI64LtS Opcode = 0x53
	OpI64LtU Opcode = 0x54
	OpI64GtS Opcode = 0x55
	OpI64GtU Opcode = 0x56
	OpI64LeS Opcode = 0x57
	OpI64LeU Opcode = 0x58
	OpI64GeS Opcode = 0x59
	OpI64GeU Opcode = 0x5A
)

// Float comparisons
const (
	OpF32Eq Opcode = 0x5B
	OpF32Ne Opcode = 0x5C
	OpF32Lt Opcode = 0x5D
	OpF32Gt Opcode = 0x5E
	OpF32Le Opcode = 0x5F
	OpF32Ge Opcode = 0x60
	OpF64Eq Opcode = 0x61
	OpF64Ne Opcode = 0x62
	OpF64Lt Opcode = 0x63
	OpF64Gt Opcode = 0x64
	OpF64Le Opcode = 0x65
	OpF64Ge Opcode = 0x66
)

// i32 arithmetic
const (
	OpI32Clz    Opcode = 0x67
	OpI32Ctz    Opcode = 0x68
	OpI32Popcnt Opcode = 0x69
	OpI32Add    Opcode = 0x6A
	OpI32Sub    Opcode = 0x6B
	OpI32Mul    Opcode = 0x6C
	OpI32DivS   Opcode = 0x6D
	OpI32DivU   Opcode = 0x6E
	OpI32RemS   Opcode = 0x6F
	OpI32RemU   Opcode = 0x70
	OpI32And    Opcode = 0x71
	OpI32Or     Opcode = 0x72
	OpI32Xor    Opcode = 0x73
	OpI32Shl    Opcode = 0x74
	OpI32ShrS   Opcode = 0x75
	OpI32ShrU   Opcode = 0x76
	OpI32Rotl   Opcode = 0x77
	OpI32Rotr   Opcode = 0x78
)

// i64 arithmetic
const (
	OpI64Clz    Opcode = 0x79
	OpI64Ctz    Opcode = 0x7A
	OpI64Popcnt Opcode = 0x7B
	OpI64Add    Opcode = 0x7C
	OpI64Sub    Opcode = 0x7D
	OpI64Mul    Opcode = 0x7E
	OpI64DivS   Opcode = 0x7F
	OpI64DivU   Opcode = 0x80
	OpI64RemS   Opcode = 0x81
	OpI64RemU   Opcode = 0x82
	OpI64And    Opcode = 0x83
	OpI64Or     Opcode = 0x84
	OpI64Xor    Opcode = 0x85
	OpI64Shl    Opcode = 0x86
	OpI64ShrS   Opcode = 0x87
	OpI64ShrU   Opcode = 0x88
	OpI64Rotl   Opcode = 0x89
	OpI64Rotr   Opcode = 0x8A
)

// f32 arithmetic
const (
	OpF32Abs      Opcode = 0x8B
	OpF32Neg      Opcode = 0x8C
	OpF32Ceil     Opcode = 0x8D
	OpF32Floor    Opcode = 0x8E
	OpF32Trunc    Opcode = 0x8F
	OpF32Nearest  Opcode = 0x90
	OpF32Sqrt     Opcode = 0x91
	OpF32Add      Opcode = 0x92
	OpF32Sub      Opcode = 0x93
	OpF32Mul      Opcode = 0x94
	OpF32Div      Opcode = 0x95
	OpF32Min      Opcode = 0x96
	OpF32Max      Opcode = 0x97
	OpF32Copysign Opcode = 0x98
)

// f64 arithmetic
const (
	OpF64Abs      Opcode = 0x99
	OpF64Neg      Opcode = 0x9A
	OpF64Ceil     Opcode = 0x9B
	OpF64Floor    Opcode = 0x9C
	OpF64Trunc    Opcode = 0x9D
	OpF64Nearest  Opcode = 0x9E
	OpF64Sqrt     Opcode = 0x9F
	OpF64Add      Opcode = 0xA0
	OpF64Sub      Opcode = 0xA1
	OpF64Mul      Opcode = 0xA2
	OpF64Div      Opcode = 0xA3
	OpF64Min      Opcode = 0xA4
	OpF64Max      Opcode = 0xA5
	OpF64Copysign Opcode = 0xA6
)

// Conversions
const (
	OpI32WrapI64        Opcode = 0xA7
	OpI32TruncF32S      Opcode = 0xA8
	OpI32TruncF32U      Opcode = 0xA9
	OpI32TruncF64S      Opcode = 0xAA
	OpI32TruncF64U      Opcode = 0xAB
	OpI64ExtendI32S     Opcode = 0xAC
	OpI64ExtendI32U     Opcode = 0xAD
	OpI64TruncF32S      Opcode = 0xAE
	OpI64TruncF32U      Opcode = 0xAF
	OpI64TruncF64S      Opcode = 0xB0
	OpI64TruncF64U      Opcode = 0xB1
	OpF32ConvertI32S    Opcode = 0xB2
	OpF32ConvertI32U    Opcode = 0xB3
	OpF32ConvertI64S    Opcode = 0xB4
	OpF32ConvertI64U    Opcode = 0xB5
	OpF32DemoteF64      Opcode = 0xB6
	OpF64ConvertI32S    Opcode = 0xB7
	OpF64ConvertI32U    Opcode = 0xB8
	OpF64ConvertI64S    Opcode = 0xB9
	OpF64ConvertI64U    Opcode = 0xBA
	OpF64PromoteF32     Opcode = 0xBB
	OpI32ReinterpretF32 Opcode = 0xBC
	OpI64ReinterpretF64 Opcode = 0xBD
	OpF32ReinterpretI32 Opcode = 0xBE
	OpF64ReinterpretI64 Opcode = 0xBF
)

// Immediate classifies the operands encoded after an opcode byte.
type Immediate uint8

const (
	ImmNone         Immediate = iota
	ImmBlock                  // block type
	ImmLabel                  // relative label depth
	ImmLabelTable             // vector of label depths plus a default
	ImmFunc                   // function index
	ImmCallIndirect           // type index plus table index
	ImmLocal                  // local index
	ImmGlobal                 // global index
	ImmMemArg                 // alignment exponent plus offset
	ImmMemory                 // reserved memory index byte
	ImmI32
	ImmI64
	ImmF32
	ImmF64
)

var (
	// ErrVariableArity is returned by StackEffect for call-family opcodes,
	// whose pop count depends on the callee signature.
	ErrVariableArity = errors.New("variable arity: use the explicit call path")

	// ErrUnknownOpcode is returned for bytes outside the MVP instruction set.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// opcodeInfo describes one opcode: its mnemonic, immediate layout and
// stack behaviour. in is the operand type shared by all operands (the
// stored value for stores); out is the result type. Zero means
// polymorphic or not applicable.
type opcodeInfo struct {
	name  string
	imm   Immediate
	pops  int
	push  bool
	in    ValType
	out   ValType
	align uint32 // natural alignment exponent for memory accesses
}

func control(name string, imm Immediate, pops int) opcodeInfo {
	return opcodeInfo{name: name, imm: imm, pops: pops}
}

func unop(name string, in, out ValType) opcodeInfo {
	return opcodeInfo{name: name, pops: 1, push: true, in: in, out: out}
}

func binop(name string, in, out ValType) opcodeInfo {
	return opcodeInfo{name: name, pops: 2, push: true, in: in, out: out}
}

func load(name string, out ValType, align uint32) opcodeInfo {
	return opcodeInfo{name: name, imm: ImmMemArg, pops: 1, push: true, in: I32, out: out, align: align}
}

func store(name string, in ValType, align uint32) opcodeInfo {
	return opcodeInfo{name: name, imm: ImmMemArg, pops: 2, in: in, align: align}
}

var opcodeTable = map[Opcode]opcodeInfo{
	OpUnreachable:  control("unreachable", ImmNone, 0),
	OpNop:          control("nop", ImmNone, 0),
	OpBlock:        control("block", ImmBlock, 0),
	OpLoop:         control("loop", ImmBlock, 0),
	OpIf:           control("if", ImmBlock, 1),
	OpElse:         control("else", ImmNone, 0),
	OpEnd:          control("end", ImmNone, 0),
	OpBr:           control("br", ImmLabel, 0),
	OpBrIf:         control("br_if", ImmLabel, 1),
	OpBrTable:      control("br_table", ImmLabelTable, 1),
	OpReturn:       control("return", ImmNone, 0),
	OpCall:         {name: "call", imm: ImmFunc, pops: -1},
	OpCallIndirect: {name: "call_indirect", imm: ImmCallIndirect, pops: -1},

	OpDrop:   {name: "drop", pops: 1},
	OpSelect: {name: "select", pops: 3, push: true},

	OpLocalGet:  {name: "local.get", imm: ImmLocal, push: true},
	OpLocalSet:  {name: "local.set", imm: ImmLocal, pops: 1},
	OpLocalTee:  {name: "local.tee", imm: ImmLocal, pops: 1, push: true},
	OpGlobalGet: {name: "global.get", imm: ImmGlobal, push: true},
	OpGlobalSet: {name: "global.set", imm: ImmGlobal, pops: 1},

	OpI32Load:    load("i32.load", I32, 2),
	OpI64Load:    load("i64.load", I64, 3),
	OpF32Load:    load("f32.load", F32, 2),
	OpF64Load:    load("f64.load", F64, 3),
	OpI32Load8S:  load("i32.load8_s", I32, 0),
	OpI32Load8U:  load("i32.load8_u", I32, 0),
	OpI32Load16S: load("i32.load16_s", I32, 1),
	OpI32Load16U: load("i32.load16_u", I32, 1),
	OpI64Load8S:  load("i64.load8_s", I64, 0),
	OpI64Load8U:  load("i64.load8_u", I64, 0),
	OpI64Load16S: load("i64.load16_s", I64, 1),
	OpI64Load16U: load("i64.load16_u", I64, 1),
	OpI64Load32S: load("i64.load32_s", I64, 2),
	OpI64Load32U: load("i64.load32_u", I64, 2),
	OpI32Store:   store("i32.store", I32, 2),
	OpI64Store:   store("i64.store", I64, 3),
	OpF32Store:   store("f32.store", F32, 2),
	OpF64Store:   store("f64.store", F64, 3),
	OpI32Store8:  store("i32.store8", I32, 0),
	OpI32Store16: store("i32.store16", I32, 1),
	OpI64Store8:  store("i64.store8", I64, 0),
	OpI64Store16: store("i64.store16", I64, 1),
	OpI64Store32: store("i64.store32", I64, 2),
	OpMemorySize: {name: "memory.size", imm: ImmMemory, push: true, out: I32},
	OpMemoryGrow: {name: "memory.grow", imm: ImmMemory, pops: 1, push: true, in: I32, out: I32},

	OpI32Const: {name: "i32.const", imm: ImmI32, push: true, out: I32},
	OpI64Const: {name: "i64.const", imm: ImmI64, push: true, out: I64},
	OpF32Const: {name: "f32.const", imm: ImmF32, push: true, out: F32},
	OpF64Const: {name: "f64.const", imm: ImmF64, push: true, out: F64},

	OpI32Eqz: unop("i32.eqz", I32, I32),
	OpI32Eq:  binop("i32.eq", I32, I32),
	OpI32Ne:  binop("i32.ne", I32, I32),
	OpI32LtS: binop("i32.lt_s", I32, I32),
	OpI32LtU: binop("i32.lt_u", I32, I32),
	OpI32GtS: binop("i32.gt_s", I32, I32),
	OpI32GtU: binop("i32.gt_u", I32, I32),
	OpI32LeS: binop("i32.le_s", I32, I32),
	OpI32LeU: binop("i32.le_u", I32, I32),
	OpI32GeS: binop("i32.ge_s", I32, I32),
	OpI32GeU: binop("i32.ge_u", I32, I32),

	OpI64Eqz: unop("i64.eqz", I64, I32),
	OpI64Eq:  binop("i64.eq", I64, I32),
	OpI64Ne:  binop("i64.ne", I64, I32),
	OpI64LtS: binop("i64.lt_s", I64, I32),
	OpI64LtU: binop("i64.lt_u", I64, I32),
	OpI64GtS: binop("i64.gt_s", I64, I32),
	OpI64GtU: binop("i64.gt_u", I64, I32),
	OpI64LeS: binop("i64.le_s", I64, I32),
	OpI64LeU: binop("i64.le_u", I64, I32),
	OpI64GeS: binop("i64.ge_s", I64, I32),
	OpI64GeU: binop("i64.ge_u", I64, I32),

	OpF32Eq: binop("f32.eq", F32, I32),
	OpF32Ne: binop("f32.ne", F32, I32),
	OpF32Lt: binop("f32.lt", F32, I32),
	OpF32Gt: binop("f32.gt", F32, I32),
	OpF32Le: binop("f32.le", F32, I32),
	OpF32Ge: binop("f32.ge", F32, I32),
	OpF64Eq: binop("f64.eq", F64, I32),
	OpF64Ne: binop("f64.ne", F64, I32),
	OpF64Lt: binop("f64.lt", F64, I32),
	OpF64Gt: binop("f64.gt", F64, I32),
	OpF64Le: binop("f64.le", F64, I32),
	OpF64Ge: binop("f64.ge", F64, I32),

	OpI32Clz:    unop("i32.clz", I32, I32),
	OpI32Ctz:    unop("i32.ctz", I32, I32),
	OpI32Popcnt: unop("i32.popcnt", I32, I32),
	OpI32Add:    binop("i32.add", I32, I32),
	OpI32Sub:    binop("i32.sub", I32, I32),
	OpI32Mul:    binop("i32.mul", I32, I32),
	OpI32DivS:   binop("i32.div_s", I32, I32),
	OpI32DivU:   binop("i32.div_u", I32, I32),
	OpI32RemS:   binop("i32.rem_s", I32, I32),
	OpI32RemU:   binop("i32.rem_u", I32, I32),
	OpI32And:    binop("i32.and", I32, I32),
	OpI32Or:     binop("i32.or", I32, I32),
	OpI32Xor:    binop("i32.xor", I32, I32),
	OpI32Shl:    binop("i32.shl", I32, I32),
	OpI32ShrS:   binop("i32.shr_s", I32, I32),
	OpI32ShrU:   binop("i32.shr_u", I32, I32),
	OpI32Rotl:   binop("i32.rotl", I32, I32),
	OpI32Rotr:   binop("i32.rotr", I32, I32),

	OpI64Clz:    unop("i64.clz", I64, I64),
	OpI64Ctz:    unop("i64.ctz", I64, I64),
	OpI64Popcnt: unop("i64.popcnt", I64, I64),
	OpI64Add:    binop("i64.add", I64, I64),
	OpI64Sub:    binop("i64.sub", I64, I64),
	OpI64Mul:    binop("i64.mul", I64, I64),
	OpI64DivS:   binop("i64.div_s", I64, I64),
	OpI64DivU:   binop("i64.div_u", I64, I64),
	OpI64RemS:   binop("i64.rem_s", I64, I64),
	OpI64RemU:   binop("i64.rem_u", I64, I64),
	OpI64And:    binop("i64.and", I64, I64),
	OpI64Or:     binop("i64.or", I64, I64),
	OpI64Xor:    binop("i64.xor", I64, I64),
	OpI64Shl:    binop("i64.shl", I64, I64),
	OpI64ShrS:   binop("i64.shr_s", I64, I64),
	OpI64ShrU:   binop("i64.shr_u", I64, I64),
	OpI64Rotl:   binop("i64.rotl", I64, I64),
	OpI64Rotr:   binop("i64.rotr", I64, I64),

	OpF32Abs:      unop("f32.abs", F32, F32),
	OpF32Neg:      unop("f32.neg", F32, F32),
	OpF32Ceil:     unop("f32.ceil", F32, F32),
	OpF32Floor:    unop("f32.floor", F32, F32),
	OpF32Trunc:    unop("f32.trunc", F32, F32),
	OpF32Nearest:  unop("f32.nearest", F32, F32),
	OpF32Sqrt:     unop("f32.sqrt", F32, F32),
	OpF32Add:      binop("f32.add", F32, F32),
	OpF32Sub:      binop("f32.sub", F32, F32),
	OpF32Mul:      binop("f32.mul", F32, F32),
	OpF32Div:      binop("f32.div", F32, F32),
	OpF32Min:      binop("f32.min", F32, F32),
	OpF32Max:      binop("f32.max", F32, F32),
	OpF32Copysign: binop("f32.copysign", F32, F32),

	OpF64Abs:      unop("f64.abs", F64, F64),
	OpF64Neg:      unop("f64.neg", F64, F64),
	OpF64Ceil:     unop("f64.ceil", F64, F64),
	OpF64Floor:    unop("f64.floor", F64, F64),
	OpF64Trunc:    unop("f64.trunc", F64, F64),
	OpF64Nearest:  unop("f64.nearest", F64, F64),
	OpF64Sqrt:     unop("f64.sqrt", F64, F64),
	OpF64Add:      binop("f64.add", F64, F64),
	OpF64Sub:      binop("f64.sub", F64, F64),
	OpF64Mul:      binop("f64.mul", F64, F64),
	OpF64Div:      binop("f64.div", F64, F64),
	OpF64Min:      binop("f64.min", F64, F64),
	OpF64Max:      binop("f64.max", F64, F64),
	OpF64Copysign: binop("f64.copysign", F64, F64),

	OpI32WrapI64:        unop("i32.wrap_i64", I64, I32),
	OpI32TruncF32S:      unop("i32.trunc_f32_s", F32, I32),
	OpI32TruncF32U:      unop("i32.trunc_f32_u", F32, I32),
	OpI32TruncF64S:      unop("i32.trunc_f64_s", F64, I32),
	OpI32TruncF64U:      unop("i32.trunc_f64_u", F64, I32),
	OpI64ExtendI32S:     unop("i64.extend_i32_s", I32, I64),
	OpI64ExtendI32U:     unop("i64.extend_i32_u", I32, I64),
	OpI64TruncF32S:      unop("i64.trunc_f32_s", F32, I64),
	OpI64TruncF32U:      unop("i64.trunc_f32_u", F32, I64),
	OpI64TruncF64S:      unop("i64.trunc_f64_s", F64, I64),
	OpI64TruncF64U:      unop("i64.trunc_f64_u", F64, I64),
	OpF32ConvertI32S:    unop("f32.convert_i32_s", I32, F32),
	OpF32ConvertI32U:    unop("f32.convert_i32_u", I32, F32),
	OpF32ConvertI64S:    unop("f32.convert_i64_s", I64, F32),
	OpF32ConvertI64U:    unop("f32.convert_i64_u", I64, F32),
	OpF32DemoteF64:      unop("f32.demote_f64", F64, F32),
	OpF64ConvertI32S:    unop("f64.convert_i32_s", I32, F64),
	OpF64ConvertI32U:    unop("f64.convert_i32_u", I32, F64),
	OpF64ConvertI64S:    unop("f64.convert_i64_s", I64, F64),
	OpF64ConvertI64U:    unop("f64.convert_i64_u", I64, F64),
	OpF64PromoteF32:     unop("f64.promote_f32", F32, F64),
	OpI32ReinterpretF32: unop("i32.reinterpret_f32", F32, I32),
	OpI64ReinterpretF64: unop("i64.reinterpret_f64", F64, I64),
	OpF32ReinterpretI32: unop("f32.reinterpret_i32", I32, F32),
	OpF64ReinterpretI64: unop("f64.reinterpret_i64", I64, F64),
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.name] = op
	}
	return m
}()

// LookupOpcode resolves a text mnemonic such as "i32.add".
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Known reports whether op belongs to the MVP instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(op))
}

// Immediate returns the immediate layout of the opcode.
func (op Opcode) Immediate() Immediate {
	return opcodeTable[op].imm
}

// StackEffect returns how many operands op pops and whether it pushes a
// result. Call-family opcodes return ErrVariableArity.
func (op Opcode) StackEffect() (pops int, push bool, err error) {
	info, ok := opcodeTable[op]
	if !ok {
		return 0, false, fmt.Errorf("%w 0x%02X", ErrUnknownOpcode, byte(op))
	}
	if info.pops < 0 {
		return 0, false, fmt.Errorf("%s: %w", info.name, ErrVariableArity)
	}
	return info.pops, info.push, nil
}

// OperandType is the type of the operands op consumes; for stores it is the
// type of the stored value (the address is always i32). Zero means the
// operands are polymorphic.
func (op Opcode) OperandType() ValType {
	return opcodeTable[op].in
}

// ResultType is the type op pushes, or zero when it pushes nothing or the
// result type depends on the operands.
func (op Opcode) ResultType() ValType {
	return opcodeTable[op].out
}

// NaturalAlignment is the default alignment exponent for a memory access.
func (op Opcode) NaturalAlignment() uint32 {
	return opcodeTable[op].align
}

// IsStore reports whether op writes to linear memory.
func (op Opcode) IsStore() bool {
	return op >= OpI32Store && op <= OpI64Store32
}
