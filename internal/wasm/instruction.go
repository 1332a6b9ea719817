package wasm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Instruction is one WebAssembly instruction: an opcode plus whichever
// immediates its Immediate kind uses. The zero values of unused fields are
// ignored.
type Instruction struct {
	Op      Opcode
	Index   uint32    // local, global, function, type or label index; br_table default
	Targets []uint32  // br_table labels
	Block   BlockType // block, loop, if
	Align   uint32    // memarg alignment exponent
	Offset  uint32    // memarg offset
	Int     int64     // i32.const, i64.const
	Float   float64   // f32.const, f64.const
}

// Op builds an instruction without immediates, such as i32.add or drop.
func Op(op Opcode) Instruction {
	return Instruction{Op: op}
}

func LocalGet(idx uint32) Instruction  { return Instruction{Op: OpLocalGet, Index: idx} }
func LocalSet(idx uint32) Instruction  { return Instruction{Op: OpLocalSet, Index: idx} }
func LocalTee(idx uint32) Instruction  { return Instruction{Op: OpLocalTee, Index: idx} }
func GlobalGet(idx uint32) Instruction { return Instruction{Op: OpGlobalGet, Index: idx} }
func GlobalSet(idx uint32) Instruction { return Instruction{Op: OpGlobalSet, Index: idx} }

func I32Const(v int32) Instruction   { return Instruction{Op: OpI32Const, Int: int64(v)} }
func I64Const(v int64) Instruction   { return Instruction{Op: OpI64Const, Int: v} }
func F32Const(v float32) Instruction { return Instruction{Op: OpF32Const, Float: float64(v)} }
func F64Const(v float64) Instruction { return Instruction{Op: OpF64Const, Float: v} }

// Call builds a direct call to function index fn.
func Call(fn uint32) Instruction { return Instruction{Op: OpCall, Index: fn} }

// CallIndirect builds an indirect call through table 0 with signature typeIdx.
func CallIndirect(typeIdx uint32) Instruction {
	return Instruction{Op: OpCallIndirect, Index: typeIdx}
}

func Block(bt BlockType) Instruction { return Instruction{Op: OpBlock, Block: bt} }
func Loop(bt BlockType) Instruction  { return Instruction{Op: OpLoop, Block: bt} }
func If(bt BlockType) Instruction    { return Instruction{Op: OpIf, Block: bt} }
func Br(label uint32) Instruction    { return Instruction{Op: OpBr, Index: label} }
func BrIf(label uint32) Instruction  { return Instruction{Op: OpBrIf, Index: label} }

// BrTable builds a br_table with the given targets and default label.
func BrTable(targets []uint32, def uint32) Instruction {
	return Instruction{Op: OpBrTable, Targets: targets, Index: def}
}

func End() Instruction  { return Instruction{Op: OpEnd} }
func Drop() Instruction { return Instruction{Op: OpDrop} }

// Memory builds a load or store. An align of zero selects the natural
// alignment of the access.
func Memory(op Opcode, align, offset uint32) Instruction {
	if align == 0 {
		align = op.NaturalAlignment()
	}
	return Instruction{Op: op, Align: align, Offset: offset}
}

// Equal reports whether two instructions encode identically.
func (i Instruction) Equal(o Instruction) bool {
	if i.Op != o.Op || i.Index != o.Index || i.Block != o.Block ||
		i.Align != o.Align || i.Offset != o.Offset || i.Int != o.Int {
		return false
	}
	if math.Float64bits(i.Float) != math.Float64bits(o.Float) {
		return false
	}
	if len(i.Targets) != len(o.Targets) {
		return false
	}
	for k := range i.Targets {
		if i.Targets[k] != o.Targets[k] {
			return false
		}
	}
	return true
}

// String renders the instruction in WAT-like text.
func (i Instruction) String() string {
	name := i.Op.String()
	switch i.Op.Immediate() {
	case ImmBlock:
		if bt := i.Block.String(); bt != "" {
			return name + " " + bt
		}
		return name
	case ImmLabel, ImmFunc, ImmLocal, ImmGlobal:
		return fmt.Sprintf("%s %d", name, i.Index)
	case ImmLabelTable:
		var sb strings.Builder
		sb.WriteString(name)
		for _, t := range i.Targets {
			fmt.Fprintf(&sb, " %d", t)
		}
		fmt.Fprintf(&sb, " %d", i.Index)
		return sb.String()
	case ImmCallIndirect:
		return fmt.Sprintf("%s (type %d)", name, i.Index)
	case ImmMemArg:
		var sb strings.Builder
		sb.WriteString(name)
		if i.Offset != 0 {
			fmt.Fprintf(&sb, " offset=%d", i.Offset)
		}
		if i.Align != i.Op.NaturalAlignment() {
			fmt.Fprintf(&sb, " align=%d", uint32(1)<<i.Align)
		}
		return sb.String()
	case ImmI32, ImmI64:
		return fmt.Sprintf("%s %d", name, i.Int)
	case ImmF32:
		return name + " " + strconv.FormatFloat(i.Float, 'g', -1, 32)
	case ImmF64:
		return name + " " + strconv.FormatFloat(i.Float, 'g', -1, 64)
	default:
		return name
	}
}

// Listing renders a sequence of instructions one per line, indenting the
// bodies of block, loop and if.
func Listing(insts []Instruction) string {
	var sb strings.Builder
	depth := 1
	for _, inst := range insts {
		if inst.Op == OpEnd || inst.Op == OpElse {
			depth--
		}
		if depth < 1 {
			depth = 1
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(inst.String())
		sb.WriteByte('\n')
		switch inst.Op {
		case OpBlock, OpLoop, OpIf, OpElse:
			depth++
		}
	}
	return sb.String()
}
