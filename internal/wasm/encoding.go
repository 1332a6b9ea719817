package wasm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WASM binary format constants
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6D} // \0asm
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section IDs
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Export kinds
const (
	ExportFunc   byte = 0x00
	ExportMemory byte = 0x02
)

// FuncTypeTag prefixes every entry of the type section.
const FuncTypeTag byte = 0x60

// AppendLEB128U appends value as unsigned LEB128.
func AppendLEB128U(buf []byte, value uint64) []byte {
	for {
		b := byte(value & 0x7F)
		value >>= 7
		if value != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

// AppendLEB128S appends value as signed LEB128.
func AppendLEB128S(buf []byte, value int64) []byte {
	for {
		b := byte(value & 0x7F)
		value >>= 7
		if (value == 0 && b&0x40 == 0) || (value == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// EncodeLEB128U encodes an unsigned integer as unsigned LEB128.
func EncodeLEB128U(value uint64) []byte {
	return AppendLEB128U(nil, value)
}

// EncodeLEB128S encodes a signed integer as signed LEB128.
func EncodeLEB128S(value int64) []byte {
	return AppendLEB128S(nil, value)
}

// EncodeString encodes a string with its length prefix.
func EncodeString(s string) []byte {
	result := EncodeLEB128U(uint64(len(s)))
	return append(result, s...)
}

// EncodeSection encodes a section with its ID and length prefix.
func EncodeSection(id byte, contents []byte) []byte {
	result := []byte{id}
	result = AppendLEB128U(result, uint64(len(contents)))
	return append(result, contents...)
}

// EncodeVector encodes a vector of items with a count prefix.
func EncodeVector(count int, items []byte) []byte {
	result := EncodeLEB128U(uint64(count))
	return append(result, items...)
}

// AppendInstruction appends the binary encoding of inst.
func AppendInstruction(buf []byte, inst Instruction) ([]byte, error) {
	if !inst.Op.Known() {
		return buf, fmt.Errorf("%w 0x%02X", ErrUnknownOpcode, byte(inst.Op))
	}
	buf = append(buf, byte(inst.Op))
	switch inst.Op.Immediate() {
	case ImmBlock:
		bt := inst.Block
		if bt == 0 {
			bt = BlockEmpty
		}
		buf = append(buf, byte(bt))
	case ImmLabel, ImmFunc, ImmLocal, ImmGlobal:
		buf = AppendLEB128U(buf, uint64(inst.Index))
	case ImmLabelTable:
		buf = AppendLEB128U(buf, uint64(len(inst.Targets)))
		for _, t := range inst.Targets {
			buf = AppendLEB128U(buf, uint64(t))
		}
		buf = AppendLEB128U(buf, uint64(inst.Index))
	case ImmCallIndirect:
		buf = AppendLEB128U(buf, uint64(inst.Index))
		buf = append(buf, 0x00) // table 0
	case ImmMemArg:
		buf = AppendLEB128U(buf, uint64(inst.Align))
		buf = AppendLEB128U(buf, uint64(inst.Offset))
	case ImmMemory:
		buf = append(buf, 0x00)
	case ImmI32:
		buf = AppendLEB128S(buf, int64(int32(inst.Int)))
	case ImmI64:
		buf = AppendLEB128S(buf, inst.Int)
	case ImmF32:
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(inst.Float)))
	case ImmF64:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(inst.Float))
	}
	return buf, nil
}

// EncodeInstructions encodes a flat instruction sequence.
func EncodeInstructions(insts []Instruction) ([]byte, error) {
	var buf []byte
	for _, inst := range insts {
		var err error
		if buf, err = AppendInstruction(buf, inst); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
