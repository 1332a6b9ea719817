package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLEB128Encoding(t *testing.T) {
	tests := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0}},
		{1, []byte{1}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xE5, 0x8E, 0x26}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, EncodeLEB128U(tt.value), "EncodeLEB128U(%d)", tt.value)
	}

	stests := []struct {
		value    int64
		expected []byte
	}{
		{0, []byte{0}},
		{1, []byte{1}},
		{-1, []byte{0x7F}},
		{63, []byte{0x3F}},
		{64, []byte{0xC0, 0x00}},
		{-64, []byte{0x40}},
		{-128, []byte{0x80, 0x7F}},
	}
	for _, tt := range stests {
		assert.Equal(t, tt.expected, EncodeLEB128S(tt.value), "EncodeLEB128S(%d)", tt.value)
	}
}

func TestAppendInstruction(t *testing.T) {
	tests := []struct {
		name string
		inst Instruction
		want []byte
	}{
		{"no immediate", Op(OpI32Add), []byte{0x6A}},
		{"local.get", LocalGet(3), []byte{0x20, 0x03}},
		{"local.tee wide index", LocalTee(200), []byte{0x22, 0xC8, 0x01}},
		{"i32.const negative", I32Const(-7), []byte{0x41, 0x79}},
		{"i64.const", I64Const(128), []byte{0x42, 0x80, 0x01}},
		{"f32.const", F32Const(1), []byte{0x43, 0x00, 0x00, 0x80, 0x3F}},
		{"f64.const", F64Const(2), []byte{0x44, 0, 0, 0, 0, 0, 0, 0, 0x40}},
		{"call", Call(5), []byte{0x10, 0x05}},
		{"call_indirect", CallIndirect(1), []byte{0x11, 0x01, 0x00}},
		{"empty block", Block(BlockEmpty), []byte{0x02, 0x40}},
		{"typed if", If(BlockType(I32)), []byte{0x04, 0x7F}},
		{"br_table", BrTable([]uint32{0, 1}, 2), []byte{0x0E, 0x02, 0x00, 0x01, 0x02}},
		{"load natural align", Memory(OpI64Load, 0, 8), []byte{0x29, 0x03, 0x08}},
		{"store8", Memory(OpI32Store8, 0, 0), []byte{0x3A, 0x00, 0x00}},
		{"memory.grow", Op(OpMemoryGrow), []byte{0x40, 0x00}},
		{"end", End(), []byte{0x0B}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AppendInstruction(nil, tt.inst)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppendInstructionUnknown(t *testing.T) {
	_, err := AppendInstruction(nil, Instruction{Op: 0xFD})
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestEncodeInstructions(t *testing.T) {
	code, err := EncodeInstructions([]Instruction{LocalGet(0), LocalGet(1), Op(OpI32Add), End()})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B}, code)
}

func TestEncodeSection(t *testing.T) {
	assert.Equal(t, []byte{SectionType, 0x02, 0xAA, 0xBB}, EncodeSection(SectionType, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{0x03, 'a', 'b', 'c'}, EncodeString("abc"))
	assert.Equal(t, []byte{0x01, 0x60}, EncodeVector(1, []byte{0x60}))
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		inst Instruction
		want string
	}{
		{Op(OpI32Add), "i32.add"},
		{LocalSet(2), "local.set 2"},
		{I32Const(-7), "i32.const -7"},
		{F64Const(1.5), "f64.const 1.5"},
		{F32Const(0.25), "f32.const 0.25"},
		{Call(4), "call 4"},
		{CallIndirect(1), "call_indirect (type 1)"},
		{Block(BlockEmpty), "block"},
		{Loop(BlockType(I64)), "loop (result i64)"},
		{BrTable([]uint32{1, 0}, 2), "br_table 1 0 2"},
		{Memory(OpI64Load, 0, 8), "i64.load offset=8"},
		{Memory(OpI32Load, 0, 0), "i32.load"},
		{Memory(OpI32Load, 1, 4), "i32.load offset=4 align=2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.inst.String())
	}
}

func TestInstructionEqual(t *testing.T) {
	assert.True(t, LocalGet(1).Equal(LocalGet(1)))
	assert.False(t, LocalGet(1).Equal(LocalSet(1)))
	assert.False(t, BrTable([]uint32{0}, 1).Equal(BrTable([]uint32{1}, 1)))
	assert.True(t, F64Const(0.5).Equal(F64Const(0.5)))
}

func TestListing(t *testing.T) {
	out := Listing([]Instruction{
		Block(BlockEmpty),
		LocalGet(0),
		BrIf(0),
		End(),
		I32Const(1),
		End(),
	})
	want := "  block\n" +
		"    local.get 0\n" +
		"    br_if 0\n" +
		"  end\n" +
		"  i32.const 1\n" +
		"  end\n"
	assert.Equal(t, want, out)
}
