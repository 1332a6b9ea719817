// Package wasm models the WebAssembly instruction set as seen by a code
// generator: opcodes, their immediates and stack effects, a text rendering
// and the binary encoding.
package wasm

import "fmt"

// ValType is a WebAssembly value type.
type ValType byte

// Value types
const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

// String returns the text name of the value type.
func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case 0:
		return "any"
	default:
		return fmt.Sprintf("valtype(0x%02X)", byte(v))
	}
}

// ParseValType resolves a text value type name.
func ParseValType(s string) (ValType, error) {
	switch s {
	case "i32":
		return I32, nil
	case "i64":
		return I64, nil
	case "f32":
		return F32, nil
	case "f64":
		return F64, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

// BlockType is the signature of a block, loop or if.
// BlockEmpty means no result; otherwise it holds a single ValType.
type BlockType byte

// BlockEmpty is the block type of a block without a result.
const BlockEmpty BlockType = 0x40

// String returns the WAT form of the block type annotation.
func (b BlockType) String() string {
	if b == BlockEmpty || b == 0 {
		return ""
	}
	return fmt.Sprintf("(result %s)", ValType(b))
}
