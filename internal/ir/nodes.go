// Package ir defines the named-value intermediate representation lowered
// by the WebAssembly backend: a module of straight-line functions whose
// statements each apply one operation to previously named values.
package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lhaig/stackgen/internal/wasm"
)

// CallOp is the statement op for a direct call to another function.
const CallOp = "call"

// Module is one compilation unit.
type Module struct {
	Name      string      `yaml:"name"`
	Functions []*Function `yaml:"functions"`
}

// Function is a straight-line function body.
type Function struct {
	Name   string  `yaml:"name"`
	Export bool    `yaml:"export,omitempty"`
	Params []Param `yaml:"params,omitempty"`
	Result string  `yaml:"result,omitempty"` // empty for no result
	Body   []*Stmt `yaml:"body,omitempty"`
	Return string  `yaml:"return,omitempty"` // value returned when Result is set
}

// Param is a function parameter.
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Stmt applies Op to Args and optionally names the result with Let.
type Stmt struct {
	Let    string   `yaml:"let,omitempty"`
	Op     string   `yaml:"op"`
	Args   []string `yaml:"args,omitempty"`
	Value  *Literal `yaml:"value,omitempty"`
	Func   string   `yaml:"func,omitempty"`
	Offset uint32   `yaml:"offset,omitempty"`
	Align  uint32   `yaml:"align,omitempty"` // bytes; zero means natural

	// Type is the result type, filled in by Validate. Zero means the
	// statement produces no value.
	Type wasm.ValType `yaml:"-"`
}

// Literal keeps a constant's source text so it can be parsed with the
// precision of the op that uses it.
type Literal struct {
	Text string
}

// UnmarshalYAML accepts any scalar.
func (l *Literal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: literal must be a scalar", node.Line)
	}
	l.Text = node.Value
	return nil
}

// Lookup returns the function with the given name and its index.
func (m *Module) Lookup(name string) (*Function, int, bool) {
	for i, fn := range m.Functions {
		if fn.Name == name {
			return fn, i, true
		}
	}
	return nil, -1, false
}

// IsCall reports whether the statement is a direct call.
func (s *Stmt) IsCall() bool {
	return s.Op == CallOp
}

// Instruction builds the instruction a non-call statement lowers to.
func (s *Stmt) Instruction() (wasm.Instruction, error) {
	op, ok := wasm.LookupOpcode(s.Op)
	if !ok {
		return wasm.Instruction{}, fmt.Errorf("unknown op %q", s.Op)
	}
	switch op.Immediate() {
	case wasm.ImmNone, wasm.ImmMemory:
		return wasm.Op(op), nil
	case wasm.ImmMemArg:
		exp, err := alignExponent(op, s.Align)
		if err != nil {
			return wasm.Instruction{}, err
		}
		return wasm.Instruction{Op: op, Align: exp, Offset: s.Offset}, nil
	case wasm.ImmI32, wasm.ImmI64, wasm.ImmF32, wasm.ImmF64:
		if s.Value == nil {
			return wasm.Instruction{}, fmt.Errorf("%s needs a value", s.Op)
		}
		return ParseConst(op, s.Value.Text)
	}
	return wasm.Instruction{}, fmt.Errorf("op %q cannot appear in a function body", s.Op)
}

// ParseConst parses a literal for one of the four const ops. Integers
// accept decimal, hex (0x) and the full unsigned range of the type.
func ParseConst(op wasm.Opcode, text string) (wasm.Instruction, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	switch op {
	case wasm.OpI32Const:
		v, err := parseInt(text, 32)
		if err != nil {
			return wasm.Instruction{}, fmt.Errorf("invalid i32 literal %q", text)
		}
		return wasm.I32Const(int32(v)), nil
	case wasm.OpI64Const:
		v, err := parseInt(text, 64)
		if err != nil {
			return wasm.Instruction{}, fmt.Errorf("invalid i64 literal %q", text)
		}
		return wasm.I64Const(v), nil
	case wasm.OpF32Const:
		v, err := parseFloat(text, 32)
		if err != nil {
			return wasm.Instruction{}, fmt.Errorf("invalid f32 literal %q", text)
		}
		return wasm.F32Const(float32(v)), nil
	case wasm.OpF64Const:
		v, err := parseFloat(text, 64)
		if err != nil {
			return wasm.Instruction{}, fmt.Errorf("invalid f64 literal %q", text)
		}
		return wasm.F64Const(v), nil
	}
	return wasm.Instruction{}, fmt.Errorf("%s takes no literal", op)
}

// parseInt accepts signed values and unsigned values up to the bit size,
// the latter wrapping to the two's complement value.
func parseInt(text string, bits int) (int64, error) {
	if v, err := strconv.ParseInt(text, 0, bits); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(text, 0, bits)
	if err != nil {
		return 0, err
	}
	if bits == 32 {
		return int64(int32(uint32(u))), nil
	}
	return int64(u), nil
}

func parseFloat(text string, bits int) (float64, error) {
	switch strings.ToLower(text) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(text, bits)
}

// alignExponent converts a byte alignment to the log2 form carried by a
// memarg. Zero selects the natural alignment.
func alignExponent(op wasm.Opcode, align uint32) (uint32, error) {
	natural := op.NaturalAlignment()
	if align == 0 {
		return natural, nil
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("align %d is not a power of two", align)
	}
	exp := uint32(0)
	for a := align; a > 1; a >>= 1 {
		exp++
	}
	if exp > natural {
		return 0, fmt.Errorf("align %d exceeds the natural alignment %d of %s", align, uint32(1)<<natural, op)
	}
	return exp, nil
}
