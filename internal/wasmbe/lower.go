package wasmbe

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lhaig/stackgen/internal/codebuilder"
	"github.com/lhaig/stackgen/internal/ir"
	"github.com/lhaig/stackgen/internal/wasm"
)

// LoweredFunction is one function body ready for encoding.
type LoweredFunction struct {
	Name   string
	Index  uint32
	Params []wasm.ValType
	Result wasm.ValType // zero for no result
	Locals []wasm.ValType // declared locals beyond the parameters
	Body   []wasm.Instruction
}

// value tracks one named IR value while its function is lowered.
type value struct {
	sym   codebuilder.Symbol
	typ   wasm.ValType
	state codebuilder.VMSymbolState

	// inLocal is set for parameters and for values LoadSymbol moved into
	// a local; they are read with local.get from then on.
	inLocal bool
	local   codebuilder.LocalID
}

// funcLowering lowers one validated IR function. It decides the order of
// instructions; the Builder decides where values live.
type funcLowering struct {
	mod    *ir.Module
	fn     *ir.Function
	b      *codebuilder.Builder
	logger *slog.Logger

	localCount uint32
	extraTypes []wasm.ValType
	values     map[string]*value
	uses       map[string]int
	nextSym    codebuilder.Symbol
}

// Lower translates a validated function. The builder is cleared first and
// can be shared between functions.
func Lower(mod *ir.Module, fn *ir.Function, b *codebuilder.Builder, logger *slog.Logger) (*LoweredFunction, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	_, idx, ok := mod.Lookup(fn.Name)
	if !ok {
		return nil, fmt.Errorf("function %s: not part of module %s", fn.Name, mod.Name)
	}
	params, result, err := ir.Signature(fn)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", fn.Name, err)
	}

	b.Clear()
	fl := &funcLowering{
		mod:        mod,
		fn:         fn,
		b:          b,
		logger:     logger.With("function", fn.Name),
		localCount: uint32(len(params)),
		values:     make(map[string]*value),
		uses:       ir.UseCounts(fn),
	}
	for i, p := range fn.Params {
		fl.values[p.Name] = &value{
			sym:     fl.newSymbol(),
			typ:     params[i],
			state:   codebuilder.NotPushedState(),
			inLocal: true,
			local:   codebuilder.LocalID(i),
		}
	}

	body, err := fl.lowerBody(result)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", fn.Name, err)
	}
	return &LoweredFunction{
		Name:   fn.Name,
		Index:  uint32(idx),
		Params: params,
		Result: result,
		Locals: fl.extraTypes,
		Body:   body,
	}, nil
}

func (fl *funcLowering) newSymbol() codebuilder.Symbol {
	sym := fl.nextSym
	fl.nextSym++
	return sym
}

// allocLocal commits the next local index for a value of type vtype.
func (fl *funcLowering) allocLocal(vtype wasm.ValType) codebuilder.LocalID {
	idx := codebuilder.LocalID(fl.localCount)
	fl.localCount++
	fl.extraTypes = append(fl.extraTypes, vtype)
	return idx
}

func (fl *funcLowering) lowerBody(result wasm.ValType) ([]wasm.Instruction, error) {
	for i, s := range fl.fn.Body {
		if err := fl.lowerStmt(s); err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i, s.Op, err)
		}
	}

	want := 0
	if result != 0 {
		if err := fl.load(fl.fn.Return); err != nil {
			return nil, fmt.Errorf("return %s: %w", fl.fn.Return, err)
		}
		want = 1
	}
	if depth := fl.b.Depth(); depth != want {
		return nil, fmt.Errorf("operand stack holds %d value(s) at end of body, want %d", depth, want)
	}
	if err := fl.b.Push(wasm.End()); err != nil {
		return nil, err
	}
	return fl.b.Finalize()
}

func (fl *funcLowering) lowerStmt(s *ir.Stmt) error {
	syms := make([]codebuilder.Symbol, len(s.Args))
	for k, name := range s.Args {
		if err := fl.load(name); err != nil {
			return fmt.Errorf("argument %s: %w", name, err)
		}
		syms[k] = fl.values[name].sym
	}
	if !fl.b.VerifyStackMatch(syms) {
		return fmt.Errorf("arguments %v are not on top of the operand stack %v", s.Args, fl.b.Stack())
	}

	produces := s.Type != 0
	if s.IsCall() {
		_, idx, ok := fl.mod.Lookup(s.Func)
		if !ok {
			return fmt.Errorf("undefined function %q", s.Func)
		}
		if err := fl.b.PushCall(uint32(idx), len(s.Args), produces); err != nil {
			return err
		}
	} else {
		inst, err := s.Instruction()
		if err != nil {
			return err
		}
		if err := fl.b.Push(inst); err != nil {
			return err
		}
	}

	if !produces {
		return nil
	}
	if s.Let == "" || fl.uses[s.Let] == 0 {
		return fl.b.Push(wasm.Drop())
	}
	v := &value{sym: fl.newSymbol(), typ: s.Type}
	state, err := fl.b.SetTopSymbol(v.sym)
	if err != nil {
		return err
	}
	v.state = state
	fl.values[s.Let] = v
	return nil
}

// load leaves the named value on top of the operand stack.
func (fl *funcLowering) load(name string) error {
	v, ok := fl.values[name]
	if !ok {
		return fmt.Errorf("undefined value %q", name)
	}
	if v.inLocal {
		if err := fl.b.Push(wasm.LocalGet(uint32(v.local))); err != nil {
			return err
		}
		_, err := fl.b.SetTopSymbol(v.sym)
		return err
	}

	next := codebuilder.LocalID(fl.localCount)
	state, onStack, err := fl.b.LoadSymbol(v.sym, v.state, next)
	if err != nil {
		return err
	}
	v.state = state
	if !onStack {
		v.inLocal = true
		v.local = fl.allocLocal(v.typ)
		fl.logger.Debug("value moved to local", "value", name, "local", uint32(v.local), "type", v.typ.String())
	}
	return nil
}
