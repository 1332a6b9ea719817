package ir

import (
	"fmt"

	"github.com/lhaig/stackgen/internal/diagnostic"
	"github.com/lhaig/stackgen/internal/wasm"
)

// Validate checks a module and annotates each statement with its result
// type. Lowering assumes a module without error diagnostics.
func Validate(mod *Module) *diagnostic.Diagnostics {
	diags := diagnostic.New()

	if mod.Name == "" {
		diags.Errorf("", diagnostic.NoStmt, "module has no name")
	}
	if len(mod.Functions) == 0 {
		diags.Warningf("", diagnostic.NoStmt, "module %q defines no functions", mod.Name)
	}

	seen := make(map[string]bool)
	for i, fn := range mod.Functions {
		if fn.Name == "" {
			diags.Errorf("", diagnostic.NoStmt, "function %d has no name", i)
			continue
		}
		if seen[fn.Name] {
			diags.ErrorWithHint(fn.Name, diagnostic.NoStmt,
				fmt.Sprintf("duplicate function %q", fn.Name), "function names must be unique within a module")
			continue
		}
		seen[fn.Name] = true
	}

	for _, fn := range mod.Functions {
		if fn.Name == "" {
			continue
		}
		v := &validator{mod: mod, fn: fn, diags: diags, values: make(map[string]wasm.ValType)}
		v.run()
	}
	return diags
}

// Signature resolves a function's parameter and result types. It is only
// meaningful for validated functions.
func Signature(fn *Function) (params []wasm.ValType, result wasm.ValType, err error) {
	for _, p := range fn.Params {
		t, err := wasm.ParseValType(p.Type)
		if err != nil {
			return nil, 0, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		params = append(params, t)
	}
	if fn.Result != "" {
		result, err = wasm.ParseValType(fn.Result)
		if err != nil {
			return nil, 0, fmt.Errorf("result: %w", err)
		}
	}
	return params, result, nil
}

// UseCounts counts how often each named value is referenced by statement
// arguments and the return.
func UseCounts(fn *Function) map[string]int {
	uses := make(map[string]int)
	for _, s := range fn.Body {
		for _, a := range s.Args {
			uses[a]++
		}
	}
	if fn.Return != "" {
		uses[fn.Return]++
	}
	return uses
}

type validator struct {
	mod    *Module
	fn     *Function
	diags  *diagnostic.Diagnostics
	values map[string]wasm.ValType // names defined so far
}

func (v *validator) errorf(stmt int, format string, args ...interface{}) {
	v.diags.Errorf(v.fn.Name, stmt, format, args...)
}

func (v *validator) run() {
	fn := v.fn
	for _, p := range fn.Params {
		if p.Name == "" {
			v.errorf(diagnostic.NoStmt, "parameter has no name")
			continue
		}
		if _, dup := v.values[p.Name]; dup {
			v.errorf(diagnostic.NoStmt, "duplicate parameter %q", p.Name)
			continue
		}
		t, err := wasm.ParseValType(p.Type)
		if err != nil {
			v.errorf(diagnostic.NoStmt, "parameter %q: %v", p.Name, err)
		}
		v.values[p.Name] = t
	}

	var result wasm.ValType
	if fn.Result != "" {
		t, err := wasm.ParseValType(fn.Result)
		if err != nil {
			v.errorf(diagnostic.NoStmt, "result: %v", err)
		}
		result = t
	}

	lets := make(map[string]int)
	for i, s := range fn.Body {
		before := v.diags.ErrorCount()
		s.Type = v.stmt(i, s)
		if s.Let == "" {
			continue
		}
		if _, dup := v.values[s.Let]; dup {
			v.errorf(i, "value %q is already defined", s.Let)
			continue
		}
		if s.Type == 0 && v.diags.ErrorCount() == before {
			v.errorf(i, "%s produces no value to bind to %q", s.Op, s.Let)
		}
		v.values[s.Let] = s.Type
		lets[s.Let] = i
	}

	switch {
	case fn.Result == "" && fn.Return != "":
		v.errorf(diagnostic.NoStmt, "function has no result but returns %q", fn.Return)
	case fn.Result != "" && fn.Return == "":
		v.diags.ErrorWithHint(fn.Name, diagnostic.NoStmt,
			fmt.Sprintf("function declares result %s but has no return", fn.Result),
			"add `return: <value>` naming a value of that type")
	case fn.Result != "":
		if t, ok := v.values[fn.Return]; !ok {
			v.errorf(diagnostic.NoStmt, "return refers to undefined value %q", fn.Return)
		} else if result != 0 && t != 0 && t != result {
			v.errorf(diagnostic.NoStmt, "return value %q is %s, want %s", fn.Return, t, result)
		}
	}

	uses := UseCounts(fn)
	for i, s := range fn.Body {
		if s.Let != "" && lets[s.Let] == i && uses[s.Let] == 0 {
			v.diags.Warningf(fn.Name, i, "value %q is never used", s.Let)
		}
	}
}

// stmt checks one statement and returns its result type.
func (v *validator) stmt(i int, s *Stmt) wasm.ValType {
	if s.Op == "" {
		v.errorf(i, "statement has no op")
		return 0
	}
	operands, ok := v.operands(i, s)
	if s.IsCall() {
		return v.call(i, s, operands, ok)
	}
	if s.Func != "" {
		v.errorf(i, "func is only valid on call")
	}

	op, known := wasm.LookupOpcode(s.Op)
	if !known {
		v.unknownOp(i, s.Op)
		return 0
	}
	if !bodyOp(op) {
		v.diags.ErrorWithHint(v.fn.Name, i,
			fmt.Sprintf("op %q cannot appear in a function body", s.Op),
			"control flow and local/global access are generated by the backend")
		return 0
	}

	imm := op.Immediate()
	literal := imm == wasm.ImmI32 || imm == wasm.ImmI64 || imm == wasm.ImmF32 || imm == wasm.ImmF64
	switch {
	case literal && s.Value == nil:
		v.errorf(i, "%s needs a value", s.Op)
	case !literal && s.Value != nil:
		v.errorf(i, "%s takes no value", s.Op)
	}
	if imm != wasm.ImmMemArg && (s.Offset != 0 || s.Align != 0) {
		v.errorf(i, "offset and align are only valid on loads and stores")
	}
	if literal && s.Value != nil || imm == wasm.ImmMemArg {
		if _, err := s.Instruction(); err != nil {
			v.errorf(i, "%v", err)
		}
	}

	pops, push, _ := op.StackEffect()
	if len(s.Args) != pops {
		v.errorf(i, "%s takes %d argument(s), got %d", s.Op, pops, len(s.Args))
		ok = false
	}
	if ok {
		v.checkOperands(i, op, operands)
	}
	if !push {
		return 0
	}
	if t := op.ResultType(); t != 0 {
		return t
	}
	// select yields the type of its first operand.
	if len(operands) > 0 {
		return operands[0]
	}
	return 0
}

func (v *validator) call(i int, s *Stmt, operands []wasm.ValType, ok bool) wasm.ValType {
	if s.Value != nil || s.Offset != 0 || s.Align != 0 {
		v.errorf(i, "call takes no value, offset or align")
	}
	if s.Func == "" {
		v.errorf(i, "call has no func")
		return 0
	}
	callee, _, found := v.mod.Lookup(s.Func)
	if !found {
		v.errorf(i, "call to undefined function %q", s.Func)
		return 0
	}
	params, result, err := Signature(callee)
	if err != nil {
		// Reported when the callee itself is validated.
		return 0
	}
	if len(s.Args) != len(params) {
		v.errorf(i, "%s takes %d argument(s), got %d", s.Func, len(params), len(s.Args))
		return result
	}
	if ok {
		for k, t := range operands {
			if t != 0 && t != params[k] {
				v.errorf(i, "argument %d of %s: %q is %s, want %s", k, s.Func, s.Args[k], t, params[k])
			}
		}
	}
	return result
}

// operands resolves argument types. ok is false if any is undefined.
func (v *validator) operands(i int, s *Stmt) ([]wasm.ValType, bool) {
	ok := true
	types := make([]wasm.ValType, len(s.Args))
	for k, a := range s.Args {
		t, defined := v.values[a]
		if !defined {
			ok = false
			if v.definedLater(i, a) {
				v.errorf(i, "value %q is used before it is defined", a)
			} else {
				v.errorf(i, "undefined value %q", a)
			}
			continue
		}
		types[k] = t
	}
	return types, ok
}

func (v *validator) definedLater(i int, name string) bool {
	for _, s := range v.fn.Body[i:] {
		if s.Let == name {
			return true
		}
	}
	return false
}

func (v *validator) checkOperands(i int, op wasm.Opcode, types []wasm.ValType) {
	want := make([]wasm.ValType, len(types))
	switch {
	case op == wasm.OpSelect:
		want[0], want[1], want[2] = types[1], types[0], wasm.I32
	case op == wasm.OpDrop:
		return
	case op.IsStore():
		want[0], want[1] = wasm.I32, op.OperandType()
	default:
		for k := range want {
			want[k] = op.OperandType()
		}
	}
	for k, t := range types {
		if want[k] != 0 && t != 0 && t != want[k] {
			v.errorf(i, "operand %d of %s: %q is %s, want %s", k, op, v.fn.Body[i].Args[k], t, want[k])
		}
	}
}

func (v *validator) unknownOp(i int, name string) {
	for _, prefix := range []string{"i32.", "i64.", "f32.", "f64."} {
		if _, ok := wasm.LookupOpcode(prefix + name); ok {
			v.diags.ErrorWithHint(v.fn.Name, i, fmt.Sprintf("unknown op %q", name),
				fmt.Sprintf("did you mean %q?", prefix+name))
			return
		}
	}
	v.errorf(i, "unknown op %q", name)
}

// bodyOp reports whether op may appear as a statement.
func bodyOp(op wasm.Opcode) bool {
	switch op {
	case wasm.OpUnreachable, wasm.OpReturn, wasm.OpElse, wasm.OpEnd:
		return false
	}
	switch op.Immediate() {
	case wasm.ImmNone, wasm.ImmMemArg, wasm.ImmMemory,
		wasm.ImmI32, wasm.ImmI64, wasm.ImmF32, wasm.ImmF64:
		return true
	}
	return false
}
