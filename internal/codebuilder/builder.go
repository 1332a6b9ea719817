// Package codebuilder builds the instruction stream of one WebAssembly
// function body while simulating the operand stack.
//
// The lowering pass hands the Builder instructions in target order and
// names the values it will reference again (SetTopSymbol). When a named
// value is needed as an operand, LoadSymbol decides how to surface it:
// for free if it is already on top of the stack, otherwise through a local
// whose local.set or local.tee is spliced in retroactively at the point
// where the value was produced. The splices are kept in a ledger keyed by
// buffer position and merged in by Finalize.
//
// All errors returned by the Builder are internal-consistency defects of
// the caller. After one is returned the Builder refuses further mutation
// until Clear is called.
package codebuilder

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/lhaig/stackgen/internal/wasm"
)

// Builder accumulates the instructions of one function body.
// It is not safe for concurrent use.
type Builder struct {
	// The main container for the instructions
	code []wasm.Instruction

	// Extra instructions to splice in at finalization, keyed by the
	// position of the instruction they must precede
	insertions ledger

	// Simulated operand stack
	stack vmStack

	logger *slog.Logger
	err    error
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger traces every recorded instruction at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		code:   make([]wasm.Instruction, 0, 1024),
		stack:  make(vmStack, 0, 32),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Clear resets the builder for the next function body, keeping its
// allocations.
func (b *Builder) Clear() {
	b.code = b.code[:0]
	b.insertions = b.insertions[:0]
	b.stack = b.stack[:0]
	b.err = nil
}

// Push records a single instruction. Call-family instructions must go
// through PushCall or PushCallIndirect.
func (b *Builder) Push(inst wasm.Instruction) error {
	if err := b.checkUsable(); err != nil {
		return err
	}
	pops, push, err := b.effectOf(inst)
	if err != nil {
		return err
	}
	if !b.stack.record(pops, push) {
		return b.fail(b.newError(ErrCodeStackUnderflow,
			fmt.Sprintf("%s pops %d but stack depth is %d", inst, pops, b.stack.depth()),
			inst.String(), ""))
	}
	b.code = append(b.code, inst)
	b.trace(inst)
	return nil
}

// Extend records several instructions. The stack effect is computed in one
// pass; the first instruction that fails, whether on an unknown stack effect
// or an underflow, is reported exactly as Push would report it, and nothing
// from the batch is recorded.
func (b *Builder) Extend(insts []wasm.Instruction) error {
	if err := b.checkUsable(); err != nil {
		return err
	}
	bt := b.stack.beginBatch()
	for _, inst := range insts {
		pops, push, err := b.effectOf(inst)
		if err != nil {
			return err
		}
		if !bt.add(pops, push) {
			return b.fail(b.newError(ErrCodeStackUnderflow,
				fmt.Sprintf("%s pops %d in batch of %d instructions starting at depth %d",
					inst, pops, len(insts), b.stack.depth()),
				inst.String(), ""))
		}
	}
	b.stack.applyBatch(bt)
	b.code = append(b.code, insts...)
	if b.logger.Enabled(context.Background(), slog.LevelDebug) {
		b.logger.Debug("extend", "count", len(insts), "stack", b.stack.String())
	}
	return nil
}

// PushCall records a direct call to function fn that pops the given number
// of arguments and optionally pushes a result.
func (b *Builder) PushCall(fn uint32, pops int, push bool) error {
	return b.pushCall(wasm.Call(fn), pops, push)
}

// PushCallIndirect records a call_indirect with signature typeIdx. pops
// must include the table index operand.
func (b *Builder) PushCallIndirect(typeIdx uint32, pops int, push bool) error {
	return b.pushCall(wasm.CallIndirect(typeIdx), pops, push)
}

func (b *Builder) pushCall(inst wasm.Instruction, pops int, push bool) error {
	if err := b.checkUsable(); err != nil {
		return err
	}
	depth := b.stack.depth()
	if pops < 0 || pops > depth {
		return b.fail(b.newError(ErrCodeCallArity,
			fmt.Sprintf("%s called with %d arguments but only %d on the stack", inst, pops, depth),
			inst.String(), ""))
	}
	b.stack.record(pops, push)
	b.code = append(b.code, inst)
	b.trace(inst)
	return nil
}

// Finalize returns the function body with all pending insertions merged in.
// The buffer and ledger are consumed; the builder should be cleared before
// it is reused.
func (b *Builder) Finalize() ([]wasm.Instruction, error) {
	return b.FinalizeInto(make([]wasm.Instruction, 0, b.Len()))
}

// FinalizeInto appends the merged function body to dst.
func (b *Builder) FinalizeInto(dst []wasm.Instruction) ([]wasm.Instruction, error) {
	if err := b.checkUsable(); err != nil {
		return dst, err
	}
	start := len(dst)
	out, matched := b.insertions.merge(dst, b.code)
	if matched != len(b.insertions) {
		left := b.insertions[matched]
		err := b.newError(ErrCodeUndrainedLedger,
			fmt.Sprintf("%d insertion(s) never matched; first is %s at position %d of %d",
				len(b.insertions)-matched, left.inst, left.pos, len(b.code)),
			left.inst.String(), "")
		b.code = b.code[:0]
		b.insertions = b.insertions[:0]
		return out[:start], b.fail(err)
	}
	b.code = b.code[:0]
	b.insertions = b.insertions[:0]
	return out, nil
}

// Len is the number of instructions the finalized body will have.
func (b *Builder) Len() int {
	return len(b.code) + len(b.insertions)
}

// Depth is the current depth of the simulated operand stack.
func (b *Builder) Depth() int {
	return b.stack.depth()
}

// Stack returns a copy of the simulated stack, bottom first.
func (b *Builder) Stack() []Symbol {
	out := make([]Symbol, len(b.stack))
	copy(out, b.stack)
	return out
}

// Err returns the failure that aborted the builder, if any.
func (b *Builder) Err() error {
	return b.err
}

// SetTopSymbol names the value on top of the stack. Call it right after
// the instruction that produced a value the lowering pass will reference
// again.
func (b *Builder) SetTopSymbol(sym Symbol) (VMSymbolState, error) {
	if err := b.checkUsable(); err != nil {
		return NotPushedState(), err
	}
	if !b.stack.bindTop(sym) {
		return NotPushedState(), b.fail(b.newError(ErrCodeEmptyStackBind,
			fmt.Sprintf("cannot name %s: nothing on the stack", sym), "", sym.String()))
	}
	return PushedState(len(b.code)), nil
}

// VerifyStackMatch reports whether the top of the stack holds syms, in order.
func (b *Builder) VerifyStackMatch(syms []Symbol) bool {
	return b.stack.matchesTop(syms)
}

// LoadSymbol surfaces a named value as the next operand.
//
// If the value is already on top of the stack no code is generated and the
// returned state is Popped. Otherwise the value is moved into local next:
// a local.set (first reuse) or local.tee (value already consumed once) is
// scheduled where the value was produced, and a local.get is emitted here.
// In that case ok is false: the value now lives in the local, the caller
// must declare it in the function header and use local.get from now on.
func (b *Builder) LoadSymbol(sym Symbol, state VMSymbolState, next LocalID) (VMSymbolState, bool, error) {
	if err := b.checkUsable(); err != nil {
		return state, false, err
	}

	switch state.Kind {
	case Pushed:
		if top, ok := b.stack.top(); ok && top == sym {
			// Already on top: nothing to generate.
			return PoppedState(state.PushedAt), true, nil
		}
		found := b.stack.lastIndex(sym)
		if found < 0 {
			return state, false, b.fail(b.newError(ErrCodeUnresolvedSymbol,
				fmt.Sprintf("%s has state %s but is not on the stack", sym, state), "", sym.String()))
		}
		// The local.set removes the value from the stack at its production site.
		if err := b.insert(state.PushedAt, wasm.LocalSet(uint32(next)), sym); err != nil {
			return state, false, err
		}
		b.stack.removeAt(found)

	case Popped:
		// Second use. The value was consumed already and need not be on the
		// stack; the tee at its production site keeps it there for the first
		// use.
		if err := b.insert(state.PushedAt, wasm.LocalTee(uint32(next)), sym); err != nil {
			return state, false, err
		}

	default:
		return state, false, b.fail(b.newError(ErrCodeSymbolNotPushed,
			fmt.Sprintf("%s has no value yet", sym), "", sym.String()))
	}

	inst := wasm.LocalGet(uint32(next))
	b.code = append(b.code, inst)
	b.stack.push(sym)
	if b.logger.Enabled(context.Background(), slog.LevelDebug) {
		b.logger.Debug("spill", "symbol", sym.String(), "local", uint32(next),
			"production_site", state.PushedAt, "stack", b.stack.String())
	}
	return NotPushedState(), false, nil
}

// insert schedules inst before the instruction at pos. pos may equal the
// buffer length; such an entry is drained only if another instruction is
// recorded afterwards, otherwise Finalize reports UNDRAINED_LEDGER.
// LoadSymbol always follows its insertion with a local.get.
func (b *Builder) insert(pos int, inst wasm.Instruction, sym Symbol) error {
	if pos < 0 || pos > len(b.code) {
		return b.fail(b.newError(ErrCodeLedgerOutOfRange,
			fmt.Sprintf("cannot schedule %s at position %d: buffer has %d instructions", inst, pos, len(b.code)),
			inst.String(), sym.String()))
	}
	if b.insertions.has(pos) {
		return b.fail(b.newError(ErrCodeLedgerConflict,
			fmt.Sprintf("position %d already has an instruction scheduled; cannot add %s", pos, inst),
			inst.String(), sym.String()))
	}
	b.insertions.insert(pos, inst)
	return nil
}

func (b *Builder) effectOf(inst wasm.Instruction) (int, bool, error) {
	pops, push, err := inst.Op.StackEffect()
	if err == nil {
		return pops, push, nil
	}
	code := ErrCodeUnknownOpcode
	if inst.Op == wasm.OpCall || inst.Op == wasm.OpCallIndirect {
		code = ErrCodeVariableArity
	}
	be := b.newError(code, "cannot determine stack effect of "+inst.String(), inst.String(), "")
	be.Err = err
	return 0, false, b.fail(be)
}

func (b *Builder) checkUsable() error {
	if b.err == nil {
		return nil
	}
	return &Error{
		Code:    ErrCodeAborted,
		Message: "builder failed earlier and must be cleared",
		Err:     b.err,
	}
}

func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// newError snapshots the builder state for a diagnostic. The listing is
// merged without draining the buffer or ledger.
func (b *Builder) newError(code ErrorCode, msg, inst, sym string) *Error {
	merged, _ := b.insertions.merge(make([]wasm.Instruction, 0, b.Len()), b.code)
	listing := make([]string, len(merged))
	for i, in := range merged {
		listing[i] = in.String()
	}
	return &Error{
		Code:        code,
		Message:     msg,
		Instruction: inst,
		Symbol:      sym,
		Stack:       b.stack.String(),
		Listing:     listing,
	}
}

func (b *Builder) trace(inst wasm.Instruction) {
	if b.logger.Enabled(context.Background(), slog.LevelDebug) {
		b.logger.Debug("push", "inst", inst.String(), "stack", b.stack.String())
	}
}
