package codebuilder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes builder failures. Every code denotes a defect in
// the caller's lowering logic, not a problem with the user's program.
type ErrorCode string

const (
	// ErrCodeStackUnderflow: an instruction pops more values than the
	// simulated stack holds.
	ErrCodeStackUnderflow ErrorCode = "STACK_UNDERFLOW"

	// ErrCodeVariableArity: a call-family instruction went through Push or
	// Extend instead of PushCall.
	ErrCodeVariableArity ErrorCode = "VARIABLE_ARITY"

	// ErrCodeUnknownOpcode: the instruction is outside the opcode table.
	ErrCodeUnknownOpcode ErrorCode = "UNKNOWN_OPCODE"

	// ErrCodeCallArity: a call consumes more arguments than are on the stack.
	ErrCodeCallArity ErrorCode = "CALL_ARITY"

	// ErrCodeEmptyStackBind: SetTopSymbol with nothing on the stack.
	ErrCodeEmptyStackBind ErrorCode = "EMPTY_STACK_BIND"

	// ErrCodeSymbolNotPushed: a symbol was loaded before it was produced.
	ErrCodeSymbolNotPushed ErrorCode = "SYMBOL_NOT_PUSHED"

	// ErrCodeUnresolvedSymbol: a symbol claimed to be on the stack is not.
	ErrCodeUnresolvedSymbol ErrorCode = "UNRESOLVED_SYMBOL"

	// ErrCodeLedgerConflict: a production site already has an instruction
	// scheduled before it.
	ErrCodeLedgerConflict ErrorCode = "LEDGER_CONFLICT"

	// ErrCodeLedgerOutOfRange: an insertion refers to a position the buffer
	// has not reached.
	ErrCodeLedgerOutOfRange ErrorCode = "LEDGER_OUT_OF_RANGE"

	// ErrCodeUndrainedLedger: finalization left insertions unmatched.
	ErrCodeUndrainedLedger ErrorCode = "UNDRAINED_LEDGER"

	// ErrCodeAborted: the builder already failed and must be cleared.
	ErrCodeAborted ErrorCode = "ABORTED"
)

// Error is an internal-consistency failure detected by the Builder. It
// carries a snapshot of the simulated stack and of the instructions
// emitted so far, since the root cause usually lies several steps before
// the point of detection.
type Error struct {
	Code        ErrorCode
	Message     string
	Instruction string   // offending instruction, if any
	Symbol      string   // offending symbol, if any
	Stack       string   // simulated operand stack, bottom first
	Listing     []string // buffered instructions with pending insertions merged
	Err         error    // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Code, e.Message)
	if e.Stack != "" {
		fmt.Fprintf(&sb, " (stack=%s)", e.Stack)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dump returns a multi-line diagnostic including the instruction listing.
func (e *Error) Dump() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	if e.Instruction != "" {
		fmt.Fprintf(&sb, "\ninstruction: %s", e.Instruction)
	}
	if e.Symbol != "" {
		fmt.Fprintf(&sb, "\nsymbol: %s", e.Symbol)
	}
	if len(e.Listing) > 0 {
		sb.WriteString("\ncode:")
		for i, line := range e.Listing {
			fmt.Fprintf(&sb, "\n  %4d  %s", i, line)
		}
	}
	return sb.String()
}

// IsCode reports whether err is, or wraps, a builder Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
