package codebuilder

import "fmt"

// Symbol identifies one named IR value. It is an opaque tag; the builder
// only compares symbols for equality.
type Symbol uint32

// Anonymous tags a simulated stack slot that holds an unnamed value.
const Anonymous Symbol = ^Symbol(0)

func (s Symbol) String() string {
	if s == Anonymous {
		return "_"
	}
	return fmt.Sprintf("s%d", uint32(s))
}

// LocalID is the index of a local in the function being generated.
type LocalID uint32

// StateKind enumerates the lifecycle of a symbol relative to the operand
// stack.
type StateKind uint8

const (
	// NotYetPushed: the value does not exist yet.
	NotYetPushed StateKind = iota

	// Pushed: the value is on the operand stack and has not been consumed.
	Pushed

	// Popped: the value has been pushed and consumed once. Using it again
	// requires a local.tee at the production site.
	Popped
)

func (k StateKind) String() string {
	switch k {
	case NotYetPushed:
		return "NotYetPushed"
	case Pushed:
		return "Pushed"
	case Popped:
		return "Popped"
	default:
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
}

// VMSymbolState is a symbol's relation to the simulated operand stack.
// PushedAt is the buffer position immediately after the instruction that
// produced the value; it is meaningful for Pushed and Popped only.
//
// The lowering pass owns these values and threads them through LoadSymbol.
type VMSymbolState struct {
	Kind     StateKind
	PushedAt int
}

// NotPushedState returns the initial state of every symbol.
func NotPushedState() VMSymbolState {
	return VMSymbolState{Kind: NotYetPushed}
}

// PushedState returns the state of a value produced just before pos.
func PushedState(pos int) VMSymbolState {
	return VMSymbolState{Kind: Pushed, PushedAt: pos}
}

// PoppedState returns the state of a value produced just before pos that
// has since been consumed once.
func PoppedState(pos int) VMSymbolState {
	return VMSymbolState{Kind: Popped, PushedAt: pos}
}

func (s VMSymbolState) String() string {
	if s.Kind == NotYetPushed {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s{pushed_at: %d}", s.Kind, s.PushedAt)
}
