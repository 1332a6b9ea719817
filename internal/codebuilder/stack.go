package codebuilder

import "strings"

// vmStack models the target's operand stack. It holds a tag per slot, never
// runtime values.
type vmStack []Symbol

func (s vmStack) depth() int { return len(s) }

func (s vmStack) top() (Symbol, bool) {
	if len(s) == 0 {
		return Anonymous, false
	}
	return s[len(s)-1], true
}

// record applies an instruction's effect. The stack is unchanged on error.
func (s *vmStack) record(pops int, push bool) bool {
	if pops > len(*s) {
		return false
	}
	*s = (*s)[:len(*s)-pops]
	if push {
		*s = append(*s, Anonymous)
	}
	return true
}

// batchEffect accumulates the net effect of several instructions as the running
// length and the lowest length reached, so that a single check covers the
// whole batch.
type batchEffect struct {
	n   int
	low int
}

func (s vmStack) beginBatch() batchEffect {
	return batchEffect{n: len(s), low: len(s)}
}

// add folds one instruction into the batch. It reports false if the
// instruction would underflow, leaving the batch unchanged.
func (bt *batchEffect) add(pops int, push bool) bool {
	if bt.n-pops < 0 {
		return false
	}
	bt.n -= pops
	if bt.n < bt.low {
		bt.low = bt.n
	}
	if push {
		bt.n++
	}
	return true
}

// applyBatch truncates the stack to the low-water mark and pads it with
// anonymous slots up to the final length. Slots below the mark keep their
// symbols.
func (s *vmStack) applyBatch(bt batchEffect) {
	*s = (*s)[:bt.low]
	for len(*s) < bt.n {
		*s = append(*s, Anonymous)
	}
}

func (s vmStack) bindTop(sym Symbol) bool {
	if len(s) == 0 {
		return false
	}
	s[len(s)-1] = sym
	return true
}

// lastIndex returns the position of the topmost slot tagged sym, or -1.
func (s vmStack) lastIndex(sym Symbol) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == sym {
			return i
		}
	}
	return -1
}

func (s *vmStack) removeAt(i int) {
	*s = append((*s)[:i], (*s)[i+1:]...)
}

func (s *vmStack) push(sym Symbol) {
	*s = append(*s, sym)
}

// matchesTop reports whether the topmost len(syms) slots equal syms in order.
func (s vmStack) matchesTop(syms []Symbol) bool {
	if len(syms) > len(s) {
		return false
	}
	offset := len(s) - len(syms)
	for i, sym := range syms {
		if s[offset+i] != sym {
			return false
		}
	}
	return true
}

func (s vmStack) String() string {
	parts := make([]string, len(s))
	for i, sym := range s {
		parts[i] = sym.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
