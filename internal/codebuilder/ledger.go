package codebuilder

import (
	"sort"

	"github.com/lhaig/stackgen/internal/wasm"
)

// insertion schedules inst to appear immediately before the instruction at
// buffer position pos.
type insertion struct {
	pos  int
	inst wasm.Instruction
}

// ledger holds insertions sorted by position. Entries are not created in
// order: they appear when a symbol is reused, which can happen long after
// later symbols were produced.
type ledger []insertion

func (l ledger) search(pos int) int {
	return sort.Search(len(l), func(i int) bool { return l[i].pos >= pos })
}

func (l ledger) has(pos int) bool {
	i := l.search(pos)
	return i < len(l) && l[i].pos == pos
}

// insert adds an entry. The caller checks for an existing key first.
func (l *ledger) insert(pos int, inst wasm.Instruction) {
	i := l.search(pos)
	*l = append(*l, insertion{})
	copy((*l)[i+1:], (*l)[i:])
	(*l)[i] = insertion{pos: pos, inst: inst}
}

// merge interleaves code with the ledger entries: the entry anchored at a
// position comes right before the instruction at that position. It returns
// the extended dst and the number of entries that matched.
func (l ledger) merge(dst []wasm.Instruction, code []wasm.Instruction) ([]wasm.Instruction, int) {
	next := 0
	for pos, inst := range code {
		if next < len(l) && l[next].pos == pos {
			dst = append(dst, l[next].inst)
			next++
		}
		dst = append(dst, inst)
	}
	return dst, next
}
