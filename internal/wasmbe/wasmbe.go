// Package wasmbe generates a WebAssembly binary module from IR. Each
// function body is lowered through a codebuilder.Builder, which keeps
// values on the operand stack and moves them into locals only when they
// are needed out of order or more than once.
package wasmbe

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lhaig/stackgen/internal/codebuilder"
	"github.com/lhaig/stackgen/internal/ir"
	"github.com/lhaig/stackgen/internal/wasm"
)

// Options shape the emitted module.
type Options struct {
	MemoryPages  int
	ExportMemory bool
	ExportAll    bool
	Logger       *slog.Logger
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{MemoryPages: 1, ExportMemory: true}
}

// Output is an emitted module plus a readable listing of every function.
type Output struct {
	Binary    []byte
	Functions []*FunctionListing
}

// Listing renders all functions, separated by blank lines.
func (o *Output) Listing() string {
	parts := make([]string, len(o.Functions))
	for i, fn := range o.Functions {
		parts[i] = fn.String()
	}
	return strings.Join(parts, "\n")
}

// FunctionListing describes one emitted function.
type FunctionListing struct {
	*LoweredFunction
	TypeIndex uint32
	Exported  bool
	CodeSize  int // encoded body size in bytes, locals included
}

// String renders the function header, its declared locals and its body.
func (f *FunctionListing) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func[%d] %s (type %d)", f.Index, f.Name, f.TypeIndex)
	if f.Exported {
		fmt.Fprintf(&sb, " (export %q)", f.Name)
	}
	sb.WriteByte('\n')

	var sig []string
	if len(f.Params) > 0 {
		sig = append(sig, "(param "+joinTypes(f.Params)+")")
	}
	if f.Result != 0 {
		sig = append(sig, "(result "+f.Result.String()+")")
	}
	if len(sig) > 0 {
		sb.WriteString("  " + strings.Join(sig, " ") + "\n")
	}
	if len(f.Locals) > 0 {
		sb.WriteString("  (local " + joinTypes(f.Locals) + ")\n")
	}
	sb.WriteString(wasm.Listing(f.Body))
	return sb.String()
}

func joinTypes(types []wasm.ValType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// Generate lowers and encodes a validated module.
func Generate(mod *ir.Module, opts Options) (*Output, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	g := newGenerator(opts)
	b := codebuilder.New(codebuilder.WithLogger(logger))
	out := &Output{}
	for _, fn := range mod.Functions {
		lf, err := Lower(mod, fn, b, logger)
		if err != nil {
			return nil, err
		}
		listing, err := g.addFunction(lf, fn.Export || opts.ExportAll)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		out.Functions = append(out.Functions, listing)
		logger.Debug("function emitted", "function", fn.Name, "instructions", len(lf.Body),
			"locals", len(lf.Locals), "bytes", listing.CodeSize)
	}

	bin, err := g.emit()
	if err != nil {
		return nil, err
	}
	out.Binary = bin
	return out, nil
}

// funcSig represents a WASM function type signature.
type funcSig struct {
	params  []wasm.ValType
	results []wasm.ValType
}

type wasmExport struct {
	name  string
	kind  byte
	index uint32
}

// generator builds a WASM binary module.
type generator struct {
	opts      Options
	types     []funcSig         // type section entries
	typeCache map[string]uint32 // sig string -> type index
	funcs     []uint32          // function section: type index per function
	exports   []wasmExport      // export section entries
	codes     [][]byte          // code section: encoded function bodies
}

func newGenerator(opts Options) *generator {
	return &generator{
		opts:      opts,
		typeCache: make(map[string]uint32),
	}
}

// typeIndex returns the type section index for a given signature, adding it if new.
func (g *generator) typeIndex(params, results []wasm.ValType) uint32 {
	key := sigKey(params, results)
	if idx, ok := g.typeCache[key]; ok {
		return idx
	}
	idx := uint32(len(g.types))
	g.types = append(g.types, funcSig{params: params, results: results})
	g.typeCache[key] = idx
	return idx
}

func sigKey(params, results []wasm.ValType) string {
	return joinTypes(params) + "|" + joinTypes(results)
}

func (g *generator) addFunction(lf *LoweredFunction, export bool) (*FunctionListing, error) {
	var results []wasm.ValType
	if lf.Result != 0 {
		results = []wasm.ValType{lf.Result}
	}
	tidx := g.typeIndex(lf.Params, results)
	if int(lf.Index) != len(g.funcs) {
		return nil, fmt.Errorf("function index %d out of order, expected %d", lf.Index, len(g.funcs))
	}
	g.funcs = append(g.funcs, tidx)

	if export {
		if lf.Name == "memory" && g.opts.ExportMemory {
			return nil, fmt.Errorf("export name %q clashes with the exported memory", lf.Name)
		}
		g.exports = append(g.exports, wasmExport{name: lf.Name, kind: wasm.ExportFunc, index: lf.Index})
	}

	code, err := encodeBody(lf)
	if err != nil {
		return nil, err
	}
	g.codes = append(g.codes, code)
	return &FunctionListing{LoweredFunction: lf, TypeIndex: tidx, Exported: export, CodeSize: len(code)}, nil
}

// encodeBody writes the locals declaration followed by the instructions.
func encodeBody(lf *LoweredFunction) ([]byte, error) {
	groups := compactLocals(lf.Locals)
	body := wasm.EncodeLEB128U(uint64(len(groups)))
	for _, grp := range groups {
		body = wasm.AppendLEB128U(body, uint64(grp.count))
		body = append(body, byte(grp.vtype))
	}
	for _, inst := range lf.Body {
		var err error
		if body, err = wasm.AppendInstruction(body, inst); err != nil {
			return nil, err
		}
	}
	return body, nil
}

type localGroup struct {
	count int
	vtype wasm.ValType
}

// compactLocals groups consecutive same-type locals for the run-length
// encoded declaration.
func compactLocals(types []wasm.ValType) []localGroup {
	if len(types) == 0 {
		return nil
	}
	var groups []localGroup
	current := localGroup{count: 1, vtype: types[0]}
	for i := 1; i < len(types); i++ {
		if types[i] == current.vtype {
			current.count++
		} else {
			groups = append(groups, current)
			current = localGroup{count: 1, vtype: types[i]}
		}
	}
	groups = append(groups, current)
	return groups
}

// emit produces the complete WASM binary.
func (g *generator) emit() ([]byte, error) {
	if g.opts.MemoryPages < 0 {
		return nil, fmt.Errorf("negative memory size %d", g.opts.MemoryPages)
	}
	var out []byte
	out = append(out, wasm.Magic...)
	out = append(out, wasm.Version...)
	out = append(out, g.emitTypeSection()...)
	out = append(out, g.emitFunctionSection()...)
	out = append(out, g.emitMemorySection()...)
	out = append(out, g.emitExportSection()...)
	out = append(out, g.emitCodeSection()...)
	return out, nil
}

func (g *generator) emitTypeSection() []byte {
	var contents []byte
	for _, sig := range g.types {
		contents = append(contents, wasm.FuncTypeTag)
		contents = wasm.AppendLEB128U(contents, uint64(len(sig.params)))
		for _, p := range sig.params {
			contents = append(contents, byte(p))
		}
		contents = wasm.AppendLEB128U(contents, uint64(len(sig.results)))
		for _, r := range sig.results {
			contents = append(contents, byte(r))
		}
	}
	return wasm.EncodeSection(wasm.SectionType, wasm.EncodeVector(len(g.types), contents))
}

func (g *generator) emitFunctionSection() []byte {
	var contents []byte
	for _, tidx := range g.funcs {
		contents = wasm.AppendLEB128U(contents, uint64(tidx))
	}
	return wasm.EncodeSection(wasm.SectionFunction, wasm.EncodeVector(len(g.funcs), contents))
}

func (g *generator) emitMemorySection() []byte {
	// limits: flags=0 (no max), min=pages
	contents := []byte{0x00}
	contents = wasm.AppendLEB128U(contents, uint64(g.opts.MemoryPages))
	return wasm.EncodeSection(wasm.SectionMemory, wasm.EncodeVector(1, contents))
}

func (g *generator) emitExportSection() []byte {
	var contents []byte
	count := len(g.exports)
	for _, exp := range g.exports {
		contents = append(contents, wasm.EncodeString(exp.name)...)
		contents = append(contents, exp.kind)
		contents = wasm.AppendLEB128U(contents, uint64(exp.index))
	}
	if g.opts.ExportMemory {
		contents = append(contents, wasm.EncodeString("memory")...)
		contents = append(contents, wasm.ExportMemory)
		contents = wasm.AppendLEB128U(contents, 0) // memory index 0
		count++
	}
	return wasm.EncodeSection(wasm.SectionExport, wasm.EncodeVector(count, contents))
}

func (g *generator) emitCodeSection() []byte {
	var contents []byte
	for _, code := range g.codes {
		// Each function body is prefixed with its byte length
		contents = wasm.AppendLEB128U(contents, uint64(len(code)))
		contents = append(contents, code...)
	}
	return wasm.EncodeSection(wasm.SectionCode, wasm.EncodeVector(len(g.codes), contents))
}
