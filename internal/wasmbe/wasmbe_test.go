package wasmbe

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/stackgen/internal/codebuilder"
	"github.com/lhaig/stackgen/internal/ir"
	"github.com/lhaig/stackgen/internal/wasm"
)

func loadFixture(t *testing.T, name string) *ir.Module {
	t.Helper()
	mod, err := ir.Load(filepath.Join("testdata", name+".yaml"))
	require.NoError(t, err)
	diags := ir.Validate(mod)
	require.False(t, diags.HasErrors(), diags.Format(name))
	return mod
}

func generate(t *testing.T, mod *ir.Module, opts Options) *Output {
	t.Helper()
	out, err := Generate(mod, opts)
	require.NoError(t, err)
	return out
}

func TestGenerateGoldenListings(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, name := range []string{"arith", "reuse", "memory"} {
		t.Run(name, func(t *testing.T) {
			out := generate(t, loadFixture(t, name), DefaultOptions())
			g.Assert(t, name, []byte(out.Listing()))
		})
	}
}

func TestWasmMagicAndVersion(t *testing.T) {
	out := generate(t, loadFixture(t, "arith"), DefaultOptions())
	require.Greater(t, len(out.Binary), 8)
	assert.Equal(t, wasm.Magic, out.Binary[0:4])
	assert.Equal(t, wasm.Version, out.Binary[4:8])
}

func TestWasmSections(t *testing.T) {
	out := generate(t, loadFixture(t, "arith"), DefaultOptions())
	sections := parseSections(out.Binary[8:])

	ids := make([]byte, len(sections))
	for i, s := range sections {
		ids[i] = s.id
	}
	assert.Equal(t, []byte{
		wasm.SectionType, wasm.SectionFunction, wasm.SectionMemory, wasm.SectionExport, wasm.SectionCode,
	}, ids)

	// (i32) -> () and (i32, i32) -> i32
	assert.Equal(t, []byte{
		0x02,
		0x60, 0x01, 0x7F, 0x00,
		0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F,
	}, sections[0].data)
	assert.Equal(t, []byte{0x02, 0x00, 0x01}, sections[1].data)
	assert.Equal(t, []byte{0x01, 0x00, 0x01}, sections[2].data)
}

func TestTypeSectionDeduplicates(t *testing.T) {
	mod := &ir.Module{
		Name: "dedupe",
		Functions: []*ir.Function{
			{Name: "a", Params: []ir.Param{{Name: "x", Type: "i64"}}, Result: "i64", Return: "x"},
			{Name: "b", Params: []ir.Param{{Name: "y", Type: "i64"}}, Result: "i64", Return: "y"},
			{Name: "c"},
		},
	}
	require.False(t, ir.Validate(mod).HasErrors())
	out := generate(t, mod, DefaultOptions())

	sections := parseSections(out.Binary[8:])
	types := sections[0].data
	count, _ := decodeLEB128U(types)
	assert.Equal(t, uint64(2), count)

	require.Len(t, out.Functions, 3)
	assert.Equal(t, uint32(0), out.Functions[0].TypeIndex)
	assert.Equal(t, uint32(0), out.Functions[1].TypeIndex)
	assert.Equal(t, uint32(1), out.Functions[2].TypeIndex)
}

func TestExportSection(t *testing.T) {
	mod := loadFixture(t, "arith")

	tests := []struct {
		name string
		opts Options
		want [][]byte
	}{
		{
			name: "defaults",
			opts: DefaultOptions(),
			want: [][]byte{[]byte("diff"), []byte("memory")},
		},
		{
			name: "export all without memory",
			opts: Options{MemoryPages: 1, ExportAll: true},
			want: [][]byte{[]byte("log"), []byte("diff")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := generate(t, mod, tt.opts)
			exports := parseSections(out.Binary[8:])[3]
			count, _ := decodeLEB128U(exports.data)
			assert.Equal(t, uint64(len(tt.want)), count)
			for _, name := range tt.want {
				assert.True(t, bytes.Contains(exports.data, name), "missing export %s", name)
			}
			if !tt.opts.ExportMemory {
				assert.False(t, bytes.Contains(exports.data, []byte("memory")))
			}
		})
	}
}

func TestExportNameClash(t *testing.T) {
	mod := &ir.Module{Name: "m", Functions: []*ir.Function{{Name: "memory", Export: true}}}
	_, err := Generate(mod, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clashes")
}

func TestMemoryPages(t *testing.T) {
	out := generate(t, loadFixture(t, "arith"), Options{MemoryPages: 200, ExportMemory: true})
	mem := parseSections(out.Binary[8:])[2]
	// one memory, no max, LEB128(200)
	assert.Equal(t, []byte{0x01, 0x00, 0xC8, 0x01}, mem.data)

	_, err := Generate(loadFixture(t, "arith"), Options{MemoryPages: -1})
	assert.Error(t, err)
}

func TestCodeSectionBody(t *testing.T) {
	out := generate(t, loadFixture(t, "reuse"), DefaultOptions())
	code := parseSections(out.Binary[8:])[4].data

	count, n := decodeLEB128U(code)
	require.Equal(t, uint64(2), count)
	size, m := decodeLEB128U(code[n:])
	body := code[n+m : n+m+int(size)]

	// square: no locals; local.get 0, local.get 0, i64.mul, end
	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0x20, 0x00, 0x7E, 0x0B}, body)
	assert.Equal(t, len(body), out.Functions[0].CodeSize)

	// twice declares one group of two i32 locals
	rest := code[n+m+int(size):]
	_, k := decodeLEB128U(rest)
	assert.Equal(t, []byte{0x01, 0x02, 0x7F}, rest[k:k+3])
}

func TestCompactLocals(t *testing.T) {
	assert.Nil(t, compactLocals(nil))
	assert.Equal(t, []localGroup{
		{count: 2, vtype: wasm.I32},
		{count: 1, vtype: wasm.F64},
		{count: 1, vtype: wasm.I32},
	}, compactLocals([]wasm.ValType{wasm.I32, wasm.I32, wasm.F64, wasm.I32}))
}

func TestLowerDropsUnusedValues(t *testing.T) {
	mod := &ir.Module{
		Name: "m",
		Functions: []*ir.Function{{
			Name: "f",
			Body: []*ir.Stmt{
				{Let: "a", Op: "i32.const", Value: &ir.Literal{Text: "1"}},
				{Op: "i64.const", Value: &ir.Literal{Text: "2"}},
			},
		}},
	}
	require.False(t, ir.Validate(mod).HasErrors())

	lf, err := Lower(mod, mod.Functions[0], codebuilder.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []wasm.Instruction{
		wasm.I32Const(1), wasm.Drop(),
		wasm.I64Const(2), wasm.Drop(),
		wasm.End(),
	}, lf.Body)
	assert.Empty(t, lf.Locals)
}

func TestLowerParamsAreReadFromLocals(t *testing.T) {
	mod := &ir.Module{
		Name: "m",
		Functions: []*ir.Function{{
			Name:   "id",
			Params: []ir.Param{{Name: "p", Type: "f32"}},
			Result: "f32",
			Return: "p",
		}},
	}
	require.False(t, ir.Validate(mod).HasErrors())

	lf, err := Lower(mod, mod.Functions[0], codebuilder.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []wasm.Instruction{wasm.LocalGet(0), wasm.End()}, lf.Body)
	assert.Equal(t, []wasm.ValType{wasm.F32}, lf.Params)
	assert.Equal(t, wasm.F32, lf.Result)
}

func TestLowerSharesBuilderAcrossFunctions(t *testing.T) {
	mod := loadFixture(t, "reuse")
	b := codebuilder.New()

	first, err := Lower(mod, mod.Functions[1], b, nil)
	require.NoError(t, err)
	second, err := Lower(mod, mod.Functions[1], b, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.Locals, second.Locals)
}

func TestLowerSurfacesBuilderErrors(t *testing.T) {
	// Not validated: i32.add with one argument underflows the simulated stack.
	mod := &ir.Module{
		Name: "bad",
		Functions: []*ir.Function{{
			Name:   "f",
			Params: []ir.Param{{Name: "x", Type: "i32"}},
			Body:   []*ir.Stmt{{Let: "y", Op: "i32.add", Args: []string{"x"}, Type: wasm.I32}},
		}},
	}
	_, err := Lower(mod, mod.Functions[0], codebuilder.New(), nil)
	require.Error(t, err)
	assert.True(t, codebuilder.IsCode(err, codebuilder.ErrCodeStackUnderflow), err.Error())
	assert.Contains(t, err.Error(), "function f: statement 0 (i32.add)")
}

func TestLowerUndefinedReturn(t *testing.T) {
	// Not validated: a result that is declared but never returned.
	mod := &ir.Module{
		Name: "bad",
		Functions: []*ir.Function{{
			Name:   "f",
			Params: []ir.Param{{Name: "x", Type: "i32"}},
			Result: "i32",
			Return: "nope",
		}},
	}
	_, err := Lower(mod, mod.Functions[0], codebuilder.New(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undefined value "nope"`)
}

func TestGenerateLogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := DefaultOptions()
	opts.Logger = logger

	generate(t, loadFixture(t, "arith"), opts)
	out := buf.String()
	assert.Contains(t, out, "msg=spill")
	assert.Contains(t, out, `msg="value moved to local"`)
	assert.Contains(t, out, `msg="function emitted" function=diff`)
}

// --- Helpers ---

type section struct {
	id   byte
	data []byte
}

func parseSections(data []byte) []section {
	var sections []section
	i := 0
	for i < len(data) {
		id := data[i]
		i++
		size, n := decodeLEB128U(data[i:])
		i += n
		if i+int(size) > len(data) {
			break
		}
		sections = append(sections, section{id: id, data: data[i : i+int(size)]})
		i += int(size)
	}
	return sections
}

func decodeLEB128U(data []byte) (uint64, int) {
	var result uint64
	var shift uint
	for i := 0; i < len(data); i++ {
		b := data[i]
		result |= uint64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			return result, i + 1
		}
	}
	return result, len(data)
}
