package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/stackgen/internal/config"
	"github.com/lhaig/stackgen/internal/ir"
)

func fixture(name string) string {
	return filepath.Join("testdata", name+".yaml")
}

func compileFixture(t *testing.T, name string) []byte {
	t.Helper()
	res, err := New(nil, nil).CompileFile(fixture(name))
	require.NoError(t, err)
	require.False(t, res.Diagnostics.HasErrors(), res.Diagnostics.Format(name))
	require.NotNil(t, res.Output)
	return res.Output.Binary
}

func TestCompileValidModule(t *testing.T) {
	res, err := New(nil, nil).CompileFile(fixture("arith"))
	require.NoError(t, err)
	assert.False(t, res.Diagnostics.HasErrors())
	require.NotNil(t, res.Output)
	assert.Len(t, res.Output.Functions, 2)
	assert.Equal(t, "arith", res.Module.Name)
}

func TestCompileValidationErrors(t *testing.T) {
	mod, err := ir.Parse([]byte("name: m\nfunctions: [{name: f, body: [{op: i32.addd}]}]"))
	require.NoError(t, err)

	res, err := New(nil, nil).Compile(mod)
	require.NoError(t, err)
	assert.True(t, res.Diagnostics.HasErrors())
	assert.Nil(t, res.Output)
}

func TestCompileFileErrors(t *testing.T) {
	_, err := New(nil, nil).CompileFile(fixture("missing"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: [unclosed"), 0644))
	_, err = New(nil, nil).CompileFile(bad)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	diags, err := New(nil, nil).Check(fixture("memory"))
	require.NoError(t, err)
	assert.False(t, diags.HasErrors())
	// "unused" in store_and_load
	assert.Equal(t, 1, diags.WarningCount())
}

func TestBuildWritesArtifacts(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.Output.Dir = "out"
	cfg.Output.Listing = true

	res, art, err := New(cfg, nil).Build(context.Background(), fixture("reuse"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Dir, "out", "reuse.wasm"), art.WasmPath)
	assert.Equal(t, filepath.Join(cfg.Dir, "out", "reuse.lst"), art.ListingPath)

	bin, err := os.ReadFile(art.WasmPath)
	require.NoError(t, err)
	assert.Equal(t, res.Output.Binary, bin)

	listing, err := os.ReadFile(art.ListingPath)
	require.NoError(t, err)
	assert.Equal(t, res.Output.Listing(), string(listing))
}

func TestBuildWithoutListing(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()

	_, art, err := New(cfg, nil).Build(context.Background(), fixture("arith"))
	require.NoError(t, err)
	assert.Empty(t, art.ListingPath)
	assert.FileExists(t, art.WasmPath)
}

func TestBuildReportsDiagnostics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: broken\nfunctions: [{name: f, result: i32}]"), 0644))

	cfg := config.Default()
	cfg.Dir = t.TempDir()
	res, art, err := New(cfg, nil).Build(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, art)
	assert.True(t, res.Diagnostics.HasErrors())
	assert.Contains(t, err.Error(), "broken.yaml: 1 error(s)")
	assert.NoFileExists(t, filepath.Join(cfg.Dir, "broken.wasm"))
}

func TestVerifyRejectsInvalidBinary(t *testing.T) {
	err := Verify(context.Background(), []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x01})
	assert.Error(t, err)
}

func TestEmittedModulesValidate(t *testing.T) {
	for _, name := range []string{"arith", "reuse", "memory", "squares"} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Verify(context.Background(), compileFixture(t, name)))
		})
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		module string
		fn     string
		args   []string
		want   []string
	}{
		{"arith", "diff", []string{"5", "7"}, []string{"2"}},
		{"arith", "diff", []string{"0", "0"}, []string{"-10"}},
		{"reuse", "square", []string{"-9"}, []string{"81"}},
		{"reuse", "twice", []string{"5"}, []string{"30"}},
		{"memory", "store_and_load", []string{"0", "41"}, []string{"42"}},
		{"memory", "bump", []string{"16"}, []string{"42"}},
		{"memory", "pick", []string{"1"}, []string{"1.5"}},
		{"memory", "pick", []string{"0"}, []string{"-2.25"}},
		{"squares", "diff_of_squares", []string{"7", "3"}, []string{"80"}},
		{"squares", "halve", []string{"5"}, []string{"2.5"}},
		{"squares", "widen", []string{"-1"}, []string{"8589934591"}},
	}
	for _, tt := range tests {
		t.Run(tt.module+"/"+tt.fn, func(t *testing.T) {
			got, err := Run(context.Background(), compileFixture(t, tt.module), tt.fn, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunErrors(t *testing.T) {
	bin := compileFixture(t, "arith")
	ctx := context.Background()

	_, err := Run(ctx, bin, "log", []string{"1"})
	assert.ErrorContains(t, err, `no exported function "log"`)

	_, err = Run(ctx, bin, "diff", []string{"1"})
	assert.ErrorContains(t, err, "takes 2 argument(s), got 1")

	_, err = Run(ctx, bin, "diff", []string{"1", "one"})
	assert.ErrorContains(t, err, `invalid i32 "one"`)
}

func TestExportAllFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Module.ExportAll = true
	res, err := New(cfg, nil).CompileFile(fixture("arith"))
	require.NoError(t, err)

	got, err := Run(context.Background(), res.Output.Binary, "log", []string{"3"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
