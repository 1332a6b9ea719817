// Package compiler runs the stackgen pipeline: load an IR module, validate
// it, lower and emit WebAssembly, write the artifacts, and optionally
// execute the result.
package compiler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/lhaig/stackgen/internal/config"
	"github.com/lhaig/stackgen/internal/diagnostic"
	"github.com/lhaig/stackgen/internal/ir"
	"github.com/lhaig/stackgen/internal/wasmbe"
)

// Result holds the output of a compilation
type Result struct {
	Module      *ir.Module
	Diagnostics *diagnostic.Diagnostics
	Output      *wasmbe.Output // nil when Diagnostics has errors
}

// Compiler carries the configuration shared by every pipeline step.
type Compiler struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Compiler. A nil config selects the defaults; a nil logger
// discards output.
func New(cfg *config.Config, logger *slog.Logger) *Compiler {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Compiler{cfg: cfg, logger: logger}
}

func (c *Compiler) options() wasmbe.Options {
	return wasmbe.Options{
		MemoryPages:  c.cfg.Module.MemoryPages,
		ExportMemory: c.cfg.Module.ExportMemory,
		ExportAll:    c.cfg.Module.ExportAll,
		Logger:       c.logger,
	}
}

// Compile runs validate -> lower -> emit on a parsed module.
// Validation problems are returned as diagnostics, not as an error.
func (c *Compiler) Compile(mod *ir.Module) (*Result, error) {
	res := &Result{Module: mod, Diagnostics: ir.Validate(mod)}
	if res.Diagnostics.HasErrors() {
		return res, nil
	}
	out, err := wasmbe.Generate(mod, c.options())
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", mod.Name, err)
	}
	res.Output = out
	c.logger.Info("compiled module", "module", mod.Name,
		"functions", len(out.Functions), "bytes", len(out.Binary))
	return res, nil
}

// CompileFile loads a module from a YAML file and compiles it.
func (c *Compiler) CompileFile(path string) (*Result, error) {
	mod, err := ir.Load(path)
	if err != nil {
		return nil, err
	}
	return c.Compile(mod)
}

// Check loads and validates a module without generating code.
func (c *Compiler) Check(path string) (*diagnostic.Diagnostics, error) {
	mod, err := ir.Load(path)
	if err != nil {
		return nil, err
	}
	return ir.Validate(mod), nil
}

// Artifacts lists the files written by Build.
type Artifacts struct {
	WasmPath    string
	ListingPath string // empty unless listings are enabled
}

// Build compiles the module at path, checks that the runtime accepts the
// binary, and writes <module>.wasm (and <module>.lst) to the output dir.
func (c *Compiler) Build(ctx context.Context, path string) (*Result, *Artifacts, error) {
	res, err := c.CompileFile(path)
	if err != nil {
		return nil, nil, err
	}
	if res.Diagnostics.HasErrors() {
		return res, nil, res.Diagnostics.Err(filepath.Base(path))
	}
	if err := Verify(ctx, res.Output.Binary); err != nil {
		return res, nil, err
	}

	dir := c.cfg.OutputDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return res, nil, fmt.Errorf("cannot create output directory: %w", err)
	}
	art := &Artifacts{WasmPath: filepath.Join(dir, baseName(res.Module, path)+".wasm")}
	if err := os.WriteFile(art.WasmPath, res.Output.Binary, 0644); err != nil {
		return res, nil, fmt.Errorf("cannot write %s: %w", art.WasmPath, err)
	}
	if c.cfg.Output.Listing {
		art.ListingPath = strings.TrimSuffix(art.WasmPath, ".wasm") + ".lst"
		if err := os.WriteFile(art.ListingPath, []byte(res.Output.Listing()), 0644); err != nil {
			return res, nil, fmt.Errorf("cannot write %s: %w", art.ListingPath, err)
		}
	}
	c.logger.Info("wrote module", "path", art.WasmPath)
	return res, art, nil
}

func baseName(mod *ir.Module, path string) string {
	if mod.Name != "" {
		return mod.Name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Verify compiles the binary with wazero, which rejects modules that fail
// WebAssembly validation.
func Verify(ctx context.Context, bin []byte) error {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return fmt.Errorf("emitted module is invalid: %w", err)
	}
	return compiled.Close(ctx)
}
