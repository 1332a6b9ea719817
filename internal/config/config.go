// Package config handles stackgen.toml project configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the project directory.
const FileName = "stackgen.toml"

// Config represents a stackgen.toml project configuration.
type Config struct {
	Module ModuleConfig `toml:"module"`
	Output OutputConfig `toml:"output"`
	Log    LogConfig    `toml:"log"`

	// Dir is the directory the configuration was loaded from (set at load time).
	Dir string `toml:"-"`
}

// ModuleConfig shapes the emitted module.
type ModuleConfig struct {
	MemoryPages  int  `toml:"memory_pages"`
	ExportMemory bool `toml:"export_memory"`
	ExportAll    bool `toml:"export_all"`
}

// OutputConfig controls what build writes.
type OutputConfig struct {
	Dir     string `toml:"dir"`
	Listing bool   `toml:"listing"`
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no stackgen.toml exists.
func Default() *Config {
	return &Config{
		Module: ModuleConfig{MemoryPages: 1, ExportMemory: true},
		Output: OutputConfig{Dir: "."},
		Log:    LogConfig{Level: "info"},
	}
}

// Load parses stackgen.toml from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	cfg := Default()
	cfg.Dir = abs

	path := filepath.Join(abs, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	// Decoding over the defaults keeps values the file leaves out.
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Module.MemoryPages < 0 {
		return fmt.Errorf("module.memory_pages must not be negative, got %d", c.Module.MemoryPages)
	}
	if c.Module.MemoryPages > 65536 {
		return fmt.Errorf("module.memory_pages must be at most 65536, got %d", c.Module.MemoryPages)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// OutputDir returns the absolute output directory.
func (c *Config) OutputDir() string {
	if filepath.IsAbs(c.Output.Dir) {
		return c.Output.Dir
	}
	return filepath.Join(c.Dir, c.Output.Dir)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q (want debug, info, warn or error)", s)
}
