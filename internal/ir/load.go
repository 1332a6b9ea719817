package ir

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a module from a YAML file.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module file: %w", err)
	}
	mod, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}

// Parse decodes a module from YAML. Unknown fields are rejected.
func Parse(data []byte) (*Module, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var mod Module
	if err := decoder.Decode(&mod); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty module file")
		}
		return nil, fmt.Errorf("failed to parse module YAML: %w", err)
	}
	return &mod, nil
}
