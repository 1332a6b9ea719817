package compiler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Run instantiates bin and calls the exported function fn. Arguments are
// parsed according to the function's parameter types and results are
// rendered as text.
func Run(ctx context.Context, bin []byte, fn string, args []string) ([]string, error) {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("no exported function %q", fn)
	}

	def := f.Definition()
	paramTypes := def.ParamTypes()
	if len(args) != len(paramTypes) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", fn, len(paramTypes), len(args))
	}
	params := make([]uint64, len(args))
	for i, a := range args {
		v, err := encodeArg(paramTypes[i], a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		params[i] = v
	}

	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", fn, err)
	}
	out := make([]string, len(results))
	for i, t := range def.ResultTypes() {
		out[i] = decodeResult(t, results[i])
	}
	return out, nil
}

func encodeArg(t api.ValueType, s string) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid i32 %q", s)
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid i64 %q", s)
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid f32 %q", s)
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid f64 %q", s)
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
}

func decodeResult(t api.ValueType, v uint64) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	}
	return fmt.Sprintf("%#x", v)
}
