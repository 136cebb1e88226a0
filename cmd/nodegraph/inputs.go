package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/gogpu/nodegraph/interpreter"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/script"
	"github.com/gogpu/nodegraph/types"
)

func parseCachePolicy(s string) (interpreter.CachePolicy, error) {
	for _, p := range []interpreter.CachePolicy{
		interpreter.CacheInputIndependent,
		interpreter.CacheNone,
		interpreter.CacheAll,
	} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown cache policy %q", s)
}

// parseInput reads a single value, a comma-separated list or an integer
// range lo:hi (hi exclusive). Lists and ranges become a slice, which the
// backends evaluate elementwise.
func parseInput(s, typeName string) (runtime.Any, error) {
	t, ok := script.Types[typeName]
	if !ok {
		return runtime.Any{}, fmt.Errorf("unknown type %q", typeName)
	}

	var fields []string
	if lo, hi, isRange := strings.Cut(s, ":"); isRange {
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return runtime.Any{}, fmt.Errorf("range start: %w", err)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return runtime.Any{}, fmt.Errorf("range end: %w", err)
		}
		if to < from {
			return runtime.Any{}, fmt.Errorf("empty range %d:%d", from, to)
		}
		for i := from; i < to; i++ {
			fields = append(fields, strconv.Itoa(i))
		}
	} else {
		fields = strings.Split(s, ",")
	}

	values := make([]types.Value, len(fields))
	for i, f := range fields {
		v, ok := types.FromPrimitiveString(f, t)
		if !ok {
			return runtime.Any{}, fmt.Errorf("cannot parse %q as %s", strings.TrimSpace(f), t)
		}
		values[i] = v
	}
	if len(values) == 1 && !strings.Contains(s, ":") && !strings.Contains(s, ",") {
		return runtime.FromValue(values[0]), nil
	}

	slice := reflect.MakeSlice(reflect.SliceOf(t.Reflect()), len(values), len(values))
	for i, v := range values {
		slice.Index(i).Set(reflect.ValueOf(v.Interface()))
	}
	return runtime.FromReflect(slice), nil
}
