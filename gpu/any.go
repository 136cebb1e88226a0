package gpu

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/runtime"
)

// ErrElementType is returned by ExecuteAny when the input slice does not
// hold the element type the kernel was compiled for.
var ErrElementType = errors.New("gpu: input element type does not match kernel")

// ExecuteAny runs shader on a boxed []uint32, []int32 or []float32 and
// returns the result boxed as the same slice type. Elements travel as
// their 32-bit patterns, so the slice must hold the kernel's input type.
func (e *Executor) ExecuteAny(shader *codegen.Shader, in runtime.Any) (runtime.Any, error) {
	if err := checkElementType(shader, in); err != nil {
		return runtime.Any{}, err
	}
	switch v := in.Interface().(type) {
	case []uint32:
		out, err := e.Execute(shader, v)
		if err != nil {
			return runtime.Any{}, err
		}
		return runtime.Box(out), nil
	case []int32:
		words := make([]uint32, len(v))
		for i, x := range v {
			words[i] = uint32(x) //nolint:gosec // bit pattern
		}
		out, err := e.Execute(shader, words)
		if err != nil {
			return runtime.Any{}, err
		}
		res := make([]int32, len(out))
		for i, w := range out {
			res[i] = int32(w) //nolint:gosec // bit pattern
		}
		return runtime.Box(res), nil
	case []float32:
		words := make([]uint32, len(v))
		for i, x := range v {
			words[i] = math.Float32bits(x)
		}
		out, err := e.Execute(shader, words)
		if err != nil {
			return runtime.Any{}, err
		}
		res := make([]float32, len(out))
		for i, w := range out {
			res[i] = math.Float32frombits(w)
		}
		return runtime.Box(res), nil
	}
	return runtime.Any{}, fmt.Errorf("%w: cannot dispatch %v", ErrUnsupportedLayout, in.Tag())
}

func checkElementType(shader *codegen.Shader, in runtime.Any) error {
	tag := in.Tag()
	if tag == nil || tag.Kind() != reflect.Slice {
		return fmt.Errorf("%w: cannot dispatch %v", ErrUnsupportedLayout, tag)
	}
	elem, ok := ElementType(tag.Elem().String())
	if !ok {
		return fmt.Errorf("%w: cannot dispatch %v", ErrUnsupportedLayout, tag)
	}
	inputs := shader.IO.NetworkInputs()
	if len(inputs) == 0 {
		return fmt.Errorf("%w: kernel has no input", ErrUnsupportedLayout)
	}
	if want := inputs[0].Type; elem != want {
		return fmt.Errorf("%w: got %v, kernel reads %s", ErrElementType, tag, want)
	}
	return nil
}

// ElementType returns the WGSL scalar for a Go element type name, and
// whether the GPU backend supports it.
func ElementType(goType string) (string, bool) {
	switch goType {
	case "uint32":
		return "u32", true
	case "int32":
		return "i32", true
	case "float32":
		return "f32", true
	}
	return "", false
}
