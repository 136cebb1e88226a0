package nodegraph

import (
	"fmt"
	"reflect"

	"github.com/gogpu/nodegraph/interpreter"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
)

type cpuBackend struct{}

func (cpuBackend) Name() string { return BackendCPU }

func (cpuBackend) Prepare(reg *registry.Registry, net *proto.Network, cfg Config) (Program, error) {
	e, err := interpreter.New(reg, net, interpreter.WithCachePolicy(cfg.CachePolicy))
	if err != nil {
		return nil, err
	}
	return &cpuProgram{exec: e}, nil
}

type cpuProgram struct {
	exec *interpreter.Executor
}

// Run evaluates the network once, or once per element when the single
// input is a slice of the network's input type.
func (p *cpuProgram) Run(inputs ...runtime.Any) (runtime.Any, error) {
	if p.batched(inputs) {
		return p.runBatch(inputs[0])
	}
	return p.exec.Execute(inputs...)
}

func (p *cpuProgram) batched(inputs []runtime.Any) bool {
	types := p.exec.InputTypes()
	if len(inputs) != 1 || len(types) != 1 || inputs[0].Tag() == nil {
		return false
	}
	tag := inputs[0].Tag()
	want := types[0].Reflect()
	return want != nil && tag.Kind() == reflect.Slice && tag.Elem() == want
}

func (p *cpuProgram) runBatch(in runtime.Any) (runtime.Any, error) {
	src := reflect.ValueOf(in.Interface())
	outType := p.exec.OutputType().Reflect()
	if outType == nil {
		return runtime.Any{}, fmt.Errorf("%w: output type %s is not concrete", interpreter.ErrOutputType, p.exec.OutputType())
	}
	dst := reflect.MakeSlice(reflect.SliceOf(outType), src.Len(), src.Len())
	for i := range src.Len() {
		out, err := p.exec.Execute(runtime.FromReflect(src.Index(i)))
		if err != nil {
			return runtime.Any{}, fmt.Errorf("element %d: %w", i, err)
		}
		dst.Index(i).Set(reflect.ValueOf(out.Interface()))
	}
	return runtime.FromReflect(dst), nil
}

func (p *cpuProgram) Close() {}
