package nodegraph

import (
	"errors"
	"fmt"

	"github.com/gogpu/nodegraph/gpu"
	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/nodes"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
)

// ErrNotElementwise is returned by the GPU backend for networks that are
// not a function of one 32-bit scalar input to the same type.
var ErrNotElementwise = errors.New("nodegraph: network cannot run elementwise on the GPU")

type gpuBackend struct{}

func (*gpuBackend) Name() string { return BackendGPU }

func (*gpuBackend) Prepare(reg *registry.Registry, net *proto.Network, cfg Config) (Program, error) {
	if err := net.ResolveInputs(); err != nil {
		return nil, err
	}
	tc := proto.NewTypingContext(reg)
	if err := tc.Update(net); err != nil {
		return nil, err
	}
	if len(net.InputTypes) != 1 {
		return nil, fmt.Errorf("%w: %d network inputs", ErrNotElementwise, len(net.InputTypes))
	}
	in := net.InputTypes[0]
	io, _ := tc.TypeOf(net.Output)
	elem, ok := gpu.ElementType(in.String())
	if !ok || !io.Return.Equal(in) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNotElementwise, in, io.Return)
	}

	kernels := cfg.Kernels
	if kernels == nil {
		lib := cfg.Library
		if lib == nil {
			lib = nodes.Library()
		}
		kernels = codegen.NewNagaCompiler(lib, cfg.Codegen)
	}
	shader, err := kernels.Compile(net, codegen.ElementwiseIO(elem))
	if err != nil {
		return nil, err
	}
	exec, err := gpu.Open(cfg.GPU)
	if err != nil {
		return nil, err
	}
	return &gpuProgram{exec: exec, shader: shader}, nil
}

type gpuProgram struct {
	exec   *gpu.Executor
	shader *codegen.Shader
}

// Run dispatches the kernel over a single slice input.
func (p *gpuProgram) Run(inputs ...runtime.Any) (runtime.Any, error) {
	if len(inputs) != 1 {
		return runtime.Any{}, fmt.Errorf("%w: got %d inputs, want one slice", ErrNotElementwise, len(inputs))
	}
	return p.exec.ExecuteAny(p.shader, inputs[0])
}

func (p *gpuProgram) Close() { p.exec.Close() }
