package nodegraph

import (
	"context"
	"fmt"

	"github.com/gogpu/nodegraph/document"
	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/internal/cache"
	"github.com/gogpu/nodegraph/internal/logger"
	"github.com/gogpu/nodegraph/nodes"
	"github.com/gogpu/nodegraph/preprocess"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
)

// Compiler lowers authored networks and runs them on a backend. The
// registry and substitution table are read-only after NewCompiler, so one
// Compiler may be shared by goroutines; each Program it returns has a
// single owner.
type Compiler struct {
	reg  *registry.Registry
	subs preprocess.Substitutions
	opts options
}

// NewCompiler returns a compiler for networks built from reg's nodes.
func NewCompiler(reg *registry.Registry, opts ...Option) *Compiler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if o.config.Kernels == nil {
		lib := o.config.Library
		if lib == nil {
			lib = nodes.Library()
		}
		o.config.Kernels = codegen.NewNagaCompiler(lib, o.config.Codegen)
	}
	return &Compiler{
		reg:  reg,
		subs: preprocess.Generate(reg),
		opts: o,
	}
}

// Registry returns the compiler's registry.
func (c *Compiler) Registry() *registry.Registry { return c.reg }

// KernelStats reports the GPU kernel cache counters. Programs compiled
// from identical networks share one compiled module.
func (c *Compiler) KernelStats() cache.Stats { return c.opts.config.Kernels.Stats() }

// Lower expands a copy of doc with the substitution table and flattens it.
// doc itself is not modified.
func (c *Compiler) Lower(doc *document.Network) (*proto.Network, error) {
	expanded := doc.Clone()
	preprocess.Expand(expanded, c.subs)
	net, err := document.Flatten(expanded)
	if err != nil {
		return nil, err
	}
	logger.Get().Debug("nodegraph: lowered network", "nodes", len(net.Nodes), "inputs", len(net.InputTypes))
	return net, nil
}

// Compile lowers doc and prepares it on the selected backend.
func (c *Compiler) Compile(ctx context.Context, doc *document.Network) (Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	net, err := c.Lower(doc)
	if err != nil {
		return nil, err
	}
	backend, err := c.backend()
	if err != nil {
		return nil, err
	}
	prog, err := backend.Prepare(c.reg, net, c.opts.config)
	if err == nil {
		return prog, nil
	}
	if !c.canFallback(backend) {
		return nil, fmt.Errorf("nodegraph: %s backend: %w", backend.Name(), err)
	}
	logger.Get().Warn("nodegraph: falling back to CPU backend", "backend", backend.Name(), "err", err)
	return c.prepareCPU(doc)
}

// Run compiles doc and evaluates it once. A failed run on a non-CPU
// backend is retried on the CPU when fallback is enabled.
func (c *Compiler) Run(ctx context.Context, doc *document.Network, inputs ...runtime.Any) (runtime.Any, error) {
	prog, err := c.Compile(ctx, doc)
	if err != nil {
		return runtime.Any{}, err
	}
	defer prog.Close()
	out, err := prog.Run(inputs...)
	if err == nil {
		return out, nil
	}
	if _, isCPU := prog.(*cpuProgram); isCPU || !c.opts.fallback {
		return runtime.Any{}, err
	}
	logger.Get().Warn("nodegraph: run failed, retrying on CPU backend", "err", err)
	cpu, cerr := c.prepareCPU(doc)
	if cerr != nil {
		return runtime.Any{}, fmt.Errorf("nodegraph: CPU fallback: %w", cerr)
	}
	defer cpu.Close()
	return cpu.Run(inputs...)
}

func (c *Compiler) backend() (Backend, error) {
	if c.opts.backend == "" {
		if b := DefaultBackend(); b != nil {
			return b, nil
		}
		return nil, ErrBackendNotAvailable
	}
	b := GetBackend(c.opts.backend)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, c.opts.backend)
	}
	return b, nil
}

func (c *Compiler) canFallback(b Backend) bool {
	return c.opts.fallback && b.Name() != BackendCPU && IsBackendRegistered(BackendCPU)
}

// prepareCPU lowers doc again, since a failed backend may have left the
// previous network partially resolved.
func (c *Compiler) prepareCPU(doc *document.Network) (Program, error) {
	net, err := c.Lower(doc)
	if err != nil {
		return nil, err
	}
	return GetBackend(BackendCPU).Prepare(c.reg, net, c.opts.config)
}
