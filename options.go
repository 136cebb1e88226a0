package nodegraph

import (
	"log/slog"
	"time"

	"github.com/gogpu/nodegraph/gpu"
	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/interpreter"
)

// Option configures a Compiler.
//
// Example:
//
//	c := nodegraph.NewCompiler(nodes.Registry(),
//	    nodegraph.WithBackend(nodegraph.BackendGPU),
//	    nodegraph.WithCPUFallback(true))
type Option func(*options)

// Config is what a Backend receives when preparing a program.
type Config struct {
	CachePolicy interpreter.CachePolicy
	GPU         gpu.Config
	Codegen     codegen.Options
	// Library holds the WGSL definitions of the registry's nodes.
	Library codegen.Library
	// Kernels compiles and memoizes GPU kernels. NewCompiler sets it so
	// every program prepared by one Compiler shares the module cache.
	Kernels *codegen.NagaCompiler
}

type options struct {
	backend  string
	fallback bool
	logger   *slog.Logger
	config   Config
}

func defaultOptions() options {
	return options{
		fallback: true,
		config: Config{
			CachePolicy: interpreter.CacheInputIndependent,
			GPU:         gpu.DefaultConfig(),
			Codegen:     codegen.DefaultOptions(),
		},
	}
}

// WithBackend selects a backend by name. By default the highest-priority
// registered backend is used.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithCPUFallback controls whether the compiler retries on the CPU backend
// when another backend fails to prepare or run a network. Enabled by
// default.
func WithCPUFallback(enabled bool) Option {
	return func(o *options) {
		o.fallback = enabled
	}
}

// WithCachePolicy sets the CPU backend's cache policy.
func WithCachePolicy(p interpreter.CachePolicy) Option {
	return func(o *options) {
		o.config.CachePolicy = p
	}
}

// WithWorkgroupSize sets the GPU kernel workgroup size.
func WithWorkgroupSize(n uint32) Option {
	return func(o *options) {
		o.config.GPU.WorkgroupSize = n
		o.config.Codegen.ComputeThreads = n
	}
}

// WithFenceTimeout bounds the wait for one GPU dispatch.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config.GPU.FenceTimeout = d
	}
}

// WithLibrary sets the WGSL definitions used by the GPU backend.
func WithLibrary(lib codegen.Library) Option {
	return func(o *options) {
		o.config.Library = lib
	}
}

// WithLogger installs l as the package logger when the compiler is created.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
