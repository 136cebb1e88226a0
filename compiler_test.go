package nodegraph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/nodegraph/document"
	"github.com/gogpu/nodegraph/interpreter"
	"github.com/gogpu/nodegraph/nodes"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

var u32 = types.Of[uint32]()

// addThree is out = in + 3.
func addThree() *document.Network {
	net := document.NewNetwork()
	add := net.Add(&document.Node{
		Implementation: document.ProtoImpl(nodes.AddID),
		Inputs: []document.Input{
			document.ImportInput(u32, 0),
			document.ValueInput(types.NewValue(uint32(3)), true),
		},
	})
	net.Exports = []document.Input{document.NodeInput(add)}
	return net
}

func TestCompilerRunCPU(t *testing.T) {
	c := NewCompiler(nodes.Registry(), WithBackend(BackendCPU))
	out, err := c.Run(context.Background(), addThree(), runtime.Box(uint32(5)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, err := runtime.TryDowncast[uint32](out); err != nil || got != 8 {
		t.Errorf("5 + 3 = %v (%v)", got, err)
	}
}

func TestCompilerRunBatch(t *testing.T) {
	c := NewCompiler(nodes.Registry(), WithBackend(BackendCPU))
	in := []uint32{0, 1, 2, 1000}
	out, err := c.Run(context.Background(), addThree(), runtime.Box(in))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := runtime.TryDowncast[[]uint32](out)
	if err != nil {
		t.Fatal(err)
	}
	if want := []uint32{3, 4, 5, 1003}; !reflect.DeepEqual(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestCompilerDoesNotModifyDocument(t *testing.T) {
	doc := addThree()
	c := NewCompiler(nodes.Registry(), WithBackend(BackendCPU))
	if _, err := c.Lower(doc); err != nil {
		t.Fatal(err)
	}
	for _, id := range doc.SortedIDs() {
		if doc.Nodes[id].Implementation.Network != nil {
			t.Error("Lower expanded the caller's document")
		}
	}
}

// TestCompilerMixedTypes tests that a ScaleNode factor of any type with a
// lossless conversion to float64 goes through the generated adapter.
func TestCompilerMixedTypes(t *testing.T) {
	tests := []struct {
		name   string
		in     runtime.Any
		factor types.Value
		want   any
	}{
		{"f32 by f32", runtime.Box(float32(1.5)), types.NewValue(float32(2)), float32(3)},
		{"f32 by f64", runtime.Box(float32(1.5)), types.NewValue(4.0), float32(6)},
		{"u32 by u32", runtime.Box(uint32(5)), types.NewValue(uint32(3)), uint32(15)},
		{"i32 by i32", runtime.Box(int32(-5)), types.NewValue(int32(2)), int32(-10)},
		{"f64 by fixed", runtime.Box(2.0), types.NewValue(nodes.Fixed(32)), 1.0},
	}
	c := NewCompiler(nodes.Registry(), WithBackend(BackendCPU))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := document.NewNetwork()
			s := net.Add(&document.Node{
				Implementation: document.ProtoImpl(nodes.ScaleID),
				Inputs: []document.Input{
					document.ImportInput(types.FromReflect(tt.in.Tag()), 0),
					document.ValueInput(tt.factor, true),
				},
			})
			net.Exports = []document.Input{document.NodeInput(s)}

			out, err := c.Run(context.Background(), net, tt.in)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := out.Interface(); got != tt.want {
				t.Errorf("result = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCompilerErrors(t *testing.T) {
	c := NewCompiler(nodes.Registry(), WithBackend(BackendCPU))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx, addThree(), runtime.Box(uint32(1))); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: err = %v", err)
	}

	if _, err := c.Run(context.Background(), document.NewNetwork()); !errors.Is(err, document.ErrNoExports) {
		t.Errorf("empty document: err = %v, want ErrNoExports", err)
	}

	if _, err := c.Run(context.Background(), addThree(), runtime.Box(float32(1))); !errors.Is(err, interpreter.ErrInputType) {
		t.Errorf("wrong input: err = %v, want ErrInputType", err)
	}

	missing := document.NewNetwork()
	id := missing.Add(&document.Node{Implementation: document.ProtoImpl(registry.NewIdentifier("ops::Missing")), Inputs: []document.Input{document.ImportInput(u32, 0)}})
	missing.Exports = []document.Input{document.NodeInput(id)}
	if _, err := c.Compile(context.Background(), missing); !errors.Is(err, proto.ErrNoImplementations) {
		t.Errorf("missing node: err = %v, want ErrNoImplementations", err)
	}

	if _, err := NewCompiler(nodes.Registry(), WithBackend("vulkan-rt")).Compile(context.Background(), addThree()); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("unknown backend: err = %v, want ErrBackendNotAvailable", err)
	}
}

// failingBackend never prepares a program.
type failingBackend struct{}

var errFailing = errors.New("failing backend")

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Prepare(*registry.Registry, *proto.Network, Config) (Program, error) {
	return nil, errFailing
}

func TestCompilerCPUFallback(t *testing.T) {
	RegisterBackend("failing", func() Backend { return failingBackend{} })
	t.Cleanup(func() { UnregisterBackend("failing") })

	c := NewCompiler(nodes.Registry(), WithBackend("failing"))
	out, err := c.Run(context.Background(), addThree(), runtime.Box(uint32(1)))
	if err != nil {
		t.Fatalf("Run with fallback: %v", err)
	}
	if got, _ := runtime.TryDowncast[uint32](out); got != 4 {
		t.Errorf("fallback result = %d, want 4", got)
	}

	c = NewCompiler(nodes.Registry(), WithBackend("failing"), WithCPUFallback(false))
	if _, err := c.Run(context.Background(), addThree(), runtime.Box(uint32(1))); !errors.Is(err, errFailing) {
		t.Errorf("without fallback: err = %v, want failing backend error", err)
	}
}

func TestCompilerGPUMatchesCPU(t *testing.T) {
	in := make([]uint32, 1025)
	for i := range in {
		in[i] = uint32(i) //nolint:gosec // small index
	}
	gpuCompiler := NewCompiler(nodes.Registry(), WithBackend(BackendGPU), WithCPUFallback(false))
	prog, err := gpuCompiler.Compile(context.Background(), addThree())
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	defer prog.Close()
	gpuOut, err := prog.Run(runtime.Box(in))
	if err != nil {
		t.Fatalf("GPU run: %v", err)
	}
	cpuOut, err := NewCompiler(nodes.Registry(), WithBackend(BackendCPU)).Run(context.Background(), addThree(), runtime.Box(in))
	if err != nil {
		t.Fatalf("CPU run: %v", err)
	}
	if !reflect.DeepEqual(gpuOut.Interface(), cpuOut.Interface()) {
		t.Error("GPU and CPU results differ")
	}
}

// TestCompilerReusesKernels prepares the same network twice on the GPU
// backend. The kernel is compiled once whether or not a device exists.
func TestCompilerReusesKernels(t *testing.T) {
	c := NewCompiler(nodes.Registry(), WithBackend(BackendGPU), WithCPUFallback(false))
	for i := 0; i < 2; i++ {
		prog, err := c.Compile(context.Background(), addThree())
		if err == nil {
			prog.Close()
		}
		if i == 0 && c.KernelStats().Len == 0 {
			t.Skipf("kernel compile unavailable: %v", err)
		}
	}
	stats := c.KernelStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("kernel cache hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}
