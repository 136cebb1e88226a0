package nodes

import (
	"math"
	"strings"
	"testing"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/nodegraph/interpreter"
	"github.com/gogpu/nodegraph/preprocess"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

// unary builds a network applying id to network input 0, with the given
// literal construction arguments.
func unary[T any](id registry.Identifier, args ...types.Value) *proto.Network {
	net := &proto.Network{InputTypes: []types.Type{types.Of[T]()}}
	node := &proto.ProtoNode{Identifier: id, Input: proto.FromNetwork(0)}
	for _, a := range args {
		node.Args.Nodes = append(node.Args.Nodes, proto.LiteralArg(a))
	}
	net.Output = net.Add(node)
	return net
}

func run[I, O any](t *testing.T, net *proto.Network, in I) O {
	t.Helper()
	e, err := interpreter.New(Registry(), net)
	if err != nil {
		t.Fatalf("interpreter.New: %v\n%s", err, net)
	}
	out, err := interpreter.ExecuteTyped[O](e, runtime.Box(in))
	if err != nil {
		t.Fatalf("ExecuteTyped: %v", err)
	}
	return out
}

func TestRegistryBuilds(t *testing.T) {
	reg := Registry()
	for _, id := range []registry.Identifier{IdentityID, AddID, MultiplyID, MaxID, RoundID, IntoID[float64](), ConvertID[Fixed]()} {
		if !reg.Has(id) {
			t.Errorf("%s not registered", id)
		}
	}
	meta, ok := reg.Metadata(AddID)
	if !ok || len(meta.Fields) != 2 || meta.Fields[1].Default != "0" {
		t.Errorf("AddNode metadata = %+v", meta)
	}
}

func TestArithmetic(t *testing.T) {
	if got := run[uint32, uint32](t, unary[uint32](AddID, types.NewValue(uint32(3))), 5); got != 8 {
		t.Errorf("add u32 = %d, want 8", got)
	}
	if got := run[float32, float32](t, unary[float32](MultiplyID, types.NewValue(float32(2.5))), 4); got != 10 {
		t.Errorf("multiply f32 = %v, want 10", got)
	}
	if got := run[int32, int32](t, unary[int32](MaxID, types.NewValue(int32(-1))), -7); got != -1 {
		t.Errorf("max i32 = %d, want -1", got)
	}
	if got := run[float64, float64](t, unary[float64](IdentityID), 1.25); got != 1.25 {
		t.Errorf("identity f64 = %v", got)
	}
}

func TestFixedPoint(t *testing.T) {
	half := fixed.Int26_6(32)
	if got := run[Fixed, Fixed](t, unary[Fixed](AddID, types.NewValue(fixed.I(1))), half); got != fixed.Int26_6(96) {
		t.Errorf("fixed add = %v, want 1:32", got)
	}
	if got := run[Fixed, Fixed](t, unary[Fixed](MultiplyID, types.NewValue(fixed.I(2))), fixed.I(3)); got != fixed.I(6) {
		t.Errorf("fixed mul = %v, want 6", got)
	}
	if got := run[Fixed, Fixed](t, unary[Fixed](RoundID), fixed.Int26_6(100)); got != fixed.I(2) {
		t.Errorf("round = %v, want 2", got)
	}
	if got := run[Fixed, float64](t, unary[Fixed](IntoID[float64]()), fixed.Int26_6(96)); got != 1.5 {
		t.Errorf("into float64 = %v, want 1.5", got)
	}
	if got := run[float32, Fixed](t, unary[float32](ConvertID[Fixed](), types.None()), 2.25); got != fixed.Int26_6(144) {
		t.Errorf("convert fixed = %v, want 2:16", got)
	}
}

func TestConvertSaturates(t *testing.T) {
	tests := []struct {
		in   float64
		want uint32
	}{
		{-5, 0},
		{3.9, 3},
		{1e12, math.MaxUint32},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		net := unary[float64](ConvertID[uint32](), types.None())
		if got := run[float64, uint32](t, net, tt.in); got != tt.want {
			t.Errorf("convert %v = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWrongArity(t *testing.T) {
	if _, err := binary(AddID, func(x, y uint32) uint32 { return x + y })(nil); err == nil {
		t.Error("add without an operand should fail to construct")
	}
	if _, err := identity([]runtime.Node{runtime.Value("x", runtime.Unit)}); err == nil {
		t.Error("identity with an argument should fail to construct")
	}
}

func TestLibrary(t *testing.T) {
	lib := Library()
	def, ok := lib["ops_AddNode"]
	if !ok {
		t.Fatal("ops_AddNode missing from library")
	}
	if got := def("f32"); !strings.Contains(got, "fn ops_AddNode(a: f32, b: f32) -> f32") {
		t.Errorf("add definition = %q", got)
	}
	if _, ok := lib["core_ops_IdentityNode"]; !ok {
		t.Error("identity missing from library")
	}
}

func TestScale(t *testing.T) {
	if got := run[uint32, uint32](t, unary[uint32](ScaleID, types.NewValue(2.5)), 3); got != 8 {
		t.Errorf("scale u32 = %d, want 8", got)
	}
	if got := run[int32, int32](t, unary[int32](ScaleID, types.NewValue(4.0)), -1<<30); got != math.MinInt32 {
		t.Errorf("scale i32 = %d, want saturation at MinInt32", got)
	}
	if got := run[float32, float32](t, unary[float32](ScaleID, types.NewValue(0.5)), 3); got != 1.5 {
		t.Errorf("scale f32 = %v, want 1.5", got)
	}
	if got := run[Fixed, Fixed](t, unary[Fixed](ScaleID, types.NewValue(0.5)), fixed.I(3)); got != Fixed(96) {
		t.Errorf("scale fixed = %v, want 1.5", got)
	}
}

// TestScaleSubstitution tests that the float64 factor, seen with one type
// across every implementation, is fed through the lossless adapter.
func TestScaleSubstitution(t *testing.T) {
	sub, ok := preprocess.Generate(Registry())[ScaleID]
	if !ok {
		t.Fatal("no substitution generated for ScaleNode")
	}
	var adapters []registry.Identifier
	for _, n := range sub.Implementation.Network.Nodes {
		if n.Implementation.Proto != ScaleID {
			adapters = append(adapters, n.Implementation.Proto)
		}
	}
	var into bool
	for _, id := range adapters {
		if id == IntoID[float64]() {
			into = true
		}
	}
	if !into {
		t.Errorf("adapters = %v, want one %s", adapters, IntoID[float64]())
	}
	if got := sub.Inputs[1].Value.Interface(); got != 1.0 {
		t.Errorf("factor default = %#v, want 1.0", got)
	}
}
