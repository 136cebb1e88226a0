package codegen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

var (
	addID   = registry.NewIdentifier("ops::AddNode")
	identID = proto.IdentityIdentifier
)

func testLibrary() Library {
	lib := Library{}
	lib.Add(addID, func(elem string) string {
		return fmt.Sprintf("fn ops_AddNode(a: %s, b: %s) -> %s {\n    return a + b;\n}", elem, elem, elem)
	})
	lib.Add(identID, func(elem string) string {
		return fmt.Sprintf("fn core_ops_IdentityNode(x: %s) -> %s {\n    return x;\n}", elem, elem)
	})
	return lib
}

// addThree reads the network input through an identity node and adds 3.
func addThree() *proto.Network {
	net := &proto.Network{InputTypes: []types.Type{types.Of[uint32]()}}
	in := net.Add(&proto.ProtoNode{Identifier: identID, Input: proto.FromNetwork(0)})
	net.Output = net.Add(&proto.ProtoNode{
		Identifier: addID,
		Input:      proto.Reference(in),
		Args:       proto.ConstructionArgs{Nodes: []proto.Arg{proto.LiteralArg(types.NewValue(uint32(3)))}},
	})
	return net
}

func TestMangle(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"ops::AddNode", "ops_AddNode"},
		{"ops::IntoNode<float64>", "ops_IntoNode"},
		{"core::ops::IdentityNode", "core_ops_IdentityNode"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Mangle(registry.NewIdentifier(tt.id)); got != tt.want {
			t.Errorf("Mangle(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestShaderIOBindings(t *testing.T) {
	io := ElementwiseIO("u32")
	if got := io.OutputBinding(0); got != 1 {
		t.Errorf("output binding = %d, want 1", got)
	}
	if got := io.ConstantsBinding(); got != 2 {
		t.Errorf("constants binding = %d, want 2", got)
	}

	io = ShaderIO{Inputs: []ShaderInput{Storage("f32"), Uniform("f32"), Output("f32"), Storage("f32")}}
	if got := io.OutputBinding(0); got != 3 {
		t.Errorf("output binding with 3 inputs = %d, want 3", got)
	}
	seen := map[int]int{}
	for pos, want := range []int{0, 1, 3, 2} {
		got := io.Binding(pos)
		if got != want {
			t.Errorf("Binding(%d) = %d, want %d", pos, got, want)
		}
		if prev, dup := seen[got]; dup {
			t.Errorf("entries %d and %d share binding %d", prev, pos, got)
		}
		seen[got] = pos
	}
	if err := (ShaderIO{Inputs: []ShaderInput{Storage("u32")}}).Validate(); !errors.Is(err, ErrInvalidIO) {
		t.Errorf("layout without output: err = %v", err)
	}
}

func TestSerialize(t *testing.T) {
	src, err := Serialize(addThree(), ElementwiseIO("u32"), testLibrary(), DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := []string{
		"@group(0) @binding(0) var<storage, read> i0: array<u32>;",
		"@group(0) @binding(1) var<storage, read_write> o0: array<u32>;",
		"@group(0) @binding(2) var<uniform> constants: Constants;",
		"fn ops_AddNode(a: u32, b: u32) -> u32",
		"fn core_ops_IdentityNode(x: u32) -> u32",
		"@compute @workgroup_size(64)",
		"fn main(@builtin(global_invocation_id) gid: vec3<u32>)",
		"if (idx >= constants.n) {",
		"core_ops_IdentityNode(i0[idx])",
		"= 3u;",
		"o0[idx] = n",
	}
	for _, w := range want {
		if !strings.Contains(src, w) {
			t.Errorf("kernel missing %q:\n%s", w, src)
		}
	}
	if strings.Count(src, "fn ops_AddNode") != 1 {
		t.Errorf("add function emitted more than once:\n%s", src)
	}
}

func TestSerializeBindingOffset(t *testing.T) {
	net := &proto.Network{InputTypes: []types.Type{types.Of[uint32](), types.Of[uint32]()}}
	a := net.Add(&proto.ProtoNode{Identifier: identID, Input: proto.FromNetwork(0)})
	b := net.Add(&proto.ProtoNode{Identifier: identID, Input: proto.FromNetwork(1)})
	net.Output = net.Add(&proto.ProtoNode{Identifier: addID, Input: proto.Reference(a), Args: proto.NodeArgs(b)})

	io := ShaderIO{Inputs: []ShaderInput{Storage("u32"), Uniform("u32"), Output("u32")}}
	src, err := Serialize(net, io, testLibrary(), Options{ComputeThreads: 128, EntryPoint: "kernel"})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	for _, w := range []string{
		"@group(0) @binding(1) var<uniform> i1: u32;",
		"@group(0) @binding(2) var<storage, read_write> o0: array<u32>;",
		"@group(0) @binding(3) var<uniform> constants: Constants;",
		"core_ops_IdentityNode(i1)",
		"@compute @workgroup_size(128)",
		"fn kernel(",
	} {
		if !strings.Contains(src, w) {
			t.Errorf("kernel missing %q:\n%s", w, src)
		}
	}
}

func TestSerializeOutputBeforeInput(t *testing.T) {
	net := &proto.Network{InputTypes: []types.Type{types.Of[uint32](), types.Of[uint32]()}}
	a := net.Add(&proto.ProtoNode{Identifier: identID, Input: proto.FromNetwork(0)})
	b := net.Add(&proto.ProtoNode{Identifier: identID, Input: proto.FromNetwork(1)})
	net.Output = net.Add(&proto.ProtoNode{Identifier: addID, Input: proto.Reference(a), Args: proto.NodeArgs(b)})

	io := ShaderIO{Inputs: []ShaderInput{Storage("u32"), Output("u32"), Storage("u32")}}
	src, err := Serialize(net, io, testLibrary(), DefaultOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	for _, w := range []string{
		"@group(0) @binding(0) var<storage, read> i0: array<u32>;",
		"@group(0) @binding(1) var<storage, read> i1: array<u32>;",
		"@group(0) @binding(2) var<storage, read_write> o0: array<u32>;",
		"@group(0) @binding(3) var<uniform> constants: Constants;",
		"core_ops_IdentityNode(i1[idx])",
	} {
		if !strings.Contains(src, w) {
			t.Errorf("kernel missing %q:\n%s", w, src)
		}
	}
	for b := 0; b <= 3; b++ {
		if n := strings.Count(src, fmt.Sprintf("@binding(%d)", b)); n != 1 {
			t.Errorf("@binding(%d) declared %d times:\n%s", b, n, src)
		}
	}
}

func TestSerializeErrors(t *testing.T) {
	net := addThree()
	if _, err := Serialize(net, ElementwiseIO("u32"), Library{}, DefaultOptions()); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("empty library: err = %v, want ErrUnknownFunction", err)
	}
	if _, err := Serialize(addThree(), ShaderIO{Inputs: []ShaderInput{Output("u32")}}, testLibrary(), DefaultOptions()); !errors.Is(err, ErrInvalidIO) {
		t.Errorf("missing input binding: err = %v, want ErrInvalidIO", err)
	}
	if _, err := Serialize(&proto.Network{}, ElementwiseIO("u32"), testLibrary(), DefaultOptions()); !errors.Is(err, proto.ErrEmptyNetwork) {
		t.Errorf("empty network: err = %v, want ErrEmptyNetwork", err)
	}
}

func TestCreateFiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Metadata: Metadata{Name: "project", Authors: []string{"test@example.com"}}}
	src, err := CreateFiles(dir, addThree(), ElementwiseIO("u32"), testLibrary(), opts)
	if err != nil {
		t.Fatalf("CreateFiles: %v", err)
	}

	kernel, err := os.ReadFile(filepath.Join(dir, "src", "kernel.wgsl"))
	if err != nil {
		t.Fatal(err)
	}
	if string(kernel) != src {
		t.Error("kernel file differs from returned source")
	}
	manifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []string{`name = "project"`, `authors = ["test@example.com"]`, `entry_point = "main"`, "workgroup_size = 64"} {
		if !strings.Contains(string(manifest), w) {
			t.Errorf("manifest missing %q:\n%s", w, manifest)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ToolchainFile)); err != nil {
		t.Errorf("toolchain pin: %v", err)
	}
}

func TestEntryPoints(t *testing.T) {
	// Header, then OpEntryPoint GLCompute %1 "main" and an OpNop.
	name := []uint32{0x6e69616d, 0}
	words := []uint32{spirvMagic, 0x00010300, 0, 8, 0}
	words = append(words, uint32(3+len(name))<<16|opEntryPoint, 5, 1)
	words = append(words, name...)
	words = append(words, 1<<16|0)

	got, err := EntryPoints(words)
	if err != nil {
		t.Fatalf("EntryPoints: %v", err)
	}
	if len(got) != 1 || got[0] != "main" {
		t.Errorf("EntryPoints = %q, want [main]", got)
	}

	if _, err := EntryPoints(words[:len(words)-3]); !errors.Is(err, ErrInvalidSPIRV) {
		t.Errorf("truncated module: err = %v, want ErrInvalidSPIRV", err)
	}
	if _, err := SPIRVWords([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidSPIRV) {
		t.Errorf("short stream: err = %v, want ErrInvalidSPIRV", err)
	}
}

// skipNagaLimitation skips when naga rejects a construct it does not
// implement yet.
func skipNagaLimitation(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	for _, s := range []string{"not yet implemented", "not supported", "runtime-sized arrays"} {
		if strings.Contains(msg, s) {
			t.Skipf("Skipping: naga limitation: %v", err)
		}
	}
}

func TestNagaCompile(t *testing.T) {
	c := NewNagaCompiler(testLibrary(), DefaultOptions())
	shader, err := c.Compile(addThree(), ElementwiseIO("u32"))
	if err != nil {
		skipNagaLimitation(t, err)
		t.Fatalf("Compile: %v", err)
	}
	if len(shader.SPIRV) == 0 || shader.SPIRV[0] != spirvMagic {
		t.Fatal("compiled module is not SPIR-V")
	}
	if shader.EntryPoint() != "main" {
		t.Errorf("entry point = %q, want main", shader.EntryPoint())
	}

	if _, err := c.Compile(addThree(), ElementwiseIO("u32")); err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if s := c.Stats(); s.Hits != 1 || s.Len != 1 {
		t.Errorf("cache stats = %+v, want one entry hit once", s)
	}
}
