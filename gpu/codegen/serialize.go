package codegen

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/gogpu/nodegraph/internal/logger"
	"github.com/gogpu/nodegraph/proto"
)

//go:embed templates
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS,
	"templates/kernel.wgsl.tmpl", "templates/manifest.toml.tmpl"))

// Metadata names the generated kernel package.
type Metadata struct {
	Name    string
	Authors []string
}

// Options configures kernel generation.
type Options struct {
	// ComputeThreads is the workgroup size along x.
	ComputeThreads uint32
	EntryPoint     string
	Metadata       Metadata
}

// DefaultOptions returns a 64-thread kernel with entry point "main".
func DefaultOptions() Options {
	return Options{
		ComputeThreads: 64,
		EntryPoint:     "main",
		Metadata:       Metadata{Name: "kernel"},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ComputeThreads == 0 {
		o.ComputeThreads = d.ComputeThreads
	}
	if o.EntryPoint == "" {
		o.EntryPoint = d.EntryPoint
	}
	if o.Metadata.Name == "" {
		o.Metadata.Name = d.Metadata.Name
	}
	return o
}

type let struct {
	Name string
	Expr string
}

type kernelData struct {
	Name             string
	Bindings         []string
	ConstantsBinding int
	Functions        []string
	WorkgroupSize    uint32
	EntryPoint       string
	Params           []string
	Lets             []let
	Outputs          []string
	Result           string
}

func nid(id proto.NodeID) string { return fmt.Sprintf("n%x", uint64(id)) }

// Serialize renders net as a WGSL compute kernel with the given layout.
// The network is resolved first; every non-structural node must have a
// definition in lib.
func Serialize(net *proto.Network, io ShaderIO, lib Library, opts Options) (string, error) {
	opts = opts.withDefaults()
	if err := io.Validate(); err != nil {
		return "", err
	}
	outputs := io.Outputs()
	if len(outputs) != 1 {
		return "", fmt.Errorf("%w: kernel writes one output, layout has %d", ErrInvalidIO, len(outputs))
	}
	if err := net.ResolveInputs(); err != nil {
		return "", err
	}

	data := kernelData{
		Name:             opts.Metadata.Name,
		ConstantsBinding: io.ConstantsBinding(),
		WorkgroupSize:    opts.ComputeThreads,
		EntryPoint:       opts.EntryPoint,
		Result:           nid(net.Output),
	}
	reads := make([]string, 0, len(io.Inputs))
	for pos, in := range io.Inputs {
		binding := io.Binding(pos)
		name := fmt.Sprintf("i%d", binding)
		switch in.Kind {
		case InputBuiltin:
			if in.Builtin == GlobalInvocationID {
				reads = append(reads, "gid")
				continue
			}
			data.Params = append(data.Params, fmt.Sprintf("@builtin(%s) %s: %s", in.Builtin.Attribute(), name, in.Type))
			reads = append(reads, name)
		case InputUniform:
			data.Bindings = append(data.Bindings, fmt.Sprintf("@group(0) @binding(%d) var<uniform> %s: %s;", binding, name, in.Type))
			reads = append(reads, name)
		case InputStorage:
			data.Bindings = append(data.Bindings, fmt.Sprintf("@group(0) @binding(%d) var<storage, read> %s: array<%s>;", binding, name, in.Type))
			reads = append(reads, name+"[idx]")
		case InputWorkgroup:
			data.Bindings = append(data.Bindings, fmt.Sprintf("var<workgroup> %s: array<%s, %d>;", name, in.Type, opts.ComputeThreads))
			reads = append(reads, fmt.Sprintf("%s[idx %% %du]", name, opts.ComputeThreads))
		case InputOutput:
			out := fmt.Sprintf("o%d", len(data.Outputs))
			data.Bindings = append(data.Bindings, fmt.Sprintf("@group(0) @binding(%d) var<storage, read_write> %s: array<%s>;", binding, out, in.Type))
			data.Outputs = append(data.Outputs, out)
		}
	}

	nodes := make(map[proto.NodeID]*proto.ProtoNode, len(net.Nodes))
	for _, e := range net.Nodes {
		nodes[e.ID] = e.Node
	}
	emitted := make(map[proto.NodeID]bool, len(net.Nodes))
	used := map[string]bool{}

	call := func(id proto.NodeID, node *proto.ProtoNode, first string) (string, error) {
		name := Mangle(node.Identifier)
		used[name] = true
		var args []string
		if first != "" {
			args = append(args, first)
		}
		for _, a := range node.Args.Nodes {
			if !emitted[a.Node] {
				return "", fmt.Errorf("%w: node %d reads node %d, which has no value in the kernel", ErrUnsupportedNode, id, a.Node)
			}
			args = append(args, nid(a.Node))
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil
	}

	for _, e := range net.Nodes {
		id, node := e.ID, e.Node
		var expr string
		var err error
		switch {
		case node.IsValue():
			expr = node.Args.Value.PrimitiveString()
		case node.IsCompose():
			first, second := node.Args.Nodes[0].Node, node.Args.Nodes[1].Node
			if !emitted[first] {
				return "", fmt.Errorf("%w: compose node %d reads node %d", ErrUnsupportedNode, id, first)
			}
			expr, err = call(second, nodes[second], nid(first))
		case node.Input.Kind == proto.ComposedInput:
			continue
		case node.Input.Kind == proto.NetworkInput:
			index := node.Input.Index
			if index < 0 || index >= len(reads) {
				return "", fmt.Errorf("%w: node %d reads network input %d, layout has %d", ErrInvalidIO, id, index, len(reads))
			}
			expr, err = call(id, node, reads[index])
		default:
			expr, err = call(id, node, "")
		}
		if err != nil {
			return "", err
		}
		data.Lets = append(data.Lets, let{Name: nid(id), Expr: expr})
		emitted[id] = true
	}
	if !emitted[net.Output] {
		return "", fmt.Errorf("%w: output node %d has no value in the kernel", ErrUnsupportedNode, net.Output)
	}

	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	funcs, err := lib.render(names, outputs[0].Type)
	if err != nil {
		return "", err
	}
	data.Functions = funcs

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "kernel.wgsl.tmpl", data); err != nil {
		return "", fmt.Errorf("codegen: render kernel: %w", err)
	}
	logger.Get().Debug("codegen: serialized kernel",
		"nodes", len(net.Nodes), "functions", len(funcs), "bytes", buf.Len())
	return buf.String(), nil
}

