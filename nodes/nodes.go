// Package nodes is the standard node library: identity, arithmetic and the
// adapter nodes the substitution generator inserts between fields and the
// implementations they feed.
//
// Every node is registered for the CPU through Register and, where the
// kernel can express it, for the GPU through Library.
package nodes

import (
	"fmt"

	"github.com/gogpu/nodegraph/gpu/codegen"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

// Identifiers of the standard nodes.
var (
	IdentityID = proto.IdentityIdentifier
	AddID      = registry.NewIdentifier("ops::AddNode")
	MultiplyID = registry.NewIdentifier("ops::MultiplyNode")
	MaxID      = registry.NewIdentifier("ops::MaxNode")
	RoundID    = registry.NewIdentifier("ops::RoundNode")
)

// Register adds every standard node to b.
func Register(b *registry.Builder) *registry.Builder {
	t := types.Generic("T")
	b.Register(IdentityID, types.NewNodeIO(t, t), identity).
		Describe(IdentityID, registry.NodeMetadata{
			DisplayName: "Identity",
			Category:    "General",
			Description: "Passes its input through unchanged.",
			Fields:      []registry.FieldMetadata{{Name: "In"}},
		})

	registerArithmetic[uint32](b)
	registerArithmetic[int32](b)
	registerArithmetic[float32](b)
	registerArithmetic[float64](b)
	registerFixed(b)
	registerScale(b)
	registerAdapters(b)

	b.Describe(AddID, binaryMetadata("Add", "Adds the addend to the primary input.", "Addend", "0"))
	b.Describe(MultiplyID, binaryMetadata("Multiply", "Multiplies the primary input by the factor.", "Factor", "1"))
	b.Describe(MaxID, binaryMetadata("Max", "Returns the larger of the primary input and the bound.", "Bound", "0"))
	return b
}

// Registry returns a registry holding the standard nodes.
func Registry() *registry.Registry {
	return Register(registry.NewBuilder()).MustBuild()
}

func binaryMetadata(name, desc, operand, def string) registry.NodeMetadata {
	return registry.NodeMetadata{
		DisplayName: name,
		Category:    "Math",
		Description: desc,
		Fields: []registry.FieldMetadata{
			{Name: "Value"},
			{Name: operand, Source: registry.SourceDefault, Default: def, Exposed: true},
		},
	}
}

func identity(args []runtime.Node) (runtime.Node, error) {
	if err := arity(IdentityID, args, 0); err != nil {
		return nil, err
	}
	return runtime.Func(IdentityID.String(), func(in runtime.Any) runtime.Any { return in }), nil
}

func arity(id registry.Identifier, args []runtime.Node, want int) error {
	if len(args) != want {
		return fmt.Errorf("nodes: %s takes %d arguments, got %d", id, want, len(args))
	}
	return nil
}

// Library returns the WGSL definitions of the nodes the GPU backend can run.
func Library() codegen.Library {
	lib := codegen.Library{}
	lib.Add(IdentityID, func(elem string) string {
		return fmt.Sprintf("fn %s(x: %s) -> %s {\n    return x;\n}", codegen.Mangle(IdentityID), elem, elem)
	})
	lib.Add(AddID, binaryWGSL(AddID, "a + b"))
	lib.Add(MultiplyID, binaryWGSL(MultiplyID, "a * b"))
	lib.Add(MaxID, binaryWGSL(MaxID, "max(a, b)"))
	return lib
}

func binaryWGSL(id registry.Identifier, expr string) codegen.Definition {
	return func(elem string) string {
		return fmt.Sprintf("fn %s(a: %s, b: %s) -> %s {\n    return %s;\n}", codegen.Mangle(id), elem, elem, elem, expr)
	}
}
