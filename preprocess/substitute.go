// Package preprocess rewrites authored networks before flattening. Registry
// nodes that accept several input-type combinations are replaced by
// generated subnetworks that adapt each input to the type the node expects.
package preprocess

import (
	"fmt"

	"github.com/gogpu/nodegraph/document"
	"github.com/gogpu/nodegraph/internal/logger"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

// Adapter node families. A registry entry named IntoBase<T> converts
// losslessly into T; ConvertBase<T> may lose precision and takes an extra
// unit argument.
const (
	IntoBase    = "ops::IntoNode"
	ConvertBase = "ops::ConvertNode"
)

// Substitutions maps a registry identifier to the node replacing it.
type Substitutions map[registry.Identifier]*document.Node

// Generate builds a substitution for every registry entry with more than
// one input-type combination. Entries without implementations are skipped
// and left for typing to report.
//
// Each substitution is a generated network with one adapter per field,
// wired into a call to the substituted implementation. A field seen with a
// single type gets an Into adapter when one exists for that type, a Convert
// adapter otherwise, and an identity node when neither is registered. A
// field seen with several types gets a generic identity node.
func Generate(reg *registry.Registry) Substitutions {
	subs := make(Substitutions)
	log := logger.Get()
	for _, id := range reg.Names() {
		impls := reg.Implementations(id)
		if len(impls) == 0 {
			log.Debug("preprocess: no implementations, leaving node unexpanded", "node", id)
			continue
		}
		if combinations(impls) < 2 {
			continue
		}
		meta, _ := reg.Metadata(id)
		subs[id] = substitute(reg, id, meta.Fields, impls)
	}
	log.Debug("preprocess: generated substitutions", "count", len(subs))
	return subs
}

func combinations(impls []registry.Implementation) int {
	seen := map[string]bool{}
	for _, impl := range impls {
		seen[impl.IO.InputKey()] = true
	}
	return len(seen)
}

func substitute(reg *registry.Registry, id registry.Identifier, fields []registry.FieldMetadata, impls []registry.Implementation) *document.Node {
	first := impls[0].IO
	count := 1 + len(first.Inputs)
	fields = padFields(fields, count)

	// fieldTypes[i] holds the distinct types seen for field i.
	fieldTypes := make([][]types.Type, count)
	for _, impl := range impls {
		for i := 0; i < count; i++ {
			t := fieldType(impl.IO, i)
			if !t.IsValid() || containsType(fieldTypes[i], t) {
				continue
			}
			fieldTypes[i] = append(fieldTypes[i], t)
		}
	}

	sub := document.NewNetwork()
	sub.Generated = true
	wrapped := &document.Node{
		Name:           id.String(),
		Implementation: document.ProtoImpl(id),
		Visible:        true,
	}
	for i, seen := range fieldTypes {
		adapter := adapterFor(reg, seen, i)
		wrapped.Inputs = append(wrapped.Inputs, document.NodeInput(sub.Add(adapter)))
	}
	sub.Exports = []document.Input{document.NodeInput(sub.Add(wrapped))}

	return &document.Node{
		Name:           id.String(),
		Inputs:         NodeInputs(fields, first),
		Implementation: document.NetworkImpl(sub),
		Visible:        true,
	}
}

func adapterFor(reg *registry.Registry, seen []types.Type, index int) *document.Node {
	if len(seen) != 1 {
		return &document.Node{
			Inputs:         []document.Input{document.ImportInput(types.Generic("X"), index)},
			Implementation: document.ProtoImpl(proto.IdentityIdentifier),
		}
	}
	t := seen[0]
	target := t.Nested().String()
	inputs := []document.Input{document.ImportInput(t, index)}

	// Lossless conversions win over lossy ones so the choice never depends
	// on registration order.
	if into := registry.WithGeneric(IntoBase, target); reg.Has(into) {
		return &document.Node{Inputs: inputs, Implementation: document.ProtoImpl(into), Visible: true}
	}
	if convert := registry.WithGeneric(ConvertBase, target); reg.Has(convert) {
		inputs = append(inputs, document.ValueInput(types.None(), false))
		return &document.Node{Inputs: inputs, Implementation: document.ProtoImpl(convert), Visible: true}
	}
	return &document.Node{Inputs: inputs, Implementation: document.ProtoImpl(proto.IdentityIdentifier), Visible: true}
}

// fieldType is the type of field i as a node input: the primary field is
// the call argument seen as a unit-callable node.
func fieldType(io types.NodeIOTypes, i int) types.Type {
	if i == 0 {
		return types.Fn(types.Unit, io.CallArgument)
	}
	if i-1 < len(io.Inputs) {
		return io.Inputs[i-1]
	}
	return types.Type{}
}

func containsType(ts []types.Type, t types.Type) bool {
	for _, x := range ts {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

func padFields(fields []registry.FieldMetadata, n int) []registry.FieldMetadata {
	if len(fields) >= n {
		return fields[:n]
	}
	out := make([]registry.FieldMetadata, n)
	copy(out, fields)
	return out
}

// Expand replaces every node implemented by a substituted identifier with a
// copy of its generated network. Generated networks are not descended into,
// so the call to the substituted implementation inside them is kept.
func Expand(net *document.Network, subs Substitutions) {
	if net.Generated {
		return
	}
	for _, id := range net.SortedIDs() {
		node := net.Nodes[id]
		if node.Implementation.Network != nil {
			Expand(node.Implementation.Network, subs)
			continue
		}
		if sub, ok := subs[node.Implementation.Proto]; ok {
			node.Implementation = document.NetworkImpl(sub.Implementation.Network.Clone())
		}
	}
}

// NodeInputs builds the default inputs of a node from its field metadata
// and its first implementation's signature.
func NodeInputs(fields []registry.FieldMetadata, io types.NodeIOTypes) []document.Input {
	count := 1 + len(io.Inputs)
	fields = padFields(fields, count)
	inputs := make([]document.Input, count)
	for i, field := range fields {
		t := fieldType(io, i)
		if field.DefaultType.IsValid() {
			t = field.DefaultType
		}
		exposed := field.Exposed
		if i == 0 {
			exposed = !t.Equal(types.Fn(types.Unit, types.Unit))
		}
		inputs[i] = fieldInput(field, t, exposed)
	}
	return inputs
}

func fieldInput(field registry.FieldMetadata, t types.Type, exposed bool) document.Input {
	switch field.Source {
	case registry.SourceDefault:
		if v, ok := types.FromPrimitiveString(field.Default, t); ok {
			return document.ValueInput(v, exposed)
		}
		logger.Get().Warn("preprocess: failed to parse default value",
			"field", field.Name, "type", t.String(), "data", field.Default)
	case registry.SourceScope:
		return document.ScopeInput(field.Scope)
	}
	if v, ok := types.FromType(t); ok {
		return document.ValueInput(v, exposed)
	}
	return document.ValueInput(types.None(), true)
}

// DefaultNode returns a node for id with every field at its default.
func DefaultNode(reg *registry.Registry, id registry.Identifier) (*document.Node, error) {
	return DefaultNodeFor(reg, id, types.Type{})
}

// DefaultNodeFor is DefaultNode with the defaults typed after the
// implementation evaluated with call, so an i32 AddNode gets an i32 addend.
func DefaultNodeFor(reg *registry.Registry, id registry.Identifier, call types.Type) (*document.Node, error) {
	impl, err := ImplementationFor(reg, id, call)
	if err != nil {
		return nil, err
	}
	meta, _ := reg.Metadata(id)
	return &document.Node{
		Name:           meta.DisplayName,
		Inputs:         NodeInputs(meta.Fields, impl.IO),
		Implementation: document.ProtoImpl(id),
		Visible:        true,
	}, nil
}

// ImplementationFor returns the implementation of id evaluated with call,
// or the first one registered when call is invalid or none matches.
func ImplementationFor(reg *registry.Registry, id registry.Identifier, call types.Type) (registry.Implementation, error) {
	impls := reg.Implementations(id)
	if len(impls) == 0 {
		return registry.Implementation{}, fmt.Errorf("preprocess: %w: %s", proto.ErrNoImplementations, id)
	}
	if call.IsValid() {
		for _, impl := range impls {
			if impl.IO.CallArgument.Equal(call) {
				return impl, nil
			}
		}
	}
	return impls[0], nil
}
