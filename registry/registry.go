// Package registry holds the set of node implementations the compiler can
// instantiate. A Registry is built once with a Builder and is read-only
// afterwards, so one instance may be shared by concurrent compilations.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

// ErrDuplicateImplementation is returned by Build when two implementations
// of one identifier share the same input-type combination.
var ErrDuplicateImplementation = errors.New("registry: duplicate implementation")

// Constructor instantiates a node from its construction-argument nodes.
// Arguments are passed unevaluated; the node reads them with runtime.Input.
type Constructor func(args []runtime.Node) (runtime.Node, error)

// Implementation is one concrete signature of a named node.
type Implementation struct {
	IO        types.NodeIOTypes
	Construct Constructor
}

// ValueSource says where an unconnected field gets its value from.
type ValueSource uint8

const (
	// SourceNone means the field falls back to its type's zero value.
	SourceNone ValueSource = iota
	// SourceDefault parses FieldMetadata.Default as the field's literal.
	SourceDefault
	// SourceScope reads the field from the enclosing network's scope.
	SourceScope
)

// FieldMetadata describes one input field of a node. Field 0 is the
// primary input.
type FieldMetadata struct {
	Name    string
	Source  ValueSource
	Default string
	Scope   string
	Exposed bool
	// DefaultType overrides the implementation's input type when building
	// a default value.
	DefaultType types.Type
}

// NodeMetadata describes a node for authoring tools.
type NodeMetadata struct {
	DisplayName string
	Category    string
	Description string
	Fields      []FieldMetadata
}

// Registry maps identifiers to implementations.
type Registry struct {
	impls map[Identifier][]Implementation
	meta  map[Identifier]NodeMetadata
	names []Identifier
}

// Implementations returns the implementations registered for id in
// registration order. The slice must not be modified.
func (r *Registry) Implementations(id Identifier) []Implementation {
	return r.impls[id]
}

// Has reports whether any implementation is registered for id.
func (r *Registry) Has(id Identifier) bool {
	return len(r.impls[id]) > 0
}

// Metadata returns the field metadata for id.
func (r *Registry) Metadata(id Identifier) (NodeMetadata, bool) {
	m, ok := r.meta[id]
	return m, ok
}

// Names returns every identifier with metadata or implementations, sorted.
func (r *Registry) Names() []Identifier {
	return r.names
}

// Builder accumulates registrations.
type Builder struct {
	impls map[Identifier][]Implementation
	meta  map[Identifier]NodeMetadata
	errs  []error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		impls: make(map[Identifier][]Implementation),
		meta:  make(map[Identifier]NodeMetadata),
	}
}

// Register adds an implementation of id.
func (b *Builder) Register(id Identifier, io types.NodeIOTypes, construct Constructor) *Builder {
	key := io.InputKey()
	for _, existing := range b.impls[id] {
		if existing.IO.InputKey() == key {
			b.errs = append(b.errs, fmt.Errorf("%w: %s %s", ErrDuplicateImplementation, id, io))
			return b
		}
	}
	b.impls[id] = append(b.impls[id], Implementation{IO: io, Construct: construct})
	return b
}

// Describe attaches metadata to id.
func (b *Builder) Describe(id Identifier, meta NodeMetadata) *Builder {
	b.meta[id] = meta
	return b
}

// Build freezes the registrations.
func (b *Builder) Build() (*Registry, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	r := &Registry{
		impls: make(map[Identifier][]Implementation, len(b.impls)),
		meta:  make(map[Identifier]NodeMetadata, len(b.meta)),
	}
	seen := map[Identifier]bool{}
	for id, impls := range b.impls {
		r.impls[id] = append([]Implementation(nil), impls...)
		seen[id] = true
	}
	for id, m := range b.meta {
		r.meta[id] = m
		seen[id] = true
	}
	for id := range seen {
		r.names = append(r.names, id)
	}
	sort.Slice(r.names, func(i, j int) bool { return r.names[i].name < r.names[j].name })
	return r, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
