// Package document is the authored form of a node graph: nested networks of
// nodes whose inputs are wired to other nodes, literals, network imports or
// scope entries. Flatten lowers a document network into a proto.Network.
package document

import (
	"sort"
	"sync/atomic"

	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

// NodeID identifies a node within its enclosing Network.
type NodeID uint64

var lastID atomic.Uint64

// NewNodeID returns a process-unique node id.
func NewNodeID() NodeID {
	return NodeID(lastID.Add(1))
}

// InputKind discriminates Input.
type InputKind uint8

const (
	InputNode InputKind = iota
	InputValue
	InputImport
	InputScope
)

// Input is one input connector of a node, or one export of a network.
type Input struct {
	Kind InputKind
	// Node is the upstream node for InputNode.
	Node NodeID
	// Value and Exposed describe an InputValue.
	Value   types.Value
	Exposed bool
	// Type and Import describe an InputImport.
	Type   types.Type
	Import int
	// Scope names an InputScope entry.
	Scope string
}

// NodeInput wires the output of id.
func NodeInput(id NodeID) Input { return Input{Kind: InputNode, Node: id} }

// ValueInput supplies a literal.
func ValueInput(v types.Value, exposed bool) Input {
	return Input{Kind: InputValue, Value: v, Exposed: exposed}
}

// ImportInput reads import index of the enclosing network.
func ImportInput(t types.Type, index int) Input {
	return Input{Kind: InputImport, Type: t, Import: index}
}

// ScopeInput reads key from the nearest enclosing scope injection.
func ScopeInput(key string) Input { return Input{Kind: InputScope, Scope: key} }

// Implementation is either a registry identifier or a nested network.
type Implementation struct {
	Proto   registry.Identifier
	Network *Network
}

// ProtoImpl refers to a registry identifier.
func ProtoImpl(id registry.Identifier) Implementation { return Implementation{Proto: id} }

// NetworkImpl refers to a nested network.
func NetworkImpl(n *Network) Implementation { return Implementation{Network: n} }

// Node is one authored node. Inputs[0] is the primary input; the rest are
// construction arguments.
type Node struct {
	Name           string
	Inputs         []Input
	Implementation Implementation
	Visible        bool
}

// Network is a set of nodes with one or more exports.
type Network struct {
	Nodes   map[NodeID]*Node
	Exports []Input
	// ScopeInjections make an input of this network available to every
	// nested node through ScopeInput.
	ScopeInjections map[string]Input
	// Generated marks networks synthesized by the substitution generator.
	Generated bool
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{Nodes: make(map[NodeID]*Node)}
}

// Add inserts node under a fresh id and returns the id.
func (n *Network) Add(node *Node) NodeID {
	id := NewNodeID()
	n.Nodes[id] = node
	return id
}

// SortedIDs returns the node ids in ascending order.
func (n *Network) SortedIDs() []NodeID {
	ids := make([]NodeID, 0, len(n.Nodes))
	for id := range n.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a deep copy of n. Literal values are shared.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	c := &Network{
		Nodes:     make(map[NodeID]*Node, len(n.Nodes)),
		Exports:   append([]Input(nil), n.Exports...),
		Generated: n.Generated,
	}
	if n.ScopeInjections != nil {
		c.ScopeInjections = make(map[string]Input, len(n.ScopeInjections))
		for k, v := range n.ScopeInjections {
			c.ScopeInjections[k] = v
		}
	}
	for id, node := range n.Nodes {
		c.Nodes[id] = node.Clone()
	}
	return c
}

// Clone returns a deep copy of node.
func (node *Node) Clone() *Node {
	c := *node
	c.Inputs = append([]Input(nil), node.Inputs...)
	c.Implementation.Network = node.Implementation.Network.Clone()
	return &c
}
