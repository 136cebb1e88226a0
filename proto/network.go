// Package proto is the intermediate representation shared by the CPU and
// GPU backends. A Network is built per compile, made consistent by
// ResolveInputs, typed by a TypingContext, and then consumed by a backend.
package proto

import (
	"fmt"
	"strings"

	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

// NodeID identifies a node within one Network.
type NodeID uint64

// ComposeIdentifier names the structural node ResolveInputs inserts to feed
// the output of one node into the call argument of another.
var ComposeIdentifier = registry.NewIdentifier("core::structural::ComposeNode")

// ValueIdentifier names literal nodes.
var ValueIdentifier = registry.NewIdentifier("core::value::ValueNode")

// IdentityIdentifier names the passthrough node used for network inputs and
// substitution adapters.
var IdentityIdentifier = registry.NewIdentifier("core::ops::IdentityNode")

// InputKind says where a node's call argument comes from.
type InputKind uint8

const (
	// NoInput nodes are evaluated with the unit value.
	NoInput InputKind = iota
	// ReferenceInput nodes take the output of another node. ResolveInputs
	// turns every reference into ComposedInput plus a compose node.
	ReferenceInput
	// NetworkInput nodes read one of the network's inputs.
	NetworkInput
	// ComposedInput nodes are called by a compose node with the output of
	// Node. Only the compose node may reference them.
	ComposedInput
)

// Input is the call-argument source of a node.
type Input struct {
	Kind  InputKind
	Node  NodeID
	Index int
}

// Reference returns an input that reads the output of id.
func Reference(id NodeID) Input { return Input{Kind: ReferenceInput, Node: id} }

// FromNetwork returns an input that reads network input index.
func FromNetwork(index int) Input { return Input{Kind: NetworkInput, Index: index} }

// Arg is one construction argument. Before ResolveInputs an argument may be
// an inline literal; afterwards every argument references a node.
type Arg struct {
	Node    NodeID
	Literal *types.Value
}

// ConstructionArgs are either nested node references or a literal value.
type ConstructionArgs struct {
	Nodes []Arg
	Value *types.Value
}

// NodeArgs references ids as construction arguments.
func NodeArgs(ids ...NodeID) ConstructionArgs {
	args := make([]Arg, len(ids))
	for i, id := range ids {
		args[i] = Arg{Node: id}
	}
	return ConstructionArgs{Nodes: args}
}

// LiteralArg is an inline literal construction argument.
func LiteralArg(v types.Value) Arg { return Arg{Literal: &v} }

// ValueArgs makes a literal node's arguments.
func ValueArgs(v types.Value) ConstructionArgs { return ConstructionArgs{Value: &v} }

// ProtoNode is one node of the IR.
type ProtoNode struct {
	Identifier registry.Identifier
	Input      Input
	Args       ConstructionArgs
}

// NewValueNode returns a literal node.
func NewValueNode(v types.Value) *ProtoNode {
	return &ProtoNode{Identifier: ValueIdentifier, Args: ValueArgs(v)}
}

// IsValue reports whether n is a literal node.
func (n *ProtoNode) IsValue() bool { return n.Args.Value != nil }

// IsCompose reports whether n is a structural compose node.
func (n *ProtoNode) IsCompose() bool { return n.Identifier == ComposeIdentifier }

// Entry pairs a node with its id.
type Entry struct {
	ID   NodeID
	Node *ProtoNode
}

// Network is an ordered collection of nodes with designated inputs and one
// output.
type Network struct {
	Nodes []Entry
	// Inputs lists the nodes reading network inputs.
	Inputs []NodeID
	// InputTypes holds the type of each network input by index.
	InputTypes []types.Type
	Output     NodeID
}

// Node returns the node with the given id.
func (n *Network) Node(id NodeID) (*ProtoNode, bool) {
	for _, e := range n.Nodes {
		if e.ID == id {
			return e.Node, true
		}
	}
	return nil, false
}

// Add appends node with the next free id and returns the id.
func (n *Network) Add(node *ProtoNode) NodeID {
	id := n.nextID()
	n.Nodes = append(n.Nodes, Entry{ID: id, Node: node})
	if node.Input.Kind == NetworkInput {
		n.Inputs = append(n.Inputs, id)
	}
	return id
}

func (n *Network) nextID() NodeID {
	var next NodeID
	for _, e := range n.Nodes {
		if e.ID >= next {
			next = e.ID + 1
		}
	}
	return next
}

func (n *Network) index() map[NodeID]*ProtoNode {
	m := make(map[NodeID]*ProtoNode, len(n.Nodes))
	for _, e := range n.Nodes {
		m[e.ID] = e.Node
	}
	return m
}

// dependencies returns the ids node reads from, call argument first.
func dependencies(node *ProtoNode) []NodeID {
	var deps []NodeID
	if node.Input.Kind == ReferenceInput || node.Input.Kind == ComposedInput {
		deps = append(deps, node.Input.Node)
	}
	for _, a := range node.Args.Nodes {
		if a.Literal == nil {
			deps = append(deps, a.Node)
		}
	}
	return deps
}

// Validate checks that every reference resolves and that the network is
// acyclic, without modifying it.
func (n *Network) Validate() error {
	if len(n.Nodes) == 0 {
		return ErrEmptyNetwork
	}
	if err := n.checkReferences(); err != nil {
		return err
	}
	_, err := n.topologicalOrder()
	return err
}

func (n *Network) checkReferences() error {
	idx := n.index()
	for _, e := range n.Nodes {
		for _, dep := range dependencies(e.Node) {
			if _, ok := idx[dep]; !ok {
				return graphErr(ErrInputNodeNotFound, e.ID, e.Node, "references missing node %d", dep)
			}
		}
	}
	if _, ok := idx[n.Output]; !ok {
		return graphErr(ErrInputNodeNotFound, n.Output, nil, "output node does not exist")
	}
	for _, id := range n.Inputs {
		if _, ok := idx[id]; !ok {
			return graphErr(ErrInputNodeNotFound, id, nil, "network input node does not exist")
		}
	}
	return nil
}

func (n *Network) String() string {
	var b strings.Builder
	for _, e := range n.Nodes {
		fmt.Fprintf(&b, "%d: %s", e.ID, e.Node.Identifier)
		switch e.Node.Input.Kind {
		case ReferenceInput:
			fmt.Fprintf(&b, " <- %d", e.Node.Input.Node)
		case ComposedInput:
			fmt.Fprintf(&b, " <= %d", e.Node.Input.Node)
		case NetworkInput:
			fmt.Fprintf(&b, " <- input[%d]", e.Node.Input.Index)
		}
		if e.Node.Args.Value != nil {
			fmt.Fprintf(&b, " = %s", e.Node.Args.Value)
		}
		for _, a := range e.Node.Args.Nodes {
			if a.Literal != nil {
				fmt.Fprintf(&b, " (%s)", a.Literal)
			} else {
				fmt.Fprintf(&b, " (%d)", a.Node)
			}
		}
		if e.ID == n.Output {
			b.WriteString(" [output]")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
