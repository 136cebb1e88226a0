package document

import (
	"errors"
	"fmt"

	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/types"
)

var (
	ErrNoExports        = errors.New("document: network has no exports")
	ErrUnknownNode      = errors.New("document: input references unknown node")
	ErrUnknownScope     = errors.New("document: scope entry not found")
	ErrImportOutOfRange = errors.New("document: import index out of range")
	ErrNoImplementation = errors.New("document: node has no implementation")
	ErrRecursiveNetwork = errors.New("document: nested network depends on itself")
)

type sourceKind uint8

const (
	srcNode sourceKind = iota
	srcValue
	srcImport
)

// source is a resolved input: a proto node, a literal, or a top-level import.
type source struct {
	kind  sourceKind
	node  proto.NodeID
	value types.Value
	index int
}

type flattener struct {
	out        *proto.Network
	next       proto.NodeID
	inputTypes map[int]types.Type
	importers  map[int]proto.NodeID
}

type frame struct {
	f        *flattener
	parent   *frame
	net      *Network
	imports  []source
	ids      map[NodeID]proto.NodeID
	nested   map[NodeID][]source
	visiting map[NodeID]bool
}

// Flatten lowers net into a proto network. Nested networks are inlined,
// imports of the top-level network become network inputs, and scope inputs
// are resolved against the enclosing scope injections. Nodes not reachable
// from the first export are dropped. The result still needs
// proto.Network.ResolveInputs.
func Flatten(net *Network) (*proto.Network, error) {
	if len(net.Exports) == 0 {
		return nil, ErrNoExports
	}
	f := &flattener{
		out:        &proto.Network{},
		inputTypes: map[int]types.Type{},
		importers:  map[int]proto.NodeID{},
	}
	root := f.newFrame(nil, net, nil)
	if err := root.buildAll(); err != nil {
		return nil, err
	}
	out, err := root.resolve(net.Exports[0])
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	f.out.Output = f.materialize(out)

	if len(f.inputTypes) > 0 {
		maxIndex := 0
		for i := range f.inputTypes {
			maxIndex = max(maxIndex, i)
		}
		f.out.InputTypes = make([]types.Type, maxIndex+1)
		for i := range f.out.InputTypes {
			if t, ok := f.inputTypes[i]; ok {
				f.out.InputTypes[i] = t
			} else {
				f.out.InputTypes[i] = types.Unit
			}
		}
	}
	f.prune()
	return f.out, nil
}

func (f *flattener) newFrame(parent *frame, net *Network, imports []source) *frame {
	fr := &frame{
		f:        f,
		parent:   parent,
		net:      net,
		imports:  imports,
		ids:      map[NodeID]proto.NodeID{},
		nested:   map[NodeID][]source{},
		visiting: map[NodeID]bool{},
	}
	for _, id := range net.SortedIDs() {
		if !net.Nodes[id].Implementation.Proto.IsZero() {
			fr.ids[id] = f.alloc()
		}
	}
	return fr
}

func (f *flattener) alloc() proto.NodeID {
	id := f.next
	f.next++
	return id
}

func (f *flattener) add(id proto.NodeID, node *proto.ProtoNode) {
	f.out.Nodes = append(f.out.Nodes, proto.Entry{ID: id, Node: node})
	if node.Input.Kind == proto.NetworkInput {
		f.out.Inputs = append(f.out.Inputs, id)
	}
}

// materialize returns a node producing s, creating one for literals and
// imports.
func (f *flattener) materialize(s source) proto.NodeID {
	switch s.kind {
	case srcValue:
		id := f.alloc()
		f.add(id, proto.NewValueNode(s.value))
		return id
	case srcImport:
		if id, ok := f.importers[s.index]; ok {
			return id
		}
		id := f.alloc()
		f.add(id, &proto.ProtoNode{Identifier: proto.IdentityIdentifier, Input: proto.FromNetwork(s.index)})
		f.importers[s.index] = id
		return id
	}
	return s.node
}

// buildAll emits every proto node of the frame's network.
func (fr *frame) buildAll() error {
	for _, id := range fr.net.SortedIDs() {
		if _, ok := fr.ids[id]; !ok {
			continue
		}
		if err := fr.build(id); err != nil {
			return err
		}
	}
	return nil
}

func (fr *frame) build(id NodeID) error {
	node := fr.net.Nodes[id]
	pn := &proto.ProtoNode{Identifier: node.Implementation.Proto}
	for i, in := range node.Inputs {
		src, err := fr.resolve(in)
		if err != nil {
			return fmt.Errorf("node %d (%s) input %d: %w", id, node.Implementation.Proto, i, err)
		}
		if i == 0 {
			switch {
			case src.kind == srcImport:
				pn.Input = proto.FromNetwork(src.index)
				fr.f.inputTypes[src.index] = fr.importType(src.index, in)
			case src.kind == srcValue && src.value.Type().IsUnit():
				pn.Input = proto.Input{Kind: proto.NoInput}
			default:
				pn.Input = proto.Reference(fr.f.materialize(src))
			}
			continue
		}
		switch src.kind {
		case srcValue:
			pn.Args.Nodes = append(pn.Args.Nodes, proto.LiteralArg(src.value))
		default:
			pn.Args.Nodes = append(pn.Args.Nodes, proto.Arg{Node: fr.f.materialize(src)})
		}
	}
	fr.f.add(fr.ids[id], pn)
	return nil
}

// importType records the declared type of a top-level import, keeping the
// first concrete declaration.
func (fr *frame) importType(index int, in Input) types.Type {
	if t, ok := fr.f.inputTypes[index]; ok && !t.IsGeneric() {
		return t
	}
	if in.Kind == InputImport && in.Type.IsValid() {
		return in.Type.Nested()
	}
	return types.Generic("I")
}

func (fr *frame) resolve(in Input) (source, error) {
	switch in.Kind {
	case InputValue:
		return source{kind: srcValue, value: in.Value}, nil
	case InputImport:
		if fr.parent == nil {
			if _, ok := fr.f.inputTypes[in.Import]; !ok && in.Type.IsValid() {
				fr.f.inputTypes[in.Import] = in.Type.Nested()
			}
			return source{kind: srcImport, index: in.Import}, nil
		}
		if in.Import < 0 || in.Import >= len(fr.imports) {
			return source{}, fmt.Errorf("%w: %d of %d", ErrImportOutOfRange, in.Import, len(fr.imports))
		}
		return fr.imports[in.Import], nil
	case InputScope:
		return fr.scope(in.Scope)
	}

	if id, ok := fr.ids[in.Node]; ok {
		return source{kind: srcNode, node: id}, nil
	}
	node, ok := fr.net.Nodes[in.Node]
	if !ok {
		return source{}, fmt.Errorf("%w: %d", ErrUnknownNode, in.Node)
	}
	if node.Implementation.Network == nil {
		return source{}, fmt.Errorf("%w: %d", ErrNoImplementation, in.Node)
	}
	exports, err := fr.flattenNested(in.Node, node)
	if err != nil {
		return source{}, err
	}
	return exports[0], nil
}

func (fr *frame) flattenNested(id NodeID, node *Node) ([]source, error) {
	if exports, ok := fr.nested[id]; ok {
		return exports, nil
	}
	if fr.visiting[id] {
		return nil, fmt.Errorf("%w: node %d", ErrRecursiveNetwork, id)
	}
	fr.visiting[id] = true
	defer delete(fr.visiting, id)

	inner := node.Implementation.Network
	if len(inner.Exports) == 0 {
		return nil, fmt.Errorf("node %d: %w", id, ErrNoExports)
	}
	imports := make([]source, len(node.Inputs))
	for i, in := range node.Inputs {
		src, err := fr.resolve(in)
		if err != nil {
			return nil, fmt.Errorf("node %d input %d: %w", id, i, err)
		}
		imports[i] = src
	}
	child := fr.f.newFrame(fr, inner, imports)
	if err := child.buildAll(); err != nil {
		return nil, err
	}
	exports := make([]source, len(inner.Exports))
	for i, ex := range inner.Exports {
		src, err := child.resolve(ex)
		if err != nil {
			return nil, fmt.Errorf("node %d export %d: %w", id, i, err)
		}
		exports[i] = src
	}
	fr.nested[id] = exports
	return exports, nil
}

func (fr *frame) scope(key string) (source, error) {
	for cur := fr; cur != nil; cur = cur.parent {
		if in, ok := cur.net.ScopeInjections[key]; ok {
			return cur.resolve(in)
		}
	}
	return source{}, fmt.Errorf("%w: %q", ErrUnknownScope, key)
}

// prune drops nodes the output does not depend on.
func (f *flattener) prune() {
	byID := make(map[proto.NodeID]*proto.ProtoNode, len(f.out.Nodes))
	for _, e := range f.out.Nodes {
		byID[e.ID] = e.Node
	}
	live := map[proto.NodeID]bool{}
	stack := []proto.NodeID{f.out.Output}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if live[id] {
			continue
		}
		live[id] = true
		node := byID[id]
		if node == nil {
			continue
		}
		if node.Input.Kind == proto.ReferenceInput {
			stack = append(stack, node.Input.Node)
		}
		for _, a := range node.Args.Nodes {
			if a.Literal == nil {
				stack = append(stack, a.Node)
			}
		}
	}
	kept := f.out.Nodes[:0]
	for _, e := range f.out.Nodes {
		if live[e.ID] {
			kept = append(kept, e)
		}
	}
	f.out.Nodes = kept
	inputs := f.out.Inputs[:0]
	for _, id := range f.out.Inputs {
		if live[id] {
			inputs = append(inputs, id)
		}
	}
	f.out.Inputs = inputs
}
