package proto

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

// TypingContext infers the signature of every node of a resolved network and
// selects the implementation each node will be constructed with.
type TypingContext struct {
	reg          *registry.Registry
	inferred     map[NodeID]types.NodeIOTypes
	constructors map[NodeID]registry.Constructor
}

// NewTypingContext returns a context resolving against reg.
func NewTypingContext(reg *registry.Registry) *TypingContext {
	return &TypingContext{
		reg:          reg,
		inferred:     make(map[NodeID]types.NodeIOTypes),
		constructors: make(map[NodeID]registry.Constructor),
	}
}

// Update infers every node of net. The network must be resolved so that
// nodes appear after their dependencies.
func (tc *TypingContext) Update(net *Network) error {
	for _, e := range net.Nodes {
		if err := tc.infer(net, e.ID, e.Node); err != nil {
			return err
		}
	}
	return nil
}

// TypeOf returns the inferred signature of id.
func (tc *TypingContext) TypeOf(id NodeID) (types.NodeIOTypes, bool) {
	io, ok := tc.inferred[id]
	return io, ok
}

// Constructor returns the constructor selected for id. Value and compose
// nodes have none.
func (tc *TypingContext) Constructor(id NodeID) (registry.Constructor, bool) {
	c, ok := tc.constructors[id]
	return c, ok
}

// argType is the type a node has when used as a construction argument.
func (tc *TypingContext) argType(id NodeID) types.Type {
	return types.Fn(types.Unit, tc.inferred[id].Return)
}

type candidate struct {
	resolved types.NodeIOTypes
	impl     registry.Implementation
}

func (tc *TypingContext) infer(net *Network, id NodeID, node *ProtoNode) error {
	if _, ok := tc.inferred[id]; ok {
		return nil
	}
	if node.IsValue() {
		tc.inferred[id] = types.NewNodeIO(types.Unit, node.Args.Value.Type())
		return nil
	}

	inputs := make([]types.Type, len(node.Args.Nodes))
	for i, a := range node.Args.Nodes {
		if _, ok := tc.inferred[a.Node]; !ok {
			return graphErr(ErrInputNodeNotFound, id, node, "argument %d references untyped node %d", i, a.Node)
		}
		if arg, ok := net.Node(a.Node); ok && arg.Input.Kind == ComposedInput && !node.IsCompose() {
			return graphErr(ErrUnexpectedCallArgument, id, node, "argument %d (node %d) is only callable through its compose node", i, a.Node)
		}
		inputs[i] = tc.argType(a.Node)
	}

	if node.IsCompose() {
		if len(node.Args.Nodes) != 2 {
			return graphErr(ErrUnresolvedType, id, node, "compose node needs 2 arguments, has %d", len(node.Args.Nodes))
		}
		second := tc.inferred[node.Args.Nodes[1].Node]
		tc.inferred[id] = types.NewNodeIO(types.Unit, second.Return, inputs...)
		return nil
	}

	call, err := tc.callType(net, id, node)
	if err != nil {
		return err
	}

	impls := tc.reg.Implementations(node.Identifier)
	if len(impls) == 0 {
		return graphErr(ErrNoImplementations, id, node, "")
	}
	for i, in := range inputs {
		if in.IsFn() && in.Out().IsGeneric() {
			return graphErr(ErrUnexpectedGenerics, id, node, "input %d has generic type %s", i, in)
		}
	}

	var valid []candidate
	for _, impl := range impls {
		if !accepts(impl.IO, call, inputs) {
			continue
		}
		lookup := map[string]types.Type{}
		ok := true
		for _, g := range types.CollectGenerics(impl.IO) {
			bound, err := types.CheckGeneric(impl.IO, call, inputs, g)
			if err != nil {
				ok = false
				break
			}
			lookup[g] = bound
		}
		if ok {
			valid = append(valid, candidate{resolved: types.ReplaceGenerics(impl.IO, lookup), impl: impl})
		}
	}

	var chosen *candidate
	switch len(valid) {
	case 0:
		return graphErr(ErrInvalidImplementations, id, node, "%s", describeMismatch(impls, call, inputs))
	case 1:
		chosen = &valid[0]
	case 2:
		// Two candidates that differ only in accepting () resolve to the
		// () one.
		if !valid[0].resolved.CallArgument.Equal(valid[1].resolved.CallArgument) {
			for i := range valid {
				if valid[i].resolved.CallArgument.IsUnit() {
					chosen = &valid[i]
					break
				}
			}
		}
	}
	if chosen == nil {
		sigs := make([]string, len(valid))
		for i, c := range valid {
			sigs[i] = c.resolved.String()
		}
		return graphErr(ErrMultipleImplementations, id, node, "call argument %s matches %s", call, strings.Join(sigs, "; "))
	}
	if chosen.impl.Construct == nil {
		return graphErr(ErrNoConstructor, id, node, "")
	}
	tc.inferred[id] = chosen.resolved
	tc.constructors[id] = chosen.impl.Construct
	return nil
}

func (tc *TypingContext) callType(net *Network, id NodeID, node *ProtoNode) (types.Type, error) {
	switch node.Input.Kind {
	case NoInput:
		return types.Unit, nil
	case NetworkInput:
		if node.Input.Index < 0 || node.Input.Index >= len(net.InputTypes) {
			return types.Type{}, graphErr(ErrUnresolvedType, id, node, "network input %d is not declared", node.Input.Index)
		}
		return net.InputTypes[node.Input.Index], nil
	default:
		io, ok := tc.inferred[node.Input.Node]
		if !ok {
			return types.Type{}, graphErr(ErrInputNodeNotFound, id, node, "call argument references untyped node %d", node.Input.Node)
		}
		return io.Return, nil
	}
}

func accepts(io types.NodeIOTypes, call types.Type, inputs []types.Type) bool {
	if !types.Valid(io.CallArgument, call) || len(io.Inputs) != len(inputs) {
		return false
	}
	for i, in := range inputs {
		if !types.Valid(in, io.Inputs[i]) {
			return false
		}
	}
	return true
}

// describeMismatch lists, for the implementations closest to matching, which
// positions were rejected.
func describeMismatch(impls []registry.Implementation, call types.Type, inputs []types.Type) string {
	best := -1
	var reports []string
	for _, impl := range impls {
		var bad []string
		if !types.Valid(impl.IO.CallArgument, call) {
			bad = append(bad, fmt.Sprintf("call argument: found %s, expected %s", call, impl.IO.CallArgument))
		}
		if len(impl.IO.Inputs) != len(inputs) {
			bad = append(bad, fmt.Sprintf("found %d inputs, expected %d", len(inputs), len(impl.IO.Inputs)))
		} else {
			for i, in := range inputs {
				if !types.Valid(in, impl.IO.Inputs[i]) {
					bad = append(bad, fmt.Sprintf("input %d: found %s, expected %s", i+1, in, impl.IO.Inputs[i]))
				}
			}
		}
		switch {
		case best < 0 || len(bad) < best:
			best = len(bad)
			reports = []string{strings.Join(bad, ", ")}
		case len(bad) == best:
			reports = append(reports, strings.Join(bad, ", "))
		}
	}
	sort.Strings(reports)
	return strings.Join(reports, "; ")
}
