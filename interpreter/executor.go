// Package interpreter is the CPU backend. It instantiates every node of a
// resolved proto network through the registry, wires them with compose
// nodes, and evaluates the output node on demand.
package interpreter

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gogpu/nodegraph/internal/logger"
	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

var (
	// ErrInputCount is returned when Execute gets the wrong number of inputs.
	ErrInputCount = errors.New("interpreter: wrong number of network inputs")
	// ErrInputType is returned when a network input has the wrong type.
	ErrInputType = errors.New("interpreter: network input has wrong type")
	// ErrOutputType is returned by ExecuteTyped when the output type differs.
	ErrOutputType = errors.New("interpreter: network output has wrong type")
)

// CachePolicy selects which nodes get a memoizing cache slot.
type CachePolicy uint8

const (
	// CacheInputIndependent caches nodes whose output cannot depend on the
	// network inputs.
	CacheInputIndependent CachePolicy = iota
	// CacheNone evaluates every node on every call.
	CacheNone
	// CacheAll caches every node. Later calls return the first result
	// whatever the inputs are, until Reset.
	CacheAll
)

func (p CachePolicy) String() string {
	switch p {
	case CacheInputIndependent:
		return "input-independent"
	case CacheNone:
		return "none"
	case CacheAll:
		return "all"
	}
	return fmt.Sprintf("CachePolicy(%d)", uint8(p))
}

type options struct {
	policy CachePolicy
}

// Option configures an Executor.
type Option func(*options)

// WithCachePolicy sets the cache policy. The default is CacheInputIndependent.
func WithCachePolicy(p CachePolicy) Option {
	return func(o *options) { o.policy = p }
}

// Executor evaluates one network. It owns its cache slots and must not be
// used from several goroutines at once.
type Executor struct {
	net        *proto.Network
	types      *proto.TypingContext
	nodes      []runtime.Node
	caches     []*runtime.CacheNode
	slots      []runtime.Any
	output     runtime.Node
	outputType types.Type
}

// New resolves net, infers its types against reg, and instantiates every
// node. Type and construction errors are reported before anything runs.
func New(reg *registry.Registry, net *proto.Network, opts ...Option) (*Executor, error) {
	o := options{policy: CacheInputIndependent}
	for _, opt := range opts {
		opt(&o)
	}
	if err := net.ResolveInputs(); err != nil {
		return nil, err
	}
	tc := proto.NewTypingContext(reg)
	if err := tc.Update(net); err != nil {
		return nil, err
	}

	e := &Executor{
		net:   net,
		types: tc,
		nodes: make([]runtime.Node, len(net.Nodes)),
		slots: make([]runtime.Any, len(net.InputTypes)),
	}
	dependsOnInput := make([]bool, len(net.Nodes))
	for _, entry := range net.Nodes {
		id, node := entry.ID, entry.Node
		inst, err := e.instantiate(id, node)
		if err != nil {
			return nil, err
		}

		dep := node.Input.Kind == proto.NetworkInput
		for _, a := range node.Args.Nodes {
			dep = dep || dependsOnInput[a.Node]
		}
		dependsOnInput[id] = dep

		if e.cacheable(o.policy, node, dep) {
			c := runtime.Cache(inst)
			e.caches = append(e.caches, c)
			inst = c
		}
		e.nodes[id] = inst
	}

	e.output = e.nodes[net.Output]
	io, _ := tc.TypeOf(net.Output)
	e.outputType = io.Return
	logger.Get().Debug("interpreter: executor ready",
		"nodes", len(net.Nodes), "cached", len(e.caches), "policy", o.policy.String(), "output", e.outputType.String())
	return e, nil
}

func (e *Executor) instantiate(id proto.NodeID, node *proto.ProtoNode) (runtime.Node, error) {
	name := fmt.Sprintf("%s#%d", node.Identifier, id)
	switch {
	case node.IsValue():
		return runtime.Value(name, runtime.FromValue(*node.Args.Value)), nil
	case node.IsCompose():
		return runtime.Compose(e.nodes[node.Args.Nodes[0].Node], e.nodes[node.Args.Nodes[1].Node]), nil
	}

	construct, ok := e.types.Constructor(id)
	if !ok {
		return nil, &proto.GraphError{Kind: proto.ErrNoConstructor, Node: id, Identifier: node.Identifier}
	}
	args := make([]runtime.Node, len(node.Args.Nodes))
	for i, a := range node.Args.Nodes {
		args[i] = e.nodes[a.Node]
	}
	inst, err := construct(args)
	if err != nil {
		return nil, &proto.GraphError{Kind: proto.ErrNoConstructor, Node: id, Identifier: node.Identifier, Msg: err.Error()}
	}
	if node.Input.Kind == proto.NetworkInput {
		index := node.Input.Index
		slot := runtime.Func(fmt.Sprintf("input[%d]", index), func(runtime.Any) runtime.Any { return e.slots[index] })
		inst = runtime.Compose(slot, inst)
	}
	return inst, nil
}

func (e *Executor) cacheable(policy CachePolicy, node *proto.ProtoNode, dependsOnInput bool) bool {
	if node.IsValue() || node.Input.Kind == proto.ComposedInput {
		return false
	}
	switch policy {
	case CacheAll:
		return true
	case CacheInputIndependent:
		return !dependsOnInput
	}
	return false
}

// Execute evaluates the network with the given network inputs.
func (e *Executor) Execute(inputs ...runtime.Any) (runtime.Any, error) {
	if err := e.store(inputs); err != nil {
		return runtime.Any{}, err
	}
	return e.output.Eval(runtime.Unit), nil
}

// ExecuteTyped evaluates e and returns the output as T.
func ExecuteTyped[T any](e *Executor, inputs ...runtime.Any) (T, error) {
	var zero T
	if want := reflect.TypeFor[T](); e.outputType.Reflect() != want {
		return zero, fmt.Errorf("%w: network produces %s, want %v", ErrOutputType, e.outputType, want)
	}
	if err := e.store(inputs); err != nil {
		return zero, err
	}
	return runtime.Terminal[T](e.output).Eval(runtime.Unit), nil
}

func (e *Executor) store(inputs []runtime.Any) error {
	if len(inputs) != len(e.slots) {
		return fmt.Errorf("%w: got %d, want %d", ErrInputCount, len(inputs), len(e.slots))
	}
	for i, in := range inputs {
		want := e.net.InputTypes[i]
		if !want.IsGeneric() && in.Tag() != want.Reflect() {
			return fmt.Errorf("%w: input %d is %v, want %s", ErrInputType, i, in.Tag(), want)
		}
	}
	copy(e.slots, inputs)
	return nil
}

// Reset empties every cache slot.
func (e *Executor) Reset() {
	for _, c := range e.caches {
		c.Reset()
	}
}

// OutputType returns the type Execute produces.
func (e *Executor) OutputType() types.Type { return e.outputType }

// InputTypes returns the types Execute expects.
func (e *Executor) InputTypes() []types.Type { return e.net.InputTypes }

// Network returns the resolved network being executed.
func (e *Executor) Network() *proto.Network { return e.net }

// TypeOf returns the inferred signature of a node.
func (e *Executor) TypeOf(id proto.NodeID) (types.NodeIOTypes, bool) { return e.types.TypeOf(id) }
