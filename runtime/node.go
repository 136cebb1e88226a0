package runtime

// Node is an opaque, evaluable node.
type Node interface {
	// Eval runs the node on in. It panics with *TypeMismatchError if in does
	// not carry the type the node expects.
	Eval(in Any) Any
	// Name identifies the node in diagnostics.
	Name() string
}

type typedNode[I, O any] struct {
	name string
	fn   func(I) O
}

// Typed wraps a statically typed function as an opaque node. The input is
// downcast to I before fn runs and the result is boxed as O.
func Typed[I, O any](name string, fn func(I) O) Node {
	return &typedNode[I, O]{name: name, fn: fn}
}

func (n *typedNode[I, O]) Eval(in Any) Any {
	return Box(n.fn(Downcast[I](in, n.name)))
}

func (n *typedNode[I, O]) Name() string { return n.name }

type funcNode struct {
	name string
	fn   func(Any) Any
}

// Func wraps an untyped function. Used for nodes that forward values
// without inspecting them, such as identity.
func Func(name string, fn func(Any) Any) Node {
	return &funcNode{name: name, fn: fn}
}

func (n *funcNode) Eval(in Any) Any { return n.fn(in) }
func (n *funcNode) Name() string    { return n.name }

type valueNode struct {
	name  string
	value Any
}

// Value returns a node that ignores its input and yields v.
func Value(name string, v Any) Node {
	return &valueNode{name: name, value: v}
}

func (n *valueNode) Eval(Any) Any  { return n.value }
func (n *valueNode) Name() string { return n.name }

type composeNode struct {
	first, second Node
}

// Compose returns a node evaluating second on the output of first.
func Compose(first, second Node) Node {
	return &composeNode{first: first, second: second}
}

func (n *composeNode) Eval(in Any) Any {
	return n.second.Eval(n.first.Eval(in))
}

func (n *composeNode) Name() string {
	return n.first.Name() + " -> " + n.second.Name()
}

// Input evaluates an argument node with the unit value and downcasts the
// result. Construction-argument nodes are read this way.
func Input[T any](arg Node) T {
	return Downcast[T](arg.Eval(Unit), arg.Name())
}

// DowncastNode is the terminal of an opaque graph: it recovers a concrete
// value for consumption outside the type-erased world.
type DowncastNode[O any] struct {
	node Node
}

// Terminal wraps n so its output is returned as O.
func Terminal[O any](n Node) *DowncastNode[O] {
	return &DowncastNode[O]{node: n}
}

// Eval evaluates the wrapped node and downcasts its output, panicking on a
// tag mismatch.
func (d *DowncastNode[O]) Eval(in Any) O {
	return Downcast[O](d.node.Eval(in), d.node.Name())
}
