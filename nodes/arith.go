package nodes

import (
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

type number interface {
	~uint32 | ~int32 | ~float32 | ~float64
}

func registerArithmetic[T number](b *registry.Builder) {
	t := types.Of[T]()
	io := types.NewNodeIO(t, t, types.Fn(types.Unit, t))
	b.Register(AddID, io, binary(AddID, func(x, y T) T { return x + y })).
		Register(MultiplyID, io, binary(MultiplyID, func(x, y T) T { return x * y })).
		Register(MaxID, io, binary(MaxID, func(x, y T) T { return max(x, y) }))
}

// binary builds a node applying fn to its call argument and its single
// construction argument.
func binary[T any](id registry.Identifier, fn func(x, y T) T) registry.Constructor {
	return func(args []runtime.Node) (runtime.Node, error) {
		if err := arity(id, args, 1); err != nil {
			return nil, err
		}
		operand := args[0]
		return runtime.Typed(id.String(), func(x T) T {
			return fn(x, runtime.Input[T](operand))
		}), nil
	}
}
