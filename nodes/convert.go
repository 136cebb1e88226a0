package nodes

import (
	"math"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/nodegraph/preprocess"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

// Fixed is the 26.6 fixed-point type used for pixel coordinates.
type Fixed = fixed.Int26_6

// IntoID returns the lossless adapter producing T.
func IntoID[T any]() registry.Identifier {
	return registry.WithGeneric(preprocess.IntoBase, types.Of[T]().String())
}

// ConvertID returns the lossy adapter producing T.
func ConvertID[T any]() registry.Identifier {
	return registry.WithGeneric(preprocess.ConvertBase, types.Of[T]().String())
}

func registerAdapters(b *registry.Builder) {
	into(b, func(x uint32) float64 { return float64(x) })
	into(b, func(x int32) float64 { return float64(x) })
	into(b, func(x float32) float64 { return float64(x) })
	into(b, func(x Fixed) float64 { return float64(x) / 64 })
	into(b, func(x uint32) uint32 { return x })
	into(b, func(x int32) int32 { return x })
	into(b, func(x float32) float32 { return x })
	into(b, func(x float64) float64 { return x })
	into(b, func(x Fixed) Fixed { return x })
	into(b, func(x int32) Fixed { return fixed.I(int(x)) })

	convert(b, func(x float64) float32 { return float32(x) })
	convert(b, func(x uint32) float32 { return float32(x) })
	convert(b, func(x int32) float32 { return float32(x) })
	convert(b, func(x float32) uint32 { return saturate[uint32](float64(x), 0, math.MaxUint32) })
	convert(b, func(x float64) uint32 { return saturate[uint32](x, 0, math.MaxUint32) })
	convert(b, func(x float32) int32 { return saturate[int32](float64(x), math.MinInt32, math.MaxInt32) })
	convert(b, func(x float64) int32 { return saturate[int32](x, math.MinInt32, math.MaxInt32) })
	convert(b, func(x float32) Fixed { return toFixed(float64(x)) })
	convert(b, func(x float64) Fixed { return toFixed(x) })
	convert(b, func(x Fixed) int32 { return int32(x.Round()) })
	convert(b, func(x Fixed) float32 { return float32(x) / 64 })

	t := types.Of[Fixed]()
	b.Register(RoundID, types.NewNodeIO(t, t), func(args []runtime.Node) (runtime.Node, error) {
		if err := arity(RoundID, args, 0); err != nil {
			return nil, err
		}
		return runtime.Typed(RoundID.String(), func(x Fixed) Fixed { return fixed.I(x.Round()) }), nil
	})
}

// into registers fn as the lossless adapter from I to O.
func into[I, O any](b *registry.Builder, fn func(I) O) {
	id := IntoID[O]()
	b.Register(id, types.NewNodeIO(types.Of[I](), types.Of[O]()), func(args []runtime.Node) (runtime.Node, error) {
		if err := arity(id, args, 0); err != nil {
			return nil, err
		}
		return runtime.Typed(id.String(), fn), nil
	})
}

// convert registers fn as the lossy adapter from I to O. The adapter takes
// one unit argument, which it ignores.
func convert[I, O any](b *registry.Builder, fn func(I) O) {
	id := ConvertID[O]()
	io := types.NewNodeIO(types.Of[I](), types.Of[O](), types.Fn(types.Unit, types.Unit))
	b.Register(id, io, func(args []runtime.Node) (runtime.Node, error) {
		if err := arity(id, args, 1); err != nil {
			return nil, err
		}
		return runtime.Typed(id.String(), fn), nil
	})
}

func saturate[T int32 | uint32](x, lo, hi float64) T {
	switch {
	case math.IsNaN(x):
		return 0
	case x <= lo:
		return T(lo)
	case x >= hi:
		return T(hi)
	}
	return T(x)
}

func toFixed(x float64) Fixed {
	return Fixed(math.Round(x * 64))
}

func registerFixed(b *registry.Builder) {
	t := types.Of[Fixed]()
	io := types.NewNodeIO(t, t, types.Fn(types.Unit, t))
	b.Register(AddID, io, binary(AddID, func(x, y Fixed) Fixed { return x + y })).
		Register(MultiplyID, io, binary(MultiplyID, func(x, y Fixed) Fixed { return x.Mul(y) })).
		Register(MaxID, io, binary(MaxID, func(x, y Fixed) Fixed { return max(x, y) }))
}
