package nodes

import (
	"math"

	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
	"github.com/gogpu/nodegraph/types"
)

// ScaleID multiplies its primary input by a float64 factor. The factor
// field has one type across every implementation, so the substitution
// generator feeds it through an Into<float64> adapter and any losslessly
// widening type can be wired to it.
var ScaleID = registry.NewIdentifier("ops::ScaleNode")

func registerScale(b *registry.Builder) {
	scaleBy(b, func(x uint32, f float64) uint32 {
		return saturate[uint32](math.Round(float64(x)*f), 0, math.MaxUint32)
	})
	scaleBy(b, func(x int32, f float64) int32 {
		return saturate[int32](math.Round(float64(x)*f), math.MinInt32, math.MaxInt32)
	})
	scaleBy(b, func(x float32, f float64) float32 { return float32(float64(x) * f) })
	scaleBy(b, func(x float64, f float64) float64 { return x * f })
	scaleBy(b, func(x Fixed, f float64) Fixed { return toFixed(float64(x) / 64 * f) })

	b.Describe(ScaleID, registry.NodeMetadata{
		DisplayName: "Scale",
		Category:    "Math",
		Description: "Multiplies the primary input by a floating-point factor.",
		Fields: []registry.FieldMetadata{
			{Name: "Value"},
			{Name: "Factor", Source: registry.SourceDefault, Default: "1", Exposed: true},
		},
	})
}

func scaleBy[T any](b *registry.Builder, fn func(T, float64) T) {
	t := types.Of[T]()
	io := types.NewNodeIO(t, t, types.Fn(types.Unit, types.Of[float64]()))
	b.Register(ScaleID, io, func(args []runtime.Node) (runtime.Node, error) {
		if err := arity(ScaleID, args, 1); err != nil {
			return nil, err
		}
		factor := args[0]
		return runtime.Typed(ScaleID.String(), func(x T) T {
			return fn(x, runtime.Input[float64](factor))
		}), nil
	})
}
