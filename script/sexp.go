package script

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	zygo "github.com/glycerine/zygomys/zygo"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/nodegraph/document"
	"github.com/gogpu/nodegraph/types"
)

// sexpNodeRef is the value of a node expression.
type sexpNodeRef struct {
	id   document.NodeID
	name string
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(node %q #%d)", n.name, n.id)
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpInput carries an import, literal or scope input between builtins.
type sexpInput struct {
	in document.Input
}

func (s *sexpInput) SexpString(ps *zygo.PrintState) string {
	switch s.in.Kind {
	case document.InputImport:
		return fmt.Sprintf("(input %q %d)", s.in.Type.String(), s.in.Import)
	case document.InputScope:
		return fmt.Sprintf("(scope %q)", s.in.Scope)
	}
	return fmt.Sprintf("(lit %q %q)", s.in.Value.Type().String(), s.in.Value.String())
}
func (s *sexpInput) Type() *zygo.RegisteredType { return nil }

var fixedType = types.Of[fixed.Int26_6]()

// Types maps the type names scripts may use. Go spellings are accepted
// alongside the shader ones.
var Types = map[string]types.Type{
	"u32":     types.Of[uint32](),
	"i32":     types.Of[int32](),
	"f32":     types.Of[float32](),
	"f64":     types.Of[float64](),
	"bool":    types.Of[bool](),
	"fixed":   fixedType,
	"unit":    types.Unit,
	"uint32":  types.Of[uint32](),
	"int32":   types.Of[int32](),
	"float32": types.Of[float32](),
	"float64": types.Of[float64](),
}

// TypeNames returns the keys of Types in sorted order.
func TypeNames() []string {
	names := make([]string, 0, len(Types))
	for name := range Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toType(s zygo.Sexp) (types.Type, error) {
	name, err := toString(s)
	if err != nil {
		return types.Type{}, err
	}
	t, ok := Types[name]
	if !ok {
		return types.Type{}, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// literal parses s as a value of t. Fixed-point literals are written in
// whole units and rounded to the nearest 1/64.
func literal(s zygo.Sexp, t types.Type) (types.Value, error) {
	var text string
	switch v := s.(type) {
	case *zygo.SexpStr:
		text = v.S
	case *zygo.SexpInt:
		text = strconv.FormatInt(v.Val, 10)
		if t.Equal(fixedType) {
			return types.NewValue(fixed.I(int(v.Val))), nil
		}
	case *zygo.SexpFloat:
		if t.Equal(fixedType) {
			return types.NewValue(fixed.Int26_6(math.Round(v.Val * 64))), nil
		}
		text = strconv.FormatFloat(v.Val, 'g', -1, 64)
	case *zygo.SexpBool:
		text = strconv.FormatBool(v.Val)
	default:
		return types.Value{}, fmt.Errorf("expected literal, got %T (%s)", s, s.SexpString(nil))
	}
	val, ok := types.FromPrimitiveString(text, t)
	if !ok {
		return types.Value{}, fmt.Errorf("cannot parse %q as %s", text, t)
	}
	return val, nil
}

// toInput converts a builtin argument to a node input.
func toInput(s zygo.Sexp) (document.Input, error) {
	switch v := s.(type) {
	case *sexpNodeRef:
		return document.NodeInput(v.id), nil
	case *sexpInput:
		return v.in, nil
	case *zygo.SexpInt:
		if v.Val >= 0 && v.Val <= math.MaxUint32 {
			return document.ValueInput(types.NewValue(uint32(v.Val)), true), nil
		}
		if v.Val >= math.MinInt32 && v.Val <= math.MaxInt32 {
			return document.ValueInput(types.NewValue(int32(v.Val)), true), nil
		}
		return document.Input{}, fmt.Errorf("integer %d out of 32-bit range", v.Val)
	case *zygo.SexpFloat:
		return document.ValueInput(types.NewValue(float32(v.Val)), true), nil
	case *zygo.SexpBool:
		return document.ValueInput(types.NewValue(v.Val), true), nil
	}
	return document.Input{}, fmt.Errorf("expected node, input or literal, got %T (%s)", s, s.SexpString(nil))
}
