package types

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Value is a literal tagged with its type. Literal construction arguments
// and field defaults are carried as Values.
type Value struct {
	typ Type
	v   any
}

// NewValue tags v with the concrete type of T.
func NewValue[T any](v T) Value {
	return Value{typ: Of[T](), v: v}
}

// None is the unit literal.
func None() Value { return NewValue(UnitValue{}) }

// Type returns the literal's type.
func (v Value) Type() Type { return v.typ }

// Interface returns the literal's Go value.
func (v Value) Interface() any { return v.v }

// IsValid reports whether v holds a literal.
func (v Value) IsValid() bool { return v.typ.IsValid() }

func (v Value) String() string {
	if v.typ.IsUnit() {
		return "()"
	}
	return fmt.Sprintf("%v", v.v)
}

// FromPrimitiveString parses s as a literal of type t. Fn types parse as
// their nested output. Only scalar kinds are supported.
func FromPrimitiveString(s string, t Type) (Value, bool) {
	t = t.Nested()
	if t.kind != KindConcrete {
		return Value{}, false
	}
	if t.IsUnit() {
		s = strings.TrimSpace(s)
		return None(), s == "" || s == "()"
	}
	rv := reflect.New(t.rt).Elem()
	s = strings.TrimSpace(s)
	switch t.rt.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, false
		}
		rv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 0, t.rt.Bits())
		if err != nil {
			return Value{}, false
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSuffix(s, "u"), 0, t.rt.Bits())
		if err != nil {
			return Value{}, false
		}
		rv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "f"), t.rt.Bits())
		if err != nil {
			return Value{}, false
		}
		rv.SetFloat(f)
	case reflect.String:
		rv.SetString(s)
	default:
		return Value{}, false
	}
	return Value{typ: t, v: rv.Interface()}, true
}

// FromType returns the zero literal of t, if t has one.
func FromType(t Type) (Value, bool) {
	t = t.Nested()
	if t.kind != KindConcrete {
		return Value{}, false
	}
	switch t.rt.Kind() {
	case reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return Value{}, false
	}
	return Value{typ: t, v: reflect.Zero(t.rt).Interface()}, true
}

// PrimitiveString renders the literal as GPU shader source.
func (v Value) PrimitiveString() string {
	switch x := v.v.(type) {
	case uint32:
		return strconv.FormatUint(uint64(x), 10) + "u"
	case int32:
		return strconv.FormatInt(int64(x), 10) + "i"
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32) + "f"
	case bool:
		return strconv.FormatBool(x)
	case UnitValue:
		return "0u"
	}
	return fmt.Sprintf("%v", v.v)
}
