// Package types describes the static types that flow along node graph edges.
//
// A Type is one of three shapes:
//   - Concrete: a named Go type, identified by its reflect.Type
//   - Generic: a named type parameter that matches anything
//   - Fn: a node viewed as a value, taking In and producing Out
//
// Construction arguments of a node are typed as Fn values: a node that
// produces a uint32 when called with the unit value has type Fn((), uint32).
package types

import (
	"reflect"
	"strings"
)

// Kind discriminates the shape of a Type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindConcrete
	KindGeneric
	KindFn
)

// Type is an immutable type descriptor. The zero value is invalid.
type Type struct {
	kind Kind
	name string
	rt   reflect.Type
	in   *Type
	out  *Type
}

// UnitValue is the Go representation of the unit type.
type UnitValue struct{}

// Unit is the call argument of nodes that take no input.
var Unit = Of[UnitValue]()

// Of returns the concrete type for T.
func Of[T any]() Type {
	return FromReflect(reflect.TypeFor[T]())
}

// FromReflect returns the concrete type for rt.
func FromReflect(rt reflect.Type) Type {
	name := rt.String()
	if rt == reflect.TypeFor[UnitValue]() {
		name = "()"
	}
	return Type{kind: KindConcrete, name: name, rt: rt}
}

// Generic returns a type parameter named name.
func Generic(name string) Type {
	return Type{kind: KindGeneric, name: name}
}

// Fn returns the type of a node called with in that produces out.
func Fn(in, out Type) Type {
	return Type{kind: KindFn, in: &in, out: &out}
}

func (t Type) Kind() Kind             { return t.kind }
func (t Type) IsValid() bool          { return t.kind != KindInvalid }
func (t Type) IsGeneric() bool        { return t.kind == KindGeneric }
func (t Type) IsFn() bool             { return t.kind == KindFn }
func (t Type) Reflect() reflect.Type  { return t.rt }
func (t Type) GenericName() string    { return t.name }
func (t Type) IsUnit() bool           { return t.kind == KindConcrete && t.rt == Unit.rt }

// In returns the call argument of a Fn type, or the invalid type.
func (t Type) In() Type {
	if t.kind != KindFn {
		return Type{}
	}
	return *t.in
}

// Out returns the output of a Fn type, or the invalid type.
func (t Type) Out() Type {
	if t.kind != KindFn {
		return Type{}
	}
	return *t.out
}

// Nested returns the type a value of t ultimately yields: the output of a
// Fn type, or t itself.
func (t Type) Nested() Type {
	if t.kind == KindFn {
		return t.out.Nested()
	}
	return t
}

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindConcrete:
		return t.rt == o.rt
	case KindGeneric:
		return t.name == o.name
	case KindFn:
		return t.in.Equal(*o.in) && t.out.Equal(*o.out)
	}
	return true
}

func (t Type) String() string {
	switch t.kind {
	case KindConcrete, KindGeneric:
		return t.name
	case KindFn:
		return "Fn(" + t.in.String() + ") -> " + t.out.String()
	}
	return "<invalid>"
}

// Key returns a string that is equal for equal types, usable as a map key.
func (t Type) Key() string {
	var b strings.Builder
	t.writeKey(&b)
	return b.String()
}

func (t Type) writeKey(b *strings.Builder) {
	switch t.kind {
	case KindConcrete:
		b.WriteString("c:")
		b.WriteString(t.rt.PkgPath())
		b.WriteByte('.')
		b.WriteString(t.name)
	case KindGeneric:
		b.WriteString("g:")
		b.WriteString(t.name)
	case KindFn:
		b.WriteString("fn(")
		t.in.writeKey(b)
		b.WriteString(")")
		t.out.writeKey(b)
	}
}

// replace rewrites generic leaves through lookup.
func (t Type) replace(lookup map[string]Type) Type {
	switch t.kind {
	case KindGeneric:
		if r, ok := lookup[t.name]; ok {
			return r
		}
	case KindFn:
		return Fn(t.in.replace(lookup), t.out.replace(lookup))
	}
	return t
}
