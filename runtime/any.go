// Package runtime is the type-erased evaluation layer of the CPU backend.
//
// Every node is hidden behind the single-method Node interface and exchanges
// opaque Any values. Each Any carries the reflect.Type it was boxed with;
// recovering the concrete value goes through a checked downcast that panics
// on a tag mismatch. A mismatch means the compiler wired two incompatible
// nodes together, so it is never turned into an error value.
package runtime

import (
	"fmt"
	"reflect"

	"github.com/gogpu/nodegraph/types"
)

// Any is an opaque value tagged with its concrete type.
type Any struct {
	tag reflect.Type
	val any
}

// Box wraps v, tagging it with the static type T.
func Box[T any](v T) Any {
	return Any{tag: reflect.TypeFor[T](), val: v}
}

// FromValue boxes a tagged literal.
func FromValue(v types.Value) Any {
	return Any{tag: v.Type().Reflect(), val: v.Interface()}
}

// FromReflect boxes rv, tagging it with its dynamic type.
func FromReflect(rv reflect.Value) Any {
	return Any{tag: rv.Type(), val: rv.Interface()}
}

// Unit is the boxed unit value used to evaluate construction arguments.
var Unit = Box(types.UnitValue{})

// Tag returns the type the value was boxed with.
func (a Any) Tag() reflect.Type { return a.tag }

// Interface returns the boxed value without a type check.
func (a Any) Interface() any { return a.val }

func (a Any) String() string {
	if a.tag == nil {
		return "<empty>"
	}
	return fmt.Sprintf("%v (%s)", a.val, a.tag)
}

// TypeMismatchError describes a failed downcast.
type TypeMismatchError struct {
	Node     string
	Expected reflect.Type
	Found    reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("runtime: type mismatch in node %q: expected %v, found %v", e.Node, e.Expected, e.Found)
}

// TryDowncast recovers the concrete value of a, reporting a mismatch as an
// error instead of panicking.
func TryDowncast[T any](a Any) (T, error) {
	want := reflect.TypeFor[T]()
	if a.tag != want {
		var zero T
		return zero, &TypeMismatchError{Expected: want, Found: a.tag}
	}
	return a.val.(T), nil
}

// Downcast recovers the concrete value of a. It panics with a
// *TypeMismatchError naming node when the tag does not match T.
func Downcast[T any](a Any, node string) T {
	v, err := TryDowncast[T](a)
	if err != nil {
		mismatch := err.(*TypeMismatchError)
		mismatch.Node = node
		panic(mismatch)
	}
	return v
}
