package types

import (
	"fmt"
	"strings"
)

// NodeIOTypes is the signature of one node implementation.
type NodeIOTypes struct {
	// CallArgument is the type the node is evaluated with.
	CallArgument Type
	// Inputs are the construction argument types, usually Fn types.
	Inputs []Type
	// Return is the type produced by evaluation.
	Return Type
}

// NewNodeIO builds a signature.
func NewNodeIO(call, ret Type, inputs ...Type) NodeIOTypes {
	return NodeIOTypes{CallArgument: call, Inputs: inputs, Return: ret}
}

// Ty returns the signature viewed as a value: Fn(CallArgument, Return).
func (io NodeIOTypes) Ty() Type { return Fn(io.CallArgument, io.Return) }

// Equal reports whether both signatures are identical.
func (io NodeIOTypes) Equal(o NodeIOTypes) bool {
	if !io.CallArgument.Equal(o.CallArgument) || !io.Return.Equal(o.Return) || len(io.Inputs) != len(o.Inputs) {
		return false
	}
	for i := range io.Inputs {
		if !io.Inputs[i].Equal(o.Inputs[i]) {
			return false
		}
	}
	return true
}

// InputKey identifies the input-type combination of the signature, ignoring
// the return type.
func (io NodeIOTypes) InputKey() string {
	parts := make([]string, 0, len(io.Inputs)+1)
	parts = append(parts, io.CallArgument.Key())
	for _, in := range io.Inputs {
		parts = append(parts, in.Key())
	}
	return strings.Join(parts, "|")
}

func (io NodeIOTypes) String() string {
	ins := make([]string, len(io.Inputs))
	for i, in := range io.Inputs {
		ins[i] = in.String()
	}
	return fmt.Sprintf("%s -> %s [%s]", io.CallArgument, io.Return, strings.Join(ins, ", "))
}

// Valid reports whether a value of type from may be supplied where to is
// expected. Fn types are contravariant in their call argument and covariant
// in their output. A generic on either side matches anything.
func Valid(from, to Type) bool {
	switch {
	case from.kind == KindConcrete && to.kind == KindConcrete:
		return from.rt == to.rt
	case from.kind == KindFn && to.kind == KindFn:
		return Valid(*to.in, *from.in) && Valid(*from.out, *to.out)
	case from.kind == KindGeneric || to.kind == KindGeneric:
		return true
	}
	return false
}

// CollectGenerics returns the distinct generic names used by the call
// argument, the nested input types, and the return type, in order of
// first appearance.
func CollectGenerics(io NodeIOTypes) []string {
	var names []string
	seen := map[string]bool{}
	add := func(t Type) {
		if t.kind == KindGeneric && !seen[t.name] {
			seen[t.name] = true
			names = append(names, t.name)
		}
	}
	add(io.CallArgument)
	for _, in := range io.Inputs {
		add(in.Nested())
	}
	add(io.Return)
	return names
}

// CheckGeneric binds generic against the concrete call argument and input
// types supplied to an implementation. It fails when nothing binds the
// generic or when two positions bind it to different types.
func CheckGeneric(io NodeIOTypes, call Type, inputs []Type, generic string) (Type, error) {
	type pair struct{ decl, actual Type }
	pairs := []pair{{io.CallArgument, call}}
	for i := 0; i < len(io.Inputs) && i < len(inputs); i++ {
		decl, actual := io.Inputs[i], inputs[i]
		if decl.kind == KindFn && actual.kind == KindFn {
			pairs = append(pairs, pair{*decl.in, *actual.in})
		}
		pairs = append(pairs, pair{fnOutput(decl), fnOutput(actual)})
	}

	var bound Type
	for _, p := range pairs {
		if p.decl.kind != KindGeneric || p.decl.name != generic || !p.actual.IsValid() {
			continue
		}
		if !bound.IsValid() {
			bound = p.actual
			continue
		}
		if !bound.Equal(p.actual) {
			return Type{}, fmt.Errorf("generic %s is bound to both %s and %s", generic, bound, p.actual)
		}
	}
	if !bound.IsValid() {
		return Type{}, fmt.Errorf("generic %s is not determined by call argument %s or inputs %v", generic, call, inputs)
	}
	return bound, nil
}

// ReplaceGenerics returns io with every generic found in lookup substituted.
func ReplaceGenerics(io NodeIOTypes, lookup map[string]Type) NodeIOTypes {
	out := NodeIOTypes{
		CallArgument: io.CallArgument.replace(lookup),
		Return:       io.Return.replace(lookup),
		Inputs:       make([]Type, len(io.Inputs)),
	}
	for i, in := range io.Inputs {
		out.Inputs[i] = in.replace(lookup)
	}
	return out
}

func fnOutput(t Type) Type {
	if t.kind == KindFn {
		return *t.out
	}
	return t
}
