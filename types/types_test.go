package types

import (
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	u32 := Of[uint32]()
	f32 := Of[float32]()
	tests := []struct {
		name     string
		from, to Type
		want     bool
	}{
		{"same concrete", u32, u32, true},
		{"different concrete", u32, f32, false},
		{"generic target", u32, Generic("T"), true},
		{"generic source", Generic("T"), f32, true},
		{"fn same", Fn(Unit, u32), Fn(Unit, u32), true},
		{"fn output mismatch", Fn(Unit, u32), Fn(Unit, f32), false},
		{"fn generic output", Fn(Unit, u32), Fn(Unit, Generic("T")), true},
		{"fn generic input accepts unit", Fn(Generic("T"), u32), Fn(Unit, u32), true},
		{"fn concrete input", Fn(u32, u32), Fn(Unit, u32), false},
		{"fn vs concrete", Fn(Unit, u32), u32, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.from, tt.to); got != tt.want {
				t.Errorf("Valid(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestEqualAndKey(t *testing.T) {
	a := Fn(Unit, Of[uint32]())
	b := Fn(Of[UnitValue](), Of[uint32]())
	if !a.Equal(b) {
		t.Errorf("%s should equal %s", a, b)
	}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Equal(Fn(Unit, Of[int32]())) {
		t.Error("different outputs compared equal")
	}
	if Unit.String() != "()" {
		t.Errorf("Unit.String() = %q", Unit.String())
	}
}

func TestGenericResolution(t *testing.T) {
	u32 := Of[uint32]()
	io := NewNodeIO(Generic("T"), Generic("T"), Fn(Unit, Generic("T")))

	if got := CollectGenerics(io); len(got) != 1 || got[0] != "T" {
		t.Fatalf("CollectGenerics = %v, want [T]", got)
	}

	bound, err := CheckGeneric(io, u32, []Type{Fn(Unit, u32)}, "T")
	if err != nil {
		t.Fatalf("CheckGeneric: %v", err)
	}
	if !bound.Equal(u32) {
		t.Errorf("bound = %s, want uint32", bound)
	}

	if _, err := CheckGeneric(io, u32, []Type{Fn(Unit, Of[float32]())}, "T"); err == nil {
		t.Error("conflicting bindings should fail")
	}

	resolved := ReplaceGenerics(io, map[string]Type{"T": u32})
	want := NewNodeIO(u32, u32, Fn(Unit, u32))
	if !resolved.Equal(want) {
		t.Errorf("ReplaceGenerics = %s, want %s", resolved, want)
	}
}

func TestFromPrimitiveString(t *testing.T) {
	tests := []struct {
		in   string
		typ  Type
		want any
		ok   bool
	}{
		{"3", Of[uint32](), uint32(3), true},
		{"3u", Of[uint32](), uint32(3), true},
		{"-4", Of[int32](), int32(-4), true},
		{"1.5", Of[float32](), float32(1.5), true},
		{"true", Of[bool](), true, true},
		{"abc", Of[uint32](), nil, false},
		{"7", Fn(Unit, Of[uint64]()), uint64(7), true},
		{"", Unit, UnitValue{}, true},
	}
	for _, tt := range tests {
		v, ok := FromPrimitiveString(tt.in, tt.typ)
		if ok != tt.ok {
			t.Errorf("FromPrimitiveString(%q, %s) ok = %v, want %v", tt.in, tt.typ, ok, tt.ok)
			continue
		}
		if ok && v.Interface() != tt.want {
			t.Errorf("FromPrimitiveString(%q, %s) = %v, want %v", tt.in, tt.typ, v.Interface(), tt.want)
		}
	}
}

func TestFromTypeAndPrimitiveString(t *testing.T) {
	v, ok := FromType(Fn(Unit, Of[uint32]()))
	if !ok || v.Interface() != uint32(0) {
		t.Fatalf("FromType = %v, %v", v, ok)
	}
	if _, ok := FromType(Generic("T")); ok {
		t.Error("generic types have no default")
	}
	if got := NewValue(uint32(3)).PrimitiveString(); got != "3u" {
		t.Errorf("PrimitiveString = %q, want 3u", got)
	}
	if got := NewValue(float32(0.5)).PrimitiveString(); !strings.HasSuffix(got, "f") {
		t.Errorf("PrimitiveString = %q, want f32 suffix", got)
	}
}
