package document

import (
	"errors"
	"testing"

	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/types"
)

var (
	addID    = registry.NewIdentifier("ops::AddNode")
	doubleID = registry.NewIdentifier("ops::DoubleNode")
	u32      = types.Of[uint32]()
)

func u32Value(v uint32) Input { return ValueInput(types.NewValue(v), true) }

func TestNewNodeIDUnique(t *testing.T) {
	seen := map[NodeID]bool{}
	for i := 0; i < 100; i++ {
		id := NewNodeID()
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestFlattenSimple(t *testing.T) {
	net := NewNetwork()
	a := net.Add(&Node{Implementation: ProtoImpl(doubleID), Inputs: []Input{ImportInput(u32, 0)}})
	b := net.Add(&Node{Implementation: ProtoImpl(addID), Inputs: []Input{NodeInput(a), u32Value(3)}})
	net.Exports = []Input{NodeInput(b)}

	pn, err := Flatten(net)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(pn.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2:\n%s", len(pn.Nodes), pn)
	}
	if len(pn.InputTypes) != 1 || !pn.InputTypes[0].Equal(u32) {
		t.Errorf("InputTypes = %v", pn.InputTypes)
	}
	if len(pn.Inputs) != 1 {
		t.Errorf("Inputs = %v, want one network input node", pn.Inputs)
	}
	out, ok := pn.Node(pn.Output)
	if !ok || out.Identifier != addID {
		t.Fatalf("output is %v", out)
	}
	if out.Input.Kind != proto.ReferenceInput {
		t.Errorf("add input kind = %d, want reference", out.Input.Kind)
	}
	if len(out.Args.Nodes) != 1 || out.Args.Nodes[0].Literal == nil {
		t.Errorf("add args = %+v, want one inline literal", out.Args.Nodes)
	}
	if err := pn.ResolveInputs(); err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
}

func TestFlattenNestedNetworkAndScope(t *testing.T) {
	inner := NewNetwork()
	x := inner.Add(&Node{Implementation: ProtoImpl(addID), Inputs: []Input{ImportInput(types.Generic("T"), 0), ScopeInput("offset")}})
	inner.Exports = []Input{NodeInput(x)}

	outer := NewNetwork()
	offset := outer.Add(&Node{Implementation: ProtoImpl(doubleID), Inputs: []Input{u32Value(2)}})
	outer.ScopeInjections = map[string]Input{"offset": NodeInput(offset)}
	wrapper := outer.Add(&Node{Implementation: NetworkImpl(inner), Inputs: []Input{ImportInput(u32, 0)}})
	outer.Exports = []Input{NodeInput(wrapper)}

	pn, err := Flatten(outer)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	out, _ := pn.Node(pn.Output)
	if out.Identifier != addID || out.Input.Kind != proto.NetworkInput {
		t.Fatalf("output = %+v, want add reading the network input", out)
	}
	arg, ok := pn.Node(out.Args.Nodes[0].Node)
	if !ok || arg.Identifier != doubleID {
		t.Errorf("scope argument resolved to %v, want the double node", arg)
	}
}

func TestFlattenPrunesUnreachable(t *testing.T) {
	net := NewNetwork()
	net.Add(&Node{Implementation: ProtoImpl(doubleID), Inputs: []Input{u32Value(9)}})
	used := net.Add(&Node{Implementation: ProtoImpl(doubleID), Inputs: []Input{u32Value(1)}})
	net.Exports = []Input{NodeInput(used)}

	pn, err := Flatten(net)
	if err != nil {
		t.Fatal(err)
	}
	// The used node plus the value node feeding its primary input.
	if len(pn.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2:\n%s", len(pn.Nodes), pn)
	}
}

func TestFlattenErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Network
		want  error
	}{
		{"no exports", NewNetwork, ErrNoExports},
		{"unknown node", func() *Network {
			n := NewNetwork()
			id := n.Add(&Node{Implementation: ProtoImpl(addID), Inputs: []Input{NodeInput(123456789)}})
			n.Exports = []Input{NodeInput(id)}
			return n
		}, ErrUnknownNode},
		{"unknown scope", func() *Network {
			n := NewNetwork()
			id := n.Add(&Node{Implementation: ProtoImpl(addID), Inputs: []Input{ScopeInput("missing")}})
			n.Exports = []Input{NodeInput(id)}
			return n
		}, ErrUnknownScope},
		{"import out of range", func() *Network {
			inner := NewNetwork()
			x := inner.Add(&Node{Implementation: ProtoImpl(doubleID), Inputs: []Input{ImportInput(u32, 3)}})
			inner.Exports = []Input{NodeInput(x)}
			n := NewNetwork()
			w := n.Add(&Node{Implementation: NetworkImpl(inner), Inputs: []Input{u32Value(1)}})
			n.Exports = []Input{NodeInput(w)}
			return n
		}, ErrImportOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Flatten(tt.build()); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClone(t *testing.T) {
	inner := NewNetwork()
	inner.Exports = []Input{u32Value(1)}
	net := NewNetwork()
	id := net.Add(&Node{Implementation: NetworkImpl(inner), Inputs: []Input{u32Value(1)}})

	c := net.Clone()
	c.Nodes[id].Inputs[0] = u32Value(2)
	c.Nodes[id].Implementation.Network.Exports[0] = u32Value(5)

	if net.Nodes[id].Inputs[0].Value.Interface() != uint32(1) {
		t.Error("clone shares node inputs")
	}
	if inner.Exports[0].Value.Interface() != uint32(1) {
		t.Error("clone shares nested network")
	}
}
