package proto

import (
	"sort"
	"strings"
)

// ResolveInputs makes the network ready for a backend:
//   - every reference is checked to exist
//   - inline literal arguments are hoisted into value nodes
//   - every node fed by another node's output is wrapped in a compose node,
//     and references to it are redirected to the compose node
//   - ids are reordered topologically
//
// ResolveInputs is idempotent.
func (n *Network) ResolveInputs() error {
	if len(n.Nodes) == 0 {
		return ErrEmptyNetwork
	}
	if err := n.checkReferences(); err != nil {
		return err
	}
	n.hoistLiterals()
	if err := n.ReorderIDs(); err != nil {
		return err
	}
	n.insertCompositions()
	return n.ReorderIDs()
}

func (n *Network) hoistLiterals() {
	next := n.nextID()
	count := len(n.Nodes)
	for i := 0; i < count; i++ {
		node := n.Nodes[i].Node
		for j, a := range node.Args.Nodes {
			if a.Literal == nil {
				continue
			}
			n.Nodes = append(n.Nodes, Entry{ID: next, Node: NewValueNode(*a.Literal)})
			node.Args.Nodes[j] = Arg{Node: next}
			next++
		}
	}
}

// insertCompositions expects nodes in topological order so that a node's
// producer is always redirected before the node itself is wrapped.
func (n *Network) insertCompositions() {
	next := n.nextID()
	count := len(n.Nodes)
	for i := 0; i < count; i++ {
		e := n.Nodes[i]
		if e.Node.Input.Kind != ReferenceInput {
			continue
		}
		compose := &ProtoNode{
			Identifier: ComposeIdentifier,
			Args:       NodeArgs(e.Node.Input.Node, e.ID),
		}
		e.Node.Input.Kind = ComposedInput
		n.Nodes = append(n.Nodes, Entry{ID: next, Node: compose})
		n.redirect(e.ID, next, compose)
		next++
	}
}

// redirect points every reference to old at replacement, except inside skip.
func (n *Network) redirect(old, replacement NodeID, skip *ProtoNode) {
	for _, e := range n.Nodes {
		if e.Node == skip {
			continue
		}
		if e.Node.Input.Kind == ReferenceInput && e.Node.Input.Node == old {
			e.Node.Input.Node = replacement
		}
		for j, a := range e.Node.Args.Nodes {
			if a.Literal == nil && a.Node == old {
				e.Node.Args.Nodes[j].Node = replacement
			}
		}
	}
	if n.Output == old {
		n.Output = replacement
	}
}

// ReorderIDs sorts the nodes topologically and renumbers them from zero, so
// that evaluating in ascending id order never reaches a node before its
// dependencies. Ties are broken by the current position of the nodes.
func (n *Network) ReorderIDs() error {
	order, err := n.topologicalOrder()
	if err != nil {
		return err
	}
	remap := make(map[NodeID]NodeID, len(order))
	for newID, pos := range order {
		remap[n.Nodes[pos].ID] = NodeID(newID)
	}
	nodes := make([]Entry, len(order))
	for newID, pos := range order {
		node := n.Nodes[pos].Node
		if node.Input.Kind == ReferenceInput || node.Input.Kind == ComposedInput {
			node.Input.Node = remap[node.Input.Node]
		}
		for j, a := range node.Args.Nodes {
			if a.Literal == nil {
				node.Args.Nodes[j].Node = remap[a.Node]
			}
		}
		nodes[newID] = Entry{ID: NodeID(newID), Node: node}
	}
	n.Nodes = nodes
	n.Output = remap[n.Output]
	for i, id := range n.Inputs {
		n.Inputs[i] = remap[id]
	}
	return nil
}

// topologicalOrder returns node positions in dependency order.
func (n *Network) topologicalOrder() ([]int, error) {
	pos := make(map[NodeID]int, len(n.Nodes))
	for i, e := range n.Nodes {
		pos[e.ID] = i
	}
	indegree := make([]int, len(n.Nodes))
	dependents := make([][]int, len(n.Nodes))
	for i, e := range n.Nodes {
		for _, dep := range dependencies(e.Node) {
			p, ok := pos[dep]
			if !ok {
				return nil, graphErr(ErrInputNodeNotFound, e.ID, e.Node, "references missing node %d", dep)
			}
			indegree[i]++
			dependents[p] = append(dependents[p], i)
		}
	}

	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(n.Nodes))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, d := range dependents[cur] {
			indegree[d]--
			if indegree[d] == 0 {
				at := sort.SearchInts(ready, d)
				ready = append(ready, 0)
				copy(ready[at+1:], ready[at:])
				ready[at] = d
			}
		}
	}
	if len(order) != len(n.Nodes) {
		return nil, n.cycleError(pos, indegree)
	}
	return order, nil
}

// cycleError walks unresolved dependencies from a stuck node until a node
// repeats; that node lies on a cycle.
func (n *Network) cycleError(pos map[NodeID]int, indegree []int) error {
	start := -1
	for i, d := range indegree {
		if d > 0 {
			start = i
			break
		}
	}
	seen := map[int]int{}
	var path []int
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			path = path[at:]
			break
		}
		seen[cur] = len(path)
		path = append(path, cur)
		for _, dep := range dependencies(n.Nodes[cur].Node) {
			if p := pos[dep]; indegree[p] > 0 {
				cur = p
				break
			}
		}
	}
	names := make([]string, len(path))
	for i, p := range path {
		names[i] = n.Nodes[p].Node.Identifier.String()
	}
	e := n.Nodes[path[0]]
	return graphErr(ErrCycle, e.ID, e.Node, "cycle: %s", strings.Join(names, " -> "))
}
