package runtime

// CacheNode memoizes the first output of the node it wraps. The input of
// later evaluations is ignored until Reset is called.
//
// A CacheNode is owned by a single evaluation context and is not safe for
// concurrent use.
type CacheNode struct {
	node  Node
	value Any
	set   bool
}

// Cache wraps n in a write-once cache slot.
func Cache(n Node) *CacheNode {
	return &CacheNode{node: n}
}

func (c *CacheNode) Eval(in Any) Any {
	if !c.set {
		c.value = c.node.Eval(in)
		c.set = true
	}
	return c.value
}

func (c *CacheNode) Name() string { return c.node.Name() }

// Reset empties the slot so the next evaluation recomputes.
func (c *CacheNode) Reset() {
	c.value = Any{}
	c.set = false
}

// Cached reports whether the slot holds a value.
func (c *CacheNode) Cached() bool { return c.set }
