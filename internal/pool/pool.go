package pool

// Pool holds the working copy of the node fleet for one allocation pass.
// Discovery order is preserved because the owned-node pass iterates it.
type Pool struct {
	nodes []*Node
	byID  map[string]*Node
}

// New copies the discovered nodes into a fresh pool.
func New(nodes []Node) *Pool {
	p := &Pool{
		nodes: make([]*Node, 0, len(nodes)),
		byID:  make(map[string]*Node, len(nodes)),
	}
	for i := range nodes {
		n := nodes[i]
		p.nodes = append(p.nodes, &n)
		p.byID[n.ID] = &n
	}
	return p
}

// Nodes returns all nodes in discovery order.
func (p *Pool) Nodes() []*Node {
	return p.nodes
}

// Get returns the node with the given id, or nil.
func (p *Pool) Get(id string) *Node {
	return p.byID[id]
}

// Len returns the number of nodes in the pool.
func (p *Pool) Len() int {
	return len(p.nodes)
}

// ByCategory returns the nodes in a size category, in discovery order.
func (p *Pool) ByCategory(c SizeCategory) []*Node {
	var out []*Node
	for _, n := range p.nodes {
		if n.SizeCategory() == c {
			out = append(out, n)
		}
	}
	return out
}

// TotalAvailable sums available capacity across the pool.
func (p *Pool) TotalAvailable() float64 {
	total := 0.0
	for _, n := range p.nodes {
		total += n.AvailableCapacity()
	}
	return total
}

// Snapshot returns value copies of all nodes for persistence.
func (p *Pool) Snapshot() []Node {
	out := make([]Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, *n)
	}
	return out
}
