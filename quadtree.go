package quadmosaic

// Quadrant indices into Node.Children.
const (
	NW = iota
	NE
	SW
	SE
)

// Node is one region of a Tree. Internal nodes keep their region as well so
// the tree can be rendered at a level above its leaves.
type Node struct {
	Level  int
	Height int
	Width  int
	Region *Raster
	Leaf   bool
	// Indices into Tree.Nodes in NW, NE, SW, SE order. Unused for leaves.
	Children [4]int
}

// Tree is a quadtree stored as a flat arena. Nodes[0] is the root and
// every child index is greater than its parent's.
type Tree struct {
	Nodes      []Node
	DepthLimit int
}

// Build decomposes region until each leaf is uniform, too small to split,
// or depthLimit levels deep.
func Build(region *Raster, depthLimit int) (*Tree, error) {
	t := &Tree{DepthLimit: max(depthLimit, 0)}
	if _, err := t.insert(region, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) insert(region *Raster, level int) (int, error) {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Level:  level,
		Height: region.H,
		Width:  region.W,
		Region: region,
		Leaf:   true,
	})

	// Splittability is checked first: a 1xN strip stays a leaf even when it
	// is not uniform.
	if region.H < 2 || region.W < 2 {
		return idx, nil
	}
	if level >= t.DepthLimit || IsUniform(region) {
		return idx, nil
	}

	quads, err := Split(region)
	if err != nil {
		return 0, err
	}
	var children [4]int
	for i, q := range quads {
		c, err := t.insert(q, level+1)
		if err != nil {
			return 0, err
		}
		children[i] = c
	}
	// t.Nodes may have been reallocated by the recursive inserts.
	t.Nodes[idx].Leaf = false
	t.Nodes[idx].Children = children
	return idx, nil
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// Walk calls fn for every node in depth-first NW, NE, SW, SE order. Returning
// false from fn skips the children of that node.
func (t *Tree) Walk(fn func(n *Node) bool) {
	if len(t.Nodes) == 0 {
		return
	}
	t.walk(0, fn)
}

func (t *Tree) walk(idx int, fn func(n *Node) bool) {
	n := &t.Nodes[idx]
	if !fn(n) || n.Leaf {
		return
	}
	for _, c := range n.Children {
		t.walk(c, fn)
	}
}

// Leaves returns the leaf nodes in depth-first order.
func (t *Tree) Leaves() []*Node {
	var leaves []*Node
	t.Walk(func(n *Node) bool {
		if n.Leaf {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

func (t *Tree) LeafCount() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].Leaf {
			n++
		}
	}
	return n
}

// MaxLevel returns the deepest level present in the tree.
func (t *Tree) MaxLevel() int {
	level := 0
	for i := range t.Nodes {
		level = max(level, t.Nodes[i].Level)
	}
	return level
}
