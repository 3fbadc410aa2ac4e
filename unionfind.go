package hdbscan

// UnionFind is the disjoint-set structure behind Label. It holds 2*n - 1
// slots: original points 0..n-1 and merged clusters n..2n-2. Merging two
// roots creates a fresh cluster label instead of reusing either root, which is
// what gives the dendrogram its scipy numbering.
type UnionFind struct {
	parent []int
	size   []int
	// next is the label the next Union will create, starting at n.
	next int
}

// NewUnionFind creates a UnionFind over n points.
func NewUnionFind(n int) *UnionFind {
	total := max(2*n-1, 1)
	parent := make([]int, total)
	size := make([]int, total)
	for i := range parent {
		parent[i] = -1 // -1 means "is a root"
	}
	for i := 0; i < n; i++ {
		size[i] = 1
	}
	return &UnionFind{parent: parent, size: size, next: n}
}

// Find returns the root label of x, compressing the path behind it.
func (uf *UnionFind) Find(x int) int {
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	for uf.parent[x] != -1 {
		x, uf.parent[x] = uf.parent[x], root
	}
	return root
}

// Size returns the number of points under label x.
func (uf *UnionFind) Size(x int) int { return uf.size[x] }

// Union merges the roots a and b under a new label and returns it. Both
// arguments must be roots.
func (uf *UnionFind) Union(a, b int) int {
	label := uf.next
	uf.size[label] = uf.size[a] + uf.size[b]
	uf.parent[a] = label
	uf.parent[b] = label
	uf.next++
	return label
}
