package kernel

import (
	"cmp"
	"math"
	"slices"
)

// leafSize is the largest number of triangles kept in one tree leaf.
// Meshes at or below this size are scanned linearly.
const leafSize = 8

// maxDepth bounds the traversal stack. Median splits keep the depth near
// log2(triangles / leafSize).
const maxDepth = 64

type treeNode struct {
	bounds      box
	left, right int32 // -1 for leaves
	start, end  int32 // leaf range into aabbTree.order
	minTri      int32 // smallest triangle index in the subtree
}

// aabbTree is a bounding volume hierarchy over the triangles of a mesh.
// It never changes after buildTree returns.
type aabbTree struct {
	nodes []treeNode
	order []int32
}

func buildTree(m *Mesh) *aabbTree {
	n := len(m.Triangles)
	if n <= leafSize {
		return nil
	}
	boxes := make([]box, n)
	centers := make([]Point3, n)
	order := make([]int32, n)
	for i := range m.Triangles {
		v0, v1, v2 := m.Triangle(i)
		boxes[i] = emptyBox().extend(v0).extend(v1).extend(v2)
		centers[i] = boxes[i].center()
		order[i] = int32(i)
	}
	t := &aabbTree{
		nodes: make([]treeNode, 0, 2*n/leafSize+1),
		order: order,
	}
	t.build(boxes, centers, 0, int32(n))
	return t
}

func (t *aabbTree) build(boxes []box, centers []Point3, start, end int32) int32 {
	bounds := emptyBox()
	cb := emptyBox()
	minTri := int32(math.MaxInt32)
	for _, idx := range t.order[start:end] {
		bounds = bounds.union(boxes[idx])
		cb = cb.extend(centers[idx])
		minTri = min(minTri, idx)
	}
	self := int32(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{
		bounds: bounds.pad(),
		left:   -1,
		right:  -1,
		start:  start,
		end:    end,
		minTri: minTri,
	})
	if end-start <= leafSize {
		return self
	}

	ext := [3]float64{cb.max.X - cb.min.X, cb.max.Y - cb.min.Y, cb.max.Z - cb.min.Z}
	axis := 0
	if ext[1] > ext[axis] {
		axis = 1
	}
	if ext[2] > ext[axis] {
		axis = 2
	}
	coord := func(p Point3) float64 {
		switch axis {
		case 0:
			return p.X
		case 1:
			return p.Y
		}
		return p.Z
	}
	slices.SortFunc(t.order[start:end], func(a, b int32) int {
		if c := cmp.Compare(coord(centers[a]), coord(centers[b])); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	mid := start + (end-start)/2
	left := t.build(boxes, centers, start, mid)
	right := t.build(boxes, centers, mid, end)
	t.nodes[self].left = left
	t.nodes[self].right = right
	return self
}

func (n *treeNode) leaf() bool {
	return n.left < 0
}

// anyHit reports whether any triangle is crossed by origin + t*d.
func (t *aabbTree) anyHit(m *Mesh, origin, d Point3) bool {
	var stack [maxDepth]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		node := &t.nodes[stack[sp]]
		if !node.bounds.hitsSegment(origin, d) {
			continue
		}
		if node.leaf() {
			for _, idx := range t.order[node.start:node.end] {
				v0, v1, v2 := m.Triangle(int(idx))
				if _, ok := SegmentTriangle(origin, d, v0, v1, v2); ok {
					return true
				}
			}
			continue
		}
		stack[sp] = node.left
		stack[sp+1] = node.right
		sp += 2
	}
	return false
}

// firstHit returns the lowest triangle index crossed by origin + t*d, the
// same answer as a linear scan in mesh order.
func (t *aabbTree) firstHit(m *Mesh, origin, d Point3) (int, bool) {
	best := int32(math.MaxInt32)
	var stack [maxDepth]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		node := &t.nodes[stack[sp]]
		if node.minTri >= best || !node.bounds.hitsSegment(origin, d) {
			continue
		}
		if node.leaf() {
			for _, idx := range t.order[node.start:node.end] {
				if idx >= best {
					continue
				}
				v0, v1, v2 := m.Triangle(int(idx))
				if _, ok := SegmentTriangle(origin, d, v0, v1, v2); ok {
					best = idx
				}
			}
			continue
		}
		// Visit the subtree holding the smaller index first so that later
		// pops are pruned by minTri.
		l, r := node.left, node.right
		if t.nodes[l].minTri < t.nodes[r].minTri {
			l, r = r, l
		}
		stack[sp] = l
		stack[sp+1] = r
		sp += 2
	}
	if best == math.MaxInt32 {
		return 0, false
	}
	return int(best), true
}
