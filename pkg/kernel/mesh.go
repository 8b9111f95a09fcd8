package kernel

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedMesh is wrapped by every MalformedMeshError.
var ErrMalformedMesh = errors.New("malformed mesh")

// MalformedMeshError reports a triangle corner that points outside the
// vertex list.
type MalformedMeshError struct {
	Triangle    int
	Corner      int
	Index       uint32
	VertexCount int
}

func (e *MalformedMeshError) Error() string {
	return fmt.Sprintf("malformed mesh: triangle %d corner %d references vertex %d, mesh has %d vertices",
		e.Triangle, e.Corner, e.Index, e.VertexCount)
}

func (e *MalformedMeshError) Unwrap() error { return ErrMalformedMesh }

// Mesh is an immutable indexed triangle mesh. Each triangle holds three
// indices into Vertices. Meshes are built once with NewMesh and shared
// read-only between screening workers.
type Mesh struct {
	Vertices  []Point3
	Triangles [][3]uint32

	tree *aabbTree
}

// NewMesh validates the triangle indices and builds the acceleration tree.
// The slices are owned by the mesh afterwards and must not be modified.
func NewMesh(vertices []Point3, triangles [][3]uint32) (*Mesh, error) {
	n := len(vertices)
	for ti, tri := range triangles {
		for c, idx := range tri {
			if int(idx) >= n {
				return nil, &MalformedMeshError{Triangle: ti, Corner: c, Index: idx, VertexCount: n}
			}
		}
	}
	m := &Mesh{Vertices: vertices, Triangles: triangles}
	m.tree = buildTree(m)
	return m, nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles)
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Triangles) == 0
}

// Triangle returns the three corners of triangle i.
func (m *Mesh) Triangle(i int) (v0, v1, v2 Point3) {
	t := m.Triangles[i]
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

// Bounds returns the axis-aligned bounds of all referenced vertices.
// An empty mesh reports ok=false.
func (m *Mesh) Bounds() (min, max Point3, ok bool) {
	if m.IsEmpty() {
		return Point3{}, Point3{}, false
	}
	b := emptyBox()
	for i := range m.Triangles {
		v0, v1, v2 := m.Triangle(i)
		b = b.extend(v0).extend(v1).extend(v2)
	}
	return b.min, b.max, true
}

// box is an axis-aligned bounding box.
type box struct {
	min, max Point3
}

func emptyBox() box {
	inf := math.Inf(1)
	return box{
		min: Point3{X: inf, Y: inf, Z: inf},
		max: Point3{X: -inf, Y: -inf, Z: -inf},
	}
}

func (b box) extend(p Point3) box {
	b.min = Point3{X: math.Min(b.min.X, p.X), Y: math.Min(b.min.Y, p.Y), Z: math.Min(b.min.Z, p.Z)}
	b.max = Point3{X: math.Max(b.max.X, p.X), Y: math.Max(b.max.Y, p.Y), Z: math.Max(b.max.Z, p.Z)}
	return b
}

func (b box) union(o box) box {
	return b.extend(o.min).extend(o.max)
}

// pad grows the box by a tolerance proportional to its coordinates so that
// hits on triangle edges are never lost to rounding in the slab test.
func (b box) pad() box {
	scale := 1.0
	for _, v := range [...]float64{b.min.X, b.min.Y, b.min.Z, b.max.X, b.max.Y, b.max.Z} {
		scale = math.Max(scale, math.Abs(v))
	}
	e := 1e-9 * scale
	b.min = Point3{X: b.min.X - e, Y: b.min.Y - e, Z: b.min.Z - e}
	b.max = Point3{X: b.max.X + e, Y: b.max.Y + e, Z: b.max.Z + e}
	return b
}

func (b box) center() Point3 {
	return Point3{X: (b.min.X + b.max.X) / 2, Y: (b.min.Y + b.max.Y) / 2, Z: (b.min.Z + b.max.Z) / 2}
}

// hitsSegment is the slab test for the segment origin + s*d, s in [0, 1].
func (b box) hitsSegment(origin, d Point3) bool {
	lo, hi := 0.0, 1.0
	o := [3]float64{origin.X, origin.Y, origin.Z}
	dir := [3]float64{d.X, d.Y, d.Z}
	bmin := [3]float64{b.min.X, b.min.Y, b.min.Z}
	bmax := [3]float64{b.max.X, b.max.Y, b.max.Z}
	for a := 0; a < 3; a++ {
		if dir[a] == 0 {
			if o[a] < bmin[a] || o[a] > bmax[a] {
				return false
			}
			continue
		}
		inv := 1 / dir[a]
		t0 := (bmin[a] - o[a]) * inv
		t1 := (bmax[a] - o[a]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > lo {
			lo = t0
		}
		if t1 < hi {
			hi = t1
		}
		if lo > hi {
			return false
		}
	}
	return true
}
