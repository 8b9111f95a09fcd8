package kernel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the tolerance for the parallel test and for the lower bound of
// the segment parameter.
const Epsilon = 1e-10

// SegmentTriangle tests the segment origin + t*d against triangle
// (v0, v1, v2) using the edge-vector parametrization. A hit requires
// barycentric coordinates inside the triangle and Epsilon < t < 1.
// Near-parallel configurations are reported as no hit.
func SegmentTriangle(origin, d, v0, v1, v2 Point3) (t float64, ok bool) {
	e1 := r3.Sub(v1, v0)
	e2 := r3.Sub(v2, v0)

	h := r3.Cross(d, e2)
	a := r3.Dot(e1, h)
	if a > -Epsilon && a < Epsilon {
		return 0, false
	}
	f := 1 / a
	s := r3.Sub(origin, v0)
	u := f * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := r3.Cross(s, e1)
	v := f * r3.Dot(d, q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t = f * r3.Dot(e2, q)
	if t > Epsilon && t < 1 {
		return t, true
	}
	return 0, false
}

// Intersects reports whether the segment from origin to target crosses at
// least one triangle of m.
func Intersects(origin, target Point3, m *Mesh) bool {
	if m.IsEmpty() {
		return false
	}
	d := r3.Sub(target, origin)
	if m.tree != nil {
		return m.tree.anyHit(m, origin, d)
	}
	return m.scanAny(origin, d)
}

// MinIncidenceAngle returns the angle in degrees, folded into [0, 90],
// between the segment direction and the normal of the first triangle in
// mesh order that the segment crosses. ok is false when nothing is crossed.
//
// The crossing used is the lowest triangle index, not the crossing nearest
// to origin along the segment.
func MinIncidenceAngle(origin, target Point3, m *Mesh) (angle float64, ok bool) {
	if m.IsEmpty() {
		return 0, false
	}
	d := r3.Sub(target, origin)
	var idx int
	if m.tree != nil {
		idx, ok = m.tree.firstHit(m, origin, d)
	} else {
		idx, ok = m.scanFirst(origin, d)
	}
	if !ok {
		return 0, false
	}
	v0, v1, v2 := m.Triangle(idx)
	return incidenceAngle(d, v0, v1, v2), true
}

// incidenceAngle is the acute angle in degrees between d and the unit
// normal of the triangle.
func incidenceAngle(d, v0, v1, v2 Point3) float64 {
	n := r3.Unit(r3.Cross(r3.Sub(v1, v0), r3.Sub(v2, v0)))
	c := r3.Dot(d, n) / (r3.Norm(d) * r3.Norm(n))
	c = math.Max(-1, math.Min(1, c))
	a := math.Acos(c)
	if a > math.Pi/2 {
		a = math.Pi - a
	}
	return a * 180 / math.Pi
}

func (m *Mesh) scanAny(origin, d Point3) bool {
	for i := range m.Triangles {
		v0, v1, v2 := m.Triangle(i)
		if _, ok := SegmentTriangle(origin, d, v0, v1, v2); ok {
			return true
		}
	}
	return false
}

func (m *Mesh) scanFirst(origin, d Point3) (int, bool) {
	for i := range m.Triangles {
		v0, v1, v2 := m.Triangle(i)
		if _, ok := SegmentTriangle(origin, d, v0, v1, v2); ok {
			return i, true
		}
	}
	return 0, false
}
