// Package sdfx implements the kernel.Extractor interface using the
// marching cubes renderer of the github.com/deadsy/sdfx SDF-based CAD
// library. The voxel volume is wrapped as a signed distance field so the
// renderer can sample it.
package sdfx

import (
	"fmt"

	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Extractor = (*Extractor)(nil)

// volumeSDF adapts a kernel.Volume to sdf.SDF3. Evaluate is negative inside
// the iso-surface and positive outside, which is the sign convention the
// renderer expects.
type volumeSDF struct {
	vol *kernel.Volume
	iso float64
	bb  sdf.Box3
}

// Evaluate returns iso minus the interpolated field value at p.
func (s *volumeSDF) Evaluate(p v3.Vec) float64 {
	return s.iso - s.vol.Sample(kernel.Point3{X: p.X, Y: p.Y, Z: p.Z})
}

// BoundingBox returns the volume extent padded by one voxel so surfaces
// touching the grid border are closed.
func (s *volumeSDF) BoundingBox() sdf.Box3 {
	return s.bb
}

// Extractor runs uniform marching cubes over a volume.
type Extractor struct {
	cells int
}

// New returns an Extractor. cells is the number of marching cubes cells
// along the longest axis; zero or less matches the voxel resolution.
func New(cells int) *Extractor {
	return &Extractor{cells: cells}
}

// Extract converts the iso-surface of v at level iso into an indexed mesh.
// Coincident vertices produced by neighbouring cells are welded.
func (e *Extractor) Extract(v *kernel.Volume, iso float64) (*kernel.Mesh, error) {
	if err := v.Check(); err != nil {
		return nil, fmt.Errorf("sdfx: %w", err)
	}
	if v.Len() == 0 {
		return kernel.NewMesh(nil, nil)
	}

	s := &volumeSDF{
		vol: v,
		iso: iso,
		bb: sdf.Box3{
			Min: v3.Vec{X: -1, Y: -1, Z: -1},
			Max: v3.Vec{X: float64(v.Dims[0]), Y: float64(v.Dims[1]), Z: float64(v.Dims[2])},
		},
	}

	cells := e.cells
	if cells <= 0 {
		cells = max(v.Dims[0], v.Dims[1], v.Dims[2]) + 2
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s, renderer)

	index := make(map[v3.Vec]uint32, len(triangles))
	vertices := make([]kernel.Point3, 0, len(triangles))
	indices := make([][3]uint32, 0, len(triangles))

	for _, tri := range triangles {
		var face [3]uint32
		for j := 0; j < 3; j++ {
			p := tri[j]
			idx, ok := index[p]
			if !ok {
				idx = uint32(len(vertices))
				index[p] = idx
				vertices = append(vertices, kernel.Point3{X: p.X, Y: p.Y, Z: p.Z})
			}
			face[j] = idx
		}
		// Cells that collapse a triangle onto an edge add nothing but
		// parallel-test work.
		if face[0] == face[1] || face[1] == face[2] || face[0] == face[2] {
			continue
		}
		indices = append(indices, face)
	}

	m, err := kernel.NewMesh(vertices, indices)
	if err != nil {
		return nil, fmt.Errorf("sdfx: %w", err)
	}
	return m, nil
}
