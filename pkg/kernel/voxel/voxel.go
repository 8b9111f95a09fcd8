// Package voxel implements kernel.Extractor by emitting the exposed faces
// of every voxel above the iso level. The result is a closed, blocky
// surface that follows voxel boundaries exactly, which makes it useful for
// label maps where marching cubes smoothing is unwanted and for
// reproducible fixtures.
package voxel

import (
	"fmt"

	"github.com/chazu/trajscreen/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Extractor = (*Extractor)(nil)

// face describes one side of a voxel: the neighbour offset that must be
// outside for the face to be exposed, and its corners on the voxel-corner
// lattice in outward (counter-clockwise seen from outside) order.
type face struct {
	dir     [3]int
	corners [4][3]int
}

var faces = [6]face{
	{dir: [3]int{1, 0, 0}, corners: [4][3]int{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{dir: [3]int{-1, 0, 0}, corners: [4][3]int{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{dir: [3]int{0, 1, 0}, corners: [4][3]int{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{dir: [3]int{0, -1, 0}, corners: [4][3]int{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{dir: [3]int{0, 0, 1}, corners: [4][3]int{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{dir: [3]int{0, 0, -1}, corners: [4][3]int{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// Extractor emits voxel boundary faces.
type Extractor struct{}

// New returns a voxel face Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the boundary of all voxels whose value exceeds iso. Voxel
// (i, j, k) spans [i-0.5, i+0.5] on each axis. Each exposed face becomes two
// triangles; shared corners are welded.
func (e *Extractor) Extract(v *kernel.Volume, iso float64) (*kernel.Mesh, error) {
	if err := v.Check(); err != nil {
		return nil, fmt.Errorf("voxel: %w", err)
	}

	index := make(map[[3]int]uint32)
	var vertices []kernel.Point3
	var triangles [][3]uint32

	corner := func(c [3]int) uint32 {
		if idx, ok := index[c]; ok {
			return idx
		}
		idx := uint32(len(vertices))
		index[c] = idx
		vertices = append(vertices, kernel.Point3{
			X: float64(c[0]) - 0.5,
			Y: float64(c[1]) - 0.5,
			Z: float64(c[2]) - 0.5,
		})
		return idx
	}

	nx, ny, nz := v.Dims[0], v.Dims[1], v.Dims[2]
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if !v.Inside(i, j, k, iso) {
					continue
				}
				for _, f := range faces {
					if v.Inside(i+f.dir[0], j+f.dir[1], k+f.dir[2], iso) {
						continue
					}
					var q [4]uint32
					for n, c := range f.corners {
						q[n] = corner([3]int{i + c[0], j + c[1], k + c[2]})
					}
					triangles = append(triangles, [3]uint32{q[0], q[1], q[2]}, [3]uint32{q[0], q[2], q[3]})
				}
			}
		}
	}

	m, err := kernel.NewMesh(vertices, triangles)
	if err != nil {
		return nil, fmt.Errorf("voxel: %w", err)
	}
	return m, nil
}
