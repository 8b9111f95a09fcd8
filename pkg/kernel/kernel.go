// Package kernel is the geometry kernel used by trajectory screening.
// It holds the immutable triangle mesh type, the segment/mesh intersection
// and incidence-angle tests, and the surface-extraction interface that
// turns a voxel volume into a mesh. Extraction backends (sdfx, voxel) live
// in subpackages behind the Extractor interface so they can be swapped
// without touching the rest of the system.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point3 is a point or direction in the shared screening frame.
type Point3 = r3.Vec

// Extractor produces a triangulated iso-surface from a volume.
// Implementations must be deterministic for a given volume and level.
type Extractor interface {
	Extract(v *Volume, iso float64) (*Mesh, error)
}

// ErrVolumeShape is returned when volume dimensions and data disagree or
// two volumes that must match do not.
var ErrVolumeShape = errors.New("volume shape mismatch")

// Volume is a dense scalar field on a regular grid. Voxel (i, j, k) is
// located at point (i, j, k); Data is stored x-fastest.
type Volume struct {
	Dims [3]int
	Data []float64
}

// NewVolume returns a zero-filled volume with the given dimensions.
func NewVolume(nx, ny, nz int) *Volume {
	if nx < 0 || ny < 0 || nz < 0 {
		nx, ny, nz = 0, 0, 0
	}
	return &Volume{
		Dims: [3]int{nx, ny, nz},
		Data: make([]float64, nx*ny*nz),
	}
}

// Check verifies that Data has exactly one value per voxel.
func (v *Volume) Check() error {
	n := v.Dims[0] * v.Dims[1] * v.Dims[2]
	if v.Dims[0] < 0 || v.Dims[1] < 0 || v.Dims[2] < 0 || len(v.Data) != n {
		return fmt.Errorf("%w: dims %v need %d values, have %d", ErrVolumeShape, v.Dims, n, len(v.Data))
	}
	return nil
}

// Len returns the number of voxels.
func (v *Volume) Len() int {
	return len(v.Data)
}

// InBounds reports whether (i, j, k) addresses a voxel.
func (v *Volume) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < v.Dims[0] && j < v.Dims[1] && k < v.Dims[2]
}

func (v *Volume) offset(i, j, k int) int {
	return i + v.Dims[0]*(j+v.Dims[1]*k)
}

// At returns the value at (i, j, k), or 0 outside the grid.
func (v *Volume) At(i, j, k int) float64 {
	if !v.InBounds(i, j, k) {
		return 0
	}
	return v.Data[v.offset(i, j, k)]
}

// Set stores a value at (i, j, k). Out-of-range writes are ignored.
func (v *Volume) Set(i, j, k int, val float64) {
	if !v.InBounds(i, j, k) {
		return
	}
	v.Data[v.offset(i, j, k)] = val
}

// Inside reports whether the voxel value exceeds iso.
func (v *Volume) Inside(i, j, k int, iso float64) bool {
	return v.At(i, j, k) > iso
}

// Count returns the number of voxels above iso.
func (v *Volume) Count(iso float64) int {
	n := 0
	for _, x := range v.Data {
		if x > iso {
			n++
		}
	}
	return n
}

// Sample trilinearly interpolates the field at p. Points outside the grid
// blend towards zero.
func (v *Volume) Sample(p Point3) float64 {
	i0, fx := splitCoord(p.X)
	j0, fy := splitCoord(p.Y)
	k0, fz := splitCoord(p.Z)

	c00 := lerp(v.At(i0, j0, k0), v.At(i0+1, j0, k0), fx)
	c10 := lerp(v.At(i0, j0+1, k0), v.At(i0+1, j0+1, k0), fx)
	c01 := lerp(v.At(i0, j0, k0+1), v.At(i0+1, j0, k0+1), fx)
	c11 := lerp(v.At(i0, j0+1, k0+1), v.At(i0+1, j0+1, k0+1), fx)

	c0 := lerp(c00, c10, fy)
	c1 := lerp(c01, c11, fy)
	return lerp(c0, c1, fz)
}

func splitCoord(x float64) (int, float64) {
	fl := math.Floor(x)
	return int(fl), x - fl
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Or merges two volumes voxel-wise: the result is 1 wherever a is above
// isoA or b is above isoB, and 0 elsewhere. The merged volume is meant to be
// extracted at a level between 0 and 1.
func Or(a, b *Volume, isoA, isoB float64) (*Volume, error) {
	if err := a.Check(); err != nil {
		return nil, err
	}
	if err := b.Check(); err != nil {
		return nil, err
	}
	if a.Dims != b.Dims {
		return nil, fmt.Errorf("%w: cannot merge %v with %v", ErrVolumeShape, a.Dims, b.Dims)
	}
	out := NewVolume(a.Dims[0], a.Dims[1], a.Dims[2])
	for i := range a.Data {
		if a.Data[i] > isoA || b.Data[i] > isoB {
			out.Data[i] = 1
		}
	}
	return out, nil
}
