// Package voxfile reads sparse voxel tables: whitespace separated text files
// listing the integer indices "i j k" of occupied voxels, one per line, with
// "#" comment lines.
package voxfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/phil-mansfield/table"
)

// ErrUnknownVolume is returned by Dir for keys it has no entry for.
var ErrUnknownVolume = errors.New("voxfile: unknown volume")

// Read loads the table at path into a volume of the given dims. Listed
// voxels are set to 1, all others are 0.
func Read(path string, dims [3]int) (*kernel.Volume, error) {
	for _, n := range dims {
		if n <= 0 {
			return nil, fmt.Errorf("voxfile: %s: dims %v must be positive", path, dims)
		}
	}
	if empty, err := isEmpty(path); err != nil {
		return nil, err
	} else if empty {
		return kernel.NewVolume(dims[0], dims[1], dims[2]), nil
	}

	cols, err := table.ReadTable(path, []int{0, 1, 2}, nil)
	if err != nil {
		return nil, fmt.Errorf("voxfile: %s: %w", path, err)
	}
	is, js, ks := cols[0], cols[1], cols[2]

	v := kernel.NewVolume(dims[0], dims[1], dims[2])
	for n := range is {
		i, j, k, err := index(is[n], js[n], ks[n])
		if err != nil {
			return nil, fmt.Errorf("voxfile: %s: row %d: %w", path, n+1, err)
		}
		if !v.InBounds(i, j, k) {
			return nil, fmt.Errorf("voxfile: %s: row %d: voxel (%d, %d, %d) outside dims %v", path, n+1, i, j, k, dims)
		}
		v.Set(i, j, k, 1)
	}
	return v, nil
}

// Write lists every voxel of v whose value exceeds iso.
func Write(w io.Writer, v *kernel.Volume, iso float64) error {
	if err := v.Check(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# dims %d %d %d\n", v.Dims[0], v.Dims[1], v.Dims[2])
	for k := 0; k < v.Dims[2]; k++ {
		for j := 0; j < v.Dims[1]; j++ {
			for i := 0; i < v.Dims[0]; i++ {
				if v.Inside(i, j, k, iso) {
					fmt.Fprintf(bw, "%d %d %d\n", i, j, k)
				}
			}
		}
	}
	return bw.Flush()
}

// WriteFile is Write to a new file at path.
func WriteFile(path string, v *kernel.Volume, iso float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, v, iso); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func index(x, y, z float64) (int, int, int, error) {
	out := [3]int{}
	for a, c := range [3]float64{x, y, z} {
		if c != math.Trunc(c) {
			return 0, 0, 0, fmt.Errorf("index %g is not an integer", c)
		}
		out[a] = int(c)
	}
	return out[0], out[1], out[2], nil
}

// isEmpty reports whether the file holds no data rows.
func isEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		for _, c := range line {
			if c == ' ' || c == '\t' || c == '\r' {
				continue
			}
			if c != '#' {
				return false, nil
			}
			break
		}
	}
	return true, sc.Err()
}

// Entry locates one volume on disk.
type Entry struct {
	Path string
	Dims [3]int
}

// Dir resolves volume keys to table files. Relative paths are taken
// relative to Root.
type Dir struct {
	Root    string
	Entries map[string]Entry
}

// Volume reads the volume registered under key.
func (d *Dir) Volume(key string) (*kernel.Volume, error) {
	e, ok := d.Entries[key]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVolume, key)
	}
	path := e.Path
	if !filepath.IsAbs(path) && d.Root != "" {
		path = filepath.Join(d.Root, path)
	}
	return Read(path, e.Dims)
}
