// Package registry holds the named meshes a screening run tests trajectories
// against.
//
// Building and reading are separate phases. A Builder registers structures
// and unions one at a time on a single goroutine; Freeze then hands out an
// immutable Registry that any number of screening workers may read without
// locking.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/trajscreen/pkg/kernel"
)

var (
	// ErrUnknownStructure is returned when a name has not been registered.
	ErrUnknownStructure = errors.New("unknown structure")
	// ErrDuplicateStructure is returned when a name is registered twice.
	ErrDuplicateStructure = errors.New("duplicate structure")
	// ErrFrozen is returned by a Builder after Freeze.
	ErrFrozen = errors.New("registry is frozen")
)

// UnionIso is the level at which union volumes are extracted. Union volumes
// are binary, so any level strictly between 0 and 1 gives the same surface.
const UnionIso = 0.5

// Structure is a named mesh together with where it came from.
type Structure struct {
	Name    string
	Index   int
	Mesh    *kernel.Mesh
	Sources []string // member names for unions, empty otherwise
}

// entry keeps the build-phase inputs of a structure so later unions can
// combine source volumes rather than meshes.
type entry struct {
	Structure
	volume *kernel.Volume
	iso    float64
}

// Builder accumulates structures. It is not safe for concurrent use.
type Builder struct {
	ex      kernel.Extractor
	entries []*entry
	byName  map[string]*entry
	frozen  bool
}

// NewBuilder returns a Builder that turns volumes into meshes with ex.
func NewBuilder(ex kernel.Extractor) *Builder {
	return &Builder{
		ex:     ex,
		byName: make(map[string]*entry),
	}
}

// Register extracts the iso-surface of vol and stores it under name.
func (b *Builder) Register(name string, vol *kernel.Volume, iso float64) (Structure, error) {
	if b.frozen {
		return Structure{}, fmt.Errorf("registry: register %q: %w", name, ErrFrozen)
	}
	if _, ok := b.byName[name]; ok {
		return Structure{}, fmt.Errorf("registry: register %q: %w", name, ErrDuplicateStructure)
	}
	if vol == nil {
		return Structure{}, fmt.Errorf("registry: register %q: nil volume", name)
	}
	mesh, err := b.ex.Extract(vol, iso)
	if err != nil {
		return Structure{}, fmt.Errorf("registry: structure %q: %w", name, err)
	}
	return b.add(name, mesh, vol, iso, nil), nil
}

// Union merges the source volumes of structures a and b voxel-wise and
// registers the surface of the merged volume under name. Each source is
// thresholded at its own iso level before merging.
func (b *Builder) Union(a, bName, name string) (Structure, error) {
	if b.frozen {
		return Structure{}, fmt.Errorf("registry: union %q: %w", name, ErrFrozen)
	}
	if _, ok := b.byName[name]; ok {
		return Structure{}, fmt.Errorf("registry: union %q: %w", name, ErrDuplicateStructure)
	}
	ea, ok := b.byName[a]
	if !ok {
		return Structure{}, fmt.Errorf("registry: union %q: %q: %w", name, a, ErrUnknownStructure)
	}
	eb, ok := b.byName[bName]
	if !ok {
		return Structure{}, fmt.Errorf("registry: union %q: %q: %w", name, bName, ErrUnknownStructure)
	}
	merged, err := kernel.Or(ea.volume, eb.volume, ea.iso, eb.iso)
	if err != nil {
		return Structure{}, fmt.Errorf("registry: union %q: %w", name, err)
	}
	mesh, err := b.ex.Extract(merged, UnionIso)
	if err != nil {
		return Structure{}, fmt.Errorf("registry: structure %q: %w", name, err)
	}
	return b.add(name, mesh, merged, UnionIso, []string{a, bName}), nil
}

func (b *Builder) add(name string, mesh *kernel.Mesh, vol *kernel.Volume, iso float64, sources []string) Structure {
	e := &entry{
		Structure: Structure{
			Name:    name,
			Index:   len(b.entries),
			Mesh:    mesh,
			Sources: sources,
		},
		volume: vol,
		iso:    iso,
	}
	b.entries = append(b.entries, e)
	b.byName[name] = e
	return e.Structure
}

// Len returns the number of structures registered so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Freeze ends the build phase and returns the immutable registry. Source
// volumes are released; the Builder rejects further changes.
func (b *Builder) Freeze() *Registry {
	b.frozen = true
	r := &Registry{
		structures: make([]Structure, len(b.entries)),
		byName:     make(map[string]int, len(b.entries)),
	}
	for i, e := range b.entries {
		r.structures[i] = e.Structure
		r.byName[e.Name] = i
		e.volume = nil
	}
	return r
}

// Registry is a frozen set of structures. All methods are safe for
// concurrent use.
type Registry struct {
	structures []Structure
	byName     map[string]int
}

// Lookup returns the structure registered under name.
func (r *Registry) Lookup(name string) (Structure, error) {
	i, ok := r.byName[name]
	if !ok {
		return Structure{}, fmt.Errorf("registry: %q: %w", name, ErrUnknownStructure)
	}
	return r.structures[i], nil
}

// MustLookup is like Lookup but panics when name is unknown.
func (r *Registry) MustLookup(name string) Structure {
	s, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of structures.
func (r *Registry) Len() int {
	return len(r.structures)
}

// At returns the structure with the given registration index.
func (r *Registry) At(i int) Structure {
	return r.structures[i]
}

// Names returns all structure names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.structures))
	for _, s := range r.structures {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
