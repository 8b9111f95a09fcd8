// Package tessellate walks a plan's structure definitions and produces the
// frozen mesh registry used for screening. One mesh is produced per
// structure.
package tessellate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/chazu/trajscreen/pkg/registry"
)

// VolumeSource resolves the volume keys named in structure definitions.
type VolumeSource interface {
	Volume(key string) (*kernel.Volume, error)
}

// Option configures Build.
type Option func(*walker)

// WithLogger sets the logger used for per-structure progress lines.
func WithLogger(l *slog.Logger) Option {
	return func(w *walker) { w.log = l }
}

// walker carries the state of one Build call.
type walker struct {
	src     VolumeSource
	b       *registry.Builder
	defs    map[string]plan.StructureDef
	volumes map[string]*kernel.Volume
	done    map[string]bool
	active  map[string]bool
	log     *slog.Logger
}

// Build registers every volume-backed structure in declaration order, then
// every union (members before the unions that use them), and freezes the
// result. Build is read-only with respect to defs.
func Build(ctx context.Context, defs []plan.StructureDef, src VolumeSource, ex kernel.Extractor, opts ...Option) (*registry.Registry, error) {
	w := &walker{
		src:     src,
		b:       registry.NewBuilder(ex),
		defs:    make(map[string]plan.StructureDef, len(defs)),
		volumes: make(map[string]*kernel.Volume),
		done:    make(map[string]bool, len(defs)),
		active:  make(map[string]bool),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(w)
	}
	for _, d := range defs {
		w.defs[d.Name] = d
	}

	for _, d := range defs {
		if d.IsUnion() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tessellate: %w", err)
		}
		if err := w.handleVolume(d); err != nil {
			return nil, err
		}
	}
	for _, d := range defs {
		if !d.IsUnion() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tessellate: %w", err)
		}
		if err := w.handleUnion(d); err != nil {
			return nil, err
		}
	}
	return w.b.Freeze(), nil
}

// handleVolume fetches (once per key) and registers a volume structure.
func (w *walker) handleVolume(d plan.StructureDef) error {
	vol, ok := w.volumes[d.Volume]
	if !ok {
		var err error
		vol, err = w.src.Volume(d.Volume)
		if err != nil {
			return fmt.Errorf("tessellate: structure %q: volume %q: %w", d.Name, d.Volume, err)
		}
		w.volumes[d.Volume] = vol
	}
	s, err := w.b.Register(d.Name, vol, d.Iso)
	if err != nil {
		return fmt.Errorf("tessellate: %w", err)
	}
	w.done[d.Name] = true
	w.logStructure(s)
	return nil
}

// handleUnion registers a union after making sure its members exist.
func (w *walker) handleUnion(d plan.StructureDef) error {
	if w.done[d.Name] {
		return nil
	}
	if len(d.Union) != 2 {
		return fmt.Errorf("tessellate: union %q needs exactly 2 members, has %d", d.Name, len(d.Union))
	}
	if w.active[d.Name] {
		return fmt.Errorf("tessellate: union %q is part of a cycle", d.Name)
	}
	w.active[d.Name] = true
	defer delete(w.active, d.Name)

	for _, member := range d.Union {
		if w.done[member] {
			continue
		}
		md, ok := w.defs[member]
		if !ok || !md.IsUnion() {
			return fmt.Errorf("tessellate: union %q: %q: %w", d.Name, member, registry.ErrUnknownStructure)
		}
		if err := w.handleUnion(md); err != nil {
			return err
		}
	}

	s, err := w.b.Union(d.Union[0], d.Union[1], d.Name)
	if err != nil {
		return fmt.Errorf("tessellate: %w", err)
	}
	w.done[d.Name] = true
	w.logStructure(s)
	return nil
}

func (w *walker) logStructure(s registry.Structure) {
	w.log.Info("structure meshed",
		"structure", s.Name,
		"vertices", s.Mesh.VertexCount(),
		"triangles", s.Mesh.TriangleCount(),
		"sources", s.Sources,
	)
}
