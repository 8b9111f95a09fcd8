// Package plan defines the screening plan: the anatomical structures that
// need a mesh and the ordered list of criteria a trajectory must satisfy.
//
// A Plan is plain data. It is produced by the DSL engine (pkg/engine) or built
// in code, checked with Validate, and then consumed by pkg/tessellate (which
// turns StructureDefs into meshes) and pkg/classify (which binds
// CriterionSpecs to those meshes).
package plan

import (
	"fmt"
	"strconv"
)

// DefaultMaxAngle is the largest accepted incidence angle, in degrees,
// between a trajectory and the surface normal it crosses. Trajectories must
// meet the surface within 55 degrees of perpendicular to it.
const DefaultMaxAngle = 90 - 55

// DefaultIso is the iso level used to extract binary label volumes.
const DefaultIso = 0.5

// CriterionKind names one of the supported trajectory tests.
type CriterionKind int

const (
	KindMustIntersect CriterionKind = iota
	KindMustNotIntersect
	KindMaxAngle
)

var kindNames = map[CriterionKind]string{
	KindMustIntersect:    "must_intersect",
	KindMustNotIntersect: "must_not_intersect",
	KindMaxAngle:         "max_angle",
}

func (k CriterionKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("CriterionKind(%d)", int(k))
}

// ParseKind converts a kind name back to a CriterionKind. Both the snake
// case used in reports and the kebab case used in the DSL are accepted.
func ParseKind(s string) (CriterionKind, error) {
	switch s {
	case "must_intersect", "must-intersect":
		return KindMustIntersect, nil
	case "must_not_intersect", "must-not-intersect":
		return KindMustNotIntersect, nil
	case "max_angle", "max-angle":
		return KindMaxAngle, nil
	}
	return 0, fmt.Errorf("plan: unknown criterion kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k CriterionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CriterionKind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// StructureDef declares a named structure. Exactly one of Volume or Union
// is set: Volume is a key understood by the volume source, Union names the
// two structures whose source volumes are merged voxel-wise.
type StructureDef struct {
	Name   string   `yaml:"name"`
	Volume string   `yaml:"volume,omitempty"`
	Union  []string `yaml:"union,omitempty"`
	Iso    float64  `yaml:"iso,omitempty"`
}

// IsUnion reports whether the structure is derived from other structures.
func (d StructureDef) IsUnion() bool {
	return len(d.Union) > 0
}

// CriterionSpec is an unbound criterion: the kind of test and the name of
// the structure it applies to.
type CriterionSpec struct {
	Kind      CriterionKind `yaml:"kind"`
	Structure string        `yaml:"structure"`
	MaxAngle  float64       `yaml:"max_angle,omitempty"`
}

// MustIntersect returns a criterion satisfied when the trajectory crosses
// the named structure.
func MustIntersect(structure string) CriterionSpec {
	return CriterionSpec{Kind: KindMustIntersect, Structure: structure}
}

// MustNotIntersect returns a criterion satisfied when the trajectory does
// not cross the named structure.
func MustNotIntersect(structure string) CriterionSpec {
	return CriterionSpec{Kind: KindMustNotIntersect, Structure: structure}
}

// MaxAngle returns a criterion satisfied when the trajectory either misses
// the named structure or crosses it at an incidence angle of at most max
// degrees.
func MaxAngle(structure string, max float64) CriterionSpec {
	return CriterionSpec{Kind: KindMaxAngle, Structure: structure, MaxAngle: max}
}

// Label is a short human-readable form such as "max_angle(cortex, 35)".
func (c CriterionSpec) Label() string {
	if c.Kind == KindMaxAngle {
		return fmt.Sprintf("%s(%s, %s)", c.Kind, c.Structure, strconv.FormatFloat(c.MaxAngle, 'g', -1, 64))
	}
	return fmt.Sprintf("%s(%s)", c.Kind, c.Structure)
}

// Reference returns the reference criteria in their reference order: the
// trajectory must reach target, must avoid hazard, and must meet boundary
// within DefaultMaxAngle of its normal.
func Reference(target, hazard, boundary string) []CriterionSpec {
	return []CriterionSpec{
		MustIntersect(target),
		MustNotIntersect(hazard),
		MaxAngle(boundary, DefaultMaxAngle),
	}
}

// Plan is an ordered set of structure definitions and criteria.
type Plan struct {
	Structures []StructureDef  `yaml:"structures"`
	Criteria   []CriterionSpec `yaml:"criteria"`
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{}
}

// AddVolume declares a structure backed by a volume, extracted at level iso.
func (p *Plan) AddVolume(name, volume string, iso float64) {
	p.Structures = append(p.Structures, StructureDef{Name: name, Volume: volume, Iso: iso})
}

// AddUnion declares a structure formed from the voxel-wise union of a and b.
func (p *Plan) AddUnion(name, a, b string) {
	p.Structures = append(p.Structures, StructureDef{Name: name, Union: []string{a, b}})
}

// AddCriterion appends c to the ordered criteria.
func (p *Plan) AddCriterion(c CriterionSpec) {
	p.Criteria = append(p.Criteria, c)
}

// Structure returns the definition with the given name.
func (p *Plan) Structure(name string) (StructureDef, bool) {
	for _, d := range p.Structures {
		if d.Name == name {
			return d, true
		}
	}
	return StructureDef{}, false
}

// Volumes returns the distinct volume keys referenced by the plan, in
// declaration order.
func (p *Plan) Volumes() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, d := range p.Structures {
		if d.Volume == "" || seen[d.Volume] {
			continue
		}
		seen[d.Volume] = true
		keys = append(keys, d.Volume)
	}
	return keys
}
