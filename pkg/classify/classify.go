// Package classify decides whether a single entry→target trajectory is
// acceptable by running an ordered list of criteria against the meshes of a
// frozen registry.
package classify

import (
	"fmt"

	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/chazu/trajscreen/pkg/registry"
)

// MaxCriteria is the largest number of criteria a Classifier accepts. It is
// the width of Verdict.Violations.
const MaxCriteria = 64

// Status is the outcome of classifying one trajectory.
type Status uint8

const (
	StatusPending Status = iota
	StatusAccepted
	StatusRejected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Verdict is the result for one trajectory. Criterion is the position of
// the first violated criterion, or -1. Violations has bit i set when
// criterion i was violated; it is only complete in exhaustive mode.
type Verdict struct {
	Status     Status
	Criterion  int
	Violations uint64
}

// Accept returns the verdict for a trajectory that passed every criterion.
func Accept() Verdict { return Verdict{Status: StatusAccepted, Criterion: -1} }

// Reject returns the verdict for a trajectory stopped by the given criterion.
func Reject(criterion int) Verdict {
	return Verdict{Status: StatusRejected, Criterion: criterion, Violations: 1 << uint(criterion)}
}

// Fail returns the verdict for a trajectory whose evaluation did not finish.
func Fail() Verdict { return Verdict{Status: StatusFailed, Criterion: -1} }

// Criterion is a test bound to a mesh.
type Criterion interface {
	// Satisfied reports whether the segment from entry to target passes.
	Satisfied(entry, target kernel.Point3) bool
	// Spec returns the unbound form the criterion was built from.
	Spec() plan.CriterionSpec
}

// MustIntersect is satisfied when the trajectory crosses Mesh.
type MustIntersect struct {
	Structure string
	Mesh      *kernel.Mesh
}

func (c MustIntersect) Satisfied(entry, target kernel.Point3) bool {
	return kernel.Intersects(entry, target, c.Mesh)
}

func (c MustIntersect) Spec() plan.CriterionSpec { return plan.MustIntersect(c.Structure) }

// MustNotIntersect is satisfied when the trajectory does not cross Mesh.
type MustNotIntersect struct {
	Structure string
	Mesh      *kernel.Mesh
}

func (c MustNotIntersect) Satisfied(entry, target kernel.Point3) bool {
	return !kernel.Intersects(entry, target, c.Mesh)
}

func (c MustNotIntersect) Spec() plan.CriterionSpec { return plan.MustNotIntersect(c.Structure) }

// MaxAngle is satisfied when the trajectory misses Mesh, or crosses it at an
// incidence angle no larger than Max degrees. The angle is measured at the
// lowest-index crossed triangle.
type MaxAngle struct {
	Structure string
	Mesh      *kernel.Mesh
	Max       float64
}

func (c MaxAngle) Satisfied(entry, target kernel.Point3) bool {
	angle, ok := kernel.MinIncidenceAngle(entry, target, c.Mesh)
	return !ok || angle <= c.Max
}

func (c MaxAngle) Spec() plan.CriterionSpec { return plan.MaxAngle(c.Structure, c.Max) }

// Bind resolves spec against reg.
func Bind(reg *registry.Registry, spec plan.CriterionSpec) (Criterion, error) {
	s, err := reg.Lookup(spec.Structure)
	if err != nil {
		return nil, err
	}
	switch spec.Kind {
	case plan.KindMustIntersect:
		return MustIntersect{Structure: s.Name, Mesh: s.Mesh}, nil
	case plan.KindMustNotIntersect:
		return MustNotIntersect{Structure: s.Name, Mesh: s.Mesh}, nil
	case plan.KindMaxAngle:
		return MaxAngle{Structure: s.Name, Mesh: s.Mesh, Max: spec.MaxAngle}, nil
	default:
		return nil, fmt.Errorf("unsupported criterion kind %v", spec.Kind)
	}
}

// Classifier evaluates an ordered list of criteria. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	criteria []Criterion
}

// New binds every spec to its mesh in reg. Any unknown structure is
// reported with the criterion position and fails the whole call.
func New(reg *registry.Registry, specs []plan.CriterionSpec) (*Classifier, error) {
	if len(specs) > MaxCriteria {
		return nil, fmt.Errorf("classify: %d criteria, at most %d supported", len(specs), MaxCriteria)
	}
	crits := make([]Criterion, 0, len(specs))
	for i, spec := range specs {
		c, err := Bind(reg, spec)
		if err != nil {
			return nil, fmt.Errorf("classify: criterion %d (%s): %w", i, spec.Label(), err)
		}
		crits = append(crits, c)
	}
	return &Classifier{criteria: crits}, nil
}

// FromCriteria builds a Classifier from already bound criteria.
func FromCriteria(crits ...Criterion) (*Classifier, error) {
	if len(crits) > MaxCriteria {
		return nil, fmt.Errorf("classify: %d criteria, at most %d supported", len(crits), MaxCriteria)
	}
	return &Classifier{criteria: append([]Criterion(nil), crits...)}, nil
}

// Len returns the number of criteria.
func (c *Classifier) Len() int {
	return len(c.criteria)
}

// Specs returns the unbound criteria in evaluation order.
func (c *Classifier) Specs() []plan.CriterionSpec {
	specs := make([]plan.CriterionSpec, len(c.criteria))
	for i, crit := range c.criteria {
		specs[i] = crit.Spec()
	}
	return specs
}

// Classify runs the criteria in order and stops at the first one that is
// not satisfied.
func (c *Classifier) Classify(entry, target kernel.Point3) Verdict {
	for i, crit := range c.criteria {
		if !crit.Satisfied(entry, target) {
			return Reject(i)
		}
	}
	return Accept()
}

// Violations runs every criterion and records all that fail. The status and
// first violated criterion match what Classify returns.
func (c *Classifier) Violations(entry, target kernel.Point3) Verdict {
	v := Accept()
	for i, crit := range c.criteria {
		if crit.Satisfied(entry, target) {
			continue
		}
		if v.Status == StatusAccepted {
			v.Status = StatusRejected
			v.Criterion = i
		}
		v.Violations |= 1 << uint(i)
	}
	return v
}
