package plan

import (
	"fmt"
	"math"
)

// ValidationSeverity indicates whether a validation finding blocks screening
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks screening
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding. Index is the
// criterion position the finding refers to, or -1 for structure-level
// findings.
type ValidationError struct {
	Index     int
	Structure string
	Message   string
	Severity  ValidationSeverity
}

func (e ValidationError) Error() string {
	switch {
	case e.Index >= 0:
		return fmt.Sprintf("[%s] criterion %d: %s", e.Severity, e.Index, e.Message)
	case e.Structure != "":
		return fmt.Sprintf("[%s] structure %q: %s", e.Severity, e.Structure, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
}

// Validate runs every structural check on p and returns the findings. An
// empty slice means the plan is valid. Validate never mutates p.
func Validate(p *Plan) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateNames(p)...)
	errs = append(errs, validateDefinitions(p)...)
	errs = append(errs, validateUnionCycles(p)...)
	errs = append(errs, validateCriteria(p)...)
	errs = append(errs, validateUsage(p)...)
	return errs
}

// HasErrors reports whether any finding has error severity.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateNames checks that structure names are non-empty and unique.
func validateNames(p *Plan) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, d := range p.Structures {
		if d.Name == "" {
			errs = append(errs, ValidationError{
				Index:    -1,
				Message:  fmt.Sprintf("structure definition %d has an empty name", i),
				Severity: SeverityError,
			})
			continue
		}
		if seen[d.Name] {
			errs = append(errs, ValidationError{
				Index:     -1,
				Structure: d.Name,
				Message:   "duplicate structure name",
				Severity:  SeverityError,
			})
		}
		seen[d.Name] = true
	}
	return errs
}

// validateDefinitions checks that each structure has exactly one source and
// that union members exist.
func validateDefinitions(p *Plan) []ValidationError {
	var errs []ValidationError
	for _, d := range p.Structures {
		switch {
		case d.Volume != "" && d.IsUnion():
			errs = append(errs, ValidationError{
				Index:     -1,
				Structure: d.Name,
				Message:   "structure has both a volume and a union",
				Severity:  SeverityError,
			})
		case d.Volume == "" && !d.IsUnion():
			errs = append(errs, ValidationError{
				Index:     -1,
				Structure: d.Name,
				Message:   "structure has neither a volume nor a union",
				Severity:  SeverityError,
			})
		case d.IsUnion():
			if len(d.Union) != 2 {
				errs = append(errs, ValidationError{
					Index:     -1,
					Structure: d.Name,
					Message:   fmt.Sprintf("union needs exactly 2 members, has %d", len(d.Union)),
					Severity:  SeverityError,
				})
			}
			for _, member := range d.Union {
				if _, ok := p.Structure(member); !ok {
					errs = append(errs, ValidationError{
						Index:     -1,
						Structure: d.Name,
						Message:   fmt.Sprintf("union member %q does not exist", member),
						Severity:  SeverityError,
					})
				}
			}
		default:
			if math.IsNaN(d.Iso) {
				errs = append(errs, ValidationError{
					Index:     -1,
					Structure: d.Name,
					Message:   "iso level is NaN",
					Severity:  SeverityError,
				})
			} else if d.Iso < 0 {
				errs = append(errs, ValidationError{
					Index:     -1,
					Structure: d.Name,
					Message:   fmt.Sprintf("negative iso level %g", d.Iso),
					Severity:  SeverityWarning,
				})
			}
		}
	}
	return errs
}

// validateUnionCycles checks that unions form a DAG using DFS with 3-color
// marking. Meeting a gray structure during traversal means a cycle.
func validateUnionCycles(p *Plan) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	defs := make(map[string]StructureDef, len(p.Structures))
	for _, d := range p.Structures {
		defs[d.Name] = d
	}

	color := make(map[string]int)
	var errs []ValidationError

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				Index:     -1,
				Structure: name,
				Message:   "union cycle detected",
				Severity:  SeverityError,
			})
			return true
		}

		color[name] = gray
		d, ok := defs[name]
		if !ok {
			// Dangling member; reported by validateDefinitions.
			color[name] = black
			return false
		}
		for _, member := range d.Union {
			if visit(member) {
				return true
			}
		}
		color[name] = black
		return false
	}

	for _, d := range p.Structures {
		if color[d.Name] == white {
			if visit(d.Name) {
				break
			}
		}
	}
	return errs
}

// validateCriteria checks that each criterion names a known structure and
// carries a usable angle.
func validateCriteria(p *Plan) []ValidationError {
	var errs []ValidationError
	if len(p.Criteria) == 0 {
		errs = append(errs, ValidationError{
			Index:    -1,
			Message:  "plan has no criteria; every trajectory will be accepted",
			Severity: SeverityWarning,
		})
	}
	if len(p.Criteria) > 64 {
		errs = append(errs, ValidationError{
			Index:    -1,
			Message:  fmt.Sprintf("plan has %d criteria, at most 64 are supported", len(p.Criteria)),
			Severity: SeverityError,
		})
	}
	for i, c := range p.Criteria {
		if _, ok := kindNames[c.Kind]; !ok {
			errs = append(errs, ValidationError{
				Index:     i,
				Structure: c.Structure,
				Message:   fmt.Sprintf("unknown criterion kind %d", int(c.Kind)),
				Severity:  SeverityError,
			})
		}
		if _, ok := p.Structure(c.Structure); !ok {
			errs = append(errs, ValidationError{
				Index:     i,
				Structure: c.Structure,
				Message:   fmt.Sprintf("%s references unknown structure %q", c.Kind, c.Structure),
				Severity:  SeverityError,
			})
		}
		if c.Kind == KindMaxAngle && (math.IsNaN(c.MaxAngle) || c.MaxAngle < 0 || c.MaxAngle > 90) {
			errs = append(errs, ValidationError{
				Index:     i,
				Structure: c.Structure,
				Message:   fmt.Sprintf("max angle %g outside [0, 90]", c.MaxAngle),
				Severity:  SeverityError,
			})
		}
	}
	return errs
}

// validateUsage warns about structures no criterion or union refers to.
// They still cost a mesh extraction.
func validateUsage(p *Plan) []ValidationError {
	used := make(map[string]bool)
	for _, c := range p.Criteria {
		used[c.Structure] = true
	}
	for _, d := range p.Structures {
		for _, member := range d.Union {
			used[member] = true
		}
	}
	var errs []ValidationError
	for _, d := range p.Structures {
		if d.Name != "" && !used[d.Name] {
			errs = append(errs, ValidationError{
				Index:     -1,
				Structure: d.Name,
				Message:   "structure is never used",
				Severity:  SeverityWarning,
			})
		}
	}
	return errs
}
