package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/trajscreen/pkg/plan"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types
// ---------------------------------------------------------------------------

// sexpStructure is returned by `structure` and `union` so definitions can be
// bound with def and passed to criteria instead of repeating the name.
type sexpStructure struct {
	name string
}

func (s *sexpStructure) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(structure %q)", s.name)
}
func (s *sexpStructure) Type() *zygo.RegisteredType { return nil }

// sexpCriterion is returned by the criterion builtins.
type sexpCriterion struct {
	spec plan.CriterionSpec
}

func (c *sexpCriterion) SexpString(ps *zygo.PrintState) string {
	return "(" + c.spec.Label() + ")"
}
func (c *sexpCriterion) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// unknownKeywords returns an error naming the first keyword not in allowed.
func (a kwArgs) unknownKeywords(fn string, allowed ...string) error {
	for k := range a.kw {
		found := false
		for _, ok := range allowed {
			if k == ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: unknown keyword :%s", fn, k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a SexpInt or SexpFloat.
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a plain string.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok && !strings.HasPrefix(str.S, kwPrefix) {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toStructureName accepts a structure name string, a symbol or the value
// returned by `structure`/`union`.
func toStructureName(s zygo.Sexp) (string, error) {
	switch v := s.(type) {
	case *sexpStructure:
		return v.name, nil
	case *zygo.SexpSymbol:
		return v.Name(), nil
	}
	name, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected structure name: %w", err)
	}
	return name, nil
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// registerBuiltins installs the plan DSL into env. Every builtin appends to
// p in call order, which fixes criterion evaluation order.
//
//	(structure "hippo" :volume "r_hippo" :iso 0.5)
//	(union "hazard" "ventricles" "vessels")
//	(must-intersect "hippo")
//	(must-not-intersect "hazard")
//	(max-angle "cortex" 35)            ; or :min-surface-angle 55
//	(reference-plan "hippo" "hazard" "cortex")
//
// Source must be run through preprocessSource first so keywords and
// kebab-case names arrive in the form handled here.
func registerBuiltins(env *zygo.Zlisp, p *plan.Plan) {
	env.AddFunction("structure", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		a := parseArgs(args)
		if err := a.unknownKeywords("structure", "volume", "iso"); err != nil {
			return zygo.SexpNull, err
		}
		if len(a.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("structure requires exactly one name, got %d positional arguments", len(a.positional))
		}
		sname, err := toString(a.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("structure: name: %w", err)
		}
		volume := sname
		if v, ok := a.kw["volume"]; ok {
			volume, err = toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("structure: volume: %w", err)
			}
		}
		iso := plan.DefaultIso
		if v, ok := a.kw["iso"]; ok {
			iso, err = toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("structure: iso: %w", err)
			}
		}
		p.AddVolume(sname, volume, iso)
		return &sexpStructure{name: sname}, nil
	})

	env.AddFunction("union", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("union requires a name and two members, got %d arguments", len(args))
		}
		uname, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("union: name: %w", err)
		}
		a, err := toStructureName(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("union: first member: %w", err)
		}
		b, err := toStructureName(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("union: second member: %w", err)
		}
		p.AddUnion(uname, a, b)
		return &sexpStructure{name: uname}, nil
	})

	env.AddFunction("must_intersect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return addSimple(p, "must-intersect", args, plan.MustIntersect)
	})

	env.AddFunction("must_not_intersect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return addSimple(p, "must-not-intersect", args, plan.MustNotIntersect)
	})

	env.AddFunction("max_angle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		a := parseArgs(args)
		if err := a.unknownKeywords("max-angle", "min-surface-angle"); err != nil {
			return zygo.SexpNull, err
		}
		if len(a.positional) < 1 || len(a.positional) > 2 {
			return zygo.SexpNull, fmt.Errorf("max-angle requires a structure and an optional angle")
		}
		sname, err := toStructureName(a.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("max-angle: %w", err)
		}
		limit := float64(plan.DefaultMaxAngle)
		if len(a.positional) == 2 {
			if _, ok := a.kw["min-surface-angle"]; ok {
				return zygo.SexpNull, fmt.Errorf("max-angle: give either an angle or :min-surface-angle, not both")
			}
			limit, err = toFloat64(a.positional[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("max-angle: angle: %w", err)
			}
		}
		if v, ok := a.kw["min-surface-angle"]; ok {
			surface, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("max-angle: min-surface-angle: %w", err)
			}
			limit = 90 - surface
		}
		c := plan.MaxAngle(sname, limit)
		p.AddCriterion(c)
		return &sexpCriterion{spec: c}, nil
	})

	env.AddFunction("reference_plan", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("reference-plan requires target, hazard and boundary structures, got %d arguments", len(args))
		}
		names := make([]string, 3)
		for i, arg := range args {
			n, err := toStructureName(arg)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("reference-plan: argument %d: %w", i+1, err)
			}
			names[i] = n
		}
		specs := plan.Reference(names[0], names[1], names[2])
		out := make([]zygo.Sexp, 0, len(specs))
		for _, c := range specs {
			p.AddCriterion(c)
			out = append(out, &sexpCriterion{spec: c})
		}
		return &zygo.SexpArray{Val: out}, nil
	})
}

// addSimple handles the single-argument intersection criteria.
func addSimple(p *plan.Plan, fn string, args []zygo.Sexp, mk func(string) plan.CriterionSpec) (zygo.Sexp, error) {
	if len(args) != 1 {
		return zygo.SexpNull, fmt.Errorf("%s requires exactly one structure, got %d arguments", fn, len(args))
	}
	sname, err := toStructureName(args[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
	}
	c := mk(sname)
	p.AddCriterion(c)
	return &sexpCriterion{spec: c}, nil
}
