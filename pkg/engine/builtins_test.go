package engine

import (
	"strings"
	"testing"

	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// Preprocessing
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(structure "hippo" :volume "r_hippo")`,
			expect: `(structure "hippo" "__kw_volume" "r_hippo")`,
		},
		{
			name:   "multiple keywords",
			input:  `(structure "hippo" :volume "r_hippo" :iso 0.4)`,
			expect: `(structure "hippo" "__kw_volume" "r_hippo" "__kw_iso" 0.4)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "escaped quote in string",
			input:  `"a \" :b" :c`,
			expect: `"a \" :b" "__kw_c"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(max-angle "cortex" :min-surface-angle 55)`,
			expect: `(max_angle "cortex" "__kw_min-surface-angle" 55)`,
		},
		{
			name:   "hyphen inside string preserved",
			input:  `(must-not-intersect "left-ventricle")`,
			expect: `(must_not_intersect "left-ventricle")`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 90 55)`,
			expect: `(- 90 55)`,
		},
		{
			name:   "negative number preserved",
			input:  `(max-angle "c" -1)`,
			expect: `(max_angle "c" -1)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  "; simple comment\n(x)",
			expect: "// simple comment\n(x)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func mustEvaluate(t *testing.T, source string) *plan.Plan {
	t.Helper()
	p, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if p == nil {
		t.Fatal("expected non-nil plan")
	}
	return p
}

func evalErrors(t *testing.T, source string) []EvalError {
	t.Helper()
	p, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil plan, got %+v", p)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval errors")
	}
	return evalErrs
}

func TestStructureDefaults(t *testing.T) {
	p := mustEvaluate(t, `
(structure "hippo")
(must-intersect "hippo")
`)
	want := []plan.StructureDef{{Name: "hippo", Volume: "hippo", Iso: plan.DefaultIso}}
	if diff := cmp.Diff(want, p.Structures); diff != "" {
		t.Errorf("structures mismatch (-want +got):\n%s", diff)
	}
}

func TestStructureKeywords(t *testing.T) {
	p := mustEvaluate(t, `
(structure "hippo" :volume "r_hippo" :iso 0.25)
(must-intersect "hippo")
`)
	want := []plan.StructureDef{{Name: "hippo", Volume: "r_hippo", Iso: 0.25}}
	if diff := cmp.Diff(want, p.Structures); diff != "" {
		t.Errorf("structures mismatch (-want +got):\n%s", diff)
	}
}

func TestStructureZeroIso(t *testing.T) {
	p := mustEvaluate(t, `
(structure "field" :iso 0)
(must-intersect "field")
`)
	want := []plan.StructureDef{{Name: "field", Volume: "field", Iso: 0}}
	if diff := cmp.Diff(want, p.Structures); diff != "" {
		t.Errorf("structures mismatch (-want +got):\n%s", diff)
	}
}

func TestStructureUnknownKeyword(t *testing.T) {
	errs := evalErrors(t, `(structure "hippo" :colour "red")`)
	if !strings.Contains(errs[0].Message, "unknown keyword :colour") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestVariableReference(t *testing.T) {
	p := mustEvaluate(t, `
(def target (structure "hippo" :volume "r_hippo"))
(def vents (structure "ventricles"))
(def vessels (structure "vessels"))
(def hazard (union "hazard" vents vessels))
(must-intersect target)
(must-not-intersect hazard)
`)
	want := []plan.CriterionSpec{
		plan.MustIntersect("hippo"),
		plan.MustNotIntersect("hazard"),
	}
	if diff := cmp.Diff(want, p.Criteria); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
	hz, ok := p.Structure("hazard")
	if !ok {
		t.Fatal("hazard not declared")
	}
	if diff := cmp.Diff([]string{"ventricles", "vessels"}, hz.Union); diff != "" {
		t.Errorf("union members mismatch (-want +got):\n%s", diff)
	}
}

func TestUnionArity(t *testing.T) {
	errs := evalErrors(t, `(structure "a") (union "u" "a")`)
	if !strings.Contains(errs[0].Message, "two members") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestMaxAngleForms(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   float64
	}{
		{"default", `(max-angle "cortex")`, plan.DefaultMaxAngle},
		{"positional", `(max-angle "cortex" 20)`, 20},
		{"positional float", `(max-angle "cortex" 12.5)`, 12.5},
		{"surface angle", `(max-angle "cortex" :min-surface-angle 70)`, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustEvaluate(t, `(structure "cortex") `+tt.source)
			if len(p.Criteria) != 1 {
				t.Fatalf("expected one criterion, got %d", len(p.Criteria))
			}
			want := plan.MaxAngle("cortex", tt.want)
			if p.Criteria[0] != want {
				t.Errorf("criterion = %+v, want %+v", p.Criteria[0], want)
			}
		})
	}
}

func TestMaxAngleBothForms(t *testing.T) {
	errs := evalErrors(t, `(structure "cortex") (max-angle "cortex" 20 :min-surface-angle 70)`)
	if !strings.Contains(errs[0].Message, "not both") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestMaxAngleOutOfRange(t *testing.T) {
	errs := evalErrors(t, `(structure "cortex") (max-angle "cortex" 120)`)
	if !strings.Contains(errs[0].Message, "criterion 0") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestMaxAngleNaN(t *testing.T) {
	errs := evalErrors(t, `(structure "cortex") (max-angle "cortex" (/ 0.0 0.0))`)
	if !strings.Contains(errs[0].Message, "NaN") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestMaxAngleNotNumber(t *testing.T) {
	errs := evalErrors(t, `(structure "cortex") (max-angle "cortex" "steep")`)
	if !strings.Contains(errs[0].Message, "expected number") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestMustIntersectArity(t *testing.T) {
	errs := evalErrors(t, `(structure "a") (must-intersect "a" "a")`)
	if !strings.Contains(errs[0].Message, "exactly one structure") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestReferencePlan(t *testing.T) {
	p := mustEvaluate(t, `
;; reference screening plan
(structure "target")
(structure "ventricles")
(structure "vessels")
(union "hazard" "ventricles" "vessels")
(structure "boundary" :volume "cortex")
(reference-plan "target" "hazard" "boundary")
`)
	want := plan.Reference("target", "hazard", "boundary")
	if diff := cmp.Diff(want, p.Criteria); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"target", "ventricles", "vessels", "cortex"}, p.Volumes()); diff != "" {
		t.Errorf("volumes mismatch (-want +got):\n%s", diff)
	}
}

func TestReferencePlanArity(t *testing.T) {
	errs := evalErrors(t, `(reference-plan "a" "b")`)
	if !strings.Contains(errs[0].Message, "got 2 arguments") {
		t.Errorf("unexpected message: %s", errs[0].Message)
	}
}

func TestCriteriaKeepCallOrder(t *testing.T) {
	p := mustEvaluate(t, `
(structure "a")
(structure "b")
(max-angle "b" 30)
(must-not-intersect "b")
(must-intersect "a")
`)
	want := []plan.CriterionSpec{
		plan.MaxAngle("b", 30),
		plan.MustNotIntersect("b"),
		plan.MustIntersect("a"),
	}
	if diff := cmp.Diff(want, p.Criteria); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
}

func TestUnusedStructureWarns(t *testing.T) {
	res, err := NewEngine().Check(`(structure "a") (structure "spare") (must-intersect "a")`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected eval errors: %v", res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Structure != "spare" {
		t.Errorf("expected one warning about spare, got %v", res.Warnings)
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	p := mustEvaluate(t, `
(structure "cortex")
(max-angle "cortex" (- 90 60))
`)
	if got := p.Criteria[0].MaxAngle; got != 30 {
		t.Errorf("max angle = %v, want 30", got)
	}
}
