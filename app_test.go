package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/trajscreen/pkg/classify"
	"github.com/chazu/trajscreen/pkg/config"
	"github.com/chazu/trajscreen/pkg/kernel/sdfx"
	"github.com/chazu/trajscreen/pkg/kernel/voxel"
	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/chazu/trajscreen/pkg/screen"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exampleConfig reads examples/run.cfg with every output redirected into a
// temporary directory.
func exampleConfig(t *testing.T) *config.Config {
	t.Helper()
	con, err := config.Read(filepath.Join("examples", "run.cfg"))
	require.NoError(t, err)
	out := t.TempDir()
	con.Run.Records = filepath.Join(out, "accepted.csv")
	con.Run.Report = filepath.Join(out, "report.yaml")
	con.Run.Metrics = filepath.Join(out, "metrics.prom")
	return con
}

// TestE2EExample exercises the full pipeline: run file -> plan -> volumes ->
// meshes -> screening -> outputs. The example has one entry and three
// targets: T1 passes through the target block, T2 misses it and crosses the
// hazard and the cortex at a shallow angle, T3 stops short of the target.
func TestE2EExample(t *testing.T) {
	con := exampleConfig(t)
	app := NewApp()

	run, err := app.Screen(context.Background(), con, Overrides{})
	require.NoError(t, err)

	res := run.Result
	assert.Equal(t, 3, res.Total())
	assert.Equal(t, 3, res.Evaluated)
	assert.False(t, res.Cancelled)
	assert.Equal(t, []screen.Query{{Entry: 0, Target: 0}}, res.Accepted)
	assert.Equal(t, []int{2, 0, 0}, res.Rejections)
	assert.Equal(t, classify.StatusRejected, res.Verdicts[1].Status)
	assert.Equal(t, 0, res.Verdicts[1].Criterion)
	assert.Nil(t, res.Overlaps)

	assert.Equal(t, []string{
		"must_intersect(target)",
		"must_not_intersect(hazard)",
		"max_angle(cortex, 35)",
	}, []string{run.Summary.Criteria[0].Label, run.Summary.Criteria[1].Label, run.Summary.Criteria[2].Label})

	var table strings.Builder
	require.NoError(t, app.WriteOutputs(&table, con, run))
	assert.Contains(t, table.String(), "must_intersect(target)")

	records, err := os.ReadFile(con.Run.Records)
	require.NoError(t, err)
	assert.Equal(t,
		"entry_index,target_index,entry_label,target_label,status,criterion\n0,0,E1,T1,accepted,\n",
		string(records))

	yml, err := os.ReadFile(con.Run.Report)
	require.NoError(t, err)
	assert.Contains(t, string(yml), "accepted: 1")
	assert.Contains(t, string(yml), "rejected: 2")

	prom, err := os.ReadFile(con.Run.Metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `trajscreen_rejections_total{criterion="must_intersect(target)"} 2`)
	assert.Contains(t, string(prom), "trajscreen_queries_done 3")
}

func TestE2EExampleExhaustive(t *testing.T) {
	con := exampleConfig(t)

	run, err := NewApp().Screen(context.Background(), con, Overrides{Exhaustive: true, Workers: 2})
	require.NoError(t, err)

	res := run.Result
	assert.Equal(t, []int{2, 0, 0}, res.Rejections)
	want := map[uint64]int{0b111: 1, 0b001: 1}
	if diff := cmp.Diff(want, res.Overlaps); diff != "" {
		t.Errorf("overlaps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{2, 1, 1}, []int{
		run.Summary.Criteria[0].Violations,
		run.Summary.Criteria[1].Violations,
		run.Summary.Criteria[2].Violations,
	})
}

func TestE2EExampleBudget(t *testing.T) {
	con := exampleConfig(t)

	run, err := NewApp().Screen(context.Background(), con, Overrides{Budget: time.Nanosecond})
	require.NoError(t, err)
	assert.True(t, run.Result.Cancelled)
	assert.Positive(t, run.Summary.Pending)
}

func TestE2EExampleBothExtractors(t *testing.T) {
	con := exampleConfig(t)
	app := NewApp()

	p, err := app.LoadPlan(con.Run.Plan)
	require.NoError(t, err)

	for _, ex := range []string{config.ExtractorVoxel, config.ExtractorSDFX} {
		t.Run(ex, func(t *testing.T) {
			con.Run.Extractor = ex
			reg, err := app.BuildRegistry(context.Background(), con, p)
			require.NoError(t, err)
			assert.Equal(t, []string{"cortex", "hazard", "target", "ventricles", "vessels"}, reg.Names())
			for i := 0; i < reg.Len(); i++ {
				s := reg.At(i)
				assert.False(t, s.Mesh.IsEmpty(), "structure %s has an empty mesh", s.Name)
			}
			hz, err := reg.Lookup("hazard")
			require.NoError(t, err)
			assert.Equal(t, []string{"ventricles", "vessels"}, hz.Sources)
		})
	}
}

func TestLoadPlanExample(t *testing.T) {
	p, err := NewApp().LoadPlan(filepath.Join("examples", "plan.lisp"))
	require.NoError(t, err)

	want := plan.Reference("target", "hazard", "cortex")
	if diff := cmp.Diff(want, p.Criteria); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"target", "ventricles", "vessels", "cortex"}, p.Volumes())
}

func TestExtractorSelection(t *testing.T) {
	assert.IsType(t, &voxel.Extractor{}, Extractor(config.RunConfig{Extractor: config.ExtractorVoxel}))
	assert.IsType(t, &sdfx.Extractor{}, Extractor(config.RunConfig{Extractor: config.ExtractorSDFX, Cells: 24}))
}
