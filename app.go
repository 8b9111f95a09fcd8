package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/chazu/trajscreen/pkg/classify"
	"github.com/chazu/trajscreen/pkg/config"
	"github.com/chazu/trajscreen/pkg/engine"
	"github.com/chazu/trajscreen/pkg/fcsv"
	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/chazu/trajscreen/pkg/kernel/sdfx"
	"github.com/chazu/trajscreen/pkg/kernel/voxel"
	"github.com/chazu/trajscreen/pkg/logging"
	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/chazu/trajscreen/pkg/registry"
	"github.com/chazu/trajscreen/pkg/report"
	"github.com/chazu/trajscreen/pkg/screen"
	"github.com/chazu/trajscreen/pkg/tessellate"
	"github.com/prometheus/client_golang/prometheus"
)

// App wires the plan engine, mesh registry and screening pipeline together
// for the CLI commands.
type App struct {
	engine *engine.Engine
	log    *slog.Logger
}

// NewApp creates a new App with a fresh plan engine.
func NewApp() *App {
	return &App{
		engine: engine.NewEngine(),
		log:    logging.New("app"),
	}
}

// PlanError reports every problem found while evaluating a plan file.
type PlanError struct {
	Path   string
	Errors []engine.EvalError
}

func (e *PlanError) Error() string {
	errs := make([]error, len(e.Errors))
	for i, ee := range e.Errors {
		errs[i] = ee
	}
	return fmt.Sprintf("plan %s: %v", e.Path, errors.Join(errs...))
}

// CheckPlan evaluates plan source and reports its criteria, errors and
// warnings.
func (a *App) CheckPlan(source string) (engine.EvalResult, error) {
	return a.engine.Check(source)
}

// LoadPlan reads and evaluates the plan file at path. Evaluation errors are
// returned as a *PlanError; warnings are logged.
func (a *App) LoadPlan(path string) (*plan.Plan, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := a.engine.Check(string(src))
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	if len(res.Errors) > 0 {
		return nil, &PlanError{Path: path, Errors: res.Errors}
	}
	for _, w := range res.Warnings {
		a.log.Warn("plan warning", "plan", path, "warning", w.Error())
	}
	return res.Plan, nil
}

// Extractor returns the mesh generator selected by the run section.
func Extractor(run config.RunConfig) kernel.Extractor {
	if run.Extractor == config.ExtractorVoxel {
		return voxel.New()
	}
	return sdfx.New(run.Cells)
}

// BuildRegistry meshes every structure of p from the volumes listed in con.
func (a *App) BuildRegistry(ctx context.Context, con *config.Config, p *plan.Plan) (*registry.Registry, error) {
	start := time.Now()
	reg, err := tessellate.Build(ctx, p.Structures, con.Volumes(), Extractor(con.Run),
		tessellate.WithLogger(logging.New("tessellate")))
	if err != nil {
		return nil, err
	}
	a.log.Info("registry built", "structures", reg.Len(), "extractor", con.Run.Extractor, "elapsed", time.Since(start))
	return reg, nil
}

// Overrides are command-line settings that take precedence over the run
// file when set.
type Overrides struct {
	Workers    int
	Exhaustive bool
	Budget     time.Duration
}

func (o Overrides) apply(run *config.RunConfig) {
	if o.Workers > 0 {
		run.Workers = o.Workers
	}
	if o.Exhaustive {
		run.Exhaustive = true
	}
	if o.Budget > 0 {
		run.Budget = config.Duration(o.Budget)
	}
}

// Run is the outcome of a complete screening run.
type Run struct {
	Plan     *plan.Plan
	Entries  []fcsv.Fiducial
	Targets  []fcsv.Fiducial
	Result   *screen.Result
	Summary  report.Summary
	Registry *prometheus.Registry
}

// Screen loads the plan, fiducials and volumes named by con and screens
// every entry against every target. A cancelled ctx yields a partial run,
// not an error.
func (a *App) Screen(ctx context.Context, con *config.Config, o Overrides) (*Run, error) {
	o.apply(&con.Run)

	p, err := a.LoadPlan(con.Run.Plan)
	if err != nil {
		return nil, err
	}
	entries, err := fcsv.ReadFile(con.Run.Entries)
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	targets, err := fcsv.ReadFile(con.Run.Targets)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}

	reg, err := a.BuildRegistry(ctx, con, p)
	if err != nil {
		return nil, err
	}
	cls, err := classify.New(reg, p.Criteria)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(p.Criteria))
	for i, c := range p.Criteria {
		labels[i] = c.Label()
	}
	promReg := prometheus.NewRegistry()
	metrics := screen.NewMetrics(promReg, labels)

	pipe := screen.New(cls, screen.Options{
		Workers:    con.Run.Workers,
		ChunkSize:  con.Run.Chunk,
		Exhaustive: con.Run.Exhaustive,
		Budget:     time.Duration(con.Run.Budget),
		Progress:   metrics,
		Logger:     logging.New("screen"),
	})
	res, err := pipe.Run(ctx,
		con.Frame.ToVoxelAll(fcsv.Points(entries)),
		con.Frame.ToVoxelAll(fcsv.Points(targets)))
	if err != nil {
		return nil, err
	}

	return &Run{
		Plan:     p,
		Entries:  entries,
		Targets:  targets,
		Result:   res,
		Summary:  report.Summarize(res, p.Criteria),
		Registry: promReg,
	}, nil
}

// WriteOutputs writes the files configured in the run section and prints
// the summary table to w.
func (a *App) WriteOutputs(w io.Writer, con *config.Config, r *Run) error {
	if path := con.Run.Records; path != "" {
		if err := writeFile(path, func(f io.Writer) error {
			return report.WriteRecords(f, r.Result, r.Entries, r.Targets, r.Plan.Criteria, con.Run.AllRecords)
		}); err != nil {
			return fmt.Errorf("records: %w", err)
		}
		a.log.Info("records written", "path", path)
	}
	if path := con.Run.Report; path != "" {
		if err := writeFile(path, func(f io.Writer) error {
			return report.WriteYAML(f, r.Summary)
		}); err != nil {
			return fmt.Errorf("report: %w", err)
		}
		a.log.Info("report written", "path", path)
	}
	if path := con.Run.Metrics; path != "" {
		if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.log.Info("metrics written", "path", path)
	}
	return report.WriteTable(w, r.Summary)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
