// Package screen runs a classifier over every entry×target combination.
//
// A Pipeline moves through Idle → Enumerating → Dispatching → Collecting →
// Done. Queries are enumerated entry-major, split into chunks and evaluated
// by a bounded pool of workers that share the classifier and its meshes
// read-only. Each query's verdict is written to its own slot, so the result
// is independent of worker count and scheduling.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/chazu/trajscreen/pkg/classify"
	"github.com/chazu/trajscreen/pkg/kernel"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of queries a worker takes at a time.
const DefaultChunkSize = 256

// ErrBusy is returned when Run is called while another Run is in progress.
var ErrBusy = errors.New("screen: pipeline is already running")

// State is the lifecycle phase of a Pipeline.
type State int32

const (
	StateIdle State = iota
	StateEnumerating
	StateDispatching
	StateCollecting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateDispatching:
		return "dispatching"
	case StateCollecting:
		return "collecting"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Evaluator classifies one trajectory. *classify.Classifier implements it.
type Evaluator interface {
	Classify(entry, target kernel.Point3) classify.Verdict
	Violations(entry, target kernel.Point3) classify.Verdict
	Len() int
}

// Observer receives progress updates. Observe is called from worker
// goroutines after each chunk and must be safe for concurrent use. Calls
// from different workers are not ordered, so done may arrive decreasing.
type Observer interface {
	Observe(done, total int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(done, total int)

func (f ObserverFunc) Observe(done, total int) { f(done, total) }

// Recorder is an optional extension of Observer that is handed the final
// result once the pipeline is done.
type Recorder interface {
	Record(res *Result)
}

// Query identifies one entry→target pair by index.
type Query struct {
	Entry  uint32
	Target uint32
}

// Enumerate returns all n×m queries in entry-major order: query q pairs
// entry q/m with target q%m.
func Enumerate(n, m int) []Query {
	if n <= 0 || m <= 0 {
		return nil
	}
	qs := make([]Query, 0, n*m)
	for e := 0; e < n; e++ {
		for t := 0; t < m; t++ {
			qs = append(qs, Query{Entry: uint32(e), Target: uint32(t)})
		}
	}
	return qs
}

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	Workers    int           // default runtime.GOMAXPROCS(0)
	ChunkSize  int           // default DefaultChunkSize
	Exhaustive bool          // evaluate every criterion and record violation sets
	Budget     time.Duration // overall wall-clock limit, 0 for none
	Progress   Observer
	Logger     *slog.Logger
}

// Result is the outcome of one Run. Verdicts is indexed like Queries.
// Accepted lists accepted queries in query order. Rejections counts
// rejected queries by first violated criterion.
type Result struct {
	Queries    []Query
	Verdicts   []classify.Verdict
	Accepted   []Query
	Rejections []int
	Failures   int
	Evaluated  int
	Cancelled  bool
	Elapsed    time.Duration

	// Overlaps counts rejected queries by their full violation set. Only
	// filled in exhaustive mode.
	Overlaps map[uint64]int
}

// Total returns the number of enumerated queries.
func (r *Result) Total() int {
	return len(r.Queries)
}

// Pipeline screens trajectories with a shared Evaluator.
type Pipeline struct {
	eval  Evaluator
	opts  Options
	log   *slog.Logger
	state atomic.Int32
	done  atomic.Int64
}

// New returns an idle Pipeline.
func New(eval Evaluator, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{eval: eval, opts: opts, log: log}
}

// State returns the current lifecycle phase.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.log.Debug("pipeline state", "state", s)
}

// Run screens every entry against every target. Cancelling ctx, or running
// past the configured budget, stops dispatch and returns the partial result
// with Cancelled set; queries never evaluated keep StatusPending. A panic
// while evaluating a query marks only that query as failed. Run may be
// called again once the previous call has returned.
func (p *Pipeline) Run(ctx context.Context, entries, targets []kernel.Point3) (*Result, error) {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateEnumerating)) &&
		!p.state.CompareAndSwap(int32(StateDone), int32(StateEnumerating)) {
		return nil, ErrBusy
	}
	start := time.Now()
	p.log.Debug("pipeline state", "state", StateEnumerating)

	if uint64(len(entries)) > math.MaxUint32 || uint64(len(targets)) > math.MaxUint32 {
		p.setState(StateIdle)
		return nil, fmt.Errorf("screen: %d entries × %d targets exceeds index range", len(entries), len(targets))
	}

	queries := Enumerate(len(entries), len(targets))
	res := &Result{
		Queries:    queries,
		Verdicts:   make([]classify.Verdict, len(queries)),
		Rejections: make([]int, p.eval.Len()),
	}
	if p.opts.Exhaustive {
		res.Overlaps = make(map[uint64]int)
	}
	if len(queries) == 0 {
		res.Elapsed = time.Since(start)
		p.setState(StateDone)
		p.log.Info("nothing to screen", "entries", len(entries), "targets", len(targets))
		return res, nil
	}

	runCtx := ctx
	if p.opts.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.opts.Budget)
		defer cancel()
	}

	p.setState(StateDispatching)
	p.done.Store(0)
	chunks := (len(queries) + p.opts.ChunkSize - 1) / p.opts.ChunkSize
	p.log.Info("screening started",
		"entries", len(entries),
		"targets", len(targets),
		"queries", len(queries),
		"criteria", p.eval.Len(),
		"workers", p.opts.Workers,
		"chunks", chunks,
		"exhaustive", p.opts.Exhaustive,
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.opts.Workers)
	for lo := 0; lo < len(queries); lo += p.opts.ChunkSize {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+p.opts.ChunkSize, len(queries))
		g.Go(func() error {
			p.runChunk(gctx, res, entries, targets, lo, hi)
			return nil
		})
	}

	p.setState(StateCollecting)
	_ = g.Wait() // workers never return errors; failures live in the verdicts

	p.tally(res)
	res.Cancelled = res.Evaluated < len(queries) && runCtx.Err() != nil
	res.Elapsed = time.Since(start)
	p.setState(StateDone)

	if res.Cancelled {
		p.log.Warn("screening cancelled",
			"evaluated", res.Evaluated,
			"queries", len(queries),
			"cause", context.Cause(runCtx),
		)
	}
	p.log.Info("screening finished",
		"accepted", len(res.Accepted),
		"failures", res.Failures,
		"evaluated", res.Evaluated,
		"elapsed", res.Elapsed,
	)
	if rec, ok := p.opts.Progress.(Recorder); ok {
		rec.Record(res)
	}
	return res, nil
}

// runChunk evaluates queries[lo:hi], checking ctx between queries.
func (p *Pipeline) runChunk(ctx context.Context, res *Result, entries, targets []kernel.Point3, lo, hi int) {
	n := 0
	for i := lo; i < hi; i++ {
		if ctx.Err() != nil {
			break
		}
		q := res.Queries[i]
		res.Verdicts[i] = p.evaluate(entries[q.Entry], targets[q.Target], i)
		n++
	}
	done := p.done.Add(int64(n))
	if p.opts.Progress != nil {
		p.opts.Progress.Observe(int(done), len(res.Queries))
	}
}

// evaluate classifies one trajectory, turning a panic into a failed verdict.
func (p *Pipeline) evaluate(entry, target kernel.Point3, index int) (v classify.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("query evaluation panicked", "query", index, "panic", r)
			v = classify.Fail()
		}
	}()
	if p.opts.Exhaustive {
		return p.eval.Violations(entry, target)
	}
	return p.eval.Classify(entry, target)
}

// tally fills the aggregate fields of res from its verdicts.
func (p *Pipeline) tally(res *Result) {
	for i, v := range res.Verdicts {
		switch v.Status {
		case classify.StatusAccepted:
			res.Accepted = append(res.Accepted, res.Queries[i])
		case classify.StatusRejected:
			if v.Criterion >= 0 && v.Criterion < len(res.Rejections) {
				res.Rejections[v.Criterion]++
			}
			if res.Overlaps != nil {
				res.Overlaps[v.Violations]++
			}
		case classify.StatusFailed:
			res.Failures++
		}
		if v.Status != classify.StatusPending {
			res.Evaluated++
		}
	}
}
