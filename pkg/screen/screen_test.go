package screen

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chazu/trajscreen/pkg/classify"
	"github.com/chazu/trajscreen/pkg/kernel"
	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(x, y, z float64) kernel.Point3 { return kernel.Point3{X: x, Y: y, Z: z} }

// referenceClassifier binds the reference criteria to box meshes: a target
// box around (3,3,3), a hazard box near (-3,3,3) and a boundary slab at z=6.
func referenceClassifier(t testing.TB) *classify.Classifier {
	t.Helper()
	c, err := classify.FromCriteria(
		classify.MustIntersect{Structure: "target", Mesh: kernel.BoxMesh(pt(2.2, 2.5, 2.8), pt(3.6, 3.9, 3.3))},
		classify.MustNotIntersect{Structure: "hazard", Mesh: kernel.BoxMesh(pt(-1, 2, 2), pt(0.5, 4, 4))},
		classify.MaxAngle{Structure: "boundary", Mesh: kernel.BoxMesh(pt(-20, -20, 6), pt(20, 20, 7)), Max: plan.DefaultMaxAngle},
	)
	require.NoError(t, err)
	return c
}

func randomPoints(r *rand.Rand, n int, lo, hi float64) []kernel.Point3 {
	pts := make([]kernel.Point3, n)
	for i := range pts {
		pts[i] = pt(lo+r.Float64()*(hi-lo), lo+r.Float64()*(hi-lo), lo+r.Float64()*(hi-lo))
	}
	return pts
}

func TestEnumerate(t *testing.T) {
	got := Enumerate(2, 3)
	want := []Query{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Enumerate mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Enumerate(0, 5))
	assert.Empty(t, Enumerate(5, 0))
}

func TestRunSingleEntryScenario(t *testing.T) {
	p := New(referenceClassifier(t), Options{Workers: 2})
	assert.Equal(t, StateIdle, p.State())

	res, err := p.Run(context.Background(), []kernel.Point3{pt(0, 0, 0)}, []kernel.Point3{pt(5, 5, 5), pt(-5, -5, -5)})
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())

	assert.Equal(t, []Query{{Entry: 0, Target: 0}}, res.Accepted)
	assert.Equal(t, []int{1, 0, 0}, res.Rejections)
	assert.Equal(t, 2, res.Evaluated)
	assert.False(t, res.Cancelled)
	assert.Nil(t, res.Overlaps)
}

func TestRunEmptyInputs(t *testing.T) {
	tests := []struct {
		name             string
		entries, targets []kernel.Point3
	}{
		{"no entries", nil, []kernel.Point3{pt(1, 1, 1)}},
		{"no targets", []kernel.Point3{pt(1, 1, 1)}, nil},
		{"neither", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(referenceClassifier(t), Options{})
			res, err := p.Run(context.Background(), tt.entries, tt.targets)
			require.NoError(t, err)
			assert.Empty(t, res.Accepted)
			assert.Equal(t, 0, res.Total())
			assert.Equal(t, StateDone, p.State())
		})
	}
}

// Screening the same inputs twice, with different pool shapes, gives the
// same verdicts and aggregates.
func TestRunIsDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	entries := randomPoints(r, 40, -6, 0)
	targets := randomPoints(r, 30, 2, 5)
	c := referenceClassifier(t)

	shapes := []Options{
		{Workers: 1, ChunkSize: 1000},
		{Workers: 8, ChunkSize: 7},
		{Workers: 3, ChunkSize: 1},
	}
	var first *Result
	for _, opts := range shapes {
		res, err := New(c, opts).Run(context.Background(), entries, targets)
		require.NoError(t, err)
		if first == nil {
			first = res
			require.NotEmpty(t, res.Accepted, "fixture should accept some trajectories")
			require.Less(t, len(res.Accepted), res.Total(), "fixture should reject some trajectories")
			continue
		}
		if diff := cmp.Diff(first, res, cmpopts.IgnoreFields(Result{}, "Elapsed")); diff != "" {
			t.Errorf("run with %+v differs (-first +this):\n%s", opts, diff)
		}
	}
}

func TestRunMatchesDirectClassification(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	entries := randomPoints(r, 10, -6, 0)
	targets := randomPoints(r, 10, 2, 5)
	c := referenceClassifier(t)

	res, err := New(c, Options{Workers: 4, ChunkSize: 3}).Run(context.Background(), entries, targets)
	require.NoError(t, err)
	for i, q := range res.Queries {
		assert.Equal(t, uint32(i/len(targets)), q.Entry)
		assert.Equal(t, uint32(i%len(targets)), q.Target)
		assert.Equal(t, c.Classify(entries[q.Entry], targets[q.Target]), res.Verdicts[i], "query %d", i)
	}
}

func TestRunExhaustiveOverlaps(t *testing.T) {
	c := referenceClassifier(t)
	entries := []kernel.Point3{pt(-3, 3, 3)}
	targets := []kernel.Point3{
		pt(5, 3.2, 3),      // crosses the hazard, then the target
		pt(-3, -9, 3),      // misses everything
		pt(-3, 3, 9),       // misses the target, meets the slab head on
		pt(-3, 3.2, 3.1),   // stops short of everything
		pt(12.2, 3.4, 6.5), // crosses the hazard, passes over the target, meets the slab obliquely
	}

	short, err := New(c, Options{Workers: 2}).Run(context.Background(), entries, targets)
	require.NoError(t, err)
	full, err := New(c, Options{Workers: 2, Exhaustive: true}).Run(context.Background(), entries, targets)
	require.NoError(t, err)

	// Both modes agree on status and first violated criterion.
	for i := range short.Verdicts {
		assert.Equal(t, short.Verdicts[i].Status, full.Verdicts[i].Status, "query %d", i)
		assert.Equal(t, short.Verdicts[i].Criterion, full.Verdicts[i].Criterion, "query %d", i)
	}
	assert.Equal(t, short.Rejections, full.Rejections)

	assert.Equal(t, []int{4, 1, 0}, full.Rejections)
	assert.Equal(t, map[uint64]int{0b001: 3, 0b010: 1, 0b111: 1}, full.Overlaps)
	assert.Equal(t, uint64(0b111), full.Verdicts[4].Violations)
	assert.Equal(t, uint64(0b001), short.Verdicts[4].Violations)
}

// cancellingEvaluator cancels its context after limit evaluations.
type cancellingEvaluator struct {
	limit  int64
	calls  atomic.Int64
	cancel context.CancelFunc
}

func (e *cancellingEvaluator) Classify(entry, target kernel.Point3) classify.Verdict {
	if e.calls.Add(1) == e.limit {
		e.cancel()
	}
	return classify.Accept()
}

func (e *cancellingEvaluator) Violations(entry, target kernel.Point3) classify.Verdict {
	return e.Classify(entry, target)
}

func (e *cancellingEvaluator) Len() int { return 0 }

func TestRunCancelledReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eval := &cancellingEvaluator{limit: 25, cancel: cancel}

	r := rand.New(rand.NewSource(1))
	res, err := New(eval, Options{Workers: 1, ChunkSize: 4}).Run(ctx, randomPoints(r, 20, 0, 1), randomPoints(r, 20, 0, 1))
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 25, res.Evaluated)
	assert.Len(t, res.Accepted, 25)
	for i, v := range res.Verdicts {
		if i < 25 {
			assert.Equal(t, classify.StatusAccepted, v.Status, "query %d", i)
		} else {
			assert.Equal(t, classify.StatusPending, v.Status, "query %d", i)
		}
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(referenceClassifier(t), Options{}).Run(ctx, []kernel.Point3{pt(0, 0, 0)}, []kernel.Point3{pt(5, 5, 5)})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Zero(t, res.Evaluated)
}

// slowEvaluator sleeps on every query.
type slowEvaluator struct{ d time.Duration }

func (e slowEvaluator) Classify(entry, target kernel.Point3) classify.Verdict {
	time.Sleep(e.d)
	return classify.Accept()
}

func (e slowEvaluator) Violations(entry, target kernel.Point3) classify.Verdict {
	return e.Classify(entry, target)
}

func (e slowEvaluator) Len() int { return 0 }

func TestRunBudget(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	p := New(slowEvaluator{d: 2 * time.Millisecond}, Options{Workers: 2, ChunkSize: 2, Budget: 30 * time.Millisecond})
	res, err := p.Run(context.Background(), randomPoints(r, 50, 0, 1), randomPoints(r, 50, 0, 1))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Greater(t, res.Evaluated, 0)
	assert.Less(t, res.Evaluated, res.Total())
}

// panickyEvaluator panics for one entry index.
type panickyEvaluator struct {
	bad kernel.Point3
}

func (e panickyEvaluator) Classify(entry, target kernel.Point3) classify.Verdict {
	if entry == e.bad {
		panic("degenerate input")
	}
	return classify.Reject(0)
}

func (e panickyEvaluator) Violations(entry, target kernel.Point3) classify.Verdict {
	return e.Classify(entry, target)
}

func (e panickyEvaluator) Len() int { return 1 }

func TestRunRecoversPanics(t *testing.T) {
	entries := []kernel.Point3{pt(0, 0, 0), pt(1, 1, 1), pt(2, 2, 2)}
	targets := []kernel.Point3{pt(9, 9, 9), pt(8, 8, 8)}
	res, err := New(panickyEvaluator{bad: pt(1, 1, 1)}, Options{Workers: 2, ChunkSize: 1}).Run(context.Background(), entries, targets)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failures)
	assert.Equal(t, []int{4}, res.Rejections)
	assert.Equal(t, 6, res.Evaluated)
	assert.False(t, res.Cancelled)
	assert.Equal(t, classify.StatusFailed, res.Verdicts[2].Status)
	assert.Equal(t, classify.StatusFailed, res.Verdicts[3].Status)
	assert.Equal(t, -1, res.Verdicts[2].Criterion)
}

func TestRunReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var last, calls int
	obs := ObserverFunc(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if done > last {
			last = done
		}
		assert.Equal(t, 12, total)
	})
	r := rand.New(rand.NewSource(4))
	_, err := New(referenceClassifier(t), Options{Workers: 3, ChunkSize: 5, Progress: obs}).
		Run(context.Background(), randomPoints(r, 3, 0, 1), randomPoints(r, 4, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 12, last)
}

// gateEvaluator blocks until its gate is closed.
type gateEvaluator struct {
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (e *gateEvaluator) Classify(entry, target kernel.Point3) classify.Verdict {
	e.once.Do(func() { close(e.started) })
	<-e.gate
	return classify.Accept()
}

func (e *gateEvaluator) Violations(entry, target kernel.Point3) classify.Verdict {
	return e.Classify(entry, target)
}

func (e *gateEvaluator) Len() int { return 0 }

func TestRunRejectsConcurrentRun(t *testing.T) {
	eval := &gateEvaluator{gate: make(chan struct{}), started: make(chan struct{})}
	p := New(eval, Options{Workers: 1})

	errc := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), []kernel.Point3{pt(0, 0, 0)}, []kernel.Point3{pt(1, 1, 1)})
		errc <- err
	}()
	<-eval.started
	assert.Contains(t, []State{StateDispatching, StateCollecting}, p.State())

	_, err := p.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(eval.gate)
	require.NoError(t, <-errc)
	assert.Equal(t, StateDone, p.State())

	// A finished pipeline can run again.
	res, err := p.Run(context.Background(), []kernel.Point3{pt(0, 0, 0)}, []kernel.Point3{pt(1, 1, 1)})
	require.NoError(t, err)
	assert.Len(t, res.Accepted, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "dispatching", StateDispatching.String())
	assert.Equal(t, "State(42)", State(42).String())
}
