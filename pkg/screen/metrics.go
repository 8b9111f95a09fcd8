package screen

import (
	"strconv"
	"sync"

	"github.com/chazu/trajscreen/pkg/classify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports screening progress and outcomes as Prometheus metrics. It
// implements Observer and Recorder, so it can be passed as
// Options.Progress directly.
type Metrics struct {
	labels []string

	mu   sync.Mutex
	done int // highest progress seen in the current run

	progress   prometheus.Gauge
	total      prometheus.Gauge
	verdicts   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	elapsed    prometheus.Gauge
	cancelled  prometheus.Gauge
}

// NewMetrics registers the screening metrics with reg. labels names each
// criterion position, in order; positions without a label are exported by
// index.
func NewMetrics(reg prometheus.Registerer, labels []string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		labels: labels,
		progress: f.NewGauge(prometheus.GaugeOpts{
			Name: "trajscreen_queries_done",
			Help: "Queries evaluated so far in the current run.",
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Name: "trajscreen_queries_total",
			Help: "Queries enumerated for the current run.",
		}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trajscreen_verdicts_total",
			Help: "Trajectory verdicts by status.",
		}, []string{"status"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trajscreen_rejections_total",
			Help: "Rejected trajectories by first violated criterion.",
		}, []string{"criterion"}),
		elapsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "trajscreen_run_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
		cancelled: f.NewGauge(prometheus.GaugeOpts{
			Name: "trajscreen_run_cancelled",
			Help: "1 if the last run stopped before evaluating every query.",
		}),
	}
}

// Observe implements Observer. Workers report out of order, so the
// progress gauge only moves forward within a run.
func (m *Metrics) Observe(done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.Set(float64(total))
	if done > m.done {
		m.done = done
		m.progress.Set(float64(done))
	}
}

// Record implements Recorder.
func (m *Metrics) Record(res *Result) {
	m.mu.Lock()
	m.done = 0
	m.mu.Unlock()
	m.total.Set(float64(res.Total()))
	m.progress.Set(float64(res.Evaluated))
	m.verdicts.WithLabelValues(classify.StatusAccepted.String()).Add(float64(len(res.Accepted)))
	m.verdicts.WithLabelValues(classify.StatusFailed.String()).Add(float64(res.Failures))
	m.verdicts.WithLabelValues(classify.StatusPending.String()).Add(float64(res.Total() - res.Evaluated))
	rejected := 0
	for i, n := range res.Rejections {
		m.rejections.WithLabelValues(m.label(i)).Add(float64(n))
		rejected += n
	}
	m.verdicts.WithLabelValues(classify.StatusRejected.String()).Add(float64(rejected))
	m.elapsed.Set(res.Elapsed.Seconds())
	if res.Cancelled {
		m.cancelled.Set(1)
	} else {
		m.cancelled.Set(0)
	}
}

func (m *Metrics) label(i int) string {
	if i < len(m.labels) && m.labels[i] != "" {
		return m.labels[i]
	}
	return strconv.Itoa(i)
}
