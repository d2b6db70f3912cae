// Package trainstats instruments EM training: per-round timing, memory
// use and prometheus metrics around each posterior projection.
package trainstats

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/happyhackingspace/sparsepr/constraints"
)

// Metrics are the projection metrics exported by a training run.
type Metrics struct {
	Projections     *prometheus.CounterVec
	SolverIters     prometheus.Histogram
	Evaluations     prometheus.Histogram
	Duration        prometheus.Histogram
	KL              prometheus.Gauge
	ProjectedGroups prometheus.Gauge
	HeapBytes       prometheus.Gauge
}

// NewMetrics registers the projection metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Projections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sparsepr_projections_total",
			Help: "Posterior projections by solver outcome",
		}, []string{"reason"}),
		SolverIters: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sparsepr_projection_iterations",
			Help:    "Projected gradient iterations per projection",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
		}),
		Evaluations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sparsepr_projection_evaluations",
			Help:    "Dual objective evaluations per projection",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sparsepr_projection_duration_seconds",
			Help:    "Wall time of a projection",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		KL: f.NewGauge(prometheus.GaugeOpts{
			Name: "sparsepr_projection_kl",
			Help: "KL divergence between projected and model posteriors in the last round",
		}),
		ProjectedGroups: f.NewGauge(prometheus.GaugeOpts{
			Name: "sparsepr_projected_groups",
			Help: "Constraint groups with non-zero strength",
		}),
		HeapBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "sparsepr_heap_bytes",
			Help: "Heap in use at the end of the last projection",
		}),
	}
}

// Stats implements constraints.TrainStats. A nil Metrics only logs.
type Stats struct {
	Metrics *Metrics
	Logger  *slog.Logger

	round int
	start time.Time
	mem   MemoryTracker
}

var _ constraints.TrainStats = (*Stats)(nil)

// New creates a Stats that logs to logger (slog.Default when nil).
func New(metrics *Metrics, logger *slog.Logger) *Stats {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stats{Metrics: metrics, Logger: logger}
}

// EStepStart marks the beginning of a projection round.
func (s *Stats) EStepStart() {
	s.start = time.Now()
	s.mem.Start()
}

// EStepEnd logs the round's outcome and updates the metrics.
func (s *Stats) EStepEnd(r constraints.Report) {
	s.round++
	elapsed := time.Since(s.start)
	mem := s.mem.Stop()
	s.Logger.Info("Projection round",
		"round", s.round,
		"converged", r.Converged(),
		"reason", r.Reason.String(),
		"iterations", r.Iterations,
		"evaluations", r.Evaluations,
		"kl", r.KL,
		"projected", r.Projected,
		"skipped", r.Skipped,
		"elapsed", elapsed,
		"memory", mem)

	if s.Metrics == nil {
		return
	}
	s.Metrics.Projections.WithLabelValues(r.Reason.String()).Inc()
	s.Metrics.SolverIters.Observe(float64(r.Iterations))
	s.Metrics.Evaluations.Observe(float64(r.Evaluations))
	s.Metrics.Duration.Observe(elapsed.Seconds())
	s.Metrics.KL.Set(r.KL)
	s.Metrics.ProjectedGroups.Set(float64(r.Projected))
	s.Metrics.HeapBytes.Set(float64(mem.HeapInUse))
}

// Rounds returns the number of completed projection rounds.
func (s *Stats) Rounds() int { return s.round }

// MemoryUsage is a heap snapshot.
type MemoryUsage struct {
	HeapInUse  uint64
	TotalAlloc uint64
}

func (m MemoryUsage) String() string {
	return "heap " + humanize.Bytes(m.HeapInUse) + " allocated " + humanize.Bytes(m.TotalAlloc)
}

// MemoryTracker measures heap use and allocation between Start and Stop.
type MemoryTracker struct {
	startAlloc uint64
}

// Start records the allocation counter.
func (t *MemoryTracker) Start() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	t.startAlloc = ms.TotalAlloc
}

// Stop returns the current heap in use and the bytes allocated since Start.
func (t *MemoryTracker) Stop() MemoryUsage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemoryUsage{HeapInUse: ms.HeapInuse, TotalAlloc: ms.TotalAlloc - t.startAlloc}
}
