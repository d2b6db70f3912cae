package trainstats

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/optimize"
)

func TestStatsRecordsRounds(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	var buf bytes.Buffer
	s := New(metrics, slog.New(slog.NewTextHandler(&buf, nil)))

	s.EStepStart()
	s.EStepEnd(constraints.Report{Reason: optimize.Converged, Iterations: 4, Evaluations: 9, KL: 0.25, Projected: 3, Skipped: 1})
	s.EStepStart()
	s.EStepEnd(constraints.Report{Reason: optimize.MaxIterations, Iterations: 200, KL: 0.5, Projected: 3})

	assert.Equal(t, 2, s.Rounds())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Projections.WithLabelValues("converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Projections.WithLabelValues("max-iterations")))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.KL))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ProjectedGroups))
	assert.Contains(t, buf.String(), "Projection round")
	assert.Contains(t, buf.String(), "round=2")
}

func TestStatsWithoutMetrics(t *testing.T) {
	var buf bytes.Buffer
	s := New(nil, slog.New(slog.NewTextHandler(&buf, nil)))
	s.EStepStart()
	s.EStepEnd(constraints.Report{})
	assert.Equal(t, 1, s.Rounds())
}

func TestMemoryUsageString(t *testing.T) {
	m := MemoryUsage{HeapInUse: 2_000_000, TotalAlloc: 1500}
	assert.Equal(t, "heap 2.0 MB allocated 1.5 kB", m.String())

	var tr MemoryTracker
	tr.Start()
	_ = make([]byte, 1<<20)
	assert.Greater(t, tr.Stop().HeapInUse, uint64(0))
}
