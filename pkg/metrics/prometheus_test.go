package metrics

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// promauto registers against the default registry, so every subtest here
// shares a single Metrics instance: a second New() call would panic with
// an AlreadyRegisteredError.
func TestMetrics(t *testing.T) {
	m := New(slog.Default())

	t.Run("SetGraphSize", func(t *testing.T) {
		m.SetGraphSize(100, 7)
		if got := testutil.ToFloat64(m.GraphNodesTotal); got != 100 {
			t.Errorf("GraphNodesTotal = %v, want 100", got)
		}
		if got := testutil.ToFloat64(m.GraphDeletedTotal); got != 7 {
			t.Errorf("GraphDeletedTotal = %v, want 7", got)
		}
	})

	t.Run("SetClusterStats", func(t *testing.T) {
		m.SetClusterStats(16, 62.5)
		if got := testutil.ToFloat64(m.ClustersTotal); got != 16 {
			t.Errorf("ClustersTotal = %v, want 16", got)
		}
		if got := testutil.ToFloat64(m.ClusterSizeAvg); got != 62.5 {
			t.Errorf("ClusterSizeAvg = %v, want 62.5", got)
		}
	})

	t.Run("SetWorkerUtilization", func(t *testing.T) {
		m.SetWorkerUtilization("outer", 0.75)
		got := testutil.ToFloat64(m.WorkerPoolUtilization.WithLabelValues("outer"))
		if got != 0.75 {
			t.Errorf("WorkerPoolUtilization(outer) = %v, want 0.75", got)
		}
	})

	t.Run("ObserveOperationSuccess", func(t *testing.T) {
		m.ObserveOperation("search", "vamana_dynamic", 5*time.Millisecond, nil)
		got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("search", "ok"))
		if got < 1 {
			t.Errorf("OperationsTotal(search, ok) = %v, want >= 1", got)
		}
	})

	t.Run("ObserveOperationError", func(t *testing.T) {
		m.ObserveOperation("add", "ivf_dynamic", time.Millisecond, errors.New("boom"))
		gotTotal := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add", "error"))
		if gotTotal < 1 {
			t.Errorf("OperationsTotal(add, error) = %v, want >= 1", gotTotal)
		}
		gotErrs := testutil.ToFloat64(m.OperationErrors.WithLabelValues("add", "error"))
		if gotErrs < 1 {
			t.Errorf("OperationErrors(add, error) = %v, want >= 1", gotErrs)
		}
	})
}
