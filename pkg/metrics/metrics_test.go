package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"teledrive/pkg/models"
)

func TestMetrics_Counters(t *testing.T) {
	req := require.New(t)
	m := New(prometheus.NewRegistry())

	m.ObserveItem(models.ItemResult{Outcome: models.OutcomeSucceeded})
	m.ObserveItem(models.ItemResult{Outcome: models.OutcomeSkipped, Reason: models.ReasonOversized})
	m.AddBytes("upload", 100)
	m.IncRetry("download", models.KindTransient)
	m.RunStarted()
	req.Equal(1.0, testutil.ToFloat64(m.runActive))
	m.RunFinished("completed", time.Second)

	req.Equal(1.0, testutil.ToFloat64(m.items.WithLabelValues("succeeded", "")))
	req.Equal(1.0, testutil.ToFloat64(m.items.WithLabelValues("skipped", "oversized")))
	req.Equal(100.0, testutil.ToFloat64(m.bytes.WithLabelValues("upload")))
	req.Equal(0.0, testutil.ToFloat64(m.runActive))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveItem(models.ItemResult{})
	m.AddBytes("upload", 1)
	m.RunStarted()
	m.RunFinished("failed", 0)
	m.SetTracked(3)
}
