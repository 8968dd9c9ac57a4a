package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/chunkgen/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures lifecycle counters and region gauges follow events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Region: "world", Total: 4, Pass: 1},
		{RunID: runID, TS: now, Stage: progress.StageRunProgress, Region: "world", Completed: 1, Failed: 1, Total: 4, Pass: 1},
		{RunID: runID, TS: now, Stage: progress.StageRunRetry, Region: "world", Completed: 3, Failed: 1, Total: 4, Pass: 1},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsRetried), 1e-9)
	require.InDelta(t, 75.0, testutil.ToFloat64(sink.regionPercent.WithLabelValues("world")), 1e-9)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Region: "world", Completed: 4, Total: 4, Pass: 2},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Region: "world", Completed: 4, Total: 4, Pass: 2},
	}))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("done")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 4.0, testutil.ToFloat64(sink.regionCompleted.WithLabelValues("world")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.regionFailed.WithLabelValues("world")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.regionPercent, "chunkgen_region_progress_percent"))
}

// TestPrometheusSinkPartitionsResults labels stopped and failed runs separately.
func TestPrometheusSinkPartitionsResults(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	stopped := progress.UUIDToBytes(uuid.New())
	failed := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: stopped, TS: now, Stage: progress.StageRunStart, Total: 9},
		{RunID: failed, TS: now, Stage: progress.StageRunStart, Region: "nether", Total: 9},
		{RunID: stopped, TS: now, Stage: progress.StageRunStopped, Completed: 2, Total: 9},
		{RunID: failed, TS: now, Stage: progress.StageRunError, Region: "nether", Total: 9, Note: "boom"},
	}))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("stopped")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("error")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.regionCompleted.WithLabelValues("unknown")), 1e-9)
}

func TestNewPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
