package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/storage"
)

type fakeSource struct {
	stats storage.Stats
	err   error
}

func (f fakeSource) Stats(context.Context) (storage.Stats, error) {
	return f.stats, f.err
}

func TestCollector_ObserveSetsLabeledGauges(t *testing.T) {
	c := NewCollector("metrics-observe", fakeSource{stats: storage.Stats{
		DocumentCount:      42,
		StorageBytes:       1024,
		WALBytes:           128,
		LastSnapshotUnix:   1700000000,
		LastSnapshotExists: true,
	}})
	t.Cleanup(c.Forget)

	require.NoError(t, c.Observe(context.Background()))

	require.InDelta(t, 42, testutil.ToFloat64(documentsTotal.WithLabelValues("metrics-observe")), 0)
	require.InDelta(t, 1024, testutil.ToFloat64(storageBytes.WithLabelValues("metrics-observe")), 0)
	require.InDelta(t, 128, testutil.ToFloat64(walBytes.WithLabelValues("metrics-observe")), 0)
	require.InDelta(t, 1700000000, testutil.ToFloat64(lastSnapshotUnix.WithLabelValues("metrics-observe")), 0)
}

func TestCollector_ObserveWithNoSnapshotReportsZero(t *testing.T) {
	c := NewCollector("metrics-no-snapshot", fakeSource{stats: storage.Stats{LastSnapshotExists: false, LastSnapshotUnix: 999}})
	t.Cleanup(c.Forget)

	require.NoError(t, c.Observe(context.Background()))
	require.InDelta(t, 0, testutil.ToFloat64(lastSnapshotUnix.WithLabelValues("metrics-no-snapshot")), 0)
}

func TestCollector_ObservePropagatesSourceError(t *testing.T) {
	c := NewCollector("metrics-error", fakeSource{err: context.Canceled})
	t.Cleanup(c.Forget)

	require.Error(t, c.Observe(context.Background()))
}
