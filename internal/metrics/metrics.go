// Package metrics mirrors storage.Stats into Prometheus gauges, labeled by
// collection name. Purely additive observability: nothing in pkg/collection
// depends on this package, and pkg/collection works identically with or
// without a Collector attached.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/minileaf/minileaf/pkg/storage"
)

var (
	documentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minileaf_documents",
			Help: "Number of live documents in a collection",
		},
		[]string{"collection"},
	)

	storageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minileaf_storage_bytes",
			Help: "On-disk bytes used by a collection's primary storage representation",
		},
		[]string{"collection"},
	)

	walBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minileaf_wal_bytes",
			Help: "On-disk bytes currently held in a collection's write-ahead log",
		},
		[]string{"collection"},
	)

	lastSnapshotUnix = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minileaf_last_snapshot_unix",
			Help: "Unix timestamp of a collection's last successful snapshot, 0 if none",
		},
		[]string{"collection"},
	)
)

func init() {
	prometheus.MustRegister(documentsTotal)
	prometheus.MustRegister(storageBytes)
	prometheus.MustRegister(walBytes)
	prometheus.MustRegister(lastSnapshotUnix)
}

// StatsSource is anything that can report point-in-time storage.Stats; every
// *collection.Collection[T] satisfies it via its Stats method.
type StatsSource interface {
	Stats(ctx context.Context) (storage.Stats, error)
}

// Collector periodically mirrors one named collection's Stats into the
// package's gauges. Callers own the cadence (e.g. alongside their own
// snapshot/health-check loop); Collector itself starts no goroutine.
type Collector struct {
	name   string
	source StatsSource
}

// NewCollector returns a Collector that labels every gauge update with name.
func NewCollector(name string, source StatsSource) *Collector {
	return &Collector{name: name, source: source}
}

// Observe fetches Stats from the underlying collection and updates the
// labeled gauges. Safe to call concurrently and on any cadence; a failed
// fetch leaves the previous values in place.
func (c *Collector) Observe(ctx context.Context) error {
	st, err := c.source.Stats(ctx)
	if err != nil {
		return err
	}

	documentsTotal.WithLabelValues(c.name).Set(float64(st.DocumentCount))
	storageBytes.WithLabelValues(c.name).Set(float64(st.StorageBytes))
	walBytes.WithLabelValues(c.name).Set(float64(st.WALBytes))

	snapshotUnix := float64(0)
	if st.LastSnapshotExists {
		snapshotUnix = float64(st.LastSnapshotUnix)
	}

	lastSnapshotUnix.WithLabelValues(c.name).Set(snapshotUnix)

	return nil
}

// Forget removes name's label set from every gauge, e.g. after a collection
// is permanently dropped.
func (c *Collector) Forget() {
	documentsTotal.DeleteLabelValues(c.name)
	storageBytes.DeleteLabelValues(c.name)
	walBytes.DeleteLabelValues(c.name)
	lastSnapshotUnix.DeleteLabelValues(c.name)
}
