package monitor

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/devrig/snapkeep/snapshot"
)

// registry holds the gauges exported for the node_exporter textfile collector.
type registry struct {
	reg           *prometheus.Registry
	usedPercent   *prometheus.GaugeVec
	freeBytes     *prometheus.GaugeVec
	totalBytes    *prometheus.GaugeVec
	snapshots     *prometheus.GaugeVec
	protected     *prometheus.GaugeVec
	oldestAge     *prometheus.GaugeVec
	alerts        *prometheus.GaugeVec
	lastReportSec *prometheus.GaugeVec
}

func newRegistry() *registry {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "snapkeep",
			Name:      name,
			Help:      help,
		}, append([]string{"subvolume"}, labels...))
	}
	return &registry{
		reg:           reg,
		usedPercent:   gauge("store_used_percent", "Percent of the store backing the subvolume in use."),
		freeBytes:     gauge("store_free_bytes", "Free bytes in the store backing the subvolume."),
		totalBytes:    gauge("store_size_bytes", "Size of the store backing the subvolume."),
		snapshots:     gauge("snapshots", "Snapshots of the subvolume by retention tier, untiered kinds under \"none\".", "tier"),
		protected:     gauge("protected_snapshots", "Snapshots exempt from automatic deletion."),
		oldestAge:     gauge("oldest_snapshot_age_seconds", "Age of the oldest snapshot."),
		alerts:        gauge("alerts", "Active alerts by severity.", "severity"),
		lastReportSec: gauge("report_timestamp_seconds", "When the report was taken."),
	}
}

func (r *registry) add(rep Report) {
	sv := rep.Subvolume
	r.usedPercent.WithLabelValues(sv).Set(rep.UsedPercent)
	r.freeBytes.WithLabelValues(sv).Set(float64(rep.FreeBytes))
	r.totalBytes.WithLabelValues(sv).Set(float64(rep.TotalBytes))
	tiered := 0
	for _, t := range snapshot.Tiers {
		r.snapshots.WithLabelValues(sv, string(t)).Set(float64(rep.TierCounts[t]))
		tiered += rep.TierCounts[t]
	}
	r.snapshots.WithLabelValues(sv, "none").Set(float64(rep.SnapshotCount - tiered))
	r.protected.WithLabelValues(sv).Set(float64(rep.ProtectedCount))
	r.oldestAge.WithLabelValues(sv).Set(rep.OldestSnapshotAge.Seconds())
	counts := map[Severity]int{Warning: 0, Critical: 0}
	for _, a := range rep.Alerts {
		counts[a.Severity]++
	}
	for sev, n := range counts {
		r.alerts.WithLabelValues(sv, string(sev)).Set(float64(n))
	}
	r.lastReportSec.WithLabelValues(sv).Set(float64(rep.At.Unix()))
}

// WriteTextfile writes reports in the Prometheus text format to path, atomically
// replacing it, for the node_exporter textfile collector.
func WriteTextfile(path string, reports []Report) error {
	r := newRegistry()
	for _, rep := range reports {
		r.add(rep)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}
