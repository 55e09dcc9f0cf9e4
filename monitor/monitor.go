// Package monitor reports store usage and snapshot counts per subvolume and
// raises alerts before the store fills up or a subvolume reaches its snapshot cap.
package monitor

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
)

type Severity string

const (
	Warning  Severity = "warning"
	Critical Severity = "critical"
)

type Alert struct {
	Severity  Severity
	Subvolume string
	Message   string
}

func (a Alert) String() string {
	return fmt.Sprintf("%s: %s: %s", a.Severity, a.Subvolume, a.Message)
}

// Report is a point-in-time view of one subvolume. It holds no state of its own:
// everything is read from the adapter when it is built.
type Report struct {
	Subvolume         string
	At                time.Time
	UsedPercent       float64
	FreeBytes         uint64
	TotalBytes        uint64
	SnapshotCount     int
	ProtectedCount    int
	OldestSnapshotAge time.Duration
	TierCounts        map[snapshot.Tier]int
	KindCounts        map[snapshot.Kind]int
	Alerts            []Alert
}

// Severity returns the most severe alert, "" when there is none.
func (r Report) Severity() Severity {
	var worst Severity
	for _, a := range r.Alerts {
		if a.Severity == Critical {
			return Critical
		}
		worst = a.Severity
	}
	return worst
}

// Alerts evaluates usage and snapshot count against the thresholds of p.
// Only the more severe of the two usage alerts is raised.
func Alerts(subvolume string, usedPercent float64, snapshotCount int, p policy.RetentionPolicy) []Alert {
	var alerts []Alert
	switch {
	case usedPercent >= p.CriticalThreshold:
		alerts = append(alerts, Alert{Critical, subvolume,
			fmt.Sprintf("store %.1f%% full, critical threshold is %.0f%%", usedPercent, p.CriticalThreshold)})
	case usedPercent >= p.WarnThreshold:
		alerts = append(alerts, Alert{Warning, subvolume,
			fmt.Sprintf("store %.1f%% full, warning threshold is %.0f%%", usedPercent, p.WarnThreshold)})
	}
	if p.NumberLimit > 0 && snapshotCount >= p.NumberLimit {
		alerts = append(alerts, Alert{Warning, subvolume,
			fmt.Sprintf("%d snapshots, number limit is %d", snapshotCount, p.NumberLimit)})
	}
	return alerts
}

type Config struct {
	ListTimeout  time.Duration
	UsageTimeout time.Duration
}

type Monitor struct {
	adapter  snapshot.Adapter
	policies policy.Store
	config   Config
	stat     stats.StatsReceiver

	// Now is used to age snapshots. Defaults to time.Now.
	Now func() time.Time
}

func NewMonitor(adapter snapshot.Adapter, policies policy.Store, config Config, stat stats.StatsReceiver) *Monitor {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Monitor{
		adapter:  adapter,
		policies: policies,
		config:   config,
		stat:     stat.Scope("monitor"),
		Now:      time.Now,
	}
}

// Report builds the report for subvolume. A missing or malformed policy is a
// *snapshot.PolicyError since the thresholds come from it.
func (m *Monitor) Report(ctx context.Context, subvolume string) (Report, error) {
	p, err := m.policies.Policy(subvolume)
	if err != nil {
		return Report{}, err
	}

	uctx, cancel := snapshot.WithTimeout(ctx, m.config.UsageTimeout)
	usage, err := m.adapter.Usage(uctx, subvolume)
	cancel()
	if err != nil {
		return Report{}, err
	}
	lctx, cancel := snapshot.WithTimeout(ctx, m.config.ListTimeout)
	snaps, err := m.adapter.ListSnapshots(lctx, subvolume)
	cancel()
	if err != nil {
		return Report{}, err
	}

	now := m.Now()
	r := Report{
		Subvolume:     subvolume,
		At:            now,
		UsedPercent:   usage.UsedPercent,
		FreeBytes:     usage.FreeBytes,
		TotalBytes:    usage.TotalBytes,
		SnapshotCount: len(snaps),
		TierCounts:    make(map[snapshot.Tier]int),
		KindCounts:    make(map[snapshot.Kind]int),
	}
	for _, t := range snapshot.Tiers {
		r.TierCounts[t] = 0
	}
	var oldest time.Time
	for _, s := range snaps {
		r.KindCounts[s.Kind]++
		if t, ok := s.Kind.Tier(); ok {
			r.TierCounts[t]++
		}
		if s.Protected {
			r.ProtectedCount++
		}
		if oldest.IsZero() || s.CreatedAt.Before(oldest) {
			oldest = s.CreatedAt
		}
	}
	if !oldest.IsZero() && now.After(oldest) {
		r.OldestSnapshotAge = now.Sub(oldest)
	}
	r.Alerts = Alerts(subvolume, usage.UsedPercent, len(snaps), p)

	m.record(r)
	return r, nil
}

func (m *Monitor) record(r Report) {
	stat := m.stat.Scope(r.Subvolume)
	stat.GaugeFloat(stats.UsedPercentGauge).Update(r.UsedPercent)
	stat.Gauge(stats.FreeBytesGauge).Update(int64(r.FreeBytes))
	stat.Gauge(stats.SnapshotCountGauge).Update(int64(r.SnapshotCount))
	stat.Gauge(stats.ProtectedCountGauge).Update(int64(r.ProtectedCount))
	stat.Gauge(stats.OldestSnapshotAgeSecGauge).Update(int64(r.OldestSnapshotAge / time.Second))
	for _, a := range r.Alerts {
		stat.Counter(stats.AlertCounter).Inc(1)
		entry := log.WithFields(log.Fields{"subvolume": a.Subvolume, "severity": a.Severity})
		if a.Severity == Critical {
			entry.Error(a.Message)
		} else {
			entry.Warn(a.Message)
		}
	}
}
