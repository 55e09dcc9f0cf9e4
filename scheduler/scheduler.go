// Package scheduler turns timeline schedule entries into snapshot requests.
//
// The scheduler keeps no state between invocations: whether a tier is due is
// re-derived from the store's snapshot list on every call, so a tick may be
// repeated any number of times without creating duplicate snapshots.
package scheduler

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
)

// Config bounds the store calls made by a Scheduler.
type Config struct {
	Retry         snapshot.RetryConfig
	ListTimeout   time.Duration
	CreateTimeout time.Duration
}

type Scheduler struct {
	adapter  snapshot.Adapter
	policies policy.Store
	config   Config
	stat     stats.StatsReceiver
}

func NewScheduler(adapter snapshot.Adapter, policies policy.Store, config Config, stat stats.StatsReceiver) *Scheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Scheduler{
		adapter:  adapter,
		policies: policies,
		config:   config,
		stat:     stat.Scope("scheduler"),
	}
}

// Fire returns a request for a timeline-<tier> snapshot of subvolume, or nil when
// the tier is disabled or its newest snapshot is younger than the policy's MinAge.
// Fire never fails: a missing policy or an unreadable store is logged and treated as nil.
func (s *Scheduler) Fire(ctx context.Context, subvolume string, tier snapshot.Tier, now time.Time) *snapshot.Request {
	logger := log.WithFields(log.Fields{"subvolume": subvolume, "tier": tier})

	p, err := s.policies.Policy(subvolume)
	if err != nil {
		logger.Errorf("Skipping scheduled snapshot: %v", err)
		return nil
	}
	if p.Limit(tier) == 0 {
		logger.Debug("Tier disabled, skipping")
		s.stat.Scope(subvolume).Counter(stats.ScheduleNoOpCounter).Inc(1)
		return nil
	}

	listCtx, cancel := snapshot.WithTimeout(ctx, s.config.ListTimeout)
	defer cancel()
	snaps, err := s.adapter.ListSnapshots(listCtx, subvolume)
	if err != nil {
		logger.Warnf("Cannot read snapshot index, skipping tick: %v", err)
		s.stat.Scope(subvolume).Counter(stats.ScheduleNoOpCounter).Inc(1)
		return nil
	}

	if last, ok := snapshot.Newest(snaps, tier.Kind()); ok {
		if age := now.Sub(last.CreatedAt); age < p.MinAge {
			logger.Debugf("Newest %s snapshot #%d is %s old (min age %s), skipping", tier, last.ID, age, p.MinAge)
			s.stat.Scope(subvolume).Counter(stats.ScheduleNoOpCounter).Inc(1)
			return nil
		}
	}

	s.stat.Scope(subvolume).Counter(stats.ScheduleFiredCounter).Inc(1)
	req := snapshot.NewRequest(subvolume, tier.Kind(), fmt.Sprintf("timeline %s", tier), nil)
	return &req
}

// Tick fires every entry with a cron activation in (now-window, now] and returns the
// resulting requests. An entry repeated in the list fires at most once per tick.
func (s *Scheduler) Tick(ctx context.Context, entries []Entry, now time.Time, window time.Duration) []snapshot.Request {
	var reqs []snapshot.Request
	fired := map[string]bool{}
	for _, e := range entries {
		if !e.Due(now, window) {
			continue
		}
		key := e.Subvolume + "/" + string(e.Tier)
		if fired[key] {
			continue
		}
		fired[key] = true
		if req := s.Fire(ctx, e.Subvolume, e.Tier, now); req != nil {
			reqs = append(reqs, *req)
		}
	}
	return reqs
}

// Run ticks and executes the resulting requests. Failed creations are logged and
// skipped; the snapshots that were created are returned.
func (s *Scheduler) Run(ctx context.Context, entries []Entry, now time.Time, window time.Duration) []snapshot.Snapshot {
	var created []snapshot.Snapshot
	for _, req := range s.Tick(ctx, entries, now, window) {
		snap, err := s.execute(ctx, req)
		if err != nil {
			log.WithFields(log.Fields{
				"subvolume": req.Subvolume,
				"kind":      req.Kind,
			}).Errorf("Scheduled snapshot failed: %v", err)
			continue
		}
		created = append(created, snap)
	}
	return created
}

func (s *Scheduler) execute(ctx context.Context, req snapshot.Request) (snapshot.Snapshot, error) {
	stat := s.stat.Scope(req.Subvolume)
	defer stat.Latency(stats.CreateLatency_ms).Time().Stop()

	createCtx, cancel := snapshot.WithTimeout(ctx, s.config.CreateTimeout)
	defer cancel()
	snap, err := snapshot.Create(createCtx, s.adapter, req, s.config.Retry.NewBackOff(createCtx))
	if err != nil {
		stat.Counter(stats.CreateErrCounter).Inc(1)
		return snapshot.Snapshot{}, err
	}
	stat.Counter(stats.CreateOkCounter).Inc(1)
	return snap, nil
}
