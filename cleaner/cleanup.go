// Package cleaner is the retention engine: it reconciles the snapshots of each
// subvolume against its retention policy and deletes what the policy no longer keeps.
package cleaner

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
)

// A Cleaner provides cleanup functionality
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Config bounds the store calls made during reconciliation.
type Config struct {
	Retry         snapshot.RetryConfig
	ListTimeout   time.Duration
	DeleteTimeout time.Duration
}

// Result of one reconcile pass. Snapshots whose deletion failed are in neither
// Kept nor Deleted; they are reconsidered on the next pass.
type Result struct {
	Kept    []snapshot.Snapshot
	Deleted []snapshot.Snapshot
	Errors  []error
}

// Engine reconciles subvolumes against their retention policies.
type Engine struct {
	adapter  snapshot.Adapter
	policies policy.Store
	config   Config
	stat     stats.StatsReceiver

	// Now supplies the reference time for MinAge. Defaults to time.Now.
	Now func() time.Time
}

func NewEngine(adapter snapshot.Adapter, policies policy.Store, config Config, stat stats.StatsReceiver) *Engine {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Engine{
		adapter:  adapter,
		policies: policies,
		config:   config,
		stat:     stat.Scope("retention"),
		Now:      time.Now,
	}
}

// Reconcile re-reads the live snapshot list of subvolume and deletes every snapshot
// its policy does not keep. The returned error is set only when nothing could be
// attempted (missing policy, unreadable store); individual delete failures are
// collected in Result.Errors.
func (e *Engine) Reconcile(ctx context.Context, subvolume string) (Result, error) {
	stat := e.stat.Scope(subvolume)
	defer stat.Latency(stats.ReconcileLatency_ms).Time().Stop()
	stat.Counter(stats.ReconcileRunsCounter).Inc(1)

	p, err := e.policies.Policy(subvolume)
	if err != nil {
		return Result{}, err
	}

	listCtx, cancel := snapshot.WithTimeout(ctx, e.config.ListTimeout)
	snaps, err := e.adapter.ListSnapshots(listCtx, subvolume)
	cancel()
	if err != nil {
		return Result{}, err
	}

	keep, remove := Select(snaps, p, e.Now())
	result := Result{Kept: keep}
	for _, s := range remove {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, snapshot.NewFilesystemError("delete", subvolume, s.ID, err))
			continue
		}
		logger := log.WithFields(log.Fields{"subvolume": subvolume, "snapshot": s.ID, "kind": s.Kind})

		delCtx, cancel := snapshot.WithTimeout(ctx, e.config.DeleteTimeout)
		err := snapshot.Delete(delCtx, e.adapter, subvolume, s.ID, e.config.Retry.NewBackOff(delCtx))
		cancel()
		switch {
		case err == nil:
			logger.Info("Deleted snapshot")
			stat.Counter(stats.DeleteOkCounter).Inc(1)
			result.Deleted = append(result.Deleted, s)
		case snapshot.IsConcurrency(err):
			logger.Debugf("Snapshot already gone: %v", err)
			stat.Counter(stats.DeleteRaceCounter).Inc(1)
			result.Deleted = append(result.Deleted, s)
		default:
			logger.Errorf("Failed to delete snapshot, will retry next pass: %v", err)
			stat.Counter(stats.DeleteErrCounter).Inc(1)
			result.Errors = append(result.Errors, err)
		}
	}

	log.WithFields(log.Fields{"subvolume": subvolume}).Infof(
		"Reconciled: kept %d, deleted %d, failed %d", len(result.Kept), len(result.Deleted), len(result.Errors))
	return result, nil
}

// SnapshotCleaner implements Cleaner by reconciling every subvolume with a policy.
type SnapshotCleaner struct {
	engine   *Engine
	policies policy.Store
}

func NewSnapshotCleaner(engine *Engine, policies policy.Store) *SnapshotCleaner {
	return &SnapshotCleaner{engine: engine, policies: policies}
}

// Cleanup reconciles each subvolume in turn; a failing subvolume does not stop the rest.
// Cleanup does not guarantee every subvolume is within its policy after running.
// It stops before the next subvolume once ctx is done.
func (c *SnapshotCleaner) Cleanup(ctx context.Context) error {
	var failures []error
	for _, sv := range c.policies.Subvolumes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.engine.Reconcile(ctx, sv)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %v", sv, err))
			continue
		}
		failures = append(failures, res.Errors...)
	}
	if l := len(failures); l > 0 {
		log.Errorf("Failed to reconcile %d snapshot(s) or subvolume(s). %s", l, failures)
		return fmt.Errorf("reconcile left %d failure(s)", l)
	}
	return nil
}
