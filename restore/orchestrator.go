// Package restore browses snapshots and restores files or whole subvolumes
// from them.
//
// A restore is a Session moving through
//
//	Browsing -> DiffReviewed -> SafetySnapshotTaken -> Restoring -> Completed | PartiallyFailed
//
// with Failed when a step it depends on fails. A protected pre-restore snapshot
// of the live subvolume is always taken before anything is overwritten, and the
// orchestrator never deletes it. Every step is recorded in a journal.Journal.
package restore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/journal"
	"github.com/devrig/snapkeep/snapshot"
)

type Config struct {
	ListTimeout    time.Duration
	DiffTimeout    time.Duration
	CreateTimeout  time.Duration
	RestoreTimeout time.Duration
	Retry          snapshot.RetryConfig
}

type Orchestrator struct {
	adapter snapshot.Adapter
	journal journal.Journal
	config  Config
	stat    stats.StatsReceiver
}

func NewOrchestrator(adapter snapshot.Adapter, j journal.Journal, config Config, stat stats.StatsReceiver) *Orchestrator {
	if j == nil {
		j = journal.NewMemoryJournal()
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Orchestrator{adapter: adapter, journal: j, config: config, stat: stat.Scope("restore")}
}

// List returns the snapshots of subvolume, newest first.
func (o *Orchestrator) List(ctx context.Context, subvolume string) ([]snapshot.Snapshot, error) {
	ctx, cancel := snapshot.WithTimeout(ctx, o.config.ListTimeout)
	defer cancel()
	return snapshot.ListNewestFirst(ctx, o.adapter, subvolume)
}

// Begin opens a restore session of subvolume from snapshot id.
// Returns a *snapshot.NotFoundError if there is no such snapshot.
func (o *Orchestrator) Begin(ctx context.Context, subvolume string, id snapshot.ID) (*Session, error) {
	snaps, err := o.List(ctx, subvolume)
	if err != nil {
		return nil, err
	}
	source, err := snapshot.Find(snaps, subvolume, id)
	if err != nil {
		return nil, err
	}
	sessionID := journal.NewSessionID()
	if err := o.journal.StartSession(sessionID, subvolume, id); err != nil {
		return nil, errors.Wrap(err, "starting restore session")
	}
	log.WithFields(log.Fields{
		"session":   sessionID,
		"subvolume": subvolume,
		"snapshot":  id,
	}).Info("Restore session started")
	return &Session{
		ID:     sessionID,
		Source: source,
		o:      o,
		state:  Browsing,
		stat:   o.stat.Scope(subvolume),
	}, nil
}

// ConfirmationPhrase is what an operator must type, verbatim, to roll subvolume
// back to snapshot id.
func ConfirmationPhrase(subvolume string, id snapshot.ID) string {
	return fmt.Sprintf("ROLLBACK %s TO %d", subvolume, id)
}
