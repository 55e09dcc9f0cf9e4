// Package hooks reacts to version control events by snapshotting the subvolume
// holding the repository.
//
// Hooks are fail-open: whatever happens to the snapshot, the dispatcher returns
// normally so the commit, rebase or checkout it is attached to proceeds.
package hooks

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/snapshot"
)

type Event string

const (
	PreCommit    Event = "pre-commit"
	PreRebase    Event = "pre-rebase"
	PostCheckout Event = "post-checkout"
)

var Events = []Event{PreCommit, PreRebase, PostCheckout}

func ParseEvent(s string) (Event, error) {
	for _, e := range Events {
		if string(e) == s {
			return e, nil
		}
	}
	return "", snapshot.NewValidationError("unknown vcs event %q", s)
}

func (e Event) Kind() snapshot.Kind {
	return snapshot.Kind("hook-" + string(e))
}

// NewRequest builds the snapshot request for an event, or nil when the event
// warrants no snapshot: a post-checkout that did not switch refs.
func NewRequest(event Event, subvolume, repoName, beforeRef, afterRef string) *snapshot.Request {
	if event == PostCheckout && beforeRef == afterRef {
		return nil
	}
	tags := snapshot.Tags{
		"repo": repoName,
		"ref":  beforeRef + "->" + afterRef,
	}
	req := snapshot.NewRequest(subvolume, event.Kind(), string(event)+" in "+repoName, tags)
	return &req
}

type Config struct {
	// Timeout bounds the whole snapshot attempt, retries included.
	Timeout time.Duration
	Retry   snapshot.RetryConfig
}

type Dispatcher struct {
	adapter snapshot.Adapter
	config  Config
	logger  logrus.FieldLogger
	stat    stats.StatsReceiver
}

// NewDispatcher logs through logger, which defaults to the standard logrus logger.
func NewDispatcher(adapter snapshot.Adapter, config Config, logger logrus.FieldLogger, stat stats.StatsReceiver) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Dispatcher{adapter: adapter, config: config, logger: logger, stat: stat.Scope("hooks")}
}

type outcome struct {
	snap snapshot.Snapshot
	err  error
}

// OnVcsEvent snapshots subvolume for event and returns the request it issued, nil
// if the event needed none. It never fails: store errors and timeouts are logged
// once and dropped.
func (d *Dispatcher) OnVcsEvent(ctx context.Context, event Event, subvolume, repoName, beforeRef, afterRef string) *snapshot.Request {
	req := NewRequest(event, subvolume, repoName, beforeRef, afterRef)
	if req == nil {
		return nil
	}
	logger := d.logger.WithFields(logrus.Fields{
		"event":     event,
		"subvolume": subvolume,
		"repo":      repoName,
	})
	stat := d.stat.Scope(subvolume)

	ctx, cancel := snapshot.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		snap, err := snapshot.Create(ctx, d.adapter, *req, d.config.Retry.NewBackOff(ctx))
		done <- outcome{snap, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if snapshot.IsTimeout(o.err) {
				o.err = &snapshot.HookTimeoutError{Event: string(event), Subvolume: subvolume, Err: o.err}
			}
			logger.Warnf("Snapshot failed, continuing without it: %v", o.err)
			stat.Counter(stats.HookFailOpenCounter).Inc(1)
			return req
		}
		logger.WithField("snapshot", o.snap.ID).Info("Snapshot taken")
		stat.Counter(stats.HookSnapshotCounter).Inc(1)
	case <-ctx.Done():
		err := &snapshot.HookTimeoutError{Event: string(event), Subvolume: subvolume, Err: ctx.Err()}
		logger.Warnf("Snapshot did not finish in time, continuing without it: %v", err)
		stat.Counter(stats.HookFailOpenCounter).Inc(1)
	}
	return req
}
