package restore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/journal"
	"github.com/devrig/snapkeep/snapshot"
)

type State int

const (
	Browsing State = iota
	DiffReviewed
	SafetySnapshotTaken
	Restoring
	Completed
	PartiallyFailed
	Failed
)

func (s State) String() string {
	switch s {
	case Browsing:
		return "browsing"
	case DiffReviewed:
		return "diff-reviewed"
	case SafetySnapshotTaken:
		return "safety-snapshot-taken"
	case Restoring:
		return "restoring"
	case Completed:
		return "completed"
	case PartiallyFailed:
		return "partially-failed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Done() bool {
	return s == Completed || s == PartiallyFailed || s == Failed
}

type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Outcome reports what a restore did. Skipped holds paths that were never
// attempted because the context was cancelled.
type Outcome struct {
	State          State
	SafetySnapshot snapshot.ID
	Restored       []string
	Failed         []PathError
	Skipped        []string
}

// Err summarizes the failures, nil when the restore completed.
func (o Outcome) Err() error {
	if o.State == Completed {
		return nil
	}
	return &OutcomeError{Outcome: o}
}

// OutcomeError unwraps to the first path failure so callers can classify it.
type OutcomeError struct {
	Outcome Outcome
}

func (e *OutcomeError) Error() string {
	var msgs []string
	for _, f := range e.Outcome.Failed {
		msgs = append(msgs, f.Error())
	}
	if len(e.Outcome.Skipped) > 0 {
		msgs = append(msgs, fmt.Sprintf("%d paths not attempted", len(e.Outcome.Skipped)))
	}
	return fmt.Sprintf("restore %s: %s", e.Outcome.State, strings.Join(msgs, "; "))
}

func (e *OutcomeError) Unwrap() error {
	if len(e.Outcome.Failed) == 0 {
		return nil
	}
	return e.Outcome.Failed[0].Err
}

// Session is one restore of a subvolume from Source. Its methods must be called
// in order; calling one out of order returns a *snapshot.ValidationError.
type Session struct {
	ID     string
	Source snapshot.Snapshot

	o    *Orchestrator
	stat stats.StatsReceiver

	mu      sync.Mutex
	state   State
	changes []snapshot.PathChange
	safety  snapshot.Snapshot
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Changes returns the diff computed by Review.
func (s *Session) Changes() []snapshot.PathChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]snapshot.PathChange(nil), s.changes...)
}

// SafetySnapshot returns the pre-restore snapshot, ok is false before one was taken.
func (s *Session) SafetySnapshot() (snap snapshot.Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safety, s.safety.ID != 0
}

func (s *Session) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"session":   s.ID,
		"subvolume": s.Source.Subvolume,
		"snapshot":  s.Source.ID,
	})
}

// expect must be called with s.mu held.
func (s *Session) expect(op string, states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return snapshot.NewValidationError("restore session %s is %s, cannot %s", s.ID, s.state, op)
}

func (s *Session) record(e journal.Entry) error {
	e.Session = s.ID
	return s.o.journal.Append(e)
}

// fail ends the session as Failed. Must be called with s.mu held.
func (s *Session) fail(cause error) {
	s.state = Failed
	if err := s.record(journal.Entry{Type: journal.EndSession, Detail: Failed.String() + ": " + cause.Error()}); err != nil {
		s.logger().Warnf("Failed to journal end of session: %v", err)
	}
}

// Review computes how the live subvolume differs from the source snapshot.
// It may be repeated until the safety snapshot is taken. A failed diff leaves
// the session where it was so the caller can retry.
func (s *Session) Review(ctx context.Context) ([]snapshot.PathChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("review", Browsing, DiffReviewed); err != nil {
		return nil, err
	}

	ctx, cancel := snapshot.WithTimeout(ctx, s.o.config.DiffTimeout)
	defer cancel()
	changes, err := s.o.adapter.Diff(ctx, s.Source.Subvolume, s.Source.ID)
	if err != nil {
		return nil, err
	}
	if err := s.record(journal.Entry{Type: journal.DiffReviewed, Detail: fmt.Sprintf("%d changes", len(changes))}); err != nil {
		return nil, errors.Wrap(err, "journaling diff review")
	}
	s.changes = changes
	s.state = DiffReviewed
	return append([]snapshot.PathChange(nil), changes...), nil
}

// TakeSafetySnapshot creates the protected pre-restore snapshot of the live
// subvolume. Nothing is overwritten until it succeeds; if it fails the session
// is Failed.
func (s *Session) TakeSafetySnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("take the safety snapshot", DiffReviewed); err != nil {
		return snapshot.Snapshot{}, err
	}

	ctx, cancel := snapshot.WithTimeout(ctx, s.o.config.CreateTimeout)
	defer cancel()
	req := snapshot.Request{
		Subvolume:   s.Source.Subvolume,
		Kind:        snapshot.KindPreRestore,
		Description: fmt.Sprintf("before restoring from #%d", s.Source.ID),
		Tags:        snapshot.Tags{"session": s.ID, "source": s.Source.ID.String()},
		Protected:   true,
	}
	snap, err := snapshot.Create(ctx, s.o.adapter, req, s.o.config.Retry.NewBackOff(ctx))
	if err != nil {
		s.fail(err)
		return snapshot.Snapshot{}, err
	}
	if err := s.record(journal.Entry{Type: journal.SafetySnapshot, SnapshotID: snap.ID}); err != nil {
		err = errors.Wrapf(err, "journaling safety snapshot #%d", snap.ID)
		s.fail(err)
		return snapshot.Snapshot{}, err
	}
	s.safety = snap
	s.state = SafetySnapshotTaken
	s.logger().WithField("safety", snap.ID).Info("Safety snapshot taken")
	return snap, nil
}

// cleanPaths normalizes paths relative to the subvolume root and drops duplicates.
func cleanPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, snapshot.NewValidationError("no paths to restore")
	}
	seen := make(map[string]bool)
	var cleaned []string
	for _, p := range paths {
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return nil, snapshot.NewValidationError("restore path %q leaves the subvolume", p)
			}
		}
		c := strings.Trim(path.Clean("/"+p), "/")
		if c == "" {
			return nil, snapshot.NewValidationError("restore path %q is the subvolume root, use a full rollback", p)
		}
		if !seen[c] {
			seen[c] = true
			cleaned = append(cleaned, c)
		}
	}
	return cleaned, nil
}

// RestorePaths copies each path from the source snapshot over the live
// subvolume. Paths are independent: a failure is recorded and the rest are still
// attempted. Once ctx is done the remaining paths are skipped.
func (s *Session) RestorePaths(ctx context.Context, paths []string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("restore paths", SafetySnapshotTaken); err != nil {
		return Outcome{}, err
	}
	cleaned, err := cleanPaths(paths)
	if err != nil {
		return Outcome{}, err
	}

	defer s.stat.Latency(stats.RestoreLatency_ms).Time().Stop()
	s.state = Restoring
	outcome := Outcome{SafetySnapshot: s.safety.ID}
	for i, p := range cleaned {
		if ctx.Err() != nil {
			outcome.Skipped = cleaned[i:]
			break
		}
		if err := s.restorePath(ctx, p); err != nil {
			s.logger().WithField("path", p).Warnf("Restore failed: %v", err)
			s.stat.Counter(stats.RestorePathErrCounter).Inc(1)
			outcome.Failed = append(outcome.Failed, PathError{Path: p, Err: err})
			continue
		}
		s.stat.Counter(stats.RestorePathOkCounter).Inc(1)
		outcome.Restored = append(outcome.Restored, p)
	}

	if len(outcome.Failed) == 0 && len(outcome.Skipped) == 0 {
		s.state = Completed
	} else {
		s.state = PartiallyFailed
	}
	outcome.State = s.state
	if err := s.record(journal.Entry{Type: journal.EndSession, Detail: s.state.String()}); err != nil {
		s.logger().Warnf("Failed to journal end of session: %v", err)
	}
	s.logger().Infof("Restored %d paths, %d failed, %d skipped",
		len(outcome.Restored), len(outcome.Failed), len(outcome.Skipped))
	return outcome, nil
}

func (s *Session) restorePath(ctx context.Context, p string) error {
	if err := s.record(journal.Entry{Type: journal.StartPath, Path: p}); err != nil {
		return errors.Wrap(err, "journaling path restore")
	}
	pctx, cancel := snapshot.WithTimeout(ctx, s.o.config.RestoreTimeout)
	defer cancel()
	err := s.o.adapter.RestorePath(pctx, s.Source.Subvolume, s.Source.ID, p)
	entry := journal.Entry{Type: journal.EndPath, Path: p}
	if err != nil {
		entry = journal.Entry{Type: journal.FailPath, Path: p, Detail: err.Error()}
	}
	if jerr := s.record(entry); jerr != nil {
		s.logger().WithField("path", p).Warnf("Failed to journal path result: %v", jerr)
	}
	return err
}

// CheckRollback returns a *snapshot.ValidationError if the subvolume cannot be
// rolled back because it is the root of the running system.
func (s *Session) CheckRollback(ctx context.Context) error {
	ctx, cancel := snapshot.WithTimeout(ctx, s.o.config.ListTimeout)
	defer cancel()
	active, err := s.o.adapter.ActiveRoot(ctx, s.Source.Subvolume)
	if err != nil {
		return err
	}
	if active {
		return snapshot.NewValidationError("%s is the active root and cannot be rolled back while mounted; boot another system to roll it back", s.Source.Subvolume)
	}
	return nil
}

// Rollback replaces the whole live subvolume with the source snapshot.
// confirmation must equal ConfirmationPhrase exactly, otherwise the rollback is
// aborted with a *snapshot.AbortedError and the session can still be used.
func (s *Session) Rollback(ctx context.Context, confirmation string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect("roll back", SafetySnapshotTaken); err != nil {
		return Outcome{}, err
	}
	if err := s.CheckRollback(ctx); err != nil {
		return Outcome{}, err
	}
	if phrase := ConfirmationPhrase(s.Source.Subvolume, s.Source.ID); confirmation != phrase {
		return Outcome{}, snapshot.NewAbortedError("rollback needs the confirmation %q", phrase)
	}

	s.state = Restoring
	if err := s.record(journal.Entry{Type: journal.Rollback, SnapshotID: s.Source.ID}); err != nil {
		err = errors.Wrap(err, "journaling rollback")
		s.fail(err)
		return Outcome{State: Failed, SafetySnapshot: s.safety.ID}, err
	}
	rctx, cancel := snapshot.WithTimeout(ctx, s.o.config.RestoreTimeout)
	defer cancel()
	if err := s.o.adapter.RestoreSubvolume(rctx, s.Source.Subvolume, s.Source.ID); err != nil {
		s.logger().Errorf("Rollback failed, live data is preserved in safety snapshot #%d: %v", s.safety.ID, err)
		s.fail(err)
		return Outcome{State: Failed, SafetySnapshot: s.safety.ID}, err
	}

	s.state = Completed
	s.stat.Counter(stats.RollbackOkCounter).Inc(1)
	if err := s.record(journal.Entry{Type: journal.EndSession, Detail: s.state.String()}); err != nil {
		s.logger().Warnf("Failed to journal end of session: %v", err)
	}
	s.logger().WithField("safety", s.safety.ID).Info("Rolled back")
	return Outcome{State: Completed, SafetySnapshot: s.safety.ID}, nil
}
