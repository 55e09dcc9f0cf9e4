package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devrig/snapkeep/snapshot"
)

type InvalidEntryError struct {
	s string
}

func (e InvalidEntryError) Error() string {
	return e.s
}

func NewInvalidEntryError(msg string, args ...interface{}) error {
	return InvalidEntryError{s: fmt.Sprintf(msg, args...)}
}

func IsInvalidEntry(err error) bool {
	_, ok := err.(InvalidEntryError)
	return ok
}

type flag byte

const (
	PathStarted flag = 1 << iota
	PathRestored
	PathFailed
)

// State is the progress of one restore session, rebuilt from its entries.
type State struct {
	ID             string
	Subvolume      string
	Source         snapshot.ID
	Reviewed       bool
	SafetySnapshot snapshot.ID
	RolledBack     bool
	Ended          bool
	Outcome        string

	paths map[string]flag
	order []string
}

// Rebuild replays entries, failing on the first one that breaks the session ordering:
// start, review, safety snapshot, then path restores or a rollback, then end.
func Rebuild(entries []Entry) (*State, error) {
	if len(entries) == 0 {
		return nil, NewInvalidEntryError("empty session")
	}
	if entries[0].Type != StartSession {
		return nil, NewInvalidEntryError("session %s does not begin with %s", entries[0].Session, StartSession)
	}
	state := &State{
		ID:        entries[0].Session,
		Subvolume: entries[0].Subvolume,
		Source:    entries[0].SnapshotID,
		paths:     make(map[string]flag),
	}
	for _, e := range entries[1:] {
		if err := state.apply(e); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// apply validates e against the current state and records it.
func (s *State) apply(e Entry) error {
	if e.Session != s.ID {
		return NewInvalidEntryError("entry for session %s appended to session %s", e.Session, s.ID)
	}
	if s.Ended {
		return NewInvalidEntryError("session %s already ended, cannot apply %s", s.ID, e.Type)
	}

	switch e.Type {
	case StartSession:
		return NewInvalidEntryError("session %s already started", s.ID)

	case DiffReviewed:
		s.Reviewed = true

	case SafetySnapshot:
		if !s.Reviewed {
			return NewInvalidEntryError("session %s: safety snapshot before the diff was reviewed", s.ID)
		}
		if s.SafetySnapshot != 0 {
			return NewInvalidEntryError("session %s: safety snapshot already taken", s.ID)
		}
		if e.SnapshotID == 0 {
			return NewInvalidEntryError("session %s: safety snapshot entry without snapshot id", s.ID)
		}
		s.SafetySnapshot = e.SnapshotID

	case StartPath:
		if s.SafetySnapshot == 0 {
			return NewInvalidEntryError("session %s: restoring %s before the safety snapshot", s.ID, e.Path)
		}
		if s.RolledBack {
			return NewInvalidEntryError("session %s: restoring %s after a rollback", s.ID, e.Path)
		}
		if e.Path == "" {
			return NewInvalidEntryError("session %s: %s without path", s.ID, e.Type)
		}
		if _, ok := s.paths[e.Path]; !ok {
			s.order = append(s.order, e.Path)
		}
		// A path may be attempted again after a failure.
		s.paths[e.Path] = PathStarted

	case EndPath, FailPath:
		if s.paths[e.Path] != PathStarted {
			return NewInvalidEntryError("session %s: %s for %s which is not in progress", s.ID, e.Type, e.Path)
		}
		if e.Type == EndPath {
			s.paths[e.Path] |= PathRestored
		} else {
			s.paths[e.Path] |= PathFailed
		}

	case Rollback:
		if s.SafetySnapshot == 0 {
			return NewInvalidEntryError("session %s: rollback before the safety snapshot", s.ID)
		}
		if len(s.paths) > 0 || s.RolledBack {
			return NewInvalidEntryError("session %s: rollback after restore started", s.ID)
		}
		s.RolledBack = true

	case EndSession:
		s.Ended = true
		s.Outcome = e.Detail

	default:
		return NewInvalidEntryError("unknown entry type %q", e.Type)
	}
	return nil
}

func (s *State) Paths() []string {
	return append([]string(nil), s.order...)
}

func (s *State) IsPathRestored(path string) bool {
	return s.paths[path]&PathRestored != 0
}

func (s *State) IsPathFailed(path string) bool {
	return s.paths[path]&PathFailed != 0
}

// InProgress returns the paths that were started but never finished, sorted.
func (s *State) InProgress() []string {
	var paths []string
	for p, f := range s.paths {
		if f == PathStarted {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func (s *State) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %s from #%d", s.ID, s.Subvolume, s.Source)
	if s.SafetySnapshot != 0 {
		fmt.Fprintf(&b, ", safety #%d", s.SafetySnapshot)
	}
	restored, failed := 0, 0
	for _, f := range s.paths {
		if f&PathRestored != 0 {
			restored++
		}
		if f&PathFailed != 0 {
			failed++
		}
	}
	if len(s.paths) > 0 {
		fmt.Fprintf(&b, ", %d restored, %d failed", restored, failed)
	}
	if s.RolledBack {
		b.WriteString(", rolled back")
	}
	if s.Ended {
		fmt.Fprintf(&b, ", %s", s.Outcome)
	} else {
		b.WriteString(", open")
	}
	return b.String()
}
