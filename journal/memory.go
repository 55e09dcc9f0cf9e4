package journal

import (
	"sync"
	"time"

	"github.com/devrig/snapkeep/snapshot"
)

// memoryJournal keeps sessions in memory. It does not persist anything and
// backs the in-memory store and tests.
type memoryJournal struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	order    []string
	now      func() time.Time
}

type memorySession struct {
	entries []Entry
	state   *State
}

func NewMemoryJournal() Journal {
	return &memoryJournal{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

func (j *memoryJournal) StartSession(id string, subvolume string, snapshotID snapshot.ID) error {
	if id == "" {
		return NewInvalidEntryError("session id cannot be empty")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.sessions[id]; ok {
		return NewInvalidEntryError("session %s already started", id)
	}
	e := Entry{Session: id, Type: StartSession, Subvolume: subvolume, SnapshotID: snapshotID, At: j.now()}
	state, err := Rebuild([]Entry{e})
	if err != nil {
		return err
	}
	j.sessions[id] = &memorySession{entries: []Entry{e}, state: state}
	j.order = append(j.order, id)
	return nil
}

func (j *memoryJournal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	s, ok := j.sessions[e.Session]
	if !ok {
		return NewInvalidEntryError("no restore session %q", e.Session)
	}
	if e.At.IsZero() {
		e.At = j.now()
	}
	if err := s.state.apply(e); err != nil {
		return err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (j *memoryJournal) Entries(id string) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s, ok := j.sessions[id]
	if !ok {
		return nil, nil
	}
	return append([]Entry(nil), s.entries...), nil
}

func (j *memoryJournal) Sessions() ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]string(nil), j.order...), nil
}
