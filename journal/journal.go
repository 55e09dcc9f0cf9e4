// Package journal records the steps of restore sessions so an interrupted or
// botched restore can be audited, and so the ordering of those steps can be
// checked after the fact.
package journal

import (
	"fmt"
	"time"

	uuid "github.com/nu7hatch/gouuid"

	"github.com/devrig/snapkeep/snapshot"
)

type EntryType string

const (
	StartSession   EntryType = "start-session"
	DiffReviewed   EntryType = "diff-reviewed"
	SafetySnapshot EntryType = "safety-snapshot"
	StartPath      EntryType = "start-path"
	EndPath        EntryType = "end-path"
	FailPath       EntryType = "fail-path"
	Rollback       EntryType = "rollback"
	EndSession     EntryType = "end-session"
)

// Entry is one line of a session journal. Which fields are set depends on Type:
// SnapshotID is the restore source for StartSession and the pre-restore
// snapshot for SafetySnapshot, Path is set for the path entries and Detail
// carries error text or the final outcome.
type Entry struct {
	Session    string      `json:"session"`
	Type       EntryType   `json:"type"`
	Subvolume  string      `json:"subvolume,omitempty"`
	Path       string      `json:"path,omitempty"`
	SnapshotID snapshot.ID `json:"snapshot_id,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	At         time.Time   `json:"at"`
}

func (e Entry) String() string {
	s := fmt.Sprintf("%s %s", e.Session, e.Type)
	if e.Path != "" {
		s += " " + e.Path
	}
	if e.SnapshotID != 0 {
		s += fmt.Sprintf(" #%d", e.SnapshotID)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// Journal is an append-only log of restore sessions.
type Journal interface {
	// StartSession opens session id restoring subvolume from snapshotID.
	StartSession(id string, subvolume string, snapshotID snapshot.ID) error

	// Append adds e to the session it names. Entries that would take the session
	// through an invalid transition are rejected with an *InvalidEntryError.
	Append(e Entry) error

	// Entries returns the entries of session id in the order they were appended,
	// nil if there is no such session.
	Entries(id string) ([]Entry, error)

	// Sessions returns the ids of every recorded session, oldest first.
	Sessions() ([]string, error)
}

// NewSessionID returns a random session id.
func NewSessionID() string {
	// NewV4 only fails if crypto/rand does.
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}

// GetState returns the rebuilt state of session id.
func GetState(j Journal, id string) (*State, error) {
	entries, err := j.Entries(id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, fmt.Errorf("no restore session %q", id)
	}
	return Rebuild(entries)
}
