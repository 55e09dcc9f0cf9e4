package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/snapshot"
)

func entry(t EntryType, path string, id snapshot.ID) Entry {
	return Entry{Session: "s1", Type: t, Path: path, SnapshotID: id}
}

func start() Entry {
	return Entry{Session: "s1", Type: StartSession, Subvolume: "home", SnapshotID: 7}
}

func TestRebuildSelectiveRestore(t *testing.T) {
	state, err := Rebuild([]Entry{
		start(),
		entry(DiffReviewed, "", 0),
		entry(SafetySnapshot, "", 12),
		entry(StartPath, "/a", 0),
		entry(EndPath, "/a", 0),
		entry(StartPath, "/b", 0),
		entry(FailPath, "/b", 0),
		entry(StartPath, "/c", 0),
		{Session: "s1", Type: EndSession, Detail: "partially-failed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "home", state.Subvolume)
	assert.Equal(t, snapshot.ID(7), state.Source)
	assert.Equal(t, snapshot.ID(12), state.SafetySnapshot)
	assert.Equal(t, []string{"/a", "/b", "/c"}, state.Paths())
	assert.True(t, state.IsPathRestored("/a"))
	assert.True(t, state.IsPathFailed("/b"))
	assert.False(t, state.IsPathRestored("/b"))
	assert.Equal(t, []string{"/c"}, state.InProgress())
	assert.True(t, state.Ended)
	assert.Equal(t, "partially-failed", state.Outcome)
	assert.Contains(t, state.String(), "1 restored, 1 failed")
}

func TestRebuildRollback(t *testing.T) {
	state, err := Rebuild([]Entry{
		start(),
		entry(DiffReviewed, "", 0),
		entry(SafetySnapshot, "", 12),
		entry(Rollback, "", 0),
		{Session: "s1", Type: EndSession, Detail: "completed"},
	})
	require.NoError(t, err)
	assert.True(t, state.RolledBack)
	assert.Empty(t, state.Paths())
}

func TestRebuildRejectsInvalidOrder(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"no start", []Entry{entry(DiffReviewed, "", 0)}},
		{"double start", []Entry{start(), start()}},
		{"safety before review", []Entry{start(), entry(SafetySnapshot, "", 12)}},
		{"safety without id", []Entry{start(), entry(DiffReviewed, "", 0), entry(SafetySnapshot, "", 0)}},
		{"restore before safety", []Entry{start(), entry(DiffReviewed, "", 0), entry(StartPath, "/a", 0)}},
		{"rollback before safety", []Entry{start(), entry(DiffReviewed, "", 0), entry(Rollback, "", 0)}},
		{"end of unstarted path", []Entry{start(), entry(DiffReviewed, "", 0), entry(SafetySnapshot, "", 12), entry(EndPath, "/a", 0)}},
		{"path ended twice", []Entry{start(), entry(DiffReviewed, "", 0), entry(SafetySnapshot, "", 12),
			entry(StartPath, "/a", 0), entry(EndPath, "/a", 0), entry(EndPath, "/a", 0)}},
		{"rollback after paths", []Entry{start(), entry(DiffReviewed, "", 0), entry(SafetySnapshot, "", 12),
			entry(StartPath, "/a", 0), entry(Rollback, "", 0)}},
		{"entry after end", []Entry{start(), entry(EndSession, "", 0), entry(DiffReviewed, "", 0)}},
		{"other session", []Entry{start(), {Session: "s2", Type: DiffReviewed}}},
		{"unknown type", []Entry{start(), entry("rewind", "", 0)}},
	}
	for _, test := range tests {
		_, err := Rebuild(test.entries)
		assert.True(t, IsInvalidEntry(err), "%s: %v", test.name, err)
	}
}

func TestRebuildRetriesFailedPath(t *testing.T) {
	state, err := Rebuild([]Entry{
		start(),
		entry(DiffReviewed, "", 0),
		entry(SafetySnapshot, "", 12),
		entry(StartPath, "/a", 0),
		entry(FailPath, "/a", 0),
		entry(StartPath, "/a", 0),
		entry(EndPath, "/a", 0),
	})
	require.NoError(t, err)
	assert.True(t, state.IsPathRestored("/a"))
	assert.False(t, state.IsPathFailed("/a"))
	assert.Equal(t, []string{"/a"}, state.Paths())
}
