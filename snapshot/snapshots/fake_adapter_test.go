package snapshots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/snapshot"
)

func TestFakeCreateListDelete(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFakeAdapter("home")
	f.Now = func() time.Time { return at }

	s, err := f.CreateSnapshot(ctx, "home", snapshot.KindManual, "first", snapshot.Tags{"k": "v"}, true)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ID(1), s.ID)
	assert.Equal(t, at, s.CreatedAt)

	snaps, err := f.ListSnapshots(ctx, "home")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	snaps[0].Tags["k"] = "changed"
	snaps, _ = f.ListSnapshots(ctx, "home")
	assert.Equal(t, "v", snaps[0].Tags["k"])

	require.NoError(t, f.DeleteSnapshot(ctx, "home", 1))
	assert.True(t, snapshot.IsNotFound(f.DeleteSnapshot(ctx, "home", 1)))

	_, err = f.ListSnapshots(ctx, "nowhere")
	assert.True(t, snapshot.IsFilesystem(err))

	assert.Equal(t, []string{OpCreate, OpList, OpList, OpDelete, OpDelete, OpList}, ops(f.Calls()))
}

func TestFakeDiffAndRestore(t *testing.T) {
	ctx := context.Background()
	f := NewFakeAdapter("home")
	f.WriteFile("home", "dir/a", "1")
	f.WriteFile("home", "dir/b", "1")
	f.Seed(snapshot.Snapshot{Subvolume: "home", Kind: snapshot.KindDaily})
	f.WriteFile("home", "dir/a", "2")
	f.RemoveFile("home", "dir/b")
	f.WriteFile("home", "dir/c", "1")

	changes, err := f.Diff(ctx, "home", 1)
	require.NoError(t, err)
	assert.Equal(t, []snapshot.PathChange{
		{Path: "dir/a", Change: snapshot.Modified},
		{Path: "dir/b", Change: snapshot.Removed},
		{Path: "dir/c", Change: snapshot.Added},
	}, changes)

	require.NoError(t, f.RestorePath(ctx, "home", 1, "/dir"))
	changes, err = f.Diff(ctx, "home", 1)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestFakeRestoreSubvolumeRefusesActiveRoot(t *testing.T) {
	ctx := context.Background()
	f := NewFakeAdapter("root")
	f.Seed(snapshot.Snapshot{Subvolume: "root", Kind: snapshot.KindDaily})
	f.SetActiveRoot("root", true)
	err := f.RestoreSubvolume(ctx, "root", 1)
	assert.True(t, snapshot.IsFilesystem(err))

	root, err := f.ActiveRoot(ctx, "root")
	require.NoError(t, err)
	assert.True(t, root)
}

func TestFakeFailureInjection(t *testing.T) {
	ctx := context.Background()
	f := NewFakeAdapter("home")
	f.FailOp(OpCreate, errors.New("disk full"))
	_, err := f.CreateSnapshot(ctx, "home", snapshot.KindManual, "", nil, false)
	assert.True(t, snapshot.IsFilesystem(err))
	assert.Contains(t, err.Error(), "disk full")

	_, err = f.Usage(ctx, "home")
	assert.NoError(t, err)

	f.Fail = nil
	f.Delay = time.Hour
	short, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	_, err = f.ListSnapshots(short, "home")
	assert.True(t, snapshot.IsTimeout(err))
}

func ops(calls []Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}
