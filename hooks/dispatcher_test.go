package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/snapshot"
	"github.com/devrig/snapkeep/snapshot/snapshots"
)

var testConfig = Config{
	Timeout: time.Second,
	Retry:   snapshot.RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(PreCommit, "home", "repoA", "abc", "abc")
	require.NotNil(t, req)
	assert.Equal(t, snapshot.KindHookPreCommit, req.Kind)
	assert.Equal(t, "home", req.Subvolume)
	assert.Equal(t, snapshot.Tags{"repo": "repoA", "ref": "abc->abc"}, req.Tags)
	assert.False(t, req.Protected)

	req = NewRequest(PreRebase, "home", "repoA", "abc", "main")
	require.NotNil(t, req)
	assert.Equal(t, snapshot.KindHookPreRebase, req.Kind)

	assert.Nil(t, NewRequest(PostCheckout, "home", "repoA", "abc", "abc"), "file-level checkout")
	req = NewRequest(PostCheckout, "home", "repoA", "abc", "def")
	require.NotNil(t, req)
	assert.Equal(t, snapshot.KindHookPostCheckout, req.Kind)
}

func TestParseEvent(t *testing.T) {
	for _, e := range Events {
		got, err := ParseEvent(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
		_, err = snapshot.ParseKind(string(e.Kind()))
		assert.NoError(t, err)
	}
	_, err := ParseEvent("post-merge")
	assert.True(t, snapshot.IsValidation(err))
}

func TestOnVcsEventCreatesTaggedSnapshot(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	logger, hook := test.NewNullLogger()
	d := NewDispatcher(fake, testConfig, logger, nil)

	req := d.OnVcsEvent(context.Background(), PreRebase, "home", "repoA", "abc", "def")
	require.NotNil(t, req)

	snaps, err := fake.ListSnapshots(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snapshot.KindHookPreRebase, snaps[0].Kind)
	assert.Equal(t, "repoA", snaps[0].Tags["repo"])
	assert.Equal(t, "abc->def", snaps[0].Tags["ref"])
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestOnVcsEventFailOpen(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	fake.FailAlways(errors.New("no space left on device"))
	logger, hook := test.NewNullLogger()
	d := NewDispatcher(fake, testConfig, logger, nil)

	var req *snapshot.Request
	assert.NotPanics(t, func() {
		req = d.OnVcsEvent(context.Background(), PreCommit, "home", "repoA", "abc", "abc")
	})
	require.NotNil(t, req)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "repoA", hook.LastEntry().Data["repo"])
}

// A commit sequence keeps going while every snapshot fails.
func TestCommitSequenceCompletesWithFailingAdapter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	a := snapshot.NewMockAdapter(ctrl)
	a.EXPECT().
		CreateSnapshot(gomock.Any(), "home", snapshot.KindHookPreCommit, gomock.Any(), gomock.Any(), false).
		Return(snapshot.Snapshot{}, snapshot.NewFilesystemError("create", "home", 0, errors.New("busy"))).
		AnyTimes()

	logger, hook := test.NewNullLogger()
	d := NewDispatcher(a, testConfig, logger, nil)
	commits := 0
	for i := 0; i < 3; i++ {
		d.OnVcsEvent(context.Background(), PreCommit, "home", "repoA", "abc", "abc")
		commits++
	}
	assert.Equal(t, 3, commits)
	assert.Len(t, hook.AllEntries(), 3)
}

func TestOnVcsEventTimeout(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	fake.Delay = time.Minute
	logger, hook := test.NewNullLogger()
	d := NewDispatcher(fake, Config{Timeout: 20 * time.Millisecond, Retry: testConfig.Retry}, logger, nil)

	start := time.Now()
	req := d.OnVcsEvent(context.Background(), PreCommit, "home", "repoA", "abc", "abc")
	require.NotNil(t, req)
	assert.True(t, time.Since(start) < 10*time.Second)
	require.Len(t, hook.AllEntries(), 1)
	assert.Contains(t, hook.LastEntry().Message, "hook timeout")
}

func TestOnVcsEventPostCheckoutSameRef(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	logger, hook := test.NewNullLogger()
	d := NewDispatcher(fake, testConfig, logger, nil)

	assert.Nil(t, d.OnVcsEvent(context.Background(), PostCheckout, "home", "repoA", "abc", "abc"))
	assert.Empty(t, fake.Calls())
	assert.Empty(t, hook.AllEntries())
}
