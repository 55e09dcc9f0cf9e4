package cleaner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
	"github.com/devrig/snapkeep/snapshot/snapshots"
)

var testConfig = Config{
	Retry:         snapshot.RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	ListTimeout:   time.Second,
	DeleteTimeout: time.Second,
}

func newEngine(a snapshot.Adapter, p policy.RetentionPolicy, stat stats.StatsReceiver) *Engine {
	e := NewEngine(a, policy.NewStaticStore(map[string]policy.RetentionPolicy{"home": p}), testConfig, stat)
	e.Now = func() time.Time { return epoch }
	return e
}

func TestReconcileDeletesOverflow(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	for i, age := range []time.Duration{4, 3, 2, 1} {
		fake.Seed(snap(snapshot.ID(i+1), snapshot.KindHourly, age*time.Hour))
	}
	fake.Seed(snap(5, snapshot.KindMilestone, 90*24*time.Hour))

	reg := stats.NewFinagleStatsRegistry()
	stat := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg })
	res, err := newEngine(fake, testPolicy(2, 0, 0, 0), stat).Reconcile(context.Background(), "home")
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []snapshot.ID{2, 1}, ids(res.Deleted))
	assert.ElementsMatch(t, []snapshot.ID{3, 4, 5}, ids(res.Kept))

	left, err := fake.ListSnapshots(context.Background(), "home")
	require.NoError(t, err)
	assert.ElementsMatch(t, []snapshot.ID{3, 4, 5}, ids(left))

	stats.VerifyStats("reconcile", reg, t, map[string]stats.Rule{
		"retention/home/" + stats.DeleteOkCounter:      {Checker: stats.Int64EqTest, Value: 2},
		"retention/home/" + stats.ReconcileRunsCounter: {Checker: stats.Int64EqTest, Value: 1},
		"retention/home/" + stats.DeleteErrCounter:     {Checker: stats.DoesNotExistTest},
	})
}

func TestReconcileToleratesConcurrentDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	a := snapshot.NewMockAdapter(ctrl)

	old := snap(1, snapshot.KindHourly, 5*time.Hour)
	newer := snap(2, snapshot.KindHourly, 1*time.Hour)
	a.EXPECT().ListSnapshots(gomock.Any(), "home").Return([]snapshot.Snapshot{old, newer}, nil)
	a.EXPECT().DeleteSnapshot(gomock.Any(), "home", snapshot.ID(1)).Return(snapshot.NewNotFoundError("home", 1))

	res, err := newEngine(a, testPolicy(1, 0, 0, 0), nil).Reconcile(context.Background(), "home")
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []snapshot.ID{1}, ids(res.Deleted))
}

func TestReconcileCollectsFailuresAndRetriesNextPass(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	fake.Seed(snap(1, snapshot.KindHourly, 5*time.Hour))
	fake.Seed(snap(2, snapshot.KindHourly, 4*time.Hour))
	fake.Seed(snap(3, snapshot.KindHourly, 1*time.Hour))
	fake.Fail = func(op string, _ string, id snapshot.ID, _ string) error {
		if op == snapshots.OpDelete && id == 1 {
			return errors.New("device busy")
		}
		return nil
	}

	e := newEngine(fake, testPolicy(1, 0, 0, 0), nil)
	res, err := e.Reconcile(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.True(t, snapshot.IsFilesystem(res.Errors[0]))
	assert.Equal(t, []snapshot.ID{2}, ids(res.Deleted))
	// 1 initial attempt plus 2 retries
	deletesOf1 := 0
	for _, c := range fake.CallsOf(snapshots.OpDelete) {
		if c.ID == 1 {
			deletesOf1++
		}
	}
	assert.Equal(t, 3, deletesOf1)

	fake.Fail = nil
	res, err = e.Reconcile(context.Background(), "home")
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []snapshot.ID{1}, ids(res.Deleted))
}

func TestReconcileMissingPolicy(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home", "data")
	_, err := newEngine(fake, policy.Default(), nil).Reconcile(context.Background(), "data")
	assert.True(t, snapshot.IsPolicy(err))
	assert.Empty(t, fake.Calls(), "nothing is attempted without a policy")
}

func TestReconcileStoreUnavailable(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	fake.FailOp(snapshots.OpList, errors.New("store offline"))
	_, err := newEngine(fake, policy.Default(), nil).Reconcile(context.Background(), "home")
	assert.True(t, snapshot.IsFilesystem(err))
}

func TestSnapshotCleanerReconcilesEverySubvolume(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home", "root")
	fake.Seed(snapshot.Snapshot{ID: 1, Subvolume: "home", Kind: snapshot.KindDaily, CreatedAt: epoch.Add(-48 * time.Hour)})
	fake.Seed(snapshot.Snapshot{ID: 1, Subvolume: "root", Kind: snapshot.KindDaily, CreatedAt: epoch.Add(-48 * time.Hour)})
	p := testPolicy(1, 0, 0, 0)
	store := policy.NewStaticStore(map[string]policy.RetentionPolicy{"home": p, "root": p})
	e := NewEngine(fake, store, testConfig, nil)
	e.Now = func() time.Time { return epoch }

	require.NoError(t, NewSnapshotCleaner(e, store).Cleanup(context.Background()))
	assert.Len(t, fake.CallsOf(snapshots.OpDelete), 2)

	fake.Seed(snapshot.Snapshot{ID: 2, Subvolume: "root", Kind: snapshot.KindDaily, CreatedAt: epoch.Add(-48 * time.Hour)})
	fake.FailOp(snapshots.OpDelete, errors.New("read-only filesystem"))
	assert.Error(t, NewSnapshotCleaner(e, store).Cleanup(context.Background()))
}

func TestSnapshotCleanerStopsWhenCancelled(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home", "root")
	fake.Seed(snapshot.Snapshot{ID: 1, Subvolume: "home", Kind: snapshot.KindDaily, CreatedAt: epoch.Add(-48 * time.Hour)})
	p := testPolicy(1, 0, 0, 0)
	store := policy.NewStaticStore(map[string]policy.RetentionPolicy{"home": p, "root": p})
	e := NewEngine(fake, store, testConfig, nil)
	e.Now = func() time.Time { return epoch }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSnapshotCleaner(e, store).Cleanup(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, fake.Calls(), "no store call once cancelled")
}

func TestReconcileRetentionBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("reconcile without errors leaves the subvolume within policy", prop.ForAll(
		func(snaps []snapshot.Snapshot, p policy.RetentionPolicy) bool {
			fake := snapshots.NewFakeAdapter("home")
			for _, s := range snaps {
				fake.Seed(s)
			}
			res, err := newEngine(fake, p, nil).Reconcile(context.Background(), "home")
			if err != nil || len(res.Errors) > 0 {
				return false
			}
			left, _ := fake.ListSnapshots(context.Background(), "home")
			perTier := map[snapshot.Tier]int{}
			unprotected := 0
			for _, s := range left {
				if s.Protected {
					continue
				}
				unprotected++
				if tier, ok := s.Kind.Tier(); ok {
					perTier[tier]++
				}
			}
			for tier, n := range perTier {
				if n > p.Limit(tier) {
					return false
				}
			}
			return p.NumberLimit == 0 || unprotected <= p.NumberLimit
		},
		genSnapshots(), genPolicy(),
	))

	properties.TestingRun(t)
}
