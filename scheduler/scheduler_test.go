package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/cleaner"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
	"github.com/devrig/snapkeep/snapshot/snapshots"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var testConfig = Config{
	Retry:         snapshot.RetryConfig{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	ListTimeout:   time.Second,
	CreateTimeout: time.Second,
}

func hourlyPolicy(limit int, minAge time.Duration) policy.RetentionPolicy {
	p := policy.Default()
	for _, t := range snapshot.Tiers {
		p.Limits[t] = 0
	}
	p.Limits[snapshot.TierHourly] = limit
	p.MinAge = minAge
	return p
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setup(p policy.RetentionPolicy) (*snapshots.FakeAdapter, policy.Store, *clock) {
	c := &clock{now: t0}
	fake := snapshots.NewFakeAdapter("home")
	fake.Now = c.Now
	return fake, policy.NewStaticStore(map[string]policy.RetentionPolicy{"home": p}), c
}

// execute runs a request the way callers of Fire do.
func execute(t *testing.T, a snapshot.Adapter, req *snapshot.Request) {
	t.Helper()
	if req == nil {
		return
	}
	_, err := snapshot.Create(context.Background(), a, *req, testConfig.Retry.NewBackOff(context.Background()))
	require.NoError(t, err)
}

func TestFireHourlyScenario(t *testing.T) {
	p := hourlyPolicy(2, 1800*time.Second)
	fake, store, c := setup(p)
	s := NewScheduler(fake, store, testConfig, nil)

	requests := 0
	for _, offset := range []time.Duration{0, 900 * time.Second, 3600 * time.Second} {
		c.now = t0.Add(offset)
		req := s.Fire(context.Background(), "home", snapshot.TierHourly, c.now)
		if req != nil {
			requests++
			assert.Equal(t, snapshot.KindHourly, req.Kind)
			assert.False(t, req.Protected)
		}
		execute(t, fake, req)
	}
	assert.Equal(t, 2, requests)

	snaps, err := fake.ListSnapshots(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, t0, snaps[0].CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), snaps[1].CreatedAt)

	// A third hourly at t=2h overflows the tier; reconcile keeps the two newest.
	c.now = t0.Add(2 * time.Hour)
	execute(t, fake, s.Fire(context.Background(), "home", snapshot.TierHourly, c.now))

	engine := cleaner.NewEngine(fake, store, cleaner.Config{Retry: testConfig.Retry}, nil)
	engine.Now = func() time.Time { return t0.Add(3 * time.Hour) }
	res, err := engine.Reconcile(context.Background(), "home")
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	left, err := snapshot.ListNewestFirst(context.Background(), fake, "home")
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, t0.Add(2*time.Hour), left[0].CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), left[1].CreatedAt)
}

func TestFireDisabledTier(t *testing.T) {
	fake, store, _ := setup(hourlyPolicy(0, 0))
	s := NewScheduler(fake, store, testConfig, nil)
	assert.Nil(t, s.Fire(context.Background(), "home", snapshot.TierHourly, t0))
	assert.Empty(t, fake.Calls())
}

func TestFireUnknownSubvolumeIsNoOp(t *testing.T) {
	fake, store, _ := setup(hourlyPolicy(2, 0))
	s := NewScheduler(fake, store, testConfig, nil)
	assert.Nil(t, s.Fire(context.Background(), "data", snapshot.TierHourly, t0))
}

func TestFireStoreUnavailableIsNoOp(t *testing.T) {
	fake, store, _ := setup(hourlyPolicy(2, 0))
	fake.FailAlways(errors.New("store offline"))
	s := NewScheduler(fake, store, testConfig, nil)
	assert.Nil(t, s.Fire(context.Background(), "home", snapshot.TierHourly, t0))
}

func TestFireIgnoresOtherTiers(t *testing.T) {
	p := hourlyPolicy(2, time.Hour)
	p.Limits[snapshot.TierDaily] = 3
	fake, store, _ := setup(p)
	fake.Seed(snapshot.Snapshot{Subvolume: "home", Kind: snapshot.KindDaily, CreatedAt: t0})
	s := NewScheduler(fake, store, testConfig, nil)
	assert.NotNil(t, s.Fire(context.Background(), "home", snapshot.TierHourly, t0))
	assert.Nil(t, s.Fire(context.Background(), "home", snapshot.TierDaily, t0))
}

func TestIdempotentSchedulingProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("two fires within minAge create exactly one request", prop.ForAll(
		func(minAgeSec int, gapFrac float64) bool {
			minAge := time.Duration(minAgeSec) * time.Second
			gap := time.Duration(gapFrac * float64(minAge))
			fake, store, c := setup(hourlyPolicy(5, minAge))
			s := NewScheduler(fake, store, testConfig, nil)

			n := 0
			for _, at := range []time.Time{t0, t0.Add(gap)} {
				c.now = at
				req := s.Fire(context.Background(), "home", snapshot.TierHourly, at)
				if req != nil {
					n++
					if _, err := snapshot.Create(context.Background(), fake, *req, testConfig.Retry.NewBackOff(context.Background())); err != nil {
						return false
					}
				}
			}
			return n == 1
		},
		gen.IntRange(1, 7*24*3600),
		gen.Float64Range(0, 0.999),
	))

	properties.TestingRun(t)
}

func TestTick(t *testing.T) {
	p := hourlyPolicy(2, 30*time.Minute)
	p.Limits[snapshot.TierDaily] = 2
	fake, store, _ := setup(p)
	s := NewScheduler(fake, store, testConfig, nil)

	entries, err := DefaultEntries(store)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// 10:02 is within 5 minutes of the 10:00 hourly activation but not of midnight.
	now := t0.Add(2 * time.Minute)
	reqs := s.Tick(context.Background(), entries, now, 5*time.Minute)
	require.Len(t, reqs, 1)
	assert.Equal(t, snapshot.KindHourly, reqs[0].Kind)

	// 10:20 has no activation in the window.
	assert.Empty(t, s.Tick(context.Background(), entries, t0.Add(20*time.Minute), 5*time.Minute))
}

func TestTickFiresDuplicateEntriesOnce(t *testing.T) {
	fake, store, _ := setup(hourlyPolicy(2, 0))
	s := NewScheduler(fake, store, testConfig, nil)
	e1, err := NewEntry("home", snapshot.TierHourly, "")
	require.NoError(t, err)
	e2, err := NewEntry("home", snapshot.TierHourly, "*/30 * * * *")
	require.NoError(t, err)

	reqs := s.Tick(context.Background(), []Entry{e1, e2}, t0, time.Minute)
	assert.Len(t, reqs, 1)
}

func TestRunCreatesAndIsRepeatable(t *testing.T) {
	fake, store, _ := setup(hourlyPolicy(2, 30*time.Minute))
	s := NewScheduler(fake, store, testConfig, nil)
	entries, err := DefaultEntries(store)
	require.NoError(t, err)

	created := s.Run(context.Background(), entries, t0, time.Minute)
	require.Len(t, created, 1)
	assert.Equal(t, snapshot.KindHourly, created[0].Kind)

	// the timer firing twice for the same activation creates nothing new
	assert.Empty(t, s.Run(context.Background(), entries, t0.Add(30*time.Second), time.Minute))
}

func TestRunFailOpen(t *testing.T) {
	fake, store, _ := setup(hourlyPolicy(2, 0))
	fake.FailOp(snapshots.OpCreate, errors.New("no space left on device"))
	s := NewScheduler(fake, store, testConfig, nil)
	entries, err := DefaultEntries(store)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.Empty(t, s.Run(context.Background(), entries, t0, time.Minute))
	})
	assert.Len(t, fake.CallsOf(snapshots.OpCreate), 2, "one try plus one retry")
}

func TestNewEntryRejectsBadCron(t *testing.T) {
	_, err := NewEntry("home", snapshot.TierDaily, "at noon")
	assert.True(t, snapshot.IsValidation(err))
}

func TestEntryDue(t *testing.T) {
	e, err := NewEntry("home", snapshot.TierDaily, "")
	require.NoError(t, err)
	midnight := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.True(t, e.Due(midnight, time.Minute))
	assert.True(t, e.Due(midnight.Add(59*time.Second), time.Minute))
	assert.False(t, e.Due(midnight.Add(time.Minute), time.Minute))
	assert.False(t, e.Due(midnight.Add(-time.Second), time.Minute))
	assert.False(t, Entry{}.Due(midnight, time.Hour))
}
