package monitor

import (
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
	"github.com/devrig/snapkeep/snapshot/snapshots"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() policy.RetentionPolicy {
	p := policy.Default()
	p.NumberLimit = 4
	return p
}

func seed(fake *snapshots.FakeAdapter) {
	fake.Seed(snapshot.Snapshot{Subvolume: "home", Kind: snapshot.KindHourly, CreatedAt: now.Add(-time.Hour)})
	fake.Seed(snapshot.Snapshot{Subvolume: "home", Kind: snapshot.KindHourly, CreatedAt: now.Add(-2 * time.Hour)})
	fake.Seed(snapshot.Snapshot{Subvolume: "home", Kind: snapshot.KindDaily, CreatedAt: now.Add(-48 * time.Hour)})
	fake.Seed(snapshot.Snapshot{Subvolume: "home", Kind: snapshot.KindMilestone, CreatedAt: now.Add(-30 * time.Minute), Protected: true})
}

func newMonitor(fake *snapshots.FakeAdapter, stat stats.StatsReceiver) *Monitor {
	store := policy.NewStaticStore(map[string]policy.RetentionPolicy{"home": testPolicy()})
	m := NewMonitor(fake, store, Config{}, stat)
	m.Now = func() time.Time { return now }
	return m
}

func TestReport(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	seed(fake)
	fake.SetUsage("home", snapshot.Usage{UsedPercent: 42, FreeBytes: 58 << 30, TotalBytes: 100 << 30})
	reg := stats.NewFinagleStatsRegistry()
	stat := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg })

	r, err := newMonitor(fake, stat).Report(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, 42.0, r.UsedPercent)
	assert.Equal(t, uint64(58<<30), r.FreeBytes)
	assert.Equal(t, 4, r.SnapshotCount)
	assert.Equal(t, 1, r.ProtectedCount)
	assert.Equal(t, 48*time.Hour, r.OldestSnapshotAge)
	assert.Equal(t, 2, r.TierCounts[snapshot.TierHourly])
	assert.Equal(t, 1, r.TierCounts[snapshot.TierDaily])
	assert.Equal(t, 0, r.TierCounts[snapshot.TierYearly])
	assert.Equal(t, 1, r.KindCounts[snapshot.KindMilestone])

	// 4 snapshots reach the number limit of 4
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, Warning, r.Alerts[0].Severity)
	assert.Equal(t, Warning, r.Severity())

	stats.VerifyStats("monitor", reg, t, map[string]stats.Rule{
		"monitor/home/" + stats.SnapshotCountGauge: {Checker: stats.Int64EqTest, Value: 4},
		"monitor/home/" + stats.AlertCounter:       {Checker: stats.Int64EqTest, Value: 1},
		"monitor/home/" + stats.UsedPercentGauge:   {Checker: stats.FloatEqTest, Value: 42.0},
	})
}

func TestReportEmpty(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	r, err := newMonitor(fake, nil).Report(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, 0, r.SnapshotCount)
	assert.Equal(t, time.Duration(0), r.OldestSnapshotAge)
	assert.Empty(t, r.Alerts)
	assert.Equal(t, Severity(""), r.Severity())
}

func TestReportErrors(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home", "var")
	m := newMonitor(fake, nil)

	_, err := m.Report(context.Background(), "var")
	assert.True(t, snapshot.IsPolicy(err), "no policy for var")

	fake.FailOp(snapshots.OpUsage, errors.New("statfs failed"))
	_, err = m.Report(context.Background(), "home")
	assert.True(t, snapshot.IsFilesystem(err))
}

func TestAlerts(t *testing.T) {
	p := testPolicy() // warn 80, critical 90, number limit 4
	tests := []struct {
		used  float64
		count int
		want  []Severity
	}{
		{10, 0, nil},
		{79.9, 3, nil},
		{80, 3, []Severity{Warning}},
		{89, 3, []Severity{Warning}},
		{90, 3, []Severity{Critical}},
		{100, 3, []Severity{Critical}},
		{10, 4, []Severity{Warning}},
		{95, 9, []Severity{Critical, Warning}},
	}
	for _, test := range tests {
		var got []Severity
		for _, a := range Alerts("home", test.used, test.count, p) {
			got = append(got, a.Severity)
		}
		assert.Equal(t, test.want, got, "used %v count %v", test.used, test.count)
	}

	p.NumberLimit = 0
	assert.Empty(t, Alerts("home", 10, 1000, p), "number limit 0 disables the count alert")
}

func TestWriteTextfile(t *testing.T) {
	fake := snapshots.NewFakeAdapter("home")
	seed(fake)
	fake.SetUsage("home", snapshot.Usage{UsedPercent: 91.5, FreeBytes: 1024, TotalBytes: 4096})
	r, err := newMonitor(fake, nil).Report(context.Background(), "home")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapkeep.prom")
	require.NoError(t, WriteTextfile(path, []Report{r}))

	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `snapkeep_store_used_percent{subvolume="home"} 91.5`)
	assert.Contains(t, out, `snapkeep_store_free_bytes{subvolume="home"} 1024`)
	assert.Contains(t, out, `snapkeep_snapshots{subvolume="home",tier="hourly"} 2`)
	assert.Contains(t, out, `snapkeep_snapshots{subvolume="home",tier="none"} 1`)
	assert.Contains(t, out, `snapkeep_alerts{severity="critical",subvolume="home"} 1`)
	assert.Contains(t, out, `snapkeep_oldest_snapshot_age_seconds{subvolume="home"} 172800`)
}
