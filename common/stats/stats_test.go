package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if stat.precision != time.Millisecond {
		t.Fatal("Default precision should be millis.")
	}

	statp := stat.Precision(time.Second).(*defaultStatsReceiver)
	if stat.precision != time.Millisecond {
		t.Fatal("Default precision should still be millis.")
	}
	if statp.precision != time.Second {
		t.Fatal("New stat precision should be seconds.")
	}
}

func TestScopeChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should be empty.")
	}

	statp := stat.Scope("srv/data", "create").(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should still empty.")
	}
	if len(statp.scope) != 2 || statp.scope[0] != "srv_SLASH_data" || statp.scope[1] != "create" {
		t.Fatal("Invalid scope value: ", statp.scope)
	}
	if statp.scopedName("ok") != "srv_SLASH_data/create/ok" {
		t.Fatal("Invalid scope name: " + statp.scopedName("ok"))
	}
}

func TestSiblingScopesDoNotShareBackingArray(t *testing.T) {
	base := DefaultStatsReceiver().Scope("home")
	a := base.Scope("a").(*defaultStatsReceiver)
	b := base.Scope("b").(*defaultStatsReceiver)
	assert.Equal(t, "home/a/x", a.scopedName("x"))
	assert.Equal(t, "home/b/x", b.scopedName("x"))
}

func TestRegister(t *testing.T) {
	reg := NewFinagleStatsRegistry()
	if reg.GetOrRegister("counter", NewCounter()) == nil {
		t.Fatal("Registry did not save instrument")
	}
	if reg.GetOrRegister("gauge", NewGauge()) == nil {
		t.Fatal("Registry did not save instrument")
	}
	if reg.GetOrRegister("gaugeFloat", NewGaugeFloat()) == nil {
		t.Fatal("Registry did not save instrument")
	}
	if reg.GetOrRegister("latency", NewLatency()) == nil {
		t.Fatal("Registry did not save instrument")
	}
}

func TestMarshal(t *testing.T) {
	Time = NewTestTime(time.Unix(0, 0), time.Nanosecond*5)
	defer func() { Time = DefaultStatsTime() }()

	reg := NewFinagleStatsRegistry()
	reg.GetOrRegister("counter", NewCounter()).(Counter).Inc(1)
	reg.GetOrRegister("gauge", NewGauge()).(Gauge).Update(2)

	reg.GetOrRegister("latency", NewLatency()).(Latency).Time().Stop()
	Time = NewTestTime(time.Unix(0, 0), time.Nanosecond*10)
	reg.GetOrRegister("latency", NewLatency()).(Latency).Time().Stop()

	bytes, err := reg.(MarshalerPretty).MarshalJSONPretty()
	expected :=
		`{
  "counter": 1,
  "gauge": 2,
  "latency.avg": 7.5,
  "latency.count": 2,
  "latency.max": 10,
  "latency.min": 5,
  "latency.p50": 7.5,
  "latency.p90": 10,
  "latency.p99": 10,
  "latency.sum": 15
}`
	if string(bytes) != expected {
		t.Fatal("Wrong json marshal output: ", string(bytes), err)
	}
}

func TestRenderScoped(t *testing.T) {
	stat := DefaultStatsReceiver()
	stat.Scope("home").Counter(CreateOkCounter).Inc(2)
	stat.Scope("home").GaugeFloat(UsedPercentGauge).Update(12.5)

	rendered := string(stat.Render(false))
	assert.Contains(t, rendered, `"home/createOkCounter":2`)
	assert.Contains(t, rendered, `"home/usedPercentGauge":12.5`)
}

func TestVerifyStats(t *testing.T) {
	reg := NewFinagleStatsRegistry()
	stat := NewCustomStatsReceiver(func() StatsRegistry { return reg })
	stat.Scope("home").Counter(DeleteOkCounter).Inc(3)

	VerifyStats("delete", reg, t, map[string]Rule{
		"home/" + DeleteOkCounter:  {Checker: Int64EqTest, Value: 3},
		"home/" + DeleteErrCounter: {Checker: DoesNotExistTest},
	})
}

func TestNilReceiver(t *testing.T) {
	stat := NilStatsReceiver()
	stat.Scope("x").Counter("y").Inc(1)
	stat.Latency("z").Time().Stop()
	assert.Equal(t, []byte{}, stat.Render(true))
}
