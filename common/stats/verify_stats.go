package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RuleChecker compares a recorded stat against an expected value. got is nil
// when the stat was never recorded.
type RuleChecker struct {
	name  string
	check func(got, want interface{}) bool
}

// Int64EqTest passes when a counter or gauge equals the expected int.
var Int64EqTest = RuleChecker{name: "==", check: func(got, want interface{}) bool {
	n, ok := got.(int64)
	return ok && n == int64(want.(int))
}}

// FloatEqTest passes when a float gauge equals the expected float64.
var FloatEqTest = RuleChecker{name: "==", check: func(got, want interface{}) bool {
	f, ok := got.(float64)
	return ok && f == want.(float64)
}}

// DoesNotExistTest passes when the stat was never recorded.
var DoesNotExistTest = RuleChecker{name: "absent", check: func(got, _ interface{}) bool {
	return got == nil
}}

type Rule struct {
	Checker RuleChecker
	Value   interface{}
}

// VerifyStats fails t for every key of contains whose recorded value breaks its
// rule. The registry must come from NewFinagleStatsRegistry.
func VerifyStats(tag string, statsRegistry StatsRegistry, t testing.TB, contains map[string]Rule) {
	t.Helper()
	reg, ok := statsRegistry.(*finagleStatsRegistry)
	require.True(t, ok, "%s: stats registry %T cannot be inspected", tag, statsRegistry)

	recorded := reg.MarshalAll()
	for key, rule := range contains {
		got := recorded[key]
		if rule.Checker.name == DoesNotExistTest.name {
			assert.True(t, rule.Checker.check(got, rule.Value), "%s: %s is %v, expected no entry", tag, key, got)
			continue
		}
		assert.True(t, rule.Checker.check(got, rule.Value), "%s: %s is %v, expected %s %v", tag, key, got, rule.Checker.name, rule.Value)
	}
}
