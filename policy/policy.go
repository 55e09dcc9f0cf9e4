// Package policy holds per-subvolume retention policies and the store that serves them.
package policy

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/devrig/snapkeep/snapshot"
)

// RetentionPolicy is the retention configuration of one subvolume.
//
// A tier limit of 0 disables that tier: the scheduler never fires it and retention
// removes any unprotected snapshot of it. A NumberLimit of 0 disables the global cap.
type RetentionPolicy struct {
	Limits            map[snapshot.Tier]int
	MinAge            time.Duration
	NumberLimit       int
	WarnThreshold     float64
	CriticalThreshold float64
}

// Default mirrors the timeline defaults of classic snapshot managers.
func Default() RetentionPolicy {
	return RetentionPolicy{
		Limits: map[snapshot.Tier]int{
			snapshot.TierHourly:  10,
			snapshot.TierDaily:   10,
			snapshot.TierWeekly:  0,
			snapshot.TierMonthly: 10,
			snapshot.TierYearly:  10,
		},
		MinAge:            30 * time.Minute,
		NumberLimit:       50,
		WarnThreshold:     80,
		CriticalThreshold: 90,
	}
}

// Limit returns the number of snapshots kept for tier t.
func (p RetentionPolicy) Limit(t snapshot.Tier) int {
	return p.Limits[t]
}

// Validate returns a *snapshot.PolicyError naming subvolume when p is malformed.
func (p RetentionPolicy) Validate(subvolume string) error {
	for t, n := range p.Limits {
		if _, err := snapshot.ParseTier(string(t)); err != nil {
			return snapshot.NewPolicyError(subvolume, "unknown tier %q", t)
		}
		if n < 0 {
			return snapshot.NewPolicyError(subvolume, "limit for %s must be >= 0, got %d", t, n)
		}
	}
	if p.MinAge < 0 {
		return snapshot.NewPolicyError(subvolume, "min_age must be >= 0, got %s", p.MinAge)
	}
	if p.NumberLimit < 0 {
		return snapshot.NewPolicyError(subvolume, "number_limit must be >= 0, got %d", p.NumberLimit)
	}
	if p.WarnThreshold < 0 || p.CriticalThreshold > 100 || p.WarnThreshold >= p.CriticalThreshold {
		return snapshot.NewPolicyError(subvolume,
			"thresholds must satisfy 0 <= warn < critical <= 100, got warn=%v critical=%v",
			p.WarnThreshold, p.CriticalThreshold)
	}
	return nil
}

func (p RetentionPolicy) String() string {
	s := ""
	for _, t := range snapshot.Tiers {
		s += fmt.Sprintf("%s=%d ", t, p.Limits[t])
	}
	return fmt.Sprintf("%smin_age=%s number_limit=%d warn=%v%% critical=%v%%",
		s, p.MinAge, p.NumberLimit, p.WarnThreshold, p.CriticalThreshold)
}

// rawPolicy is the on-disk shape of a policy record.
type rawPolicy struct {
	Limits            map[string]int `mapstructure:"limits"`
	MinAge            *time.Duration `mapstructure:"min_age"`
	NumberLimit       *int           `mapstructure:"number_limit"`
	WarnThreshold     *float64       `mapstructure:"warn_threshold"`
	CriticalThreshold *float64       `mapstructure:"critical_threshold"`
}

// Decode builds a policy from a config record, starting from Default for absent fields.
// min_age accepts a duration string ("30m") or a number of seconds.
func Decode(subvolume string, raw map[string]interface{}) (RetentionPolicy, error) {
	var rp rawPolicy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &rp,
	})
	if err != nil {
		return RetentionPolicy{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return RetentionPolicy{}, snapshot.NewPolicyError(subvolume, "%v", err)
	}

	p := Default()
	for name, n := range rp.Limits {
		t, err := snapshot.ParseTier(name)
		if err != nil {
			return RetentionPolicy{}, snapshot.NewPolicyError(subvolume, "unknown tier %q in limits", name)
		}
		p.Limits[t] = n
	}
	if rp.MinAge != nil {
		p.MinAge = *rp.MinAge
	}
	if rp.NumberLimit != nil {
		p.NumberLimit = *rp.NumberLimit
	}
	if rp.WarnThreshold != nil {
		p.WarnThreshold = *rp.WarnThreshold
	}
	if rp.CriticalThreshold != nil {
		p.CriticalThreshold = *rp.CriticalThreshold
	}
	return p, p.Validate(subvolume)
}

// secondsToDurationHookFunc treats bare numbers as seconds when the target is a duration.
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case uint64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.Duration(n) * time.Second, nil
			}
		}
		return data, nil
	}
}

// Store serves the policy of each configured subvolume.
type Store interface {
	// Policy returns a *snapshot.PolicyError for unknown subvolumes.
	Policy(subvolume string) (RetentionPolicy, error)

	// Subvolumes lists every subvolume with a policy, sorted.
	Subvolumes() []string
}

// StaticStore is a Store over a fixed set of policies.
type StaticStore struct {
	mu       sync.RWMutex
	policies map[string]RetentionPolicy
}

func NewStaticStore(policies map[string]RetentionPolicy) *StaticStore {
	s := &StaticStore{policies: make(map[string]RetentionPolicy, len(policies))}
	for sv, p := range policies {
		s.policies[sv] = p
	}
	return s
}

func (s *StaticStore) Policy(subvolume string) (RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[subvolume]
	if !ok {
		return RetentionPolicy{}, snapshot.NewPolicyError(subvolume, "no retention policy configured")
	}
	if err := p.Validate(subvolume); err != nil {
		return RetentionPolicy{}, err
	}
	return p, nil
}

func (s *StaticStore) Subvolumes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.policies))
	for sv := range s.policies {
		out = append(out, sv)
	}
	sort.Strings(out)
	return out
}

// Set replaces the policy of subvolume.
func (s *StaticStore) Set(subvolume string, p RetentionPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[subvolume] = p
}
