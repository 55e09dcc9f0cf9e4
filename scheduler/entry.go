package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
)

// DefaultCron gives each tier a standard five-field activation.
var DefaultCron = map[snapshot.Tier]string{
	snapshot.TierHourly:  "0 * * * *",
	snapshot.TierDaily:   "0 0 * * *",
	snapshot.TierWeekly:  "0 0 * * 0",
	snapshot.TierMonthly: "0 0 1 * *",
	snapshot.TierYearly:  "0 0 1 1 *",
}

// Entry is one (subvolume, tier, cron expression) activation.
type Entry struct {
	Subvolume string
	Tier      snapshot.Tier
	Cron      string

	schedule cron.Schedule
}

// NewEntry parses expr, falling back to DefaultCron for tier when expr is empty.
func NewEntry(subvolume string, tier snapshot.Tier, expr string) (Entry, error) {
	if expr == "" {
		expr = DefaultCron[tier]
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Entry{}, snapshot.NewValidationError("invalid cron %q for %s/%s: %v", expr, subvolume, tier, err)
	}
	return Entry{Subvolume: subvolume, Tier: tier, Cron: expr, schedule: sched}, nil
}

// Due reports whether the entry has an activation in (now-window, now].
func (e Entry) Due(now time.Time, window time.Duration) bool {
	if e.schedule == nil {
		return false
	}
	next := e.schedule.Next(now.Add(-window))
	return !next.IsZero() && !next.After(now)
}

func (e Entry) String() string {
	return fmt.Sprintf("%s/%s %q", e.Subvolume, e.Tier, e.Cron)
}

// DefaultEntries derives one entry per enabled tier of every subvolume in store.
func DefaultEntries(store policy.Store) ([]Entry, error) {
	var entries []Entry
	for _, sv := range store.Subvolumes() {
		p, err := store.Policy(sv)
		if err != nil {
			return nil, err
		}
		for _, t := range snapshot.Tiers {
			if p.Limit(t) == 0 {
				continue
			}
			e, err := NewEntry(sv, t, "")
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}
