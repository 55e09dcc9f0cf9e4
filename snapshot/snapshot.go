package snapshot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ID is assigned by the store and increases monotonically per subvolume.
type ID uint64

func (id ID) String() string { return fmt.Sprintf("%d", id) }

// ParseID parses the decimal form printed by the CLI.
func ParseID(s string) (ID, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, NewValidationError("invalid snapshot id %q", s)
	}
	return ID(id), nil
}

type Kind string

const (
	KindHourly           Kind = "timeline-hourly"
	KindDaily            Kind = "timeline-daily"
	KindWeekly           Kind = "timeline-weekly"
	KindMonthly          Kind = "timeline-monthly"
	KindYearly           Kind = "timeline-yearly"
	KindMilestone        Kind = "milestone"
	KindPreDeploy        Kind = "pre-deploy"
	KindHookPreCommit    Kind = "hook-pre-commit"
	KindHookPreRebase    Kind = "hook-pre-rebase"
	KindHookPostCheckout Kind = "hook-post-checkout"
	KindPreRestore       Kind = "pre-restore"
	KindManual           Kind = "manual"
)

var allKinds = []Kind{
	KindHourly, KindDaily, KindWeekly, KindMonthly, KindYearly,
	KindMilestone, KindPreDeploy,
	KindHookPreCommit, KindHookPreRebase, KindHookPostCheckout,
	KindPreRestore, KindManual,
}

func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", NewValidationError("unknown snapshot kind %q", s)
}

// Tier returns the retention bucket of a timeline kind, ok is false for every other kind.
func (k Kind) Tier() (t Tier, ok bool) {
	switch k {
	case KindHourly:
		return TierHourly, true
	case KindDaily:
		return TierDaily, true
	case KindWeekly:
		return TierWeekly, true
	case KindMonthly:
		return TierMonthly, true
	case KindYearly:
		return TierYearly, true
	}
	return "", false
}

// DefaultProtected reports whether snapshots of this kind are exempt from automatic deletion.
func (k Kind) DefaultProtected() bool {
	switch k {
	case KindMilestone, KindManual, KindPreRestore:
		return true
	}
	return false
}

type Tier string

const (
	TierHourly  Tier = "hourly"
	TierDaily   Tier = "daily"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
	TierYearly  Tier = "yearly"
)

// Tiers lists every tier from the most to the least frequent.
var Tiers = []Tier{TierHourly, TierDaily, TierWeekly, TierMonthly, TierYearly}

func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == strings.ToLower(s) {
			return t, nil
		}
	}
	return "", NewValidationError("unknown tier %q", s)
}

func (t Tier) Kind() Kind {
	return Kind("timeline-" + string(t))
}

// Tags carries VCS metadata such as the repository and the ref transition.
type Tags map[string]string

func (t Tags) String() string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+t[k])
	}
	return strings.Join(parts, ",")
}

// Snapshot is never mutated once created.
type Snapshot struct {
	ID          ID
	Subvolume   string
	CreatedAt   time.Time
	Kind        Kind
	Description string
	Tags        Tags
	Protected   bool
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s#%d(%s)", s.Subvolume, s.ID, s.Kind)
}

type Change string

const (
	Added    Change = "added"
	Removed  Change = "removed"
	Modified Change = "modified"
)

// PathChange describes how the live subvolume differs from a snapshot at Path.
// Path is relative to the subvolume root and slash separated.
type PathChange struct {
	Path   string
	Change Change
}

type Usage struct {
	UsedPercent float64
	FreeBytes   uint64
	TotalBytes  uint64
}

// Request asks for one snapshot to be created. Produced by the scheduler, the hook
// dispatcher and the CLI; executed by Create.
type Request struct {
	Subvolume   string
	Kind        Kind
	Description string
	Tags        Tags
	Protected   bool
}

func NewRequest(subvolume string, kind Kind, description string, tags Tags) Request {
	return Request{
		Subvolume:   subvolume,
		Kind:        kind,
		Description: description,
		Tags:        tags,
		Protected:   kind.DefaultProtected(),
	}
}

// SortNewestFirst orders by creation time, newest first, breaking ties by id.
func SortNewestFirst(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID > snaps[j].ID
		}
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
}

// Newest returns the most recent snapshot of kind, ok is false when there is none.
func Newest(snaps []Snapshot, kind Kind) (newest Snapshot, ok bool) {
	for _, s := range snaps {
		if s.Kind != kind {
			continue
		}
		if !ok || s.CreatedAt.After(newest.CreatedAt) {
			newest, ok = s, true
		}
	}
	return newest, ok
}

// Find returns the snapshot with id, or a NotFoundError.
func Find(snaps []Snapshot, subvolume string, id ID) (Snapshot, error) {
	for _, s := range snaps {
		if s.ID == id {
			return s, nil
		}
	}
	return Snapshot{}, NewNotFoundError(subvolume, id)
}
