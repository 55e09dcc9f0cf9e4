package cleaner

import (
	"time"

	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
)

// Select splits snaps into the snapshots p keeps and the ones it removes.
//
// Unprotected timeline snapshots keep the newest Limit(tier) of each tier. The
// survivors, together with unprotected snapshots of untiered kinds, are then capped
// at the newest NumberLimit. Protected snapshots and snapshots younger than MinAge
// are always kept. Both results are ordered newest first.
func Select(snaps []snapshot.Snapshot, p policy.RetentionPolicy, now time.Time) (keep, remove []snapshot.Snapshot) {
	sorted := append([]snapshot.Snapshot(nil), snaps...)
	snapshot.SortNewestFirst(sorted)

	perTier := map[snapshot.Tier]int{}
	capped := 0
	for _, s := range sorted {
		if s.Protected || now.Sub(s.CreatedAt) < p.MinAge {
			keep = append(keep, s)
			if !s.Protected {
				// Young snapshots still occupy their slots.
				if t, ok := s.Kind.Tier(); ok {
					perTier[t]++
				}
				capped++
			}
			continue
		}

		if t, ok := s.Kind.Tier(); ok {
			if perTier[t] >= p.Limit(t) {
				remove = append(remove, s)
				continue
			}
			perTier[t]++
		}

		if p.NumberLimit > 0 && capped >= p.NumberLimit {
			remove = append(remove, s)
			continue
		}
		capped++
		keep = append(keep, s)
	}
	return keep, remove
}
