package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/devrig/snapkeep/cleaner"
	"github.com/devrig/snapkeep/journal"
	"github.com/devrig/snapkeep/monitor"
	"github.com/devrig/snapkeep/restore"
	"github.com/devrig/snapkeep/snapshot"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func age(now, t time.Time) string {
	return units.HumanDuration(now.Sub(t)) + " ago"
}

func printSnapshots(w io.Writer, snaps []snapshot.Snapshot, now time.Time) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCREATED\tKIND\tPROTECTED\tDESCRIPTION")
	for _, s := range snaps {
		protected := ""
		if s.Protected {
			protected = "yes"
		}
		desc := s.Description
		if len(s.Tags) > 0 {
			desc += " " + color.HiBlackString("[%s]", s.Tags)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			s.ID, age(now, s.CreatedAt), s.Kind, protected, desc)
	}
	return tw.Flush()
}

func changeMark(c snapshot.Change) string {
	switch c {
	case snapshot.Added:
		return color.GreenString("+")
	case snapshot.Removed:
		return color.RedString("-")
	}
	return color.YellowString("~")
}

// printChanges numbers each change from 1 so the operator can select by number.
func printChanges(w io.Writer, changes []snapshot.PathChange) {
	for i, c := range changes {
		fmt.Fprintf(w, "%4d %s %s\n", i+1, changeMark(c.Change), c.Path)
	}
}

func printResult(w io.Writer, subvolume string, res cleaner.Result) {
	for _, s := range res.Deleted {
		fmt.Fprintf(w, "deleted %s#%d %s\n", subvolume, s.ID, color.HiBlackString("(%s)", s.Kind))
	}
	for _, err := range res.Errors {
		fmt.Fprintf(w, "%s %v\n", color.RedString("failed"), err)
	}
	fmt.Fprintf(w, "%s: kept %d, deleted %d, failed %d\n", subvolume, len(res.Kept), len(res.Deleted), len(res.Errors))
}

func severityString(s monitor.Severity) string {
	switch s {
	case monitor.Critical:
		return color.RedString(string(s))
	case monitor.Warning:
		return color.YellowString(string(s))
	}
	return color.GreenString("ok")
}

func printReport(w io.Writer, r monitor.Report) error {
	fmt.Fprintf(w, "%s: %s\n", r.Subvolume, severityString(r.Severity()))
	tw := newTable(w)
	fmt.Fprintf(tw, "  used\t%.1f%%\n", r.UsedPercent)
	fmt.Fprintf(tw, "  free\t%s of %s\n",
		units.HumanSize(float64(r.FreeBytes)), units.HumanSize(float64(r.TotalBytes)))
	fmt.Fprintf(tw, "  snapshots\t%d (%d protected)\n", r.SnapshotCount, r.ProtectedCount)
	if r.SnapshotCount > 0 {
		fmt.Fprintf(tw, "  oldest\t%s\n", units.HumanDuration(r.OldestSnapshotAge))
	}
	var tiers []string
	for _, t := range snapshot.Tiers {
		if n := r.TierCounts[t]; n > 0 {
			tiers = append(tiers, fmt.Sprintf("%s=%d", t, n))
		}
	}
	if len(tiers) > 0 {
		fmt.Fprintf(tw, "  tiers\t%s\n", strings.Join(tiers, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, a := range r.Alerts {
		fmt.Fprintf(w, "  %s %s\n", severityString(a.Severity), a.Message)
	}
	return nil
}

func printOutcome(w io.Writer, out restore.Outcome) {
	for _, p := range out.Restored {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("restored"), p)
	}
	for _, f := range out.Failed {
		fmt.Fprintf(w, "%s %s: %v\n", color.RedString("failed"), f.Path, f.Err)
	}
	for _, p := range out.Skipped {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("skipped"), p)
	}
	fmt.Fprintf(w, "%s (safety snapshot #%d)\n", out.State, out.SafetySnapshot)
}

func printSessions(w io.Writer, states []*journal.State) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SESSION\tSUBVOLUME\tSOURCE\tSAFETY\tSTATUS")
	for _, s := range states {
		safety := "-"
		if s.SafetySnapshot != 0 {
			safety = fmt.Sprintf("#%d", s.SafetySnapshot)
		}
		fmt.Fprintf(tw, "%s\t%s\t#%d\t%s\t%s\n", s.ID, s.Subvolume, s.Source, safety, sessionStatus(s))
	}
	return tw.Flush()
}

func sessionStatus(s *journal.State) string {
	switch {
	case s.Ended:
		return s.Outcome
	case len(s.InProgress()) > 0:
		return color.RedString("interrupted during %s", strings.Join(s.InProgress(), ", "))
	case s.RolledBack:
		return color.RedString("interrupted during rollback")
	}
	return "open"
}
