package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devrig/snapkeep/cleaner"
	commonerrors "github.com/devrig/snapkeep/common/errors"
	"github.com/devrig/snapkeep/journal"
	"github.com/devrig/snapkeep/monitor"
	"github.com/devrig/snapkeep/snapshot"
)

// Kinds an operator may create by hand.
var manualKinds = []snapshot.Kind{snapshot.KindManual, snapshot.KindMilestone, snapshot.KindPreDeploy}

func parseID(s string) (snapshot.ID, error) {
	id, err := snapshot.ParseID(s)
	if err != nil {
		return 0, snapshot.NewValidationError("invalid snapshot id %q", s)
	}
	return id, nil
}

type createCommand struct {
	kind    string
	protect bool
}

func (c *createCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <subvolume> <description>",
		Short: "create a snapshot of a subvolume",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&c.kind, "kind", string(snapshot.KindManual), "milestone, manual or pre-deploy")
	cmd.Flags().BoolVar(&c.protect, "protect", false, "exempt the snapshot from retention")
	return cmd
}

func (c *createCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	kind, err := snapshot.ParseKind(c.kind)
	if err != nil {
		return err
	}
	allowed := false
	for _, k := range manualKinds {
		allowed = allowed || k == kind
	}
	if !allowed {
		return snapshot.NewValidationError("%s snapshots are taken automatically, use --kind milestone, manual or pre-deploy", kind)
	}

	req := snapshot.NewRequest(args[0], kind, args[1], nil)
	req.Protected = req.Protected || c.protect
	ctx, cancel := snapshot.WithTimeout(cmd.Context(), env.Config.Timeouts.Create)
	defer cancel()
	snap, err := snapshot.Create(ctx, env.Adapter, req, env.Config.SnapshotRetry().NewBackOff(ctx))
	if err != nil {
		return err
	}
	protected := ""
	if snap.Protected {
		protected = ", protected"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s#%d (%s%s)\n", snap.Subvolume, snap.ID, snap.Kind, protected)
	return nil
}

type listCommand struct{}

func (c *listCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:     "list <subvolume>",
		Aliases: []string{"ls"},
		Short:   "list the snapshots of a subvolume, newest first",
		Args:    cobra.ExactArgs(1),
	}
}

func (c *listCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	ctx, cancel := snapshot.WithTimeout(cmd.Context(), env.Config.Timeouts.List)
	defer cancel()
	snaps, err := snapshot.ListNewestFirst(ctx, env.Adapter, args[0])
	if err != nil {
		return err
	}
	return printSnapshots(cmd.OutOrStdout(), snaps, env.now())
}

type deleteCommand struct {
	force bool
}

func (c *deleteCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <subvolume> <id>",
		Short: "delete one snapshot",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().BoolVar(&c.force, "force", false, "also delete a protected snapshot")
	return cmd
}

func (c *deleteCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	subvolume := args[0]
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	listCtx, cancel := snapshot.WithTimeout(cmd.Context(), env.Config.Timeouts.List)
	snaps, err := env.Adapter.ListSnapshots(listCtx, subvolume)
	cancel()
	if err != nil {
		return err
	}
	snap, err := snapshot.Find(snaps, subvolume, id)
	if err != nil {
		return err
	}
	if snap.Protected && !c.force {
		return snapshot.NewValidationError("%s is protected, use --force to delete it", snap)
	}

	ctx, cancel := snapshot.WithTimeout(cmd.Context(), env.Config.Timeouts.Delete)
	defer cancel()
	err = snapshot.Delete(ctx, env.Adapter, subvolume, id, env.Config.SnapshotRetry().NewBackOff(ctx))
	if err != nil && !snapshot.IsConcurrency(err) {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s#%d\n", subvolume, id)
	return nil
}

type diffCommand struct{}

func (c *diffCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <subvolume> <id>",
		Short: "list the paths where the live subvolume differs from a snapshot",
		Long: "list the paths where the live subvolume differs from a snapshot.\n" +
			"+ exists only in the live subvolume, - only in the snapshot, ~ in both with different content.",
		Args: cobra.ExactArgs(2),
	}
}

func (c *diffCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	ctx, cancel := snapshot.WithTimeout(cmd.Context(), env.Config.Timeouts.Diff)
	defer cancel()
	changes, err := env.Adapter.Diff(ctx, args[0], id)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is identical to #%d\n", args[0], id)
		return nil
	}
	printChanges(cmd.OutOrStdout(), changes)
	return nil
}

type reconcileCommand struct{}

func (c *reconcileCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <subvolume>...",
		Short: "delete the snapshots the retention policy no longer keeps",
		Args:  cobra.MinimumNArgs(1),
	}
}

func (c *reconcileCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	engine := env.Engine()
	var failed []error
	for _, sv := range args {
		res, err := engine.Reconcile(cmd.Context(), sv)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), sv, res)
		failed = append(failed, res.Errors...)
	}
	if len(failed) > 0 {
		err := errors.Wrapf(failed[0], "%d snapshot(s) could not be deleted and will be retried on the next pass", len(failed))
		return commonerrors.NewError(err, commonerrors.FilesystemExitCode)
	}
	return nil
}

type statusCommand struct {
	metricsFile string
}

func (c *statusCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [subvolume...]",
		Short: "report space usage, snapshot counts and alerts",
		Long:  "report space usage, snapshot counts and alerts for the given subvolumes, or all configured ones.",
	}
	cmd.Flags().StringVar(&c.metricsFile, "metrics-file", "",
		"also write the reports to this file in the Prometheus textfile format")
	return cmd
}

func (c *statusCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	m := env.Monitor()
	var reports []monitor.Report
	for _, sv := range env.subvolumes(args) {
		r, err := m.Report(cmd.Context(), sv)
		if err != nil {
			return err
		}
		if err := printReport(cmd.OutOrStdout(), r); err != nil {
			return err
		}
		reports = append(reports, r)
	}
	if c.metricsFile != "" {
		if err := monitor.WriteTextfile(c.metricsFile, reports); err != nil {
			return snapshot.NewFilesystemError("write metrics", "", 0, err)
		}
	}
	return nil
}

type tickCommand struct {
	noReconcile bool
}

func (c *tickCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "take the timeline snapshots that are due, then apply retention",
		Long: "take the timeline snapshots whose schedule fired within tick_window, then reconcile\n" +
			"every configured subvolume. Meant to be run from a timer; failures are logged, never returned.",
		Args: cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&c.noReconcile, "no-reconcile", false, "only take snapshots")
	return cmd
}

func (c *tickCommand) advisory() {}

func (c *tickCommand) run(env *Env, cmd *cobra.Command, _ []string) error {
	entries, err := env.Entries()
	if err != nil {
		return err
	}
	for _, s := range env.Scheduler().Run(cmd.Context(), entries, env.now(), env.Config.TickWindow) {
		fmt.Fprintf(cmd.OutOrStdout(), "created %s#%d (%s)\n", s.Subvolume, s.ID, s.Kind)
	}
	if c.noReconcile {
		return nil
	}
	engine := env.Engine()
	for _, sv := range env.Policies.Subvolumes() {
		res, err := engine.Reconcile(cmd.Context(), sv)
		if err != nil {
			log.WithField("subvolume", sv).Errorf("Reconcile failed: %v", err)
			continue
		}
		printResult(cmd.OutOrStdout(), sv, res)
	}
	return nil
}

type watchCommand struct {
	interval time.Duration
}

func (c *watchCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "run tick every interval until interrupted",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().DurationVar(&c.interval, "interval", 5*time.Minute, "time between ticks")
	return cmd
}

func (c *watchCommand) run(env *Env, cmd *cobra.Command, _ []string) error {
	if c.interval <= 0 {
		return snapshot.NewValidationError("--interval must be positive")
	}
	entries, err := env.Entries()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sched := env.Scheduler()
	takeSnapshots := func(ctx context.Context) error {
		sched.Run(ctx, entries, env.now(), c.interval)
		return nil
	}
	log.Infof("Watching %d schedule entries every %s", len(entries), c.interval)
	updater := cleaner.NewCleaningUpdater(c.interval, cleaner.NewSnapshotCleaner(env.Engine(), env.Policies), takeSnapshots)
	cleaner.Run(ctx, updater)
	return nil
}

type sessionsCommand struct{}

func (c *sessionsCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions [session]",
		Short: "list restore sessions, or show the journal of one",
		Args:  cobra.MaximumNArgs(1),
	}
}

func (c *sessionsCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		entries, err := env.Journal.Entries(args[0])
		if err != nil {
			return err
		}
		if entries == nil {
			return snapshot.NewValidationError("no restore session %s", args[0])
		}
		for _, e := range entries {
			fmt.Fprintln(out, e)
		}
		return nil
	}

	ids, err := env.Journal.Sessions()
	if err != nil {
		return err
	}
	var states []*journal.State
	for _, id := range ids {
		s, err := journal.GetState(env.Journal, id)
		if err != nil {
			log.WithField("session", id).Warnf("Unreadable session: %v", err)
			continue
		}
		states = append(states, s)
	}
	return printSessions(out, states)
}
