package cli

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/devrig/snapkeep/cleaner"
	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/config/snapconfig"
	"github.com/devrig/snapkeep/hooks"
	"github.com/devrig/snapkeep/journal"
	"github.com/devrig/snapkeep/monitor"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/restore"
	"github.com/devrig/snapkeep/scheduler"
	"github.com/devrig/snapkeep/snapshot"
)

// Env is everything a command needs, built once per invocation by an Injector.
type Env struct {
	Config *snapconfig.Config

	// ConfigPath is the file Config was read from, "" for built-in defaults.
	ConfigPath string

	Adapter  snapshot.Adapter
	Policies policy.Store
	Journal  journal.Journal
	Stat     stats.StatsReceiver

	// Fs is where hook scripts are installed.
	Fs afero.Fs

	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) Scheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(e.Adapter, e.Policies, scheduler.Config{
		Retry:         e.Config.SnapshotRetry(),
		ListTimeout:   e.Config.Timeouts.List,
		CreateTimeout: e.Config.Timeouts.Create,
	}, e.Stat)
}

func (e *Env) Engine() *cleaner.Engine {
	engine := cleaner.NewEngine(e.Adapter, e.Policies, cleaner.Config{
		Retry:         e.Config.SnapshotRetry(),
		ListTimeout:   e.Config.Timeouts.List,
		DeleteTimeout: e.Config.Timeouts.Delete,
	}, e.Stat)
	engine.Now = e.now
	return engine
}

func (e *Env) Orchestrator() *restore.Orchestrator {
	return restore.NewOrchestrator(e.Adapter, e.Journal, restore.Config{
		ListTimeout:    e.Config.Timeouts.List,
		DiffTimeout:    e.Config.Timeouts.Diff,
		CreateTimeout:  e.Config.Timeouts.Create,
		RestoreTimeout: e.Config.Timeouts.Restore,
		Retry:          e.Config.SnapshotRetry(),
	}, e.Stat)
}

func (e *Env) Monitor() *monitor.Monitor {
	m := monitor.NewMonitor(e.Adapter, e.Policies, monitor.Config{
		ListTimeout:  e.Config.Timeouts.List,
		UsageTimeout: e.Config.Timeouts.List,
	}, e.Stat)
	m.Now = e.now
	return m
}

func (e *Env) Dispatcher(logger logrus.FieldLogger) *hooks.Dispatcher {
	return hooks.NewDispatcher(e.Adapter, hooks.Config{
		Timeout: e.Config.Timeouts.Hook,
		Retry:   e.Config.SnapshotRetry(),
	}, logger, e.Stat)
}

// Entries returns the configured schedule, or one default entry per enabled tier.
func (e *Env) Entries() ([]scheduler.Entry, error) {
	if len(e.Config.Schedule) == 0 {
		return scheduler.DefaultEntries(e.Policies)
	}
	entries := make([]scheduler.Entry, 0, len(e.Config.Schedule))
	for _, s := range e.Config.Schedule {
		tier, err := snapshot.ParseTier(s.Tier)
		if err != nil {
			return nil, err
		}
		entry, err := scheduler.NewEntry(s.Subvolume, tier, s.Cron)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Resolver maps repository directories to the configured subvolumes.
func (e *Env) Resolver() *hooks.Resolver {
	paths := make(map[string]string, len(e.Config.Subvolumes))
	for name, sv := range e.Config.Subvolumes {
		paths[name] = sv.Path
	}
	return hooks.NewResolver(paths)
}

// subvolumes returns args, or every configured subvolume when args is empty.
func (e *Env) subvolumes(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return e.Policies.Subvolumes()
}
