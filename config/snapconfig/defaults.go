package snapconfig

import (
	"time"

	"github.com/spf13/viper"

	"github.com/devrig/snapkeep/snapshot"
)

const (
	DefaultStoreType    = "btrfs"
	DefaultBtrfsBinary  = "btrfs"
	DefaultSnapshotRoot = "/.snapshots"
	DefaultStateDir     = "/var/lib/snapkeep"
	DefaultTickWindow   = 5 * time.Minute
)

// DefaultTimeouts are short for the hook path, which a developer waits on, and
// long for restores, which copy data.
var DefaultTimeouts = TimeoutsConfig{
	Create:  30 * time.Second,
	Delete:  60 * time.Second,
	List:    15 * time.Second,
	Diff:    5 * time.Minute,
	Restore: 30 * time.Minute,
	Hook:    5 * time.Second,
}

// registerDefaults lets SNAPKEEP_* variables override keys absent from the file.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("store.type", DefaultStoreType)
	v.SetDefault("store.snapshot_root", DefaultSnapshotRoot)
	v.SetDefault("store.btrfs_binary", DefaultBtrfsBinary)
	v.SetDefault("store.state_dir", DefaultStateDir)
	v.SetDefault("timeouts.create", DefaultTimeouts.Create)
	v.SetDefault("timeouts.delete", DefaultTimeouts.Delete)
	v.SetDefault("timeouts.list", DefaultTimeouts.List)
	v.SetDefault("timeouts.diff", DefaultTimeouts.Diff)
	v.SetDefault("timeouts.restore", DefaultTimeouts.Restore)
	v.SetDefault("timeouts.hook", DefaultTimeouts.Hook)
	v.SetDefault("retry.max_retries", snapshot.DefaultRetryConfig.MaxRetries)
	v.SetDefault("retry.initial_interval", snapshot.DefaultRetryConfig.InitialInterval)
	v.SetDefault("retry.max_interval", snapshot.DefaultRetryConfig.MaxInterval)
	v.SetDefault("tick_window", DefaultTickWindow)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced, explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = DefaultStoreType
	}
	if cfg.Store.BtrfsBinary == "" {
		cfg.Store.BtrfsBinary = DefaultBtrfsBinary
	}
	if cfg.Store.StateDir == "" {
		cfg.Store.StateDir = DefaultStateDir
	}
	applyTimeoutDefaults(&cfg.Timeouts)
	if cfg.Retry.InitialInterval == 0 {
		cfg.Retry.InitialInterval = snapshot.DefaultRetryConfig.InitialInterval
	}
	if cfg.Retry.MaxInterval == 0 {
		cfg.Retry.MaxInterval = snapshot.DefaultRetryConfig.MaxInterval
	}
	if cfg.TickWindow == 0 {
		cfg.TickWindow = DefaultTickWindow
	}
}

func applyTimeoutDefaults(t *TimeoutsConfig) {
	if t.Create == 0 {
		t.Create = DefaultTimeouts.Create
	}
	if t.Delete == 0 {
		t.Delete = DefaultTimeouts.Delete
	}
	if t.List == 0 {
		t.List = DefaultTimeouts.List
	}
	if t.Diff == 0 {
		t.Diff = DefaultTimeouts.Diff
	}
	if t.Restore == 0 {
		t.Restore = DefaultTimeouts.Restore
	}
	if t.Hook == 0 {
		t.Hook = DefaultTimeouts.Hook
	}
}
