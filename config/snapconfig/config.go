// Package snapconfig loads the snapkeep configuration file.
package snapconfig

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	commonlog "github.com/devrig/snapkeep/common/log"
	"github.com/devrig/snapkeep/policy"
	"github.com/devrig/snapkeep/snapshot"
)

const (
	DefaultConfigDir  = "/etc/snapkeep"
	DefaultConfigPath = DefaultConfigDir + "/config.yaml"
	EnvPrefix         = "SNAPKEEP"
)

// Config is the complete snapkeep configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SNAPKEEP_*)
//  2. Configuration file
//  3. Default values
type Config struct {
	Logging commonlog.Config `mapstructure:"logging"`

	Store StoreConfig `mapstructure:"store"`

	// Timeouts bound every blocking store call.
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`

	Retry RetryConfig `mapstructure:"retry"`

	// Subvolumes maps subvolume name to its location and retention policy.
	Subvolumes map[string]SubvolumeConfig `mapstructure:"subvolumes" validate:"dive"`

	// Schedule lists timeline activations. Derived from the policies when empty.
	Schedule []ScheduleEntry `mapstructure:"schedule" validate:"dive"`

	// TickWindow is how far back a tick looks for due cron activations.
	TickWindow time.Duration `mapstructure:"tick_window" validate:"gt=0"`
}

// StoreConfig selects the filesystem adapter.
type StoreConfig struct {
	// Type is btrfs in production; memory keeps snapshots in process for dry runs.
	Type string `mapstructure:"type" validate:"required,oneof=btrfs memory"`

	// SnapshotRoot holds <subvolume>/<id>/snapshot trees. Required for btrfs.
	SnapshotRoot string `mapstructure:"snapshot_root"`

	BtrfsBinary string `mapstructure:"btrfs_binary" validate:"required"`

	// StateDir holds the restore session journal.
	StateDir string `mapstructure:"state_dir" validate:"required"`
}

type TimeoutsConfig struct {
	Create  time.Duration `mapstructure:"create" validate:"gt=0"`
	Delete  time.Duration `mapstructure:"delete" validate:"gt=0"`
	List    time.Duration `mapstructure:"list" validate:"gt=0"`
	Diff    time.Duration `mapstructure:"diff" validate:"gt=0"`
	Restore time.Duration `mapstructure:"restore" validate:"gt=0"`
	Hook    time.Duration `mapstructure:"hook" validate:"gt=0"`
}

type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
}

// SubvolumeConfig locates one subvolume. Policy is decoded by policy.Decode.
type SubvolumeConfig struct {
	Path       string                 `mapstructure:"path" validate:"required,startswith=/"`
	ActiveRoot bool                   `mapstructure:"active_root"`
	Policy     map[string]interface{} `mapstructure:"policy"`
}

type ScheduleEntry struct {
	Subvolume string `mapstructure:"subvolume" validate:"required"`
	Tier      string `mapstructure:"tier" validate:"required,oneof=hourly daily weekly monthly yearly"`
	Cron      string `mapstructure:"cron"`
}

// Load loads configuration from the OS filesystem. An empty configPath reads
// DefaultConfigPath when it exists.
func Load(configPath string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), configPath)
}

// LoadFs is Load reading the config file from fs.
func LoadFs(fs afero.Fs, configPath string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SNAPKEEP_LOGGING_LEVEL=debug
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(DefaultConfigDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file. Only a missing default file is tolerated.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Policies decodes the retention policy of every subvolume.
func (c *Config) Policies() (*policy.StaticStore, error) {
	policies := make(map[string]policy.RetentionPolicy, len(c.Subvolumes))
	for _, name := range c.SubvolumeNames() {
		p, err := policy.Decode(name, c.Subvolumes[name].Policy)
		if err != nil {
			return nil, err
		}
		policies[name] = p
	}
	return policy.NewStaticStore(policies), nil
}

// SubvolumeNames returns the configured subvolumes, sorted.
func (c *Config) SubvolumeNames() []string {
	names := make([]string, 0, len(c.Subvolumes))
	for name := range c.Subvolumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnapshotRetry converts the retry section for snapshot.Create and snapshot.Delete.
func (c *Config) SnapshotRetry() snapshot.RetryConfig {
	return snapshot.RetryConfig{
		MaxRetries:      c.Retry.MaxRetries,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
	}
}
