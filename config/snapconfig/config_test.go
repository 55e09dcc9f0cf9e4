package snapconfig

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrig/snapkeep/snapshot"
)

const sampleConfig = `
logging:
  level: debug
store:
  type: btrfs
  snapshot_root: /.snapshots
  state_dir: /var/lib/snapkeep
timeouts:
  hook: 2s
retry:
  max_retries: 5
subvolumes:
  home:
    path: /home
    policy:
      limits:
        hourly: 2
        daily: 7
      min_age: 1800
      number_limit: 20
      warn_threshold: 75
      critical_threshold: 90
  root:
    path: /
    active_root: true
schedule:
  - subvolume: home
    tier: hourly
    cron: "*/30 * * * *"
`

func writeConfig(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0644))
}

func TestLoadFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/snapkeep/config.yaml", sampleConfig)

	cfg, err := LoadFs(fs, "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Hook)
	assert.Equal(t, DefaultTimeouts.Restore, cfg.Timeouts.Restore)
	assert.Equal(t, uint64(5), cfg.Retry.MaxRetries)
	assert.Equal(t, snapshot.DefaultRetryConfig.InitialInterval, cfg.SnapshotRetry().InitialInterval)
	assert.Equal(t, DefaultTickWindow, cfg.TickWindow)
	assert.Equal(t, []string{"home", "root"}, cfg.SubvolumeNames())
	assert.True(t, cfg.Subvolumes["root"].ActiveRoot)
	require.Len(t, cfg.Schedule, 1)
	assert.Equal(t, "*/30 * * * *", cfg.Schedule[0].Cron)

	store, err := cfg.Policies()
	require.NoError(t, err)
	home, err := store.Policy("home")
	require.NoError(t, err)
	assert.Equal(t, 2, home.Limit(snapshot.TierHourly))
	assert.Equal(t, 30*time.Minute, home.MinAge)
	root, err := store.Policy("root")
	require.NoError(t, err)
	assert.Equal(t, 50, root.NumberLimit, "absent policy uses defaults")
}

func TestLoadFsExplicitPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/tmp/snapkeep.yaml", sampleConfig)
	_, err := LoadFs(fs, "/tmp/snapkeep.yaml")
	require.NoError(t, err)

	_, err = LoadFs(fs, "/tmp/missing.yaml")
	assert.Error(t, err)
}

func TestLoadFsEnvOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/etc/snapkeep/config.yaml", sampleConfig)
	os.Setenv("SNAPKEEP_TIMEOUTS_CREATE", "45s")
	defer os.Unsetenv("SNAPKEEP_TIMEOUTS_CREATE")

	cfg, err := LoadFs(fs, "")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Create)
}

func TestLoadFsValidation(t *testing.T) {
	tests := map[string]string{
		"no subvolumes": `
store:
  type: memory
`,
		"bad store type": `
store:
  type: zfs
subvolumes:
  home:
    path: /home
`,
		"relative path": `
subvolumes:
  home:
    path: home
`,
		"schedule unknown subvolume": `
subvolumes:
  home:
    path: /home
schedule:
  - subvolume: data
    tier: daily
`,
		"schedule bad tier": `
subvolumes:
  home:
    path: /home
schedule:
  - subvolume: home
    tier: minutely
`,
		"schedule bad cron": `
subvolumes:
  home:
    path: /home
schedule:
  - subvolume: home
    tier: daily
    cron: "every day"
`,
		"bad policy": `
subvolumes:
  home:
    path: /home
    policy:
      warn_threshold: 95
      critical_threshold: 80
`,
		"bad log level": `
logging:
  level: loud
subvolumes:
  home:
    path: /home
`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeConfig(t, fs, "/etc/snapkeep/config.yaml", body)
			_, err := LoadFs(fs, "")
			assert.Error(t, err)
		})
	}
}

func TestMissingDefaultFileUsesDefaults(t *testing.T) {
	// Without subvolumes the defaults alone never validate.
	_, err := LoadFs(afero.NewMemMapFs(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one subvolume")
}
