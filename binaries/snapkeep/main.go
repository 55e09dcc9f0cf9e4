package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/luci/go-render/render"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	commonlog "github.com/devrig/snapkeep/common/log"
	"github.com/devrig/snapkeep/common/os/exec"
	"github.com/devrig/snapkeep/common/stats"
	"github.com/devrig/snapkeep/config/snapconfig"
	"github.com/devrig/snapkeep/journal"
	"github.com/devrig/snapkeep/snapshot"
	"github.com/devrig/snapkeep/snapshot/btrfs"
	"github.com/devrig/snapkeep/snapshot/cli"
	"github.com/devrig/snapkeep/snapshot/snapshots"
)

// How long a btrfs child gets between SIGTERM and SIGKILL once its deadline passes.
const killTimeout = 5 * time.Second

func main() {
	inj := &injector{}
	cmd := cli.MakeCLI(inj)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	inj.close()
	if ece := cli.Classify(err); ece != nil {
		fmt.Fprintf(os.Stderr, "snapkeep: %s: %v\n", cli.ErrorKind(err), ece)
		os.Exit(int(ece.GetExitCode()))
	}
}

type injector struct {
	configPath string
	logLevel   string

	logCloser io.Closer
}

func (i *injector) RegisterFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&i.configPath, "config", "",
		fmt.Sprintf("config file (default $%s, then %s)", snapconfig.ConfigEnvVar, snapconfig.DefaultConfigPath))
	rootCmd.PersistentFlags().StringVar(&i.logLevel, "log-level", "",
		"Log everything at this level and above (error|warn|info|debug), overrides logging.level")
}

func (i *injector) Inject() (*cli.Env, error) {
	fs := afero.NewOsFs()
	path := snapconfig.ResolvePath(fs, i.configPath)
	cfg, err := snapconfig.LoadFs(fs, path)
	if err != nil {
		return nil, err
	}
	if i.logLevel != "" {
		cfg.Logging.Level = i.logLevel
	}
	if i.logCloser, err = commonlog.Configure(cfg.Logging); err != nil {
		return nil, err
	}
	log.Debugf("Loaded config %q: %s", path, render.Render(cfg))

	policies, err := cfg.Policies()
	if err != nil {
		return nil, err
	}

	env := &cli.Env{
		Config:     cfg,
		ConfigPath: path,
		Policies:   policies,
		Stat:       stats.DefaultStatsReceiver(),
		Fs:         fs,
	}
	switch cfg.Store.Type {
	case "memory":
		log.Warn("Using the in-memory store, nothing outlives this process")
		env.Adapter = snapshots.NewFakeAdapter(cfg.SubvolumeNames()...)
		env.Journal = journal.NewMemoryJournal()
	default:
		env.Adapter = newBtrfsAdapter(fs, cfg)
		if env.Journal, err = journal.NewFileJournal(fs, filepath.Join(cfg.Store.StateDir, "sessions")); err != nil {
			return nil, snapshot.NewFilesystemError("open journal", "", 0, err)
		}
	}
	return env, nil
}

func newBtrfsAdapter(fs afero.Fs, cfg *snapconfig.Config) *btrfs.Adapter {
	subvolumes := make(map[string]btrfs.Subvolume, len(cfg.Subvolumes))
	for name, sv := range cfg.Subvolumes {
		subvolumes[name] = btrfs.Subvolume{Path: sv.Path, ActiveRoot: sv.ActiveRoot}
	}
	return btrfs.NewAdapter(fs, exec.NewRunner(nil, killTimeout), btrfs.Config{
		SnapshotRoot: cfg.Store.SnapshotRoot,
		Binary:       cfg.Store.BtrfsBinary,
		Subvolumes:   subvolumes,
	})
}

func (i *injector) close() {
	if i.logCloser != nil {
		i.logCloser.Close()
	}
}
