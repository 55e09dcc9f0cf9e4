package cli

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devrig/snapkeep/hooks"
	"github.com/devrig/snapkeep/hooks/repo"
	"github.com/devrig/snapkeep/snapshot"
)

type hookCommand struct {
	repo      string
	subvolume string
}

func (c *hookCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook <event> <before-ref> <after-ref>",
		Short: "snapshot the subvolume holding a git repository; run from git hooks",
		Long: "snapshot the subvolume holding a git repository. Events are pre-commit,\n" +
			"pre-rebase and post-checkout. HEAD as a ref is resolved to its commit.\n" +
			"Always exits 0 so git is never blocked.",
		// validated in run so that bad arguments are also advisory
		Args: cobra.ArbitraryArgs,
	}
	cmd.Flags().StringVar(&c.repo, "repo", "", "top level of the repository (default: the one containing the working directory)")
	cmd.Flags().StringVar(&c.subvolume, "subvolume", "", "subvolume to snapshot (default: the configured one containing the repository)")
	return cmd
}

func (c *hookCommand) advisory() {}

func (c *hookCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return snapshot.NewValidationError("hook takes <event> <before-ref> <after-ref>, got %d args", len(args))
	}
	event, err := hooks.ParseEvent(args[0])
	if err != nil {
		return err
	}

	var r *repo.Repository
	dir := c.repo
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		if r, err = repo.NewRepository(wd); err != nil {
			return fmt.Errorf("not a valid repo dir: %v, %v", wd, err)
		}
		dir = r.Dir()
	}
	dir = filepath.Clean(dir)

	before, after := args[1], args[2]
	if r == nil && (before == headRef || after == headRef) {
		if r, err = repo.NewRepository(dir); err != nil {
			log.Debugf("Cannot resolve %s in %s: %v", headRef, dir, err)
		}
	}
	before, after = resolveRef(r, before), resolveRef(r, after)

	subvolume := c.subvolume
	if subvolume == "" {
		if subvolume, err = env.Resolver().Resolve(dir); err != nil {
			return err
		}
	}

	d := env.Dispatcher(log.StandardLogger())
	req := d.OnVcsEvent(cmd.Context(), event, subvolume, filepath.Base(dir), before, after)
	if req == nil {
		log.Debugf("%s in %s needs no snapshot", event, dir)
	}
	return nil
}

// headRef is the ref the installed hook scripts pass for the current commit.
const headRef = "HEAD"

// resolveRef turns HEAD into the sha it points at so snapshot tags name a
// commit. A repository without commits keeps HEAD.
func resolveRef(r *repo.Repository, ref string) string {
	if ref != headRef || r == nil {
		return ref
	}
	if sha := r.Head(); sha != "" {
		return sha
	}
	return ref
}

type hookInstallCommand struct {
	force bool
}

func (c *hookInstallCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [repo]",
		Short: "install the snapkeep git hooks into a repository",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.Flags().BoolVar(&c.force, "force", false, "replace hooks that were not installed by snapkeep")
	return cmd
}

func (c *hookInstallCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	r, err := repo.NewRepository(abs)
	if err != nil {
		return snapshot.NewValidationError("not a valid repo dir: %v, %v", abs, err)
	}
	hooksDir, err := r.HooksDir()
	if err != nil {
		return err
	}
	binary, err := os.Executable()
	if err != nil {
		return err
	}
	configPath := env.ConfigPath
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return err
		}
	}
	written, err := hooks.Install(env.Fs, hooksDir, binary, configPath, c.force)
	for _, p := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", p)
	}
	if err != nil {
		return snapshot.NewValidationError("%v", err)
	}
	return nil
}
