package cli

// package cli implements the snapkeep operator CLI on top of cobra. How does main
// get to choose the adapter while tests run the very same commands against a fake?
//
// main.go defines its own impl of Injector and constructs it.
//
// main.go calls MakeCLI with that Injector.
//
// MakeCLI calls Injector.RegisterFlags, which registers the flags main needs to build
//   an Env (config file path, log level).
//
// MakeCLI creates the cobra commands and subcommands
//   (for each cobra command, there is one command)
//   creating the cobra command involves:
//     calling command.register(), which registers the command's own flags
//     setting RunE to a wrapper that calls Injector.Inject()
//
// main.go calls cmd.ExecuteContext(ctx); cobra parses the flags and calls RunE.
//
// The wrapper calls Injector.Inject() to construct the Env, then command.run() with
// the Env, the cobra command (which holds the registered flags) and the remaining
// command-line args.
//
// command.run() does the work against the Env. Output goes to cmd.OutOrStdout() and
// prompts read cmd.InOrStdin(), so tests drive commands through SetOut, SetIn and SetArgs.
import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Injector interface {
	RegisterFlags(cmd *cobra.Command)
	Inject() (*Env, error)
}

// MakeCLI builds the root snapkeep command. Errors are returned from Execute
// unprinted; map them with ErrorKind and ExitCodeFor.
func MakeCLI(injector Injector) *cobra.Command {
	rootCobraCmd := &cobra.Command{
		Use:           "snapkeep",
		Short:         "snapshot lifecycle manager for copy-on-write subvolumes",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	injector.RegisterFlags(rootCobraCmd)

	var printStats bool
	rootCobraCmd.PersistentFlags().BoolVar(&printStats, "stats", false, "print collected stats as JSON after the command")

	add := func(subCmd command, parentCobraCmd *cobra.Command) *cobra.Command {
		cmd := subCmd.register()
		cmd.RunE = func(innerCmd *cobra.Command, args []string) error {
			env, err := injector.Inject()
			if err == nil {
				err = subCmd.run(env, innerCmd, args)
				if printStats && env.Stat != nil {
					fmt.Fprintln(innerCmd.OutOrStdout(), string(env.Stat.Render(true)))
				}
			}
			if _, ok := subCmd.(advisory); ok && err != nil {
				// git hooks and timers must never see a failure
				log.Warnf("%s: %v", innerCmd.CommandPath(), err)
				return nil
			}
			return err
		}
		parentCobraCmd.AddCommand(cmd)
		return cmd
	}

	add(&createCommand{}, rootCobraCmd)
	add(&listCommand{}, rootCobraCmd)
	add(&deleteCommand{}, rootCobraCmd)
	add(&diffCommand{}, rootCobraCmd)
	add(&restoreCommand{}, rootCobraCmd)
	add(&reconcileCommand{}, rootCobraCmd)
	add(&statusCommand{}, rootCobraCmd)
	add(&tickCommand{}, rootCobraCmd)
	add(&watchCommand{}, rootCobraCmd)
	add(&sessionsCommand{}, rootCobraCmd)

	hookCobraCmd := add(&hookCommand{}, rootCobraCmd)
	add(&hookInstallCommand{}, hookCobraCmd)

	return rootCobraCmd
}

type command interface {
	register() *cobra.Command
	run(env *Env, cmd *cobra.Command, args []string) error
}

// advisory commands log their failure and exit 0.
type advisory interface {
	advisory()
}
