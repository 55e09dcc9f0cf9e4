package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devrig/snapkeep/restore"
	"github.com/devrig/snapkeep/snapshot"
)

type restoreCommand struct {
	full    bool
	yes     bool
	confirm string
}

func (c *restoreCommand) register() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <subvolume> <id> [path...]",
		Short: "restore paths, or the whole subvolume, from a snapshot",
		Long: "restore paths from a snapshot. Without paths the differences are listed and\n" +
			"restored by number. A protected pre-restore snapshot of the live subvolume is\n" +
			"always taken before anything is overwritten.\n\n" +
			"--full replaces the whole subvolume and requires typing the confirmation phrase\n" +
			"ROLLBACK <subvolume> TO <id>, which --yes does not skip.",
		Args: cobra.MinimumNArgs(2),
	}
	cmd.Flags().BoolVar(&c.full, "full", false, "roll the whole subvolume back to the snapshot")
	cmd.Flags().BoolVarP(&c.yes, "yes", "y", false, "do not ask before restoring paths")
	cmd.Flags().StringVar(&c.confirm, "confirm", "", "rollback confirmation phrase, instead of prompting for it")
	return cmd
}

func (c *restoreCommand) run(env *Env, cmd *cobra.Command, args []string) error {
	subvolume, paths := args[0], args[2:]
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	if c.full && len(paths) > 0 {
		return snapshot.NewValidationError("--full restores the whole subvolume and takes no paths")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	session, err := env.Orchestrator().Begin(ctx, subvolume, id)
	if err != nil {
		return err
	}
	if c.full {
		if err := session.CheckRollback(ctx); err != nil {
			return err
		}
	}
	changes, err := session.Review(ctx)
	if err != nil {
		return err
	}

	if c.full {
		return c.rollback(cmd, session, changes, in)
	}

	if len(paths) == 0 {
		if len(changes) == 0 {
			fmt.Fprintf(out, "%s is identical to #%d, nothing to restore\n", subvolume, id)
			return nil
		}
		printChanges(out, changes)
		if paths, err = selectPaths(in, out, changes); err != nil {
			return err
		}
	}
	if !c.yes {
		q := fmt.Sprintf("Restore %d path(s) of %s from #%d?", len(paths), subvolume, id)
		if err := confirm(in, out, q); err != nil {
			return err
		}
	}

	safety, err := session.TakeSafetySnapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "safety snapshot %s#%d taken\n", safety.Subvolume, safety.ID)
	outcome, err := session.RestorePaths(ctx, paths)
	if err != nil {
		return err
	}
	printOutcome(out, outcome)
	return outcome.Err()
}

func (c *restoreCommand) rollback(cmd *cobra.Command, session *restore.Session, changes []snapshot.PathChange, in *bufio.Reader) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d path(s) differ from #%d. All changes since then will be replaced.\n", len(changes), session.Source.ID)

	phrase := restore.ConfirmationPhrase(session.Source.Subvolume, session.Source.ID)
	typed := c.confirm
	if typed == "" {
		fmt.Fprintf(out, "Type %q to continue: ", phrase)
		line, err := readLine(in)
		if err != nil {
			return snapshot.NewAbortedError("no confirmation given")
		}
		typed = line
	}
	// A wrong phrase aborts before the safety snapshot is taken.
	if typed != phrase {
		return snapshot.NewAbortedError("rollback needs the confirmation %q", phrase)
	}

	safety, err := session.TakeSafetySnapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "safety snapshot %s#%d taken\n", safety.Subvolume, safety.ID)
	outcome, err := session.Rollback(ctx, typed)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s rolled back to #%d (safety snapshot #%d)\n",
		session.Source.Subvolume, session.Source.ID, outcome.SafetySnapshot)
	return nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm returns an AbortedError unless the operator answers yes.
func confirm(in *bufio.Reader, out io.Writer, question string) error {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := readLine(in)
	if err != nil {
		return snapshot.NewAbortedError("no answer")
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return snapshot.NewAbortedError("declined")
}

// selectPaths prompts for numbers from the listed changes, e.g. "1 3 5-7" or "all".
func selectPaths(in *bufio.Reader, out io.Writer, changes []snapshot.PathChange) ([]string, error) {
	for {
		fmt.Fprint(out, "Paths to restore (numbers, ranges or all; empty to abort): ")
		line, err := readLine(in)
		if err != nil {
			return nil, snapshot.NewAbortedError("no paths selected")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, snapshot.NewAbortedError("no paths selected")
		}
		paths, err := parseSelection(line, changes)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		return paths, nil
	}
}

func parseSelection(line string, changes []snapshot.PathChange) ([]string, error) {
	if strings.EqualFold(line, "all") {
		paths := make([]string, len(changes))
		for i, c := range changes {
			paths[i] = c.Path
		}
		return paths, nil
	}
	seen := make(map[int]bool)
	var paths []string
	for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' }) {
		lo, hi, err := parseRange(field)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > len(changes) || lo > hi {
			return nil, fmt.Errorf("%q is not within 1-%d", field, len(changes))
		}
		for n := lo; n <= hi; n++ {
			if !seen[n] {
				seen[n] = true
				paths = append(paths, changes[n-1].Path)
			}
		}
	}
	return paths, nil
}

func parseRange(field string) (lo, hi int, err error) {
	parts := strings.SplitN(field, "-", 2)
	if lo, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("%q is not a number", field)
	}
	if len(parts) == 1 {
		return lo, lo, nil
	}
	if hi, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("%q is not a range", field)
	}
	return lo, hi, nil
}
