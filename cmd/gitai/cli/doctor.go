package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/gitattrib/gitai/cmd/gitai/cli/agent"
	"github.com/gitattrib/gitai/cmd/gitai/cli/paths"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	"github.com/gitattrib/gitai/internal/telemetry"
)

// stalePendingThreshold is how long a working-log directory can sit
// without being finalized into a commit before doctor calls it stuck:
// most likely a commit that never ran through `gitai git commit`.
const stalePendingThreshold = 24 * time.Hour

func newDoctorCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose and fix a broken gitai setup",
		Long: `Checks that git is on PATH, that settings parse, that detected coding
agents have hooks installed, and that no working-log directory has sat
unfinalized past the point where it was plausibly abandoned.

Use --force to discard every stale pending working log without prompting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Discard all stale pending working logs without prompting")

	return cmd
}

func runDoctor(cmd *cobra.Command, force bool) error {
	w := cmd.OutOrStdout()

	checkGitInstalled(w)
	checkSettingsValid(w)
	checkAgentHooks(w)
	printLocalTelemetrySummary(w)

	return checkStalePendingWorkingLogs(cmd, force)
}

func checkGitInstalled(w io.Writer) {
	v, err := gitVersion()
	if err != nil {
		fmt.Fprintln(w, "✕ git not found on PATH")
		return
	}
	fmt.Fprintf(w, "✓ %s\n", v)
}

func checkSettingsValid(w io.Writer) {
	if _, err := paths.RepoRoot(); err != nil {
		fmt.Fprintln(w, "✕ not inside a git repository")
		return
	}
	if _, err := LoadSettings(); err != nil {
		fmt.Fprintf(w, "✕ settings failed to load: %v\n", err)
		return
	}
	fmt.Fprintln(w, "✓ settings load cleanly")
}

func checkAgentHooks(w io.Writer) {
	for _, name := range agent.List() {
		ag, err := agent.Get(name)
		if err != nil {
			continue
		}
		present, err := ag.DetectPresence()
		if err != nil || !present {
			continue
		}
		if !agentSupportsHooks(name) {
			fmt.Fprintf(w, "○ %s detected, no hook support\n", name)
			continue
		}
		hs := ag.(agent.HookSupport) //nolint:forcetypeassert // agentSupportsHooks already confirmed this
		if hs.AreHooksInstalled() {
			fmt.Fprintf(w, "✓ %s hooks installed\n", name)
		} else {
			fmt.Fprintf(w, "✕ %s detected but hooks not installed (run `gitai setup enable`)\n", name)
		}
	}
}

// printLocalTelemetrySummary reads the repo-local event spool and
// prints a per-event tally, entirely offline — the summary a --detailed
// status might otherwise need a network round-trip for.
func printLocalTelemetrySummary(w io.Writer) {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return
	}

	logsDir := filepath.Join(pipeline.StateDir(gitDir), "logs")
	spool, err := telemetry.Open(logsDir)
	if err != nil {
		return
	}
	defer spool.Close() //nolint:errcheck

	counts, err := spool.Summary()
	if err != nil || len(counts) == 0 {
		return
	}

	fmt.Fprintln(w, "Local usage summary:")
	for _, c := range counts {
		fmt.Fprintf(w, "  %-25s %d\n", c.Event, c.Count)
	}
}

// checkStalePendingWorkingLogs scans the working-log store for
// directories older than stalePendingThreshold and offers to discard
// them, mirroring the fix-the-stuck-state shape of an interactive
// doctor command.
func checkStalePendingWorkingLogs(cmd *cobra.Command, force bool) error {
	w := cmd.OutOrStdout()

	repo, err := gitrepo.Open(".")
	if err != nil {
		return nil //nolint:nilerr // doctor reports findings, it doesn't fail the command
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return nil //nolint:nilerr // see above
	}

	stateDir := pipeline.StateDir(gitDir)
	logsDir := pipeline.WorkingLogsDir(stateDir)
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return nil //nolint:nilerr // nothing to diagnose
	}

	now := time.Now()
	var stale []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > stalePendingThreshold {
			stale = append(stale, e.Name())
		}
	}

	if len(stale) == 0 {
		fmt.Fprintln(w, "✓ no stale pending working logs")
		return nil
	}

	fmt.Fprintf(w, "Found %d stale pending working log(s):\n", len(stale))
	for _, sha := range stale {
		short := sha
		if len(short) > 10 {
			short = short[:10]
		}

		if force {
			discardWorkingLog(w, logsDir, sha, short)
			continue
		}

		discard := false
		formErr := NewAccessibleForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Discard stale working log %s?", short)).
					Affirmative("Discard").
					Negative("Skip").
					Value(&discard),
			),
		).Run()
		if formErr != nil {
			if errors.Is(formErr, huh.ErrUserAborted) {
				return nil
			}
			return fmt.Errorf("prompt failed: %w", formErr)
		}

		if discard {
			discardWorkingLog(w, logsDir, sha, short)
		} else {
			fmt.Fprintf(w, "  -> skipped %s\n", short)
		}
	}

	return nil
}

func discardWorkingLog(w io.Writer, logsDir, sha, short string) {
	if err := os.RemoveAll(filepath.Join(logsDir, sha)); err != nil {
		fmt.Fprintf(w, "  -> failed to discard %s: %v\n", short, err)
		return
	}
	fmt.Fprintf(w, "  -> discarded %s\n", short)
}
