package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gitattrib/gitai/cmd/gitai/cli/agent"
	"github.com/gitattrib/gitai/cmd/gitai/cli/paths"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether gitai is enabled and what is tracking attribution",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
	return cmd
}

func runStatus(w io.Writer) error {
	if _, err := paths.RepoRoot(); err != nil {
		fmt.Fprintln(w, "not a git repository")
		return nil //nolint:nilerr // not being in a repo is a status, not a command failure
	}

	settingsPath, err := paths.AbsPath(SettingsFile)
	if err != nil {
		settingsPath = SettingsFile
	}
	localSettingsPath, err := paths.AbsPath(SettingsLocalFile)
	if err != nil {
		localSettingsPath = SettingsLocalFile
	}

	_, projectErr := os.Stat(settingsPath)
	_, localErr := os.Stat(localSettingsPath)
	if os.IsNotExist(projectErr) && os.IsNotExist(localErr) {
		fmt.Fprintln(w, "not set up (run `gitai setup enable` to get started)")
		return nil
	}

	settings, err := LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if settings.Enabled {
		fmt.Fprintln(w, "enabled")
	} else {
		fmt.Fprintln(w, "disabled")
	}

	installed := GetAgentsWithHooksInstalled()
	if len(installed) == 0 {
		fmt.Fprintln(w, "agents: none hooked up")
	} else {
		fmt.Fprintf(w, "agents: %s\n", JoinAgentNames(installed))
	}

	if settings.LogLevel != "" {
		fmt.Fprintf(w, "log level: %s\n", settings.LogLevel)
	}
	switch {
	case settings.Telemetry == nil:
		fmt.Fprintln(w, "telemetry: not configured")
	case *settings.Telemetry:
		fmt.Fprintln(w, "telemetry: enabled")
	default:
		fmt.Fprintln(w, "telemetry: disabled")
	}

	writePendingWorkingLogs(w)

	return nil
}

// writePendingWorkingLogs lists per-base-commit working-log directories
// that have checkpoints but have not yet been finalized into a commit
// note, i.e. attribution state an agent recorded that a `gitai git
// commit` hasn't consumed yet.
func writePendingWorkingLogs(w io.Writer) {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return
	}

	stateDir := pipeline.StateDir(gitDir)
	entries, err := os.ReadDir(pipeline.WorkingLogsDir(stateDir))
	if err != nil {
		return
	}

	var shas []string
	for _, e := range entries {
		if e.IsDir() {
			shas = append(shas, e.Name())
		}
	}
	if len(shas) == 0 {
		return
	}
	sort.Strings(shas)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Pending working logs (uncommitted attribution state):")
	for _, sha := range shas {
		short := sha
		if len(short) > 10 {
			short = short[:10]
		}
		fmt.Fprintf(w, "  %s\n", short)
	}
}

// agentSupportsHooks reports whether an agent implements hook handling,
// used by status/doctor to distinguish "detected but no hook support"
// from "fully wired up".
func agentSupportsHooks(name agent.AgentName) bool {
	ag, err := agent.Get(name)
	if err != nil {
		return false
	}
	_, ok := ag.(agent.HookSupport)
	return ok
}
