package cli

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitattrib/gitai/cmd/gitai/cli/agent"
	"github.com/gitattrib/gitai/cmd/gitai/cli/telemetry"
	"github.com/gitattrib/gitai/cmd/gitai/cli/versioncheck"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	localtelemetry "github.com/gitattrib/gitai/internal/telemetry"
)

const gettingStarted = `

Getting Started:
  To get started with gitai, run 'gitai setup enable' to configure
  your environment.

`

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information, set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gitai",
		Short: "gitai CLI",
		Long:  "A git wrapper that tracks which lines of code were written by a human versus an AI coding agent." + gettingStarted + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			var telemetryEnabled *bool
			enabled := false
			if settings, err := LoadSettings(); err == nil {
				telemetryEnabled = settings.Telemetry
				enabled = settings.Enabled
			}

			telemetryClient := telemetry.NewClient(Version, telemetryEnabled)
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd, detectedAgentName(), enabled)

			recordLocalTelemetry(cmd, detectedAgentName())

			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newGitCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newBlameCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newCIRewriteAuthorshipCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// recordLocalTelemetry appends a row to the repo-local event spool,
// regardless of the opt-in PostHog setting: it never leaves the
// machine, so it carries none of the privacy tradeoffs that gate the
// network client. `gitai doctor` reads it back for a local summary.
func recordLocalTelemetry(cmd *cobra.Command, agentName string) {
	if cmd == nil || cmd.Hidden {
		return
	}
	repo, err := gitrepo.Open(".")
	if err != nil {
		return
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return
	}

	logsDir := filepath.Join(pipeline.StateDir(gitDir), "logs")
	spool, err := localtelemetry.Open(logsDir)
	if err != nil {
		return
	}
	defer spool.Close() //nolint:errcheck

	_ = spool.Record(time.Now().Unix(), "cli_command_executed", map[string]any{
		"command": cmd.CommandPath(),
		"agent":   agentName,
	})
}

// detectedAgentName reports the best-guess agent name for telemetry,
// falling back to empty when none is present.
func detectedAgentName() string {
	ag, err := agent.Detect()
	if err != nil {
		return ""
	}
	return ag.Name()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("gitai %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
