package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/gitattrib/gitai/cmd/gitai/cli/agent"
	"github.com/gitattrib/gitai/cmd/gitai/cli/paths"

	// Agent implementations self-register via init().
	_ "github.com/gitattrib/gitai/cmd/gitai/cli/agent/claudecode"
	_ "github.com/gitattrib/gitai/cmd/gitai/cli/agent/geminicli"
)

// newSetupCmd builds the `gitai setup` tree: enable installs agent hooks,
// shell completion and the telemetry preference; disable reverses it
// without touching recorded attribution history.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Enable or disable gitai for this repository",
	}
	cmd.AddCommand(newEnableCmd())
	cmd.AddCommand(newDisableCmd())
	return cmd
}

func newEnableCmd() *cobra.Command {
	var (
		localDev           bool
		force              bool
		useLocalSettings   bool
		useProjectSettings bool
		telemetryFlag      bool
	)

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable gitai for this repository",
		Long: `Installs lifecycle hooks for every detected coding agent, offers to add
shell completion, and records whether anonymous usage telemetry is
collected. Run again with --force to reinstall hooks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnable(cmd.OutOrStdout(), enableOptions{
				localDev:           localDev,
				force:              force,
				useLocalSettings:   useLocalSettings,
				useProjectSettings: useProjectSettings,
				telemetryFlag:      telemetryFlag,
			})
		},
	}

	cmd.Flags().BoolVar(&localDev, "local-dev", false, "Point installed hooks at a local development build")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reinstall hooks even if already present")
	cmd.Flags().BoolVar(&useLocalSettings, "local", false, "Write to .gitai/settings.local.json instead of settings.json")
	cmd.Flags().BoolVar(&useProjectSettings, "project", false, "Write to .gitai/settings.json (default)")
	cmd.Flags().BoolVar(&telemetryFlag, "telemetry", true, "Offer the telemetry consent prompt (--telemetry=false opts out silently)")

	return cmd
}

func newDisableCmd() *cobra.Command {
	var useProjectSettings bool

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable gitai for this repository",
		Long:  "Uninstalls agent hooks and marks gitai disabled in settings. Recorded attribution history is left untouched.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDisable(cmd.OutOrStdout(), useProjectSettings)
		},
	}

	cmd.Flags().BoolVar(&useProjectSettings, "project", false, "Write to .gitai/settings.json instead of settings.local.json")

	return cmd
}

type enableOptions struct {
	localDev           bool
	force              bool
	useLocalSettings   bool
	useProjectSettings bool
	telemetryFlag      bool
}

func runEnable(w io.Writer, opts enableOptions) error {
	if _, err := paths.RepoRoot(); err != nil {
		return NewSilentError(fmt.Errorf("not a git repository: %w", err))
	}

	if err := validateSetupFlags(opts.useLocalSettings, opts.useProjectSettings); err != nil {
		return NewSilentError(err)
	}

	settings, err := LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	settings.Enabled = true

	if err := promptTelemetryConsent(settings, opts.telemetryFlag); err != nil {
		return err
	}

	installed, err := installAgentHooks(w, opts.localDev, opts.force)
	if err != nil {
		return err
	}
	if installed == 0 {
		fmt.Fprintln(w, "No supported coding agent detected in this repository; hooks were not installed.")
		fmt.Fprintln(w, "gitai will still track attribution for commits made through `gitai git`.")
	}

	if err := saveEnabledSettings(settings, opts.useLocalSettings); err != nil {
		return err
	}

	if err := promptShellCompletion(w); err != nil {
		fmt.Fprintf(w, "Warning: shell completion setup skipped: %v\n", err)
	}

	fmt.Fprintln(w, "gitai is enabled.")
	return nil
}

func runDisable(w io.Writer, useProjectSettings bool) error {
	if _, err := paths.RepoRoot(); err != nil {
		return NewSilentError(fmt.Errorf("not a git repository: %w", err))
	}

	for _, name := range agent.List() {
		ag, err := agent.Get(name)
		if err != nil {
			continue
		}
		hs, ok := ag.(agent.HookSupport)
		if !ok || !hs.AreHooksInstalled() {
			continue
		}
		if err := hs.UninstallHooks(); err != nil {
			fmt.Fprintf(w, "Warning: failed to uninstall %s hooks: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "Uninstalled hooks for %s\n", name)
	}

	settings, err := LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	settings.Enabled = false

	if useProjectSettings {
		err = SaveSettings(settings)
	} else {
		err = SaveSettingsLocal(settings)
	}
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	fmt.Fprintln(w, "gitai is disabled. Attribution history in git notes is left in place.")
	return nil
}

// installAgentHooks installs hooks for every agent whose DetectPresence
// reports true, returning the number of agents hooked up.
func installAgentHooks(w io.Writer, localDev, force bool) (int, error) {
	installed := 0
	for _, name := range agent.List() {
		ag, err := agent.Get(name)
		if err != nil {
			continue
		}
		present, err := ag.DetectPresence()
		if err != nil || !present {
			continue
		}
		hs, ok := ag.(agent.HookSupport)
		if !ok {
			continue
		}
		n, err := hs.InstallHooks(localDev, force)
		if err != nil {
			fmt.Fprintf(w, "Warning: failed to install %s hooks: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "Installed %d hook(s) for %s\n", n, name)
		installed++
	}
	return installed, nil
}

func saveEnabledSettings(settings *Settings, useLocal bool) error {
	if useLocal {
		return SaveSettingsLocal(settings)
	}
	return SaveSettings(settings)
}

func validateSetupFlags(useLocal, useProject bool) error {
	if useLocal && useProject {
		return errors.New("--local and --project cannot both be set")
	}
	return nil
}

// promptTelemetryConsent asks the user if they want to enable telemetry.
// It modifies settings.Telemetry based on the user's choice or flags. The
// caller is responsible for saving settings.
func promptTelemetryConsent(settings *Settings, telemetryFlag bool) error {
	if !telemetryFlag {
		f := false
		settings.Telemetry = &f
		return nil
	}

	if settings.Telemetry != nil {
		return nil
	}

	if os.Getenv("GITAI_TELEMETRY_OPTOUT") != "" {
		f := false
		settings.Telemetry = &f
		return nil
	}

	consent := true
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Help improve gitai?").
				Description("Share anonymous usage data. No code or personal info collected.").
				Affirmative("Yes").
				Negative("No").
				Value(&consent),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("telemetry prompt: %w", err)
	}

	settings.Telemetry = &consent
	return nil
}

// shellCompletionTarget returns the shell name, its rc file, and the
// completion line to append, based on $SHELL.
func shellCompletionTarget() (shellName, rcFile, completionLine string, err error) {
	shellPath := os.Getenv("SHELL")
	home, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return "", "", "", homeErr
	}

	switch {
	case strings.Contains(shellPath, "zsh"):
		return "zsh", filepath.Join(home, ".zshrc"), `eval "$(gitai completion zsh)"`, nil
	case strings.Contains(shellPath, "bash"):
		return "bash", filepath.Join(home, ".bashrc"), `eval "$(gitai completion bash)"`, nil
	case strings.Contains(shellPath, "fish"):
		return "fish", filepath.Join(home, ".config", "fish", "config.fish"), "gitai completion fish | source", nil
	default:
		return "", "", "", fmt.Errorf("unrecognized shell: %s", shellPath)
	}
}

func promptShellCompletion(w io.Writer) error {
	shellName, rcFile, completionLine, err := shellCompletionTarget()
	if err != nil {
		return err
	}

	if isCompletionConfigured(rcFile) {
		return nil
	}

	add := true
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Add gitai completion to %s?", rcFile)).
				Affirmative("Yes").
				Negative("No").
				Value(&add),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}
	if !add {
		return nil
	}

	if err := appendShellCompletion(rcFile, completionLine); err != nil {
		return err
	}
	fmt.Fprintf(w, "Added %s completion to %s\n", shellName, rcFile)
	return nil
}

func isCompletionConfigured(rcFile string) bool {
	data, err := os.ReadFile(rcFile) //nolint:gosec // path derives from $SHELL/$HOME, not user input
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "gitai completion")
}

func appendShellCompletion(rcFile, completionLine string) error {
	f, err := os.OpenFile(rcFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // rc file, not secrets
	if err != nil {
		return fmt.Errorf("opening %s: %w", rcFile, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "\n# gitai shell completion\n%s\n", completionLine); err != nil {
		return fmt.Errorf("writing %s: %w", rcFile, err)
	}
	return nil
}

// gitVersion is used by doctor.go's environment checks.
func gitVersion() (string, error) {
	out, err := exec.Command("git", "version").Output() //nolint:gosec // fixed args, no user input
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
