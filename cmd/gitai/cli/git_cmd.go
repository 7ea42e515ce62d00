package cli

import (
	"github.com/spf13/cobra"
)

// newGitCmd wraps HandleGit: `gitai git -- <git args>` runs the real git
// binary with argv unchanged, then reconciles attribution state against
// whatever the command did. The "--" keeps cobra from interpreting the
// wrapped git flags as its own.
func newGitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "git -- [git args...]",
		Short:              "Run git, tracking attribution for the commits it produces",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := args
			if len(argv) > 0 && argv[0] == "--" {
				argv = argv[1:]
			}
			exitCode, err := HandleGit(cmd.Context(), argv)
			if err != nil {
				return err
			}
			if exitCode != 0 {
				return NewSilentError(&exitCodeError{code: exitCode})
			}
			return nil
		},
	}
	return cmd
}

// exitCodeError carries a wrapped git invocation's exit code back to
// main.go, which maps it onto the process exit status.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return "git exited with a non-zero status" }

func (e *exitCodeError) ExitCode() int { return e.code }
