package cli

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// needsControllingTerminal reports whether a git subcommand invocation
// is one of the handful that shell out to $EDITOR or a mergetool, and
// so behaves correctly only when it owns a controlling terminal
// ("git commit" with no -m/-F/--no-edit, "git rebase -i", any
// "--edit"/"--mergetool" invocation).
func needsControllingTerminal(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	switch argv[0] {
	case "commit":
		rest := argv[1:]
		return !hasFlag(rest, "-m", "--message", "-F", "--file", "--no-edit", "--amend-no-edit")
	case "rebase":
		return hasFlag(argv[1:], "-i", "--interactive")
	case "merge":
		return hasFlag(argv[1:], "--edit", "-e") || hasFlag(argv[1:], "--mergetool")
	default:
		return false
	}
}

// runGitCommandWithPTY runs git under a pseudo-terminal so $EDITOR and
// mergetools see a real controlling terminal even when gitai's own
// stdin/stdout are piped (e.g. invoked by an agent harness). When
// gitai's stdin is already a terminal, the real one is inherited
// directly instead — allocating a second pty on top of a real one
// buys nothing and breaks job control (Ctrl-Z, Ctrl-C forwarding).
func runGitCommandWithPTY(ctx context.Context, argv []string) (int, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return runGitCommand(ctx, argv)
	}

	cmd := exec.CommandContext(ctx, "git", argv...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 1, err
	}
	defer ptmx.Close() //nolint:errcheck

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	sigCh <- syscall.SIGWINCH // prime the initial size

	copyDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(ptmx, os.Stdin)
	}()
	go func() {
		_, _ = io.Copy(os.Stdout, ptmx)
		close(copyDone)
	}()

	err = cmd.Wait()
	<-copyDone

	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 1, err
}
