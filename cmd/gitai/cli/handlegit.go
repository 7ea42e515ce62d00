package cli

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	"github.com/gitattrib/gitai/internal/reconciler"
	"github.com/gitattrib/gitai/internal/virtualattr"
)

// HandleGit is the wrapper entry point named by spec section 6:
// handle_git(argv). It runs the commit-pipeline pre-commit snapshot
// ahead of commit-shaped invocations, execs the real git binary with
// argv unchanged so every flag and exit code behaves exactly as the
// user expects, and then reconciles attribution state against whatever
// the command actually did.
func HandleGit(ctx context.Context, argv []string) (exitCode int, err error) {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return 1, runPassthrough(ctx, argv)
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return 1, runPassthrough(ctx, argv)
	}
	stateDir := pipeline.StateDir(gitDir)

	if len(argv) == 0 {
		return runGitCommand(ctx, argv)
	}

	sub := argv[0]
	rest := argv[1:]

	switch sub {
	case "commit":
		return handleCommit(ctx, repo, stateDir, rest)
	case "merge":
		return handleMerge(ctx, repo, stateDir, rest)
	case "rebase":
		return handleRebase(ctx, repo, stateDir, rest)
	case "cherry-pick":
		return handleCherryPick(ctx, repo, stateDir, rest)
	case "reset":
		return handleReset(ctx, repo, stateDir, rest)
	case "checkout", "switch":
		return handleCheckout(ctx, repo, stateDir, sub, rest)
	case "stash":
		return handleStash(ctx, repo, stateDir, rest)
	default:
		return runGitCommand(ctx, argv)
	}
}

// runGitCommand execs the real git with stdio inherited and returns its
// exit code. Invocations that open $EDITOR or a mergetool are routed
// through a pty instead, so they keep working when gitai's own stdio
// is piped.
func runGitCommand(ctx context.Context, argv []string) (int, error) {
	if needsControllingTerminal(argv) {
		return runGitCommandWithPTY(ctx, argv)
	}

	cmd := exec.CommandContext(ctx, "git", argv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 1, err
}

func runPassthrough(ctx context.Context, argv []string) error {
	_, err := runGitCommand(ctx, argv)
	return err
}

func hasFlag(args []string, names ...string) bool {
	for _, a := range args {
		for _, n := range names {
			if a == n || strings.HasPrefix(a, n+"=") {
				return true
			}
		}
	}
	return false
}

func gitAiVersionOrDev() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

func handleCommit(ctx context.Context, repo *gitrepo.Repository, stateDir string, args []string) (int, error) {
	amend := hasFlag(args, "--amend")
	var amendedCommit string
	if amend {
		amendedCommit, _ = repo.RevParse("HEAD")
	}

	if err := pipeline.PreCommit(repo, stateDir, pipeline.Now); err != nil {
		return 1, err
	}

	code, err := runGitCommand(ctx, append([]string{"commit"}, args...))
	if err != nil || code != 0 {
		return code, err
	}

	commit, rerr := repo.RevParse("HEAD")
	if rerr != nil {
		return code, rerr
	}

	return code, reconciler.Guard("handle_git.commit", func() error {
		if amend && amendedCommit != "" && amendedCommit != commit {
			return pipeline.FinalizeAmend(repo, stateDir, gitAiVersionOrDev(), amendedCommit, commit, pipeline.Now)
		}
		return pipeline.Finalize(repo, stateDir, gitAiVersionOrDev(), commit, pipeline.Now)
	})
}

func handleMerge(ctx context.Context, repo *gitrepo.Repository, stateDir string, args []string) (int, error) {
	squash := hasFlag(args, "--squash")
	targetHead, _ := repo.RevParse("HEAD")

	code, err := runGitCommand(ctx, append([]string{"merge"}, args...))
	if err != nil || code != 0 || !squash {
		return code, err
	}

	var sourceRef string
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			sourceRef = a
			break
		}
	}
	if sourceRef == "" {
		return code, nil
	}
	sourceHead, rerr := repo.RevParse(sourceRef)
	if rerr != nil {
		return code, rerr
	}

	return code, reconciler.Guard("handle_git.merge_squash", func() error {
		return reconciler.HandleMergeSquash(repo, stateDir, reconciler.MergeSquashEvent{
			SourceHead: sourceHead,
			TargetHead: targetHead,
		}, pipeline.Now)
	})
}

// rebaseInProgress reports whether a rebase sequencer directory exists
// under gitDir, covering both the "apply" (mailbox) and "merge"
// (interactive/default) backends.
func rebaseInProgress(gitDir string) bool {
	for _, name := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(gitDir, name)); err == nil {
			return true
		}
	}
	return false
}

func handleRebase(ctx context.Context, repo *gitrepo.Repository, stateDir string, args []string) (int, error) {
	gitDir, gerr := repo.GitDir()
	if gerr != nil {
		return 1, gerr
	}
	log := reconciler.OpenLog(filepath.Join(stateDir, "rewrite_log"))

	abort := hasFlag(args, "--abort")
	starting := !rebaseInProgress(gitDir) && !hasFlag(args, "--continue", "--skip") && !abort
	var originalHead string
	if starting {
		originalHead, _ = repo.RevParse("HEAD")
		_ = log.Append(reconciler.Event{RebaseStart: &reconciler.RebaseStartEvent{OriginalHead: originalHead}})
	} else if !abort {
		if active, aerr := log.ActiveRebase(); aerr == nil && active != nil {
			originalHead = active.OriginalHead
		}
	}

	code, err := runGitCommand(ctx, append([]string{"rebase"}, args...))

	if abort {
		_ = log.Append(reconciler.Event{RebaseAbort: &reconciler.RebaseAbortEvent{OriginalHead: originalHead}})
		return code, err
	}
	if err != nil || code != 0 {
		return code, err
	}
	if rebaseInProgress(gitDir) {
		// Stopped for conflict resolution; reconciliation resumes on
		// the --continue invocation that finally completes it.
		return code, nil
	}
	if originalHead == "" {
		return code, nil
	}

	newHead, rerr := repo.RevParse("HEAD")
	if rerr != nil {
		return code, rerr
	}
	mergeBase, merr := repo.MergeBase(originalHead, newHead)
	if merr != nil {
		return code, merr
	}
	originalCommits, oerr := repo.RevList(mergeBase, originalHead)
	if oerr != nil {
		return code, oerr
	}
	newCommits, nerr := repo.RevList(mergeBase, newHead)
	if nerr != nil {
		return code, nerr
	}

	ev := reconciler.RebaseCompleteEvent{OriginalHead: originalHead, OriginalCommits: originalCommits, NewCommits: newCommits}
	_ = log.Append(reconciler.Event{RebaseComplete: &ev})

	return code, reconciler.Guard("handle_git.rebase_complete", func() error {
		return reconciler.HandleRebaseComplete(repo, stateDir, gitAiVersionOrDev(), ev, pipeline.Now)
	})
}

func handleCherryPick(ctx context.Context, repo *gitrepo.Repository, stateDir string, args []string) (int, error) {
	gitDir, gerr := repo.GitDir()
	if gerr != nil {
		return 1, gerr
	}
	abort := hasFlag(args, "--abort")
	continuing := hasFlag(args, "--continue", "--skip")

	var sourceCommits []string
	var beforeHead string
	if !abort && !continuing {
		beforeHead, _ = repo.RevParse("HEAD")
		for _, a := range args {
			if strings.HasPrefix(a, "-") {
				continue
			}
			if sha, rerr := repo.RevParse(a); rerr == nil {
				sourceCommits = append(sourceCommits, sha)
			}
		}
	}

	code, err := runGitCommand(ctx, append([]string{"cherry-pick"}, args...))
	if abort || err != nil || code != 0 {
		return code, err
	}
	if _, statErr := os.Stat(filepath.Join(gitDir, "CHERRY_PICK_HEAD")); statErr == nil {
		// Stopped for conflict resolution.
		return code, nil
	}
	if len(sourceCommits) == 0 || beforeHead == "" {
		return code, nil
	}

	afterHead, rerr := repo.RevParse("HEAD")
	if rerr != nil {
		return code, rerr
	}
	newCommits, nerr := repo.RevList(beforeHead, afterHead)
	if nerr != nil {
		return code, nerr
	}

	return code, reconciler.Guard("handle_git.cherry_pick_complete", func() error {
		return reconciler.HandleCherryPickComplete(repo, stateDir, gitAiVersionOrDev(), reconciler.CherryPickCompleteEvent{
			SourceCommits: sourceCommits,
			NewCommits:    newCommits,
		}, pipeline.Now)
	})
}

func resetKindFromArgs(args []string) reconciler.ResetKind {
	switch {
	case hasFlag(args, "--soft"):
		return reconciler.ResetSoft
	case hasFlag(args, "--hard"):
		return reconciler.ResetHard
	case hasFlag(args, "--merge"):
		return reconciler.ResetMerge
	default:
		return reconciler.ResetMixed
	}
}

func handleReset(ctx context.Context, repo *gitrepo.Repository, stateDir string, args []string) (int, error) {
	oldHead, _ := repo.RevParse("HEAD")
	kind := resetKindFromArgs(args)

	code, err := runGitCommand(ctx, append([]string{"reset"}, args...))
	if err != nil || code != 0 || oldHead == "" {
		return code, err
	}

	targetCommit, rerr := repo.RevParse("HEAD")
	if rerr != nil {
		return code, rerr
	}
	if targetCommit == oldHead {
		return code, nil
	}

	return code, reconciler.Guard("handle_git.reset", func() error {
		return reconciler.HandleReset(repo, stateDir, kind, oldHead, targetCommit, pipeline.Now)
	})
}

func handleCheckout(ctx context.Context, repo *gitrepo.Repository, stateDir, sub string, args []string) (int, error) {
	oldHead, _ := repo.RevParse("HEAD")
	force := hasFlag(args, "--force", "-f")
	merge := hasFlag(args, "--merge")
	var va virtualattr.VirtualAttributions
	if merge {
		if files, derr := repo.StagedFiles(); derr == nil {
			if v, verr := virtualattr.NewForBaseCommit(repo, oldHead, files, pipeline.Now()); verr == nil {
				va = v
			}
		}
	}

	code, err := runGitCommand(ctx, append([]string{sub}, args...))
	if err != nil || code != 0 {
		return code, err
	}

	newHead, _ := repo.RevParse("HEAD")

	return code, reconciler.Guard("handle_git."+sub, func() error {
		switch {
		case force:
			return reconciler.HandleCheckoutForce(stateDir, oldHead)
		case merge:
			return reconciler.HandleCheckoutMerge(stateDir, newHead, va)
		case newHead != "" && oldHead != "" && newHead != oldHead:
			return reconciler.HandleCheckoutHeadChange(stateDir, oldHead, newHead)
		default:
			return nil
		}
	})
}

func handleStash(ctx context.Context, repo *gitrepo.Repository, stateDir string, args []string) (int, error) {
	pop := len(args) > 0 && args[0] == "pop"
	head, _ := repo.RevParse("HEAD")
	var va virtualattr.VirtualAttributions
	if pop {
		if files, derr := repo.StagedFiles(); derr == nil {
			if v, verr := virtualattr.NewForBaseCommit(repo, head, files, pipeline.Now()); verr == nil {
				va = v
			}
		}
	}

	code, err := runGitCommand(ctx, append([]string{"stash"}, args...))
	if err != nil || code != 0 || !pop {
		return code, err
	}

	return code, reconciler.Guard("handle_git.stash_pop", func() error {
		return reconciler.HandleStashPop(stateDir, head, va)
	})
}
