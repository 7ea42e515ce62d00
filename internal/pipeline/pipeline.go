// Package pipeline implements the commit pipeline: the pre-commit
// snapshot that guarantees a working log exists before git runs, and
// the post-commit finalization that collapses it into a committed
// AuthorshipLog note plus the next INITIAL seed.
package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/authlog"
	"github.com/gitattrib/gitai/internal/giterr"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/virtualattr"
	"github.com/gitattrib/gitai/internal/workinglog"
)

// StateDirName is the directory, rooted under .git, holding every
// on-disk artifact the wrapper maintains.
const StateDirName = "gitai"

// WorkingLogsDirName is the subdirectory of the state dir holding one
// directory per base commit SHA.
const WorkingLogsDirName = "working_logs"

// StateDir returns the state directory for a repository rooted at gitDir
// (the .git directory, not the worktree root — so it works for
// worktrees and bare checkouts alike).
func StateDir(gitDir string) string {
	return filepath.Join(gitDir, StateDirName)
}

// WorkingLogsDir returns the parent of every per-commit working-log
// directory.
func WorkingLogsDir(stateDir string) string {
	return filepath.Join(stateDir, WorkingLogsDirName)
}

// WorkingLogDir returns the working-log directory for a specific base
// commit SHA.
func WorkingLogDir(stateDir, sha string) string {
	return filepath.Join(WorkingLogsDir(stateDir), sha)
}

// Clock abstracts the current time so tests can supply a fixed value;
// production callers pass time.Now().Unix.
type Clock func() int64

// PreCommit ensures a working-log directory exists for the repository's
// current HEAD (or the empty-tree sentinel for an unborn branch), and
// appends a human-baseline checkpoint for any staged file that has no
// prior checkpoint, so a commit made entirely outside any tracked editor
// integration still has a well-formed authorship record to finalize.
func PreCommit(repo *gitrepo.Repository, stateDir string, now Clock) error {
	head, err := repo.Head()
	if err != nil {
		return err
	}
	base := head
	if base == "" {
		base = gitrepo.EmptyTreeHash
	}

	store := workinglog.Open(WorkingLogDir(stateDir, base))
	staged, err := repo.StagedFiles()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}

	existing, err := store.ReadAllCheckpoints()
	if err != nil {
		return err
	}
	haveCheckpoint := make(map[string]bool)
	for _, cp := range existing {
		for _, e := range cp.Entries {
			haveCheckpoint[e.File] = true
		}
	}

	var entries []workinglog.CheckpointEntry
	for _, path := range staged {
		if haveCheckpoint[path] {
			continue
		}
		content, ok, err := repo.FileContentAt(base, path)
		if err != nil {
			return err
		}
		var baseline attribution.Vector
		if ok {
			baseline = attribution.HumanBaseline(content, now())
		}
		entries = append(entries, workinglog.CheckpointEntry{
			File:             path,
			Attributions:     baseline,
			LineAttributions: attribution.ToLineAttributions(baseline, content),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	return store.AppendCheckpoint(workinglog.Checkpoint{
		APIVersion: workinglog.APIVersion,
		Kind:       workinglog.KindHuman,
		Timestamp:  now(),
		Entries:    entries,
	}, false)
}

// Finalize runs the normal (non-amend) post-commit finalization: it
// collapses the working log rooted at the commit's parent into an
// AuthorshipLog note on commit, carries the residual INITIAL seed
// forward to commit's own working-log directory, and deletes the old
// directory.
func Finalize(repo *gitrepo.Repository, stateDir, gitAiVersion string, commit string, now Clock) error {
	parent, err := repo.ParentSHA(commit)
	if err != nil {
		return err
	}
	return finalizeFrom(repo, stateDir, gitAiVersion, parent, commit, parent, now)
}

// FinalizeAmend runs the amend-variant finalization: parent is resolved
// against amendedCommit (the commit that existed before the amend, not
// the new commit), and the amended commit's own working-log directory is
// deleted afterward in addition to the parent-keyed one, since `commit`
// amend from --no-edit etc. may have kept working state under either
// key depending on how the editor integration issued checkpoints.
func FinalizeAmend(repo *gitrepo.Repository, stateDir, gitAiVersion string, amendedCommit, commit string, now Clock) error {
	parent, err := repo.ParentSHA(amendedCommit)
	if err != nil {
		return err
	}
	if err := finalizeFrom(repo, stateDir, gitAiVersion, parent, commit, parent, now); err != nil {
		return err
	}
	return workinglog.Delete(WorkingLogsDir(stateDir), amendedCommit, false)
}

// finalizeFrom is shared by Finalize and FinalizeAmend: it replays the
// working log rooted at workingLogKey (which is parent in both cases,
// since a working log is always keyed by the base commit it diffs
// against) and writes the resulting note to commit.
func finalizeFrom(repo *gitrepo.Repository, stateDir, gitAiVersion, workingLogKey, commit, parent string, now Clock) error {
	oldDir := WorkingLogDir(stateDir, workingLogKey)
	store := workinglog.Open(oldDir)

	initial := store.ReadInitialAttributions()
	checkpoints, err := store.ReadAllCheckpoints()
	if err != nil {
		return err
	}

	touched := touchedFiles(initial, checkpoints)
	base := make(map[string]string, len(touched))
	for _, path := range touched {
		content, ok, ferr := repo.FileContentAt(parent, path)
		if ferr != nil {
			return ferr
		}
		if ok {
			base[path] = content
		}
	}

	va := virtualattr.FromWorkingLog(store, initial, checkpoints, base)

	log, nextInitial := va.ToAuthorshipLogAndInitialWorkingLog(gitAiVersion, parent)
	data, err := log.Marshal()
	if err != nil {
		return err
	}
	if err := repo.WriteNote(commit, data); err != nil {
		return err
	}

	newDir := WorkingLogDir(stateDir, commit)
	newStore := workinglog.Open(newDir)
	if err := newStore.WriteInitialAttributions(nextInitial); err != nil {
		return err
	}

	if oldDir != newDir {
		if err := os.RemoveAll(oldDir); err != nil {
			return giterr.Environment("pipeline.finalizeFrom.cleanup", err)
		}
	}
	return nil
}

func touchedFiles(initial workinglog.InitialAttributions, checkpoints []workinglog.Checkpoint) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for f := range initial.Files {
		add(f)
	}
	for _, cp := range checkpoints {
		for _, e := range cp.Entries {
			add(e.File)
		}
	}
	return out
}

// Now is the production Clock.
func Now() int64 { return time.Now().Unix() }
