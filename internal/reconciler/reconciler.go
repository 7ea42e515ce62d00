package reconciler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/giterr"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	"github.com/gitattrib/gitai/internal/prompt"
	"github.com/gitattrib/gitai/internal/virtualattr"
	"github.com/gitattrib/gitai/internal/workinglog"
)

// dummyAuthor is the sentinel author assigned to inserted/changed runs
// during rebase/cherry-pick replay, restored to the original author
// afterward by matching unchanged line content against the source
// state.
const dummyAuthor = "__DUMMY__"

// Guard runs fn under a panic recovery barrier, converting any panic
// into a giterr.KindReconcilerPanic error rather than letting it
// propagate and abort the wrapped VCS command. Every reconciler entry
// point the CLI layer calls must go through Guard.
func Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = giterr.ReconcilerPanic(op, fmt.Errorf("%v", r))
		}
	}()
	return fn()
}

// HandleCommit delegates to the pipeline's normal finalization.
func HandleCommit(repo *gitrepo.Repository, stateDir, gitAiVersion string, ev CommitEvent, now pipeline.Clock) error {
	return pipeline.Finalize(repo, stateDir, gitAiVersion, ev.Commit, now)
}

// HandleCommitAmend delegates to the pipeline's amend-variant
// finalization.
func HandleCommitAmend(repo *gitrepo.Repository, stateDir, gitAiVersion string, ev CommitAmendEvent, now pipeline.Clock) error {
	return pipeline.FinalizeAmend(repo, stateDir, gitAiVersion, ev.AmendedCommit, ev.Commit, now)
}

// HandleMergeSquash handles the aftermath of `git merge --squash`: once
// it leaves everything staged but uncommitted, combine the source and
// target branches' authorship (target favored on conflict) and seed it
// as the INITIAL state for the eventual squash commit.
func HandleMergeSquash(repo *gitrepo.Repository, stateDir string, ev MergeSquashEvent, now pipeline.Clock) error {
	mergeBase, err := repo.MergeBase(ev.SourceHead, ev.TargetHead)
	if err != nil {
		return err
	}

	changed, err := changedFilesSince(repo, mergeBase, ev.SourceHead, ev.TargetHead)
	if err != nil {
		return err
	}

	sourceVA, err := virtualattr.NewForBaseCommit(repo, ev.SourceHead, changed, now())
	if err != nil {
		return err
	}
	targetVA, err := virtualattr.NewForBaseCommit(repo, ev.TargetHead, changed, now())
	if err != nil {
		return err
	}

	merged := virtualattr.MergeAttributionsFavoringFirst(targetVA, sourceVA)
	merged = overlayWorktreeContents(repo, merged, changed)

	logsDir := pipeline.WorkingLogsDir(stateDir)
	if err := workinglog.Delete(logsDir, ev.TargetHead, false); err != nil {
		return err
	}
	_, initial := merged.ToAuthorshipLogAndInitialWorkingLog("", ev.TargetHead)
	store := workinglog.Open(pipeline.WorkingLogDir(stateDir, ev.TargetHead))
	return store.WriteInitialAttributions(initial)
}

// HandleCIMergeSquash is the ci_rewrite_authorship entry point: the
// same favor-target-on-conflict combination as HandleMergeSquash, but
// for a squash or rebase-merge that a CI platform already committed
// outside the wrapper. Rather than seeding a working-log INITIAL for a
// commit still to come, it writes the AuthorshipLog note directly onto
// mergeCommit, and overlays mergeCommit's own committed content instead
// of the (nonexistent, in CI) dirty worktree.
func HandleCIMergeSquash(repo *gitrepo.Repository, ev MergeSquashEvent, mergeCommit, gitAiVersion string, now pipeline.Clock) error {
	mergeBase, err := repo.MergeBase(ev.SourceHead, ev.TargetHead)
	if err != nil {
		return err
	}

	changed, err := changedFilesSince(repo, mergeBase, ev.SourceHead, ev.TargetHead)
	if err != nil {
		return err
	}

	sourceVA, err := virtualattr.NewForBaseCommit(repo, ev.SourceHead, changed, now())
	if err != nil {
		return err
	}
	targetVA, err := virtualattr.NewForBaseCommit(repo, ev.TargetHead, changed, now())
	if err != nil {
		return err
	}

	merged := virtualattr.MergeAttributionsFavoringFirst(targetVA, sourceVA)
	merged, err = overlayCommitContents(repo, merged, mergeCommit, changed)
	if err != nil {
		return err
	}

	log, _ := merged.ToAuthorshipLogAndInitialWorkingLog(gitAiVersion, ev.TargetHead)
	data, err := log.Marshal()
	if err != nil {
		return err
	}
	return repo.WriteNote(mergeCommit, data)
}

// overlayCommitContents is overlayWorktreeContents' CI-side twin: it
// reconciles against a committed tree rather than the worktree, since a
// CI runner rewriting authorship after the fact has no worktree to read.
func overlayCommitContents(repo *gitrepo.Repository, va virtualattr.VirtualAttributions, commit string, files []string) (virtualattr.VirtualAttributions, error) {
	for _, path := range files {
		fs, ok := va.Files[path]
		if !ok {
			continue
		}
		content, ok, err := repo.FileContentAt(commit, path)
		if err != nil {
			return virtualattr.VirtualAttributions{}, err
		}
		if !ok || content == fs.Content {
			continue
		}
		fs.Content = content
		fs.LineAttrs = attribution.ToLineAttributions(fs.CharAttrs, content)
		va.Files[path] = fs
	}
	return va, nil
}

// overlayWorktreeContents replaces each file's Content with what is
// currently on disk (the post-squash working tree), which may differ
// from either branch's committed blob if the merge produced conflict
// markers the user has since resolved.
func overlayWorktreeContents(repo *gitrepo.Repository, va virtualattr.VirtualAttributions, files []string) virtualattr.VirtualAttributions {
	for _, path := range files {
		fs, ok := va.Files[path]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(repo.Root(), path))
		if err != nil {
			continue
		}
		content := string(data)
		if content == fs.Content {
			continue
		}
		fs.Content = content
		fs.LineAttrs = attribution.ToLineAttributions(fs.CharAttrs, content)
		va.Files[path] = fs
	}
	return va
}

func changedFilesSince(repo *gitrepo.Repository, base string, heads ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, head := range heads {
		files, err := repo.DiffNameStatus(base, head)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// HandleRebaseComplete replays each rebased commit's diff against a
// running authorship state seeded from the original head's blame,
// restoring original authorship on any content that survived unchanged
// via the __DUMMY__ sentinel.
func HandleRebaseComplete(repo *gitrepo.Repository, stateDir, gitAiVersion string, ev RebaseCompleteEvent, now pipeline.Clock) error {
	if len(ev.NewCommits) == 0 {
		return nil
	}
	newHead := ev.NewCommits[len(ev.NewCommits)-1]
	mergeBase, err := repo.MergeBase(ev.OriginalHead, newHead)
	if err != nil {
		return err
	}

	originalFiles, err := repo.DiffNameStatus(mergeBase, ev.OriginalHead)
	if err != nil {
		return err
	}
	originalVA, err := virtualattr.NewForBaseCommit(repo, ev.OriginalHead, originalFiles, now())
	if err != nil {
		return err
	}

	changedByCommit, err := repo.DiffTreeBatch(ev.NewCommits)
	if err != nil {
		return err
	}

	current := originalVA
	for idx, newCommit := range ev.NewCommits {
		if _, ok, _ := repo.ReadNote(newCommit); ok {
			// Already has a note: belonged to the target branch, not this
			// rebase's replayed commits.
			continue
		}

		var originalCommit string
		if idx < len(ev.OriginalCommits) {
			originalCommit = ev.OriginalCommits[idx]
		}
		if originalCommit != "" && identicalTrees(repo, originalCommit, newCommit) {
			if data, ok, _ := repo.ReadNote(originalCommit); ok {
				if err := repo.WriteNote(newCommit, data); err != nil {
					return err
				}
				continue
			}
		}

		parent, err := repo.ParentSHA(newCommit)
		if err != nil {
			return err
		}
		changed := changedByCommit[newCommit]
		blobs, err := readBlobsBatch(repo, newCommit, changed)
		if err != nil {
			return err
		}

		current = replayCommit(blobs, current, originalVA, changed, now())
		current = current.CalculateAndUpdatePromptMetrics(originalVA)

		log, _ := current.ToAuthorshipLogAndInitialWorkingLog(gitAiVersion, parent)
		data, err := log.Marshal()
		if err != nil {
			return err
		}
		if err := repo.WriteNote(newCommit, data); err != nil {
			return err
		}
	}
	return nil
}

// HandleCherryPickComplete is simpler than rebase because cherry-pick
// applies patches sequentially, so the source side's accumulated state
// equals its last commit's state.
func HandleCherryPickComplete(repo *gitrepo.Repository, stateDir, gitAiVersion string, ev CherryPickCompleteEvent, now pipeline.Clock) error {
	if len(ev.SourceCommits) == 0 || len(ev.NewCommits) == 0 {
		return nil
	}
	lastSource := ev.SourceCommits[len(ev.SourceCommits)-1]
	firstSourceParent, err := repo.ParentSHA(ev.SourceCommits[0])
	if err != nil {
		return err
	}
	sourceFiles, err := repo.DiffNameStatus(firstSourceParent, lastSource)
	if err != nil {
		return err
	}
	sourceVA, err := virtualattr.NewForBaseCommit(repo, lastSource, sourceFiles, now())
	if err != nil {
		return err
	}

	changedByCommit, err := repo.DiffTreeBatch(ev.NewCommits)
	if err != nil {
		return err
	}

	current := sourceVA
	for idx, newCommit := range ev.NewCommits {
		var sourceCommit string
		if idx < len(ev.SourceCommits) {
			sourceCommit = ev.SourceCommits[idx]
		}
		if sourceCommit != "" {
			if identicalTrees(repo, sourceCommit, newCommit) {
				if data, ok, _ := repo.ReadNote(sourceCommit); ok {
					_ = repo.WriteNote(newCommit, data)
					continue
				}
			}
		}

		parent, err := repo.ParentSHA(newCommit)
		if err != nil {
			return err
		}
		changed := changedByCommit[newCommit]
		blobs, err := readBlobsBatch(repo, newCommit, changed)
		if err != nil {
			return err
		}
		current = replayCommit(blobs, current, sourceVA, changed, now())
		current = current.CalculateAndUpdatePromptMetrics(sourceVA)

		log, _ := current.ToAuthorshipLogAndInitialWorkingLog(gitAiVersion, parent)
		data, err := log.Marshal()
		if err != nil {
			return err
		}
		if err := repo.WriteNote(newCommit, data); err != nil {
			return err
		}
	}
	return nil
}

func identicalTrees(repo *gitrepo.Repository, a, b string) bool {
	filesA, errA := repo.DiffNameStatus(a, b)
	return errA == nil && len(filesA) == 0
}

// readBlobsBatch resolves every path in changed as it exists in commit's
// tree, in one `cat-file --batch` subprocess rather than one per file.
func readBlobsBatch(repo *gitrepo.Repository, commit string, changed []string) (map[string]gitrepo.BlobResult, error) {
	if len(changed) == 0 {
		return map[string]gitrepo.BlobResult{}, nil
	}
	requests := make([]gitrepo.BlobRequest, len(changed))
	for i, path := range changed {
		requests[i] = gitrepo.BlobRequest{Commit: commit, Path: path}
	}
	resolved, err := repo.CatFileBatch(requests)
	if err != nil {
		return nil, err
	}
	out := make(map[string]gitrepo.BlobResult, len(changed))
	for _, req := range requests {
		out[req.Path] = resolved[req]
	}
	return out, nil
}

// replayCommit applies a commit's changed-file diffs against running's
// content, attributing new/modified text to dummyAuthor, then restores
// original authorship wherever a line's content matches a line that
// existed verbatim in original (line-content matching survives commit
// splits). blobs supplies the commit's changed-file contents, resolved by
// the caller in one batched cat-file read rather than one per file.
func replayCommit(blobs map[string]gitrepo.BlobResult, running, original virtualattr.VirtualAttributions, changed []string, ts int64) virtualattr.VirtualAttributions {
	out := running
	out.Files = cloneFiles(running.Files)

	originalLinesByContent := indexLinesByContent(original)

	for _, path := range changed {
		res := blobs[path]
		if !res.Exists {
			delete(out.Files, path)
			continue
		}
		newContent := res.Content
		prior := out.Files[path]
		nextChars := attribution.UpdateAttributions(prior.Content, newContent, prior.CharAttrs, dummyAuthor, ts)
		nextLines := attribution.ToLineAttributions(nextChars, newContent)

		for i, l := range nextLines {
			if l.AuthorID != dummyAuthor {
				continue
			}
			text := lineText(newContent, l)
			if restored, ok := originalLinesByContent[text]; ok {
				nextLines[i].AuthorID = restored
			} else {
				nextLines[i].AuthorID = prompt.HumanAuthor
			}
		}
		nextChars = attribution.ExpandToChars(nextLines, newContent, ts)

		out.Files[path] = virtualattr.FileState{Content: newContent, CharAttrs: nextChars, LineAttrs: nextLines}
	}
	return out
}

func cloneFiles(in map[string]virtualattr.FileState) map[string]virtualattr.FileState {
	out := make(map[string]virtualattr.FileState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func indexLinesByContent(va virtualattr.VirtualAttributions) map[string]string {
	out := make(map[string]string)
	for _, fs := range va.Files {
		lines := splitLines(fs.Content)
		for _, l := range fs.LineAttrs {
			for n := l.Start; n <= l.End && n-1 < len(lines); n++ {
				out[lines[n-1]] = l.AuthorID
			}
		}
	}
	return out
}

func lineText(content string, l attribution.Line) string {
	lines := splitLines(content)
	if l.Start-1 >= 0 && l.Start-1 < len(lines) {
		return lines[l.Start-1]
	}
	return ""
}

func splitLines(content string) []string {
	var out []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			out = append(out, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		out = append(out, content[start:])
	}
	return out
}

// HandleReset carries the pending working log from oldHead to
// targetCommit: a hard reset discards it entirely, while soft/mixed
// resets re-seed it so staged or working-tree edits keep whatever
// attribution they already had.
func HandleReset(repo *gitrepo.Repository, stateDir string, kind ResetKind, oldHead, targetCommit string, now pipeline.Clock) error {
	logsDir := pipeline.WorkingLogsDir(stateDir)

	if kind == ResetHard {
		return workinglog.Delete(logsDir, oldHead, false)
	}

	files, err := repo.DiffNameStatus(targetCommit, oldHead)
	if err != nil {
		return err
	}

	oldStore := workinglog.Open(pipeline.WorkingLogDir(stateDir, oldHead))
	oldInitial := oldStore.ReadInitialAttributions()
	oldCheckpoints, err := oldStore.ReadAllCheckpoints()
	if err != nil {
		return err
	}
	base := make(map[string]string, len(files))
	for _, f := range files {
		if content, ok, ferr := repo.FileContentAt(targetCommit, f); ferr == nil && ok {
			base[f] = content
		}
	}
	oldHeadVA := virtualattr.FromWorkingLog(oldStore, oldInitial, oldCheckpoints, base)

	targetVA, err := virtualattr.NewForBaseCommit(repo, targetCommit, files, now())
	if err != nil {
		return err
	}

	merged := virtualattr.MergeAttributionsFavoringFirst(oldHeadVA, targetVA)
	merged = overlayWorktreeContents(repo, merged, files)

	if err := workinglog.Open(pipeline.WorkingLogDir(stateDir, targetCommit)).Reset(); err != nil {
		return err
	}
	_, initial := merged.ToAuthorshipLogAndInitialWorkingLog("", targetCommit)
	if err := workinglog.Open(pipeline.WorkingLogDir(stateDir, targetCommit)).WriteInitialAttributions(initial); err != nil {
		return err
	}
	return workinglog.Delete(logsDir, oldHead, false)
}

// HandleCheckoutPathspec handles a pathspec'd checkout: attestations
// for the given paths are dropped from both INITIAL and the checkpoint
// log under the current HEAD, since those paths reverted to their
// committed (human, by definition of "no pending attestation") state.
func HandleCheckoutPathspec(stateDir, head string, paths []string) error {
	store := workinglog.Open(pipeline.WorkingLogDir(stateDir, head))
	ia := store.ReadInitialAttributions()
	removed := false
	for _, p := range paths {
		if _, ok := ia.Files[p]; ok {
			delete(ia.Files, p)
			removed = true
		}
	}
	if removed {
		if err := store.WriteInitialAttributions(ia); err != nil {
			return err
		}
	}

	cps, err := store.ReadAllCheckpoints()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}
	var kept []workinglog.Checkpoint
	for _, cp := range cps {
		var entries []workinglog.CheckpointEntry
		for _, e := range cp.Entries {
			if !drop[e.File] {
				entries = append(entries, e)
			}
		}
		if len(entries) > 0 {
			cp.Entries = entries
			kept = append(kept, cp)
		}
	}
	return rewriteCheckpoints(store, kept)
}

// rewriteCheckpoints replaces a store's journal wholesale; used by
// pathspec'd checkout, which removes individual entries rather than
// whole checkpoints.
func rewriteCheckpoints(store *workinglog.Store, cps []workinglog.Checkpoint) error {
	if err := store.Reset(); err != nil {
		return err
	}
	for _, cp := range cps {
		if err := store.AppendCheckpoint(cp, false); err != nil {
			return err
		}
	}
	return nil
}

// HandleCheckoutHeadChange / HandleSwitch implement the branch-switch
// case: the working log simply moves with HEAD, since a plain
// checkout/switch preserves working-tree state.
func HandleCheckoutHeadChange(stateDir, oldHead, newHead string) error {
	return workinglog.Rename(pipeline.WorkingLogsDir(stateDir), oldHead, newHead)
}

// HandleCheckoutMerge captures va as the pre-switch snapshot and writes
// it back as INITIAL under newHead, so `checkout --merge`'s three-way
// merged working tree keeps authorship despite any line shifts a plain
// rename could not follow.
func HandleCheckoutMerge(stateDir, newHead string, va virtualattr.VirtualAttributions) error {
	store := workinglog.Open(pipeline.WorkingLogDir(stateDir, newHead))
	if err := store.Reset(); err != nil {
		return err
	}
	_, initial := va.ToAuthorshipLogAndInitialWorkingLog("", newHead)
	return store.WriteInitialAttributions(initial)
}

// HandleCheckoutForce discards the old working log outright, matching
// `checkout --force`'s discarding of uncommitted state.
func HandleCheckoutForce(stateDir, oldHead string) error {
	return workinglog.Delete(pipeline.WorkingLogsDir(stateDir), oldHead, false)
}

// HandleStashPop writes va (captured by the caller immediately before
// the stash push this pop reverses) back as INITIAL under head.
func HandleStashPop(stateDir, head string, va virtualattr.VirtualAttributions) error {
	store := workinglog.Open(pipeline.WorkingLogDir(stateDir, head))
	_, initial := va.ToAuthorshipLogAndInitialWorkingLog("", head)
	return store.WriteInitialAttributions(initial)
}
