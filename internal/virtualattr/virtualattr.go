// Package virtualattr implements virtual attributions: an in-memory,
// composable replay of a repository's authorship state for a set of
// files, built either from a blame of an existing commit, from a
// working log's checkpoint journal, or from scratch, and collapsible to
// an AuthorshipLog note plus the residual InitialAttributions seed for
// whatever working log follows it.
package virtualattr

import (
	"sort"

	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/authlog"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/prompt"
	"github.com/gitattrib/gitai/internal/workinglog"
)

// FileState is one file's full authorship picture: its current content,
// the char-level vector that produced it, and that vector's line-level
// projection (kept alongside rather than recomputed on every read, since
// ToLineAttributions is O(content) and callers ask for it often).
type FileState struct {
	Content   string
	CharAttrs attribution.Vector
	LineAttrs []attribution.Line
}

// VirtualAttributions is the replayable, in-memory authorship state for a
// set of files plus the prompt accounting that produced it.
type VirtualAttributions struct {
	Files   map[string]FileState
	Prompts map[string]prompt.Record
}

func empty() VirtualAttributions {
	return VirtualAttributions{Files: map[string]FileState{}, Prompts: map[string]prompt.Record{}}
}

// New builds a from-scratch VirtualAttributions where every file is
// wholly human-authored as of now. Used for a repository's very first
// commit, before any agent has touched it.
func New(contents map[string]string, ts int64) VirtualAttributions {
	v := empty()
	for path, content := range contents {
		v.setFileFromCharAttrs(path, content, attribution.HumanBaseline(content, ts))
	}
	return v
}

// NewWithPrompts is New plus a pre-seeded prompt table, used when a
// caller already knows about prompts (e.g. carried over from a squash)
// but has no per-file content to replay them against yet.
func NewWithPrompts(contents map[string]string, ts int64, prompts map[string]prompt.Record) VirtualAttributions {
	v := New(contents, ts)
	for k, r := range prompts {
		v.Prompts[k] = r
	}
	return v
}

// NewForBaseCommit seeds a VirtualAttributions for the given files from
// `git blame` against commitSHA: every line's author is resolved to
// "human", since blame alone cannot recover which historical commits
// were agent-authored once their working logs are gone. This is the
// fallback path used when no working log survives for a base commit
// (e.g. after a git-ai-unaware clone, or history older than retention).
func NewForBaseCommit(repo *gitrepo.Repository, commitSHA string, files []string, ts int64) (VirtualAttributions, error) {
	v := empty()
	for _, path := range files {
		content, ok, err := repo.FileContentAt(commitSHA, path)
		if err != nil {
			return VirtualAttributions{}, err
		}
		if !ok {
			continue
		}
		v.setFileFromCharAttrs(path, content, attribution.HumanBaseline(content, ts))
	}
	return v, nil
}

// FromWorkingLog replays a working log's INITIAL seed and checkpoint
// journal, in order, to reconstruct the current authorship state. base
// supplies each file's pre-checkpoint content (typically the base
// commit's blob); files not present in base are treated as new.
func FromWorkingLog(store *workinglog.Store, initial workinglog.InitialAttributions, checkpoints []workinglog.Checkpoint, base map[string]string) VirtualAttributions {
	v := empty()

	for path, lines := range initial.Files {
		content := base[path]
		v.setFileFromLineAttrs(path, content, lines)
	}
	for k, r := range initial.Prompts {
		v.Prompts[k] = r
	}

	for _, cp := range checkpoints {
		authorID := checkpointAuthorID(cp)
		for _, entry := range cp.Entries {
			v.applyCheckpointEntry(store, entry, authorID, cp.Timestamp)
		}
		if cp.AgentID != nil {
			v.ensurePromptRecord(prompt.HashOf(*cp.AgentID), *cp.AgentID, cp.Transcript)
		}
	}
	return v
}

func checkpointAuthorID(cp workinglog.Checkpoint) string {
	if cp.Kind == workinglog.KindHuman || cp.AgentID == nil {
		return prompt.HumanAuthor
	}
	return prompt.HashOf(*cp.AgentID)
}

// applyCheckpointEntry folds one checkpoint entry's edit into the file's
// running state, preferring the entry's own char-level Attributions (a
// diff against the file's prior recorded content) when present, and
// falling back to expanding LineAttributions when the entry was pruned
// by the working log store's storage bound. Either path resolves the
// entry's real post-edit content from the blob cache (keyed by
// PostBlobSHA) rather than assuming the file never changed.
func (v *VirtualAttributions) applyCheckpointEntry(store *workinglog.Store, entry workinglog.CheckpointEntry, authorID string, ts int64) {
	prior := v.Files[entry.File]

	if entry.Attributions == nil && entry.LineAttributions == nil {
		return
	}

	content := contentFromVector(store, entry, prior.Content)
	var next attribution.Vector
	if entry.Attributions != nil {
		next = entry.Attributions
	} else {
		next = attribution.ExpandToChars(entry.LineAttributions, content, ts)
	}

	if !next.Validate(len(content)) {
		// The recorded vector's offsets don't span the resolved content
		// (e.g. the post-edit blob predates blob persistence, or was never
		// recorded): attribute the whole file to this checkpoint's author
		// rather than replay a vector whose spans no longer line up.
		next = attribution.Vector{{Start: 0, End: len(content), AuthorID: authorID, Timestamp: ts}}
	}

	v.setFileFromCharAttrs(entry.File, content, next)
}

// contentFromVector resolves an entry's real post-edit content via the
// blob cache, keyed by PostBlobSHA. recordToolUseCheckpoint persists both
// the pre- and post-edit blobs for every checkpoint entry it writes, so
// this only falls back to the prior content for checkpoints written
// before blob persistence existed, or when the blob has since been
// evicted.
func contentFromVector(store *workinglog.Store, entry workinglog.CheckpointEntry, prior string) string {
	if store == nil || entry.PostBlobSHA == "" {
		return prior
	}
	data, err := store.ReadBlob(entry.PostBlobSHA)
	if err != nil {
		return prior
	}
	return string(data)
}

func (v *VirtualAttributions) setFileFromCharAttrs(path, content string, charAttrs attribution.Vector) {
	v.Files[path] = FileState{
		Content:   content,
		CharAttrs: charAttrs,
		LineAttrs: attribution.ToLineAttributions(charAttrs, content),
	}
}

func (v *VirtualAttributions) setFileFromLineAttrs(path, content string, lines []attribution.Line) {
	charAttrs := attribution.ExpandToChars(lines, content, 0)
	v.Files[path] = FileState{
		Content:   content,
		CharAttrs: charAttrs,
		LineAttrs: lines,
	}
}

func (v *VirtualAttributions) ensurePromptRecord(hash string, agent prompt.AgentId, t *prompt.Transcript) {
	r, ok := v.Prompts[hash]
	if !ok {
		r = prompt.Record{Agent: agent}
	}
	if t != nil {
		r.Transcript = *t
	}
	v.Prompts[hash] = r
}

// ToAuthorshipLog collapses the current state to the commit note that
// will be attached to the commit these files are being finalized into.
func (v VirtualAttributions) ToAuthorshipLog(gitAiVersion, baseCommitSHA string) authlog.Log {
	var atts []authlog.FileAttestation
	paths := make([]string, 0, len(v.Files))
	for p := range v.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		atts = append(atts, authlog.FromLineAttributions(p, v.Files[p].LineAttrs))
	}
	return authlog.Log{
		SchemaVersion: authlog.SchemaVersion,
		GitAiVersion:  gitAiVersion,
		BaseCommitSHA: baseCommitSHA,
		Prompts:       v.Prompts,
		Attestations:  atts,
	}
}

// ToAuthorshipLogAndInitialWorkingLog collapses the state to both the
// note for the commit just made and the INITIAL seed that should carry
// forward into the working log for the new HEAD, so uncommitted
// attribution history is never lost across a commit boundary.
func (v VirtualAttributions) ToAuthorshipLogAndInitialWorkingLog(gitAiVersion, baseCommitSHA string) (authlog.Log, workinglog.InitialAttributions) {
	log := v.ToAuthorshipLog(gitAiVersion, baseCommitSHA)

	ia := workinglog.InitialAttributions{
		Files:   make(map[string][]attribution.Line, len(v.Files)),
		Prompts: v.Prompts,
	}
	for path, fs := range v.Files {
		ia.Files[path] = fs.LineAttrs
	}
	return log, ia
}

// FilterToAuthors returns a copy of v where every run/line whose author
// is not in keep is reattributed to human. Used by the rewrite
// reconciler to carve a single original commit's authorship back out of
// a squash-merged working log that accumulated many commits' prompts.
func (v VirtualAttributions) FilterToAuthors(keep map[string]bool) VirtualAttributions {
	out := empty()
	for path, fs := range v.Files {
		chars := make(attribution.Vector, len(fs.CharAttrs))
		for i, r := range fs.CharAttrs {
			chars[i] = r
			if !keep[r.AuthorID] {
				chars[i].AuthorID = prompt.HumanAuthor
			}
		}
		lines := make([]attribution.Line, len(fs.LineAttrs))
		for i, l := range fs.LineAttrs {
			lines[i] = l
			if !keep[l.AuthorID] {
				lines[i].AuthorID = prompt.HumanAuthor
			}
			if l.Overrode != "" && !keep[l.Overrode] {
				lines[i].Overrode = ""
			}
		}
		out.Files[path] = FileState{Content: fs.Content, CharAttrs: chars, LineAttrs: lines}
	}
	for hash, r := range v.Prompts {
		if keep[hash] {
			out.Prompts[hash] = r
		}
	}
	return out
}

// MergeAttributionsFavoringFirst combines a and b's file states. For a
// file present in both, a's attribution wins wherever it covers the
// line; b only fills lines a has no opinion on (an empty AuthorID). For
// a file present in only one side, that side's state is used unchanged.
// Used to reconcile two concurrent replays of overlapping history, e.g.
// a rebase's onto-branch state and its replayed commit state.
func MergeAttributionsFavoringFirst(a, b VirtualAttributions) VirtualAttributions {
	out := empty()
	for path, fa := range a.Files {
		fb, ok := b.Files[path]
		if !ok {
			out.Files[path] = fa
			continue
		}
		out.Files[path] = mergeFileFavoringFirst(fa, fb)
	}
	for path, fb := range b.Files {
		if _, ok := a.Files[path]; !ok {
			out.Files[path] = fb
		}
	}
	out.Prompts = MergePromptsPickingNewest(a.Prompts, b.Prompts)
	return out
}

func mergeFileFavoringFirst(a, b FileState) FileState {
	if a.Content != b.Content {
		// Contents diverged; a's view of reality wins outright, matching
		// the "favoring first" contract for anything beyond pure gap-fill.
		return a
	}
	lines := make([]attribution.Line, len(a.LineAttrs))
	copy(lines, a.LineAttrs)
	for i, l := range lines {
		if l.AuthorID != "" {
			continue
		}
		for _, bl := range b.LineAttrs {
			if bl.Start <= l.Start && l.End <= bl.End && bl.AuthorID != "" {
				lines[i].AuthorID = bl.AuthorID
				break
			}
		}
	}
	chars := attribution.ExpandToChars(lines, a.Content, 0)
	return FileState{Content: a.Content, CharAttrs: chars, LineAttrs: lines}
}

// MergePromptsPickingNewest combines two prompt tables. Where a hash
// appears in both, the cumulative totals never regress: the resulting
// record keeps the higher TotalAdds/TotalDels of the two, per
// prompt.Record.RestoreTotals's contract that a rewrite must not lose
// previously recorded history.
func MergePromptsPickingNewest(a, b map[string]prompt.Record) map[string]prompt.Record {
	out := make(map[string]prompt.Record, len(a)+len(b))
	for k, r := range a {
		out[k] = r
	}
	for k, r := range b {
		existing, ok := out[k]
		if !ok {
			out[k] = r
			continue
		}
		r.RestoreTotals(existing.TotalAdds, existing.TotalDels)
		if existing.Accepted > r.Accepted {
			r.Accepted = existing.Accepted
		}
		if existing.Overridden > r.Overridden {
			r.Overridden = existing.Overridden
		}
		out[k] = r
	}
	return out
}

// CalculateAndUpdatePromptMetrics recomputes Accepted/Overridden/
// TotalAdds/TotalDels for every prompt hash appearing in v's current line
// state, comparing against prior (the state before this round of edits)
// to detect displaced authorship.
func (v VirtualAttributions) CalculateAndUpdatePromptMetrics(prior VirtualAttributions) VirtualAttributions {
	out := v
	out.Prompts = make(map[string]prompt.Record, len(v.Prompts))
	for k, r := range v.Prompts {
		out.Prompts[k] = r
	}

	deltaAdds := make(map[string]int)
	deltaDels := make(map[string]int)
	accepted := make(map[string]int)
	overridden := make(map[string]int)

	for path, fs := range v.Files {
		priorLines := prior.Files[path].LineAttrs
		annotated := attribution.AnnotateOverrides(priorLines, fs.LineAttrs)
		for _, l := range annotated {
			n := l.End - l.Start + 1
			if l.AuthorID == "" || l.AuthorID == prompt.HumanAuthor {
				continue
			}
			accepted[l.AuthorID] += n
			deltaAdds[l.AuthorID] += n
			if l.Overrode != "" {
				overridden[l.Overrode] += n
				deltaDels[l.Overrode] += n
			}
		}
	}

	for hash, n := range accepted {
		r := out.Prompts[hash]
		r.Accepted = n
		r.TotalAdds += deltaAdds[hash]
		out.Prompts[hash] = r
	}
	for hash, n := range overridden {
		r := out.Prompts[hash]
		r.Overridden = n
		r.TotalDels += deltaDels[hash]
		out.Prompts[hash] = r
	}
	return out
}
