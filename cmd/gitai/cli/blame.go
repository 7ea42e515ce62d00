package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gitattrib/gitai/internal/authlog"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/prompt"
)

// noteReaders bounds how many commit notes Blame resolves concurrently.
// A single file's blame can span hundreds of distinct commits; reading
// their notes one at a time dominates latency on a large, deep file.
const noteReaders = 8

// BlameFormat selects one of the output shapes blame(path, options)
// supports, mirroring the underlying VCS's own blame modes plus a JSON
// mode.
type BlameFormat string

const (
	BlameDefault       BlameFormat = "default"
	BlamePorcelain     BlameFormat = "porcelain"
	BlameLinePorcelain BlameFormat = "line-porcelain"
	BlameIncremental   BlameFormat = "incremental"
	BlameJSON          BlameFormat = "json"
)

// BlameOptions configures a Blame call. Rev is the revision to blame as
// of ("" for the working tree/HEAD, matching plain `git blame`).
type BlameOptions struct {
	Rev    string
	Format BlameFormat
}

// blameLineInfo is one rendered line: the raw blame data plus whatever
// AI attribution was resolved for it from that commit's note.
type blameLineInfo struct {
	gitrepo.BlameLine
	PromptHash string // empty when the line is human-authored
	Tool       string
}

// Blame is the blame(path, options) entry point: it overlays AI
// authorship, read from each owning commit's AuthorshipLog note, onto
// the VCS's native blame.
func Blame(ctx context.Context, path string, opts BlameOptions) (string, error) {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return "", err
	}

	raw, err := repo.Blame(path, opts.Rev)
	if err != nil {
		return "", err
	}

	notes, err := readNotesConcurrently(ctx, repo, uniqueSHAs(raw))
	if err != nil {
		return "", err
	}

	lines := make([]blameLineInfo, len(raw))
	for i, l := range raw {
		info := blameLineInfo{BlameLine: l}
		if note, ok := notes[l.SHA]; ok {
			if hash, tool, found := resolveAttribution(note, l.Filename, l.OrigLine); found {
				info.PromptHash = hash
				info.Tool = tool
			}
		}
		lines[i] = info
	}

	switch opts.Format {
	case BlamePorcelain:
		return renderPorcelain(lines, false), nil
	case BlameLinePorcelain:
		return renderPorcelain(lines, true), nil
	case BlameIncremental:
		return renderIncremental(lines), nil
	case BlameJSON:
		return renderBlameJSON(lines, notes)
	default:
		return renderDefault(lines), nil
	}
}

// uniqueSHAs returns the distinct commit SHAs a blame result touches,
// in first-seen order.
func uniqueSHAs(raw []gitrepo.BlameLine) []string {
	seen := make(map[string]bool, len(raw))
	var shas []string
	for _, l := range raw {
		if !seen[l.SHA] {
			seen[l.SHA] = true
			shas = append(shas, l.SHA)
		}
	}
	return shas
}

// readNotesConcurrently resolves each commit's AuthorshipLog note over
// a bounded worker pool: note reads are independent per-commit git
// invocations, so they parallelize cleanly. A commit with no note, or
// one that fails to parse, is simply absent from the result.
func readNotesConcurrently(ctx context.Context, repo *gitrepo.Repository, shas []string) (map[string]authlog.Log, error) {
	notes := make(map[string]authlog.Log, len(shas))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(noteReaders)

	for _, sha := range shas {
		sha := sha
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			data, ok, err := repo.ReadNote(sha)
			if err != nil || !ok {
				return nil
			}
			log, perr := authlog.Unmarshal(data)
			if perr != nil {
				return nil
			}
			mu.Lock()
			notes[sha] = log
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return notes, nil
}

// resolveAttribution looks up which prompt hash, if any, owns origLine
// of filename in note. Ranges in a note are 1-based inclusive and
// indexed against the file as of the commit the note is attached to —
// exactly what BlameLine.OrigLine already is.
func resolveAttribution(note authlog.Log, filename string, origLine int) (hash, tool string, found bool) {
	for _, att := range note.Attestations {
		if att.FilePath != filename {
			continue
		}
		for _, e := range att.Entries {
			for _, r := range e.Ranges {
				if origLine >= r.Start && origLine <= r.End {
					rec := note.Prompts[e.Hash]
					return e.Hash, rec.Agent.Tool, true
				}
			}
		}
	}
	return "", "", false
}

func authorLabel(l blameLineInfo) string {
	if l.PromptHash != "" {
		tool := l.Tool
		if tool == "" {
			tool = "agent"
		}
		return fmt.Sprintf("%s:%s", tool, l.PromptHash[:min(8, len(l.PromptHash))])
	}
	return l.AuthorName
}

func renderDefault(lines []blameLineInfo) string {
	var b strings.Builder
	for _, l := range lines {
		sha := l.SHA
		if len(sha) > 8 {
			sha = sha[:8]
		}
		date := time.Unix(l.AuthorTime, 0).UTC().Format("2006-01-02")
		fmt.Fprintf(&b, "%s (%-20s %s %5d) %s\n", sha, authorLabel(l), date, l.FinalLine, l.Content)
	}
	return b.String()
}

func renderPorcelain(lines []blameLineInfo, everyLine bool) string {
	var b strings.Builder
	lastSHA := ""
	for _, l := range lines {
		if everyLine || l.SHA != lastSHA {
			fmt.Fprintf(&b, "%s %d %d\n", l.SHA, l.OrigLine, l.FinalLine)
			fmt.Fprintf(&b, "author %s\n", l.AuthorName)
			fmt.Fprintf(&b, "author-mail <%s>\n", l.AuthorMail)
			fmt.Fprintf(&b, "author-time %d\n", l.AuthorTime)
			fmt.Fprintf(&b, "committer %s\n", l.CommitterName)
			fmt.Fprintf(&b, "committer-mail <%s>\n", l.CommitterMail)
			fmt.Fprintf(&b, "committer-time %d\n", l.CommitterTime)
			fmt.Fprintf(&b, "summary %s\n", l.Summary)
			fmt.Fprintf(&b, "filename %s\n", l.Filename)
			if l.PromptHash != "" {
				fmt.Fprintf(&b, "prompt-hash %s\n", l.PromptHash)
				fmt.Fprintf(&b, "prompt-tool %s\n", l.Tool)
			}
		} else {
			fmt.Fprintf(&b, "%s %d %d\n", l.SHA, l.OrigLine, l.FinalLine)
		}
		fmt.Fprintf(&b, "\t%s\n", l.Content)
		lastSHA = l.SHA
	}
	return b.String()
}

func renderIncremental(lines []blameLineInfo) string {
	var b strings.Builder
	i := 0
	for i < len(lines) {
		j := i
		for j < len(lines) && lines[j].SHA == lines[i].SHA {
			j++
		}
		l := lines[i]
		fmt.Fprintf(&b, "%s %d %d %d\n", l.SHA, l.OrigLine, l.FinalLine, j-i)
		fmt.Fprintf(&b, "author %s\n", l.AuthorName)
		fmt.Fprintf(&b, "author-mail <%s>\n", l.AuthorMail)
		fmt.Fprintf(&b, "author-time %d\n", l.AuthorTime)
		fmt.Fprintf(&b, "committer %s\n", l.CommitterName)
		fmt.Fprintf(&b, "committer-mail <%s>\n", l.CommitterMail)
		fmt.Fprintf(&b, "committer-time %d\n", l.CommitterTime)
		fmt.Fprintf(&b, "summary %s\n", l.Summary)
		fmt.Fprintf(&b, "filename %s\n", l.Filename)
		if l.PromptHash != "" {
			fmt.Fprintf(&b, "prompt-hash %s\n", l.PromptHash)
			fmt.Fprintf(&b, "prompt-tool %s\n", l.Tool)
		}
		i = j
	}
	return b.String()
}

// promptSummary is the blame --json per-hash payload: a PromptRecord
// plus the cross-commit/cross-file footprint this blame call happened
// to observe.
type promptSummary struct {
	prompt.Record
	OtherFiles []string `json:"other_files,omitempty"`
	Commits    []string `json:"commits,omitempty"`
}

type blameJSONOutput struct {
	Lines   map[string]string        `json:"lines"`
	Prompts map[string]promptSummary `json:"prompts"`
}

func renderBlameJSON(lines []blameLineInfo, notes map[string]authlog.Log) (string, error) {
	out := blameJSONOutput{
		Lines:   map[string]string{},
		Prompts: map[string]promptSummary{},
	}

	commitsByHash := map[string]map[string]bool{}
	otherFilesByHash := map[string]map[string]bool{}

	i := 0
	for i < len(lines) {
		j := i
		for j < len(lines) && lines[j].PromptHash == lines[i].PromptHash && lines[j].SHA == lines[i].SHA {
			j++
		}
		if lines[i].PromptHash != "" {
			rangeStr := strconv.Itoa(lines[i].FinalLine)
			if j-i > 1 {
				rangeStr = rangeStr + "-" + strconv.Itoa(lines[j-1].FinalLine)
			}
			out.Lines[rangeStr] = lines[i].PromptHash
		}
		i = j
	}

	for sha, note := range notes {
		for _, att := range note.Attestations {
			for _, e := range att.Entries {
				if commitsByHash[e.Hash] == nil {
					commitsByHash[e.Hash] = map[string]bool{}
				}
				commitsByHash[e.Hash][sha] = true
			}
		}
	}

	targetFile := ""
	for _, l := range lines {
		if l.PromptHash != "" {
			targetFile = l.Filename
			break
		}
	}
	for _, note := range notes {
		for _, att := range note.Attestations {
			if att.FilePath == targetFile {
				continue
			}
			for _, e := range att.Entries {
				if otherFilesByHash[e.Hash] == nil {
					otherFilesByHash[e.Hash] = map[string]bool{}
				}
				otherFilesByHash[e.Hash][att.FilePath] = true
			}
		}
	}

	for _, note := range notes {
		for hash, rec := range note.Prompts {
			if _, already := out.Prompts[hash]; already {
				continue
			}
			if !hashIsAttributed(out.Lines, hash) {
				continue
			}
			s := promptSummary{Record: rec}
			for c := range commitsByHash[hash] {
				s.Commits = append(s.Commits, c)
			}
			sort.Strings(s.Commits)
			for f := range otherFilesByHash[hash] {
				s.OtherFiles = append(s.OtherFiles, f)
			}
			sort.Strings(s.OtherFiles)
			out.Prompts[hash] = s
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func hashIsAttributed(lines map[string]string, hash string) bool {
	for _, h := range lines {
		if h == hash {
			return true
		}
	}
	return false
}
