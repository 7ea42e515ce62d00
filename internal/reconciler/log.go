// Package reconciler implements the rewrite reconciler: a dispatcher
// over the append-only RewriteLogEvent stream that keeps authorship
// state consistent across amend, squash, rebase, cherry-pick, reset,
// checkout, switch, and stash operations.
package reconciler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"

	"github.com/gitattrib/gitai/internal/giterr"
)

// ResetKind enumerates the flavors of `git reset` the reconciler must
// react to differently.
type ResetKind string

const (
	ResetSoft  ResetKind = "soft"
	ResetMixed ResetKind = "mixed"
	ResetMerge ResetKind = "merge"
	ResetHard  ResetKind = "hard"
)

// CommitEvent records a plain (non-amend) commit.
type CommitEvent struct {
	Commit string `json:"commit"`
	Author string `json:"author"`
}

// CommitAmendEvent records an amend: AmendedCommit is the commit that
// existed before the amend replaced it.
type CommitAmendEvent struct {
	AmendedCommit string `json:"amended_commit"`
	Commit        string `json:"commit"`
	Author        string `json:"author"`
}

// MergeSquashEvent records a `git merge --squash`.
type MergeSquashEvent struct {
	SourceHead string `json:"source_head"`
	TargetHead string `json:"target_head"`
}

// RebaseStartEvent records the beginning of a rebase.
type RebaseStartEvent struct {
	OriginalHead string `json:"original_head"`
	Onto         string `json:"onto,omitempty"`
}

// RebaseCompleteEvent records a finished rebase: OriginalCommits and
// NewCommits are chronological and the same length.
type RebaseCompleteEvent struct {
	OriginalHead    string   `json:"original_head"`
	OriginalCommits []string `json:"original_commits"`
	NewCommits      []string `json:"new_commits"`
}

// RebaseAbortEvent records an aborted rebase; no attribution changes.
type RebaseAbortEvent struct {
	OriginalHead string `json:"original_head"`
}

// CherryPickStartEvent records the beginning of a cherry-pick sequence.
type CherryPickStartEvent struct {
	SourceCommits []string `json:"source_commits"`
}

// CherryPickCompleteEvent records a finished cherry-pick.
type CherryPickCompleteEvent struct {
	SourceCommits []string `json:"source_commits"`
	NewCommits    []string `json:"new_commits"`
}

// CherryPickAbortEvent records an aborted cherry-pick.
type CherryPickAbortEvent struct{}

// Event is one tagged union entry in the rewrite log: exactly one field
// is set, using a `{<variant_tag>: {<variant_fields>}}` wire shape.
type Event struct {
	Commit             *CommitEvent             `json:"Commit,omitempty"`
	CommitAmend        *CommitAmendEvent        `json:"CommitAmend,omitempty"`
	MergeSquash        *MergeSquashEvent        `json:"MergeSquash,omitempty"`
	RebaseStart        *RebaseStartEvent        `json:"RebaseStart,omitempty"`
	RebaseComplete      *RebaseCompleteEvent     `json:"RebaseComplete,omitempty"`
	RebaseAbort        *RebaseAbortEvent        `json:"RebaseAbort,omitempty"`
	CherryPickStart    *CherryPickStartEvent    `json:"CherryPickStart,omitempty"`
	CherryPickComplete *CherryPickCompleteEvent `json:"CherryPickComplete,omitempty"`
	CherryPickAbort    *CherryPickAbortEvent    `json:"CherryPickAbort,omitempty"`
}

// Log is the append-only JSONL rewrite log at <stateDir>/rewrite_log.
type Log struct {
	path string
}

// OpenLog returns a Log rooted at path.
func OpenLog(path string) *Log { return &Log{path: path} }

// Append writes ev as a new line, creating the file if needed.
func (l *Log) Append(ev Event) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return giterr.Environment("reconciler.Log.Append.open", err)
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return giterr.Environment("reconciler.Log.Append.marshal", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return giterr.Environment("reconciler.Log.Append.write", err)
	}
	return nil
}

// ReadAll parses every event in the log. Lines that fail to parse are
// skipped (forward-compatibility: an unknown tag decodes to a
// zero-valued Event with every field nil and is simply not actionable).
func (l *Log) ReadAll() ([]Event, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, giterr.Environment("reconciler.Log.ReadAll", err)
	}
	var out []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1<<16), 8<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// ActiveRebase scans the log for a RebaseStart with no subsequent
// RebaseComplete/RebaseAbort, so a caller can detect "is a rebase
// currently in progress?" without external state.
func (l *Log) ActiveRebase() (*RebaseStartEvent, error) {
	events, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var active *RebaseStartEvent
	for _, ev := range events {
		switch {
		case ev.RebaseStart != nil:
			active = ev.RebaseStart
		case ev.RebaseComplete != nil, ev.RebaseAbort != nil:
			active = nil
		}
	}
	return active, nil
}
