// Package workinglog implements the working log store: a per-base-commit
// directory holding an append-only checkpoint journal, a content-addressed
// blob cache, and an optional INITIAL seed.
package workinglog

import (
	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/prompt"
)

// APIVersion is the current Checkpoint wire format version. Checkpoints
// read from disk with a different value are skipped, not errors.
const APIVersion = "1"

// Kind is the origin of a Checkpoint.
type Kind string

const (
	KindHuman   Kind = "human"
	KindAiAgent Kind = "ai_agent"
	KindAiTab   Kind = "ai_tab"
)

// Checkpoint is one observation of working-tree state plus authorship
// deltas, emitted by an editor/agent integration or synthesized from
// workspace state.
type Checkpoint struct {
	APIVersion     string           `json:"api_version"`
	Kind           Kind             `json:"kind"`
	Timestamp      int64            `json:"timestamp"`
	Author         string           `json:"author"`
	AgentID        *prompt.AgentId  `json:"agent_id,omitempty"`
	AgentMetadata  map[string]string `json:"agent_metadata,omitempty"`
	Transcript     *prompt.Transcript `json:"transcript,omitempty"`
	Entries        []CheckpointEntry `json:"entries"`
}

// CheckpointEntry is one file touched by a Checkpoint.
//
// Attributions may be pruned to nil by Store.AppendCheckpoint for all but
// the most recent entry for a given file, to bound storage; LineAttributions
// is always retained.
type CheckpointEntry struct {
	File             string               `json:"file"`
	Attributions     attribution.Vector   `json:"attributions,omitempty"`
	LineAttributions []attribution.Line   `json:"line_attributions"`
	PreBlobSHA       string               `json:"pre_blob_sha,omitempty"`
	PostBlobSHA      string               `json:"post_blob_sha,omitempty"`
	// LineCountDelta is added-removed for this entry, computed at append
	// time so callers can sanity-check the journal without re-diffing.
	LineCountDelta int `json:"line_count_delta"`
}

// InitialAttributions is the optional INITIAL seed document: residual
// attribution state for the working tree that was produced outside of
// checkpoints (e.g. carried over from the previous commit, or
// reconstructed after a reset).
type InitialAttributions struct {
	Files   map[string][]attribution.Line `json:"files"`
	Prompts map[string]prompt.Record      `json:"prompts"`
}

// IsEmpty reports whether there is nothing worth writing to disk.
func (ia InitialAttributions) IsEmpty() bool {
	return len(ia.Files) == 0
}
