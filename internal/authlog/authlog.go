// Package authlog implements the AuthorshipLog sidecar payload: the
// per-commit note describing which lines of which files belong to
// which prompt hash.
package authlog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/prompt"
)

// SchemaVersion is the current AuthorshipLog note schema version.
const SchemaVersion = "3"

// Range is an inclusive, 1-based line range. A single-line range
// serializes as a bare integer; a multi-line range serializes as a
// [start, end] tuple.
type Range struct {
	Start, End int
}

// MarshalJSON implements the scalar/tuple encoding.
func (r Range) MarshalJSON() ([]byte, error) {
	if r.Start == r.End {
		return json.Marshal(r.Start)
	}
	return json.Marshal([2]int{r.Start, r.End})
}

// UnmarshalJSON accepts both the scalar and tuple forms.
func (r *Range) UnmarshalJSON(data []byte) error {
	var scalar int
	if err := json.Unmarshal(data, &scalar); err == nil {
		r.Start, r.End = scalar, scalar
		return nil
	}
	var tuple [2]int
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("authlog: invalid range %s: %w", data, err)
	}
	r.Start, r.End = tuple[0], tuple[1]
	return nil
}

// AttestationEntry attributes a set of ranges within one file to a
// single prompt hash.
type AttestationEntry struct {
	Hash   string  `json:"hash"`
	Ranges []Range `json:"ranges"`
}

// FileAttestation lists every AI-attributed entry for one file. Files
// never list "human" explicitly — any line not covered by any entry is
// human by definition.
type FileAttestation struct {
	FilePath string             `json:"file_path"`
	Entries  []AttestationEntry `json:"entries"`
}

// Log is the AuthorshipLog note attached to a commit.
type Log struct {
	SchemaVersion  string                   `json:"schema_version"`
	GitAiVersion   string                   `json:"git_ai_version"`
	BaseCommitSHA  string                   `json:"base_commit_sha"`
	Prompts        map[string]prompt.Record `json:"prompts"`
	Attestations   []FileAttestation        `json:"attestations"`
}

// noteDocument is the on-the-wire shape: {"metadata": {...}, "attestations": [...]}.
type noteDocument struct {
	Metadata struct {
		SchemaVersion string                   `json:"schema_version"`
		GitAiVersion  string                   `json:"git_ai_version"`
		BaseCommitSHA string                   `json:"base_commit_sha"`
		Prompts       map[string]prompt.Record `json:"prompts"`
	} `json:"metadata"`
	Attestations []FileAttestation `json:"attestations"`
}

// Marshal serializes the log to its note wire format.
func (l Log) Marshal() ([]byte, error) {
	var doc noteDocument
	doc.Metadata.SchemaVersion = SchemaVersion
	doc.Metadata.GitAiVersion = l.GitAiVersion
	doc.Metadata.BaseCommitSHA = l.BaseCommitSHA
	doc.Metadata.Prompts = l.Prompts
	doc.Attestations = canonicalize(l.Attestations)
	return json.Marshal(doc)
}

// Unmarshal parses a note payload. Unknown fields are ignored so older
// gitai versions can still read notes written by a newer schema.
func Unmarshal(data []byte) (Log, error) {
	var doc noteDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Log{}, fmt.Errorf("authlog: parse note: %w", err)
	}
	return Log{
		SchemaVersion: doc.Metadata.SchemaVersion,
		GitAiVersion:  doc.Metadata.GitAiVersion,
		BaseCommitSHA: doc.Metadata.BaseCommitSHA,
		Prompts:       doc.Metadata.Prompts,
		Attestations:  doc.Attestations,
	}, nil
}

// canonicalize sorts attestations by file path and, within each file,
// sorts and merges ranges that touch or overlap.
func canonicalize(atts []FileAttestation) []FileAttestation {
	out := make([]FileAttestation, len(atts))
	copy(out, atts)
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	for i := range out {
		for j := range out[i].Entries {
			out[i].Entries[j].Ranges = mergeRanges(out[i].Entries[j].Ranges)
		}
		sort.Slice(out[i].Entries, func(a, b int) bool { return out[i].Entries[a].Hash < out[i].Entries[b].Hash })
	}
	return out
}

func mergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// FromLineAttributions groups line-level attributions by author into
// FileAttestation entries, merging touching ranges. "human" lines are
// never attested — they are the absence of an entry.
func FromLineAttributions(filePath string, lines []attribution.Line) FileAttestation {
	byAuthor := make(map[string][]Range)
	for _, l := range lines {
		if l.AuthorID == "" || l.AuthorID == prompt.HumanAuthor {
			continue
		}
		byAuthor[l.AuthorID] = append(byAuthor[l.AuthorID], Range{Start: l.Start, End: l.End})
	}

	var entries []AttestationEntry
	for hash, ranges := range byAuthor {
		entries = append(entries, AttestationEntry{Hash: hash, Ranges: mergeRanges(ranges)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })

	return FileAttestation{FilePath: filePath, Entries: entries}
}

// HumanLines returns the total number of human-attributed lines implied
// by the gap between totalLines and every attested range in att.
func HumanLines(att FileAttestation, totalLines int) int {
	attested := 0
	for _, e := range att.Entries {
		for _, r := range e.Ranges {
			attested += r.End - r.Start + 1
		}
	}
	if totalLines < attested {
		return 0
	}
	return totalLines - attested
}
