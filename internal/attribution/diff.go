package attribution

import "github.com/sergi/go-diff/diffmatchpatch"

// equalSpans computes the character diff of oldContent against
// newContent and returns the list of spans present, unchanged, in both,
// in order. Uses the same diffmatchpatch-based approach as the line-level
// diffing in attribution.go, applied here at character granularity since
// attribution runs are char-offset intervals.
func equalSpans(oldContent, newContent string) []equalSpan {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemanticLossless(diffs)

	var spans []equalSpan
	oldPos, newPos := 0, 0
	for _, d := range diffs {
		n := len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			spans = append(spans, equalSpan{
				oldStart: oldPos, oldEnd: oldPos + n,
				newStart: newPos, newEnd: newPos + n,
			})
			oldPos += n
			newPos += n
		case diffmatchpatch.DiffDelete:
			oldPos += n
		case diffmatchpatch.DiffInsert:
			newPos += n
		}
	}
	return spans
}
