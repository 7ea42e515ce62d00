package attribution

// Line is a 1-indexed, inclusive line-level projection of a char-level
// attribution vector. Overrode records who a line's prior attribution
// belonged to, when this run displaced a distinct author.
type Line struct {
	Start, End int
	AuthorID   string
	Overrode   string // empty when nothing was displaced
}

// lineBounds returns the half-open char offsets [start, end) of each
// line in content, where lines are split on '\n' and the newline itself
// belongs to the line it terminates.
func lineBounds(content string) [][2]int {
	if content == "" {
		return nil
	}
	var bounds [][2]int
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			bounds = append(bounds, [2]int{start, i + 1})
			start = i + 1
		}
	}
	if start < len(content) {
		bounds = append(bounds, [2]int{start, len(content)})
	}
	return bounds
}

// ToLineAttributions computes attributions_to_line_attributions: for
// each line, the author owning the majority of its non-whitespace
// characters (ties broken by earliest byte). Adjacent lines with the
// same author are merged into a single Line range.
func ToLineAttributions(v Vector, content string) []Line {
	bounds := lineBounds(content)
	if len(bounds) == 0 {
		return nil
	}

	lineAuthors := make([]string, len(bounds))
	for i, b := range bounds {
		lineAuthors[i] = majorityAuthor(v, content, b[0], b[1])
	}

	var out []Line
	lineNo := 1
	for i := 0; i < len(lineAuthors); {
		j := i
		for j < len(lineAuthors) && lineAuthors[j] == lineAuthors[i] {
			j++
		}
		out = append(out, Line{
			Start:    lineNo,
			End:      lineNo + (j - i) - 1,
			AuthorID: lineAuthors[i],
		})
		lineNo += j - i
		i = j
	}
	return out
}

// majorityAuthor finds, among the runs overlapping [lo, hi), the author
// owning the most non-whitespace characters; ties go to whichever author
// appears first (smallest start offset).
func majorityAuthor(v Vector, content string, lo, hi int) string {
	counts := make(map[string]int)
	order := make(map[string]int)
	for _, r := range v {
		start := max(r.Start, lo)
		end := min(r.End, hi)
		if start >= end {
			continue
		}
		n := nonWhitespaceCount(content[start:end])
		if n == 0 {
			continue
		}
		if _, seen := order[r.AuthorID]; !seen {
			order[r.AuthorID] = start
		}
		counts[r.AuthorID] += n
	}
	if len(counts) == 0 {
		// Whitespace-only or empty line: fall back to whichever run
		// covers the start of the line, if any.
		for _, r := range v {
			if r.Start <= lo && lo < r.End {
				return r.AuthorID
			}
		}
		return ""
	}

	best, bestCount, bestOrder := "", -1, int(^uint(0)>>1)
	for author, count := range counts {
		o := order[author]
		if count > bestCount || (count == bestCount && o < bestOrder) {
			best, bestCount, bestOrder = author, count, o
		}
	}
	return best
}

func nonWhitespaceCount(s string) int {
	n := 0
	for _, r := range s {
		if !isSpace(r) {
			n++
		}
	}
	return n
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// AnnotateOverrides fills Overrode on each entry of next by comparing
// against the prior line-level state: when a line's author changed,
// Overrode records the author it displaced. Used for overridden_lines
// accounting in prompt.Record.
func AnnotateOverrides(prior, next []Line) []Line {
	priorAuthor := func(lineNo int) string {
		for _, l := range prior {
			if lineNo >= l.Start && lineNo <= l.End {
				return l.AuthorID
			}
		}
		return ""
	}

	out := make([]Line, len(next))
	for i, l := range next {
		out[i] = l
		// A merged range can span lines that had different prior
		// authors; only mark Overrode when the whole range displaces a
		// single, different, non-empty prior author uniformly at its
		// first line (a "first line wins" approach to diff-derived hunk
		// boundaries).
		if prev := priorAuthor(l.Start); prev != "" && prev != l.AuthorID {
			out[i].Overrode = prev
		}
	}
	return out
}

// CountLines returns the number of Line entries that have a non-empty
// AuthorID equal to author, in line units (not ranges).
func CountLines(lines []Line, author string) int {
	n := 0
	for _, l := range lines {
		if l.AuthorID == author {
			n += l.End - l.Start + 1
		}
	}
	return n
}

// CountOverridden sums line counts where Overrode equals author.
func CountOverridden(lines []Line, author string) int {
	n := 0
	for _, l := range lines {
		if l.Overrode == author {
			n += l.End - l.Start + 1
		}
	}
	return n
}

// ExpandToChars rebuilds a char-level Vector from a line-level
// projection and content, used when only line resolution is available
// (e.g. an INITIAL seed) but a char vector is required downstream.
func ExpandToChars(lines []Line, content string, ts int64) Vector {
	bounds := lineBounds(content)
	var out []Run
	for _, l := range lines {
		if l.Start < 1 || l.Start-1 >= len(bounds) {
			continue
		}
		start := bounds[l.Start-1][0]
		endIdx := l.End - 1
		if endIdx >= len(bounds) {
			endIdx = len(bounds) - 1
		}
		end := bounds[endIdx][1]
		out = append(out, Run{Start: start, End: end, AuthorID: l.AuthorID, Timestamp: ts})
	}
	if len(out) == 0 && content != "" {
		return attributionFallback(content, ts)
	}
	// Fill any gap at the very end (trailing content not covered by any
	// line range, e.g. a trailing newline policy edge case) with the
	// last author.
	if len(out) > 0 && out[len(out)-1].End < len(content) {
		out[len(out)-1].End = len(content)
	}
	return merged(out)
}

func attributionFallback(content string, ts int64) Vector {
	return Vector{{Start: 0, End: len(content), AuthorID: "human", Timestamp: ts}}
}
