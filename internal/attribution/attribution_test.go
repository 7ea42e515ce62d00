package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAttributions_CoverageInvariant(t *testing.T) {
	old := "line one\nline two\nline three\n"
	oldAttrs := HumanBaseline(old, 1)

	next := "line one\nline TWO edited\nline three\nline four\n"
	got := UpdateAttributions(old, next, oldAttrs, "agent-a", 2)

	require.True(t, got.Validate(len(next)), "attribution vector must cover exactly len(content)")
}

func TestUpdateAttributions_PreservesUnchangedRegions(t *testing.T) {
	old := "alpha\nbeta\ngamma\n"
	oldAttrs := Vector{
		{Start: 0, End: 6, AuthorID: "human", Timestamp: 1},  // "alpha\n"
		{Start: 6, End: 11, AuthorID: "agentA", Timestamp: 2}, // "beta\n"
		{Start: 11, End: 17, AuthorID: "human", Timestamp: 1}, // "gamma\n"
	}
	require.True(t, oldAttrs.Validate(len(old)))

	next := "alpha\nbeta\ndelta\ngamma\n"
	got := UpdateAttributions(old, next, oldAttrs, "agentB", 3)
	require.True(t, got.Validate(len(next)))

	lines := ToLineAttributions(got, next)
	byLine := map[int]string{}
	for _, l := range lines {
		for n := l.Start; n <= l.End; n++ {
			byLine[n] = l.AuthorID
		}
	}
	assert.Equal(t, "human", byLine[1])   // alpha unchanged
	assert.Equal(t, "agentA", byLine[2])  // beta unchanged
	assert.Equal(t, "agentB", byLine[3])  // delta inserted
	assert.Equal(t, "human", byLine[4])   // gamma unchanged
}

func TestUpdateAttributions_RoundTrip(t *testing.T) {
	// Every line containing at least one changed character is assigned to
	// the new author; every fully unchanged line preserves its author.
	old := "a\nb\nc\nd\n"
	oldAttrs := HumanBaseline(old, 1)

	next := "a\nB-CHANGED\nc\nd\n"
	got := UpdateAttributions(old, next, oldAttrs, "agentX", 5)
	lines := ToLineAttributions(got, next)

	for _, l := range lines {
		if l.Start <= 2 && l.End >= 2 {
			assert.Equal(t, "agentX", l.AuthorID, "changed line must belong to new author")
		}
	}
	for _, l := range lines {
		if l.Start == 1 || l.Start == 3 {
			assert.Equal(t, "human", l.AuthorID, "unchanged lines must keep prior author")
		}
	}
}

func TestUpdateAttributions_FullReplacement(t *testing.T) {
	old := "old content entirely\n"
	next := "completely different content\n"
	got := UpdateAttributions(old, next, HumanBaseline(old, 1), "agentZ", 9)
	require.Len(t, got, 1)
	assert.Equal(t, "agentZ", got[0].AuthorID)
	assert.True(t, got.Validate(len(next)))
}

func TestUpdateAttributions_EmptyContent(t *testing.T) {
	got := UpdateAttributions("something\n", "", HumanBaseline("something\n", 1), "agentA", 1)
	assert.Nil(t, got)
	assert.Empty(t, ToLineAttributions(got, ""))
}

func TestToLineAttributions_MergesAdjacentSameAuthor(t *testing.T) {
	content := "one\ntwo\nthree\n"
	v := Vector{{Start: 0, End: len(content), AuthorID: "human", Timestamp: 1}}
	lines := ToLineAttributions(v, content)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Start)
	assert.Equal(t, 3, lines[0].End)
}

func TestAnnotateOverrides(t *testing.T) {
	prior := []Line{{Start: 1, End: 1, AuthorID: "human"}, {Start: 2, End: 2, AuthorID: "promptHash1"}}
	next := []Line{{Start: 1, End: 1, AuthorID: "human"}, {Start: 2, End: 2, AuthorID: "promptHash2"}}

	out := AnnotateOverrides(prior, next)
	assert.Empty(t, out[0].Overrode)
	assert.Equal(t, "promptHash1", out[1].Overrode)
}
