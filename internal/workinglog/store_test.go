package workinglog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "deadbeef")
	return Open(dir), root
}

func checkpointFor(file, author string, line int64) Checkpoint {
	return Checkpoint{
		APIVersion: APIVersion,
		Kind:       KindAiAgent,
		Timestamp:  line,
		Author:     "tester",
		Entries: []CheckpointEntry{
			{
				File:             file,
				Attributions:     attribution.Vector{{Start: 0, End: 10, AuthorID: author, Timestamp: line}},
				LineAttributions: []attribution.Line{{Start: 1, End: 1, AuthorID: author}},
			},
		},
	}
}

func TestAppendAndReadAllCheckpoints(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.AppendCheckpoint(checkpointFor("a.go", "agent1", 1), false))
	require.NoError(t, s.AppendCheckpoint(checkpointFor("a.go", "agent1", 2), false))
	require.NoError(t, s.AppendCheckpoint(checkpointFor("b.go", "agent1", 3), false))

	cps, err := s.ReadAllCheckpoints()
	require.NoError(t, err)
	require.Len(t, cps, 3)

	// Only the most recent entry per file keeps char-level attributions.
	assert.Nil(t, cps[0].Entries[0].Attributions, "earlier a.go entry should be pruned")
	assert.NotNil(t, cps[1].Entries[0].Attributions, "latest a.go entry should retain char attributions")
	assert.NotNil(t, cps[2].Entries[0].Attributions, "only entry for b.go should retain char attributions")
}

func TestAppendCheckpoint_ClearsRefetchableTranscript(t *testing.T) {
	s, _ := newTestStore(t)
	cp := checkpointFor("a.go", "agent1", 1)
	cp.Transcript = &prompt.Transcript{Messages: []prompt.Message{{Role: prompt.RoleUser, Text: "hi"}}}

	require.NoError(t, s.AppendCheckpoint(cp, true))

	cps, err := s.ReadAllCheckpoints()
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Nil(t, cps[0].Transcript, "refetchable transcripts are cleared before write")
}

func TestWriteAndReadInitialAttributions(t *testing.T) {
	s, _ := newTestStore(t)

	ia := InitialAttributions{
		Files: map[string][]attribution.Line{
			"a.go": {{Start: 1, End: 2, AuthorID: "human"}},
		},
	}
	require.NoError(t, s.WriteInitialAttributions(ia))

	got := s.ReadInitialAttributions()
	assert.Equal(t, ia.Files, got.Files)

	// Writing empty files deletes the INITIAL file rather than writing one.
	require.NoError(t, s.WriteInitialAttributions(InitialAttributions{}))
	_, err := os.Stat(filepath.Join(s.Dir(), initialFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestResetWorkingLog(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.AppendCheckpoint(checkpointFor("a.go", "agent1", 1), false))
	_, err := s.PersistFileVersion([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, s.WriteInitialAttributions(InitialAttributions{Files: map[string][]attribution.Line{"a.go": nil}}))

	require.NoError(t, s.Reset())

	cps, err := s.ReadAllCheckpoints()
	require.NoError(t, err)
	assert.Empty(t, cps)
	assert.Empty(t, s.ReadInitialAttributions().Files)
}

func TestRenameWorkingLog(t *testing.T) {
	_, root := newTestStore(t)
	oldDir := filepath.Join(root, "old-sha")
	require.NoError(t, os.MkdirAll(oldDir, 0o750))

	require.NoError(t, Rename(root, "old-sha", "new-sha"))
	_, err := os.Stat(filepath.Join(root, "new-sha"))
	assert.NoError(t, err)
	_, err = os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))

	// Renaming again (source gone) is a no-op, not an error.
	assert.NoError(t, Rename(root, "old-sha", "new-sha"))
}

func TestDeleteWorkingLog_Diagnostic(t *testing.T) {
	_, root := newTestStore(t)
	dir := filepath.Join(root, "sha1")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	require.NoError(t, Delete(root, "sha1", true))
	_, err := os.Stat(filepath.Join(root, "old-sha1"))
	assert.NoError(t, err)
}

func TestHashMigration(t *testing.T) {
	s, _ := newTestStore(t)

	full := "abc1234567890123"
	legacy := full[:7]

	require.NoError(t, s.AppendCheckpoint(checkpointFor("a.go", full, 1), false))
	require.NoError(t, s.AppendCheckpoint(checkpointFor("b.go", legacy, 2), false))

	cps, err := s.ReadAllCheckpoints()
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, full, cps[1].Entries[0].LineAttributions[0].AuthorID)
}

func TestPersistAndReadBlob(t *testing.T) {
	s, _ := newTestStore(t)
	digest, err := s.PersistFileVersion([]byte("content"))
	require.NoError(t, err)

	got, err := s.ReadBlob(digest)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b.go", NormalizePath("./a/b.go"))
	assert.Equal(t, "a/b.go", NormalizePath(`a\b.go`))
}
