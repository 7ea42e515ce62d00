package gitrepo

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffTreeBatch_ReportsChangedFilesPerCommit(t *testing.T) {
	dir := initTestRepo(t)
	writeAndStage(t, dir, "a.go", "v1\n")
	first := commitAll(t, dir, "first")
	writeAndStage(t, dir, "b.go", "v1\n")
	second := commitAll(t, dir, "second")
	writeAndStage(t, dir, "a.go", "v2\n")
	writeAndStage(t, dir, "c.go", "v1\n")
	third := commitAll(t, dir, "third")

	repo, err := Open(dir)
	require.NoError(t, err)

	result, err := repo.DiffTreeBatch([]string{first, second, third})
	require.NoError(t, err)

	require.Equal(t, []string{"a.go"}, result[first])
	require.Equal(t, []string{"b.go"}, result[second])

	got := append([]string(nil), result[third]...)
	sort.Strings(got)
	require.Equal(t, []string{"a.go", "c.go"}, got)
}

func TestDiffTreeBatch_EmptyInputReturnsEmptyMap(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	require.NoError(t, err)

	result, err := repo.DiffTreeBatch(nil)
	require.NoError(t, err)
	require.Empty(t, result)
}

func TestCatFileBatch_ResolvesMultipleBlobsInOneCall(t *testing.T) {
	dir := initTestRepo(t)
	writeAndStage(t, dir, "a.go", "package a\n")
	writeAndStage(t, dir, "b.go", "package b\n")
	sha := commitAll(t, dir, "initial")

	repo, err := Open(dir)
	require.NoError(t, err)

	requests := []BlobRequest{
		{Commit: sha, Path: "a.go"},
		{Commit: sha, Path: "b.go"},
		{Commit: sha, Path: "missing.go"},
	}
	results, err := repo.CatFileBatch(requests)
	require.NoError(t, err)

	require.True(t, results[requests[0]].Exists)
	require.Equal(t, "package a\n", results[requests[0]].Content)
	require.True(t, results[requests[1]].Exists)
	require.Equal(t, "package b\n", results[requests[1]].Content)
	require.False(t, results[requests[2]].Exists)
}

func TestCatFileBatch_EmptyInputReturnsEmptyMap(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	require.NoError(t, err)

	result, err := repo.CatFileBatch(nil)
	require.NoError(t, err)
	require.Empty(t, result)
}
