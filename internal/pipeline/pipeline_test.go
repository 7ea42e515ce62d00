package pipeline

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/workinglog"
	"github.com/stretchr/testify/require"
)

func fixedClock(ts int64) Clock { return func() int64 { return ts } }

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.email", "tester@example.com")
	run("config", "user.name", "Tester")
	return dir
}

func writeAndStage(t *testing.T, dir, path, content string) {
	t.Helper()
	full := filepath.Join(dir, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	cmd := exec.Command("git", "-C", dir, "add", path)
	require.NoError(t, cmd.Run())
}

func commit(t *testing.T, dir, message string) string {
	t.Helper()
	cmd := exec.Command("git", "-C", dir, "commit", "-q", "-m", message)
	require.NoError(t, cmd.Run())
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	require.NoError(t, err)
	return string(trimNewline(out))
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func TestPreCommit_AppendsHumanBaselineForStagedFiles(t *testing.T) {
	dir := initRepo(t)
	writeAndStage(t, dir, "a.go", "package a\n")

	repo, err := gitrepo.Open(dir)
	require.NoError(t, err)

	stateDir := StateDir(filepath.Join(dir, ".git"))
	require.NoError(t, PreCommit(repo, stateDir, fixedClock(100)))

	head, err := repo.Head()
	require.NoError(t, err)
	base := head
	if base == "" {
		base = gitrepo.EmptyTreeHash
	}
	store := workinglog.Open(WorkingLogDir(stateDir, base))
	cps, err := store.ReadAllCheckpoints()
	require.NoError(t, err)
	require.Len(t, cps, 1)
	require.Len(t, cps[0].Entries, 1)
}

func TestFinalize_WritesNoteAndMovesWorkingLog(t *testing.T) {
	dir := initRepo(t)
	writeAndStage(t, dir, "a.go", "package a\n")
	repo, err := gitrepo.Open(dir)
	require.NoError(t, err)
	stateDir := StateDir(filepath.Join(dir, ".git"))

	require.NoError(t, PreCommit(repo, stateDir, fixedClock(100)))
	sha := commit(t, dir, "first")

	require.NoError(t, Finalize(repo, stateDir, "0.1.0-test", sha, fixedClock(101)))

	_, ok, err := repo.ReadNote(sha)
	require.NoError(t, err)
	require.True(t, ok, "expected an authorship note on the finalized commit")

	_, err = os.Stat(WorkingLogDir(stateDir, sha))
	require.NoError(t, err, "new working log directory should exist")
}
