package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpool_RecordAndSummary(t *testing.T) {
	dir := t.TempDir()

	spool, err := Open(filepath.Join(dir, "gitai", "logs"))
	require.NoError(t, err)
	defer spool.Close() //nolint:errcheck

	require.NoError(t, spool.Record(1000, "cli_command_executed", map[string]any{"command": "gitai status"}))
	require.NoError(t, spool.Record(1001, "cli_command_executed", map[string]any{"command": "gitai blame"}))
	require.NoError(t, spool.Record(1002, "hook_invoked", map[string]any{"hook": "post_tool_use"}))

	counts, err := spool.Summary()
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, "cli_command_executed", counts[0].Event)
	require.Equal(t, 2, counts[0].Count)
	require.Equal(t, "hook_invoked", counts[1].Event)
	require.Equal(t, 1, counts[1].Count)
}

func TestSpool_OpenCreatesDirAndPersists(t *testing.T) {
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "gitai", "logs")

	spool, err := Open(logsDir)
	require.NoError(t, err)
	require.NoError(t, spool.Record(1, "cli_command_executed", nil))
	require.NoError(t, spool.Close())

	reopened, err := Open(logsDir)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	counts, err := reopened.Summary()
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, 1, counts[0].Count)
}

func TestSpool_SummaryEmpty(t *testing.T) {
	dir := t.TempDir()
	spool, err := Open(filepath.Join(dir, "gitai", "logs"))
	require.NoError(t, err)
	defer spool.Close() //nolint:errcheck

	counts, err := spool.Summary()
	require.NoError(t, err)
	require.Empty(t, counts)
}
