package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirBatchStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	s, err := NewDirBatchStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Put(ctx, "ingestion_run_2025-11-02T10-10-00.json", []byte(`[]`)))
	require.NoError(t, s.Put(ctx, "ingestion_run_2025-11-02T10-00-00.json", []byte(`[{"city":"Delhi"}]`)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ingestion_run_2025-11-02T10-00-00.json",
		"ingestion_run_2025-11-02T10-10-00.json",
	}, ids)

	data, err := s.Get(ctx, "ingestion_run_2025-11-02T10-00-00.json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"city":"Delhi"}]`, string(data))

	_, err = s.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	// No temporary files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestFileLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curated", LedgerFileName)
	l := NewFileLedger(path)
	ctx := context.Background()

	done, err := l.Processed(ctx)
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, l.MarkProcessed(ctx, []string{"a.json", "b.json"}))
	require.NoError(t, l.MarkProcessed(ctx, []string{"b.json", "", "c.json"}))
	require.NoError(t, l.MarkProcessed(ctx, nil))

	done, err = l.Processed(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a.json": {}, "b.json": {}, "c.json": {}}, done)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.json\nb.json\nc.json\n", string(raw))
}
