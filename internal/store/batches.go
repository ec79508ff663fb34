package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const batchExt = ".json"

// DirBatchStore keeps raw batches as JSON files in a local directory.
// A batch identity is its file name.
type DirBatchStore struct {
	dir string
}

// NewDirBatchStore creates the directory if needed.
func NewDirBatchStore(dir string) (*DirBatchStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw data dir: %w", err)
	}
	return &DirBatchStore{dir: dir}, nil
}

func (s *DirBatchStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), batchExt) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *DirBatchStore) Get(_ context.Context, id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.Base(id)))
}

// Put writes to a temporary file and renames it, so List never sees a partial batch.
func (s *DirBatchStore) Put(_ context.Context, id string, data []byte) error {
	final := filepath.Join(s.dir, filepath.Base(id))
	return writeFileAtomic(final, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
