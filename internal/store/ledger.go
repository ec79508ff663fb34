package store

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LedgerFileName is the ledger file created next to the curated dataset.
const LedgerFileName = "_processed_files.log"

// FileLedger is an append-only, newline-delimited list of processed batch identities.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Processed reads the set of recorded identities. A missing file is an empty ledger.
func (l *FileLedger) Processed(_ context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *FileLedger) read() (map[string]struct{}, error) {
	set := make(map[string]struct{})

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			set[id] = struct{}{}
		}
	}
	return set, scanner.Err()
}

// MarkProcessed appends the identities not already present. Nothing is ever removed.
func (l *FileLedger) MarkProcessed(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read()
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, id := range ids {
		if _, ok := existing[id]; ok || id == "" {
			continue
		}
		existing[id] = struct{}{}
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
