package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateStore remembers when a named watcher last completed a cycle.
// *postgres.Store satisfies it.
type StateStore interface {
	LoadState(ctx context.Context, name string) (int64, bool, error)
	SaveState(ctx context.Context, name string, ts int64) error
}

type checkpoint struct {
	LastCycleMs int64  `json:"last_cycle_ms"`
	UpdatedAt   string `json:"updated_at"`
}

// FileState persists checkpoints for any number of watchers in one JSON file.
type FileState struct {
	path string
	mu   sync.Mutex
}

func NewFileState(path string) *FileState {
	return &FileState{path: path}
}

func (f *FileState) LoadState(_ context.Context, name string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return 0, false, err
	}
	cp, ok := all[name]
	return cp.LastCycleMs, ok, nil
}

func (f *FileState) SaveState(_ context.Context, name string, ts int64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	all[name] = checkpoint{
		LastCycleMs: ts,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

func (f *FileState) read() (map[string]checkpoint, error) {
	all := make(map[string]checkpoint)

	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return all, nil
}
