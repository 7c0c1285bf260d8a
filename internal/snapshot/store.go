package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fleet-sched/internal/logging"
)

// Well-known snapshot names written at the end of every cycle.
const (
	NamePool        = "pool"
	NameTargets     = "targets"
	NameAssignments = "assignments"
	NameTracking    = "tracking"
	NameStrategy    = "strategy"
	NameBroadcast   = "broadcast"
)

// Store persists JSON snapshots atomically (temp file + rename). Reads never
// fail the cycle: a missing or corrupt snapshot yields the caller's default.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save writes the snapshot atomically.
func (s *Store) Save(name string, v any) error {
	finalPath := s.path(name)

	tmp, err := os.CreateTemp(s.dir, name+".json.tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return err
	}
	ok = true
	return nil
}

// Load reads a snapshot into the default value. On a missing or unreadable
// file the default is returned unchanged; a corrupt file is logged and also
// falls back to the default.
func Load[T any](s *Store, name string, def T) T {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return def
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		logging.GetLogger().WithField("snapshot", name).WithError(err).Warn("Corrupt snapshot, using default")
		return def
	}
	return out
}

// Raw returns the snapshot file contents, for the operator dump surface.
func (s *Store) Raw(name string) ([]byte, error) {
	return os.ReadFile(s.path(name))
}
