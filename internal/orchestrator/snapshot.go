package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// Store persists Snapshots as one JSON file per UUID under dir (spec §6
// "Storage collaborator keys snapshots by UUID").
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// NewSnapshot assembles an immutable Snapshot from a completed batch's
// events, stamped with a fresh RFC 4122 UUID (spec §6 "Snapshot layout").
func NewSnapshot(meta string, events []protocol.Event, now time.Time) protocol.Snapshot {
	return protocol.Snapshot{
		UUID:      uuid.NewString(),
		Timestamp: float64(now.UnixNano()) / 1e9,
		Meta:      meta,
		Events:    events,
	}
}

// Save writes snap under its own UUID, atomically (temp-file + rename,
// matching the discipline internal/executor.Cache already uses for its own
// on-disk entries).
func (s *Store) Save(snap protocol.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshal snapshot %s: %w", snap.UUID, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+snap.UUID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("orchestrator: snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("orchestrator: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("orchestrator: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path(snap.UUID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("orchestrator: rename snapshot: %w", err)
	}
	return nil
}

// Load reads back the snapshot stored under id.
func (s *Store) Load(id string) (protocol.Snapshot, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("orchestrator: load snapshot %s: %w", id, err)
	}
	var snap protocol.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return protocol.Snapshot{}, fmt.Errorf("orchestrator: decode snapshot %s: %w", id, err)
	}
	return snap, nil
}
