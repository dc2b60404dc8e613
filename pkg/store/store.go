// Package store persists agent records as a single JSON snapshot file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sipeed/picohub/pkg/hub"
	"github.com/sipeed/picohub/pkg/logger"
)

// FileStore reads and writes the snapshot file. Every Save replaces the whole
// file using a temp file + rename, so a crash never leaves a torn snapshot.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns the persisted records. A missing file is a fresh start; an
// unreadable or corrupt file is logged and also yields an empty map.
func (s *FileStore) Load() map[string]hub.AgentRecord {
	records, err := s.Read()
	switch {
	case err == nil:
		logger.InfoCF("store", "Loaded snapshot", map[string]any{
			"path":   s.path,
			"agents": len(records),
		})
		return records
	case errors.Is(err, os.ErrNotExist):
		logger.InfoCF("store", "No snapshot found, starting empty", map[string]any{"path": s.path})
	default:
		logger.ErrorCF("store", "Failed to load snapshot, starting empty", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
	}
	return map[string]hub.AgentRecord{}
}

// Read is Load without the fallback, for callers that want the error.
func (s *FileStore) Read() (map[string]hub.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	records := map[string]hub.AgentRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if records == nil {
		records = map[string]hub.AgentRecord{}
	}
	return records, nil
}

// Save overwrites the snapshot with records.
func (s *FileStore) Save(records map[string]hub.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
