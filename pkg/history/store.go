package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store reads and writes the scan history file. Saves replace the whole
// file through a temp file and rename, so a crash mid-write leaves either
// the old or the new content, never a torn one.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the canonical history file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted records. A missing or malformed file is treated
// as empty history, never an error.
func (s *Store) Load() Records {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("Could not read scan history, starting empty")
		}
		return make(Records)
	}

	var records Records
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Corrupted scan history, starting empty")
		return make(Records)
	}
	if records == nil {
		records = make(Records)
	}
	return records
}

// Save atomically replaces the history file with the given record set.
func (s *Store) Save(records Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize scan history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp history file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	log.Debug().Str("path", s.path).Int("programs", len(records)).Msg("Scan history saved")
	return nil
}
