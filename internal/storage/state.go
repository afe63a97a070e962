// Package storage persists controller data on the local filesystem: the
// update state record and pre-rollback snapshots.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
	"github.com/yz4230/selfupdate/internal/entity"
)

type StateStore interface {
	// Load returns the stored record, or an empty one when the file is
	// missing or unreadable.
	Load() entity.PersistentState
	// Save merges updates into the stored record.
	Save(updates entity.PersistentState) error
}

type StateStoreImpl struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
}

// Load implements StateStore.
func (s *StateStoreImpl) Load() entity.PersistentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *StateStoreImpl) load() entity.PersistentState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("read update state")
		}
		return entity.PersistentState{}
	}
	state, err := decodeState(data)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("update state is not a JSON object, ignoring")
		return entity.PersistentState{}
	}
	return state
}

// decodeState parses a single JSON object. Numbers stay json.Number so
// values written by other versions are saved back unchanged.
func decodeState(data []byte) (entity.PersistentState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var state entity.PersistentState
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.New("null state")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after state object")
	}
	return state, nil
}

// Save implements StateStore.
func (s *StateStoreImpl) Save(updates entity.PersistentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	maps.Copy(state, updates)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("encode update state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write update state: %w", err)
	}
	return nil
}

func NewStateStore(path string, log zerolog.Logger) StateStore {
	return &StateStoreImpl{path: path, log: log}
}
