package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"MirrorTrade/internal/model"
)

// PersistenceError marks a failed state write. The tick that caused the
// mutation is abandoned and in-memory state is not advanced, so the next
// tick retries from the last durable state.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist strategy state to %s: %v", e.Path, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// Store owns the single mutable StrategyState record. Every mutation goes
// through Apply, which persists before the in-memory copy advances.
type Store struct {
	mu    sync.Mutex
	path  string
	state *model.StrategyState
	log   zerolog.Logger
}

// NewStore loads the persisted state, or starts INACTIVE when the file is
// absent.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	st, err := load(path)
	if err != nil {
		return nil, err
	}
	log.Info().Bool("active", st.Active).Str("file", path).Msg("strategy state loaded")
	return &Store{path: path, state: st, log: log}, nil
}

func load(path string) (*model.StrategyState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.StrategyState{}, nil
		}
		return nil, fmt.Errorf("read strategy state: %w", err)
	}
	var st model.StrategyState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse strategy state: %w", err)
	}
	return &st, nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() model.StrategyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state.Clone()
}

// Apply mutates a copy of the state, persists it, and only then swaps the
// copy in. A persistence failure leaves the in-memory state untouched.
func (s *Store) Apply(mutate func(*model.StrategyState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	mutate(next)
	next.LastUpdatedAt = time.Now()
	if err := s.save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Clear resets the state to INACTIVE. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &model.StrategyState{}
	if err := s.save(next); err != nil {
		return err
	}
	s.state = next
	s.log.Info().Msg("strategy state cleared")
	return nil
}

// save writes the state atomically: temp file in the same directory, then
// rename over the target.
func (s *Store) save(st *model.StrategyState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".strategy-*.tmp")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}
