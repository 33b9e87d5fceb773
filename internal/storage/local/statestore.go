package local

import (
	"fmt"

	"questpulse/internal/engine"
)

const (
	stateCollection = "engine"
	stateID         = "state"
)

// StateStore persists the engine's serialized state as a single JSON record.
type StateStore struct {
	store *Store
}

// NewStateStore creates a state store rooted at basePath.
func NewStateStore(basePath string) (*StateStore, error) {
	store, err := NewStore(basePath)
	if err != nil {
		return nil, err
	}
	return &StateStore{store: store}, nil
}

// Save writes the state record, replacing any previous one.
func (s *StateStore) Save(state engine.State) error {
	if err := s.store.Save(stateCollection, stateID, state); err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	return nil
}

// Load reads the state record. A missing record returns ErrNotFound; a fresh
// install starts from zero state.
func (s *StateStore) Load() (engine.State, error) {
	var state engine.State
	if err := s.store.Load(stateCollection, stateID, &state); err != nil {
		return engine.State{}, err
	}
	return state, nil
}

// Exists reports whether a state record has ever been written.
func (s *StateStore) Exists() bool {
	return s.store.Exists(stateCollection, stateID)
}
