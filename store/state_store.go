package store

import (
	"fmt"
	"sync"

	"crl/db"
	"crl/jsonx"
	"crl/types"
)

// StateStore persists the ledger's supply counters and initialization record
// under a single key. The counters are small and always read together, so a
// single record keeps commits atomic with the rest of an operation's batch.
type StateStore interface {
	Get() (*types.LedgerState, error)
	Set(state *types.LedgerState) error
	StageSet(batch db.DatabaseBatch, state *types.LedgerState) error
}

type GenericStateStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericStateStore(dbProvider db.DatabaseProvider) (*GenericStateStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericStateStore{
		dbProvider: dbProvider,
	}, nil
}

// Get returns the stored state, or a fresh uninitialized state if none exists
func (s *GenericStateStore) Get() (*types.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.dbProvider.Get([]byte(KeyLedgerState))
	if err != nil {
		return nil, fmt.Errorf("could not get ledger state from db: %w", err)
	}
	if data == nil {
		return types.NewLedgerState(), nil
	}

	var state types.LedgerState
	if err := jsonx.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger state: %w", err)
	}
	return &state, nil
}

func (s *GenericStateStore) Set(state *types.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := jsonx.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger state: %w", err)
	}
	if err := s.dbProvider.Put([]byte(KeyLedgerState), data); err != nil {
		return fmt.Errorf("failed to write ledger state to db: %w", err)
	}
	return nil
}

func (s *GenericStateStore) StageSet(batch db.DatabaseBatch, state *types.LedgerState) error {
	data, err := jsonx.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger state: %w", err)
	}
	batch.Put([]byte(KeyLedgerState), data)
	return nil
}
