package store

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"crl/db"
	"crl/utils"
)

// AllowanceStore persists the (owner, spender) -> remaining amount map.
// A missing entry reads as zero.
type AllowanceStore interface {
	Get(owner, spender string) (*uint256.Int, error)
	Set(owner, spender string, amount *uint256.Int) error
	StageSet(batch db.DatabaseBatch, owner, spender string, amount *uint256.Int)
}

type GenericAllowanceStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericAllowanceStore(dbProvider db.DatabaseProvider) (*GenericAllowanceStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericAllowanceStore{
		dbProvider: dbProvider,
	}, nil
}

func (s *GenericAllowanceStore) Get(owner, spender string) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.dbProvider.Get(s.getDbKey(owner, spender))
	if err != nil {
		return nil, fmt.Errorf("could not get allowance %s->%s from db: %w", owner, spender, err)
	}
	if data == nil {
		return uint256.NewInt(0), nil
	}
	return utils.Uint256FromString(string(data)), nil
}

func (s *GenericAllowanceStore) Set(owner, spender string, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.dbProvider.Put(s.getDbKey(owner, spender), []byte(utils.Uint256ToString(amount)))
	if err != nil {
		return fmt.Errorf("failed to write allowance to db: %w", err)
	}
	return nil
}

func (s *GenericAllowanceStore) StageSet(batch db.DatabaseBatch, owner, spender string, amount *uint256.Int) {
	batch.Put(s.getDbKey(owner, spender), []byte(utils.Uint256ToString(amount)))
}

func (s *GenericAllowanceStore) getDbKey(owner, spender string) []byte {
	return []byte(PrefixAllowance + owner + ":" + spender)
}
