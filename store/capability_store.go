package store

import (
	"fmt"
	"strings"
	"sync"

	"crl/db"
)

// CapabilityStore persists raw capability membership. Authorization policy
// lives in the capability registry; this layer only records membership.
type CapabilityStore interface {
	Has(capability, addr string) (bool, error)
	Grant(capability, addr string) error
	Revoke(capability, addr string) error
	StageGrant(batch db.DatabaseBatch, capability, addr string)
	StageRevoke(batch db.DatabaseBatch, capability, addr string)
	Members(capability string) ([]string, error)
}

type GenericCapabilityStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericCapabilityStore(dbProvider db.DatabaseProvider) (*GenericCapabilityStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericCapabilityStore{
		dbProvider: dbProvider,
	}, nil
}

func (cs *GenericCapabilityStore) Has(capability, addr string) (bool, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return cs.dbProvider.Has(cs.getDbKey(capability, addr))
}

func (cs *GenericCapabilityStore) Grant(capability, addr string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.dbProvider.Put(cs.getDbKey(capability, addr), []byte{1}); err != nil {
		return fmt.Errorf("failed to write capability grant to db: %w", err)
	}
	return nil
}

func (cs *GenericCapabilityStore) Revoke(capability, addr string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.dbProvider.Delete(cs.getDbKey(capability, addr)); err != nil {
		return fmt.Errorf("failed to delete capability grant from db: %w", err)
	}
	return nil
}

func (cs *GenericCapabilityStore) StageGrant(batch db.DatabaseBatch, capability, addr string) {
	batch.Put(cs.getDbKey(capability, addr), []byte{1})
}

func (cs *GenericCapabilityStore) StageRevoke(batch db.DatabaseBatch, capability, addr string) {
	batch.Delete(cs.getDbKey(capability, addr))
}

// Members lists every address holding the capability. Requires an iterable provider.
func (cs *GenericCapabilityStore) Members(capability string) ([]string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	iterable, ok := cs.dbProvider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("provider does not support iteration")
	}

	prefix := PrefixCapability + capability + ":"
	members := make([]string, 0)
	err := iterable.IteratePrefix([]byte(prefix), func(key, value []byte) bool {
		members = append(members, strings.TrimPrefix(string(key), prefix))
		return true
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (cs *GenericCapabilityStore) getDbKey(capability, addr string) []byte {
	return []byte(PrefixCapability + capability + ":" + addr)
}
