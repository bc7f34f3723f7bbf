package store

import (
	"fmt"
	"sync"

	"crl/db"
	"crl/jsonx"
	"crl/types"
)

// RecipientStore persists recipient metadata records plus the dense
// enumeration order vector the directory pages over.
type RecipientStore interface {
	GetByAddr(addr string) (*types.Recipient, error)
	GetBatch(addrs []string) (map[string]*types.Recipient, error)
	StageStore(batch db.DatabaseBatch, recipient *types.Recipient) error
	StageDelete(batch db.DatabaseBatch, addr string)
	GetOrder() ([]string, error)
	StageOrder(batch db.DatabaseBatch, order []string) error
}

type GenericRecipientStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericRecipientStore(dbProvider db.DatabaseProvider) (*GenericRecipientStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericRecipientStore{
		dbProvider: dbProvider,
	}, nil
}

// GetByAddr returns the metadata record from db, both nil if not exist
func (rs *GenericRecipientStore) GetByAddr(addr string) (*types.Recipient, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	data, err := rs.dbProvider.Get(rs.getDbKey(addr))
	if err != nil {
		return nil, fmt.Errorf("could not get recipient %s from db: %w", addr, err)
	}
	if data == nil {
		return nil, nil
	}

	var rec types.Recipient
	if err := jsonx.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipient %s: %w", addr, err)
	}
	return &rec, nil
}

// GetBatch retrieves multiple recipients by addresses. Missing records return as nil entries.
func (rs *GenericRecipientStore) GetBatch(addrs []string) (map[string]*types.Recipient, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	result := make(map[string]*types.Recipient, len(addrs))
	for _, addr := range addrs {
		if addr == "" {
			continue
		}
		data, err := rs.dbProvider.Get(rs.getDbKey(addr))
		if err != nil {
			return nil, fmt.Errorf("could not get recipient %s from db: %w", addr, err)
		}
		if data == nil {
			result[addr] = nil
			continue
		}
		var rec types.Recipient
		if err := jsonx.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipient %s: %w", addr, err)
		}
		result[addr] = &rec
	}
	return result, nil
}

func (rs *GenericRecipientStore) StageStore(batch db.DatabaseBatch, recipient *types.Recipient) error {
	data, err := jsonx.Marshal(recipient)
	if err != nil {
		return fmt.Errorf("failed to marshal recipient: %w", err)
	}
	batch.Put(rs.getDbKey(recipient.Address), data)
	return nil
}

func (rs *GenericRecipientStore) StageDelete(batch db.DatabaseBatch, addr string) {
	batch.Delete(rs.getDbKey(addr))
}

// GetOrder returns the persisted enumeration order vector, empty if none
func (rs *GenericRecipientStore) GetOrder() ([]string, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	data, err := rs.dbProvider.Get([]byte(KeyRecipientOrder))
	if err != nil {
		return nil, fmt.Errorf("could not get recipient order from db: %w", err)
	}
	if data == nil {
		return []string{}, nil
	}

	var order []string
	if err := jsonx.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipient order: %w", err)
	}
	return order, nil
}

func (rs *GenericRecipientStore) StageOrder(batch db.DatabaseBatch, order []string) error {
	data, err := jsonx.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal recipient order: %w", err)
	}
	batch.Put([]byte(KeyRecipientOrder), data)
	return nil
}

func (rs *GenericRecipientStore) getDbKey(addr string) []byte {
	return []byte(PrefixRecipient + addr)
}
