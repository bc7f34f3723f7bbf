package db

import (
	"bytes"
	"sort"
	"sync"
)

// MemDBProvider implements DatabaseProvider with an in-process map.
// Used for tests and for running a node without a persistent backend.
type MemDBProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDBProvider creates a new in-memory provider
func NewMemDBProvider() DatabaseProvider {
	return &MemDBProvider{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key
func (p *MemDBProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.data[string(key)]
	if !ok {
		return nil, nil // Return nil for not found, consistent with interface
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// GetBatch retrieves multiple values by keys in a single operation
func (p *MemDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok := p.data[string(key)]
		if !ok {
			continue
		}
		cp := make([]byte, len(value))
		copy(cp, value)
		result[string(key)] = cp
	}
	return result, nil
}

// Put stores a key-value pair
func (p *MemDBProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	p.data[string(key)] = cp
	return nil
}

// Delete removes a key-value pair
func (p *MemDBProvider) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.data, string(key))
	return nil
}

// Has checks if a key exists
func (p *MemDBProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.data[string(key)]
	return ok, nil
}

// Close closes the database connection
func (p *MemDBProvider) Close() error {
	return nil
}

// Batch returns a new batch for atomic operations
func (p *MemDBProvider) Batch() DatabaseBatch {
	return &MemDBBatch{provider: p}
}

// IteratePrefix iterates over all key-value pairs with the given prefix
// in lexicographic key order
func (p *MemDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	p.mu.RLock()
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	p.mu.RUnlock()

	sort.Strings(keys)

	for _, k := range keys {
		p.mu.RLock()
		value, ok := p.data[k]
		p.mu.RUnlock()
		if !ok {
			continue
		}
		if !callback([]byte(k), value) {
			break
		}
	}
	return nil
}

type memDBOp struct {
	key    []byte
	value  []byte
	delete bool
}

// MemDBBatch implements DatabaseBatch for the in-memory provider
type MemDBBatch struct {
	provider *MemDBProvider
	ops      []memDBOp
}

// Put adds a key-value pair to the batch
func (b *MemDBBatch) Put(key, value []byte) {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	b.ops = append(b.ops, memDBOp{key: k, value: v})
}

// Delete adds a deletion to the batch
func (b *MemDBBatch) Delete(key []byte) {
	k := make([]byte, len(key))
	copy(k, key)
	b.ops = append(b.ops, memDBOp{key: k, delete: true})
}

// Write commits all operations in the batch
func (b *MemDBBatch) Write() error {
	b.provider.mu.Lock()
	defer b.provider.mu.Unlock()

	for _, op := range b.ops {
		if op.delete {
			delete(b.provider.data, string(op.key))
			continue
		}
		b.provider.data[string(op.key)] = op.value
	}
	return nil
}

// Reset clears the batch
func (b *MemDBBatch) Reset() {
	b.ops = b.ops[:0]
}

// Close releases batch resources
func (b *MemDBBatch) Close() {
	b.ops = nil
}
