package directory

import (
	"fmt"
	"strings"
	"sync"

	"crl/capability"
	"crl/db"
	"crl/errors"
	"crl/events"
	"crl/jsonx"
	"crl/logx"
	"crl/monitoring"
	"crl/store"
	"crl/types"
)

// Directory is the enumerable, paginated registry of accounts authorized to
// receive payouts. It is the only component that may change recipient
// capability membership, which keeps membership and metadata in lockstep.
//
// Enumeration uses a dense order vector plus a reverse index from address to
// position. Removal swaps the last element into the freed slot and truncates
// (swap-remove), so order is insertion order until the first removal and not
// stable across removals; count and membership stay correct throughout.
type Directory struct {
	mu       sync.RWMutex
	provider db.DatabaseProvider
	registry *capability.Registry
	store    store.RecipientStore
	eventBus *events.EventBus
	order    []string
	index    map[string]int
}

// NewDirectory creates a directory and restores the enumeration order
// persisted by earlier runs
func NewDirectory(provider db.DatabaseProvider, registry *capability.Registry, eventBus *events.EventBus) (*Directory, error) {
	recStore, err := store.NewGenericRecipientStore(provider)
	if err != nil {
		return nil, err
	}
	order, err := recStore.GetOrder()
	if err != nil {
		return nil, fmt.Errorf("failed to restore recipient order: %w", err)
	}
	index := make(map[string]int, len(order))
	for i, addr := range order {
		index[addr] = i
	}

	d := &Directory{
		provider: provider,
		registry: registry,
		store:    recStore,
		eventBus: eventBus,
		order:    order,
		index:    index,
	}
	monitoring.SetRecipientCount(len(order))
	return d, nil
}

// Add authorizes the given accounts as payout recipients with their
// metadata. Restricted to administrators. The whole batch commits or none
// of it does.
func (d *Directory) Add(caller string, accounts, names, descriptions []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registry.Has(capability.Administrator, caller) {
		monitoring.RecordRejection(monitoring.RejectNotAdministrator)
		return errors.NewError(errors.ErrCodeAuthorization, errors.ErrMsgNotAdministrator)
	}
	if len(accounts) == 0 || len(accounts) != len(names) || len(accounts) != len(descriptions) {
		return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgLengthMismatch)
	}

	// Validate the entire batch before staging anything
	seen := make(map[string]bool, len(accounts))
	for i, account := range accounts {
		if account == "" {
			return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgInvalidAddress)
		}
		if names[i] == "" {
			return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgEmptyName)
		}
		if descriptions[i] == "" {
			return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgEmptyDescription)
		}
		if seen[account] || d.registry.Has(capability.Recipient, account) {
			return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgRecipientExists)
		}
		seen[account] = true
	}

	newOrder := append(append(make([]string, 0, len(d.order)+len(accounts)), d.order...), accounts...)

	batch := d.provider.Batch()
	defer batch.Close()
	for i, account := range accounts {
		d.registry.StageRecipientGrant(batch, account)
		rec := &types.Recipient{Address: account, Name: names[i], Description: descriptions[i]}
		if err := d.store.StageStore(batch, rec); err != nil {
			return errors.NewError(errors.ErrCodeInternal, err.Error())
		}
	}
	if err := d.store.StageOrder(batch, newOrder); err != nil {
		return errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	if err := batch.Write(); err != nil {
		return errors.NewError(errors.ErrCodeInternal, err.Error())
	}

	d.order = newOrder
	for i, addr := range newOrder {
		d.index[addr] = i
	}

	monitoring.SetRecipientCount(len(d.order))
	for i, account := range accounts {
		d.publish(events.NewRecipientAdded(account, names[i]))
	}
	logx.Info("DIRECTORY", fmt.Sprintf("Recipients added | count=%d | total=%d | by=%s", len(accounts), len(d.order), caller))
	return nil
}

// Remove revokes the given accounts. Restricted to administrators. Each slot
// freed by a removal is filled by the current last element (swap-remove).
// The whole batch commits or none of it does.
func (d *Directory) Remove(caller string, accounts []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registry.Has(capability.Administrator, caller) {
		monitoring.RecordRejection(monitoring.RejectNotAdministrator)
		return errors.NewError(errors.ErrCodeAuthorization, errors.ErrMsgNotAdministrator)
	}
	if len(accounts) == 0 {
		return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgLengthMismatch)
	}

	// Work on copies so a failing entry discards the whole batch
	order := append(make([]string, 0, len(d.order)), d.order...)
	index := make(map[string]int, len(d.index))
	for addr, i := range d.index {
		index[addr] = i
	}

	batch := d.provider.Batch()
	defer batch.Close()
	for _, account := range accounts {
		pos, ok := index[account]
		if !ok || !d.registry.Has(capability.Recipient, account) {
			monitoring.RecordRejection(monitoring.RejectRecipientUnknown)
			return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgRecipientNotFound)
		}

		last := len(order) - 1
		moved := order[last]
		order[pos] = moved
		index[moved] = pos
		order = order[:last]
		delete(index, account)

		d.registry.StageRecipientRevoke(batch, account)
		d.store.StageDelete(batch, account)
	}
	if err := d.store.StageOrder(batch, order); err != nil {
		return errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	if err := batch.Write(); err != nil {
		return errors.NewError(errors.ErrCodeInternal, err.Error())
	}

	d.order = order
	d.index = index

	monitoring.SetRecipientCount(len(d.order))
	for _, account := range accounts {
		d.publish(events.NewRecipientRemoved(account))
	}
	logx.Info("DIRECTORY", fmt.Sprintf("Recipients removed | count=%d | remaining=%d | by=%s", len(accounts), len(d.order), caller))
	return nil
}

// Count returns the number of authorized recipients
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.order)
}

// Get returns the metadata for one recipient
func (d *Directory) Get(account string) (*types.Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.getLocked(account)
}

func (d *Directory) getLocked(account string) (*types.Recipient, error) {
	if _, ok := d.index[account]; !ok {
		return nil, errors.NewError(errors.ErrCodeValidation, errors.ErrMsgRecipientNotFound)
	}
	rec, err := d.store.GetByAddr(account)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	if rec == nil {
		return nil, errors.NewError(errors.ErrCodeValidation, errors.ErrMsgRecipientNotFound)
	}
	return rec, nil
}

// Page returns up to size recipients starting at cursor in current
// enumeration order, and the cursor for the next page. Advancing the cursor
// by the returned count from zero until an empty page visits every current
// member exactly once; pages are not a consistent snapshot across
// intervening add or remove calls.
func (d *Directory) Page(cursor, size uint64) ([]*types.Recipient, uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := uint64(len(d.order))
	if cursor >= n {
		return []*types.Recipient{}, n, nil
	}

	count := size
	if remaining := n - cursor; count > remaining {
		count = remaining
	}

	addrs := d.order[cursor : cursor+count]
	records, err := d.store.GetBatch(addrs)
	if err != nil {
		return nil, 0, errors.NewError(errors.ErrCodeInternal, err.Error())
	}

	page := make([]*types.Recipient, 0, len(addrs))
	for _, addr := range addrs {
		rec := records[addr]
		if rec == nil {
			// Membership and metadata are committed together, so a hole here
			// means the backing store was tampered with
			return nil, 0, errors.NewError(errors.ErrCodeInternal, fmt.Sprintf("missing metadata for recipient %s", addr))
		}
		page = append(page, rec)
	}
	return page, cursor + count, nil
}

// RecipientJSON renders one recipient as a JSON object with address, name
// and description fields
func (d *Directory) RecipientJSON(account string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, err := d.getLocked(account)
	if err != nil {
		return "", err
	}
	data, err := jsonx.Marshal(exportRecord(rec))
	if err != nil {
		return "", errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	return string(data), nil
}

// RecipientsJSON renders all recipients as a JSON array in current
// enumeration order
func (d *Directory) RecipientsJSON() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	records, err := d.store.GetBatch(d.order)
	if err != nil {
		return "", errors.NewError(errors.ErrCodeInternal, err.Error())
	}

	out := make([]*types.Recipient, 0, len(d.order))
	for _, addr := range d.order {
		rec := records[addr]
		if rec == nil {
			return "", errors.NewError(errors.ErrCodeInternal, fmt.Sprintf("missing metadata for recipient %s", addr))
		}
		out = append(out, exportRecord(rec))
	}
	data, err := jsonx.Marshal(out)
	if err != nil {
		return "", errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	return string(data), nil
}

// exportRecord renders addresses lowercase for off-core consumers
func exportRecord(rec *types.Recipient) *types.Recipient {
	return &types.Recipient{
		Address:     strings.ToLower(rec.Address),
		Name:        rec.Name,
		Description: rec.Description,
	}
}

func (d *Directory) publish(event events.LedgerEvent) {
	if d.eventBus != nil {
		d.eventBus.Publish(event)
	}
}
