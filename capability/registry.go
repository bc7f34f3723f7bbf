package capability

import (
	"fmt"
	"sync"

	"crl/db"
	"crl/errors"
	"crl/logx"
	"crl/store"
)

// Capability is a named permission held by zero or more accounts
type Capability string

const (
	Administrator Capability = "administrator"
	Operator      Capability = "operator"
	Recipient     Capability = "recipient"
)

// Valid reports whether c is one of the three known capabilities
func (c Capability) Valid() bool {
	switch c {
	case Administrator, Operator, Recipient:
		return true
	}
	return false
}

// Registry maintains the three capability sets. The administrator capability
// administers all three sets. Recipient membership is deliberately not
// mutable through the generic Grant/Revoke entry points: it may only change
// through the recipient directory, which keeps membership and metadata from
// diverging. The directory uses the staging entry points below inside its own
// atomic batches.
type Registry struct {
	mu    sync.RWMutex
	store store.CapabilityStore
}

func NewRegistry(capStore store.CapabilityStore) *Registry {
	return &Registry{store: capStore}
}

// Has reports whether addr currently holds the capability
func (r *Registry) Has(cap Capability, addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if addr == "" {
		return false
	}
	ok, err := r.store.Has(string(cap), addr)
	if err != nil {
		logx.Error("CAPABILITY", fmt.Sprintf("Membership check failed | capability=%s | account=%s | err=%v", cap, addr, err))
		return false
	}
	return ok
}

// Grant gives addr the capability. Restricted to administrators. Recipient
// grants are rejected here; use the recipient directory's add operation.
func (r *Registry) Grant(caller string, cap Capability, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkMutation(caller, cap, addr); err != nil {
		return err
	}
	if err := r.store.Grant(string(cap), addr); err != nil {
		return errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	logx.Info("CAPABILITY", fmt.Sprintf("Granted | capability=%s | account=%s | by=%s", cap, addr, caller))
	return nil
}

// Revoke removes the capability from addr. Restricted to administrators.
// Recipient revocations are rejected here; use the directory's remove operation.
func (r *Registry) Revoke(caller string, cap Capability, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkMutation(caller, cap, addr); err != nil {
		return err
	}
	if err := r.store.Revoke(string(cap), addr); err != nil {
		return errors.NewError(errors.ErrCodeInternal, err.Error())
	}
	logx.Info("CAPABILITY", fmt.Sprintf("Revoked | capability=%s | account=%s | by=%s", cap, addr, caller))
	return nil
}

func (r *Registry) checkMutation(caller string, cap Capability, addr string) error {
	if !cap.Valid() {
		return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgInvalidCapability)
	}
	if addr == "" {
		return errors.NewError(errors.ErrCodeValidation, errors.ErrMsgInvalidAddress)
	}
	if !r.hasLocked(Administrator, caller) {
		return errors.NewError(errors.ErrCodeAuthorization, errors.ErrMsgNotAdministrator)
	}
	if cap == Recipient {
		return errors.NewError(errors.ErrCodeAuthorization, errors.ErrMsgRecipientViaDirectory)
	}
	return nil
}

func (r *Registry) hasLocked(cap Capability, addr string) bool {
	if addr == "" {
		return false
	}
	ok, err := r.store.Has(string(cap), addr)
	if err != nil {
		logx.Error("CAPABILITY", fmt.Sprintf("Membership check failed | capability=%s | account=%s | err=%v", cap, addr, err))
		return false
	}
	return ok
}

// StageRecipientGrant stages a recipient grant into the directory's batch.
// Only the directory's add operation may call this.
func (r *Registry) StageRecipientGrant(batch db.DatabaseBatch, addr string) {
	r.store.StageGrant(batch, string(Recipient), addr)
}

// StageRecipientRevoke stages a recipient revocation into the directory's batch.
// Only the directory's remove operation may call this.
func (r *Registry) StageRecipientRevoke(batch db.DatabaseBatch, addr string) {
	r.store.StageRevoke(batch, string(Recipient), addr)
}

// StageBootstrapGrant stages an ungated grant. Reserved for one-time
// initialization and genesis wiring, before any administrator exists.
func (r *Registry) StageBootstrapGrant(batch db.DatabaseBatch, cap Capability, addr string) {
	r.store.StageGrant(batch, string(cap), addr)
}

// Members lists the current holders of the capability
func (r *Registry) Members(cap Capability) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.store.Members(string(cap))
}
