package bank

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"crl/logx"
)

// Bank is the reserve-currency side of the execution environment boundary.
// The ledger holds its collateral as a balance at the bank and pays
// recipients through Transfer, which may be rejected by the destination and
// must be checked by the caller.
type Bank interface {
	// BalanceOf returns the currency balance held by addr
	BalanceOf(addr string) *uint256.Int
	// Transfer moves currency between accounts; the destination may reject it
	Transfer(from, to string, amount *uint256.Int) error
	// Credit funds addr out of thin air, used for genesis funding
	Credit(addr string, amount *uint256.Int)
}

// ReceiveHook runs when its account is about to receive a transfer.
// Returning an error rejects the transfer, modelling destinations that
// refuse payment or fail while handling it.
type ReceiveHook func(from string, amount *uint256.Int) error

// MemoryBank is an in-process Bank used by nodes and tests
type MemoryBank struct {
	mu       sync.RWMutex
	balances map[string]*uint256.Int
	hooks    map[string]ReceiveHook
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances: make(map[string]*uint256.Int),
		hooks:    make(map[string]ReceiveHook),
	}
}

// BalanceOf returns the currency balance held by addr, zero if unknown
func (b *MemoryBank) BalanceOf(addr string) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bal, ok := b.balances[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bal)
}

// Transfer moves currency from one account to another. The destination's
// receive hook, if any, runs before the balances move and its error rejects
// the whole transfer.
func (b *MemoryBank) Transfer(from, to string, amount *uint256.Int) error {
	if to == "" {
		return fmt.Errorf("destination address is empty")
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("transfer amount is zero")
	}

	b.mu.Lock()
	hook := b.hooks[to]
	fromBal, ok := b.balances[from]
	if !ok || fromBal.Cmp(amount) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("insufficient currency balance for %s", from)
	}
	b.mu.Unlock()

	// Hook runs without the bank lock so it may call back into other
	// components; reentrancy protection is the caller's concern.
	if hook != nil {
		if err := hook(from, amount); err != nil {
			logx.Warn("BANK", fmt.Sprintf("Transfer rejected by destination | from=%s | to=%s | err=%v", from, to, err))
			return fmt.Errorf("destination rejected transfer: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	fromBal, ok = b.balances[from]
	if !ok || fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient currency balance for %s", from)
	}
	b.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	toBal, ok := b.balances[to]
	if !ok {
		toBal = uint256.NewInt(0)
	}
	b.balances[to] = new(uint256.Int).Add(toBal, amount)
	return nil
}

// Credit funds addr, used for genesis funding and tests
func (b *MemoryBank) Credit(addr string, amount *uint256.Int) {
	if addr == "" || amount == nil || amount.IsZero() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[addr]
	if !ok {
		bal = uint256.NewInt(0)
	}
	b.balances[addr] = new(uint256.Int).Add(bal, amount)
}

// SetReceiveHook installs a receive hook for addr, nil removes it
func (b *MemoryBank) SetReceiveHook(addr string, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hook == nil {
		delete(b.hooks, addr)
		return
	}
	b.hooks[addr] = hook
}
