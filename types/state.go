package types

import (
	"github.com/holiman/uint256"
)

// LedgerState holds the supply counters and one-time initialization record.
// Invariant: TotalSupply() == TotalMinted - TotalBurned == sum of all account
// balances, at every committed state.
type LedgerState struct {
	Initialized   bool         `json:"initialized"`
	Administrator string       `json:"administrator"`
	TotalMinted   *uint256.Int `json:"total_minted"`
	TotalBurned   *uint256.Int `json:"total_burned"`
}

// NewLedgerState returns an empty, uninitialized state
func NewLedgerState() *LedgerState {
	return &LedgerState{
		TotalMinted: uint256.NewInt(0),
		TotalBurned: uint256.NewInt(0),
	}
}

// TotalSupply returns TotalMinted - TotalBurned
func (s *LedgerState) TotalSupply() *uint256.Int {
	return new(uint256.Int).Sub(s.TotalMinted, s.TotalBurned)
}

// Clone returns a deep copy, used to stage state mutations that may be discarded
func (s *LedgerState) Clone() *LedgerState {
	return &LedgerState{
		Initialized:   s.Initialized,
		Administrator: s.Administrator,
		TotalMinted:   new(uint256.Int).Set(s.TotalMinted),
		TotalBurned:   new(uint256.Int).Set(s.TotalBurned),
	}
}
