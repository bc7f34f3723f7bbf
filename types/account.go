package types

import (
	"github.com/holiman/uint256"
)

// Account holds the credit balance for a single address.
// Balances are mutated only through the ledger's mint/burn primitives.
type Account struct {
	Address string       `json:"address"`
	Balance *uint256.Int `json:"balance"`
}
