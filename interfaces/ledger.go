package interfaces

import (
	"github.com/holiman/uint256"
)

// LedgerService defines the operations the API surface and external
// consumers need from the credit ledger
type LedgerService interface {
	Mint(caller, account string, amount *uint256.Int) error
	BulkMint(caller string, accounts []string, amounts []*uint256.Int) error
	Burn(caller string, amount *uint256.Int) error
	Approve(caller, spender string, amount *uint256.Int) error
	Allowance(owner, spender string) (*uint256.Int, error)
	TransferFrom(caller, from, recipient string, amount *uint256.Int) error
	DepositCollateral(caller string, value *uint256.Int) error
	WithdrawCollateral(caller, to string, amount *uint256.Int) error
	BalanceOf(addr string) (*uint256.Int, error)
	TotalSupply() (*uint256.Int, error)
	TotalMinted() (*uint256.Int, error)
	TotalBurned() (*uint256.Int, error)
	Reserve() *uint256.Int
	CollateralRatio() (*uint256.Int, error)
}
