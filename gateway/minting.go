package gateway

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"crl/interfaces"
	"crl/logx"
)

const rateDenominator = 10000

// MintingGateway is an operator-side consumer that issues credit against
// collateral it deposits itself. It keeps a whitelist of beneficiaries with
// numeric issuance allowances and a per-call cap, and backs every mint with
// collateral at a fixed rate expressed in basis points of the minted amount.
//
// The gateway address must hold the operator capability on the ledger; the
// owner address controls the whitelist.
type MintingGateway struct {
	mu         sync.Mutex
	ledger     interfaces.LedgerService
	owner      string
	address    string
	rateBps    uint64
	capPerCall *uint256.Int
	whitelist  map[string]*uint256.Int
}

// NewMintingGateway creates a gateway minting at the given collateral rate.
// A zero rate would issue unbacked credit and is rejected. capPerCall may be
// nil for no per-call limit.
func NewMintingGateway(ledger interfaces.LedgerService, owner, address string, rateBps uint64, capPerCall *uint256.Int) (*MintingGateway, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if owner == "" || address == "" {
		return nil, fmt.Errorf("owner and gateway address are required")
	}
	if rateBps == 0 {
		return nil, fmt.Errorf("collateral rate must be positive")
	}
	return &MintingGateway{
		ledger:     ledger,
		owner:      owner,
		address:    address,
		rateBps:    rateBps,
		capPerCall: cloneOrNil(capPerCall),
		whitelist:  make(map[string]*uint256.Int),
	}, nil
}

// Allow sets the remaining issuance allowance for a beneficiary. Only the
// owner may change the whitelist. A zero allowance removes the entry.
func (g *MintingGateway) Allow(caller, beneficiary string, allowance *uint256.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.owner {
		return fmt.Errorf("only the gateway owner may change the whitelist")
	}
	if beneficiary == "" {
		return fmt.Errorf("beneficiary address is required")
	}
	if allowance == nil || allowance.IsZero() {
		delete(g.whitelist, beneficiary)
		return nil
	}
	g.whitelist[beneficiary] = allowance.Clone()
	return nil
}

// Allowance returns the remaining issuance allowance for a beneficiary
func (g *MintingGateway) Allowance(beneficiary string) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if a, ok := g.whitelist[beneficiary]; ok {
		return a.Clone()
	}
	return uint256.NewInt(0)
}

// Mint issues amount to the caller, depositing collateral first. The caller
// must be whitelisted with sufficient remaining allowance and the amount
// must not exceed the per-call cap.
func (g *MintingGateway) Mint(caller string, amount *uint256.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	allowance, ok := g.whitelist[caller]
	if !ok {
		return fmt.Errorf("caller is not whitelisted")
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("issuance allowance exceeded")
	}
	if g.capPerCall != nil && amount.Gt(g.capPerCall) {
		return fmt.Errorf("amount exceeds per-call cap")
	}

	collateral := new(uint256.Int).Mul(amount, uint256.NewInt(g.rateBps))
	collateral.Div(collateral, uint256.NewInt(rateDenominator))
	if !collateral.IsZero() {
		if err := g.ledger.DepositCollateral(g.address, collateral); err != nil {
			return err
		}
	}
	if err := g.ledger.Mint(g.address, caller, amount); err != nil {
		// Collateral already deposited stays in the reserve; it only
		// strengthens the backing ratio
		return err
	}

	g.whitelist[caller] = new(uint256.Int).Sub(allowance, amount)
	logx.Info("GATEWAY", fmt.Sprintf("Minted via gateway | to=%s | amount=%s | collateral=%s", caller, amount.Dec(), collateral.Dec()))
	return nil
}

func cloneOrNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}
