package gateway

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"

	"crl/bank"
	"crl/capability"
	"crl/db"
	"crl/directory"
	"crl/ledger"
	"crl/store"
)

const (
	testLedgerAddr = "ledger-reserve"
	testAdmin      = "admin"
	testGateway    = "gateway"
	testAlice      = "alice"
	testMerchant   = "merchant1"
)

func newTestStack(t *testing.T) (*ledger.Ledger, *bank.MemoryBank) {
	t.Helper()

	provider := db.NewMemDBProvider()
	t.Cleanup(func() { provider.Close() })

	capStore, err := store.NewGenericCapabilityStore(provider)
	if err != nil {
		t.Fatalf("capability store: %v", err)
	}
	registry := capability.NewRegistry(capStore)
	bk := bank.NewMemoryBank()

	ld, err := ledger.NewLedger(testLedgerAddr, provider, registry, bk, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ld.Initialize(testAdmin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := registry.Grant(testAdmin, capability.Operator, testGateway); err != nil {
		t.Fatalf("grant operator: %v", err)
	}

	dir, err := directory.NewDirectory(provider, registry, nil)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	if err := dir.Add(testAdmin, []string{testMerchant}, []string{"Merchant"}, []string{"Test merchant"}); err != nil {
		t.Fatalf("add recipient: %v", err)
	}
	return ld, bk
}

func TestMintingGatewayConstruction(t *testing.T) {
	ld, _ := newTestStack(t)

	if _, err := NewMintingGateway(ld, "owner", testGateway, 0, nil); err == nil {
		t.Error("zero collateral rate must be rejected")
	}
	if _, err := NewMintingGateway(nil, "owner", testGateway, 10000, nil); err == nil {
		t.Error("nil ledger must be rejected")
	}
	if _, err := NewMintingGateway(ld, "", testGateway, 10000, nil); err == nil {
		t.Error("empty owner must be rejected")
	}
}

func TestMintingGatewayFlow(t *testing.T) {
	ld, bk := newTestStack(t)
	bk.Credit(testGateway, uint256.NewInt(1000))

	// 100% backing, at most 500 per call
	gw, err := NewMintingGateway(ld, "owner", testGateway, 10000, uint256.NewInt(500))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	// Whitelist is owner-gated
	if err := gw.Allow(testAlice, testAlice, uint256.NewInt(100)); err == nil {
		t.Error("non-owner must not change the whitelist")
	}
	if err := gw.Allow("owner", testAlice, uint256.NewInt(300)); err != nil {
		t.Fatalf("allow: %v", err)
	}

	if err := gw.Mint("stranger", uint256.NewInt(10)); err == nil {
		t.Error("non-whitelisted caller must be rejected")
	}
	if err := gw.Mint(testAlice, uint256.NewInt(301)); err == nil {
		t.Error("mint above whitelist allowance must be rejected")
	}

	if err := gw.Mint(testAlice, uint256.NewInt(200)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	bal, err := ld.BalanceOf(testAlice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Eq(uint256.NewInt(200)) {
		t.Errorf("alice balance = %s, want 200", bal.Dec())
	}
	// Collateral was deposited 1:1 alongside the mint
	if got := ld.Reserve(); !got.Eq(uint256.NewInt(200)) {
		t.Errorf("reserve = %s, want 200", got.Dec())
	}
	if got := gw.Allowance(testAlice); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("remaining allowance = %s, want 100", got.Dec())
	}

	// Per-call cap binds even with remaining allowance
	if err := gw.Allow("owner", testAlice, uint256.NewInt(10000)); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if err := gw.Mint(testAlice, uint256.NewInt(501)); err == nil {
		t.Error("mint above per-call cap must be rejected")
	}
}

func TestMintingGatewayPartialBackingRate(t *testing.T) {
	ld, bk := newTestStack(t)
	bk.Credit(testGateway, uint256.NewInt(1000))

	// 50% backing rate
	gw, err := NewMintingGateway(ld, "owner", testGateway, 5000, nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	gw.Allow("owner", testAlice, uint256.NewInt(1000))

	if err := gw.Mint(testAlice, uint256.NewInt(400)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := ld.Reserve(); !got.Eq(uint256.NewInt(200)) {
		t.Errorf("reserve = %s, want 200 at 50%% rate", got.Dec())
	}
}

func TestPaymentGatewayCollect(t *testing.T) {
	ld, bk := newTestStack(t)
	bk.Credit(testGateway, uint256.NewInt(1000))

	// Fund alice with credits and collateral through the operator path
	if err := ld.DepositCollateral(testGateway, uint256.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ld.Mint(testGateway, testAlice, uint256.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	var notified []string
	pg, err := NewPaymentGateway(ld, testMerchant, func(payer string, amount *uint256.Int) error {
		notified = append(notified, fmt.Sprintf("%s:%s", payer, amount.Dec()))
		return nil
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	// No approval yet
	if err := pg.Collect(testAlice, uint256.NewInt(100)); err == nil {
		t.Error("collect without approval must fail")
	}
	if len(notified) != 0 {
		t.Error("failed collect must not notify")
	}

	if err := ld.Approve(testAlice, testMerchant, uint256.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := pg.Collect(testAlice, uint256.NewInt(100)); err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(notified) != 1 || notified[0] != "alice:100" {
		t.Errorf("notifications = %v", notified)
	}
	if got := bk.BalanceOf(testMerchant); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("merchant currency balance = %s, want 100", got.Dec())
	}
	bal, _ := ld.BalanceOf(testAlice)
	if !bal.Eq(uint256.NewInt(400)) {
		t.Errorf("alice balance = %s, want 400", bal.Dec())
	}
}

func TestPaymentGatewayNotifierFailurePropagates(t *testing.T) {
	ld, bk := newTestStack(t)
	bk.Credit(testGateway, uint256.NewInt(1000))
	ld.DepositCollateral(testGateway, uint256.NewInt(500))
	ld.Mint(testGateway, testAlice, uint256.NewInt(500))
	ld.Approve(testAlice, testMerchant, uint256.NewInt(300))

	pg, _ := NewPaymentGateway(ld, testMerchant, func(payer string, amount *uint256.Int) error {
		return fmt.Errorf("downstream unavailable")
	})

	err := pg.Collect(testAlice, uint256.NewInt(100))
	if err == nil {
		t.Fatal("notifier failure must propagate")
	}

	// The ledger movement itself already settled
	bal, _ := ld.BalanceOf(testAlice)
	if !bal.Eq(uint256.NewInt(400)) {
		t.Errorf("alice balance = %s, want 400 (payment settled)", bal.Dec())
	}
	if got := bk.BalanceOf(testMerchant); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("merchant currency balance = %s, want 100", got.Dec())
	}
}
