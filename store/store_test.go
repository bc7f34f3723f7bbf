package store

import (
	"testing"

	"github.com/holiman/uint256"

	"crl/db"
	"crl/types"
)

func newProvider(t *testing.T) db.DatabaseProvider {
	t.Helper()
	provider := db.NewMemDBProvider()
	t.Cleanup(func() { provider.Close() })
	return provider
}

func TestAccountStoreRoundTrip(t *testing.T) {
	as, err := NewGenericAccountStore(newProvider(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// Unknown accounts read as nil, nil
	acc, err := as.GetByAddr("alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc != nil {
		t.Fatalf("expected nil for unknown account, got %+v", acc)
	}

	stored := &types.Account{Address: "alice", Balance: uint256.NewInt(150)}
	if err := as.Store(stored); err != nil {
		t.Fatalf("store: %v", err)
	}

	acc, err = as.GetByAddr("alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Address != "alice" || !acc.Balance.Eq(uint256.NewInt(150)) {
		t.Errorf("round trip mismatch: %+v", acc)
	}

	ok, err := as.ExistsByAddr("alice")
	if err != nil || !ok {
		t.Errorf("exists = %v, %v; want true", ok, err)
	}
}

func TestAccountStoreGetBatchAndGetAll(t *testing.T) {
	as, _ := NewGenericAccountStore(newProvider(t))
	as.Store(&types.Account{Address: "alice", Balance: uint256.NewInt(1)})
	as.Store(&types.Account{Address: "bob", Balance: uint256.NewInt(2)})

	batch, err := as.GetBatch([]string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch["alice"] == nil || batch["bob"] == nil {
		t.Error("existing accounts missing from batch read")
	}
	if batch["carol"] != nil {
		t.Error("unknown account should be nil in batch read")
	}

	all, err := as.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("get all = %d accounts, want 2", len(all))
	}
}

func TestAccountStoreStagedWrites(t *testing.T) {
	provider := newProvider(t)
	as, _ := NewGenericAccountStore(provider)

	batch := provider.Batch()
	if err := as.StageStore(batch, &types.Account{Address: "alice", Balance: uint256.NewInt(5)}); err != nil {
		t.Fatalf("stage: %v", err)
	}

	if acc, _ := as.GetByAddr("alice"); acc != nil {
		t.Fatal("staged account visible before commit")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch.Close()

	acc, _ := as.GetByAddr("alice")
	if acc == nil || !acc.Balance.Eq(uint256.NewInt(5)) {
		t.Errorf("committed account = %+v, want balance 5", acc)
	}
}

func TestAllowanceStore(t *testing.T) {
	provider := newProvider(t)
	als, err := NewGenericAllowanceStore(provider)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// Unset allowances read as zero
	got, err := als.Get("alice", "bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("unset allowance = %s, want 0", got.Dec())
	}

	if err := als.Set("alice", "bob", uint256.NewInt(77)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ = als.Get("alice", "bob")
	if !got.Eq(uint256.NewInt(77)) {
		t.Errorf("allowance = %s, want 77", got.Dec())
	}

	// Direction matters
	got, _ = als.Get("bob", "alice")
	if !got.IsZero() {
		t.Errorf("reverse allowance = %s, want 0", got.Dec())
	}

	batch := provider.Batch()
	als.StageSet(batch, "alice", "bob", uint256.NewInt(10))
	if got, _ := als.Get("alice", "bob"); !got.Eq(uint256.NewInt(77)) {
		t.Error("staged allowance visible before commit")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch.Close()
	if got, _ := als.Get("alice", "bob"); !got.Eq(uint256.NewInt(10)) {
		t.Errorf("allowance = %s, want 10 after commit", got.Dec())
	}
}

func TestStateStore(t *testing.T) {
	provider := newProvider(t)
	ss, err := NewGenericStateStore(provider)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// A fresh store yields an uninitialized state with zero counters
	st, err := ss.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Initialized || !st.TotalMinted.IsZero() || !st.TotalBurned.IsZero() {
		t.Errorf("fresh state = %+v, want zero values", st)
	}

	st.Initialized = true
	st.Administrator = "admin"
	st.TotalMinted = uint256.NewInt(100)
	st.TotalBurned = uint256.NewInt(40)
	if err := ss.Set(st); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := ss.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Initialized || got.Administrator != "admin" {
		t.Errorf("state = %+v", got)
	}
	if !got.TotalSupply().Eq(uint256.NewInt(60)) {
		t.Errorf("supply = %s, want 60", got.TotalSupply().Dec())
	}
}

func TestRecipientStoreOrder(t *testing.T) {
	provider := newProvider(t)
	rs, err := NewGenericRecipientStore(provider)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// Fresh store has no order vector
	order, err := rs.GetOrder()
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("fresh order = %v, want empty", order)
	}

	batch := provider.Batch()
	rs.StageStore(batch, &types.Recipient{Address: "a", Name: "A", Description: "d"})
	rs.StageStore(batch, &types.Recipient{Address: "b", Name: "B", Description: "d"})
	if err := rs.StageOrder(batch, []string{"a", "b"}); err != nil {
		t.Fatalf("stage order: %v", err)
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch.Close()

	order, _ = rs.GetOrder()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}

	rec, err := rs.GetByAddr("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.Name != "A" {
		t.Errorf("recipient = %+v", rec)
	}

	batch = provider.Batch()
	rs.StageDelete(batch, "a")
	rs.StageOrder(batch, []string{"b"})
	if err := batch.Write(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch.Close()

	if rec, _ := rs.GetByAddr("a"); rec != nil {
		t.Error("deleted recipient still readable")
	}
	order, _ = rs.GetOrder()
	if len(order) != 1 || order[0] != "b" {
		t.Errorf("order = %v, want [b]", order)
	}
}

func TestNewProviderMemoryBackend(t *testing.T) {
	provider, err := NewProvider(BackendMemory, "", "")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer provider.Close()

	if err := provider.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := NewProvider("bolt", "", ""); err == nil {
		t.Error("unknown backend should be rejected")
	}
}
