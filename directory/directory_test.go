package directory

import (
	"fmt"
	"testing"

	"crl/capability"
	"crl/db"
	"crl/errors"
	"crl/jsonx"
	"crl/store"
	"crl/types"
)

const testAdmin = "admin"

func newTestDirectory(t *testing.T) (*Directory, *capability.Registry, db.DatabaseProvider) {
	t.Helper()

	provider := db.NewMemDBProvider()
	t.Cleanup(func() { provider.Close() })

	capStore, err := store.NewGenericCapabilityStore(provider)
	if err != nil {
		t.Fatalf("capability store: %v", err)
	}
	if err := capStore.Grant(string(capability.Administrator), testAdmin); err != nil {
		t.Fatalf("seed administrator: %v", err)
	}
	registry := capability.NewRegistry(capStore)

	dir, err := NewDirectory(provider, registry, nil)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	return dir, registry, provider
}

func addN(t *testing.T, dir *Directory, n int) []string {
	t.Helper()
	accounts := make([]string, 0, n)
	names := make([]string, 0, n)
	descriptions := make([]string, 0, n)
	for i := 0; i < n; i++ {
		accounts = append(accounts, fmt.Sprintf("merchant%02d", i))
		names = append(names, fmt.Sprintf("Merchant %02d", i))
		descriptions = append(descriptions, "payout recipient")
	}
	if err := dir.Add(testAdmin, accounts, names, descriptions); err != nil {
		t.Fatalf("add %d recipients: %v", n, err)
	}
	return accounts
}

func TestAddGrantsCapabilityAndStoresMetadata(t *testing.T) {
	dir, registry, _ := newTestDirectory(t)

	if err := dir.Add(testAdmin, []string{"shop"}, []string{"Shop"}, []string{"A shop"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if !registry.Has(capability.Recipient, "shop") {
		t.Error("added account should hold the recipient capability")
	}
	rec, err := dir.Get("shop")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Name != "Shop" || rec.Description != "A shop" {
		t.Errorf("unexpected metadata: %+v", rec)
	}
	if dir.Count() != 1 {
		t.Errorf("count = %d, want 1", dir.Count())
	}
}

func TestAddRequiresAdministrator(t *testing.T) {
	dir, _, _ := newTestDirectory(t)

	err := dir.Add("stranger", []string{"shop"}, []string{"Shop"}, []string{"A shop"})
	if got := errors.CodeOf(err); got != errors.ErrCodeAuthorization {
		t.Fatalf("error code = %s, want %s", got, errors.ErrCodeAuthorization)
	}
}

func TestAddValidatesBatch(t *testing.T) {
	dir, registry, _ := newTestDirectory(t)

	cases := []struct {
		name         string
		accounts     []string
		names        []string
		descriptions []string
	}{
		{"empty batch", nil, nil, nil},
		{"length mismatch", []string{"a", "b"}, []string{"A"}, []string{"d", "d"}},
		{"empty address", []string{""}, []string{"A"}, []string{"d"}},
		{"empty name", []string{"a"}, []string{""}, []string{"d"}},
		{"empty description", []string{"a"}, []string{"A"}, []string{""}},
		{"duplicate in batch", []string{"a", "a"}, []string{"A", "A"}, []string{"d", "d"}},
	}
	for _, tc := range cases {
		err := dir.Add(testAdmin, tc.accounts, tc.names, tc.descriptions)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if errors.CodeOf(err) != errors.ErrCodeValidation {
			t.Errorf("%s: error code = %s, want %s", tc.name, errors.CodeOf(err), errors.ErrCodeValidation)
		}
	}

	// A failing entry mid-batch must leave earlier entries unapplied
	err := dir.Add(testAdmin, []string{"good", ""}, []string{"Good", "Bad"}, []string{"d", "d"})
	if err == nil {
		t.Fatal("expected error")
	}
	if dir.Count() != 0 {
		t.Errorf("count = %d, want 0 after failed batch", dir.Count())
	}
	if registry.Has(capability.Recipient, "good") {
		t.Error("failed batch must not grant capabilities")
	}
}

func TestAddRejectsExistingRecipient(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	addN(t, dir, 3)

	err := dir.Add(testAdmin, []string{"merchant01"}, []string{"Again"}, []string{"dup"})
	if errors.MessageOf(err) != errors.ErrMsgRecipientExists {
		t.Fatalf("error = %v, want %q", err, errors.ErrMsgRecipientExists)
	}
	if dir.Count() != 3 {
		t.Errorf("count = %d, want 3", dir.Count())
	}
}

func TestRemoveSwapsLastIntoFreedSlot(t *testing.T) {
	dir, registry, _ := newTestDirectory(t)
	accounts := addN(t, dir, 5)

	if err := dir.Remove(testAdmin, []string{accounts[1]}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if dir.Count() != 4 {
		t.Fatalf("count = %d, want 4", dir.Count())
	}
	if registry.Has(capability.Recipient, accounts[1]) {
		t.Error("removed account must lose the recipient capability")
	}

	// The former last element now occupies position 1
	page, _, err := dir.Page(0, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("page size = %d, want 4", len(page))
	}
	if page[1].Address != accounts[4] {
		t.Errorf("slot 1 = %s, want %s (swap-remove)", page[1].Address, accounts[4])
	}

	seen := make(map[string]bool)
	for _, rec := range page {
		seen[rec.Address] = true
	}
	if seen[accounts[1]] {
		t.Error("removed account still enumerable")
	}
	for _, addr := range []string{accounts[0], accounts[2], accounts[3], accounts[4]} {
		if !seen[addr] {
			t.Errorf("account %s missing from enumeration", addr)
		}
	}
}

func TestRemoveUnknownRecipientFailsWholeBatch(t *testing.T) {
	dir, registry, _ := newTestDirectory(t)
	accounts := addN(t, dir, 3)

	err := dir.Remove(testAdmin, []string{accounts[0], "stranger"})
	if errors.MessageOf(err) != errors.ErrMsgRecipientNotFound {
		t.Fatalf("error = %v, want %q", err, errors.ErrMsgRecipientNotFound)
	}
	if dir.Count() != 3 {
		t.Errorf("count = %d, want 3 after failed batch", dir.Count())
	}
	if !registry.Has(capability.Recipient, accounts[0]) {
		t.Error("failed batch must not revoke capabilities")
	}
}

func TestPagination(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	addN(t, dir, 52)

	// A page larger than the directory returns everything
	page, next, err := dir.Page(0, 100)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 52 || next != 52 {
		t.Errorf("page = %d entries, next = %d; want 52, 52", len(page), next)
	}

	// Walking in pages of 25 visits every member exactly once
	visited := make(map[string]int)
	cursor := uint64(0)
	sizes := []int{}
	for {
		page, next, err := dir.Page(cursor, 25)
		if err != nil {
			t.Fatalf("page at %d: %v", cursor, err)
		}
		if len(page) == 0 {
			break
		}
		sizes = append(sizes, len(page))
		for _, rec := range page {
			visited[rec.Address]++
		}
		cursor = next
	}
	if len(sizes) != 3 || sizes[0] != 25 || sizes[1] != 25 || sizes[2] != 2 {
		t.Errorf("page sizes = %v, want [25 25 2]", sizes)
	}
	if len(visited) != 52 {
		t.Errorf("visited %d distinct members, want 52", len(visited))
	}
	for addr, n := range visited {
		if n != 1 {
			t.Errorf("account %s visited %d times", addr, n)
		}
	}

	// Out-of-range cursor yields an empty page
	page, next, err = dir.Page(99, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 0 || next != 52 {
		t.Errorf("out-of-range page = %d entries, next = %d; want 0, 52", len(page), next)
	}
}

func TestPaginationAfterRemoval(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	accounts := addN(t, dir, 52)

	if err := dir.Remove(testAdmin, []string{accounts[10]}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	visited := make(map[string]bool)
	cursor := uint64(0)
	for {
		page, next, err := dir.Page(cursor, 10)
		if err != nil {
			t.Fatalf("page at %d: %v", cursor, err)
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if visited[rec.Address] {
				t.Errorf("account %s enumerated twice", rec.Address)
			}
			visited[rec.Address] = true
		}
		cursor = next
	}
	if len(visited) != 51 {
		t.Errorf("visited %d members, want 51 (no gaps after removal)", len(visited))
	}
	if visited[accounts[10]] {
		t.Error("removed account still enumerable")
	}
}

func TestOrderSurvivesRestart(t *testing.T) {
	dir, registry, provider := newTestDirectory(t)
	addN(t, dir, 4)

	reopened, err := NewDirectory(provider, registry, nil)
	if err != nil {
		t.Fatalf("reopen directory: %v", err)
	}
	if reopened.Count() != 4 {
		t.Fatalf("count after reopen = %d, want 4", reopened.Count())
	}
	page, _, err := reopened.Page(0, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 4 {
		t.Errorf("page size after reopen = %d, want 4", len(page))
	}
}

func TestRecipientJSONExports(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	if err := dir.Add(testAdmin, []string{"SHOP-A", "shop-b"}, []string{"Shop A", "Shop B"}, []string{"first", "second"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := dir.RecipientJSON("SHOP-A")
	if err != nil {
		t.Fatalf("recipient json: %v", err)
	}
	var rec types.Recipient
	if err := jsonx.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Address != "shop-a" {
		t.Errorf("exported address = %q, want lowercase %q", rec.Address, "shop-a")
	}
	if rec.Name != "Shop A" || rec.Description != "first" {
		t.Errorf("unexpected export: %+v", rec)
	}

	all, err := dir.RecipientsJSON()
	if err != nil {
		t.Fatalf("recipients json: %v", err)
	}
	var recs []types.Recipient
	if err := jsonx.Unmarshal([]byte(all), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("exported %d recipients, want 2", len(recs))
	}
	if recs[0].Address != "shop-a" || recs[1].Address != "shop-b" {
		t.Errorf("export order = [%s %s], want insertion order", recs[0].Address, recs[1].Address)
	}

	if _, err := dir.RecipientJSON("stranger"); errors.MessageOf(err) != errors.ErrMsgRecipientNotFound {
		t.Errorf("error = %v, want %q", err, errors.ErrMsgRecipientNotFound)
	}
}
