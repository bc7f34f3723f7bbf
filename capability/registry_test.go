package capability

import (
	"testing"

	"crl/db"
	"crl/errors"
	"crl/store"
)

func newTestRegistry(t *testing.T) (*Registry, store.CapabilityStore, db.DatabaseProvider) {
	t.Helper()

	provider := db.NewMemDBProvider()
	t.Cleanup(func() { provider.Close() })

	capStore, err := store.NewGenericCapabilityStore(provider)
	if err != nil {
		t.Fatalf("capability store: %v", err)
	}
	if err := capStore.Grant(string(Administrator), "admin"); err != nil {
		t.Fatalf("seed administrator: %v", err)
	}
	return NewRegistry(capStore), capStore, provider
}

func TestCapabilityValid(t *testing.T) {
	for _, c := range []Capability{Administrator, Operator, Recipient} {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	if Capability("superuser").Valid() {
		t.Error("unknown capability should be invalid")
	}
}

func TestGrantAndRevoke(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	if err := registry.Grant("admin", Operator, "op1"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !registry.Has(Operator, "op1") {
		t.Error("op1 should hold the operator capability")
	}

	// Granting twice is a no-op, not an error
	if err := registry.Grant("admin", Operator, "op1"); err != nil {
		t.Errorf("re-grant: %v", err)
	}

	if err := registry.Revoke("admin", Operator, "op1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if registry.Has(Operator, "op1") {
		t.Error("op1 should no longer hold the operator capability")
	}

	// Revoking an absent grant is a no-op as well
	if err := registry.Revoke("admin", Operator, "op1"); err != nil {
		t.Errorf("re-revoke: %v", err)
	}
}

func TestMutationRequiresAdministrator(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	registry.Grant("admin", Operator, "op1")

	// Operators cannot administer capabilities
	err := registry.Grant("op1", Operator, "op2")
	if errors.CodeOf(err) != errors.ErrCodeAuthorization {
		t.Fatalf("error code = %s, want %s", errors.CodeOf(err), errors.ErrCodeAuthorization)
	}
	err = registry.Revoke("op1", Operator, "op1")
	if errors.CodeOf(err) != errors.ErrCodeAuthorization {
		t.Fatalf("error code = %s, want %s", errors.CodeOf(err), errors.ErrCodeAuthorization)
	}
}

func TestAdministratorsCanGrantAdministrator(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	if err := registry.Grant("admin", Administrator, "admin2"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := registry.Grant("admin2", Operator, "op1"); err != nil {
		t.Errorf("second administrator should be able to grant: %v", err)
	}

	// An administrator may revoke another administrator, itself included
	if err := registry.Revoke("admin2", Administrator, "admin2"); err != nil {
		t.Fatalf("self-revoke: %v", err)
	}
	if registry.Has(Administrator, "admin2") {
		t.Error("admin2 should no longer be an administrator")
	}
}

func TestRecipientMutationOnlyThroughDirectory(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	err := registry.Grant("admin", Recipient, "shop")
	if errors.MessageOf(err) != errors.ErrMsgRecipientViaDirectory {
		t.Fatalf("error = %v, want %q", err, errors.ErrMsgRecipientViaDirectory)
	}
	err = registry.Revoke("admin", Recipient, "shop")
	if errors.MessageOf(err) != errors.ErrMsgRecipientViaDirectory {
		t.Fatalf("error = %v, want %q", err, errors.ErrMsgRecipientViaDirectory)
	}
}

func TestMutationValidation(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	err := registry.Grant("admin", Capability("superuser"), "x")
	if errors.CodeOf(err) != errors.ErrCodeValidation {
		t.Errorf("unknown capability: code = %s, want %s", errors.CodeOf(err), errors.ErrCodeValidation)
	}
	err = registry.Grant("admin", Operator, "")
	if errors.CodeOf(err) != errors.ErrCodeValidation {
		t.Errorf("empty address: code = %s, want %s", errors.CodeOf(err), errors.ErrCodeValidation)
	}
	if registry.Has(Operator, "") {
		t.Error("empty address never holds a capability")
	}
}

func TestStagedGrantsAreAtomic(t *testing.T) {
	registry, _, provider := newTestRegistry(t)

	batch := provider.Batch()
	registry.StageRecipientGrant(batch, "shop1")
	registry.StageRecipientGrant(batch, "shop2")

	// Nothing is visible before the batch commits
	if registry.Has(Recipient, "shop1") || registry.Has(Recipient, "shop2") {
		t.Fatal("staged grants must not be visible before commit")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch.Close()

	if !registry.Has(Recipient, "shop1") || !registry.Has(Recipient, "shop2") {
		t.Error("committed grants should be visible")
	}

	batch = provider.Batch()
	registry.StageRecipientRevoke(batch, "shop1")
	if err := batch.Write(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	batch.Close()

	if registry.Has(Recipient, "shop1") {
		t.Error("committed revoke should be visible")
	}
}

func TestMembers(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	registry.Grant("admin", Operator, "op1")
	registry.Grant("admin", Operator, "op2")

	members, err := registry.Members(Operator)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %v, want 2 entries", members)
	}
	seen := map[string]bool{}
	for _, m := range members {
		seen[m] = true
	}
	if !seen["op1"] || !seen["op2"] {
		t.Errorf("members = %v, want op1 and op2", members)
	}
}
