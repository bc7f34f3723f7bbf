package events

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus(10)

	id, eventChan := eventBus.Subscribe()

	// Verify subscription count
	if count := eventBus.GetTotalSubscriptions(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}
	if !eventBus.HasSubscriber(id) {
		t.Error("Expected subscriber id to be registered")
	}

	event := NewMinted("alice", uint256.NewInt(100))

	// Publish event in goroutine to avoid blocking
	go func() {
		eventBus.Publish(event)
	}()

	// Wait for event
	select {
	case receivedEvent := <-eventChan:
		if receivedEvent.Type() != EventMinted {
			t.Errorf("Expected Minted, got %s", receivedEvent.Type())
		}
		if receivedEvent.Account() != "alice" {
			t.Errorf("Expected account alice, got %s", receivedEvent.Account())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Test unsubscribe
	if !eventBus.Unsubscribe(id) {
		t.Error("Expected unsubscribe to succeed")
	}
	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestLedgerEvents(t *testing.T) {
	amount := uint256.NewInt(42)

	minted := NewMinted("alice", amount)
	if minted.Type() != EventMinted || minted.Account() != "alice" || !minted.Amount().Eq(amount) {
		t.Errorf("unexpected Minted event: %+v", minted)
	}

	burned := NewBurned("alice", amount)
	if burned.Type() != EventBurned || burned.Account() != "alice" {
		t.Errorf("unexpected Burned event: %+v", burned)
	}

	paid := NewPaid("alice", "merchant", "spender", amount)
	if paid.Type() != EventPaid {
		t.Errorf("unexpected Paid event type: %s", paid.Type())
	}
	if paid.Account() != "alice" || paid.Recipient() != "merchant" || paid.Spender() != "spender" {
		t.Errorf("unexpected Paid event: %+v", paid)
	}

	deposited := NewCollateralDeposited("op", amount)
	if deposited.Type() != EventCollateralDeposited || deposited.Account() != "op" {
		t.Errorf("unexpected CollateralDeposited event: %+v", deposited)
	}

	withdrawn := NewCollateralWithdrawn("op", "treasury", amount)
	if withdrawn.Type() != EventCollateralWithdrawn || withdrawn.To() != "treasury" {
		t.Errorf("unexpected CollateralWithdrawn event: %+v", withdrawn)
	}

	added := NewRecipientAdded("merchant", "Merchant")
	if added.Type() != EventRecipientAdded || added.Name() != "Merchant" {
		t.Errorf("unexpected RecipientAdded event: %+v", added)
	}

	removed := NewRecipientRemoved("merchant")
	if removed.Type() != EventRecipientRemoved || removed.Account() != "merchant" {
		t.Errorf("unexpected RecipientRemoved event: %+v", removed)
	}
}

func TestEventAmountIsCopied(t *testing.T) {
	amount := uint256.NewInt(10)
	event := NewMinted("alice", amount)

	// Mutating the caller's value must not change the published event
	amount.SetUint64(999)
	if !event.Amount().Eq(uint256.NewInt(10)) {
		t.Errorf("event amount = %s, want 10", event.Amount().Dec())
	}
}

func TestPublishDoesNotBlockSlowSubscriber(t *testing.T) {
	eventBus := NewEventBus(1)
	id, _ := eventBus.Subscribe()
	defer eventBus.Unsubscribe(id)

	// Fill the buffer and keep publishing; a full channel drops instead of
	// blocking the publisher
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			eventBus.Publish(NewMinted("alice", uint256.NewInt(uint64(i+1))))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
