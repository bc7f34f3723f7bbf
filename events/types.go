package events

import (
	"time"

	"github.com/holiman/uint256"
)

// EventType is an enum-like string type for ledger events
type EventType string

const (
	EventMinted              EventType = "Minted"
	EventBurned              EventType = "Burned"
	EventPaid                EventType = "Paid"
	EventCollateralDeposited EventType = "CollateralDeposited"
	EventCollateralWithdrawn EventType = "CollateralWithdrawn"
	EventRecipientAdded      EventType = "RecipientAdded"
	EventRecipientRemoved    EventType = "RecipientRemoved"
)

// LedgerEvent represents any observable side effect of a committed operation
type LedgerEvent interface {
	Type() EventType
	Timestamp() time.Time
	Account() string
}

// Minted event when credits are created for an account
type Minted struct {
	account   string
	amount    *uint256.Int
	timestamp time.Time
}

func NewMinted(account string, amount *uint256.Int) *Minted {
	return &Minted{
		account:   account,
		amount:    new(uint256.Int).Set(amount),
		timestamp: time.Now(),
	}
}

func (e *Minted) Type() EventType {
	return EventMinted
}

func (e *Minted) Timestamp() time.Time {
	return e.timestamp
}

func (e *Minted) Account() string {
	return e.account
}

func (e *Minted) Amount() *uint256.Int {
	return e.amount
}

// Burned event when an account destroys its own credits
type Burned struct {
	account   string
	amount    *uint256.Int
	timestamp time.Time
}

func NewBurned(account string, amount *uint256.Int) *Burned {
	return &Burned{
		account:   account,
		amount:    new(uint256.Int).Set(amount),
		timestamp: time.Now(),
	}
}

func (e *Burned) Type() EventType {
	return EventBurned
}

func (e *Burned) Timestamp() time.Time {
	return e.timestamp
}

func (e *Burned) Account() string {
	return e.account
}

func (e *Burned) Amount() *uint256.Int {
	return e.amount
}

// Paid event when credits are redeemed into a reserve-currency payout
type Paid struct {
	from      string
	recipient string
	spender   string
	amount    *uint256.Int
	timestamp time.Time
}

func NewPaid(from, recipient, spender string, amount *uint256.Int) *Paid {
	return &Paid{
		from:      from,
		recipient: recipient,
		spender:   spender,
		amount:    new(uint256.Int).Set(amount),
		timestamp: time.Now(),
	}
}

func (e *Paid) Type() EventType {
	return EventPaid
}

func (e *Paid) Timestamp() time.Time {
	return e.timestamp
}

func (e *Paid) Account() string {
	return e.from
}

func (e *Paid) Recipient() string {
	return e.recipient
}

func (e *Paid) Spender() string {
	return e.spender
}

func (e *Paid) Amount() *uint256.Int {
	return e.amount
}

// CollateralDeposited event when an operator adds reserve currency
type CollateralDeposited struct {
	operator  string
	amount    *uint256.Int
	timestamp time.Time
}

func NewCollateralDeposited(operator string, amount *uint256.Int) *CollateralDeposited {
	return &CollateralDeposited{
		operator:  operator,
		amount:    new(uint256.Int).Set(amount),
		timestamp: time.Now(),
	}
}

func (e *CollateralDeposited) Type() EventType {
	return EventCollateralDeposited
}

func (e *CollateralDeposited) Timestamp() time.Time {
	return e.timestamp
}

func (e *CollateralDeposited) Account() string {
	return e.operator
}

func (e *CollateralDeposited) Amount() *uint256.Int {
	return e.amount
}

// CollateralWithdrawn event when an operator removes reserve currency
type CollateralWithdrawn struct {
	operator  string
	to        string
	amount    *uint256.Int
	timestamp time.Time
}

func NewCollateralWithdrawn(operator, to string, amount *uint256.Int) *CollateralWithdrawn {
	return &CollateralWithdrawn{
		operator:  operator,
		to:        to,
		amount:    new(uint256.Int).Set(amount),
		timestamp: time.Now(),
	}
}

func (e *CollateralWithdrawn) Type() EventType {
	return EventCollateralWithdrawn
}

func (e *CollateralWithdrawn) Timestamp() time.Time {
	return e.timestamp
}

func (e *CollateralWithdrawn) Account() string {
	return e.operator
}

func (e *CollateralWithdrawn) To() string {
	return e.to
}

func (e *CollateralWithdrawn) Amount() *uint256.Int {
	return e.amount
}

// RecipientAdded event when the directory authorizes a payout destination
type RecipientAdded struct {
	account   string
	name      string
	timestamp time.Time
}

func NewRecipientAdded(account, name string) *RecipientAdded {
	return &RecipientAdded{
		account:   account,
		name:      name,
		timestamp: time.Now(),
	}
}

func (e *RecipientAdded) Type() EventType {
	return EventRecipientAdded
}

func (e *RecipientAdded) Timestamp() time.Time {
	return e.timestamp
}

func (e *RecipientAdded) Account() string {
	return e.account
}

func (e *RecipientAdded) Name() string {
	return e.name
}

// RecipientRemoved event when the directory revokes a payout destination
type RecipientRemoved struct {
	account   string
	timestamp time.Time
}

func NewRecipientRemoved(account string) *RecipientRemoved {
	return &RecipientRemoved{
		account:   account,
		timestamp: time.Now(),
	}
}

func (e *RecipientRemoved) Type() EventType {
	return EventRecipientRemoved
}

func (e *RecipientRemoved) Timestamp() time.Time {
	return e.timestamp
}

func (e *RecipientRemoved) Account() string {
	return e.account
}
