package store

// Declare database key prefix for objects
const (
	PrefixAccount    = "account:"
	PrefixAllowance  = "allowance:"
	PrefixRecipient  = "recipient:"
	PrefixCapability = "capability:"

	KeyLedgerState    = "ledger_state"
	KeyRecipientOrder = "recipient_order"
)
