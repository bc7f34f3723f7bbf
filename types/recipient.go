package types

// Recipient carries the human-readable metadata attached to an authorized
// payout destination. A record exists iff the address currently holds the
// recipient capability.
type Recipient struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
