package interfaces

import (
	"crl/types"
)

// DirectoryService defines the recipient directory operations consumed by
// the API surface
type DirectoryService interface {
	Add(caller string, accounts, names, descriptions []string) error
	Remove(caller string, accounts []string) error
	Count() int
	Get(account string) (*types.Recipient, error)
	Page(cursor, size uint64) ([]*types.Recipient, uint64, error)
	RecipientJSON(account string) (string, error)
	RecipientsJSON() (string, error)
}
