package errors

import (
	"crl/jsonx"
)

// ErrorCode represents standardized error codes for ledger operations
type ErrorCode string

const (
	// General errors
	ErrCodeInternal ErrorCode = "internal_error"

	// Caller lacks a required capability
	ErrCodeAuthorization ErrorCode = "authorization_error"

	// Malformed input: empty identifiers, zero amounts, length mismatches,
	// duplicate recipients, removal of non-members
	ErrCodeValidation ErrorCode = "validation_error"

	// Insufficient collateral, balance or allowance; reentrant entry
	ErrCodeState ErrorCode = "state_error"

	// The external reserve-currency transfer was rejected
	ErrCodeTransferFailed ErrorCode = "transfer_failed"
)

// LedgerError represents a standardized ledger error
type LedgerError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	err, _ := jsonx.Marshal(LedgerError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgNotAdministrator       = "caller does not hold the administrator capability"
	ErrMsgNotOperator            = "caller does not hold the operator capability"
	ErrMsgRecipientViaDirectory  = "recipient capability is managed by the recipient directory"
	ErrMsgInvalidAddress         = "address is empty or invalid"
	ErrMsgInvalidAmount          = "amount is invalid or zero"
	ErrMsgInvalidCapability      = "unknown capability"
	ErrMsgLengthMismatch         = "input arrays must have equal non-zero length"
	ErrMsgEmptyName              = "recipient name must not be empty"
	ErrMsgEmptyDescription       = "recipient description must not be empty"
	ErrMsgRecipientExists        = "recipient already exists"
	ErrMsgRecipientNotFound      = "recipient not found"
	ErrMsgCannotPayFromSelf      = "cannot pay from self"
	ErrMsgInsufficientCollateral = "insufficient collateral"
	ErrMsgInsufficientBalance    = "insufficient balance"
	ErrMsgInsufficientAllowance  = "insufficient allowance"
	ErrMsgReentrantCall          = "reentrant call rejected"
	ErrMsgAlreadyInitialized     = "ledger already initialized"
	ErrMsgTransferRejected       = "reserve currency transfer was rejected"
)

// NewError creates a new LedgerError and returns it as error interface
func NewError(code ErrorCode, message string) error {
	return &LedgerError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the error code from an error, ErrCodeInternal for foreign errors
func CodeOf(err error) ErrorCode {
	if le, ok := err.(*LedgerError); ok {
		return le.Code
	}
	return ErrCodeInternal
}

// MessageOf extracts the human-readable reason from an error
func MessageOf(err error) string {
	if le, ok := err.(*LedgerError); ok {
		return le.Message
	}
	return err.Error()
}
