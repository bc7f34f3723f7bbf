package jsonrpc

import (
	"strings"

	"github.com/holiman/uint256"

	"crl/utils"
)

// JSON-RPC Method name constants
const (
	// Ledger methods
	MethodLedgerMint               = "ledger.mint"
	MethodLedgerBulkMint           = "ledger.bulkmint"
	MethodLedgerBurn               = "ledger.burn"
	MethodLedgerApprove            = "ledger.approve"
	MethodLedgerGetAllowance       = "ledger.getallowance"
	MethodLedgerTransferFrom       = "ledger.transferfrom"
	MethodLedgerDepositCollateral  = "ledger.depositcollateral"
	MethodLedgerWithdrawCollateral = "ledger.withdrawcollateral"
	MethodLedgerGetBalance         = "ledger.getbalance"
	MethodLedgerGetSupply          = "ledger.getsupply"
	MethodLedgerGetReserve         = "ledger.getreserve"
	MethodLedgerGetCollateralRatio = "ledger.getcollateralratio"

	// Capability methods
	MethodCapabilityHas    = "capability.has"
	MethodCapabilityGrant  = "capability.grant"
	MethodCapabilityRevoke = "capability.revoke"

	// Directory methods
	MethodDirectoryAddRecipients     = "directory.addrecipients"
	MethodDirectoryRemoveRecipients  = "directory.removerecipients"
	MethodDirectoryGetRecipient      = "directory.getrecipient"
	MethodDirectoryGetRecipients     = "directory.getrecipients"
	MethodDirectoryGetRecipientCount = "directory.getrecipientcount"
	MethodDirectoryGetRecipientJSON  = "directory.getrecipientjson"
	MethodDirectoryGetRecipientsJSON = "directory.getrecipientsjson"

	// Health methods
	MethodHealthCheck = "health.check"
)

// maxPageSize caps directory pagination so one call cannot materialize an
// unbounded response
const maxPageSize = 1000

func parseAmounts(raw []string) ([]*uint256.Int, *rpcError) {
	out := make([]*uint256.Int, 0, len(raw))
	for _, r := range raw {
		amount, err := utils.ParseAmount(r)
		if err != nil {
			return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
		}
		out = append(out, amount)
	}
	return out, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
