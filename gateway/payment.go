package gateway

import (
	"fmt"

	"github.com/holiman/uint256"

	"crl/interfaces"
	"crl/logx"
)

// Notifier is invoked after a payment settles. Returning an error fails the
// Collect call, but the ledger movement has already committed.
type Notifier func(payer string, amount *uint256.Int) error

// PaymentGateway is a recipient-side consumer that pulls payments from
// payers who approved it as a spender. Its address must hold the recipient
// capability on the ledger.
type PaymentGateway struct {
	ledger  interfaces.LedgerService
	address string
	notify  Notifier
}

func NewPaymentGateway(ledger interfaces.LedgerService, address string, notify Notifier) (*PaymentGateway, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if address == "" {
		return nil, fmt.Errorf("gateway address is required")
	}
	return &PaymentGateway{
		ledger:  ledger,
		address: address,
		notify:  notify,
	}, nil
}

// Collect pulls amount from the payer into the gateway's own account and
// then notifies the configured callback
func (p *PaymentGateway) Collect(payer string, amount *uint256.Int) error {
	if err := p.ledger.TransferFrom(p.address, payer, p.address, amount); err != nil {
		return err
	}
	logx.Info("GATEWAY", fmt.Sprintf("Payment collected | payer=%s | amount=%s", payer, amount.Dec()))
	if p.notify != nil {
		if err := p.notify(payer, amount); err != nil {
			return fmt.Errorf("payment notification failed: %w", err)
		}
	}
	return nil
}
