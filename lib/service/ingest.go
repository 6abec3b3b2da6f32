package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/db/models"
	"github.com/solhub/solhub.go/solana"
)

// HandleTransactionNotification resolves a provider event to an invoice via
// the reference key and drives the pending -> paid transition. Events that
// do not belong to this system are discarded silently, redeliveries of an
// already applied payment are a safe no-op, and processing errors are
// logged and dropped: the provider's own retry mechanism is relied upon.
func (svc *SolhubService) HandleTransactionNotification(ctx context.Context, notification *solana.TransactionNotification) error {
	if notification.Failed() {
		svc.Logger.Debugf("Ignoring failed transaction tx:%s", notification.Signature)
		return nil
	}

	// Find the invoice whose reference key rides along as an account of the
	// transfer. Not every chain transaction belongs to this system.
	invoice, err := svc.findInvoiceForAccounts(ctx, notification)
	if err != nil {
		return err
	}
	if invoice == nil {
		svc.Logger.Debugf("No invoice for transaction, ignoring tx:%s", notification.Signature)
		return nil
	}
	if invoice.State != common.InvoiceStatePending {
		svc.Logger.Infof("Invoice not pending, ignoring redelivery invoice_id:%s state:%s tx:%s",
			invoice.ID, invoice.State, notification.Signature)
		return nil
	}

	transfer := notification.MatchTransfer(invoice.Recipient, svc.Config.Mint())
	if transfer == nil {
		svc.Logger.Infof("No token transfer to recipient in transaction invoice_id:%s tx:%s", invoice.ID, notification.Signature)
		return nil
	}
	if invoice.AmountUSD.Valid &&
		transfer.TokenAmount.Sub(invoice.AmountUSD.Decimal).Abs().GreaterThan(svc.Config.AmountTolerance()) {
		svc.Logger.Infof("Transfer amount outside tolerance invoice_id:%s amount:%s expected:%s tx:%s",
			invoice.ID, transfer.TokenAmount, invoice.AmountUSD.Decimal, notification.Signature)
		return nil
	}

	updated, changed, err := svc.UpdateInvoiceState(ctx, invoice.ID, StateChange{
		NewState:    common.InvoiceStatePaid,
		Payer:       transfer.FromUserAccount,
		TxSignature: notification.Signature,
		BlockTime:   notification.Timestamp,
		PaidAmount:  decimal.NullDecimal{Decimal: transfer.TokenAmount, Valid: true},
	})
	if err != nil {
		return err
	}
	if !changed {
		// lost the race against another delivery of the same payment
		svc.Logger.Infof("Invoice already settled, ignoring invoice_id:%s state:%s tx:%s",
			updated.ID, updated.State, notification.Signature)
		return nil
	}
	svc.Logger.Infof("Invoice paid via webhook invoice_id:%s tx:%s payer:%s", updated.ID, notification.Signature, transfer.FromUserAccount)
	return nil
}

func (svc *SolhubService) findInvoiceForAccounts(ctx context.Context, notification *solana.TransactionNotification) (*models.Invoice, error) {
	for _, account := range notification.AccountData {
		found, err := svc.FindInvoiceByReference(ctx, account.Account)
		if err == ErrInvoiceNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		return found, nil
	}
	return nil, nil
}
