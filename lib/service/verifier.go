package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/db/models"
)

// VerificationResult is the outcome of matching an invoice against the
// ledger. Paid == false is the normal "still pending" result, not an error.
type VerificationResult struct {
	Paid          bool
	Signature     string
	Payer         string
	MatchedAmount decimal.Decimal
	BlockTime     int64
	NeedsReview   bool
	// debug metadata
	ScannedSignatures int
}

// VerifyInvoicePayment queries the ledger for transactions carrying the
// invoice's reference key and checks them against recipient, token mint and
// amount tolerance. Candidates are considered in ledger order, earliest
// first; when several match, the earliest wins and the invoice is flagged
// for operator review instead of guessing.
func (svc *SolhubService) VerifyInvoicePayment(ctx context.Context, invoice *models.Invoice) (VerificationResult, error) {
	result := VerificationResult{}

	signatures, err := svc.SolanaClient.GetSignaturesForAddress(ctx, invoice.Reference, svc.Config.SignatureScanLimit)
	if err != nil {
		return result, err
	}
	result.ScannedSignatures = len(signatures)

	// the RPC node returns newest first
	for i := len(signatures) - 1; i >= 0; i-- {
		sigInfo := signatures[i]
		if sigInfo.Failed() {
			continue
		}
		tx, err := svc.SolanaClient.GetTransaction(ctx, sigInfo.Signature)
		if err != nil {
			return result, err
		}
		if tx == nil || tx.Failed() {
			continue
		}

		amount := tx.TokenAmountReceived(invoice.Recipient, svc.Config.Mint())
		if !amount.IsPositive() {
			continue
		}
		if invoice.AmountUSD.Valid &&
			amount.Sub(invoice.AmountUSD.Decimal).Abs().GreaterThan(svc.Config.AmountTolerance()) {
			continue
		}

		if result.Paid {
			// a second matching transaction, keep the earliest
			result.NeedsReview = true
			break
		}
		result.Paid = true
		result.Signature = sigInfo.Signature
		result.Payer = tx.FeePayer()
		result.MatchedAmount = amount
		if sigInfo.BlockTime != nil {
			result.BlockTime = *sigInfo.BlockTime
		} else if tx.BlockTime != nil {
			result.BlockTime = *tx.BlockTime
		}
	}

	if result.Paid {
		// confirm the candidate against the node's current view before
		// settling. A signature the node no longer vouches for (dropped or
		// reorged away) must not mark an invoice paid.
		confirmed, err := svc.signatureConfirmed(ctx, result.Signature)
		if err != nil {
			return VerificationResult{ScannedSignatures: result.ScannedSignatures}, err
		}
		if !confirmed {
			svc.Logger.Infof("Matching transaction no longer confirmed, treating as pending invoice_id:%s tx:%s", invoice.ID, result.Signature)
			return VerificationResult{ScannedSignatures: result.ScannedSignatures}, nil
		}
	}

	return result, nil
}

func (svc *SolhubService) signatureConfirmed(ctx context.Context, signature string) (bool, error) {
	statuses, err := svc.SolanaClient.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return false, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false, nil
	}
	return !statuses[0].Failed(), nil
}

// CheckInvoicePayment is the polling entry point: it bounds the RPC work
// with an overall deadline and retries transient provider failures with
// backoff. An unreachable provider yields "still pending", never an error
// and never a state change.
func (svc *SolhubService) CheckInvoicePayment(ctx context.Context, invoice *models.Invoice) VerificationResult {
	checkCtx, cancel := context.WithTimeout(ctx, svc.Config.VerifyTimeout())
	defer cancel()

	var result VerificationResult
	err := backoff.Retry(func() error {
		res, err := svc.VerifyInvoicePayment(checkCtx, invoice)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, backoff.WithContext(backoff.NewExponentialBackOff(), checkCtx))
	if err != nil {
		svc.Logger.Errorf("Verification unavailable, treating as pending invoice_id:%s: %v", invoice.ID, err)
		return VerificationResult{}
	}
	return result
}

// RefreshInvoiceStatus settles a pending invoice from the poll path: apply
// the paid transition when a match exists, otherwise expire it when its
// window has lapsed. Returns the freshest invoice record.
func (svc *SolhubService) RefreshInvoiceStatus(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	if invoice.State != common.InvoiceStatePending {
		return invoice, nil
	}

	result := svc.CheckInvoicePayment(ctx, invoice)
	if result.Paid {
		updated, changed, err := svc.UpdateInvoiceState(ctx, invoice.ID, paidChange(result))
		if err != nil {
			return invoice, err
		}
		if changed {
			svc.Logger.Infof("Invoice paid via poll invoice_id:%s tx:%s payer:%s", updated.ID, result.Signature, result.Payer)
		}
		return updated, nil
	}

	if time.Now().After(invoice.ExpiresAt) {
		updated, changed, err := svc.UpdateInvoiceState(ctx, invoice.ID, StateChange{NewState: common.InvoiceStateExpired})
		if err != nil {
			return invoice, err
		}
		if changed {
			svc.Logger.Infof("Invoice expired invoice_id:%s", updated.ID)
		}
		return updated, nil
	}
	return invoice, nil
}

// CheckPendingInvoices sweeps all pending invoices once. Used as the
// fallback when webhook delivery is delayed or lost.
func (svc *SolhubService) CheckPendingInvoices(ctx context.Context) error {
	pending, err := svc.PendingInvoices(ctx)
	if err != nil {
		return err
	}
	svc.Logger.Infof("Found %d pending invoices", len(pending))
	for i := range pending {
		invoice := pending[i]
		if _, err = svc.RefreshInvoiceStatus(ctx, &invoice); err != nil {
			svc.Logger.Error(err)
		}
	}
	return nil
}

func paidChange(result VerificationResult) StateChange {
	return StateChange{
		NewState:    common.InvoiceStatePaid,
		Payer:       result.Payer,
		TxSignature: result.Signature,
		BlockTime:   result.BlockTime,
		PaidAmount:  decimal.NullDecimal{Decimal: result.MatchedAmount, Valid: true},
		NeedsReview: result.NeedsReview,
	}
}
