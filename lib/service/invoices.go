package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/db/models"
	"github.com/solhub/solhub.go/payreq"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvalidState      = errors.New("operation not allowed for current invoice state")
	ErrInvalidParameters = errors.New("invalid invoice parameters")
)

// StateChange describes a requested invoice transition. All state mutation
// goes through UpdateInvoiceState, never through cached records.
type StateChange struct {
	NewState    string
	Payer       string
	TxSignature string
	// Unix seconds of the matching transaction's on-chain timestamp.
	// Decides the paid-vs-expired tie-break.
	BlockTime   int64
	PaidAmount  decimal.NullDecimal
	NeedsReview bool
}

// applyTransition mutates invoice in place when the change is legal and
// reports whether anything changed. Transitions are monotone: the only way
// out of a terminal state is expired -> paid for a payment whose on-chain
// timestamp precedes the expiry, which means the expiry check simply ran
// before the payment was observed.
func applyTransition(invoice *models.Invoice, change StateChange, now time.Time) bool {
	switch change.NewState {
	case common.InvoiceStatePaid:
		landedBeforeExpiry := change.BlockTime > 0 && !time.Unix(change.BlockTime, 0).After(invoice.ExpiresAt)
		if invoice.State != common.InvoiceStatePending &&
			!(invoice.State == common.InvoiceStateExpired && landedBeforeExpiry) {
			return false
		}
		invoice.State = common.InvoiceStatePaid
		invoice.Payer = change.Payer
		invoice.PaidTxSig = change.TxSignature
		if invoice.MatchedTxSig == "" {
			invoice.MatchedTxSig = change.TxSignature
		}
		paidAt := now
		if change.BlockTime > 0 {
			paidAt = time.Unix(change.BlockTime, 0)
		}
		invoice.PaidAt = bun.NullTime{Time: paidAt}
		if change.PaidAmount.Valid {
			invoice.PaidAmountUSD = change.PaidAmount
		}
		if change.NeedsReview {
			invoice.NeedsReview = true
		}
		return true
	case common.InvoiceStateExpired:
		if invoice.State != common.InvoiceStatePending {
			return false
		}
		if !now.After(invoice.ExpiresAt) {
			return false
		}
		invoice.State = common.InvoiceStateExpired
		return true
	case common.InvoiceStateDeclined:
		if invoice.State != common.InvoiceStatePending {
			return false
		}
		invoice.State = common.InvoiceStateDeclined
		return true
	}
	return false
}

func (svc *SolhubService) FindInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := svc.DB.NewSelect().Model(&invoice).Where("invoice.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (svc *SolhubService) FindInvoiceByReference(ctx context.Context, reference string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := svc.DB.NewSelect().Model(&invoice).Where("invoice.reference = ?", reference).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// CreateInvoice persists a new pending invoice and returns it together with
// its payment request URI. A caller that generated the reference keypair
// itself may pass the public key, otherwise one is generated here. Either
// way the reference is unique per invoice, enforced by the db index.
func (svc *SolhubService) CreateInvoice(ctx context.Context, recipient, reference string, amountUSD *decimal.Decimal, label, message string) (*models.Invoice, string, error) {
	if recipient == "" {
		recipient = svc.Config.MerchantRecipient
	}
	if !payreq.IsValidPublicKey(recipient) {
		return nil, "", ErrInvalidParameters
	}
	if reference == "" {
		reference = makeReference()
	} else if !payreq.IsValidPublicKey(reference) {
		return nil, "", ErrInvalidParameters
	}
	if amountUSD != nil && !amountUSD.IsPositive() {
		return nil, "", ErrInvalidParameters
	}

	now := time.Now()
	invoice := models.Invoice{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Reference: reference,
		State:     common.InvoiceStatePending,
		Label:     label,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.Config.InvoiceExpiry()),
	}
	if amountUSD != nil {
		invoice.AmountUSD = decimal.NullDecimal{Decimal: *amountUSD, Valid: true}
	}

	uri, err := payreq.Encode(payreq.Params{
		Recipient: invoice.Recipient,
		Token:     svc.Config.Mint(),
		Amount:    amountUSD,
		Reference: invoice.Reference,
		Label:     label,
		Message:   message,
	})
	if err != nil {
		return nil, "", ErrInvalidParameters
	}

	_, err = svc.DB.NewInsert().Model(&invoice).Exec(ctx)
	if err != nil {
		return nil, "", err
	}
	return &invoice, uri, nil
}

// UpdateInvoiceState is the single atomic read-modify-write for an invoice.
// The row lock linearizes concurrent updates per invoice id, and the
// state-machine legality (including the paid-vs-expired tie-break) is
// evaluated while the lock is held. A state change notification is published
// only after the commit, so a subscriber that re-reads on notify always
// observes the new state. Illegal transitions are a no-op, not an error.
func (svc *SolhubService) UpdateInvoiceState(ctx context.Context, invoiceID string, change StateChange) (*models.Invoice, bool, error) {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, err
	}

	var invoice models.Invoice
	err = tx.NewSelect().Model(&invoice).Where("invoice.id = ?", invoiceID).For("UPDATE").Limit(1).Scan(ctx)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrInvoiceNotFound
		}
		return nil, false, err
	}

	if !applyTransition(&invoice, change, time.Now()) {
		tx.Rollback()
		return &invoice, false, nil
	}

	_, err = tx.NewUpdate().Model(&invoice).WherePK().Exec(ctx)
	if err != nil {
		tx.Rollback()
		svc.Logger.Errorf("Could not update invoice invoice_id:%s state:%s: %v", invoice.ID, change.NewState, err)
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		svc.Logger.Errorf("Failed to commit invoice update invoice_id:%s: %v", invoice.ID, err)
		return nil, false, err
	}

	svc.InvoicePubSub.Publish(invoice.ID, invoice)
	svc.InvoicePubSub.Publish(common.InvoiceUpdatesTopic, invoice)

	return &invoice, true, nil
}

// ExtendInvoice pushes the expiry window of a pending invoice forward.
// Taking max(currentExpiry, now) keeps an extension from shortening an
// invoice that still has more time left than one fresh window would give,
// and from silently resurrecting an already-lapsed one.
func (svc *SolhubService) ExtendInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	var invoice models.Invoice
	err = tx.NewSelect().Model(&invoice).Where("invoice.id = ?", invoiceID).For("UPDATE").Limit(1).Scan(ctx)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if invoice.State != common.InvoiceStatePending {
		tx.Rollback()
		return &invoice, ErrInvalidState
	}

	base := invoice.ExpiresAt
	if now := time.Now(); now.After(base) {
		base = now
	}
	invoice.ExpiresAt = base.Add(svc.Config.InvoiceExtension())

	_, err = tx.NewUpdate().Model(&invoice).WherePK().Exec(ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// DeclineInvoice applies the explicit, externally triggered decline
// transition. Decline is never an automatic consequence of a timeout, so a
// late-confirming chain transaction is not orphaned.
func (svc *SolhubService) DeclineInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	invoice, changed, err := svc.UpdateInvoiceState(ctx, invoiceID, StateChange{NewState: common.InvoiceStateDeclined})
	if err != nil {
		return nil, err
	}
	if !changed {
		return invoice, ErrInvalidState
	}
	return invoice, nil
}

// PendingInvoices returns all invoices still awaiting a payment match.
func (svc *SolhubService) PendingInvoices(ctx context.Context) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().Model(&invoices).Where("state = ?", common.InvoiceStatePending).Scan(ctx)
	return invoices, err
}

func makeReference() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base58.Encode(b)
}
