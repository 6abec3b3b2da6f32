package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/solhub/solhub.go/common"
)

// Invoice : Invoice Model
type Invoice struct {
	ID        string `json:"id" bun:",pk"`
	Recipient string `json:"recipient" bun:",notnull" validate:"required"`
	// Reference is globally unique across all invoices ever created,
	// it is the sole correlation key for on-chain matching.
	Reference     string              `json:"reference" bun:",notnull,unique"`
	AmountUSD     decimal.NullDecimal `json:"amount_usd" bun:"amount_usd,nullzero"`
	PaidAmountUSD decimal.NullDecimal `json:"paid_amount_usd" bun:"paid_amount_usd,nullzero"`
	Label         string              `json:"label,omitempty" bun:",nullzero"`
	Message       string              `json:"message,omitempty" bun:",nullzero"`
	State         string              `json:"state" bun:",default:'pending'"`
	Payer         string              `json:"payer,omitempty" bun:",nullzero"`
	PaidTxSig     string              `json:"paid_tx_sig,omitempty" bun:",nullzero"`
	// MatchedTxSig and NeedsReview are diagnostics for operator inspection
	// when automatic matching was ambiguous.
	MatchedTxSig string       `json:"matched_tx_sig,omitempty" bun:",nullzero"`
	NeedsReview  bool         `json:"needs_review,omitempty" bun:",nullzero"`
	CreatedAt    time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	ExpiresAt    time.Time    `json:"expires_at" bun:",notnull"`
	PaidAt       bun.NullTime `json:"paid_at"`
	UpdatedAt    bun.NullTime `json:"updated_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

func (i *Invoice) IsTerminal() bool {
	return common.IsTerminalState(i.State)
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
