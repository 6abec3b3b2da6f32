package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/db/models"
	"github.com/solhub/solhub.go/lib/logging"
	"github.com/solhub/solhub.go/solana"
)

const (
	testRecipient = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testPayer     = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

type chainMock struct {
	signatures   []solana.SignatureInfo
	transactions map[string]*solana.Transaction
	// signatures the node no longer vouches for on the status endpoint
	dropped map[string]bool
	err     error
}

func (m *chainMock) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.signatures, nil
}

func (m *chainMock) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.transactions[signature], nil
}

func (m *chainMock) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, signature := range signatures {
		if m.dropped[signature] {
			continue
		}
		statuses[i] = &solana.SignatureStatus{ConfirmationStatus: "confirmed"}
	}
	return statuses, nil
}

func verifierTestService(mock *chainMock) *SolhubService {
	return &SolhubService{
		Config: &Config{
			TokenMint:            common.DefaultTokenMint,
			AmountToleranceUSD:   0.01,
			SignatureScanLimit:   100,
			VerifyTimeoutSeconds: 1,
		},
		Logger:       logging.Logger(""),
		SolanaClient: mock,
	}
}

func transferTx(blockTime int64, amount string) *solana.Transaction {
	return &solana.Transaction{
		BlockTime: &blockTime,
		Transaction: solana.TransactionBody{
			Message: solana.TransactionMessage{AccountKeys: []string{testPayer, testRecipient}},
		},
		Meta: solana.TransactionMeta{
			PostTokenBalances: []solana.TokenBalance{
				{
					AccountIndex: 1,
					Mint:         common.DefaultTokenMint,
					Owner:        testRecipient,
					UiTokenAmount: solana.UiTokenAmount{
						Amount:   decimal.RequireFromString(amount).Shift(common.DefaultTokenDecimals).String(),
						Decimals: common.DefaultTokenDecimals,
					},
				},
			},
		},
	}
}

func sigInfo(signature string, blockTime int64) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: signature, BlockTime: &blockTime}
}

func testInvoice(amount string, expiresAt time.Time) *models.Invoice {
	invoice := &models.Invoice{
		ID:        "inv-1",
		Recipient: testRecipient,
		Reference: "ref-1",
		State:     common.InvoiceStatePending,
		ExpiresAt: expiresAt,
	}
	if amount != "" {
		invoice.AmountUSD = decimal.NullDecimal{Decimal: decimal.RequireFromString(amount), Valid: true}
	}
	return invoice
}

func TestVerifyInvoicePaymentMatch(t *testing.T) {
	blockTime := time.Now().Add(-time.Minute).Unix()
	svc := verifierTestService(&chainMock{
		signatures:   []solana.SignatureInfo{sigInfo("sig-1", blockTime)},
		transactions: map[string]*solana.Transaction{"sig-1": transferTx(blockTime, "20.5")},
	})

	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("20.5", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Equal(t, "sig-1", result.Signature)
	assert.Equal(t, testPayer, result.Payer)
	assert.Equal(t, blockTime, result.BlockTime)
	assert.False(t, result.NeedsReview)
	assert.True(t, decimal.RequireFromString("20.5").Equal(result.MatchedAmount))
}

func TestVerifyInvoicePaymentNoSignatures(t *testing.T) {
	svc := verifierTestService(&chainMock{})
	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("20.5", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.False(t, result.Paid)
}

func TestVerifyInvoicePaymentSkipsFailedAndUnknown(t *testing.T) {
	blockTime := time.Now().Unix()
	failed := sigInfo("sig-failed", blockTime)
	failed.Err = []byte(`{"InstructionError":[0,"Custom"]}`)
	svc := verifierTestService(&chainMock{
		// sig-unknown has no transaction record, the node has not seen it yet
		signatures:   []solana.SignatureInfo{sigInfo("sig-unknown", blockTime), failed},
		transactions: map[string]*solana.Transaction{},
	})

	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("20.5", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.False(t, result.Paid)
	assert.Equal(t, 2, result.ScannedSignatures)
}

func TestVerifyInvoicePaymentAmountTolerance(t *testing.T) {
	blockTime := time.Now().Unix()
	svc := verifierTestService(&chainMock{
		signatures: []solana.SignatureInfo{sigInfo("sig-low", blockTime), sigInfo("sig-close", blockTime)},
		transactions: map[string]*solana.Transaction{
			"sig-low": transferTx(blockTime, "19"),
			// within the 0.01 USD tolerance
			"sig-close": transferTx(blockTime, "20.495"),
		},
	})

	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("20.5", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Equal(t, "sig-close", result.Signature)
	assert.False(t, result.NeedsReview)
}

func TestVerifyInvoicePaymentCustomAmountAcceptsAnyPositive(t *testing.T) {
	blockTime := time.Now().Unix()
	svc := verifierTestService(&chainMock{
		signatures:   []solana.SignatureInfo{sigInfo("sig-1", blockTime)},
		transactions: map[string]*solana.Transaction{"sig-1": transferTx(blockTime, "0.37")},
	})

	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.True(t, result.Paid)
	assert.True(t, decimal.RequireFromString("0.37").Equal(result.MatchedAmount))
}

func TestVerifyInvoicePaymentRejectsDroppedSignature(t *testing.T) {
	blockTime := time.Now().Unix()
	svc := verifierTestService(&chainMock{
		signatures:   []solana.SignatureInfo{sigInfo("sig-dropped", blockTime)},
		transactions: map[string]*solana.Transaction{"sig-dropped": transferTx(blockTime, "20.5")},
		// the transaction matched but the status endpoint no longer knows it
		dropped: map[string]bool{"sig-dropped": true},
	})

	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("20.5", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.False(t, result.Paid)
	assert.Equal(t, 1, result.ScannedSignatures)
}

func TestVerifyInvoicePaymentPrefersEarliestAndFlagsReview(t *testing.T) {
	earlier := time.Now().Add(-2 * time.Minute).Unix()
	later := time.Now().Add(-time.Minute).Unix()
	svc := verifierTestService(&chainMock{
		// the node returns newest first
		signatures: []solana.SignatureInfo{sigInfo("sig-later", later), sigInfo("sig-earlier", earlier)},
		transactions: map[string]*solana.Transaction{
			"sig-later":   transferTx(later, "20.5"),
			"sig-earlier": transferTx(earlier, "20.5"),
		},
	})

	result, err := svc.VerifyInvoicePayment(context.Background(), testInvoice("20.5", time.Now().Add(time.Minute)))
	assert.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Equal(t, "sig-earlier", result.Signature)
	assert.Equal(t, earlier, result.BlockTime)
	assert.True(t, result.NeedsReview)
}
