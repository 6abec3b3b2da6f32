package solana

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// SignatureInfo is one entry of a getSignaturesForAddress response,
// returned newest first by the RPC node.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Err       json.RawMessage `json:"err"`
	BlockTime *int64          `json:"blockTime"`
}

// Failed reports whether the transaction had a program-level failure on chain.
func (s *SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

type Transaction struct {
	Slot        uint64          `json:"slot"`
	BlockTime   *int64          `json:"blockTime"`
	Meta        TransactionMeta `json:"meta"`
	Transaction TransactionBody `json:"transaction"`
}

type TransactionMeta struct {
	Err               json.RawMessage `json:"err"`
	PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
}

type TransactionBody struct {
	Message    TransactionMessage `json:"message"`
	Signatures []string           `json:"signatures"`
}

type TransactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UiTokenAmount UiTokenAmount `json:"uiTokenAmount"`
}

type UiTokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       int32  `json:"decimals"`
	UiAmountString string `json:"uiAmountString"`
}

func (t *Transaction) Failed() bool {
	return len(t.Meta.Err) > 0 && string(t.Meta.Err) != "null"
}

// FeePayer is the first account key of the message, the wallet that signed
// and funded the transaction.
func (t *Transaction) FeePayer() string {
	if len(t.Transaction.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Transaction.Message.AccountKeys[0]
}

// TokenAmountReceived returns the amount of the given mint credited to owner
// by this transaction, derived from the pre/post token balances.
func (t *Transaction) TokenAmountReceived(owner, mint string) decimal.Decimal {
	received := decimal.Zero
	for _, post := range t.Meta.PostTokenBalances {
		if post.Owner != owner || post.Mint != mint {
			continue
		}
		delta, err := decimal.NewFromString(post.UiTokenAmount.Amount)
		if err != nil {
			continue
		}
		for _, pre := range t.Meta.PreTokenBalances {
			if pre.AccountIndex == post.AccountIndex {
				preAmount, err := decimal.NewFromString(pre.UiTokenAmount.Amount)
				if err == nil {
					delta = delta.Sub(preAmount)
				}
				break
			}
		}
		received = received.Add(delta.Shift(-post.UiTokenAmount.Decimals))
	}
	return received
}
