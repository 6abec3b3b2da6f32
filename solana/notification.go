package solana

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TransactionNotification is an indexing provider's "transaction observed"
// event, delivered over the inbound webhook or the rabbitmq consumer.
// Only the fields the ingestor needs are decoded.
type TransactionNotification struct {
	Signature        string          `json:"signature"`
	Timestamp        int64           `json:"timestamp"`
	Slot             uint64          `json:"slot"`
	TransactionError json.RawMessage `json:"transactionError"`
	AccountData      []AccountData   `json:"accountData"`
	TokenTransfers   []TokenTransfer `json:"tokenTransfers"`
}

type AccountData struct {
	Account string `json:"account"`
}

type TokenTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	Mint            string          `json:"mint"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

func (n *TransactionNotification) Failed() bool {
	return len(n.TransactionError) > 0 && string(n.TransactionError) != "null"
}

// MatchTransfer returns the first positive transfer of the given mint to
// recipient, or nil.
func (n *TransactionNotification) MatchTransfer(recipient, mint string) *TokenTransfer {
	for i := range n.TokenTransfers {
		transfer := &n.TokenTransfers[i]
		if transfer.ToUserAccount == recipient && transfer.Mint == mint && transfer.TokenAmount.IsPositive() {
			return transfer
		}
	}
	return nil
}
