// Package payreq builds and parses Solana Pay style payment request URIs.
// The reference key is the only correlation between a request and the
// on-chain transfer that settles it, so it is mandatory in every URI.
package payreq

import (
	"errors"
	"net/url"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/shopspring/decimal"
)

const Scheme = "solana"

var ErrInvalidParameters = errors.New("invalid payment request parameters")

type Params struct {
	Recipient string
	Token     string
	// Amount is nil for custom-amount requests, where the payer enters the amount
	Amount    *decimal.Decimal
	Reference string
	Label     string
	Message   string
	Memo      string
}

// IsValidPublicKey reports whether s is base58 text decoding to a 32 byte key.
func IsValidPublicKey(s string) bool {
	if s == "" {
		return false
	}
	return len(base58.Decode(s)) == 32
}

func Encode(p Params) (string, error) {
	if !IsValidPublicKey(p.Recipient) || !IsValidPublicKey(p.Reference) {
		return "", ErrInvalidParameters
	}
	if p.Amount != nil && p.Amount.IsNegative() {
		return "", ErrInvalidParameters
	}

	query := url.Values{}
	if p.Token != "" {
		query.Set("token", p.Token)
	}
	if p.Amount != nil {
		query.Set("amount", p.Amount.String())
	}
	query.Set("reference", p.Reference)
	if p.Label != "" {
		query.Set("label", p.Label)
	}
	if p.Message != "" {
		query.Set("message", p.Message)
	}
	if p.Memo != "" {
		query.Set("memo", p.Memo)
	}

	return Scheme + ":" + p.Recipient + "?" + query.Encode(), nil
}

// Decode parses a payment request URI. It returns nil on any structural
// mismatch: malformed input is expected here, not a fault.
func Decode(uri string) *Params {
	rest, found := strings.CutPrefix(uri, Scheme+":")
	if !found {
		return nil
	}
	recipient, rawQuery, _ := strings.Cut(rest, "?")
	if recipient == "" || strings.Contains(recipient, "/") {
		return nil
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil
	}
	reference := query.Get("reference")
	if reference == "" {
		return nil
	}

	params := &Params{
		Recipient: recipient,
		Token:     query.Get("token"),
		Reference: reference,
		Label:     query.Get("label"),
		Message:   query.Get("message"),
		Memo:      query.Get("memo"),
	}
	if query.Has("amount") {
		amount, err := decimal.NewFromString(query.Get("amount"))
		if err != nil || amount.IsNegative() {
			return nil
		}
		params.Amount = &amount
	}
	return params
}

// IsValid decodes the URI and validates both keys. Used for self-checks,
// not on the payment-critical path.
func IsValid(uri string) bool {
	p := Decode(uri)
	if p == nil {
		return false
	}
	return IsValidPublicKey(p.Recipient) && IsValidPublicKey(p.Reference)
}
