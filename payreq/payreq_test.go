package payreq

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const (
	testRecipient = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testReference = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestIsValidPublicKey(t *testing.T) {
	assert.True(t, IsValidPublicKey(testRecipient))
	assert.True(t, IsValidPublicKey("11111111111111111111111111111111"))
	assert.False(t, IsValidPublicKey(""))
	assert.False(t, IsValidPublicKey("tooshort"))
	// valid base58, wrong length
	assert.False(t, IsValidPublicKey("2NEpo7TZRRrLZSi2U"))
	// 0, O, I and l are not base58
	assert.False(t, IsValidPublicKey("0OIl111111111111111111111111111111111111111"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("20.5")
	uri, err := Encode(Params{
		Recipient: testRecipient,
		Token:     testMint,
		Amount:    &amount,
		Reference: testReference,
		Label:     "Michael's Store",
		Message:   "Order #42 & fries",
	})
	assert.NoError(t, err)

	decoded := Decode(uri)
	assert.NotNil(t, decoded)
	assert.Equal(t, testRecipient, decoded.Recipient)
	assert.Equal(t, testMint, decoded.Token)
	assert.Equal(t, testReference, decoded.Reference)
	assert.Equal(t, "Michael's Store", decoded.Label)
	assert.Equal(t, "Order #42 & fries", decoded.Message)
	assert.NotNil(t, decoded.Amount)
	assert.True(t, amount.Equal(*decoded.Amount))
}

func TestEncodeWithoutAmount(t *testing.T) {
	uri, err := Encode(Params{
		Recipient: testRecipient,
		Reference: testReference,
	})
	assert.NoError(t, err)

	decoded := Decode(uri)
	assert.NotNil(t, decoded)
	// custom-amount request, the payer picks the amount in their wallet
	assert.Nil(t, decoded.Amount)
}

func TestEncodeRejectsInvalidParams(t *testing.T) {
	amount := decimal.RequireFromString("10")
	negative := decimal.RequireFromString("-1")

	_, err := Encode(Params{Recipient: "notakey", Amount: &amount, Reference: testReference})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Encode(Params{Recipient: testRecipient, Amount: &amount, Reference: ""})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Encode(Params{Recipient: testRecipient, Amount: &negative, Reference: testReference})
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDecodeRejectsMalformedURIs(t *testing.T) {
	assert.Nil(t, Decode(""))
	assert.Nil(t, Decode("bitcoin:"+testRecipient+"?reference="+testReference))
	assert.Nil(t, Decode("solana:?reference="+testReference))
	// reference is mandatory
	assert.Nil(t, Decode("solana:"+testRecipient+"?amount=1"))
	assert.Nil(t, Decode("solana:"+testRecipient+"?reference="+testReference+"&amount=abc"))
	assert.Nil(t, Decode("solana:"+testRecipient+"?reference="+testReference+"&amount=-5"))
	assert.Nil(t, Decode("solana://host/path?reference="+testReference))
}

func TestIsValid(t *testing.T) {
	uri, err := Encode(Params{Recipient: testRecipient, Reference: testReference})
	assert.NoError(t, err)
	assert.True(t, IsValid(uri))
	// structurally fine but the keys do not decode to 32 bytes
	assert.False(t, IsValid("solana:somebody?reference=something"))
}
