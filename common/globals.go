package common

const (
	InvoiceStatePending  = "pending"
	InvoiceStatePaid     = "paid"
	InvoiceStateDeclined = "declined"
	InvoiceStateExpired  = "expired"

	// Topic carrying every invoice state change, next to the per-invoice topics.
	// Used by the outbound webhook and the rabbitmq publisher.
	InvoiceUpdatesTopic = "invoice_updates"

	// USDC on Solana mainnet
	DefaultTokenMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	DefaultTokenDecimals = 6
)

func IsTerminalState(state string) bool {
	switch state {
	case InvoiceStatePaid, InvoiceStateDeclined, InvoiceStateExpired:
		return true
	}
	return false
}
