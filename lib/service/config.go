package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solhub/solhub.go/common"
)

type Config struct {
	DatabaseUri             string  `envconfig:"DATABASE_URI" required:"true"`
	DatabaseMaxConns        int     `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMaxIdleConns    int     `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime int     `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"1800"` // 30 minutes
	SentryDSN               string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	LogFilePath             string  `envconfig:"LOG_FILE_PATH"`
	AdminToken              string  `envconfig:"ADMIN_TOKEN"`
	Host                    string  `envconfig:"HOST" default:"localhost:3000"`
	Port                    int     `envconfig:"PORT" default:"3000"`
	DefaultRateLimit        int     `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	StrictRateLimit         int     `envconfig:"STRICT_RATE_LIMIT" default:"10"`
	BurstRateLimit          int     `envconfig:"BURST_RATE_LIMIT" default:"1"`
	EnablePrometheus        bool    `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort          int     `envconfig:"PROMETHEUS_PORT" default:"9092"`
	WebhookUrl              string  `envconfig:"WEBHOOK_URL"`

	// Merchant wallet receiving all payments. Invoice creation may override it.
	MerchantRecipient string `envconfig:"MERCHANT_RECIPIENT"`
	TokenMint         string `envconfig:"TOKEN_MINT" default:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`
	// Tolerance for token decimal/rounding differences when matching amounts
	AmountToleranceUSD float64 `envconfig:"AMOUNT_TOLERANCE_USD" default:"0.01"`

	InvoiceExpirySeconds    int `envconfig:"INVOICE_EXPIRY" default:"600"`
	InvoiceExtensionSeconds int `envconfig:"INVOICE_EXTENSION" default:"120"`
	// Hard ceiling on a live status stream, independent of invoice expiry
	StreamTimeoutSeconds        int `envconfig:"STREAM_TIMEOUT" default:"900"` // 15 minutes
	PendingCheckIntervalSeconds int `envconfig:"PENDING_CHECK_INTERVAL" default:"30"`
	// Overall deadline for one verification poll against the RPC provider
	VerifyTimeoutSeconds int `envconfig:"VERIFY_TIMEOUT" default:"20"`
	SignatureScanLimit   int `envconfig:"SIGNATURE_SCAN_LIMIT" default:"100"`

	RabbitMQUri                         string `envconfig:"RABBITMQ_URI"`
	RabbitMQInvoiceExchange             string `envconfig:"RABBITMQ_INVOICE_EXCHANGE" default:"solhub_invoice"`
	RabbitMQTransactionExchange         string `envconfig:"RABBITMQ_TRANSACTION_EXCHANGE" default:"solana_transaction"`
	RabbitMQTransactionConsumerQueueName string `envconfig:"RABBITMQ_TRANSACTION_CONSUMER_QUEUE_NAME" default:"solana_transaction_consumer"`
}

func (c *Config) InvoiceExpiry() time.Duration {
	return time.Duration(c.InvoiceExpirySeconds) * time.Second
}

func (c *Config) InvoiceExtension() time.Duration {
	return time.Duration(c.InvoiceExtensionSeconds) * time.Second
}

func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

func (c *Config) AmountTolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.AmountToleranceUSD)
}

func (c *Config) Mint() string {
	if c.TokenMint == "" {
		return common.DefaultTokenMint
	}
	return c.TokenMint
}
