package service

import (
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"

	"github.com/solhub/solhub.go/rabbitmq"
	"github.com/solhub/solhub.go/solana"
)

type SolhubService struct {
	Config         *Config
	DB             *bun.DB
	Logger         *lecho.Logger
	SolanaClient   solana.TransactionClient
	InvoicePubSub  *Pubsub
	RabbitMQClient rabbitmq.Client
}
