package service

import (
	"context"
	"time"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/db/models"
)

// StartPendingInvoiceRoutine periodically reconciles pending invoices
// against the ledger. This is the fallback path for lost or delayed webhook
// deliveries, and the place where invoices past their window expire.
func (svc *SolhubService) StartPendingInvoiceRoutine(ctx context.Context) error {
	interval := time.Duration(svc.Config.PendingCheckIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := svc.CheckPendingInvoices(ctx); err != nil {
				svc.Logger.Error(err)
			}
		}
	}
}

// StartTransactionConsumerRoutine consumes provider transaction events from
// rabbitmq as an alternative to the HTTP webhook.
func (svc *SolhubService) StartTransactionConsumerRoutine(ctx context.Context) error {
	return svc.RabbitMQClient.SubscribeToTransactions(ctx, svc.HandleTransactionNotification)
}

// SubscribeInvoiceUpdates is handed to the rabbitmq publisher so it can
// relay every invoice state change to the configured exchange.
func (svc *SolhubService) SubscribeInvoiceUpdates() (chan models.Invoice, func(), error) {
	// buffered so a publisher racing the consumer's shutdown is not blocked
	invoiceChan := make(chan models.Invoice, 16)
	subId, err := svc.InvoicePubSub.Subscribe(common.InvoiceUpdatesTopic, invoiceChan)
	if err != nil {
		return nil, nil, err
	}
	unsub := func() {
		svc.InvoicePubSub.Unsubscribe(subId, common.InvoiceUpdatesTopic)
	}
	return invoiceChan, unsub, nil
}
