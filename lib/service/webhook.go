package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/db/models"
)

// StartWebhookSubscription forwards every invoice state change to the
// merchant's configured webhook url until the context is cancelled.
func (svc *SolhubService) StartWebhookSubscription(ctx context.Context, url string) {
	svc.Logger.Infof("Starting webhook subscription with webhook url %s", url)

	// buffered so a publisher racing this routine's shutdown is not blocked
	invoiceChan := make(chan models.Invoice, 16)
	subId, _ := svc.InvoicePubSub.Subscribe(common.InvoiceUpdatesTopic, invoiceChan)
	defer svc.InvoicePubSub.Unsubscribe(subId, common.InvoiceUpdatesTopic)
	for {
		select {
		case <-ctx.Done():
			return
		case invoice := <-invoiceChan:
			svc.postToWebhook(invoice, url)
		}
	}
}

func (svc *SolhubService) postToWebhook(invoice models.Invoice, url string) {
	payload := new(bytes.Buffer)
	err := json.NewEncoder(payload).Encode(invoice)
	if err != nil {
		svc.Logger.Error(err)
		return
	}

	resp, err := http.Post(url, "application/json", payload)
	if err != nil {
		svc.Logger.Error(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			svc.Logger.Error(err)
		}
		svc.Logger.Errorf("Webhook status code was %d, body: %s", resp.StatusCode, msg)
	}
}
