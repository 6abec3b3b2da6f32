package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solhub/solhub.go/lib/responses"
	"github.com/solhub/solhub.go/lib/service"
	"github.com/solhub/solhub.go/solana"
)

// TransactionWebhookController receives transaction notifications pushed by
// an RPC provider webhook.
type TransactionWebhookController struct {
	svc *service.SolhubService
}

func NewTransactionWebhookController(svc *service.SolhubService) *TransactionWebhookController {
	return &TransactionWebhookController{svc: svc}
}

// HandleTransactions ingests a webhook delivery. Providers batch events, so
// the body is either a JSON array of notifications or a single object.
// Processing errors return a 5xx so the provider retries the delivery;
// redeliveries are safe because state updates are idempotent.
func (controller *TransactionWebhookController) HandleTransactions(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	var notifications []solana.TransactionNotification
	if err := json.Unmarshal(body, &notifications); err != nil {
		var single solana.TransactionNotification
		if err := json.Unmarshal(body, &single); err != nil {
			c.Logger().Errorf("Invalid webhook payload: %v", err)
			return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
		}
		notifications = append(notifications, single)
	}

	for i := range notifications {
		if err := controller.svc.HandleTransactionNotification(c.Request().Context(), &notifications[i]); err != nil {
			c.Logger().Errorf("Failed to process transaction notification (signature %s): %v", notifications[i].Signature, err)
			return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
		}
	}

	return c.NoContent(http.StatusOK)
}
