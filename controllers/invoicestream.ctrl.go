package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/solhub/solhub.go/db/models"
	"github.com/solhub/solhub.go/lib/responses"
	"github.com/solhub/solhub.go/lib/service"
)

// InvoiceStreamController pushes invoice state changes to live clients.
type InvoiceStreamController struct {
	svc *service.SolhubService
}

func NewInvoiceStreamController(svc *service.SolhubService) *InvoiceStreamController {
	return &InvoiceStreamController{svc: svc}
}

type InvoiceEventWrapper struct {
	Type    string   `json:"type"`
	Invoice *Invoice `json:"invoice,omitempty"`
}

// StreamInvoice streams status updates for one invoice as server-sent
// events. The current snapshot is pushed immediately, every subsequent push
// re-reads the store so a partial or stale event payload is never trusted.
// The stream closes on terminal state, client disconnect or the hard
// ceiling timeout, whichever comes first.
func (controller *InvoiceStreamController) StreamInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	invoice, err := controller.svc.FindInvoice(ctx, c.Param("id"))
	if err != nil {
		if err == service.ErrInvoiceNotFound {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	if invoice.IsTerminal() {
		return writeInvoiceEvent(res, invoice)
	}

	// subscribe before the snapshot so a transition in between is not missed,
	// with a small buffer so a publisher is not blocked on a closing stream
	invoiceChan := make(chan models.Invoice, 4)
	subId, err := controller.svc.InvoicePubSub.Subscribe(invoice.ID, invoiceChan)
	if err != nil {
		return err
	}
	defer controller.svc.InvoicePubSub.Unsubscribe(subId, invoice.ID)

	// a subscriber never waits for the next event to learn the current state
	invoice, err = controller.svc.FindInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if err := writeInvoiceEvent(res, invoice); err != nil {
		return err
	}
	if invoice.IsTerminal() {
		return nil
	}

	// hard ceiling, independent of the invoice's own expiry
	timeout := time.NewTimer(controller.svc.Config.StreamTimeout())
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			// client disconnect
			return nil
		case <-timeout.C:
			return nil
		case _, ok := <-invoiceChan:
			if !ok {
				return nil
			}
			fresh, err := controller.svc.FindInvoice(ctx, invoice.ID)
			if err != nil {
				controller.svc.Logger.Error(err)
				continue
			}
			if err := writeInvoiceEvent(res, fresh); err != nil {
				return nil
			}
			if fresh.IsTerminal() {
				return nil
			}
		}
	}
}

func writeInvoiceEvent(res *echo.Response, invoice *models.Invoice) error {
	payload, err := json.Marshal(newInvoiceResponse(invoice))
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// StreamInvoiceWS is the websocket variant of StreamInvoice.
func (controller *InvoiceStreamController) StreamInvoiceWS(c echo.Context) error {
	invoice, err := controller.svc.FindInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		if err == service.ErrInvoiceNotFound {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		return err
	}

	invoiceChan := make(chan models.Invoice, 4)
	subId, err := controller.svc.InvoicePubSub.Subscribe(invoice.ID, invoiceChan)
	if err != nil {
		return err
	}
	defer controller.svc.InvoicePubSub.Unsubscribe(subId, invoice.ID)

	upgrader := websocket.Upgrader{}
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	//start listening for close messages
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, _, err := ws.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	// re-read now that the subscription exists, a transition since the
	// first lookup would otherwise be missed
	invoice, err = controller.svc.FindInvoice(c.Request().Context(), invoice.ID)
	if err != nil {
		controller.svc.Logger.Error(err)
		return nil
	}
	err = ws.WriteJSON(&InvoiceEventWrapper{Type: "invoice", Invoice: newInvoiceResponse(invoice)})
	if err != nil {
		controller.svc.Logger.Error(err)
		return nil
	}
	if invoice.IsTerminal() {
		return nil
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	timeout := time.NewTimer(controller.svc.Config.StreamTimeout())
	defer timeout.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-timeout.C:
			return nil
		case <-ticker.C:
			if err := ws.WriteJSON(&InvoiceEventWrapper{Type: "keepalive"}); err != nil {
				controller.svc.Logger.Error(err)
				return nil
			}
		case _, ok := <-invoiceChan:
			if !ok {
				return nil
			}
			fresh, err := controller.svc.FindInvoice(c.Request().Context(), invoice.ID)
			if err != nil {
				controller.svc.Logger.Error(err)
				continue
			}
			err = ws.WriteJSON(&InvoiceEventWrapper{Type: "invoice", Invoice: newInvoiceResponse(fresh)})
			if err != nil {
				controller.svc.Logger.Error(err)
				return nil
			}
			if fresh.IsTerminal() {
				return nil
			}
		}
	}
}
