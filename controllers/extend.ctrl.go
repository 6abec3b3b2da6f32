package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solhub/solhub.go/lib/responses"
	"github.com/solhub/solhub.go/lib/service"
)

type ExtendInvoiceController struct {
	svc *service.SolhubService
}

func NewExtendInvoiceController(svc *service.SolhubService) *ExtendInvoiceController {
	return &ExtendInvoiceController{svc: svc}
}

type ExtendInvoiceResponseBody struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ExpiresAt int64  `json:"expires_at"`
}

// Extend pushes the expiry of a pending invoice forward by one extension
// window. Fails for terminal invoices, a lapsed invoice is not resurrected.
func (controller *ExtendInvoiceController) Extend(c echo.Context) error {
	invoice, err := controller.svc.ExtendInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch err {
		case service.ErrInvoiceNotFound:
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		case service.ErrInvalidState:
			return c.JSON(http.StatusBadRequest, responses.InvalidStateError)
		}
		return err
	}

	return c.JSON(http.StatusOK, &ExtendInvoiceResponseBody{
		ID:        invoice.ID,
		Status:    invoice.State,
		ExpiresAt: invoice.ExpiresAt.Unix(),
	})
}
