package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solhub/solhub.go/lib/responses"
	"github.com/solhub/solhub.go/lib/service"
)

// DeclineInvoiceController handles the operator-triggered decline
// transition. Decline is never applied automatically.
type DeclineInvoiceController struct {
	svc *service.SolhubService
}

func NewDeclineInvoiceController(svc *service.SolhubService) *DeclineInvoiceController {
	return &DeclineInvoiceController{svc: svc}
}

func (controller *DeclineInvoiceController) Decline(c echo.Context) error {
	invoice, err := controller.svc.DeclineInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch err {
		case service.ErrInvoiceNotFound:
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		case service.ErrInvalidState:
			return c.JSON(http.StatusBadRequest, responses.InvalidStateError)
		}
		return err
	}

	c.Logger().Infof("Invoice declined by operator invoice_id:%s", invoice.ID)
	return c.JSON(http.StatusOK, newInvoiceResponse(invoice))
}
