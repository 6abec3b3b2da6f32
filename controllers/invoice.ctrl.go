package controllers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/solhub/solhub.go/db/models"
	"github.com/solhub/solhub.go/lib/responses"
	"github.com/solhub/solhub.go/lib/service"
	"github.com/solhub/solhub.go/payreq"
)

// InvoiceController : Invoice controller struct
type InvoiceController struct {
	svc *service.SolhubService
}

func NewInvoiceController(svc *service.SolhubService) *InvoiceController {
	return &InvoiceController{svc: svc}
}

type Invoice struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	Recipient     string           `json:"recipient"`
	Reference     string           `json:"reference"`
	AmountUSD     *decimal.Decimal `json:"amount_usd"`
	PaidAmountUSD *decimal.Decimal `json:"paid_amount_usd,omitempty"`
	Payer         string           `json:"payer,omitempty"`
	PaidTxSig     string           `json:"paid_tx_sig,omitempty"`
	NeedsReview   bool             `json:"needs_review,omitempty"`
	CreatedAt     int64            `json:"created_at"`
	ExpiresAt     int64            `json:"expires_at"`
	PaidAt        int64            `json:"paid_at,omitempty"`
}

func newInvoiceResponse(invoice *models.Invoice) *Invoice {
	response := &Invoice{
		ID:          invoice.ID,
		Status:      invoice.State,
		Recipient:   invoice.Recipient,
		Reference:   invoice.Reference,
		Payer:       invoice.Payer,
		PaidTxSig:   invoice.PaidTxSig,
		NeedsReview: invoice.NeedsReview,
		CreatedAt:   invoice.CreatedAt.Unix(),
		ExpiresAt:   invoice.ExpiresAt.Unix(),
	}
	if invoice.AmountUSD.Valid {
		response.AmountUSD = &invoice.AmountUSD.Decimal
	}
	if invoice.PaidAmountUSD.Valid {
		response.PaidAmountUSD = &invoice.PaidAmountUSD.Decimal
	}
	if !invoice.PaidAt.IsZero() {
		response.PaidAt = invoice.PaidAt.Time.Unix()
	}
	return response
}

type AddInvoiceRequestBody struct {
	Recipient string           `json:"recipient"`
	Reference string           `json:"reference"`
	AmountUSD *decimal.Decimal `json:"amount_usd"`
	Label     string           `json:"label"`
	Message   string           `json:"message"`
}

type AddInvoiceResponseBody struct {
	Invoice
	PaymentRequest string `json:"payment_request"`
}

// AddInvoice creates a pending invoice and returns its payment request URI.
// An omitted amount means the customer enters the amount in their wallet.
func (controller *InvoiceController) AddInvoice(c echo.Context) error {
	var body AddInvoiceRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load addinvoice request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid addinvoice request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, paymentRequest, err := controller.svc.CreateInvoice(c.Request().Context(), body.Recipient, body.Reference, body.AmountUSD, body.Label, body.Message)
	if err != nil {
		if err == service.ErrInvalidParameters {
			return c.JSON(http.StatusBadRequest, responses.InvalidParametersError)
		}
		c.Logger().Errorf("Error creating invoice: %v", err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}
	c.Logger().Infof("Created invoice invoice_id:%s reference:%s", invoice.ID, invoice.Reference)

	return c.JSON(http.StatusOK, &AddInvoiceResponseBody{
		Invoice:        *newInvoiceResponse(invoice),
		PaymentRequest: paymentRequest,
	})
}

// GetInvoice returns the invoice snapshot. For a pending invoice past its
// window this is also where the expiry transition is applied, after one
// bounded verification poll so a late payment is not orphaned.
func (controller *InvoiceController) GetInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	invoice, err := controller.svc.FindInvoice(ctx, c.Param("id"))
	if err != nil {
		if err == service.ErrInvoiceNotFound {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		return err
	}

	invoice, err = controller.svc.RefreshInvoiceStatus(ctx, invoice)
	if err != nil {
		// a transient verification error must never surface as a payment state
		c.Logger().Errorf("Error refreshing invoice status invoice_id:%s: %v", invoice.ID, err)
	}

	return c.JSON(http.StatusOK, newInvoiceResponse(invoice))
}

type PaymentRequestResponseBody struct {
	ID             string `json:"id"`
	PaymentRequest string `json:"payment_request"`
}

// GetPaymentRequest re-derives the immutable payment request URI for an
// invoice. Safe to cache.
func (controller *InvoiceController) GetPaymentRequest(c echo.Context) error {
	invoice, err := controller.svc.FindInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		if err == service.ErrInvoiceNotFound {
			return c.JSON(http.StatusNotFound, responses.NotFoundError)
		}
		return err
	}

	var amount *decimal.Decimal
	if invoice.AmountUSD.Valid {
		amount = &invoice.AmountUSD.Decimal
	}
	uri, err := payreq.Encode(payreq.Params{
		Recipient: invoice.Recipient,
		Token:     controller.svc.Config.Mint(),
		Amount:    amount,
		Reference: invoice.Reference,
		Label:     invoice.Label,
		Message:   invoice.Message,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &PaymentRequestResponseBody{
		ID:             invoice.ID,
		PaymentRequest: uri,
	})
}
