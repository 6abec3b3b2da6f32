package transport

import (
	"github.com/labstack/echo/v4"

	"github.com/solhub/solhub.go/controllers"
	"github.com/solhub/solhub.go/lib/service"
)

func RegisterEndpoints(svc *service.SolhubService, e *echo.Echo, strictRateLimitMiddleware echo.MiddlewareFunc, adminMw echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	invoiceCtrl := controllers.NewInvoiceController(svc)
	streamCtrl := controllers.NewInvoiceStreamController(svc)

	// Invoice creation is the abuse-prone endpoint, keep it behind the strict limiter
	e.POST("/v1/invoices", invoiceCtrl.AddInvoice, strictRateLimitMiddleware, logMw)
	e.GET("/v1/invoices/:id", invoiceCtrl.GetInvoice, logMw)
	// The payment request never changes for the lifetime of an invoice
	e.GET("/v1/invoices/:id/payreq", invoiceCtrl.GetPaymentRequest, CreateCacheClient().Middleware(), logMw)

	e.GET("/v1/invoices/:id/stream", streamCtrl.StreamInvoice, logMw)
	e.GET("/v1/invoices/:id/ws", streamCtrl.StreamInvoiceWS)

	// Operator endpoints require the admin token when one is configured
	e.POST("/v1/invoices/:id/extend", controllers.NewExtendInvoiceController(svc).Extend, adminMw, logMw)
	e.POST("/v1/invoices/:id/decline", controllers.NewDeclineInvoiceController(svc).Decline, adminMw, logMw)

	// Provider-facing transaction webhook
	e.POST("/webhook/transactions", controllers.NewTransactionWebhookController(svc).HandleTransactions, logMw)
}
