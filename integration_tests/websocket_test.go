package integration_tests

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/solhub/solhub.go/common"
	"github.com/solhub/solhub.go/controllers"
	"github.com/solhub/solhub.go/lib/service"
)

type WebSocketTestSuite struct {
	TestSuite
	service         *service.SolhubService
	solana          *mockSolanaClient
	websocketServer *httptest.Server
}

type WsHandler struct {
	handler echo.HandlerFunc
}

func (h *WsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e := echo.New()
	c := e.NewContext(r, w)
	// the route param is carried in the query string by the test dialer
	c.SetParamNames("id")
	c.SetParamValues(r.URL.Query().Get("id"))

	err := h.handler(c)
	if err != nil {
		_, _ = w.Write([]byte(err.Error()))
	}
}

func (suite *WebSocketTestSuite) SetupSuite() {
	suite.solana = newMockSolanaClient()
	svc, err := SolhubTestServiceInit(suite.solana)
	if err != nil {
		log.Fatalf("Error initializing test service: %v", err)
	}
	suite.service = svc
	suite.echo = newTestEcho()
	suite.echo.POST("/v1/invoices", controllers.NewInvoiceController(svc).AddInvoice)

	//websocket server
	h := WsHandler{handler: controllers.NewInvoiceStreamController(svc).StreamInvoiceWS}
	suite.websocketServer = httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
}

func (suite *WebSocketTestSuite) TearDownSuite() {
	suite.websocketServer.Close()
}

func (suite *WebSocketTestSuite) TearDownTest() {
	assert.NoError(suite.T(), clearTable(suite.service, "invoices"))
}

func (suite *WebSocketTestSuite) dialInvoice(invoiceID string) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(suite.websocketServer.URL, "http") + "?id=" + invoiceID
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(suite.T(), err, err)
	return ws
}

func readInvoiceEvent(t assert.TestingT, ws *websocket.Conn) *controllers.InvoiceEventWrapper {
	event := &controllers.InvoiceEventWrapper{}
	assert.NoError(t, ws.ReadJSON(event))
	return event
}

func (suite *WebSocketTestSuite) TestWebSocketPushesSnapshotThenPaid() {
	amount := mustDecimal("20.5")
	created := suite.createInvoiceReq(&controllers.AddInvoiceRequestBody{AmountUSD: &amount})

	ws := suite.dialInvoice(created.ID)
	defer ws.Close()

	// the current state arrives without waiting for a transition
	snapshot := readInvoiceEvent(suite.T(), ws)
	assert.Equal(suite.T(), "invoice", snapshot.Type)
	assert.Equal(suite.T(), created.ID, snapshot.Invoice.ID)
	assert.Equal(suite.T(), common.InvoiceStatePending, snapshot.Invoice.Status)

	// give the subscription a moment to register before publishing
	time.Sleep(100 * time.Millisecond)
	_, changed, err := suite.service.UpdateInvoiceState(context.Background(), created.ID, service.StateChange{
		NewState:    common.InvoiceStatePaid,
		Payer:       testPayerWallet,
		TxSignature: "sig-ws",
		BlockTime:   time.Now().Unix(),
	})
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), changed)

	update := readInvoiceEvent(suite.T(), ws)
	assert.Equal(suite.T(), "invoice", update.Type)
	assert.Equal(suite.T(), common.InvoiceStatePaid, update.Invoice.Status)
	assert.Equal(suite.T(), "sig-ws", update.Invoice.PaidTxSig)

	// paid is terminal, the server closes the connection
	assert.Error(suite.T(), ws.ReadJSON(&controllers.InvoiceEventWrapper{}))
}

func (suite *WebSocketTestSuite) TestWebSocketSettledInvoiceClosesAfterSnapshot() {
	created := suite.createInvoiceReq(&controllers.AddInvoiceRequestBody{})
	_, _, err := suite.service.UpdateInvoiceState(context.Background(), created.ID, service.StateChange{
		NewState: common.InvoiceStateDeclined,
	})
	assert.NoError(suite.T(), err)

	ws := suite.dialInvoice(created.ID)
	defer ws.Close()

	snapshot := readInvoiceEvent(suite.T(), ws)
	assert.Equal(suite.T(), common.InvoiceStateDeclined, snapshot.Invoice.Status)

	assert.Error(suite.T(), ws.ReadJSON(&controllers.InvoiceEventWrapper{}))
}

func (suite *WebSocketTestSuite) TestWebSocketClosesAtHardCeiling() {
	original := suite.service.Config.StreamTimeoutSeconds
	suite.service.Config.StreamTimeoutSeconds = 1
	defer func() { suite.service.Config.StreamTimeoutSeconds = original }()

	created := suite.createInvoiceReq(&controllers.AddInvoiceRequestBody{})
	ws := suite.dialInvoice(created.ID)
	defer ws.Close()

	snapshot := readInvoiceEvent(suite.T(), ws)
	assert.Equal(suite.T(), common.InvoiceStatePending, snapshot.Invoice.Status)

	// the invoice never transitions, the server closes at the ceiling
	start := time.Now()
	assert.Error(suite.T(), ws.ReadJSON(&controllers.InvoiceEventWrapper{}))
	assert.Less(suite.T(), time.Since(start), 5*time.Second)
}

func (suite *WebSocketTestSuite) TestWebSocketUnknownInvoice() {
	wsURL := "ws" + strings.TrimPrefix(suite.websocketServer.URL, "http") + "?id=unknown-id"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Error(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, res.StatusCode)
}

func TestWebSocketSuite(t *testing.T) {
	suite.Run(t, new(WebSocketTestSuite))
}
