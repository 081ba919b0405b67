package escrow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service, _ := newTestService(t)
	handlers := NewGinHandlers(service)

	router := gin.New()
	// Stand-in for the JWT middleware: the caller address comes straight
	// from a header
	router.Use(func(c *gin.Context) {
		if addr := c.GetHeader("X-Caller-Address"); addr != "" {
			c.Set("address", addr)
		}
	})

	orders := router.Group("/api/v1/orders")
	{
		orders.POST("", handlers.CreateOrderHandler())
		orders.GET("", handlers.ListOrdersHandler())
		orders.GET("/:order_id", handlers.GetOrderHandler())
		orders.GET("/:order_id/unlock-code", handlers.GetUnlockCodeHandler())
		orders.POST("/:order_id/confirm", handlers.ConfirmReceivedHandler())
		orders.POST("/:order_id/refund", handlers.RefundHandler())
	}
	return router, service
}

func doRequest(t *testing.T, router *gin.Engine, method, url, caller string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-Address", caller)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func createOrderViaAPI(t *testing.T, router *gin.Engine, orderID string, amount int64) uint64 {
	t.Helper()

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/orders", testBuyer, CreateOrderRequest{
		SellerAddress: testSeller,
		Amount:        amount,
		OrderID:       orderID,
		AttachedFunds: amount,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var resp struct {
		Data types.OrderCreated `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotZero(t, resp.Data.UnlockCode)
	return resp.Data.UnlockCode
}

func TestCreateOrderHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 1000)

	code := createOrderViaAPI(t, router, "order-1", 1000)
	assert.NotZero(t, code)

	// The stored record is FILLED and does not leak the code via GET
	recorder := doRequest(t, router, http.MethodGet, "/api/v1/orders/order-1", testBuyer, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Data types.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, types.StateFilled, resp.Data.State)
	assert.NotContains(t, recorder.Body.String(), fmt.Sprint(code))
}

func TestCreateOrderHandlerRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/orders", "", CreateOrderRequest{
		SellerAddress: testSeller,
		Amount:        1000,
		OrderID:       "order-1",
		AttachedFunds: 1000,
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCreateOrderHandlerValidation(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 1000)

	// Missing required fields
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/orders", testBuyer, gin.H{"order_id": "order-1"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Self-dealing maps to a validation failure
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/orders", testBuyer, CreateOrderRequest{
		SellerAddress: testBuyer,
		Amount:        1000,
		OrderID:       "order-1",
		AttachedFunds: 1000,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateOrderHandlerStatusCodes(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 1000)

	createOrderViaAPI(t, router, "order-1", 1000)

	// Duplicate id is a conflict
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/orders", testBuyer, CreateOrderRequest{
		SellerAddress: testSeller,
		Amount:        1000,
		OrderID:       "order-1",
		AttachedFunds: 1000,
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Unfunded buyer gets a payment-required response
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/orders", "0xpoor", CreateOrderRequest{
		SellerAddress: testSeller,
		Amount:        1000,
		OrderID:       "order-2",
		AttachedFunds: 1000,
	})
	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)
}

func TestConfirmHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 1000)

	code := createOrderViaAPI(t, router, "order-1", 1000)

	// Wrong code is forbidden
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/orders/order-1/confirm", testBuyer, ConfirmRequest{UnlockCode: code + 1})
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	// Right code from the buyer closes the order
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/orders/order-1/confirm", testBuyer, ConfirmRequest{UnlockCode: code})
	assert.Equal(t, http.StatusCreated, recorder.Code)

	// Confirming again hits the terminal state
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/orders/order-1/confirm", testBuyer, ConfirmRequest{UnlockCode: code})
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestRefundHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 1000)

	createOrderViaAPI(t, router, "order-1", 1000)

	// A stranger cannot refund
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/orders/order-1/refund", "0xstranger", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, "/api/v1/orders/order-1/refund", testBuyer, nil)
	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, int64(1000), balance(t, service.db, testBuyer))
}

func TestGetOrderHandlerNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/orders/missing", testBuyer, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUnlockCodeHandlerGatedToBuyer(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 1000)

	code := createOrderViaAPI(t, router, "order-1", 1000)

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/orders/order-1/unlock-code", testBuyer, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Data struct {
			UnlockCode uint64 `json:"unlock_code"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, code, resp.Data.UnlockCode)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/orders/order-1/unlock-code", testSeller, nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestListOrdersHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 2000)

	createOrderViaAPI(t, router, "order-1", 1000)
	createOrderViaAPI(t, router, "order-2", 1000)

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/orders?buyer="+testBuyer, testBuyer, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Data []types.IndexedOrder `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "order-2", resp.Data[0].ID)

	// Neither filter is a bad request
	recorder = doRequest(t, router, http.MethodGet, "/api/v1/orders", testBuyer, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
