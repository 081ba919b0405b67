package moneybox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service, db := newTestService(t)
	escrowService := escrow.NewService(db, nil)
	handlers := NewGinHandlers(service, escrowService)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if addr := c.GetHeader("X-Caller-Address"); addr != "" {
			c.Set("address", addr)
		}
	})

	boxes := router.Group("/api/v1/moneyboxes")
	{
		boxes.POST("", handlers.CreateMoneyBoxHandler())
		boxes.GET("", handlers.ListMoneyBoxesHandler())
		boxes.GET("/:order_id", handlers.GetMoneyBoxHandler())
		boxes.GET("/:order_id/payments", handlers.GetPaymentsHandler())
		boxes.POST("/:order_id/payments", handlers.AddPaymentHandler())
		boxes.GET("/:order_id/amount-to-fill", handlers.GetAmountToFillHandler())
		boxes.POST("/:order_id/refund", handlers.RefundHandler())
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

func TestCreateMoneyBoxHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 300)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, CreateMoneyBoxRequest{
		SellerAddress: testSeller,
		Amount:        1000,
		OrderID:       "box-1",
		AttachedFunds: 300,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var resp struct {
		Data types.OrderCreated `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, types.StateCreated, resp.Data.Order.State)
	assert.NotZero(t, resp.Data.UnlockCode)
}

func TestCreateMoneyBoxHandlerZeroAttached(t *testing.T) {
	router, _ := newTestRouter(t)

	// attached_funds is optional; omitting it opens an unfunded box
	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, gin.H{
		"seller_address": testSeller,
		"amount":         1000,
		"order_id":       "box-1",
	})
	assert.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
}

func TestAddPaymentHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testFriend, 700)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, gin.H{
		"seller_address": testSeller,
		"amount":         1000,
		"order_id":       "box-1",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes/box-1/payments", testFriend, AddPaymentRequest{
		DeclaredAmount: 700,
		AttachedFunds:  700,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var resp struct {
		Data types.MoneyBox `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, int64(700), resp.Data.Collected)
	assert.Equal(t, int64(300), resp.Data.AmountToFill)
}

func TestAddPaymentHandlerOverfillConflictFree(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testFriend, 2000)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, gin.H{
		"seller_address": testSeller,
		"amount":         1000,
		"order_id":       "box-1",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	// Overfill is a validation failure, not a conflict
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes/box-1/payments", testFriend, AddPaymentRequest{
		DeclaredAmount: 1500,
		AttachedFunds:  1500,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetMoneyBoxHandlerNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/moneyboxes/missing", testBuyer, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAmountToFillHandler(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 250)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, CreateMoneyBoxRequest{
		SellerAddress: testSeller,
		Amount:        1000,
		OrderID:       "box-1",
		AttachedFunds: 250,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/moneyboxes/box-1/amount-to-fill", testBuyer, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Data struct {
			AmountToFill int64 `json:"amount_to_fill"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, int64(750), resp.Data.AmountToFill)
}

func TestListMoneyBoxesHandlerMerged(t *testing.T) {
	router, service := newTestRouter(t)
	escrowService := escrow.NewService(service.db, nil)
	fundAccount(t, service.db, testBuyer, 1000)

	// One plain order and one box for the same buyer
	_, err := escrowService.CreateOrder(testBuyer, testSeller, 1000, "plain-1", 1000)
	require.NoError(t, err)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, gin.H{
		"seller_address": testSeller,
		"amount":         500,
		"order_id":       "box-1",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/moneyboxes?buyer="+testBuyer+"&merged=true", testBuyer, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Data []types.IndexedOrder `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "box-1", resp.Data[0].ID)
	assert.Equal(t, "plain-1", resp.Data[1].ID)

	// Unmerged listing only carries the local boxes
	recorder = doRequest(t, router, http.MethodGet, "/api/v1/moneyboxes?buyer="+testBuyer, testBuyer, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestRefundHandlerItemized(t *testing.T) {
	router, service := newTestRouter(t)
	fundAccount(t, service.db, testBuyer, 300)
	fundAccount(t, service.db, testFriend, 700)

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes", testBuyer, CreateMoneyBoxRequest{
		SellerAddress: testSeller,
		Amount:        1000,
		OrderID:       "box-1",
		AttachedFunds: 300,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes/box-1/payments", testFriend, AddPaymentRequest{
		DeclaredAmount: 700,
		AttachedFunds:  700,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, "/api/v1/moneyboxes/box-1/refund", testBuyer, nil)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	assert.Equal(t, int64(300), balance(t, service.db, testBuyer))
	assert.Equal(t, int64(700), balance(t, service.db, testFriend))
}
