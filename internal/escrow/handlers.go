package escrow

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/escrow-api/pkg/response"
)

// GinHandlers contains HTTP handlers for single-payment order endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderRequest is the body for creating a single-payment order. The
// buyer is the authenticated caller; attached funds must equal the amount.
type CreateOrderRequest struct {
	SellerAddress string `json:"seller_address" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	OrderID       string `json:"order_id" binding:"required"`
	AttachedFunds int64  `json:"attached_funds" binding:"required"`
}

// ConfirmRequest carries the unlock code presented by the buyer.
type ConfirmRequest struct {
	UnlockCode uint64 `json:"unlock_code" binding:"required"`
}

// CreateOrderHandler handles POST requests to open a new escrow order.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		if caller == "" {
			response.Unauthorized(c, "Missing caller address")
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		created, err := h.service.CreateOrder(caller, req.SellerAddress, req.Amount, req.OrderID, req.AttachedFunds)
		response.Handle(c, created, err)
	}
}

// ConfirmReceivedHandler handles POST requests that release funds to the
// seller against the unlock code.
func (h *GinHandlers) ConfirmReceivedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		orderID := c.Param("order_id")

		var req ConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.ConfirmReceived(orderID, req.UnlockCode, caller)
		response.Handle(c, order, err)
	}
}

// RefundHandler handles POST requests that cancel an order and return the
// held funds to the buyer.
func (h *GinHandlers) RefundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		orderID := c.Param("order_id")

		order, err := h.service.Refund(orderID, caller)
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET requests for a single order record.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrderByID(c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

// GetUnlockCodeHandler returns the release secret to the order's own buyer.
func (h *GinHandlers) GetUnlockCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")

		code, err := h.service.UnlockCode(c.Param("order_id"), caller)
		response.Handle(c, gin.H{"unlock_code": code}, err)
	}
}

// ListOrdersHandler handles GET requests listing orders by buyer or seller
// address.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if buyer := c.Query("buyer"); buyer != "" {
			orders, err := h.service.OrdersByBuyer(buyer)
			response.Handle(c, orders, err)
			return
		}
		if seller := c.Query("seller"); seller != "" {
			orders, err := h.service.OrdersBySeller(seller)
			response.Handle(c, orders, err)
			return
		}
		response.BadRequest(c, "buyer or seller query parameter is required")
	}
}

// OrderCountHandler returns how many orders were ever created.
func (h *GinHandlers) OrderCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.OrderCount()
		response.Handle(c, gin.H{"order_count": count}, err)
	}
}
