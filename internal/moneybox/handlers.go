package moneybox

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/pkg/response"
)

// GinHandlers contains HTTP handlers for money box endpoints. The sibling
// ledger backs the merged buyer/seller listings.
type GinHandlers struct {
	service *Service
	sibling SiblingLedger
}

func NewGinHandlers(service *Service, sibling SiblingLedger) *GinHandlers {
	return &GinHandlers{
		service: service,
		sibling: sibling,
	}
}

// CreateMoneyBoxRequest is the body for opening a pooled order. Attached
// funds may be zero or any value up to the amount.
type CreateMoneyBoxRequest struct {
	SellerAddress string `json:"seller_address" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	OrderID       string `json:"order_id" binding:"required"`
	AttachedFunds int64  `json:"attached_funds"`
}

// AddPaymentRequest is the body for one contribution toward a box.
type AddPaymentRequest struct {
	DeclaredAmount int64 `json:"declared_amount" binding:"required"`
	AttachedFunds  int64 `json:"attached_funds" binding:"required"`
}

// CreateMoneyBoxHandler handles POST requests to open a new money box.
func (h *GinHandlers) CreateMoneyBoxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		if caller == "" {
			response.Unauthorized(c, "Missing caller address")
			return
		}

		var req CreateMoneyBoxRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		created, err := h.service.CreateMoneyBox(caller, req.SellerAddress, req.Amount, req.OrderID, req.AttachedFunds)
		response.Handle(c, created, err)
	}
}

// AddPaymentHandler handles POST requests that contribute funds to a box.
func (h *GinHandlers) AddPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		orderID := c.Param("order_id")

		var req AddPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		box, err := h.service.AddPayment(orderID, req.DeclaredAmount, req.AttachedFunds, caller)
		response.Handle(c, box, err)
	}
}

// ConfirmReceivedHandler releases the collected funds to the seller.
func (h *GinHandlers) ConfirmReceivedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		orderID := c.Param("order_id")

		var req escrow.ConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.ConfirmReceived(orderID, req.UnlockCode, caller)
		response.Handle(c, order, err)
	}
}

// RefundHandler cancels a box and returns every payment to its contributor.
func (h *GinHandlers) RefundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")
		orderID := c.Param("order_id")

		order, err := h.service.Refund(orderID, caller)
		response.Handle(c, order, err)
	}
}

// GetMoneyBoxHandler handles GET requests for one box with its payments.
func (h *GinHandlers) GetMoneyBoxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		box, err := h.service.GetMoneyBoxByID(c.Param("order_id"))
		response.Handle(c, box, err)
	}
}

// GetPaymentsHandler returns a box's payment history.
func (h *GinHandlers) GetPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := h.service.Payments(c.Param("order_id"))
		response.Handle(c, payments, err)
	}
}

// GetAmountToFillHandler returns how much funding a box still needs.
func (h *GinHandlers) GetAmountToFillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		toFill, err := h.service.AmountToFill(c.Param("order_id"))
		response.Handle(c, gin.H{"amount_to_fill": toFill}, err)
	}
}

// GetUnlockCodeHandler returns the release secret to the box's own buyer.
func (h *GinHandlers) GetUnlockCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("address")

		code, err := h.service.UnlockCode(c.Param("order_id"), caller)
		response.Handle(c, gin.H{"unlock_code": code}, err)
	}
}

// ListMoneyBoxesHandler lists boxes by participant, buyer, or seller. With
// merged=true the buyer/seller listings include the sibling ledger's orders
// after the local ones.
func (h *GinHandlers) ListMoneyBoxesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if participant := c.Query("participant"); participant != "" {
			boxes, err := h.service.MoneyBoxesByParticipant(participant)
			response.Handle(c, boxes, err)
			return
		}

		merged := c.Query("merged") == "true"
		if buyer := c.Query("buyer"); buyer != "" {
			if merged {
				orders, err := h.service.AllBuyerOrders(h.sibling, buyer)
				response.Handle(c, orders, err)
				return
			}
			orders, err := h.service.OrdersByBuyer(buyer)
			response.Handle(c, orders, err)
			return
		}
		if seller := c.Query("seller"); seller != "" {
			if merged {
				orders, err := h.service.AllSellerOrders(h.sibling, seller)
				response.Handle(c, orders, err)
				return
			}
			orders, err := h.service.OrdersBySeller(seller)
			response.Handle(c, orders, err)
			return
		}

		response.BadRequest(c, "participant, buyer or seller query parameter is required")
	}
}

// MoneyBoxCountHandler returns how many boxes were ever created.
func (h *GinHandlers) MoneyBoxCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.MoneyBoxCount()
		response.Handle(c, gin.H{"moneybox_count": count}, err)
	}
}
