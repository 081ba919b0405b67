package custody

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/escrow-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// GinHandlers contains HTTP handlers for the operational custody endpoints.
// These sit behind internal auth: funding a ledger account is an operator
// action, not part of the public escrow surface.
type GinHandlers struct {
	db *gorm.DB
}

func NewGinHandlers(db *gorm.DB) *GinHandlers {
	return &GinHandlers{db: db}
}

// DepositRequest is the body for crediting a ledger account.
type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// DepositHandler credits funds to an account.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := NewLedger(h.db).Credit(address, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}

		log.Info().
			Str("address", address).
			Int64("amount", req.Amount).
			Str("service", "custody").
			Msg("account credited")

		balance, err := NewLedger(h.db).AccountBalance(address)
		response.Handle(c, gin.H{"address": address, "balance": balance}, err)
	}
}

// GetAccountHandler returns an account balance.
func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		balance, err := NewLedger(h.db).AccountBalance(address)
		response.Handle(c, gin.H{"address": address, "balance": balance}, err)
	}
}

// CustodyBalanceHandler returns the total funds held across all orders.
func (h *GinHandlers) CustodyBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		total, err := NewLedger(h.db).TotalHeld()
		response.Handle(c, gin.H{"total_held": total}, err)
	}
}
