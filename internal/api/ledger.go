package api

import (
	"fmt"      // Error wrapping
	"net/http" // HTTP status codes

	"fund_ledger/internal/domain" // Sentinel errors
	"fund_ledger/internal/ledger" // Crediting engine

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// maxCreditBatch bounds the number of payments credited per request
const maxCreditBatch = 500

// CreditRequest lists the payments to credit
type CreditRequest struct {
	PaymentIDs []uint `json:"payment_ids" binding:"required"` // Payments in processing order
}

// CreditPaymentsHandler credits fund accounts from a batch of completed payments
func CreditPaymentsHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()))
			return
		}
		if len(req.PaymentIDs) == 0 || len(req.PaymentIDs) > maxCreditBatch {
			respondError(c, fmt.Errorf("%w: between 1 and %d payment ids are required", domain.ErrValidation, maxCreditBatch))
			return
		}
		res, err := engine.CreditFromPayments(c.Request.Context(), req.PaymentIDs, actor(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if len(res.CreditedAccounts) > 0 {
			invalidateFunds(c.Request.Context(), rdb)
		}
		c.JSON(http.StatusOK, res)
	}
}
