package api

import (
	"fmt"      // Error wrapping
	"net/http" // HTTP status codes
	"strconv"  // Query parsing

	"fund_ledger/internal/domain"     // Domain models
	"fund_ledger/internal/withdrawal" // Withdrawal workflow

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money
)

// CreateWithdrawalRequest opens a withdrawal
type CreateWithdrawalRequest struct {
	FundAccountID  uint                  `json:"fund_account_id" binding:"required"` // Account to debit
	Amount         decimal.Decimal       `json:"amount"`                             // Requested amount
	Purpose        string                `json:"purpose" binding:"required"`         // Why
	Note           string                `json:"note"`                               // Optional note
	TransferMethod domain.TransferMethod `json:"transfer_method" binding:"required"` // bank, mobile-money or cash
	Destination    string                `json:"destination"`                        // Account number or phone
}

// ApproveWithdrawalRequest carries the approver's credential
type ApproveWithdrawalRequest struct {
	Credential string                `json:"credential" binding:"required"` // Shared secret or one-time code
	Method     domain.ApprovalMethod `json:"method"`                        // Defaults to shared-secret
	Comment    string                `json:"comment"`                       // Optional comment
}

// RejectWithdrawalRequest carries the rejection reason
type RejectWithdrawalRequest struct {
	Reason string `json:"reason"` // Required, checked by the engine
}

// CreateWithdrawalHandler opens a PENDING withdrawal requested by the caller
func CreateWithdrawalHandler(engine *withdrawal.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWithdrawalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()))
			return
		}
		w, err := engine.Create(c.Request.Context(), withdrawal.CreateInput{
			FundAccountID: req.FundAccountID,
			Amount:        req.Amount,
			Purpose:       req.Purpose,
			Note:          req.Note,
			Method:        req.TransferMethod,
			Destination:   req.Destination,
			RequestedBy:   actor(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, w)
	}
}

// ListWithdrawalsHandler pages through withdrawals, newest first
func ListWithdrawalsHandler(engine *withdrawal.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := 1      // Default page number
		pageSize := 20 // Default page size
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		if ps := c.Query("page_size"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v // Capped by the engine
			}
		}
		filter := withdrawal.Filter{Status: domain.WithdrawalStatus(c.Query("status"))}
		if raw := c.Query("fund_account_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				respondError(c, fmt.Errorf("%w: invalid fund_account_id", domain.ErrValidation))
				return
			}
			filter.FundAccountID = uint(id)
		}
		result, err := engine.List(c.Request.Context(), filter, page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// GetWithdrawalHandler returns one withdrawal with its approvals
func GetWithdrawalHandler(engine *withdrawal.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		w, err := engine.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		approvals, err := engine.Approvals(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"withdrawal": w, "approvals": approvals})
	}
}

// ApproveWithdrawalHandler records the caller's approval
func ApproveWithdrawalHandler(engine *withdrawal.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req ApproveWithdrawalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()))
			return
		}
		if req.Method == "" {
			req.Method = domain.ApprovalSharedSecret
		}
		res, err := engine.Approve(c.Request.Context(), withdrawal.ApproveInput{
			RequestID:  id,
			ApproverID: actor(c),
			Credential: req.Credential,
			Method:     req.Method,
			Comment:    req.Comment,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if res.Completed {
			invalidateFunds(c.Request.Context(), rdb) // Balance changed
		}
		c.JSON(http.StatusOK, res)
	}
}

// RejectWithdrawalHandler closes a PENDING withdrawal without moving money
func RejectWithdrawalHandler(engine *withdrawal.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req RejectWithdrawalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()))
			return
		}
		w, err := engine.Reject(c.Request.Context(), id, actor(c), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}
