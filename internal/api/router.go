package api

import (
	"fund_ledger/internal/approval"   // Alternate approval channel
	"fund_ledger/internal/audit"      // Audit trail
	"fund_ledger/internal/fund"       // Fund registry
	"fund_ledger/internal/ledger"     // Crediting engine
	"fund_ledger/internal/middleware" // JWT and role checks
	"fund_ledger/internal/utils"      // Roles
	"fund_ledger/internal/withdrawal" // Withdrawal workflow

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// Services bundles everything the handlers need
type Services struct {
	Registry    *fund.Registry
	Ledger      *ledger.Engine
	Withdrawals *withdrawal.Engine
	Codes       *approval.CodeChannel
	Audit       audit.Recorder
	Redis       *redis.Client
}

// NewRouter registers every route on r behind JWT authentication
func NewRouter(r *gin.Engine, s Services, jwtSecret string) {
	authed := r.Group("/")
	authed.Use(middleware.JWTAuthMiddleware(jwtSecret))

	// Ledger routes
	authed.POST("/ledger/credits",
		middleware.RequireRole(utils.RoleSystem, utils.RoleTreasurer),
		CreditPaymentsHandler(s.Ledger, s.Redis))

	// Fund routes
	authed.GET("/funds", ListFundsHandler(s.Registry, s.Redis))
	authed.POST("/funds/:id/deactivate",
		middleware.RequireRole(utils.RoleAdmin),
		DeactivateFundHandler(s.Registry, s.Audit, s.Redis))

	// Withdrawal routes
	authed.POST("/withdrawals",
		middleware.RequireRole(utils.RoleTreasurer, utils.RoleAdmin),
		CreateWithdrawalHandler(s.Withdrawals))
	authed.GET("/withdrawals", ListWithdrawalsHandler(s.Withdrawals))
	authed.GET("/withdrawals/:id", GetWithdrawalHandler(s.Withdrawals))
	approvers := authed.Group("/", middleware.RequireRole(utils.RoleApprover, utils.RoleAdmin))
	approvers.POST("/withdrawals/:id/approve", ApproveWithdrawalHandler(s.Withdrawals, s.Redis))
	approvers.POST("/withdrawals/:id/reject", RejectWithdrawalHandler(s.Withdrawals))
	approvers.POST("/approvals/codes", IssueCodeHandler(s.Codes))
}
