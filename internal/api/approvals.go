package api

import (
	"net/http" // HTTP status codes

	"fund_ledger/internal/approval" // Alternate approval channel

	"github.com/gin-gonic/gin" // Gin web framework
)

// IssueCodeHandler sends the calling approver a one-time approval code
func IssueCodeHandler(channel *approval.CodeChannel) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := channel.IssueCode(c.Request.Context(), actor(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "Approval code sent"})
	}
}
