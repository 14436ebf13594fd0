package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // Audit target ids
	"time"     // Cache TTL

	"fund_ledger/internal/audit"  // Audit trail
	"fund_ledger/internal/domain" // Domain models
	"fund_ledger/internal/fund"   // Fund registry
	"fund_ledger/internal/utils"  // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

const (
	fundsCachePrefix = "funds:"                    // Every cached fund listing lives under this prefix
	fundsCacheKey    = fundsCachePrefix + "active" // Grouped active accounts
	fundsCacheTTL    = 60 * time.Second
)

// invalidateFunds drops cached fund listings after balances or flags change
func invalidateFunds(ctx context.Context, rdb *redis.Client) {
	if rdb == nil {
		return
	}
	if err := utils.DeleteCachePrefix(context.WithoutCancel(ctx), rdb, fundsCachePrefix); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate fund cache")
	}
}

// ListFundsHandler returns active fund accounts grouped by fund type
func ListFundsHandler(registry *fund.Registry, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var cached map[domain.FundType][]domain.FundAccount
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, fundsCacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"funds": cached, "cached": true})
			return
		}
		grouped, err := registry.ListActive(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, fundsCacheKey, grouped, fundsCacheTTL)
		c.JSON(http.StatusOK, gin.H{"funds": grouped, "cached": false})
	}
}

// DeactivateFundHandler hides a fund account from listings and new withdrawals
func DeactivateFundHandler(registry *fund.Registry, recorder audit.Recorder, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		acct, err := registry.Deactivate(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		acct.Active = false
		logrus.WithFields(logrus.Fields{
			"fund_account_id": acct.ID,  // Account
			"admin_id":        actor(c), // Acting admin
		}).Info("Fund account deactivated")
		recorder.Record(c.Request.Context(), domain.AuditEntry{
			ActionType:  domain.ActionFundDeactivate,
			TargetID:    strconv.FormatUint(uint64(acct.ID), 10),
			InitiatedBy: actor(c),
			Payload:     map[string]any{"fund_account_id": acct.ID},
			Status:      domain.AuditSuccess,
		})
		invalidateFunds(c.Request.Context(), rdb)
		c.JSON(http.StatusOK, acct)
	}
}
