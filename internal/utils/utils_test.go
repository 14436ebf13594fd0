package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTripCarriesRole(t *testing.T) {
	token, err := GenerateJWT(7, RoleApprover, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "s3cret")
	require.NoError(t, err)
	assert.EqualValues(t, 7, claims.UserID)
	assert.Equal(t, RoleApprover, claims.Role)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)
}

func TestJWTRejectsBadTokens(t *testing.T) {
	_, err := GenerateJWT(1, "deacon", "s3cret", time.Hour)
	assert.ErrorIs(t, err, ErrUnknownRole)

	expired, err := GenerateJWT(1, RoleAdmin, "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "s3cret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1, Role: "deacon"})
	s, err := forged.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ParseJWT(s, "s3cret")
	assert.Error(t, err)
}

func TestCachePrefixInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, SetCache(ctx, rdb, "funds:all", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, "funds:page=2", []int{1, 2}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, "withdrawals:1", "x", time.Minute))

	var got map[string]int
	found, err := GetCache(ctx, rdb, "funds:all", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])

	require.NoError(t, DeleteCachePrefix(ctx, rdb, "funds:"))
	found, err = GetCache(ctx, rdb, "funds:all", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("funds:page=2"))
	assert.True(t, mr.Exists("withdrawals:1"))
}
