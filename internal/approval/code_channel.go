package approval

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"
)

// Notifier delivers a one-time code to an approver out of band
type Notifier interface {
	Deliver(ctx context.Context, approverID uint, code string) error
}

// LogNotifier writes codes to the log. Only suitable outside production.
type LogNotifier struct{}

// Deliver implements Notifier
func (LogNotifier) Deliver(_ context.Context, approverID uint, code string) error {
	logrus.WithFields(logrus.Fields{
		"approver_id": approverID,
		"code":        code,
	}).Debug("Approval code issued")
	return nil
}

// CodeChannel is the alternate verification channel: short-lived, single-use
// codes bound to one approver. Only a digest of each code is stored.
type CodeChannel struct {
	rdb      *redis.Client
	ttl      time.Duration
	notifier Notifier
}

// NewCodeChannel creates a channel storing codes in rdb for ttl
func NewCodeChannel(rdb *redis.Client, ttl time.Duration, notifier Notifier) *CodeChannel {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &CodeChannel{rdb: rdb, ttl: ttl, notifier: notifier}
}

func codeKey(approverID uint) string {
	return "approval:code:" + strconv.FormatUint(uint64(approverID), 10)
}

func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// IssueCode generates a six-digit code for the approver, replacing any
// outstanding one, and hands it to the notifier.
func (c *CodeChannel) IssueCode(ctx context.Context, approverID uint) error {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return fmt.Errorf("generate approval code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	if err := c.rdb.Set(ctx, codeKey(approverID), digest(code), c.ttl).Err(); err != nil {
		return fmt.Errorf("store approval code: %w", err)
	}
	return c.notifier.Deliver(ctx, approverID, code)
}

// Verify implements Verifier. A matching code is consumed; of two concurrent
// uses only the one that deletes the key succeeds.
func (c *CodeChannel) Verify(ctx context.Context, approverID uint, credential string) (bool, error) {
	key := codeKey(approverID)
	stored, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil // No outstanding code
	} else if err != nil {
		return false, fmt.Errorf("load approval code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(digest(credential))) != 1 {
		return false, nil
	}
	deleted, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("consume approval code: %w", err)
	}
	return deleted == 1, nil
}
