package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fund_ledger/internal/approval"
	"fund_ledger/internal/audit"
	"fund_ledger/internal/dbtest"
	"fund_ledger/internal/domain"
	"fund_ledger/internal/fund"
	"fund_ledger/internal/ledger"
	"fund_ledger/internal/utils"
	"fund_ledger/internal/withdrawal"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	jwtSecret    = "api-test-secret"
	sharedSecret = "elders-2026"
)

type codeBox struct {
	mu    sync.Mutex
	codes map[uint]string
}

func (b *codeBox) Deliver(_ context.Context, approverID uint, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[approverID] = code
	return nil
}

func (b *codeBox) get(approverID uint) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[approverID]
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	codes  *codeBox
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hash, err := bcrypt.GenerateFromPassword([]byte(sharedSecret), bcrypt.MinCost)
	require.NoError(t, err)
	shared, err := approval.NewSharedSecret([]string{string(hash)})
	require.NoError(t, err)
	box := &codeBox{codes: make(map[uint]string)}
	codes := approval.NewCodeChannel(rdb, time.Minute, box)
	auth := approval.NewAuthority().
		Register(domain.ApprovalSharedSecret, shared).
		Register(domain.ApprovalAlternateChannel, codes)

	recorder := audit.NewGormSink(gdb)
	registry := fund.NewRegistry(gdb)
	credits, err := ledger.NewEngine(gdb, registry, recorder, []string{"welfare", "thanksgiving"})
	require.NoError(t, err)
	withdrawals, err := withdrawal.NewEngine(gdb, registry, auth, recorder, nil, withdrawal.Options{RequiredApprovals: 2})
	require.NoError(t, err)

	r := gin.New()
	NewRouter(r, Services{
		Registry:    registry,
		Ledger:      credits,
		Withdrawals: withdrawals,
		Codes:       codes,
		Audit:       recorder,
		Redis:       rdb,
	}, jwtSecret)
	return &testServer{t: t, db: gdb, router: r, codes: box, redis: mr}
}

func (s *testServer) do(method, path string, userID uint, role string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := utils.GenerateJWT(userID, role, jwtSecret, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// fundedAccount credits a completed offering and returns the resulting account id
func (s *testServer) fundedAccount(amount string) uint {
	s.t.Helper()
	p := domain.Payment{Amount: decimal.RequireFromString(amount), Category: domain.CategoryOffering, Completed: true}
	require.NoError(s.t, s.db.Create(&p).Error)
	w := s.do(http.MethodPost, "/ledger/credits", 1, utils.RoleSystem, gin.H{"payment_ids": []uint{p.ID}})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ledger.Result](s.t, w)
	require.Len(s.t, res.CreditedAccounts, 1)
	return res.CreditedAccounts[0].ID
}

func (s *testServer) openWithdrawal(accountID uint, amount string) domain.WithdrawalRequest {
	s.t.Helper()
	w := s.do(http.MethodPost, "/withdrawals", 3, utils.RoleTreasurer, gin.H{
		"fund_account_id": accountID,
		"amount":          amount,
		"purpose":         "Sound system",
		"transfer_method": "bank",
		"destination":     "0123456789",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.WithdrawalRequest](s.t, w)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrFundNotFound, http.StatusNotFound},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrNotPending, http.StatusConflict},
		{domain.ErrAlreadyApproved, http.StatusConflict},
		{domain.ErrInsufficientFunds, http.StatusConflict},
		{domain.ErrInvalidCredential, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestWithdrawalLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	accountID := s.fundedAccount("1000")

	list := s.do(http.MethodGet, "/funds", 9, utils.RoleApprover, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, false, decode[map[string]any](t, list)["cached"])
	list = s.do(http.MethodGet, "/funds", 9, utils.RoleApprover, nil)
	assert.Equal(t, true, decode[map[string]any](t, list)["cached"])

	req := s.openWithdrawal(accountID, "400")
	assert.Equal(t, domain.WithdrawalPending, req.Status)
	assert.EqualValues(t, 3, req.RequestedBy)

	path := fmt.Sprintf("/withdrawals/%d/approve", req.ID)
	w := s.do(http.MethodPost, path, 10, utils.RoleApprover, gin.H{"credential": sharedSecret})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[withdrawal.ApprovalResult](t, w)
	assert.Equal(t, 1, first.ApprovalsSoFar)
	assert.False(t, first.Completed)

	w = s.do(http.MethodPost, path, 10, utils.RoleApprover, gin.H{"credential": sharedSecret})
	assert.Equal(t, http.StatusConflict, w.Code, "same approver twice")

	w = s.do(http.MethodPost, path, 11, utils.RoleApprover, gin.H{"credential": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, path, 11, utils.RoleAdmin, gin.H{"credential": sharedSecret, "method": "shared-secret", "comment": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := decode[withdrawal.ApprovalResult](t, w)
	assert.True(t, final.Completed)
	assert.Equal(t, domain.WithdrawalCompleted, final.Status)

	assert.False(t, s.redis.Exists(fundsCacheKey), "completion must drop the cached balances")

	w = s.do(http.MethodGet, fmt.Sprintf("/withdrawals/%d", req.ID), 1, utils.RoleTreasurer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[struct {
		Withdrawal domain.WithdrawalRequest `json:"withdrawal"`
		Approvals  []domain.Approval        `json:"approvals"`
	}](t, w)
	assert.Equal(t, domain.TransferQueued, detail.Withdrawal.TransferStatus)
	assert.Len(t, detail.Approvals, 2)

	w = s.do(http.MethodPost, path, 12, utils.RoleApprover, gin.H{"credential": sharedSecret})
	assert.Equal(t, http.StatusConflict, w.Code, "completed requests accept no more approvals")
}

func TestRoutesEnforceRoles(t *testing.T) {
	s := newTestServer(t)
	accountID := s.fundedAccount("100")
	req := s.openWithdrawal(accountID, "50")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/funds", 0, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/ledger/credits", 2, utils.RoleApprover, gin.H{"payment_ids": []uint{1}}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/withdrawals", 2, utils.RoleApprover, gin.H{}).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(http.MethodPost, fmt.Sprintf("/withdrawals/%d/approve", req.ID), 3, utils.RoleTreasurer, gin.H{"credential": sharedSecret}).Code,
		"treasurers cannot approve")
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, fmt.Sprintf("/funds/%d/deactivate", accountID), 2, utils.RoleApprover, nil).Code)
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	accountID := s.fundedAccount("100")

	w := s.do(http.MethodPost, "/withdrawals/999/approve", 5, utils.RoleApprover, gin.H{"credential": sharedSecret})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "not found")

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/withdrawals/abc/approve", 5, utils.RoleApprover, gin.H{"credential": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/withdrawals", 3, utils.RoleTreasurer, "{not json").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/ledger/credits", 1, utils.RoleSystem, gin.H{"payment_ids": []uint{}}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/ledger/credits", 1, utils.RoleSystem, gin.H{"payment_ids": []uint{4040}}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/withdrawals?status=LOST", 1, utils.RoleAdmin, nil).Code)

	w = s.do(http.MethodPost, "/withdrawals", 3, utils.RoleTreasurer, gin.H{
		"fund_account_id": accountID, "amount": "500", "purpose": "Too much", "transfer_method": "cash",
	})
	assert.Equal(t, http.StatusConflict, w.Code, "advisory balance check")

	req := s.openWithdrawal(accountID, "20")
	reject := fmt.Sprintf("/withdrawals/%d/reject", req.ID)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, reject, 6, utils.RoleApprover, gin.H{"reason": ""}).Code)
	w = s.do(http.MethodPost, reject, 6, utils.RoleApprover, gin.H{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.WithdrawalRejected, decode[domain.WithdrawalRequest](t, w).Status)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, reject, 6, utils.RoleApprover, gin.H{"reason": "again"}).Code)
}

func TestAlternateChannelApproval(t *testing.T) {
	s := newTestServer(t)
	accountID := s.fundedAccount("300")
	req := s.openWithdrawal(accountID, "100")
	path := fmt.Sprintf("/withdrawals/%d/approve", req.ID)

	w := s.do(http.MethodPost, "/approvals/codes", 21, utils.RoleApprover, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	code := s.codes.get(21)
	require.Len(t, code, 6)

	w = s.do(http.MethodPost, path, 22, utils.RoleApprover, gin.H{"credential": code, "method": "alternate-channel"})
	assert.Equal(t, http.StatusForbidden, w.Code, "codes are bound to the approver they were issued to")

	w = s.do(http.MethodPost, path, 21, utils.RoleApprover, gin.H{"credential": code, "method": "alternate-channel"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[withdrawal.ApprovalResult](t, w).ApprovalsSoFar)

	w = s.do(http.MethodPost, path, 23, utils.RoleApprover, gin.H{"credential": sharedSecret, "method": "carrier-pigeon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeactivateFund(t *testing.T) {
	s := newTestServer(t)
	accountID := s.fundedAccount("100")
	s.do(http.MethodGet, "/funds", 1, utils.RoleAdmin, nil) // warm the cache

	w := s.do(http.MethodPost, fmt.Sprintf("/funds/%d/deactivate", accountID), 1, utils.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[domain.FundAccount](t, w).Active)

	w = s.do(http.MethodGet, "/funds", 1, utils.RoleAdmin, nil)
	body := decode[struct {
		Funds  map[string][]domain.FundAccount `json:"funds"`
		Cached bool                            `json:"cached"`
	}](t, w)
	assert.False(t, body.Cached)
	assert.Empty(t, body.Funds)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/funds/999/deactivate", 1, utils.RoleAdmin, nil).Code)

	var entries int64
	require.NoError(t, s.db.Model(&domain.AuditEntry{}).Where("action_type = ?", domain.ActionFundDeactivate).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}
