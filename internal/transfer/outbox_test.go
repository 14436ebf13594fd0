package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fund_ledger/internal/audit"
	"fund_ledger/internal/dbtest"
	"fund_ledger/internal/domain"
	"fund_ledger/internal/transfer"
	mock_transfer "fund_ledger/internal/transfer/mocks"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func seedCompleted(t *testing.T, gdb *gorm.DB, c *clock) domain.WithdrawalRequest {
	t.Helper()
	completedAt := c.now()
	w := domain.WithdrawalRequest{
		Reference:         "WR-TEST0001",
		FundAccountID:     1,
		Amount:            decimal.RequireFromString("250"),
		Purpose:           "Choir robes",
		RequestedBy:       1,
		TransferMethod:    domain.MethodBank,
		Destination:       "0123456789",
		Status:            domain.WithdrawalCompleted,
		RequiredApprovals: 2,
		ApprovalsSoFar:    2,
		TransferStatus:    domain.TransferQueued,
		CompletedAt:       &completedAt,
	}
	require.NoError(t, gdb.Create(&w).Error)
	require.NoError(t, transfer.Enqueue(gdb, w, c.now()))
	return w
}

func reload(t *testing.T, gdb *gorm.DB, id uint) (domain.WithdrawalRequest, domain.TransferOutbox) {
	t.Helper()
	var w domain.WithdrawalRequest
	require.NoError(t, gdb.First(&w, id).Error)
	var o domain.TransferOutbox
	require.NoError(t, gdb.Where("withdrawal_request_id = ?", id).First(&o).Error)
	return w, o
}

func TestWorkerRecordsGatewayReceipt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gdb := dbtest.New(t)
	c := &clock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	w := seedCompleted(t, gdb, c)

	initiator := mock_transfer.NewMockInitiator(ctrl)
	initiator.EXPECT().
		Initiate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req transfer.Request) (transfer.Receipt, error) {
			assert.Equal(t, w.Reference, req.Reference)
			assert.True(t, req.Amount.Equal(w.Amount))
			assert.Equal(t, domain.MethodBank, req.Method)
			assert.Equal(t, "0123456789", req.Destination)
			return transfer.Receipt{TransactionID: "TX-991", ExternalReference: "GW-REF-7"}, nil
		})

	worker := transfer.NewWorker(gdb, initiator, audit.NewGormSink(gdb), transfer.WorkerOptions{Interval: time.Minute}).WithClock(c.now)
	n, err := worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, outbox := reload(t, gdb, w.ID)
	assert.Equal(t, domain.WithdrawalCompleted, got.Status)
	assert.Equal(t, domain.TransferSent, got.TransferStatus)
	require.NotNil(t, got.ExternalTransactionRef)
	assert.Equal(t, "TX-991", *got.ExternalTransactionRef)
	require.NotNil(t, got.ExternalReference)
	assert.Equal(t, "GW-REF-7", *got.ExternalReference)
	assert.Equal(t, domain.OutboxSent, outbox.Status)
	assert.Equal(t, 1, outbox.Attempts)

	n, err = worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a sent transfer is never attempted again")
}

func TestWorkerRetriesThenGivesUpWithoutTouchingStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gdb := dbtest.New(t)
	c := &clock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	w := seedCompleted(t, gdb, c)

	initiator := mock_transfer.NewMockInitiator(ctrl)
	initiator.EXPECT().
		Initiate(gomock.Any(), gomock.Any()).
		Return(transfer.Receipt{}, errors.New("gateway unavailable")).
		Times(2)

	worker := transfer.NewWorker(gdb, initiator, audit.NewGormSink(gdb), transfer.WorkerOptions{
		Interval:    time.Minute,
		MaxAttempts: 2,
	}).WithClock(c.now)
	ctx := context.Background()

	n, err := worker.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, outbox := reload(t, gdb, w.ID)
	assert.Equal(t, domain.OutboxPending, outbox.Status)
	assert.Equal(t, domain.TransferQueued, got.TransferStatus)
	assert.Equal(t, "gateway unavailable", got.TransferError)

	n, err = worker.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "retry must wait for its backoff")

	c.advance(2 * time.Minute)
	n, err = worker.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, outbox = reload(t, gdb, w.ID)
	assert.Equal(t, domain.WithdrawalCompleted, got.Status, "gateway failure never reverses the ledger")
	assert.Equal(t, domain.TransferFailed, got.TransferStatus)
	assert.Nil(t, got.ExternalTransactionRef)
	assert.Equal(t, domain.OutboxFailed, outbox.Status)
	assert.Equal(t, 2, outbox.Attempts)

	var failures int64
	require.NoError(t, gdb.Model(&domain.AuditEntry{}).
		Where("action_type = ? AND status = ?", domain.ActionTransferFailed, domain.AuditFailure).
		Count(&failures).Error)
	assert.EqualValues(t, 1, failures)
}

func TestWorkerBoundsSlowGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gdb := dbtest.New(t)
	c := &clock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	w := seedCompleted(t, gdb, c)

	initiator := mock_transfer.NewMockInitiator(ctrl)
	initiator.EXPECT().
		Initiate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ transfer.Request) (transfer.Receipt, error) {
			<-ctx.Done()
			return transfer.Receipt{}, ctx.Err()
		})

	worker := transfer.NewWorker(gdb, initiator, nil, transfer.WorkerOptions{
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 1,
	}).WithClock(c.now)

	start := time.Now()
	_, err := worker.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	got, _ := reload(t, gdb, w.ID)
	assert.Equal(t, domain.TransferFailed, got.TransferStatus)
	assert.Contains(t, got.TransferError, "deadline exceeded")
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gdb := dbtest.New(t)
	worker := transfer.NewWorker(gdb, mock_transfer.NewMockInitiator(ctrl), nil, transfer.WorkerOptions{Interval: time.Hour})

	worker.Notify()
	worker.Notify() // must not block when a wake-up is already pending

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
