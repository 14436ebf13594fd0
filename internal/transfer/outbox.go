package transfer

import (
	"context"
	"time"

	"fund_ledger/internal/audit"
	"fund_ledger/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Enqueue queues the gateway transfer for a completed withdrawal. It must run
// in the transaction that completes the withdrawal.
func Enqueue(tx *gorm.DB, w domain.WithdrawalRequest, now time.Time) error {
	return tx.Create(&domain.TransferOutbox{
		WithdrawalRequestID: w.ID,
		Reference:           w.Reference,
		Amount:              w.Amount,
		Method:              w.TransferMethod,
		Destination:         w.Destination,
		Purpose:             w.Purpose,
		Status:              domain.OutboxPending,
		NextAttemptAt:       now.UTC(),
	}).Error
}

// WorkerOptions tunes the outbox worker
type WorkerOptions struct {
	Timeout     time.Duration // per gateway call
	Interval    time.Duration // poll interval and base retry delay
	MaxAttempts int           // attempts before a transfer is marked FAILED
	BatchSize   int           // rows claimed per poll
}

// Worker drains the transfer outbox. Gateway outcomes only ever touch the
// transfer fields of a withdrawal, never its status.
type Worker struct {
	db        *gorm.DB
	initiator Initiator
	audit     audit.Recorder
	opts      WorkerOptions
	now       func() time.Time
	wake      chan struct{}
}

// NewWorker creates a worker; zero options get defaults
func NewWorker(db *gorm.DB, initiator Initiator, recorder audit.Recorder, opts WorkerOptions) *Worker {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Worker{
		db:        db,
		initiator: initiator,
		audit:     recorder,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		wake:      make(chan struct{}, 1),
	}
}

// WithClock replaces the worker's time source
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Notify asks the worker to poll now. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			logrus.WithField("error", err.Error()).Error("Transfer outbox poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// ProcessDue attempts every transfer whose next attempt is due and returns
// how many it attempted. Rows left in PROCESSING by a crashed worker become
// due again once their lease runs out.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	var rows []domain.TransferOutbox
	if err := w.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?", []domain.OutboxStatus{domain.OutboxPending, domain.OutboxProcessing}, w.now()).
		Order("id").
		Limit(w.opts.BatchSize).
		Find(&rows).Error; err != nil {
		return 0, err
	}
	attempted := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		claimed, err := w.claim(ctx, &row)
		if err != nil {
			return attempted, err
		}
		if !claimed {
			continue
		}
		attempted++
		w.attempt(ctx, row)
	}
	return attempted, nil
}

// claim takes ownership of a row. Attempts doubles as a version number so two
// workers cannot claim the same attempt.
func (w *Worker) claim(ctx context.Context, row *domain.TransferOutbox) (bool, error) {
	lease := w.now().Add(2 * w.opts.Timeout)
	res := w.db.WithContext(ctx).Model(&domain.TransferOutbox{}).
		Where("id = ? AND attempts = ? AND status IN ?", row.ID, row.Attempts, []domain.OutboxStatus{domain.OutboxPending, domain.OutboxProcessing}).
		Updates(map[string]any{
			"status":          domain.OutboxProcessing,
			"attempts":        row.Attempts + 1,
			"next_attempt_at": lease,
		})
	if res.Error != nil {
		return false, res.Error
	}
	row.Attempts++
	return res.RowsAffected == 1, nil
}

func (w *Worker) attempt(ctx context.Context, row domain.TransferOutbox) {
	callCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	receipt, err := w.initiator.Initiate(callCtx, Request{
		Reference:   row.Reference,
		Amount:      row.Amount,
		Method:      row.Method,
		Destination: row.Destination,
		Purpose:     row.Purpose,
	})
	cancel()

	// Outcome writes must land even if the worker is shutting down
	ctx = context.WithoutCancel(ctx)
	fields := logrus.Fields{
		"reference": row.Reference,
		"attempt":   row.Attempts,
	}
	if err == nil {
		w.recordSuccess(ctx, row, receipt, fields)
		return
	}
	w.recordFailure(ctx, row, err, fields)
}

func (w *Worker) recordSuccess(ctx context.Context, row domain.TransferOutbox, receipt Receipt, fields logrus.Fields) {
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.TransferOutbox{}).Where("id = ?", row.ID).Updates(map[string]any{
			"status":     domain.OutboxSent,
			"last_error": "",
		}).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"transfer_status":          domain.TransferSent,
			"external_transaction_ref": receipt.TransactionID,
			"transfer_error":           "",
		}
		if receipt.ExternalReference != "" {
			updates["external_reference"] = receipt.ExternalReference
		}
		return tx.Model(&domain.WithdrawalRequest{}).Where("id = ?", row.WithdrawalRequestID).Updates(updates).Error
	})
	if err != nil {
		// The money moved; leave the row PROCESSING so the lease expiry surfaces it for reconciliation
		fields["transaction_id"] = receipt.TransactionID
		fields["error"] = err.Error()
		logrus.WithFields(fields).Error("Transfer sent but outcome not recorded")
		return
	}
	fields["transaction_id"] = receipt.TransactionID
	logrus.WithFields(fields).Info("Transfer sent")
	w.audit.Record(ctx, domain.AuditEntry{
		ActionType: domain.ActionTransferSent,
		TargetID:   row.Reference,
		Payload: map[string]any{
			"transaction_id":     receipt.TransactionID,
			"external_reference": receipt.ExternalReference,
			"attempt":            row.Attempts,
		},
		Status: domain.AuditSuccess,
	})
}

func (w *Worker) recordFailure(ctx context.Context, row domain.TransferOutbox, cause error, fields logrus.Fields) {
	final := row.Attempts >= w.opts.MaxAttempts
	outbox := map[string]any{"last_error": cause.Error()}
	withdrawal := map[string]any{"transfer_error": cause.Error()}
	if final {
		outbox["status"] = domain.OutboxFailed
		withdrawal["transfer_status"] = domain.TransferFailed
	} else {
		outbox["status"] = domain.OutboxPending
		outbox["next_attempt_at"] = w.now().Add(w.backoff(row.Attempts))
	}
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.TransferOutbox{}).Where("id = ?", row.ID).Updates(outbox).Error; err != nil {
			return err
		}
		return tx.Model(&domain.WithdrawalRequest{}).Where("id = ?", row.WithdrawalRequestID).Updates(withdrawal).Error
	})

	fields["error"] = cause.Error()
	if err != nil {
		fields["record_error"] = err.Error()
	}
	if !final {
		logrus.WithFields(fields).Warn("Transfer attempt failed, will retry")
		return
	}
	logrus.WithFields(fields).Error("Transfer failed, manual reconciliation required")
	w.audit.Record(ctx, domain.AuditEntry{
		ActionType: domain.ActionTransferFailed,
		TargetID:   row.Reference,
		Payload:    map[string]any{"error": cause.Error(), "attempts": row.Attempts},
		Status:     domain.AuditFailure,
	})
}

// backoff doubles the poll interval per attempt, capped at one hour
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.opts.Interval
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
