// Package withdrawal runs the withdrawal request lifecycle: creation,
// approval accumulation up to a threshold, and the atomic debit that
// completes a request.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fund_ledger/internal/audit"
	"fund_ledger/internal/domain"
	"fund_ledger/internal/fund"
	"fund_ledger/internal/transfer"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	bankAccountPattern = regexp.MustCompile(`^[0-9A-Za-z-]{5,34}$`)
	phonePattern       = regexp.MustCompile(`^\+?[0-9]{9,15}$`)
)

// Verifier checks approval credentials
type Verifier interface {
	Verify(ctx context.Context, approverID uint, credential string, method domain.ApprovalMethod) (bool, error)
}

// Dispatcher is told when new transfers are waiting in the outbox
type Dispatcher interface {
	Notify()
}

// Options configures the engine
type Options struct {
	RequiredApprovals int // threshold applied to new requests
}

// Engine owns withdrawal requests
type Engine struct {
	db         *gorm.DB
	registry   *fund.Registry
	verifier   Verifier
	audit      audit.Recorder
	dispatcher Dispatcher
	required   int
	now        func() time.Time
}

// NewEngine creates a withdrawal engine. dispatcher and recorder may be nil.
func NewEngine(db *gorm.DB, registry *fund.Registry, verifier Verifier, recorder audit.Recorder, dispatcher Dispatcher, opts Options) (*Engine, error) {
	if opts.RequiredApprovals < 1 {
		return nil, fmt.Errorf("required approvals must be at least 1, got %d", opts.RequiredApprovals)
	}
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Engine{
		db:         db,
		registry:   registry,
		verifier:   verifier,
		audit:      recorder,
		dispatcher: dispatcher,
		required:   opts.RequiredApprovals,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// RequiredApprovals is the threshold given to new requests
func (e *Engine) RequiredApprovals() int { return e.required }

// CreateInput describes a new withdrawal request
type CreateInput struct {
	FundAccountID uint
	Amount        decimal.Decimal
	Purpose       string
	Note          string
	Method        domain.TransferMethod
	Destination   string
	RequestedBy   uint
}

func (in *CreateInput) normalize() error {
	in.Purpose = strings.TrimSpace(in.Purpose)
	in.Note = strings.TrimSpace(in.Note)
	in.Destination = strings.TrimSpace(in.Destination)
	switch {
	case in.RequestedBy == 0:
		return fmt.Errorf("%w: requester is required", domain.ErrValidation)
	case in.FundAccountID == 0:
		return fmt.Errorf("%w: fund account is required", domain.ErrValidation)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	case !in.Amount.Equal(in.Amount.Round(2)):
		return fmt.Errorf("%w: amount has more than two decimal places", domain.ErrValidation)
	case in.Purpose == "":
		return fmt.Errorf("%w: purpose is required", domain.ErrValidation)
	case len(in.Purpose) > 255:
		return fmt.Errorf("%w: purpose is too long", domain.ErrValidation)
	case !in.Method.Valid():
		return fmt.Errorf("%w: unknown transfer method %q", domain.ErrValidation, in.Method)
	}
	switch in.Method {
	case domain.MethodBank:
		if !bankAccountPattern.MatchString(in.Destination) {
			return fmt.Errorf("%w: bank transfers need a valid account number", domain.ErrValidation)
		}
	case domain.MethodMobileMoney:
		in.Destination = strings.NewReplacer(" ", "", "-", "").Replace(in.Destination)
		if !phonePattern.MatchString(in.Destination) {
			return fmt.Errorf("%w: mobile money transfers need a valid phone number", domain.ErrValidation)
		}
	}
	return nil
}

func newReference() string {
	return "WR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Create opens a PENDING request. The balance check here is advisory: the
// authoritative check happens when the final approval debits the account.
func (e *Engine) Create(ctx context.Context, in CreateInput) (domain.WithdrawalRequest, error) {
	if err := in.normalize(); err != nil {
		return domain.WithdrawalRequest{}, err
	}
	acct, err := e.registry.Get(ctx, in.FundAccountID)
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	if !acct.Active {
		return domain.WithdrawalRequest{}, fmt.Errorf("%w: fund account %d is inactive", domain.ErrValidation, acct.ID)
	}
	if in.Amount.GreaterThan(acct.Balance) {
		return domain.WithdrawalRequest{}, fmt.Errorf("%w: balance %s is below %s", domain.ErrInsufficientFunds, acct.Balance.StringFixed(2), in.Amount.StringFixed(2))
	}

	w := domain.WithdrawalRequest{
		FundAccountID:     acct.ID,
		Amount:            in.Amount,
		Purpose:           in.Purpose,
		Note:              in.Note,
		RequestedBy:       in.RequestedBy,
		TransferMethod:    in.Method,
		Destination:       in.Destination,
		Status:            domain.WithdrawalPending,
		RequiredApprovals: e.required,
		TransferStatus:    domain.TransferNotRequired,
	}
	// A reference collision is astronomically unlikely; retry a couple of times anyway
	for attempt := 0; ; attempt++ {
		w.ID = 0
		w.Reference = newReference()
		err = e.db.WithContext(ctx).Create(&w).Error
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == 2 {
			break
		}
	}
	if err != nil {
		return domain.WithdrawalRequest{}, fmt.Errorf("create withdrawal: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"reference":       w.Reference,
		"fund_account_id": w.FundAccountID,
		"amount":          w.Amount.StringFixed(2),
		"requested_by":    w.RequestedBy,
	}).Info("Withdrawal requested")
	e.audit.Record(ctx, domain.AuditEntry{
		ActionType:  domain.ActionWithdrawalCreate,
		TargetID:    w.Reference,
		InitiatedBy: w.RequestedBy,
		Payload: map[string]any{
			"fund_account_id":    w.FundAccountID,
			"amount":             w.Amount.StringFixed(2),
			"method":             w.TransferMethod,
			"required_approvals": w.RequiredApprovals,
		},
		Status: domain.AuditSuccess,
	})
	return w, nil
}

// ApproveInput is one approver's approval attempt
type ApproveInput struct {
	RequestID  uint
	ApproverID uint
	Credential string
	Method     domain.ApprovalMethod
	Comment    string
}

// ApprovalResult reports the request state after an approval
type ApprovalResult struct {
	Reference         string                  `json:"reference"`
	Status            domain.WithdrawalStatus `json:"status"`
	ApprovalsSoFar    int                     `json:"approvals_so_far"`
	RequiredApprovals int                     `json:"required_approvals"`
	Completed         bool                    `json:"completed"`
}

// Approve records an approval. The approval that reaches the threshold also
// debits the fund, writes the expense and queues the external transfer, all
// in the same transaction; if the fund can no longer cover the amount nothing
// is recorded and the request stays PENDING.
func (e *Engine) Approve(ctx context.Context, in ApproveInput) (ApprovalResult, error) {
	if in.ApproverID == 0 {
		return ApprovalResult{}, fmt.Errorf("%w: approver is required", domain.ErrValidation)
	}
	// Cheap checks first so bad requests never reach the verifier
	w, err := e.Get(ctx, in.RequestID)
	if err != nil {
		return ApprovalResult{}, err
	}
	if err := e.checkApprovable(e.db.WithContext(ctx), w, in.ApproverID); err != nil {
		return ApprovalResult{}, err
	}

	ok, err := e.verifier.Verify(ctx, in.ApproverID, in.Credential, in.Method)
	if err != nil {
		return ApprovalResult{}, err
	}
	if !ok {
		e.recordFailure(ctx, domain.ActionWithdrawalApprove, w.Reference, in.ApproverID, domain.ErrInvalidCredential)
		return ApprovalResult{}, domain.ErrInvalidCredential
	}

	completed := false
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, in.RequestID).Error; err != nil {
			return err
		}
		if err := e.checkApprovable(tx, w, in.ApproverID); err != nil {
			return err
		}
		if err := tx.Create(&domain.Approval{
			WithdrawalRequestID: w.ID,
			ApproverID:          in.ApproverID,
			Method:              in.Method,
			Comment:             strings.TrimSpace(in.Comment),
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyApproved
			}
			return err
		}
		res := tx.Model(&domain.WithdrawalRequest{}).
			Where("id = ? AND status = ? AND approvals_so_far < required_approvals", w.ID, domain.WithdrawalPending).
			Update("approvals_so_far", gorm.Expr("approvals_so_far + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotPending
		}
		w.ApprovalsSoFar++
		if w.ApprovalsSoFar < w.RequiredApprovals {
			return nil
		}
		completed = true
		return e.complete(tx, &w)
	})
	if err != nil {
		e.recordFailure(ctx, domain.ActionWithdrawalApprove, w.Reference, in.ApproverID, err)
		return ApprovalResult{}, err
	}

	fields := logrus.Fields{
		"reference":        w.Reference,
		"approver_id":      in.ApproverID,
		"approvals_so_far": w.ApprovalsSoFar,
		"required":         w.RequiredApprovals,
	}
	logrus.WithFields(fields).Info("Withdrawal approved")
	e.audit.Record(ctx, domain.AuditEntry{
		ActionType:  domain.ActionWithdrawalApprove,
		TargetID:    w.Reference,
		InitiatedBy: in.ApproverID,
		Payload: map[string]any{
			"method":           in.Method,
			"approvals_so_far": w.ApprovalsSoFar,
			"comment":          strings.TrimSpace(in.Comment),
		},
		Status: domain.AuditSuccess,
	})
	if completed {
		logrus.WithFields(fields).Info("Withdrawal completed")
		e.audit.Record(ctx, domain.AuditEntry{
			ActionType:  domain.ActionWithdrawalComplete,
			TargetID:    w.Reference,
			InitiatedBy: in.ApproverID,
			Payload: map[string]any{
				"fund_account_id": w.FundAccountID,
				"amount":          w.Amount.StringFixed(2),
				"transfer_status": w.TransferStatus,
			},
			Status: domain.AuditSuccess,
		})
		if w.TransferStatus == domain.TransferQueued && e.dispatcher != nil {
			e.dispatcher.Notify()
		}
	}
	return ApprovalResult{
		Reference:         w.Reference,
		Status:            w.Status,
		ApprovalsSoFar:    w.ApprovalsSoFar,
		RequiredApprovals: w.RequiredApprovals,
		Completed:         completed,
	}, nil
}

// checkApprovable enforces the state machine and one approval per approver
func (e *Engine) checkApprovable(q *gorm.DB, w domain.WithdrawalRequest, approverID uint) error {
	if w.Status != domain.WithdrawalPending {
		return fmt.Errorf("%w: %s is %s", domain.ErrNotPending, w.Reference, w.Status)
	}
	var count int64
	if err := q.Model(&domain.Approval{}).
		Where("withdrawal_request_id = ? AND approver_id = ?", w.ID, approverID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrAlreadyApproved
	}
	return nil
}

// complete executes a fully approved request inside tx
func (e *Engine) complete(tx *gorm.DB, w *domain.WithdrawalRequest) error {
	src := fund.Source{Type: domain.SourceWithdrawal, Ref: w.Reference}
	if _, err := e.registry.Debit(tx, w.FundAccountID, w.Amount, src); err != nil {
		return err
	}
	if err := tx.Create(&domain.Expense{
		FundAccountID: w.FundAccountID,
		Amount:        w.Amount,
		Reference:     w.Reference,
		Purpose:       w.Purpose,
		Note:          w.Note,
		RecordedBy:    w.RequestedBy,
	}).Error; err != nil {
		return fmt.Errorf("record expense: %w", err)
	}

	now := e.now()
	transferStatus := domain.TransferNotRequired
	if w.TransferMethod.External() {
		transferStatus = domain.TransferQueued
	}
	res := tx.Model(&domain.WithdrawalRequest{}).
		Where("id = ? AND status = ?", w.ID, domain.WithdrawalPending).
		Updates(map[string]any{
			"status":          domain.WithdrawalCompleted,
			"completed_at":    now,
			"transfer_status": transferStatus,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotPending
	}
	w.Status = domain.WithdrawalCompleted
	w.CompletedAt = &now
	w.TransferStatus = transferStatus

	if transferStatus == domain.TransferQueued {
		if err := transfer.Enqueue(tx, *w, now); err != nil {
			return fmt.Errorf("queue transfer: %w", err)
		}
	}
	return nil
}

// Reject closes a PENDING request without moving money
func (e *Engine) Reject(ctx context.Context, requestID, approverID uint, reason string) (domain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if approverID == 0 {
		return domain.WithdrawalRequest{}, fmt.Errorf("%w: approver is required", domain.ErrValidation)
	}

	var w domain.WithdrawalRequest
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: withdrawal %d", domain.ErrNotFound, requestID)
			}
			return err
		}
		if reason == "" {
			return fmt.Errorf("%w: a rejection reason is required", domain.ErrValidation)
		}
		if w.Status != domain.WithdrawalPending {
			return fmt.Errorf("%w: %s is %s", domain.ErrNotPending, w.Reference, w.Status)
		}
		res := tx.Model(&domain.WithdrawalRequest{}).
			Where("id = ? AND status = ?", w.ID, domain.WithdrawalPending).
			Updates(map[string]any{
				"status":           domain.WithdrawalRejected,
				"rejected_by":      approverID,
				"rejection_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotPending
		}
		w.Status = domain.WithdrawalRejected
		w.RejectedBy = &approverID
		w.RejectionReason = reason
		return nil
	})
	if err != nil {
		e.recordFailure(ctx, domain.ActionWithdrawalReject, w.Reference, approverID, err)
		return domain.WithdrawalRequest{}, err
	}

	logrus.WithFields(logrus.Fields{
		"reference":   w.Reference,
		"approver_id": approverID,
	}).Info("Withdrawal rejected")
	e.audit.Record(ctx, domain.AuditEntry{
		ActionType:  domain.ActionWithdrawalReject,
		TargetID:    w.Reference,
		InitiatedBy: approverID,
		Payload:     map[string]any{"reason": reason},
		Status:      domain.AuditSuccess,
	})
	return w, nil
}

func (e *Engine) recordFailure(ctx context.Context, action, reference string, actor uint, cause error) {
	logrus.WithFields(logrus.Fields{
		"action":    action,
		"reference": reference,
		"actor":     actor,
		"error":     cause.Error(),
	}).Warn("Withdrawal action refused")
	e.audit.Record(ctx, domain.AuditEntry{
		ActionType:  action,
		TargetID:    reference,
		InitiatedBy: actor,
		Payload:     map[string]any{"error": cause.Error()},
		Status:      domain.AuditFailure,
	})
}
