package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"fund_ledger/internal/domain"

	"gorm.io/gorm"
)

// MaxPageSize caps List page sizes
const MaxPageSize = 100

// Filter narrows List results; zero values match everything
type Filter struct {
	Status        domain.WithdrawalStatus
	FundAccountID uint
	RequestedBy   uint
}

// Page is the result of List
type Page struct {
	Items      []domain.WithdrawalRequest `json:"items"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
	Total      int64                      `json:"total"`
	TotalPages int                        `json:"total_pages"`
}

// Get loads a request by id
func (e *Engine) Get(ctx context.Context, id uint) (domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	if err := e.db.WithContext(ctx).First(&w, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return w, fmt.Errorf("%w: withdrawal %d", domain.ErrNotFound, id)
		}
		return w, err
	}
	return w, nil
}

// GetByReference loads a request by its external reference
func (e *Engine) GetByReference(ctx context.Context, reference string) (domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	if err := e.db.WithContext(ctx).Where("reference = ?", reference).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return w, fmt.Errorf("%w: withdrawal %s", domain.ErrNotFound, reference)
		}
		return w, err
	}
	return w, nil
}

// Approvals lists the approvals recorded for a request, oldest first
func (e *Engine) Approvals(ctx context.Context, id uint) ([]domain.Approval, error) {
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}
	var approvals []domain.Approval
	err := e.db.WithContext(ctx).
		Where("withdrawal_request_id = ?", id).
		Order("id").
		Find(&approvals).Error
	return approvals, err
}

// List returns requests newest first. page starts at 1.
func (e *Engine) List(ctx context.Context, f Filter, page, pageSize int) (Page, error) {
	switch f.Status {
	case "", domain.WithdrawalPending, domain.WithdrawalApproved, domain.WithdrawalRejected, domain.WithdrawalCompleted:
	default:
		return Page{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, f.Status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filter := func(q *gorm.DB) *gorm.DB {
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.FundAccountID != 0 {
			q = q.Where("fund_account_id = ?", f.FundAccountID)
		}
		if f.RequestedBy != 0 {
			q = q.Where("requested_by = ?", f.RequestedBy)
		}
		return q
	}

	var total int64
	if err := e.db.WithContext(ctx).Model(&domain.WithdrawalRequest{}).Scopes(filter).Count(&total).Error; err != nil {
		return Page{}, err
	}
	items := []domain.WithdrawalRequest{}
	if err := e.db.WithContext(ctx).Scopes(filter).
		Order("id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error; err != nil {
		return Page{}, err
	}
	return Page{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}
