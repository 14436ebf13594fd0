// Package fund owns the fund account catalog and its running balances.
//
// Mutating operations take the caller's transaction handle and never open a
// transaction of their own, so callers can compose multi-account changes into
// one atomic unit.
package fund

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fund_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Source identifies what caused a balance mutation
type Source struct {
	Type string // domain.SourcePayment or domain.SourceWithdrawal
	Ref  string // payment id or withdrawal reference
}

// Registry reads and mutates fund accounts
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a registry backed by db
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// EnsureAccount returns the account for (fundType, subType), creating it with
// a zero balance if absent. Concurrent first calls converge on one row.
func (r *Registry) EnsureAccount(tx *gorm.DB, fundType domain.FundType, subType string) (domain.FundAccount, error) {
	if !fundType.Valid() {
		return domain.FundAccount{}, fmt.Errorf("%w: unknown fund type %q", domain.ErrValidation, fundType)
	}
	subType = strings.TrimSpace(subType)

	acct, err := findByKey(tx, fundType, subType)
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return acct, err
	}

	acct = domain.FundAccount{
		FundType:      fundType,
		SubType:       subType,
		Balance:       decimal.Zero,
		TotalCredited: decimal.Zero,
		TotalDebited:  decimal.Zero,
		Active:        true,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&acct).Error; err != nil {
		return domain.FundAccount{}, fmt.Errorf("create fund account: %w", err)
	}
	// Re-read: the insert is a no-op when another transaction created it first.
	return findByKey(tx, fundType, subType)
}

func findByKey(tx *gorm.DB, fundType domain.FundType, subType string) (domain.FundAccount, error) {
	var acct domain.FundAccount
	err := tx.Where("fund_type = ? AND sub_type = ?", fundType, subType).First(&acct).Error
	return acct, err
}

// LinkCampaign records the campaign a special-contribution account belongs to,
// leaving an existing link untouched.
func (r *Registry) LinkCampaign(tx *gorm.DB, accountID, campaignID uint) error {
	return tx.Model(&domain.FundAccount{}).
		Where("id = ? AND linked_campaign_id IS NULL", accountID).
		Update("linked_campaign_id", campaignID).Error
}

// Credit increases the account balance and appends a ledger entry
func (r *Registry) Credit(tx *gorm.DB, accountID uint, amount decimal.Decimal, src Source) (domain.FundAccount, error) {
	if !amount.IsPositive() {
		return domain.FundAccount{}, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}
	res := tx.Model(&domain.FundAccount{}).Where("id = ?", accountID).Updates(map[string]any{
		"balance":        gorm.Expr("balance + ?", amount),
		"total_credited": gorm.Expr("total_credited + ?", amount),
	})
	if res.Error != nil {
		return domain.FundAccount{}, fmt.Errorf("credit fund account %d: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.FundAccount{}, fmt.Errorf("%w: id %d", domain.ErrFundNotFound, accountID)
	}
	return r.appendEntry(tx, accountID, domain.DirectionCredit, amount, src)
}

// Debit decreases the account balance. The balance check is part of the
// UPDATE itself, so concurrent debits can never overdraw the account.
func (r *Registry) Debit(tx *gorm.DB, accountID uint, amount decimal.Decimal, src Source) (domain.FundAccount, error) {
	if !amount.IsPositive() {
		return domain.FundAccount{}, fmt.Errorf("%w: debit amount must be positive", domain.ErrValidation)
	}
	res := tx.Model(&domain.FundAccount{}).Where("id = ? AND balance >= ?", accountID, amount).Updates(map[string]any{
		"balance":       gorm.Expr("balance - ?", amount),
		"total_debited": gorm.Expr("total_debited + ?", amount),
	})
	if res.Error != nil {
		return domain.FundAccount{}, fmt.Errorf("debit fund account %d: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&domain.FundAccount{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
			return domain.FundAccount{}, err
		}
		if count == 0 {
			return domain.FundAccount{}, fmt.Errorf("%w: id %d", domain.ErrFundNotFound, accountID)
		}
		return domain.FundAccount{}, fmt.Errorf("%w: account %d cannot cover %s", domain.ErrInsufficientFunds, accountID, amount.StringFixed(2))
	}
	return r.appendEntry(tx, accountID, domain.DirectionDebit, amount, src)
}

func (r *Registry) appendEntry(tx *gorm.DB, accountID uint, direction string, amount decimal.Decimal, src Source) (domain.FundAccount, error) {
	var acct domain.FundAccount
	if err := tx.First(&acct, accountID).Error; err != nil {
		return domain.FundAccount{}, err
	}
	entry := domain.LedgerEntry{
		FundAccountID: accountID,
		Direction:     direction,
		Amount:        amount,
		BalanceAfter:  acct.Balance,
		SourceType:    src.Type,
		SourceRef:     src.Ref,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return domain.FundAccount{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return acct, nil
}

// Get loads one account
func (r *Registry) Get(ctx context.Context, id uint) (domain.FundAccount, error) {
	var acct domain.FundAccount
	err := r.db.WithContext(ctx).First(&acct, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return acct, fmt.Errorf("%w: id %d", domain.ErrFundNotFound, id)
	}
	return acct, err
}

// ListActive returns active accounts grouped by fund type
func (r *Registry) ListActive(ctx context.Context) (map[domain.FundType][]domain.FundAccount, error) {
	var accounts []domain.FundAccount
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("fund_type, sub_type").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	grouped := make(map[domain.FundType][]domain.FundAccount)
	for _, a := range accounts {
		grouped[a.FundType] = append(grouped[a.FundType], a)
	}
	return grouped, nil
}

// Deactivate hides an account from listings and new withdrawals. Its balance
// and history are kept.
func (r *Registry) Deactivate(ctx context.Context, id uint) (domain.FundAccount, error) {
	acct, err := r.Get(ctx, id)
	if err != nil {
		return acct, err
	}
	if err := r.db.WithContext(ctx).Model(&acct).Update("active", false).Error; err != nil {
		return domain.FundAccount{}, err
	}
	return acct, nil
}
