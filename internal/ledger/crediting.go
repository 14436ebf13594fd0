// Package ledger turns completed payments into fund credits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fund_ledger/internal/audit"
	"fund_ledger/internal/domain"
	"fund_ledger/internal/fund"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result summarizes one crediting batch
type Result struct {
	CreditedAccounts []domain.FundAccount `json:"credited_accounts"`   // Final state of every account touched
	SkippedPayments  []uint               `json:"skipped_payment_ids"` // Incomplete, expense or already credited payments
}

// Engine credits fund accounts from completed payments
type Engine struct {
	db         *gorm.DB
	registry   *fund.Registry
	audit      audit.Recorder
	categories []string // split order, the first gets any residual cent
	known      map[string]bool
}

// NewEngine creates an engine splitting designated tithes over categories,
// in the order given.
func NewEngine(db *gorm.DB, registry *fund.Registry, recorder audit.Recorder, categories []string) (*Engine, error) {
	known := make(map[string]bool, len(categories))
	ordered := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || known[c] {
			continue
		}
		if c == domain.GeneralTitheSubType {
			return nil, fmt.Errorf("tithe category %q is reserved for undesignated tithes", c)
		}
		known[c] = true
		ordered = append(ordered, c)
	}
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Engine{db: db, registry: registry, audit: recorder, categories: ordered, known: known}, nil
}

// credit is one planned balance increase
type credit struct {
	fundType   domain.FundType
	subType    string
	amount     decimal.Decimal
	campaignID *uint
}

// CreditFromPayments applies every credit of the batch in one transaction.
// Any failure rolls back the whole batch. Payments already credited by an
// earlier batch are skipped, which makes the call safe to retry.
func (e *Engine) CreditFromPayments(ctx context.Context, paymentIDs []uint, initiatedBy uint) (Result, error) {
	var result Result
	touched := make(map[uint]domain.FundAccount)
	var order []uint

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range paymentIDs {
			var p domain.Payment
			if err := tx.First(&p, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: payment %d", domain.ErrNotFound, id)
				}
				return err
			}
			if !p.Completed || p.IsExpense || p.Category == domain.CategoryExpense {
				result.SkippedPayments = append(result.SkippedPayments, id)
				continue
			}

			marker := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.ProcessedPayment{PaymentID: p.ID})
			if marker.Error != nil {
				return fmt.Errorf("mark payment %d processed: %w", p.ID, marker.Error)
			}
			if marker.RowsAffected == 0 {
				result.SkippedPayments = append(result.SkippedPayments, id)
				continue
			}

			credits, err := e.route(p)
			if err != nil {
				return err
			}
			src := fund.Source{Type: domain.SourcePayment, Ref: strconv.FormatUint(uint64(p.ID), 10)}
			for _, c := range credits {
				acct, err := e.registry.EnsureAccount(tx, c.fundType, c.subType)
				if err != nil {
					return err
				}
				if c.campaignID != nil && acct.LinkedCampaignID == nil {
					if err := e.registry.LinkCampaign(tx, acct.ID, *c.campaignID); err != nil {
						return err
					}
				}
				acct, err = e.registry.Credit(tx, acct.ID, c.amount, src)
				if err != nil {
					return err
				}
				if _, seen := touched[acct.ID]; !seen {
					order = append(order, acct.ID)
				}
				touched[acct.ID] = acct
			}
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"payment_ids": paymentIDs,
			"error":       err.Error(),
		}).Error("Ledger credit batch failed")
		e.audit.Record(ctx, domain.AuditEntry{
			ActionType:  domain.ActionLedgerCredit,
			InitiatedBy: initiatedBy,
			Payload:     map[string]any{"payment_ids": paymentIDs, "error": err.Error()},
			Status:      domain.AuditFailure,
		})
		return Result{}, err
	}

	for _, id := range order {
		result.CreditedAccounts = append(result.CreditedAccounts, touched[id])
	}
	logrus.WithFields(logrus.Fields{
		"payment_ids": paymentIDs,
		"accounts":    len(result.CreditedAccounts),
		"skipped":     len(result.SkippedPayments),
	}).Info("Ledger credit batch applied")
	e.audit.Record(ctx, domain.AuditEntry{
		ActionType:  domain.ActionLedgerCredit,
		InitiatedBy: initiatedBy,
		Payload: map[string]any{
			"payment_ids": paymentIDs,
			"accounts":    order,
			"skipped":     result.SkippedPayments,
		},
		Status: domain.AuditSuccess,
	})
	return result, nil
}

// route decides which accounts a payment credits
func (e *Engine) route(p domain.Payment) ([]credit, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment %d has non-positive amount %s", domain.ErrValidation, p.ID, p.Amount)
	}
	switch p.Category {
	case domain.CategoryTithe:
		selected, err := e.designations(p)
		if err != nil {
			return nil, err
		}
		if len(selected) == 0 {
			return []credit{{fundType: domain.FundTithe, subType: domain.GeneralTitheSubType, amount: p.Amount}}, nil
		}
		shares := splitEvenly(p.Amount, len(selected))
		credits := make([]credit, 0, len(selected))
		for i, category := range selected {
			// sub-cent tithes leave trailing categories with nothing
			if shares[i].IsPositive() {
				credits = append(credits, credit{fundType: domain.FundTithe, subType: category, amount: shares[i]})
			}
		}
		return credits, nil
	case domain.CategorySpecialContribution:
		code := strings.TrimSpace(p.CampaignCode)
		if code == "" {
			return nil, fmt.Errorf("%w: special contribution %d has no campaign code", domain.ErrValidation, p.ID)
		}
		return []credit{{fundType: domain.FundSpecialContribution, subType: code, amount: p.Amount, campaignID: p.CampaignID}}, nil
	case domain.CategoryOffering:
		return []credit{{fundType: domain.FundGeneralOffering, amount: p.Amount}}, nil
	case domain.CategoryDonation:
		return []credit{{fundType: domain.FundDonation, amount: p.Amount}}, nil
	default:
		return nil, fmt.Errorf("%w: payment %d has unknown category %q", domain.ErrValidation, p.ID, p.Category)
	}
}

// designations returns the selected tithe categories in configured order
func (e *Engine) designations(p domain.Payment) ([]string, error) {
	chosen := make(map[string]bool, len(p.TitheDesignations))
	var unknown []string
	for name, on := range p.TitheDesignations {
		if !on {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if !e.known[name] {
			unknown = append(unknown, name)
			continue
		}
		chosen[name] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: payment %d has unknown tithe designations %v", domain.ErrValidation, p.ID, unknown)
	}
	selected := make([]string, 0, len(chosen))
	for _, c := range e.categories {
		if chosen[c] {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// splitEvenly divides amount into n shares of whole cents. The shares sum to
// amount exactly; the remainder goes to the first share.
func splitEvenly(amount decimal.Decimal, n int) []decimal.Decimal {
	count := decimal.NewFromInt(int64(n))
	share := amount.Div(count).RoundDown(2)
	residual := amount.Sub(share.Mul(count))
	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = share
	}
	shares[0] = shares[0].Add(residual)
	return shares
}
