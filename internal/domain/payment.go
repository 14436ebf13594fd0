package domain

import "github.com/shopspring/decimal"

// PaymentCategory is the purpose a payer chose for a payment
type PaymentCategory string

const (
	CategoryTithe               PaymentCategory = "tithe"
	CategoryOffering            PaymentCategory = "offering"
	CategoryDonation            PaymentCategory = "donation"
	CategorySpecialContribution PaymentCategory = "special-contribution"
	CategoryExpense             PaymentCategory = "expense"
)

// Payment is the ledger's read-only projection of a payment owned by the
// payment-intake subsystem.
type Payment struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Category          PaymentCategory `gorm:"size:32;not null;index" json:"category"`
	Completed         bool            `gorm:"not null;default:false" json:"completed"`
	IsExpense         bool            `gorm:"not null;default:false" json:"is_expense"`
	TitheDesignations map[string]bool `gorm:"type:text;serializer:json" json:"tithe_designations,omitempty"`
	CampaignID        *uint           `json:"campaign_id,omitempty"`
	CampaignCode      string          `gorm:"size:64" json:"campaign_code,omitempty"`
}

// ProcessedPayment marks a payment whose credits have already been applied
type ProcessedPayment struct {
	PaymentID  uint  `gorm:"primaryKey;autoIncrement:false"`
	CreditedAt int64 `gorm:"autoCreateTime:milli"`
}
