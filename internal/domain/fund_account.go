package domain

import (
	"time"

	"github.com/shopspring/decimal" // Exact decimal arithmetic for money
)

// FundType is the kind of money pool a fund account holds
type FundType string

const (
	FundGeneralOffering     FundType = "general-offering"     // Sunday and general offerings
	FundDonation            FundType = "donation"             // Free-will donations
	FundTithe               FundType = "tithe"                // Tithes, optionally split by designation
	FundSpecialContribution FundType = "special-contribution" // Campaign-bound contributions
)

// GeneralTitheSubType holds tithes paid without any designation
const GeneralTitheSubType = "general"

// Valid reports whether t is one of the known fund types
func (t FundType) Valid() bool {
	switch t {
	case FundGeneralOffering, FundDonation, FundTithe, FundSpecialContribution:
		return true
	}
	return false
}

// FundAccount Model ("wallet"). An empty SubType means the account is not sub-typed.
type FundAccount struct {
	ID               uint            `gorm:"primaryKey" json:"id"`                                                              // Primary key
	FundType         FundType        `gorm:"size:32;not null;uniqueIndex:idx_fund_type_sub_type" json:"fund_type"`              // Fund type
	SubType          string          `gorm:"size:128;not null;default:'';uniqueIndex:idx_fund_type_sub_type" json:"sub_type"`   // Sub-type, "" when none
	Balance          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"balance"`                              // Current balance
	TotalCredited    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_credited"`                       // Sum of all credits
	TotalDebited     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_debited"`                        // Sum of all debits
	Active           bool            `gorm:"not null;default:true" json:"active"`                                               // Deactivated accounts are hidden, never deleted
	LinkedCampaignID *uint           `gorm:"index" json:"linked_campaign_id,omitempty"`                                         // Campaign for special contributions
	CreatedAt        time.Time       `json:"created_at"`                                                                        // Creation time
	UpdatedAt        time.Time       `json:"updated_at"`                                                                        // Last update time
}
