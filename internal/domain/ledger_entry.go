package domain

import "github.com/shopspring/decimal"

// Entry directions
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Entry sources
const (
	SourcePayment    = "payment"
	SourceWithdrawal = "withdrawal"
)

// LedgerEntry Model, one row per balance mutation
type LedgerEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`                                  // Primary key
	FundAccountID uint            `gorm:"not null;index" json:"fund_account_id"`                 // Account that was mutated
	Direction     string          `gorm:"size:8;not null" json:"direction"`                      // credit or debit
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`             // Amount of the mutation
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance_after"`      // Balance once applied
	SourceType    string          `gorm:"size:16;not null;index:idx_entry_source" json:"source"` // payment or withdrawal
	SourceRef     string          `gorm:"size:64;index:idx_entry_source" json:"source_ref"`      // Payment id or withdrawal reference
	CreatedAt     int64           `gorm:"autoCreateTime:milli" json:"created_at"`                // Timestamp of creation in milliseconds
}
