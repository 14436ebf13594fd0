package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutboxStatus is the delivery state of a queued gateway transfer
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxSent       OutboxStatus = "SENT"
	OutboxFailed     OutboxStatus = "FAILED"
)

// TransferOutbox Model. Rows are written in the transaction that completes a
// withdrawal and drained by the transfer worker afterwards.
type TransferOutbox struct {
	ID                  uint            `gorm:"primaryKey"`
	WithdrawalRequestID uint            `gorm:"not null;uniqueIndex"`
	Reference           string          `gorm:"size:32;not null"`
	Amount              decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Method              TransferMethod  `gorm:"size:16;not null"`
	Destination         string          `gorm:"size:128;not null"`
	Purpose             string          `gorm:"size:255"`
	Status              OutboxStatus    `gorm:"size:16;not null;index:idx_outbox_due"`
	Attempts            int             `gorm:"not null;default:0"`
	LastError           string          `gorm:"type:text"`
	NextAttemptAt       time.Time       `gorm:"not null;index:idx_outbox_due"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName keeps the outbox table name singular
func (TransferOutbox) TableName() string { return "transfer_outbox" }
