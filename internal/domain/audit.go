package domain

import "time"

// Audit action types
const (
	ActionLedgerCredit       = "ledger.credit"
	ActionFundDeactivate     = "fund.deactivate"
	ActionWithdrawalCreate   = "withdrawal.create"
	ActionWithdrawalApprove  = "withdrawal.approve"
	ActionWithdrawalReject   = "withdrawal.reject"
	ActionWithdrawalComplete = "withdrawal.complete"
	ActionTransferSent       = "withdrawal.transfer_sent"
	ActionTransferFailed     = "withdrawal.transfer_failed"
)

// Audit statuses
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEntry Model, append-only
type AuditEntry struct {
	ID          uint           `gorm:"primaryKey" json:"id"`                   // Primary key
	ActionType  string         `gorm:"size:64;not null;index" json:"action_type"` // What happened
	TargetID    string         `gorm:"size:64;index" json:"target_id"`         // Affected entity
	InitiatedBy uint           `gorm:"index" json:"initiated_by"`              // Acting user, 0 for the system
	Payload     map[string]any `gorm:"type:text;serializer:json" json:"payload"`         // Structured details
	Status      string         `gorm:"size:16;not null" json:"status"`         // success or failure
	CreatedAt   time.Time      `json:"created_at"`                             // Timestamp
}
