package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the lifecycle state of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalApproved  WithdrawalStatus = "APPROVED" // reserved, no transition leads here
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
)

// Terminal reports whether no further transition is possible
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalRejected
}

// TransferMethod is how money leaves the church once a withdrawal completes
type TransferMethod string

const (
	MethodBank        TransferMethod = "bank"
	MethodMobileMoney TransferMethod = "mobile-money"
	MethodCash        TransferMethod = "cash"
)

// Valid reports whether m is a known transfer method
func (m TransferMethod) Valid() bool {
	return m == MethodBank || m == MethodMobileMoney || m == MethodCash
}

// External reports whether the method moves money through the payment gateway
func (m TransferMethod) External() bool {
	return m == MethodBank || m == MethodMobileMoney
}

// TransferStatus tracks the gateway side of a completed withdrawal
type TransferStatus string

const (
	TransferNotRequired TransferStatus = "NOT_REQUIRED"
	TransferQueued      TransferStatus = "QUEUED"
	TransferSent        TransferStatus = "SENT"
	TransferFailed      TransferStatus = "FAILED"
)

// WithdrawalRequest Model
type WithdrawalRequest struct {
	ID                     uint             `gorm:"primaryKey" json:"id"`                                     // Primary key
	Reference              string           `gorm:"size:32;not null;uniqueIndex" json:"reference"`            // Externally visible token
	FundAccountID          uint             `gorm:"not null;index" json:"fund_account_id"`                    // Account to debit
	Amount                 decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"amount"`                // Requested amount
	Purpose                string           `gorm:"size:255;not null" json:"purpose"`                         // Why the money is needed
	Note                   string           `gorm:"type:text" json:"note,omitempty"`                          // Free-form note
	RequestedBy            uint             `gorm:"not null;index" json:"requested_by"`                       // Requesting officer
	TransferMethod         TransferMethod   `gorm:"size:16;not null" json:"transfer_method"`                  // bank, mobile-money or cash
	Destination            string           `gorm:"size:128" json:"destination,omitempty"`                    // Account number or phone
	Status                 WithdrawalStatus `gorm:"size:16;not null;index;default:PENDING" json:"status"`     // Lifecycle state
	RequiredApprovals      int              `gorm:"not null" json:"required_approvals"`                       // Threshold M
	ApprovalsSoFar         int              `gorm:"not null;default:0" json:"approvals_so_far"`               // Approvals recorded
	RejectedBy             *uint            `json:"rejected_by,omitempty"`                                    // Approver that rejected
	RejectionReason        string           `gorm:"type:text" json:"rejection_reason,omitempty"`              // Reason given on rejection
	TransferStatus         TransferStatus   `gorm:"size:16;not null;default:NOT_REQUIRED" json:"transfer_status"` // Gateway progress
	ExternalTransactionRef *string          `gorm:"size:128" json:"external_transaction_ref,omitempty"`       // Gateway transaction id
	ExternalReference      *string          `gorm:"size:128" json:"external_reference,omitempty"`             // Gateway-side reference
	TransferError          string           `gorm:"type:text" json:"transfer_error,omitempty"`                // Last gateway failure
	CompletedAt            *time.Time       `json:"completed_at,omitempty"`                                   // Set once, on completion
	CreatedAt              time.Time        `json:"created_at"`                                               // Creation time
	UpdatedAt              time.Time        `json:"updated_at"`                                               // Last update time
}

// ApprovalMethod is the way an approver proved the approval
type ApprovalMethod string

const (
	ApprovalSharedSecret     ApprovalMethod = "shared-secret"
	ApprovalAlternateChannel ApprovalMethod = "alternate-channel"
)

// Approval Model, at most one per approver and request
type Approval struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	WithdrawalRequestID uint           `gorm:"not null;uniqueIndex:idx_request_approver" json:"withdrawal_request_id"`
	ApproverID          uint           `gorm:"not null;uniqueIndex:idx_request_approver" json:"approver_id"`
	Method              ApprovalMethod `gorm:"size:32;not null" json:"method"`
	Comment             string         `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// TableName keeps approvals grouped with their requests
func (Approval) TableName() string { return "withdrawal_approvals" }

// Expense Model, written exactly once per completed withdrawal
type Expense struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	FundAccountID uint            `gorm:"not null;index" json:"fund_account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Reference     string          `gorm:"size:32;not null;uniqueIndex" json:"reference"`
	Purpose       string          `gorm:"size:255;not null" json:"purpose"`
	Note          string          `gorm:"type:text" json:"note,omitempty"`
	RecordedBy    uint            `gorm:"not null" json:"recorded_by"`
	CreatedAt     time.Time       `json:"created_at"`
}
