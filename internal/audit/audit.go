// Package audit records administrative actions. Recording is best-effort:
// a failed write is logged and never affects the action being audited.
package audit

import (
	"context"

	"fund_ledger/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Recorder accepts audit entries
type Recorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// GormSink appends entries to the audit_entries table
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a sink writing through db
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// Record writes the entry, logging instead of returning any failure
func (s *GormSink) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Status == "" {
		entry.Status = domain.AuditSuccess
	}
	// Detach from request cancellation so a finished request still gets audited
	ctx = context.WithoutCancel(ctx)
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		logrus.WithFields(logrus.Fields{
			"action_type":  entry.ActionType,
			"target_id":    entry.TargetID,
			"initiated_by": entry.InitiatedBy,
			"error":        err.Error(),
		}).Error("Audit write failed")
	}
}

// Discard drops every entry
type Discard struct{}

// Record implements Recorder
func (Discard) Record(context.Context, domain.AuditEntry) {}
