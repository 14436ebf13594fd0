package db

import (
	"fund_ledger/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/gorm" // GORM ORM library
)

// Models lists every table owned or read by the ledger core
func Models() []any {
	return []any{
		&domain.Payment{},
		&domain.ProcessedPayment{},
		&domain.FundAccount{},
		&domain.LedgerEntry{},
		&domain.WithdrawalRequest{},
		&domain.Approval{},
		&domain.Expense{},
		&domain.TransferOutbox{},
		&domain.AuditEntry{},
	}
}

// AutoMigrate creates tables, missing columns, constraints and indexes
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(Models()...)
}

// Migrate performs automatic migration for the database schema
func Migrate(driver, dsn string) {
	gdb, err := Open(driver, dsn) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	if err := AutoMigrate(gdb); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}
