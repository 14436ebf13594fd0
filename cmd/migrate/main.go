package main

import (
	"fund_ledger/internal/config" // Custom import path (Config)
	"fund_ledger/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	db.Migrate(cfg.DBDriver, db.DSN(cfg))
}
