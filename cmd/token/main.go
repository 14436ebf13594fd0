// Command token mints a bearer token for an operator or service account.
package main

import (
	"flag" // Command-line flags
	"fmt"  // Output
	"time" // Token lifetime

	"fund_ledger/internal/config" // Configuration
	"fund_ledger/internal/utils"  // JWT helpers

	"github.com/sirupsen/logrus" // Logging
)

func main() {
	userID := flag.Uint("user", 0, "user id to embed in the token")
	role := flag.String("role", utils.RoleSystem, "treasurer, approver, admin or system")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.LoadConfig()
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET is not set")
	}
	if *userID == 0 {
		logrus.Fatal("-user is required")
	}
	token, err := utils.GenerateJWT(uint(*userID), *role, cfg.JWTSecret, *ttl)
	if err != nil {
		logrus.Fatalf("failed to generate token: %v", err)
	}
	fmt.Println(token)
}
