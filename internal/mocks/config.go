package mocks

import (
	"time"

	"github.com/cradoe/leverpad/internal/config"
	"github.com/shopspring/decimal"
)

const (
	AdminUsername = "ops"
	AdminPassword = "s3cret"
)

// NewConfig returns a configuration with admin access enabled and every
// outbound integration left unset.
func NewConfig() config.Config {
	cfg := config.Config{
		BaseURL:  "http://localhost:4444",
		HttpPort: 4444,
	}

	cfg.Wallets.Home = "HomeWa11et11111111111111111111111111111111"
	cfg.Wallets.International = "Int1Wa11et1111111111111111111111111111111111"
	cfg.Wallets.HomeCountry = "IL"

	cfg.Limits.MinDepositSol = decimal.RequireFromString("0.01")
	cfg.Limits.MinWithdrawalSol = decimal.RequireFromString("0.04")
	cfg.Limits.WithdrawalLockDays = 90

	cfg.Admin.Username = AdminUsername
	cfg.Admin.Password = AdminPassword
	cfg.Admin.TokenTTL = time.Hour
	cfg.Jwt.SecretKey = "test_secret"

	return cfg
}
