package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Profile is a user keyed by wallet address. Balance is the fiat-equivalent
// ledger, SolBalance the native-asset ledger that deposits and withdrawals move.
type Profile struct {
	ID            string          `db:"id"`
	WalletAddress string          `db:"wallet_address"`
	Username      sql.NullString  `db:"username"`
	AvatarURL     sql.NullString  `db:"avatar_url"`
	Balance       decimal.Decimal `db:"balance"`
	SolBalance    decimal.Decimal `db:"sol_balance"`
	IsBanned      bool            `db:"is_banned"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}
