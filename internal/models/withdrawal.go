package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// A request moves pending -> completed | rejected, and only through an
// administrative action.
const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusCompleted = "completed"
	WithdrawalStatusRejected  = "rejected"
)

type WithdrawalRequest struct {
	ID            string          `db:"id"`
	WalletAddress string          `db:"wallet_address"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	Notes         sql.NullString  `db:"notes"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}
