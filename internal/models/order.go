package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending            = "pending"
	OrderStatusAwaitingSettlement = "awaiting_settlement"
	OrderStatusFailed             = "failed"
	OrderStatusCompleted          = "completed"
)

// DepositOrder is an off-ramp (card / fiat) deposit created before the user
// pays and settled by the provider's postback.
type DepositOrder struct {
	OrderID            string              `db:"order_id"`
	WalletAddress      string              `db:"wallet_address"`
	RequestedUsd       decimal.Decimal     `db:"requested_usd"`
	AssetSymbol        string              `db:"asset_symbol"`
	Status             string              `db:"status"`
	PaymentID          sql.NullString      `db:"payment_id"`
	TransactionID      sql.NullString      `db:"transaction_id"`
	TxHash             sql.NullString      `db:"tx_hash"`
	PaidUsd            decimal.NullDecimal `db:"paid_usd"`
	PaidAssetAmount    decimal.NullDecimal `db:"paid_asset_amount"`
	PaidAssetSymbol    sql.NullString      `db:"paid_asset_symbol"`
	CreditedSol        decimal.NullDecimal `db:"credited_sol"`
	VerificationSource sql.NullString      `db:"verification_source"`
	Metadata           types.NullJSONText  `db:"metadata"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`
}
