package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

const (
	DepositStatusPending   = "pending"
	DepositStatusCompleted = "completed"
	DepositStatusFailed    = "failed"
)

// verification sources recorded on deposit rows
const (
	DepositSourceOnChain  = "on-chain"
	DepositSourceFallback = "on-chain-instruction-scan"
	DepositSourcePostback = "atlos-postback"
)

// Deposit is one credited or attempted deposit. TxID is unique among rows
// that carry one and is the replay guard for on-chain credits; OrderID plays
// the same role for the off-ramp rail.
type Deposit struct {
	ID                 string              `db:"id"`
	WalletAddress      string              `db:"wallet_address"`
	Amount             decimal.Decimal     `db:"amount"`
	FiatAmountUsd      decimal.NullDecimal `db:"fiat_amount_usd"`
	AssetSymbol        string              `db:"asset_symbol"`
	Status             string              `db:"status"`
	TxID               sql.NullString      `db:"txid"`
	OrderID            sql.NullString      `db:"order_id"`
	PaymentID          sql.NullString      `db:"payment_id"`
	PlatformWallet     sql.NullString      `db:"platform_wallet"`
	IsVerified         bool                `db:"is_verified"`
	VerificationSource sql.NullString      `db:"verification_source"`
	Metadata           types.NullJSONText  `db:"metadata"`
	CreatedAt          time.Time           `db:"created_at"`
}
