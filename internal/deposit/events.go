package deposit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// CreditedEvent is published on every successful credit, either rail.
type CreditedEvent struct {
	WalletAddress string          `json:"walletAddress"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	TxID          string          `json:"txid,omitempty"`
	OrderID       string          `json:"orderId,omitempty"`
	Source        string          `json:"source"`
	CreditedAt    time.Time       `json:"creditedAt"`
}

// RecordMissingEvent carries a deposit row that could not be written after
// its credit committed. The reconcile worker turns it back into a row.
type RecordMissingEvent struct {
	WalletAddress      string              `json:"walletAddress"`
	Amount             decimal.Decimal     `json:"amount"`
	FiatAmountUsd      decimal.NullDecimal `json:"fiatAmountUsd"`
	AssetSymbol        string              `json:"assetSymbol"`
	TxID               string              `json:"txid,omitempty"`
	OrderID            string              `json:"orderId,omitempty"`
	PaymentID          string              `json:"paymentId,omitempty"`
	PlatformWallet     string              `json:"platformWallet,omitempty"`
	VerificationSource string              `json:"verificationSource"`
	Metadata           json.RawMessage     `json:"metadata,omitempty"`
	CreditedAt         time.Time           `json:"creditedAt"`
	Reason             string              `json:"reason"`
}

func NewRecordMissingEvent(d *models.Deposit, reason error) RecordMissingEvent {
	ev := RecordMissingEvent{
		WalletAddress:      d.WalletAddress,
		Amount:             d.Amount,
		FiatAmountUsd:      d.FiatAmountUsd,
		AssetSymbol:        d.AssetSymbol,
		TxID:               d.TxID.String,
		OrderID:            d.OrderID.String,
		PaymentID:          d.PaymentID.String,
		PlatformWallet:     d.PlatformWallet.String,
		VerificationSource: d.VerificationSource.String,
		CreditedAt:         d.CreatedAt,
	}
	if d.Metadata.Valid {
		ev.Metadata = json.RawMessage(d.Metadata.JSONText)
	}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	return ev
}

// Deposit rebuilds the completed deposit row described by the event.
func (ev RecordMissingEvent) Deposit() *models.Deposit {
	d := &models.Deposit{
		WalletAddress:      ev.WalletAddress,
		Amount:             ev.Amount,
		FiatAmountUsd:      ev.FiatAmountUsd,
		AssetSymbol:        ev.AssetSymbol,
		Status:             models.DepositStatusCompleted,
		TxID:               nullString(ev.TxID),
		OrderID:            nullString(ev.OrderID),
		PaymentID:          nullString(ev.PaymentID),
		PlatformWallet:     nullString(ev.PlatformWallet),
		IsVerified:         true,
		VerificationSource: nullString(ev.VerificationSource),
		CreatedAt:          ev.CreditedAt,
	}
	if len(ev.Metadata) > 0 {
		d.Metadata = types.NullJSONText{JSONText: types.JSONText(ev.Metadata), Valid: true}
	}
	return d
}

// Key is the idempotency key of the row, txid first.
func (ev RecordMissingEvent) Key() string {
	if ev.TxID != "" {
		return ev.TxID
	}
	return ev.OrderID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
