package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusPending    = "pending"
	PositionStatusOpening    = "opening"
	PositionStatusOpen       = "open"
	PositionStatusClosing    = "closing"
	PositionStatusClosed     = "closed"
	PositionStatusLiquidated = "liquidated"
	PositionStatusCancelled  = "cancelled"
)

// CollateralLockingStatuses are the non-terminal statuses whose collateral is
// not available for withdrawal.
var CollateralLockingStatuses = []string{
	PositionStatusPending,
	PositionStatusOpening,
	PositionStatusOpen,
	PositionStatusClosing,
}

// TradingPosition is owned by the trading engine; this service only reads it.
type TradingPosition struct {
	ID            string          `db:"id"`
	WalletAddress string          `db:"wallet_address"`
	TokenSymbol   string          `db:"token_symbol"`
	Direction     string          `db:"direction"`
	Leverage      decimal.Decimal `db:"leverage"`
	CollateralSol decimal.Decimal `db:"collateral_sol"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (p TradingPosition) LocksCollateral() bool {
	return slices.Contains(CollateralLockingStatuses, p.Status)
}
