package repository

import (
	"context"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PositionRepository is read-only: trading positions are written by the
// trading engine, this service only needs their locked collateral.
type PositionRepository interface {
	LockedCollateral(ctx context.Context, walletAddress string) (decimal.Decimal, error)
	ListOpen(ctx context.Context, walletAddress string) ([]models.TradingPosition, error)
}

type PositionRepositoryImpl struct {
	db *sqlx.DB
}

func NewPositionRepository(db *sqlx.DB) PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

const lockedCollateralQuery = `
	SELECT COALESCE(SUM(collateral_sol), 0)
	FROM trading_positions
	WHERE wallet_address = $1 AND status = ANY($2)`

func (repo *PositionRepositoryImpl) LockedCollateral(ctx context.Context, walletAddress string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var locked decimal.Decimal

	err := repo.db.GetContext(ctx, &locked, lockedCollateralQuery, walletAddress, pq.Array(models.CollateralLockingStatuses))
	if err != nil {
		return decimal.Zero, err
	}

	return locked, nil
}

func (repo *PositionRepositoryImpl) ListOpen(ctx context.Context, walletAddress string) ([]models.TradingPosition, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	positions := []models.TradingPosition{}

	query := `
		SELECT id, wallet_address, token_symbol, direction, leverage, collateral_sol, status, created_at, updated_at
		FROM trading_positions
		WHERE wallet_address = $1 AND status = ANY($2)
		ORDER BY created_at DESC`

	err := repo.db.SelectContext(ctx, &positions, query, walletAddress, pq.Array(models.CollateralLockingStatuses))
	if err != nil {
		return nil, err
	}

	return positions, nil
}
