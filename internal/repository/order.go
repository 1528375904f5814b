package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

type OrderRepository interface {
	Insert(ctx context.Context, order *models.DepositOrder) (*models.DepositOrder, error)
	GetOne(ctx context.Context, orderID string) (*models.DepositOrder, bool, error)
	RecordStatus(ctx context.Context, orderID, status string, metadata types.NullJSONText) error
	Settle(ctx context.Context, settlement *OrderSettlement) (*CreditResult, error)
	ListByWallet(ctx context.Context, walletAddress string, limit int) ([]models.DepositOrder, error)
}

// OrderSettlement carries everything a paid postback changes: the order row,
// the wallet balance and the deposit record.
type OrderSettlement struct {
	Order   *models.DepositOrder
	Deposit *models.Deposit
}

type OrderRepositoryImpl struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &OrderRepositoryImpl{db: db}
}

const orderColumns = `order_id, wallet_address, requested_usd, asset_symbol, status, payment_id, transaction_id,
	tx_hash, paid_usd, paid_asset_amount, paid_asset_symbol, credited_sol, verification_source, metadata,
	created_at, updated_at`

func (repo *OrderRepositoryImpl) Insert(ctx context.Context, order *models.DepositOrder) (*models.DepositOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created models.DepositOrder

	query := `
		INSERT INTO deposit_orders (order_id, wallet_address, requested_usd, asset_symbol, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + orderColumns

	err := repo.db.GetContext(ctx, &created, query,
		order.OrderID,
		order.WalletAddress,
		order.RequestedUsd,
		order.AssetSymbol,
		order.Status,
		order.Metadata,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *OrderRepositoryImpl) GetOne(ctx context.Context, orderID string) (*models.DepositOrder, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var order models.DepositOrder

	query := `SELECT ` + orderColumns + ` FROM deposit_orders WHERE order_id = $1`

	err := repo.db.GetContext(ctx, &order, query, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &order, true, nil
}

// RecordStatus stores a non-paid postback. A completed order is never moved
// back out of completed.
func (repo *OrderRepositoryImpl) RecordStatus(ctx context.Context, orderID, status string, metadata types.NullJSONText) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		UPDATE deposit_orders
		SET status = $1, metadata = COALESCE($2, metadata), updated_at = NOW()
		WHERE order_id = $3 AND status <> $4`

	_, err := repo.db.ExecContext(ctx, query, status, metadata, orderID, models.OrderStatusCompleted)
	return err
}

// Settle marks the order completed, credits the wallet and records the
// deposit in a single transaction. The order row is locked first; an order
// that is already completed yields ErrAlreadySettled and nothing is written.
func (repo *OrderRepositoryImpl) Settle(ctx context.Context, settlement *OrderSettlement) (*CreditResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	order := settlement.Order
	result := &CreditResult{}

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM deposit_orders WHERE order_id = $1 FOR UPDATE`, order.OrderID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		if status == models.OrderStatusCompleted {
			return ErrAlreadySettled
		}

		newBalance, err := creditSol(ctx, tx, order.WalletAddress, order.CreditedSol.Decimal)
		if err != nil {
			return err
		}
		result.NewBalance = newBalance

		query := `
			UPDATE deposit_orders
			SET status = $1, transaction_id = $2, payment_id = $3, tx_hash = $4, paid_usd = $5,
				paid_asset_amount = $6, paid_asset_symbol = $7, credited_sol = $8, verification_source = $9,
				metadata = COALESCE($10, metadata), updated_at = NOW()
			WHERE order_id = $11`

		_, err = tx.ExecContext(ctx, query,
			models.OrderStatusCompleted,
			order.TransactionID,
			order.PaymentID,
			order.TxHash,
			order.PaidUsd,
			order.PaidAssetAmount,
			order.PaidAssetSymbol,
			order.CreditedSol,
			order.VerificationSource,
			order.Metadata,
			order.OrderID,
		)
		if err != nil {
			return err
		}

		recordErr, err := insertDepositUnderSavepoint(ctx, tx, settlement.Deposit)
		if errors.Is(err, ErrDuplicate) {
			// the order row is the replay guard on this rail; an existing
			// deposit row for the order id is not a reason to undo the credit
			result.RecordErr = err
			return nil
		}
		if err != nil {
			return err
		}
		result.RecordErr = recordErr

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (repo *OrderRepositoryImpl) ListByWallet(ctx context.Context, walletAddress string, limit int) ([]models.DepositOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	orders := []models.DepositOrder{}

	query := `
		SELECT ` + orderColumns + ` FROM deposit_orders
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := repo.db.SelectContext(ctx, &orders, query, walletAddress, limit); err != nil {
		return nil, err
	}

	return orders, nil
}
