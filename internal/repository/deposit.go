package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type DepositRepository interface {
	FindByTxID(ctx context.Context, txid string) (*models.Deposit, bool, error)
	LatestCompleted(ctx context.Context, walletAddress string) (*models.Deposit, bool, error)
	Insert(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error)
	Credit(ctx context.Context, deposit *models.Deposit) (*CreditResult, error)
	List(ctx context.Context, filter DepositFilter) ([]models.Deposit, error)
}

// CreditResult is the outcome of a balance credit. RecordErr is set when the
// balance was credited but the deposit row could not be written; the caller
// owns the follow-up for that gap.
type CreditResult struct {
	NewBalance decimal.Decimal
	RecordErr  error
}

type DepositFilter struct {
	WalletAddress string
	Status        string
	Limit         int
	Offset        int
}

type DepositRepositoryImpl struct {
	db *sqlx.DB
}

func NewDepositRepository(db *sqlx.DB) DepositRepository {
	return &DepositRepositoryImpl{db: db}
}

const depositColumns = `id, wallet_address, amount, fiat_amount_usd, asset_symbol, status, txid, order_id,
	payment_id, platform_wallet, is_verified, verification_source, metadata, created_at`

func (repo *DepositRepositoryImpl) FindByTxID(ctx context.Context, txid string) (*models.Deposit, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var deposit models.Deposit

	query := `SELECT ` + depositColumns + ` FROM deposit_transactions WHERE txid = $1 LIMIT 1`

	err := repo.db.GetContext(ctx, &deposit, query, txid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &deposit, true, nil
}

func (repo *DepositRepositoryImpl) LatestCompleted(ctx context.Context, walletAddress string) (*models.Deposit, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var deposit models.Deposit

	query := `
		SELECT ` + depositColumns + ` FROM deposit_transactions
		WHERE wallet_address = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	err := repo.db.GetContext(ctx, &deposit, query, walletAddress, models.DepositStatusCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &deposit, true, nil
}

// Insert writes a deposit row on its own. It is used by the reconcile worker
// to backfill rows whose credit already committed.
func (repo *DepositRepositoryImpl) Insert(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created models.Deposit

	err := repo.db.GetContext(ctx, &created, insertDepositQuery, depositArgs(deposit)...)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// Credit adds deposit.Amount to the wallet's native balance and records the
// deposit in one transaction. The record insert runs under a savepoint: a
// unique violation aborts the whole credit with ErrDuplicate, any other
// insert failure is rolled back alone and reported through RecordErr while
// the credit still commits.
func (repo *DepositRepositoryImpl) Credit(ctx context.Context, deposit *models.Deposit) (*CreditResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result := &CreditResult{}

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		newBalance, err := creditSol(ctx, tx, deposit.WalletAddress, deposit.Amount)
		if err != nil {
			return err
		}
		result.NewBalance = newBalance

		recordErr, err := insertDepositUnderSavepoint(ctx, tx, deposit)
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

func (repo *DepositRepositoryImpl) List(ctx context.Context, filter DepositFilter) ([]models.Deposit, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	deposits := []models.Deposit{}

	query := `
		SELECT ` + depositColumns + ` FROM deposit_transactions
		WHERE ($1 = '' OR wallet_address = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	err := repo.db.SelectContext(ctx, &deposits, query, filter.WalletAddress, filter.Status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}

	return deposits, nil
}

const insertDepositQuery = `
	INSERT INTO deposit_transactions (wallet_address, amount, fiat_amount_usd, asset_symbol, status, txid,
		order_id, payment_id, platform_wallet, is_verified, verification_source, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING ` + depositColumns

func depositArgs(d *models.Deposit) []any {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	asset := d.AssetSymbol
	if asset == "" {
		asset = "SOL"
	}

	return []any{
		d.WalletAddress,
		d.Amount,
		d.FiatAmountUsd,
		asset,
		d.Status,
		d.TxID,
		d.OrderID,
		d.PaymentID,
		d.PlatformWallet,
		d.IsVerified,
		d.VerificationSource,
		d.Metadata,
		createdAt,
	}
}

const depositSavepoint = "deposit_record"

// insertDepositUnderSavepoint leaves tx usable whatever happens to the insert.
// A unique violation comes back as err so the caller can decide whether the
// surrounding credit stands; any other insert failure comes back as recordErr.
func insertDepositUnderSavepoint(ctx context.Context, tx *sqlx.Tx, deposit *models.Deposit) (recordErr error, err error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+depositSavepoint); err != nil {
		return nil, err
	}

	var created models.Deposit
	err = tx.GetContext(ctx, &created, insertDepositQuery, depositArgs(deposit)...)
	if err == nil {
		deposit.ID = created.ID
		deposit.CreatedAt = created.CreatedAt
		_, err = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+depositSavepoint)
		return nil, err
	}

	if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+depositSavepoint); rbErr != nil {
		return nil, rbErr
	}

	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}

	return err, nil
}
