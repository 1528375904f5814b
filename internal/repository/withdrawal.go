package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type WithdrawalRepository interface {
	Request(ctx context.Context, walletAddress string, amount decimal.Decimal, check WithdrawalCheck) (*WithdrawalResult, error)
	GetOne(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error)
	ListByWallet(ctx context.Context, walletAddress string, limit int) ([]models.WithdrawalRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error)
	Resolve(ctx context.Context, id, status, notes string, refund bool) (*models.WithdrawalRequest, error)
}

// WithdrawalSnapshot is the state a withdrawal is judged against, read while
// the profile row is locked.
type WithdrawalSnapshot struct {
	Profile          models.Profile
	HasPending       bool
	LatestDepositAt  sql.NullTime
	LockedCollateral decimal.Decimal
}

// WithdrawalCheck decides whether a withdrawal may proceed. A non-nil error
// aborts the transaction and is returned unchanged.
type WithdrawalCheck func(snapshot WithdrawalSnapshot) error

type WithdrawalResult struct {
	Request          *models.WithdrawalRequest
	NewBalance       decimal.Decimal
	Available        decimal.Decimal
	LockedCollateral decimal.Decimal
}

type WithdrawalRepositoryImpl struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) WithdrawalRepository {
	return &WithdrawalRepositoryImpl{db: db}
}

const withdrawalColumns = `id, wallet_address, amount, status, notes, created_at, updated_at`

// Request debits the wallet and inserts a pending request in one transaction.
// The profile row is held FOR UPDATE while the snapshot is read so concurrent
// requests for the same wallet are serialized; the partial unique index on
// pending requests backs up the one-pending rule and surfaces as ErrDuplicate.
func (repo *WithdrawalRepositoryImpl) Request(ctx context.Context, walletAddress string, amount decimal.Decimal, check WithdrawalCheck) (*WithdrawalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result := &WithdrawalResult{}

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var snapshot WithdrawalSnapshot

		query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE wallet_address = $1 FOR UPDATE`
		err := tx.GetContext(ctx, &snapshot.Profile, query, walletAddress)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		query = `SELECT EXISTS (SELECT 1 FROM withdrawal_requests WHERE wallet_address = $1 AND status = $2)`
		if err := tx.GetContext(ctx, &snapshot.HasPending, query, walletAddress, models.WithdrawalStatusPending); err != nil {
			return err
		}

		query = `
			SELECT created_at FROM deposit_transactions
			WHERE wallet_address = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT 1`
		err = tx.GetContext(ctx, &snapshot.LatestDepositAt, query, walletAddress, models.DepositStatusCompleted)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		err = tx.GetContext(ctx, &snapshot.LockedCollateral, lockedCollateralQuery, walletAddress, pq.Array(models.CollateralLockingStatuses))
		if err != nil {
			return err
		}

		if err := check(snapshot); err != nil {
			return err
		}

		result.LockedCollateral = snapshot.LockedCollateral
		result.Available = snapshot.Profile.SolBalance.Sub(snapshot.LockedCollateral)

		query = `
			UPDATE user_profiles SET sol_balance = sol_balance - $1, updated_at = NOW()
			WHERE wallet_address = $2
			RETURNING sol_balance`
		if err := tx.GetContext(ctx, &result.NewBalance, query, amount, walletAddress); err != nil {
			return err
		}

		var request models.WithdrawalRequest
		query = `
			INSERT INTO withdrawal_requests (wallet_address, amount, status)
			VALUES ($1, $2, $3)
			RETURNING ` + withdrawalColumns
		err = tx.GetContext(ctx, &request, query, walletAddress, amount, models.WithdrawalStatusPending)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		result.Request = &request

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (repo *WithdrawalRepositoryImpl) GetOne(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var request models.WithdrawalRequest

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	err := repo.db.GetContext(ctx, &request, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &request, true, nil
}

func (repo *WithdrawalRepositoryImpl) ListByWallet(ctx context.Context, walletAddress string, limit int) ([]models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	requests := []models.WithdrawalRequest{}

	query := `
		SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := repo.db.SelectContext(ctx, &requests, query, walletAddress, limit); err != nil {
		return nil, err
	}

	return requests, nil
}

func (repo *WithdrawalRepositoryImpl) List(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	requests := []models.WithdrawalRequest{}

	query := `
		SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := repo.db.SelectContext(ctx, &requests, query, status, limit, offset); err != nil {
		return nil, err
	}

	return requests, nil
}

// Resolve moves a pending request to status. When refund is set on a
// rejection, the requested amount goes back to the wallet in the same
// transaction. Requests that are no longer pending yield ErrAlreadySettled.
func (repo *WithdrawalRepositoryImpl) Resolve(ctx context.Context, id, status, notes string, refund bool) (*models.WithdrawalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var request models.WithdrawalRequest

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
		err := tx.GetContext(ctx, &request, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		if request.Status != models.WithdrawalStatusPending {
			return ErrAlreadySettled
		}

		query = `
			UPDATE withdrawal_requests SET status = $1, notes = NULLIF($2, ''), updated_at = NOW()
			WHERE id = $3
			RETURNING ` + withdrawalColumns
		if err := tx.GetContext(ctx, &request, query, status, notes, id); err != nil {
			return err
		}

		if refund && status == models.WithdrawalStatusRejected {
			if _, err := creditSol(ctx, tx, request.WalletAddress, request.Amount); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &request, nil
}
