package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type ProfileRepository interface {
	Insert(ctx context.Context, profile *models.Profile) (*models.Profile, error)
	GetByWallet(ctx context.Context, walletAddress string) (*models.Profile, bool, error)
	UpdateBalances(ctx context.Context, walletAddress string, solBalance, usdBalance decimal.NullDecimal) (*models.Profile, error)
	SetBanned(ctx context.Context, walletAddress string, banned bool) (*models.Profile, error)
	SetAvatar(ctx context.Context, walletAddress, avatarURL string) error
	List(ctx context.Context, limit, offset int) ([]models.Profile, error)
}

type ProfileRepositoryImpl struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &ProfileRepositoryImpl{db: db}
}

const profileColumns = `id, wallet_address, username, avatar_url, balance, sol_balance, is_banned, created_at, updated_at`

func (repo *ProfileRepositoryImpl) Insert(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created models.Profile

	query := `
		INSERT INTO user_profiles (wallet_address, username, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO NOTHING
		RETURNING ` + profileColumns

	err := repo.db.GetContext(ctx, &created, query,
		profile.WalletAddress,
		profile.Username,
		profile.AvatarURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *ProfileRepositoryImpl) GetByWallet(ctx context.Context, walletAddress string) (*models.Profile, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var profile models.Profile

	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE wallet_address = $1`

	err := repo.db.GetContext(ctx, &profile, query, walletAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &profile, true, nil
}

// UpdateBalances overwrites whichever of the two balances is valid and leaves
// the other untouched.
func (repo *ProfileRepositoryImpl) UpdateBalances(ctx context.Context, walletAddress string, solBalance, usdBalance decimal.NullDecimal) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var profile models.Profile

	query := `
		UPDATE user_profiles
		SET sol_balance = COALESCE($1, sol_balance),
			balance = COALESCE($2, balance),
			updated_at = NOW()
		WHERE wallet_address = $3
		RETURNING ` + profileColumns

	err := repo.db.GetContext(ctx, &profile, query, solBalance, usdBalance, walletAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (repo *ProfileRepositoryImpl) SetBanned(ctx context.Context, walletAddress string, banned bool) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var profile models.Profile

	query := `
		UPDATE user_profiles SET is_banned = $1, updated_at = NOW()
		WHERE wallet_address = $2
		RETURNING ` + profileColumns

	err := repo.db.GetContext(ctx, &profile, query, banned, walletAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (repo *ProfileRepositoryImpl) SetAvatar(ctx context.Context, walletAddress, avatarURL string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE user_profiles SET avatar_url = $1, updated_at = NOW() WHERE wallet_address = $2`

	res, err := repo.db.ExecContext(ctx, query, avatarURL, walletAddress)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (repo *ProfileRepositoryImpl) List(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	profiles := []models.Profile{}

	query := `SELECT ` + profileColumns + ` FROM user_profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	if err := repo.db.SelectContext(ctx, &profiles, query, limit, offset); err != nil {
		return nil, err
	}

	return profiles, nil
}

// creditSol adds amount to the wallet's native balance inside tx and returns
// the new balance. A missing profile yields ErrRecordNotFound.
func creditSol(ctx context.Context, tx *sqlx.Tx, walletAddress string, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal

	query := `
		UPDATE user_profiles SET sol_balance = sol_balance + $1, updated_at = NOW()
		WHERE wallet_address = $2
		RETURNING sol_balance`

	err := tx.GetContext(ctx, &newBalance, query, amount, walletAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrRecordNotFound
	}

	return newBalance, err
}
