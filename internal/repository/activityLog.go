// Every administrative or money-moving action is written here as an audit
// trail. entity and entity_id are polymorphic so the one table can describe
// deposits, orders, withdrawals and profiles alike.
package repository

import (
	"context"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/jmoiron/sqlx"
)

const (
	ActivityLogDepositEntity    = "deposit"
	ActivityLogOrderEntity      = "deposit_order"
	ActivityLogWithdrawalEntity = "withdrawal"
	ActivityLogProfileEntity    = "profile"
)

type ActivityRepository interface {
	Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error)
	ListByWallet(ctx context.Context, walletAddress string, limit int) ([]models.ActivityLog, error)
}

type ActivityRepositoryImpl struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) ActivityRepository {
	return &ActivityRepositoryImpl{db: db}
}

func (repo *ActivityRepositoryImpl) Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created models.ActivityLog

	query := `
		INSERT INTO activity_logs (wallet_address, entity, entity_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, wallet_address, entity, entity_id, description, created_at`

	err := repo.db.GetContext(ctx, &created, query,
		log.WalletAddress,
		log.Entity,
		log.EntityId,
		log.Description,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *ActivityRepositoryImpl) ListByWallet(ctx context.Context, walletAddress string, limit int) ([]models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	logs := []models.ActivityLog{}

	query := `
		SELECT id, wallet_address, entity, entity_id, description, created_at
		FROM activity_logs
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := repo.db.SelectContext(ctx, &logs, query, walletAddress, limit); err != nil {
		return nil, err
	}

	return logs, nil
}
