package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/cradoe/leverpad/assets"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

const defaultTimeout = 3 * time.Second

// postgres error code for unique_violation
const uniqueViolation = "23505"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
	// ErrAlreadySettled is returned when a state transition finds the row
	// already in its terminal state.
	ErrAlreadySettled = errors.New("record already settled")
)

// Database interface defines available repositories
type Database interface {
	Profile() ProfileRepository
	Deposit() DepositRepository
	Order() OrderRepository
	Withdrawal() WithdrawalRepository
	Position() PositionRepository
	Activity() ActivityRepository

	Ping(ctx context.Context) error
	Close() error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DatabaseImpl implements the Database interface
type DatabaseImpl struct {
	db             *sqlx.DB
	profileRepo    ProfileRepository
	depositRepo    DepositRepository
	orderRepo      OrderRepository
	withdrawalRepo WithdrawalRepository
	positionRepo   PositionRepository
	activityRepo   ActivityRepository

	mu sync.Mutex
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return &DatabaseImpl{db: db}, nil
}

func (d *DatabaseImpl) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseImpl) Close() error {
	return d.db.Close()
}

func (d *DatabaseImpl) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (d *DatabaseImpl) Profile() ProfileRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.profileRepo == nil {
		d.profileRepo = NewProfileRepository(d.db)
	}
	return d.profileRepo
}

func (d *DatabaseImpl) Deposit() DepositRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.depositRepo == nil {
		d.depositRepo = NewDepositRepository(d.db)
	}
	return d.depositRepo
}

func (d *DatabaseImpl) Order() OrderRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.orderRepo == nil {
		d.orderRepo = NewOrderRepository(d.db)
	}
	return d.orderRepo
}

func (d *DatabaseImpl) Withdrawal() WithdrawalRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.withdrawalRepo == nil {
		d.withdrawalRepo = NewWithdrawalRepository(d.db)
	}
	return d.withdrawalRepo
}

func (d *DatabaseImpl) Position() PositionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.positionRepo == nil {
		d.positionRepo = NewPositionRepository(d.db)
	}
	return d.positionRepo
}

func (d *DatabaseImpl) Activity() ActivityRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activityRepo == nil {
		d.activityRepo = NewActivityRepository(d.db)
	}
	return d.activityRepo
}

// withTx runs fn inside a transaction and commits only when fn returns nil.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	// Rollback is a no-op once the transaction has been committed
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
