package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var depositColumnNames = []string{
	"id", "wallet_address", "amount", "fiat_amount_usd", "asset_symbol", "status", "txid", "order_id",
	"payment_id", "platform_wallet", "is_verified", "verification_source", "metadata", "created_at",
}

func onChainDeposit() *models.Deposit {
	return &models.Deposit{
		WalletAddress:      testWallet,
		Amount:             decimal.RequireFromString("1.5"),
		Status:             models.DepositStatusCompleted,
		TxID:               sql.NullString{String: testTxID, Valid: true},
		PlatformWallet:     sql.NullString{String: "HomeWa11et11111111111111111111111111111111", Valid: true},
		IsVerified:         true,
		VerificationSource: sql.NullString{String: models.DepositSourceOnChain, Valid: true},
	}
}

func expectCredit(mock sqlmock.Sqlmock, newBalance string) {
	mock.ExpectQuery(sqlText("UPDATE user_profiles SET sol_balance = sol_balance + $1")).
		WithArgs(sqlmock.AnyArg(), testWallet).
		WillReturnRows(sqlmock.NewRows([]string{"sol_balance"}).AddRow(newBalance))
}

func TestCreditCommitsBalanceAndRecord(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDepositRepository(db)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	expectCredit(mock, "11.5")
	mock.ExpectExec("^SAVEPOINT deposit_record$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sqlText("INSERT INTO deposit_transactions")).
		WillReturnRows(sqlmock.NewRows(depositColumnNames).AddRow(
			"dep-1", testWallet, "1.5", nil, "SOL", models.DepositStatusCompleted, testTxID, nil,
			nil, "HomeWa11et11111111111111111111111111111111", true, models.DepositSourceOnChain, nil, createdAt,
		))
	mock.ExpectExec("^RELEASE SAVEPOINT deposit_record$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	deposit := onChainDeposit()
	res, err := repo.Credit(context.Background(), deposit)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("11.5").Equal(res.NewBalance))
	assert.NoError(t, res.RecordErr)
	assert.Equal(t, "dep-1", deposit.ID)
	assert.Equal(t, createdAt, deposit.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditDuplicateTxIDRollsBackCredit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDepositRepository(db)

	mock.ExpectBegin()
	expectCredit(mock, "11.5")
	mock.ExpectExec("^SAVEPOINT deposit_record$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sqlText("INSERT INTO deposit_transactions")).WillReturnError(uniqueViolationErr())
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT deposit_record$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	res, err := repo.Credit(context.Background(), onChainDeposit())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Nil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditKeepsBalanceWhenRecordInsertFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDepositRepository(db)

	insertErr := errors.New("value too long for type character varying")

	mock.ExpectBegin()
	expectCredit(mock, "11.5")
	mock.ExpectExec("^SAVEPOINT deposit_record$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sqlText("INSERT INTO deposit_transactions")).WillReturnError(insertErr)
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT deposit_record$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := repo.Credit(context.Background(), onChainDeposit())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("11.5").Equal(res.NewBalance))
	assert.ErrorIs(t, res.RecordErr, insertErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditUnknownWallet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDepositRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlText("UPDATE user_profiles SET sol_balance = sol_balance + $1")).
		WillReturnRows(sqlmock.NewRows([]string{"sol_balance"}))
	mock.ExpectRollback()

	_, err := repo.Credit(context.Background(), onChainDeposit())
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicateDeposit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDepositRepository(db)

	mock.ExpectQuery(sqlText("INSERT INTO deposit_transactions")).WillReturnError(uniqueViolationErr())

	_, err := repo.Insert(context.Background(), onChainDeposit())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTxIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDepositRepository(db)

	mock.ExpectQuery(sqlText("FROM deposit_transactions WHERE txid = $1")).
		WithArgs(testTxID).
		WillReturnRows(sqlmock.NewRows(depositColumnNames))

	deposit, found, err := repo.FindByTxID(context.Background(), testTxID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, deposit)
	assert.NoError(t, mock.ExpectationsWereMet())
}
