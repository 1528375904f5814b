package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	profileColumnNames    = []string{"id", "wallet_address", "username", "avatar_url", "balance", "sol_balance", "is_banned", "created_at", "updated_at"}
	withdrawalColumnNames = []string{"id", "wallet_address", "amount", "status", "notes", "created_at", "updated_at"}
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// expectSnapshot queues the reads done while the profile row is locked.
func expectSnapshot(mock sqlmock.Sqlmock, solBalance string, hasPending bool, locked string) {
	mock.ExpectQuery(sqlText("FROM user_profiles WHERE wallet_address = $1 FOR UPDATE")).
		WithArgs(testWallet).
		WillReturnRows(sqlmock.NewRows(profileColumnNames).
			AddRow("p-1", testWallet, nil, nil, "0", solBalance, false, testNow, testNow))
	mock.ExpectQuery(sqlText("SELECT EXISTS (SELECT 1 FROM withdrawal_requests")).
		WithArgs(testWallet, models.WithdrawalStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(hasPending))
	mock.ExpectQuery(sqlText("SELECT created_at FROM deposit_transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery(sqlText("SELECT COALESCE(SUM(collateral_sol), 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(locked))
}

func TestWithdrawalRequestDebitsAndInsertsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	expectSnapshot(mock, "10", false, "3")
	mock.ExpectQuery(sqlText("UPDATE user_profiles SET sol_balance = sol_balance - $1")).
		WithArgs(sqlmock.AnyArg(), testWallet).
		WillReturnRows(sqlmock.NewRows([]string{"sol_balance"}).AddRow("8"))
	mock.ExpectQuery(sqlText("INSERT INTO withdrawal_requests")).
		WillReturnRows(sqlmock.NewRows(withdrawalColumnNames).
			AddRow("w-1", testWallet, "2", models.WithdrawalStatusPending, nil, testNow, testNow))
	mock.ExpectCommit()

	var seen WithdrawalSnapshot
	res, err := repo.Request(context.Background(), testWallet, decimal.NewFromInt(2), func(s WithdrawalSnapshot) error {
		seen = s
		return nil
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(10).Equal(seen.Profile.SolBalance))
	assert.False(t, seen.HasPending)
	assert.False(t, seen.LatestDepositAt.Valid)
	assert.True(t, decimal.NewFromInt(3).Equal(seen.LockedCollateral))

	assert.True(t, decimal.NewFromInt(8).Equal(res.NewBalance))
	assert.True(t, decimal.NewFromInt(7).Equal(res.Available))
	assert.Equal(t, "w-1", res.Request.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRequestPendingIndexViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	expectSnapshot(mock, "10", false, "0")
	mock.ExpectQuery(sqlText("UPDATE user_profiles SET sol_balance = sol_balance - $1")).
		WillReturnRows(sqlmock.NewRows([]string{"sol_balance"}).AddRow("8"))
	mock.ExpectQuery(sqlText("INSERT INTO withdrawal_requests")).WillReturnError(uniqueViolationErr())
	mock.ExpectRollback()

	res, err := repo.Request(context.Background(), testWallet, decimal.NewFromInt(2), func(WithdrawalSnapshot) error { return nil })
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Nil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRequestRefusedCheckWritesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWithdrawalRepository(db)

	refused := errors.New("pending request exists")

	mock.ExpectBegin()
	expectSnapshot(mock, "10", true, "0")
	mock.ExpectRollback()

	_, err := repo.Request(context.Background(), testWallet, decimal.NewFromInt(2), func(s WithdrawalSnapshot) error {
		if s.HasPending {
			return refused
		}
		return nil
	})
	assert.ErrorIs(t, err, refused)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalRequestUnknownProfile(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlText("FOR UPDATE")).WillReturnRows(sqlmock.NewRows(profileColumnNames))
	mock.ExpectRollback()

	_, err := repo.Request(context.Background(), testWallet, decimal.NewFromInt(2), func(WithdrawalSnapshot) error { return nil })
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalResolveRejectWithRefund(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlText("FROM withdrawal_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("w-1").
		WillReturnRows(sqlmock.NewRows(withdrawalColumnNames).
			AddRow("w-1", testWallet, "2", models.WithdrawalStatusPending, nil, testNow, testNow))
	mock.ExpectQuery(sqlText("UPDATE withdrawal_requests SET status = $1")).
		WithArgs(models.WithdrawalStatusRejected, "address typo", "w-1").
		WillReturnRows(sqlmock.NewRows(withdrawalColumnNames).
			AddRow("w-1", testWallet, "2", models.WithdrawalStatusRejected, "address typo", testNow, testNow))
	expectCredit(mock, "10")
	mock.ExpectCommit()

	req, err := repo.Resolve(context.Background(), "w-1", models.WithdrawalStatusRejected, "address typo", true)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, req.Status)
	assert.Equal(t, "address typo", req.Notes.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalResolveAlreadySettled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWithdrawalRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlText("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(withdrawalColumnNames).
			AddRow("w-1", testWallet, "2", models.WithdrawalStatusCompleted, nil, testNow, testNow))
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), "w-1", models.WithdrawalStatusRejected, "", true)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
