package repository

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "So11111111111111111111111111111111111111112"
	testTxID   = "5h6xBEauJ3PK6SWCZ1PGjBvj8vDdWG3KpwATGy1ARAXF"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	return sqlx.NewDb(raw, "postgres"), mock
}

// sqlText matches a statement containing s literally.
func sqlText(s string) string {
	return regexp.QuoteMeta(s)
}

func uniqueViolationErr() error {
	return &pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", uniqueViolationErr(), true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", uniqueViolationErr()), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}
