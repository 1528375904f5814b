package mocks

import (
	"context"

	"github.com/cradoe/leverpad/internal/chain"
	"github.com/stretchr/testify/mock"
)

type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) GetTransaction(ctx context.Context, signature string) (*chain.Transaction, error) {
	args := m.Called(ctx, signature)
	tx, _ := args.Get(0).(*chain.Transaction)
	return tx, args.Error(1)
}
