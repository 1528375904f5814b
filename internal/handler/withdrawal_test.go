package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/cradoe/leverpad/internal/mocks"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/withdrawal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWithdrawalHandler(t *testing.T, ledger *mocks.MemoryLedger) *WithdrawalHandler {
	t.Helper()

	gate := withdrawal.NewGate(withdrawal.Options{
		Store:  ledger.Withdrawal(),
		Policy: withdrawal.Policy{MinAmount: decimal.RequireFromString("0.04"), LockDays: 90},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return NewWithdrawalHandler(&WithdrawalHandler{
		Gate:           gate,
		WithdrawalRepo: ledger.Withdrawal(),
		ErrHandler:     newTestErrHandler(),
	})
}

func TestHandleRequestWithdrawal(t *testing.T) {
	ledger := mocks.NewMemoryLedger()
	ledger.AddProfile(userWallet, decimal.NewFromInt(5))
	ledger.AddPosition(models.TradingPosition{
		WalletAddress: userWallet,
		CollateralSol: decimal.NewFromInt(1),
		Status:        models.PositionStatusOpen,
	})
	h := newWithdrawalHandler(t, ledger)

	req := jsonRequest(t, http.MethodPost, "/v1/withdrawals", `{"walletAddress":"`+userWallet+`","amount":2}`)
	rr, env := serve(t, h.HandleRequestWithdrawal, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Withdrawal request submitted for 2.0000 SOL.", env.Message)

	data := decodeData[struct {
		NewBalance             float64                `json:"newBalance"`
		AvailableBalanceBefore float64                `json:"availableBalanceBefore"`
		LockedCollateral       float64                `json:"lockedCollateral"`
		Request                WithdrawalResponseData `json:"request"`
	}](t, env)
	assert.Equal(t, 3.0, data.NewBalance)
	assert.Equal(t, 4.0, data.AvailableBalanceBefore)
	assert.Equal(t, 1.0, data.LockedCollateral)
	assert.Equal(t, models.WithdrawalStatusPending, data.Request.Status)
	assert.Equal(t, 2.0, data.Request.Amount)

	rr, env = serve(t, h.HandleRequestWithdrawal, jsonRequest(t, http.MethodPost, "/v1/withdrawals", `{"walletAddress":"`+userWallet+`","amount":1}`))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "You already have a pending withdrawal request. Please wait for it to be processed.", env.Message)
	assert.Equal(t, env.Message, env.Error)
}

func TestHandleRequestWithdrawalTopLevelFields(t *testing.T) {
	ledger := mocks.NewMemoryLedger()
	ledger.AddProfile(userWallet, decimal.NewFromInt(5))
	h := newWithdrawalHandler(t, ledger)

	rr, _ := serve(t, h.HandleRequestWithdrawal, jsonRequest(t, http.MethodPost, "/v1/withdrawals", `{"walletAddress":"`+userWallet+`","amount":2}`))
	require.Equal(t, http.StatusCreated, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 3.0, body["newBalance"])
	assert.Equal(t, 5.0, body["availableBalanceBefore"])
	assert.Equal(t, float64(http.StatusCreated), body["status"])
	assert.NotNil(t, body["data"])
	assert.NotContains(t, body, "error")
}

func TestHandleRequestWithdrawalErrorCarriesMessage(t *testing.T) {
	ledger := mocks.NewMemoryLedger()
	ledger.AddProfile(userWallet, decimal.NewFromInt(5))
	h := newWithdrawalHandler(t, ledger)

	rr, env := serve(t, h.HandleRequestWithdrawal, jsonRequest(t, http.MethodPost, "/v1/withdrawals", `{"walletAddress":"`+userWallet+`","amount":6}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Insufficient available balance. You have 5.0000 SOL available for withdrawal.", env.Error)
	assert.JSONEq(t, `{"available":5,"balance":5,"lockedCollateral":0}`, string(env.Details))
}

func TestHandleRequestWithdrawalRefusals(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		setup   func(l *mocks.MemoryLedger)
		status  int
		message string
	}{
		{
			name:    "below minimum",
			body:    `{"walletAddress":"` + userWallet + `","amount":0.01}`,
			status:  http.StatusBadRequest,
			message: "Minimum withdrawal is 0.04 SOL",
		},
		{
			name:    "insufficient",
			body:    `{"walletAddress":"` + userWallet + `","amount":6}`,
			status:  http.StatusBadRequest,
			message: "Insufficient available balance. You have 5.0000 SOL available for withdrawal.",
		},
		{
			name: "locked after deposit",
			body: `{"walletAddress":"` + userWallet + `","amount":1}`,
			setup: func(l *mocks.MemoryLedger) {
				l.AddDeposit(models.Deposit{
					WalletAddress: userWallet,
					Amount:        decimal.NewFromInt(1),
					Status:        models.DepositStatusCompleted,
					CreatedAt:     time.Now().Add(-time.Hour),
				})
			},
			status:  http.StatusForbidden,
			message: "Withdrawals are locked for approximately 90 more day(s) after your most recent deposit.",
		},
		{
			name:    "unknown wallet",
			body:    `{"walletAddress":"` + otherWallet + `","amount":1}`,
			status:  http.StatusNotFound,
			message: "Profile not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := mocks.NewMemoryLedger()
			ledger.AddProfile(userWallet, decimal.NewFromInt(5))
			if tt.setup != nil {
				tt.setup(ledger)
			}
			h := newWithdrawalHandler(t, ledger)

			rr, env := serve(t, h.HandleRequestWithdrawal, jsonRequest(t, http.MethodPost, "/v1/withdrawals", tt.body))
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.message, env.Message)
			assert.Equal(t, tt.message, env.Error)
			assert.True(t, decimal.NewFromInt(5).Equal(ledger.Balance(userWallet)))
		})
	}
}

func TestHandleWithdrawalHistory(t *testing.T) {
	ledger := mocks.NewMemoryLedger()
	ledger.AddProfile(userWallet, decimal.NewFromInt(5))
	h := newWithdrawalHandler(t, ledger)

	_, err := h.Gate.Request(context.Background(), userWallet, decimal.NewFromInt(1))
	require.NoError(t, err)

	req := jsonRequest(t, http.MethodGet, "/v1/withdrawals/"+userWallet, nil)
	req.SetPathValue("walletAddress", userWallet)

	rr, env := serve(t, h.HandleWithdrawalHistory, req)
	require.Equal(t, http.StatusOK, rr.Code)

	list := decodeData[[]WithdrawalResponseData](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, userWallet, list[0].WalletAddress)

	req = jsonRequest(t, http.MethodGet, "/v1/withdrawals/nope", nil)
	req.SetPathValue("walletAddress", "nope")
	rr, _ = serve(t, h.HandleWithdrawalHistory, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
