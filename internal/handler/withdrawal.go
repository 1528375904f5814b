package handler

import (
	"context"
	"net/http"

	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/request"
	"github.com/cradoe/leverpad/internal/response"
	"github.com/cradoe/leverpad/internal/validator"
	"github.com/cradoe/leverpad/internal/withdrawal"
	"github.com/shopspring/decimal"
)

type WithdrawalGate interface {
	Request(ctx context.Context, walletAddress string, amount decimal.Decimal) (*withdrawal.Result, error)
	Resolve(ctx context.Context, id, status, notes string, refund bool) (*models.WithdrawalRequest, error)
}

type WithdrawalHandler struct {
	Gate           WithdrawalGate
	WithdrawalRepo repository.WithdrawalRepository
	ErrHandler     *errHandler.ErrorRepository
}

func NewWithdrawalHandler(handler *WithdrawalHandler) *WithdrawalHandler {
	return &WithdrawalHandler{
		Gate:           handler.Gate,
		WithdrawalRepo: handler.WithdrawalRepo,
		ErrHandler:     handler.ErrHandler,
	}
}

func (h *WithdrawalHandler) HandleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress string          `json:"walletAddress"`
		Amount        decimal.Decimal `json:"amount"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	res, err := h.Gate.Request(r.Context(), input.WalletAddress, input.Amount)
	if err != nil {
		h.ErrHandler.ServiceError(w, r, err)
		return
	}

	data := map[string]any{
		"newBalance":             toFloat(res.NewBalance),
		"request":                withdrawalData(res.Request),
		"availableBalanceBefore": toFloat(res.AvailableBefore),
		"lockedCollateral":       toFloat(res.LockedCollateral),
	}

	err = response.JSONCreatedResponse(w, data, res.Message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WithdrawalHandler) HandleWithdrawalHistory(w http.ResponseWriter, r *http.Request) {
	walletAddress := r.PathValue("walletAddress")
	if !validator.IsWalletAddress(walletAddress) {
		h.ErrHandler.FailedValidation(w, r, []string{"A valid wallet address is required"})
		return
	}

	queryValues := retrieveUrlQueryValues(r)

	requests, err := h.WithdrawalRepo.ListByWallet(r.Context(), walletAddress, queryValues.Limit)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, withdrawalList(requests), "Withdrawal requests fetched successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
