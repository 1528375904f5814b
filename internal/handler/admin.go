package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cradoe/leverpad/internal/config"
	"github.com/cradoe/leverpad/internal/context"
	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/request"
	"github.com/cradoe/leverpad/internal/response"
	"github.com/cradoe/leverpad/internal/validator"
	"github.com/pascaldekloe/jwt"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	DB         repository.Database
	Gate       WithdrawalGate
	Config     *config.Config
	ErrHandler *errHandler.ErrorRepository
}

func NewAdminHandler(handler *AdminHandler) *AdminHandler {
	return &AdminHandler{
		DB:         handler.DB,
		Gate:       handler.Gate,
		Config:     handler.Config,
		ErrHandler: handler.ErrHandler,
	}
}

// HandleIssueToken exchanges Basic credentials for a short-lived bearer token.
func (h *AdminHandler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	admin := context.ContextGetAuthenticatedAdmin(r)

	now := time.Now()
	expiry := now.Add(h.Config.Admin.TokenTTL)

	var claims jwt.Claims
	claims.Subject = admin.Username
	claims.Issued = jwt.NewNumericTime(now)
	claims.NotBefore = jwt.NewNumericTime(now)
	claims.Expires = jwt.NewNumericTime(expiry)

	claims.Issuer = h.Config.BaseURL
	claims.Audiences = []string{h.Config.BaseURL}

	jwtBytes, err := claims.HMACSign(jwt.HS256, []byte(h.Config.Jwt.SecretKey))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]string{
		"token":     string(jwtBytes),
		"expiresAt": expiry.UTC().Format(time.RFC3339),
	}

	err = response.JSONOkResponse(w, data, "Token issued", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleUpdateBalances overwrites one or both ledgers of a profile and writes
// the reason to the activity log.
func (h *AdminHandler) HandleUpdateBalances(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress string              `json:"walletAddress"`
		SolBalance    decimal.NullDecimal `json:"solBalance"`
		UsdBalance    decimal.NullDecimal `json:"usdBalance"`
		Reason        string              `json:"reason"`
		Validator     validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.WalletAddress = strings.TrimSpace(input.WalletAddress)
	input.Reason = strings.TrimSpace(input.Reason)

	input.Validator.Check(validator.IsWalletAddress(input.WalletAddress), "A valid wallet address is required")
	input.Validator.Check(input.SolBalance.Valid || input.UsdBalance.Valid, "Provide at least one of solBalance or usdBalance to update")
	input.Validator.Check(!input.SolBalance.Valid || !input.SolBalance.Decimal.IsNegative(), "solBalance must not be negative")
	input.Validator.Check(!input.UsdBalance.Valid || !input.UsdBalance.Decimal.IsNegative(), "usdBalance must not be negative")
	input.Validator.Check(validator.MaxRunes(input.Reason, 500), "Reason must not be more than 500 characters")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	profile, err := h.DB.Profile().UpdateBalances(r.Context(), input.WalletAddress, input.SolBalance, input.UsdBalance)
	if errors.Is(err, repository.ErrRecordNotFound) {
		response.JSONErrorResponse(w, nil, "User profile not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	reason := input.Reason
	if reason == "" {
		reason = "no reason given"
	}
	h.audit(r, profile.WalletAddress, repository.ActivityLogProfileEntity, profile.ID, fmt.Sprintf("balances set to sol=%s usd=%s: %s", profile.SolBalance, profile.Balance, reason))

	data := map[string]any{
		"walletAddress": profile.WalletAddress,
		"balance":       toFloat(profile.Balance),
		"solBalance":    toFloat(profile.SolBalance),
		"reason":        input.Reason,
	}

	err = response.JSONOkResponse(w, data, "Balances updated successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleToggleBan(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress string              `json:"walletAddress"`
		IsBanned      json.RawMessage     `json:"isBanned"`
		Validator     validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.WalletAddress = strings.TrimSpace(input.WalletAddress)

	// only a JSON boolean is accepted; "true" or 1 are refused
	raw := string(input.IsBanned)
	isBool := raw == "true" || raw == "false"
	banned := raw == "true"

	input.Validator.Check(validator.IsWalletAddress(input.WalletAddress), "A valid wallet address is required")
	input.Validator.Check(isBool, "isBanned boolean is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	profile, err := h.DB.Profile().SetBanned(r.Context(), input.WalletAddress, banned)
	if errors.Is(err, repository.ErrRecordNotFound) {
		response.JSONErrorResponse(w, nil, "User profile not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	description := "wallet unbanned"
	if banned {
		description = "wallet banned"
	}
	h.audit(r, profile.WalletAddress, repository.ActivityLogProfileEntity, profile.ID, description)

	data := map[string]any{
		"walletAddress": profile.WalletAddress,
		"isBanned":      profile.IsBanned,
		"updatedAt":     profile.UpdatedAt,
	}

	err = response.JSONOkResponse(w, data, "Ban status updated", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	queryValues := retrieveUrlQueryValues(r)

	if queryValues.Status != "" && !validator.PermittedValue(queryValues.Status,
		models.WithdrawalStatusPending, models.WithdrawalStatusCompleted, models.WithdrawalStatusRejected) {
		h.ErrHandler.FailedValidation(w, r, []string{"status must be pending, completed or rejected"})
		return
	}

	requests, err := h.DB.Withdrawal().List(r.Context(), queryValues.Status, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, withdrawalList(requests), "Withdrawal requests fetched successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
		Refund bool   `json:"refund"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	resolved, err := h.Gate.Resolve(r.Context(), r.PathValue("id"), input.Status, strings.TrimSpace(input.Notes), input.Refund)
	if err != nil {
		h.ErrHandler.ServiceError(w, r, err)
		return
	}

	description := "withdrawal " + resolved.Status
	if input.Refund {
		description += " and refunded"
	}
	h.audit(r, resolved.WalletAddress, repository.ActivityLogWithdrawalEntity, resolved.ID, description)

	err = response.JSONOkResponse(w, withdrawalData(resolved), "Withdrawal request resolved", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *AdminHandler) HandleListDeposits(w http.ResponseWriter, r *http.Request) {
	queryValues := retrieveUrlQueryValues(r)

	deposits, err := h.DB.Deposit().List(r.Context(), repository.DepositFilter{
		WalletAddress: r.URL.Query().Get("walletAddress"),
		Status:        queryValues.Status,
		Limit:         queryValues.Limit,
		Offset:        queryValues.Offset,
	})
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, depositList(deposits), "Deposits fetched successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// audit failures are logged and never fail the admin action
func (h *AdminHandler) audit(r *http.Request, walletAddress, entity, entityID, description string) {
	_, err := h.DB.Activity().Insert(r.Context(), &models.ActivityLog{
		WalletAddress: walletAddress,
		Entity:        entity,
		EntityId:      entityID,
		Description:   h.byAdmin(r, description),
	})
	if err != nil {
		h.ErrHandler.ReportServerError(r, err)
	}
}

func (h *AdminHandler) byAdmin(r *http.Request, description string) string {
	if admin := context.ContextGetAuthenticatedAdmin(r); admin != nil {
		return description + " (by " + admin.Username + ")"
	}
	return description
}
