package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/cradoe/leverpad/internal/deposit"
	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/geo"
	"github.com/cradoe/leverpad/internal/request"
	"github.com/cradoe/leverpad/internal/response"
	"github.com/cradoe/leverpad/internal/router"
	"github.com/shopspring/decimal"
)

const maxPostbackBytes = 64 << 10

type DepositVerifier interface {
	Verify(ctx context.Context, in deposit.VerifyInput) (*deposit.VerifyResult, error)
}

type WalletRouter interface {
	Pick(ctx context.Context, ip string, amount decimal.Decimal) router.Selection
	Suggest(ctx context.Context, ip string) router.Suggestion
}

type OrderDesk interface {
	CreateOrder(ctx context.Context, in deposit.CreateOrderInput) (*deposit.CreateOrderResult, error)
	HandlePostback(ctx context.Context, body []byte, signature string) (*deposit.PostbackResult, error)
}

type DepositHandler struct {
	Verifier   DepositVerifier
	Router     WalletRouter
	Orders     OrderDesk
	ErrHandler *errHandler.ErrorRepository
}

func NewDepositHandler(handler *DepositHandler) *DepositHandler {
	return &DepositHandler{
		Verifier:   handler.Verifier,
		Router:     handler.Router,
		Orders:     handler.Orders,
		ErrHandler: handler.ErrHandler,
	}
}

func (h *DepositHandler) HandleVerifyDeposit(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress string          `json:"walletAddress"`
		Amount        decimal.Decimal `json:"amount"`
		TxID          string          `json:"txid"`
		TargetWallet  string          `json:"targetWallet"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	res, err := h.Verifier.Verify(r.Context(), deposit.VerifyInput{
		WalletAddress: input.WalletAddress,
		Amount:        input.Amount,
		TxID:          input.TxID,
		TargetWallet:  input.TargetWallet,
		ClientIP:      geo.ClientIP(r),
	})
	if err != nil {
		h.ErrHandler.ServiceError(w, r, err)
		return
	}

	message := "Deposit verified successfully"
	if res.AlreadyProcessed {
		message = "Transaction already processed"
	}

	data := map[string]any{
		"newBalance":       toFloat(res.NewBalance),
		"amount":           toFloat(res.Amount),
		"platformWallet":   res.PlatformWallet,
		"countryCode":      res.CountryCode,
		"alreadyProcessed": res.AlreadyProcessed,
		"verificationPath": res.VerificationPath,
	}

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleDepositIntent picks the platform wallet a new deposit should go to.
func (h *DepositHandler) HandleDepositIntent(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Amount decimal.Decimal `json:"amount"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	if !input.Amount.IsPositive() {
		h.ErrHandler.FailedValidation(w, r, []string{"Amount must be a positive number"})
		return
	}

	selection := h.Router.Pick(r.Context(), geo.ClientIP(r), input.Amount)

	data := map[string]any{
		"walletAddress": selection.WalletAddress,
		"countryCode":   selection.CountryCode,
		"reason":        selection.Reason,
	}

	err = response.JSONOkResponse(w, data, "Deposit wallet selected", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *DepositHandler) HandleDepositWallet(w http.ResponseWriter, r *http.Request) {
	suggestion := h.Router.Suggest(r.Context(), geo.ClientIP(r))

	data := map[string]any{
		"walletAddress":    suggestion.WalletAddress,
		"countryCode":      suggestion.CountryCode,
		"isIsrael":         suggestion.IsHome,
		"detectionSource":  suggestion.Lookup.Source,
		"detectionReason":  suggestion.Lookup.Reason,
		"walletList":       suggestion.Wallets,
		"israelWallet":     suggestion.HomeWallet,
		"globalWallet":     suggestion.InternationalWallet,
		"isFallbackLookup": suggestion.Lookup.IsFallback,
	}

	headers := make(http.Header)
	headers.Set("Cache-Control", "no-store")

	err := response.JSONOkResponse(w, data, "Deposit wallet resolved", headers)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *DepositHandler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletAddress string          `json:"walletAddress"`
		AmountUsd     decimal.Decimal `json:"amountUsd"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	res, err := h.Orders.CreateOrder(r.Context(), deposit.CreateOrderInput{
		WalletAddress: input.WalletAddress,
		AmountUsd:     input.AmountUsd,
		UserAgent:     r.UserAgent(),
		ClientIP:      geo.ClientIP(r),
	})
	if err != nil {
		h.ErrHandler.ServiceError(w, r, err)
		return
	}

	data := map[string]any{
		"orderId":       res.OrderID,
		"orderAmount":   toFloat(res.OrderAmount),
		"merchantId":    res.MerchantID,
		"minDepositUsd": toFloat(res.MinDepositUsd),
		"assetSymbol":   res.AssetSymbol,
	}

	err = response.JSONCreatedResponse(w, data, "Deposit order created")
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandlePostback hands the raw body to the order desk; the signature covers
// the exact bytes the provider sent.
func (h *DepositHandler) HandlePostback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPostbackBytes))
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	res, err := h.Orders.HandlePostback(r.Context(), body, r.Header.Get("signature"))
	if err != nil {
		h.ErrHandler.ServiceError(w, r, err)
		return
	}

	data := map[string]any{
		"orderId":          res.OrderID,
		"status":           res.Status,
		"alreadyProcessed": res.AlreadyProcessed,
	}
	if res.CreditedSol.IsPositive() {
		data["creditedSol"] = toFloat(res.CreditedSol)
		data["newBalance"] = toFloat(res.NewBalance)
		data["priceSource"] = res.PriceSource
	}

	message := res.Message
	if message == "" {
		message = "Deposit credited"
	}

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
