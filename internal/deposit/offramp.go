package deposit

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cradoe/leverpad/internal/apperr"
	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/stream"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// provider status codes
const (
	StatusPaid               = 100
	StatusAwaitingSettlement = 10
	StatusFailed             = 59
	StatusCancelled          = 55
)

const offRampAsset = "USDC"

type Orders interface {
	Insert(ctx context.Context, order *models.DepositOrder) (*models.DepositOrder, error)
	GetOne(ctx context.Context, orderID string) (*models.DepositOrder, bool, error)
	RecordStatus(ctx context.Context, orderID, status string, metadata types.NullJSONText) error
	Settle(ctx context.Context, settlement *repository.OrderSettlement) (*repository.CreditResult, error)
}

type PriceSource interface {
	SolPrice(ctx context.Context) (decimal.Decimal, string)
}

type OffRampConfig struct {
	MerchantID    string
	ApiSecret     string
	MinDepositUsd decimal.Decimal
}

// OffRamp runs the card / fiat rail: orders are created up front and
// settled by a signed provider postback.
type OffRamp struct {
	notifier
	orders   Orders
	profiles Profiles
	prices   PriceSource
	locker   Locker
	cfg      OffRampConfig
	now      func() time.Time
}

type OffRampDeps struct {
	Orders    Orders
	Profiles  Profiles
	Prices    PriceSource
	Locker    Locker
	Publisher Publisher
	Metrics   *metrics.Metrics
}

func NewOffRamp(deps OffRampDeps, cfg OffRampConfig, logger *slog.Logger) *OffRamp {
	return &OffRamp{
		notifier: notifier{publisher: deps.Publisher, metrics: deps.Metrics, logger: logger},
		orders:   deps.Orders,
		profiles: deps.Profiles,
		prices:   deps.Prices,
		locker:   deps.Locker,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (o *OffRamp) configured() bool {
	return o.cfg.MerchantID != "" && o.cfg.ApiSecret != ""
}

type CreateOrderInput struct {
	WalletAddress string
	AmountUsd     decimal.Decimal
	UserAgent     string
	ClientIP      string
}

type CreateOrderResult struct {
	OrderID       string
	OrderAmount   decimal.Decimal
	MerchantID    string
	MinDepositUsd decimal.Decimal
	AssetSymbol   string
}

func (o *OffRamp) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	wallet := strings.TrimSpace(in.WalletAddress)
	if len(wallet) < 32 {
		return nil, apperr.Validation("walletAddress is required")
	}
	if !in.AmountUsd.IsPositive() {
		return nil, apperr.Validation("amountUsd must be a positive number")
	}

	if o.cfg.MerchantID == "" {
		o.logger.Error("off-ramp merchant id is not configured")
		return nil, apperr.Configuration("Server configuration error")
	}

	profile, found, err := o.profiles.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, apperr.Internal("Failed to validate profile", err)
	}
	if !found {
		return nil, apperr.Validation("Profile not found. Please create a profile before depositing.")
	}
	if profile.IsBanned {
		return nil, apperr.Forbidden("This wallet is currently banned from depositing.")
	}

	amount := decimal.Max(o.cfg.MinDepositUsd, in.AmountUsd.Round(2))

	orderID, err := newOrderID(o.now())
	if err != nil {
		return nil, apperr.Internal("Unable to create deposit order", err)
	}

	metadata, err := json.Marshal(map[string]any{
		"userAgent": nullIfEmpty(in.UserAgent),
		"ip":        nullIfEmpty(in.ClientIP),
	})
	if err != nil {
		return nil, apperr.Internal("Unable to create deposit order", err)
	}

	_, err = o.orders.Insert(ctx, &models.DepositOrder{
		OrderID:       orderID,
		WalletAddress: wallet,
		RequestedUsd:  amount,
		AssetSymbol:   offRampAsset,
		Status:        models.OrderStatusPending,
		Metadata:      types.NullJSONText{JSONText: metadata, Valid: true},
	})
	if err != nil {
		return nil, apperr.Internal("Unable to create deposit order", err)
	}

	o.logger.Info("deposit order created", "order_id", orderID, "wallet", wallet, "amount_usd", amount.StringFixed(2))

	return &CreateOrderResult{
		OrderID:       orderID,
		OrderAmount:   amount,
		MerchantID:    o.cfg.MerchantID,
		MinDepositUsd: o.cfg.MinDepositUsd,
		AssetSymbol:   offRampAsset,
	}, nil
}

// newOrderID returns PP-<unix millis>-<6 upper-case hex chars>
func newOrderID(now time.Time) (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("PP-%d-%s", now.UnixMilli(), strings.ToUpper(hex.EncodeToString(b))), nil
}

// Postback is the provider's notification body.
type Postback struct {
	OrderID        string              `json:"OrderId"`
	Status         statusCode          `json:"Status"`
	PaidAmount     decimal.NullDecimal `json:"PaidAmount"`
	Amount         decimal.NullDecimal `json:"Amount"`
	Asset          string              `json:"Asset"`
	TransactionID  string              `json:"TransactionId"`
	BlockchainHash string              `json:"BlockchainHash"`
	MerchantID     string              `json:"MerchantId"`
}

// statusCode accepts the provider's status as a JSON number or string.
type statusCode int

func (s *statusCode) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid status %q", raw)
	}
	*s = statusCode(n)
	return nil
}

type PostbackResult struct {
	OrderID          string
	Recorded         bool
	AlreadyProcessed bool
	Status           string
	Message          string
	CreditedSol      decimal.Decimal
	NewBalance       decimal.Decimal
	PriceSource      string
}

// VerifySignature checks a base64 HMAC-SHA256 of body under secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandlePostback authenticates and applies one provider notification. Only
// status 100 credits; every other status is recorded on the order and
// acknowledged. Re-deliveries for a completed order are no-ops.
func (o *OffRamp) HandlePostback(ctx context.Context, body []byte, signature string) (*PostbackResult, error) {
	if !o.configured() {
		o.logger.Error("off-ramp merchant id or api secret is not configured")
		return nil, apperr.Configuration("Server configuration error")
	}

	if !VerifySignature(o.cfg.ApiSecret, body, signature) {
		o.postbackOutcome("invalid_signature")
		return nil, apperr.Auth("Invalid signature")
	}

	var payload Postback
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Validation("Invalid JSON payload")
	}
	if payload.OrderID == "" {
		return nil, apperr.Validation("OrderId is required")
	}
	if payload.MerchantID != "" && payload.MerchantID != o.cfg.MerchantID {
		return nil, apperr.Validation("Merchant ID does not match")
	}

	if o.locker != nil {
		key := "order:" + payload.OrderID
		acquired, err := o.locker.Acquire(ctx, key, lockTTL)
		switch {
		case err != nil:
			o.logger.Warn("order lock unavailable, continuing without it", "order_id", payload.OrderID, "error", err)
		case !acquired:
			return nil, apperr.Conflict("This order is already being processed")
		default:
			defer func() {
				if err := o.locker.Release(context.WithoutCancel(ctx), key); err != nil {
					o.logger.Warn("failed to release order lock", "order_id", payload.OrderID, "error", err)
				}
			}()
		}
	}

	order, found, err := o.orders.GetOne(ctx, payload.OrderID)
	if err != nil {
		return nil, apperr.Internal("Unable to load deposit order", err)
	}
	if !found {
		o.logger.Warn("no deposit order found for postback", "order_id", payload.OrderID)
		return nil, apperr.NotFound("Deposit order not found")
	}

	metadata := types.NullJSONText{JSONText: types.JSONText(body), Valid: true}

	if payload.Status != StatusPaid {
		status := order.Status
		switch payload.Status {
		case StatusAwaitingSettlement:
			status = models.OrderStatusAwaitingSettlement
		case StatusFailed, StatusCancelled:
			status = models.OrderStatusFailed
		}

		if err := o.orders.RecordStatus(ctx, order.OrderID, status, metadata); err != nil {
			return nil, apperr.Internal("Unable to record order status", err)
		}

		o.postbackOutcome("recorded")
		o.logger.Info("order status recorded", "order_id", order.OrderID, "provider_status", int(payload.Status), "status", status)

		return &PostbackResult{OrderID: order.OrderID, Recorded: true, Status: status, Message: "Order status recorded"}, nil
	}

	if order.Status == models.OrderStatusCompleted {
		o.postbackOutcome("already_processed")
		return &PostbackResult{OrderID: order.OrderID, AlreadyProcessed: true, Status: order.Status, Message: "Already processed"}, nil
	}

	paidUsd := order.RequestedUsd
	switch {
	case payload.PaidAmount.Valid:
		paidUsd = payload.PaidAmount.Decimal
	case payload.Amount.Valid:
		paidUsd = payload.Amount.Decimal
	}
	if !paidUsd.IsPositive() {
		return nil, apperr.Validation("Paid amount missing from payload")
	}

	solPrice, priceSource := o.prices.SolPrice(ctx)
	if !solPrice.IsPositive() {
		return nil, apperr.Configuration("Unable to resolve SOL price for crediting")
	}

	creditedSol := paidUsd.DivRound(solPrice, 8)
	if !creditedSol.IsPositive() {
		return nil, apperr.Internal("Calculated SOL credit is invalid", nil)
	}

	paidAsset := payload.Asset
	if paidAsset == "" {
		paidAsset = order.AssetSymbol
	}
	if paidAsset == "" {
		paidAsset = offRampAsset
	}

	paidAssetAmount := order.RequestedUsd
	if payload.Amount.Valid {
		paidAssetAmount = payload.Amount.Decimal
	}

	paymentID := firstValid(payload.TransactionID, order.PaymentID)
	txHash := firstValid(payload.BlockchainHash, order.TxHash)
	source := sql.NullString{String: models.DepositSourcePostback, Valid: true}

	order.TransactionID = firstValid(payload.TransactionID, order.TransactionID)
	order.PaymentID = paymentID
	order.TxHash = txHash
	order.PaidUsd = decimal.NewNullDecimal(paidUsd)
	order.PaidAssetAmount = decimal.NewNullDecimal(paidAssetAmount)
	order.PaidAssetSymbol = sql.NullString{String: paidAsset, Valid: true}
	order.CreditedSol = decimal.NewNullDecimal(creditedSol)
	order.VerificationSource = source
	order.Metadata = metadata

	record := &models.Deposit{
		WalletAddress:      order.WalletAddress,
		Amount:             creditedSol,
		FiatAmountUsd:      decimal.NewNullDecimal(paidUsd),
		AssetSymbol:        paidAsset,
		Status:             models.DepositStatusCompleted,
		TxID:               txHash,
		OrderID:            sql.NullString{String: order.OrderID, Valid: true},
		PaymentID:          paymentID,
		IsVerified:         true,
		VerificationSource: source,
		Metadata:           metadata,
		CreatedAt:          o.now().UTC(),
	}

	credit, err := o.orders.Settle(ctx, &repository.OrderSettlement{Order: order, Deposit: record})
	switch {
	case errors.Is(err, repository.ErrAlreadySettled):
		o.postbackOutcome("already_processed")
		return &PostbackResult{OrderID: order.OrderID, AlreadyProcessed: true, Status: models.OrderStatusCompleted, Message: "Already processed"}, nil
	case errors.Is(err, repository.ErrRecordNotFound):
		return nil, apperr.NotFound("User profile not found for crediting")
	case err != nil:
		return nil, apperr.Internal("Failed to update user balance", err)
	}

	if credit.RecordErr != nil {
		o.recordMissing(record, credit.RecordErr)
	}

	o.postbackOutcome("credited")
	if o.metrics != nil {
		o.metrics.DepositsVerified.WithLabelValues(models.DepositSourcePostback).Inc()
		o.metrics.DepositsCreditedSol.WithLabelValues(models.DepositSourcePostback).Add(creditedSol.InexactFloat64())
	}

	o.logger.Info("off-ramp deposit credited",
		"order_id", order.OrderID,
		"wallet", order.WalletAddress,
		"paid_usd", paidUsd.StringFixed(2),
		"sol_price", solPrice.String(),
		"price_source", priceSource,
		"credited_sol", creditedSol.String(),
	)

	o.publish(stream.DepositCreditedTopic, order.WalletAddress, CreditedEvent{
		WalletAddress: order.WalletAddress,
		Amount:        creditedSol,
		NewBalance:    credit.NewBalance,
		TxID:          txHash.String,
		OrderID:       order.OrderID,
		Source:        models.DepositSourcePostback,
		CreditedAt:    record.CreatedAt,
	})

	return &PostbackResult{
		OrderID:     order.OrderID,
		Status:      models.OrderStatusCompleted,
		CreditedSol: creditedSol,
		NewBalance:  credit.NewBalance,
		PriceSource: priceSource,
	}, nil
}

func (o *OffRamp) postbackOutcome(outcome string) {
	if o.metrics != nil {
		o.metrics.PostbacksReceived.WithLabelValues(outcome).Inc()
	}
}

func firstValid(value string, fallback sql.NullString) sql.NullString {
	if value != "" {
		return sql.NullString{String: value, Valid: true}
	}
	return fallback
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
