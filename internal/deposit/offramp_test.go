package deposit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/cradoe/leverpad/internal/apperr"
	"github.com/cradoe/leverpad/internal/mocks"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/stream"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	merchantID = "MERCHANT1"
	apiSecret  = "postback-secret"
)

type fixedPrice struct {
	price  decimal.Decimal
	source string
}

func (p fixedPrice) SolPrice(context.Context) (decimal.Decimal, string) {
	return p.price, p.source
}

type offRampFixture struct {
	ledger    *mocks.MemoryLedger
	publisher *mocks.RecordingPublisher
	offRamp   *OffRamp
}

func newOffRampFixture(t *testing.T, cfg OffRampConfig) *offRampFixture {
	t.Helper()

	f := &offRampFixture{
		ledger:    mocks.NewMemoryLedger(),
		publisher: &mocks.RecordingPublisher{},
	}
	f.ledger.AddProfile(userWallet, decimal.Zero)

	f.offRamp = NewOffRamp(OffRampDeps{
		Orders:    f.ledger.Order(),
		Profiles:  f.ledger.Profile(),
		Prices:    fixedPrice{price: decimal.NewFromInt(150), source: "fallback"},
		Publisher: f.publisher,
	}, cfg, discardLogger())
	f.offRamp.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	return f
}

func configured() OffRampConfig {
	return OffRampConfig{MerchantID: merchantID, ApiSecret: apiSecret, MinDepositUsd: decimal.NewFromInt(20)}
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (f *offRampFixture) createOrder(t *testing.T, amount string) string {
	t.Helper()
	res, err := f.offRamp.CreateOrder(context.Background(), CreateOrderInput{
		WalletAddress: userWallet,
		AmountUsd:     decimal.RequireFromString(amount),
		UserAgent:     "test-agent",
		ClientIP:      usIP,
	})
	require.NoError(t, err)
	return res.OrderID
}

func TestCreateOrder(t *testing.T) {
	f := newOffRampFixture(t, configured())

	res, err := f.offRamp.CreateOrder(context.Background(), CreateOrderInput{
		WalletAddress: userWallet,
		AmountUsd:     decimal.RequireFromString("42.456"),
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^PP-1700000000000-[0-9A-F]{6}$`), res.OrderID)
	assert.Equal(t, "42.46", res.OrderAmount.String())
	assert.Equal(t, merchantID, res.MerchantID)
	assert.Equal(t, "USDC", res.AssetSymbol)

	order, found, err := f.ledger.Order().GetOne(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, res.OrderAmount.Equal(order.RequestedUsd))
}

func TestCreateOrderRaisesToMinimum(t *testing.T) {
	f := newOffRampFixture(t, configured())

	res, err := f.offRamp.CreateOrder(context.Background(), CreateOrderInput{
		WalletAddress: userWallet,
		AmountUsd:     decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(res.OrderAmount))
}

func TestCreateOrderRejections(t *testing.T) {
	f := newOffRampFixture(t, configured())
	f.ledger.AddProfile("BannedWa11et111111111111111111111111111111", decimal.Zero)
	_, err := f.ledger.Profile().SetBanned(context.Background(), "BannedWa11et111111111111111111111111111111", true)
	require.NoError(t, err)

	tests := []struct {
		name   string
		wallet string
		amount string
		kind   apperr.Kind
	}{
		{"short wallet", "abc", "30", apperr.KindValidation},
		{"non-positive amount", userWallet, "0", apperr.KindValidation},
		{"unknown profile", "NoProfi1e1111111111111111111111111111111111", "30", apperr.KindValidation},
		{"banned profile", "BannedWa11et111111111111111111111111111111", "30", apperr.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.offRamp.CreateOrder(context.Background(), CreateOrderInput{
				WalletAddress: tt.wallet,
				AmountUsd:     decimal.RequireFromString(tt.amount),
			})
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestCreateOrderNotConfigured(t *testing.T) {
	f := newOffRampFixture(t, OffRampConfig{MinDepositUsd: decimal.NewFromInt(20)})

	_, err := f.offRamp.CreateOrder(context.Background(), CreateOrderInput{
		WalletAddress: userWallet,
		AmountUsd:     decimal.NewFromInt(30),
	})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"OrderId":"PP-1"}`)

	assert.True(t, VerifySignature(apiSecret, body, sign(string(body))))
	assert.False(t, VerifySignature(apiSecret, body, ""))
	assert.False(t, VerifySignature("other", body, sign(string(body))))
	assert.False(t, VerifySignature(apiSecret, []byte(`{"OrderId":"PP-2"}`), sign(string(body))))
}

func TestPostbackCreditsPaidOrder(t *testing.T) {
	f := newOffRampFixture(t, configured())
	orderID := f.createOrder(t, "30")

	body := fmt.Sprintf(`{"OrderId":%q,"Status":100,"PaidAmount":30,"Amount":30.5,"Asset":"USDC","TransactionId":"T-9","BlockchainHash":"0xabc","MerchantId":%q}`, orderID, merchantID)

	res, err := f.offRamp.HandlePostback(context.Background(), []byte(body), sign(body))
	require.NoError(t, err)

	assert.Equal(t, "0.2", res.CreditedSol.String())
	assert.True(t, decimal.RequireFromString("0.2").Equal(f.ledger.Balance(userWallet)))

	order, _, err := f.ledger.Order().GetOne(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, "T-9", order.TransactionID.String)
	assert.Equal(t, "0xabc", order.TxHash.String)

	deposits := f.ledger.Deposits()
	require.Len(t, deposits, 1)
	assert.Equal(t, orderID, deposits[0].OrderID.String)
	assert.Equal(t, "0xabc", deposits[0].TxID.String)
	assert.Equal(t, models.DepositSourcePostback, deposits[0].VerificationSource.String)
	assert.True(t, decimal.NewFromInt(30).Equal(deposits[0].FiatAmountUsd.Decimal))

	assert.Len(t, f.publisher.On(stream.DepositCreditedTopic), 1)

	t.Run("redelivery is a no-op", func(t *testing.T) {
		again, err := f.offRamp.HandlePostback(context.Background(), []byte(body), sign(body))
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.True(t, decimal.RequireFromString("0.2").Equal(f.ledger.Balance(userWallet)))
		assert.Len(t, f.ledger.Deposits(), 1)
	})
}

func TestPostbackPaidAmountFallsBackToRequested(t *testing.T) {
	f := newOffRampFixture(t, configured())
	orderID := f.createOrder(t, "45")

	body := fmt.Sprintf(`{"OrderId":%q,"Status":"100"}`, orderID)

	res, err := f.offRamp.HandlePostback(context.Background(), []byte(body), sign(body))
	require.NoError(t, err)
	assert.Equal(t, "0.3", res.CreditedSol.String())
}

func TestPostbackNonPaidStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"10", models.OrderStatusAwaitingSettlement},
		{"55", models.OrderStatusFailed},
		{"59", models.OrderStatusFailed},
		{"42", models.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run("status "+tt.status, func(t *testing.T) {
			f := newOffRampFixture(t, configured())
			orderID := f.createOrder(t, "30")

			body := fmt.Sprintf(`{"OrderId":%q,"Status":%s}`, orderID, tt.status)
			res, err := f.offRamp.HandlePostback(context.Background(), []byte(body), sign(body))
			require.NoError(t, err)
			assert.True(t, res.Recorded)
			assert.Equal(t, "Order status recorded", res.Message)

			order, _, err := f.ledger.Order().GetOne(context.Background(), orderID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, order.Status)
			assert.True(t, f.ledger.Balance(userWallet).IsZero())
		})
	}
}

func TestPostbackFailedStatusNeverReopensCompletedOrder(t *testing.T) {
	f := newOffRampFixture(t, configured())
	orderID := f.createOrder(t, "30")

	paid := fmt.Sprintf(`{"OrderId":%q,"Status":100}`, orderID)
	_, err := f.offRamp.HandlePostback(context.Background(), []byte(paid), sign(paid))
	require.NoError(t, err)

	failed := fmt.Sprintf(`{"OrderId":%q,"Status":59}`, orderID)
	_, err = f.offRamp.HandlePostback(context.Background(), []byte(failed), sign(failed))
	require.NoError(t, err)

	order, _, err := f.ledger.Order().GetOne(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
}

func TestPostbackRejections(t *testing.T) {
	f := newOffRampFixture(t, configured())
	orderID := f.createOrder(t, "30")

	good := fmt.Sprintf(`{"OrderId":%q,"Status":100}`, orderID)

	tests := []struct {
		name      string
		body      string
		signature string
		kind      apperr.Kind
		message   string
	}{
		{"missing signature", good, "", apperr.KindAuth, "Invalid signature"},
		{"wrong signature", good, sign(good + " "), apperr.KindAuth, "Invalid signature"},
		{"invalid json", `{"OrderId":`, sign(`{"OrderId":`), apperr.KindValidation, "Invalid JSON payload"},
		{"missing order id", `{"Status":100}`, sign(`{"Status":100}`), apperr.KindValidation, "OrderId is required"},
		{"merchant mismatch", `{"OrderId":"PP-1","MerchantId":"OTHER"}`, sign(`{"OrderId":"PP-1","MerchantId":"OTHER"}`), apperr.KindValidation, "Merchant ID does not match"},
		{"unknown order", `{"OrderId":"PP-404","Status":100}`, sign(`{"OrderId":"PP-404","Status":100}`), apperr.KindNotFound, "Deposit order not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.offRamp.HandlePostback(context.Background(), []byte(tt.body), tt.signature)
			e, ok := apperr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.message, e.Message)
		})
	}

	assert.True(t, f.ledger.Balance(userWallet).IsZero())
}

func TestPostbackNotConfigured(t *testing.T) {
	f := newOffRampFixture(t, OffRampConfig{MerchantID: merchantID})

	_, err := f.offRamp.HandlePostback(context.Background(), []byte(`{}`), "sig")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestPostbackRecordFailureStillCredits(t *testing.T) {
	f := newOffRampFixture(t, configured())
	orderID := f.createOrder(t, "30")
	f.ledger.RecordInsertErr = errors.New("connection reset")

	body := fmt.Sprintf(`{"OrderId":%q,"Status":100,"PaidAmount":30}`, orderID)
	_, err := f.offRamp.HandlePostback(context.Background(), []byte(body), sign(body))
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.2").Equal(f.ledger.Balance(userWallet)))
	assert.Empty(t, f.ledger.Deposits())

	missing := f.publisher.On(stream.DepositRecordMissingTopic)
	require.Len(t, missing, 1)
	assert.Equal(t, orderID, missing[0].Key)
}
