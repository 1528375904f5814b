package router

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/cradoe/leverpad/internal/geo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	homeWallet = "HomeWa11et1111111111111111111111111111111111"
	intlWallet = "Int1Wa11et111111111111111111111111111111111"
)

type fixedRand []float64

func (f *fixedRand) Float64() float64 {
	v := (*f)[0]
	*f = (*f)[1:]
	return v
}

type stubLocator map[string]geo.Result

func (s stubLocator) Lookup(_ context.Context, ip string) geo.Result {
	if res, ok := s[ip]; ok {
		return res
	}
	return geo.Result{CountryCode: "IL", Source: geo.SourceIPAPI, Reason: geo.ReasonLookupError, IsFallback: true}
}

func newTestRouter(rnd Rand) *Router {
	return New(Options{
		Pool:   NewPool(homeWallet, intlWallet),
		Policy: DefaultPolicy(),
		Locator: stubLocator{
			"5.29.0.1": {CountryCode: "IL", Source: geo.SourceIPAPI, Reason: geo.ReasonLookupSuccess},
			"8.8.8.8":  {CountryCode: "US", Source: geo.SourceIPAPI, Reason: geo.ReasonLookupSuccess},
		},
		Rand: rnd,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPickBands(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		roll   float64
		want   string
	}{
		{"small amount, roll inside home band", "0.2", 0.69, homeWallet},
		{"small amount, roll outside home band", "0.2", 0.70, intlWallet},
		{"threshold amount, roll inside international band", "0.5", 0.89, intlWallet},
		{"large amount, roll outside international band", "3", 0.90, homeWallet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rolls := fixedRand{tt.roll}
			r := newTestRouter(&rolls)

			sel := r.Pick(context.Background(), "8.8.8.8", decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.want, sel.WalletAddress)
			assert.Equal(t, "US", sel.CountryCode)
			assert.NotEmpty(t, sel.Reason)
		})
	}
}

func TestPickDistribution(t *testing.T) {
	r := newTestRouter(rand.New(rand.NewPCG(7, 11)))

	const draws = 20000
	var smallHome, largeIntl int
	for range draws {
		if r.Pick(context.Background(), "", decimal.RequireFromString("0.1")).WalletAddress == homeWallet {
			smallHome++
		}
		if r.Pick(context.Background(), "", decimal.NewFromInt(2)).WalletAddress == intlWallet {
			largeIntl++
		}
	}

	assert.InDelta(t, 0.7, float64(smallHome)/draws, 0.02)
	assert.InDelta(t, 0.9, float64(largeIntl)/draws, 0.02)
}

func TestSuggest(t *testing.T) {
	r := newTestRouter(nil)

	home := r.Suggest(context.Background(), "5.29.0.1")
	assert.Equal(t, homeWallet, home.WalletAddress)
	assert.True(t, home.IsHome)
	assert.Equal(t, []string{homeWallet, intlWallet}, home.Wallets)

	abroad := r.Suggest(context.Background(), "8.8.8.8")
	assert.Equal(t, intlWallet, abroad.WalletAddress)
	assert.False(t, abroad.IsHome)

	unknown := r.Suggest(context.Background(), "1.2.3.4")
	assert.Equal(t, homeWallet, unknown.WalletAddress)
	assert.Equal(t, "IL", unknown.CountryCode)
	assert.True(t, unknown.IsHome)
	assert.True(t, unknown.Lookup.IsFallback)
}

func TestEmptyPoolFallsBackToDefaults(t *testing.T) {
	r := New(Options{Policy: DefaultPolicy()}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sel := r.Pick(context.Background(), "", decimal.NewFromInt(1))
	require.NotEmpty(t, sel.WalletAddress)
	assert.Contains(t, []string{DefaultHomeWallet, DefaultInternationalWallet}, sel.WalletAddress)

	sug := r.Suggest(context.Background(), "")
	assert.Equal(t, DefaultInternationalWallet, sug.WalletAddress)
	assert.True(t, r.Allowed(DefaultHomeWallet))
	assert.True(t, r.Allowed(DefaultInternationalWallet))
}

func TestAllowed(t *testing.T) {
	r := newTestRouter(nil)

	assert.True(t, r.Allowed(homeWallet))
	assert.True(t, r.Allowed(intlWallet))
	assert.False(t, r.Allowed("SomeoneE1se111111111111111111111111111111111"))
	assert.False(t, r.Allowed(""))
}

func TestPoolDeduplicates(t *testing.T) {
	p := NewPool(homeWallet, homeWallet)
	assert.Equal(t, []string{homeWallet}, p.Wallets())
}
