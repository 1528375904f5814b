// Package router picks which platform wallet an incoming deposit should be
// sent to. Selection is a load-spreading heuristic, not a security boundary:
// the verifier only requires that funds reached some wallet in the pool.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/cradoe/leverpad/internal/geo"
	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	DefaultHomeWallet          = "CTDZ5teoWajqVcAsWQyEmmvHQzaDiV1jrnvwRmcL1iWv"
	DefaultInternationalWallet = "BKknmxoHFWiBXY1DsYn2Df1LRWQGcvCckcLEsnGhRcwg"
)

const (
	poolHome          = "home"
	poolInternational = "international"
)

// Pool is the set of receiving wallets. Both slots are always filled.
type Pool struct {
	Home          string
	International string
}

// NewPool fills unconfigured slots with the built-in default wallets.
func NewPool(home, international string) Pool {
	if home == "" {
		home = DefaultHomeWallet
	}
	if international == "" {
		international = DefaultInternationalWallet
	}
	return Pool{Home: home, International: international}
}

// Wallets lists the distinct wallets, home first.
func (p Pool) Wallets() []string {
	if p.Home == p.International {
		return []string{p.Home}
	}
	return []string{p.Home, p.International}
}

func (p Pool) Contains(address string) bool {
	return address != "" && slices.Contains(p.Wallets(), address)
}

// Policy holds the two probability bands of amount-weighted selection.
type Policy struct {
	AmountThreshold          decimal.Decimal
	SmallHomeWeight          float64
	LargeInternationalWeight float64
	HomeCountry              string
}

func DefaultPolicy() Policy {
	return Policy{
		AmountThreshold:          decimal.RequireFromString("0.5"),
		SmallHomeWeight:          0.7,
		LargeInternationalWeight: 0.9,
		HomeCountry:              "IL",
	}
}

type Locator interface {
	Lookup(ctx context.Context, ip string) geo.Result
}

// Rand yields values in [0, 1).
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

type Router struct {
	pool    Pool
	policy  Policy
	locator Locator
	rand    Rand
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Options struct {
	Pool    Pool
	Policy  Policy
	Locator Locator
	// Rand defaults to the process-wide source
	Rand    Rand
	Metrics *metrics.Metrics
}

func New(opts Options, logger *slog.Logger) *Router {
	r := &Router{
		pool:    opts.Pool,
		policy:  opts.Policy,
		locator: opts.Locator,
		rand:    opts.Rand,
		metrics: opts.Metrics,
		logger:  logger,
	}

	if r.pool.Home == "" || r.pool.International == "" {
		r.pool = NewPool(r.pool.Home, r.pool.International)
	}
	if r.rand == nil {
		r.rand = globalRand{}
	}

	return r
}

func (r *Router) Pool() Pool {
	return r.pool
}

// Allowed reports whether a caller-asserted target wallet belongs to the pool.
func (r *Router) Allowed(address string) bool {
	return r.pool.Contains(address)
}

type Selection struct {
	WalletAddress string
	CountryCode   string
	Reason        string
	Lookup        geo.Result
}

// Pick selects a wallet for a deposit of amount. Below the threshold the home
// wallet wins with SmallHomeWeight, at or above it the international wallet
// wins with LargeInternationalWeight.
func (r *Router) Pick(ctx context.Context, ip string, amount decimal.Decimal) Selection {
	lookup := r.lookup(ctx, ip)
	roll := r.rand.Float64()

	var slot, reason string
	if amount.LessThan(r.policy.AmountThreshold) {
		if roll < r.policy.SmallHomeWeight {
			slot = poolHome
		} else {
			slot = poolInternational
		}
		reason = fmt.Sprintf("amount below %s, %s wallet drawn (home weight %.2f)", r.policy.AmountThreshold, slot, r.policy.SmallHomeWeight)
	} else {
		if roll < r.policy.LargeInternationalWeight {
			slot = poolInternational
		} else {
			slot = poolHome
		}
		reason = fmt.Sprintf("amount at or above %s, %s wallet drawn (international weight %.2f)", r.policy.AmountThreshold, slot, r.policy.LargeInternationalWeight)
	}

	r.observe(slot)

	return Selection{
		WalletAddress: r.walletFor(slot),
		CountryCode:   lookup.CountryCode,
		Reason:        reason,
		Lookup:        lookup,
	}
}

type Suggestion struct {
	WalletAddress       string
	CountryCode         string
	IsHome              bool
	Lookup              geo.Result
	Wallets             []string
	HomeWallet          string
	InternationalWallet string
}

// Suggest resolves the default wallet by geography alone: the home country
// gets the home wallet, everyone else the international one.
func (r *Router) Suggest(ctx context.Context, ip string) Suggestion {
	lookup := r.lookup(ctx, ip)

	isHome := lookup.CountryCode != "" && lookup.CountryCode == r.policy.HomeCountry
	slot := poolInternational
	if isHome {
		slot = poolHome
	}

	return Suggestion{
		WalletAddress:       r.walletFor(slot),
		CountryCode:         lookup.CountryCode,
		IsHome:              isHome,
		Lookup:              lookup,
		Wallets:             r.pool.Wallets(),
		HomeWallet:          r.pool.Home,
		InternationalWallet: r.pool.International,
	}
}

func (r *Router) lookup(ctx context.Context, ip string) geo.Result {
	if r.locator == nil {
		return geo.Result{CountryCode: r.policy.HomeCountry, Source: geo.SourceFallback, Reason: geo.ReasonLookupError, IsFallback: true}
	}
	return r.locator.Lookup(ctx, ip)
}

func (r *Router) walletFor(slot string) string {
	if slot == poolHome {
		return r.pool.Home
	}
	return r.pool.International
}

func (r *Router) observe(slot string) {
	if r.metrics != nil {
		r.metrics.WalletRouted.WithLabelValues(slot).Inc()
	}
	r.logger.Debug("deposit wallet routed", "pool", slot)
}
