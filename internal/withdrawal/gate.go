// Package withdrawal decides whether a wallet may take native balance out of
// the platform and records the accepted requests for manual settlement.
package withdrawal

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cradoe/leverpad/internal/apperr"
	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/stream"
	"github.com/shopspring/decimal"
)

type Store interface {
	Request(ctx context.Context, walletAddress string, amount decimal.Decimal, check repository.WithdrawalCheck) (*repository.WithdrawalResult, error)
	Resolve(ctx context.Context, id, status, notes string, refund bool) (*models.WithdrawalRequest, error)
}

type Publisher interface {
	Publish(topic, key string, event any) error
}

type Policy struct {
	MinAmount decimal.Decimal
	LockDays  int
}

type Gate struct {
	store     Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	policy    Policy
	now       func() time.Time
}

type Options struct {
	Store     Store
	Publisher Publisher
	Metrics   *metrics.Metrics
	Policy    Policy
	// Clock defaults to time.Now
	Clock func() time.Time
}

func NewGate(opts Options, logger *slog.Logger) *Gate {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gate{
		store:     opts.Store,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    logger,
		policy:    opts.Policy,
		now:       clock,
	}
}

type Result struct {
	Request          *models.WithdrawalRequest
	NewBalance       decimal.Decimal
	AvailableBefore  decimal.Decimal
	LockedCollateral decimal.Decimal
	Message          string
}

// RequestedEvent is published for every accepted request.
type RequestedEvent struct {
	ID               string          `json:"id"`
	WalletAddress    string          `json:"walletAddress"`
	Amount           decimal.Decimal `json:"amount"`
	NewBalance       decimal.Decimal `json:"newBalance"`
	LockedCollateral decimal.Decimal `json:"lockedCollateral"`
	RequestedAt      time.Time       `json:"requestedAt"`
}

// Request runs the withdrawal rules against a locked snapshot of the wallet
// and, if they pass, debits the balance and files a pending request in the
// same database transaction.
func (g *Gate) Request(ctx context.Context, walletAddress string, amount decimal.Decimal) (*Result, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" || !amount.IsPositive() {
		return nil, apperr.Validation("walletAddress and a positive amount are required")
	}
	if amount.LessThan(g.policy.MinAmount) {
		g.refuse("below_minimum")
		return nil, apperr.Validation("Minimum withdrawal is %s SOL", g.policy.MinAmount)
	}

	now := g.now()

	res, err := g.store.Request(ctx, walletAddress, amount, func(s repository.WithdrawalSnapshot) error {
		return g.check(s, amount, now)
	})
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return nil, e
		}
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			g.refuse("profile_not_found")
			return nil, apperr.NotFound("Profile not found")
		case errors.Is(err, repository.ErrDuplicate):
			g.refuse("pending_exists")
			return nil, apperr.Conflict(pendingMessage)
		default:
			return nil, apperr.Internal("Failed to submit withdrawal request", err)
		}
	}

	if g.metrics != nil {
		g.metrics.WithdrawalsRequested.Inc()
	}

	g.logger.Info("withdrawal requested",
		"id", res.Request.ID,
		"wallet", walletAddress,
		"amount", amount.String(),
		"new_balance", res.NewBalance.String(),
		"locked_collateral", res.LockedCollateral.String(),
	)

	if g.publisher != nil {
		err := g.publisher.Publish(stream.WithdrawalRequestedTopic, walletAddress, RequestedEvent{
			ID:               res.Request.ID,
			WalletAddress:    walletAddress,
			Amount:           amount,
			NewBalance:       res.NewBalance,
			LockedCollateral: res.LockedCollateral,
			RequestedAt:      res.Request.CreatedAt,
		})
		if err != nil {
			g.logger.Error("failed to publish withdrawal request", "id", res.Request.ID, "error", err)
		}
	}

	return &Result{
		Request:          res.Request,
		NewBalance:       res.NewBalance,
		AvailableBefore:  res.Available,
		LockedCollateral: res.LockedCollateral,
		Message:          "Withdrawal request submitted for " + amount.StringFixed(4) + " SOL.",
	}, nil
}

const pendingMessage = "You already have a pending withdrawal request. Please wait for it to be processed."

// check applies the rules in order: ban, one pending request, the lock
// window after the most recent deposit, then available balance.
func (g *Gate) check(s repository.WithdrawalSnapshot, amount decimal.Decimal, now time.Time) error {
	if s.Profile.IsBanned {
		g.refuse("banned")
		return apperr.Forbidden("This wallet is currently banned from withdrawing.")
	}

	if s.HasPending {
		g.refuse("pending_exists")
		return apperr.Conflict(pendingMessage)
	}

	if s.LatestDepositAt.Valid && g.policy.LockDays > 0 {
		unlockAt := s.LatestDepositAt.Time.Add(time.Duration(g.policy.LockDays) * 24 * time.Hour)
		if now.Before(unlockAt) {
			days := int(math.Ceil(unlockAt.Sub(now).Hours() / 24))
			g.refuse("locked")
			return apperr.Forbidden("Withdrawals are locked for approximately %d more day(s) after your most recent deposit.", days).
				WithDetails(map[string]any{"unlockAt": unlockAt.UTC()})
		}
	}

	available := s.Profile.SolBalance.Sub(s.LockedCollateral)
	if amount.GreaterThan(available) {
		g.refuse("insufficient_balance")
		return apperr.Validation("Insufficient available balance. You have %s SOL available for withdrawal.", available.StringFixed(4)).
			WithDetails(map[string]any{
				"balance":          s.Profile.SolBalance.InexactFloat64(),
				"lockedCollateral": s.LockedCollateral.InexactFloat64(),
				"available":        available.InexactFloat64(),
			})
	}

	return nil
}

// Resolve settles a pending request. Rejections may refund the amount.
func (g *Gate) Resolve(ctx context.Context, id, status, notes string, refund bool) (*models.WithdrawalRequest, error) {
	if status != models.WithdrawalStatusCompleted && status != models.WithdrawalStatusRejected {
		return nil, apperr.Validation("status must be completed or rejected")
	}
	if refund && status != models.WithdrawalStatusRejected {
		return nil, apperr.Validation("only rejected requests can be refunded")
	}

	request, err := g.store.Resolve(ctx, id, status, notes, refund)
	switch {
	case errors.Is(err, repository.ErrRecordNotFound):
		return nil, apperr.NotFound("Withdrawal request not found")
	case errors.Is(err, repository.ErrAlreadySettled):
		return nil, apperr.Conflict("Withdrawal request has already been processed")
	case err != nil:
		return nil, apperr.Internal("Failed to resolve withdrawal request", err)
	}

	if g.metrics != nil {
		g.metrics.WithdrawalsResolved.WithLabelValues(status).Inc()
	}

	g.logger.Info("withdrawal resolved", "id", id, "status", status, "refund", refund)

	return request, nil
}

func (g *Gate) refuse(reason string) {
	if g.metrics != nil {
		g.metrics.WithdrawalsRefused.WithLabelValues(reason).Inc()
	}
}
