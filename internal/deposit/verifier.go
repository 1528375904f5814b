package deposit

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cradoe/leverpad/internal/apperr"
	"github.com/cradoe/leverpad/internal/chain"
	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/router"
	"github.com/cradoe/leverpad/internal/stream"
	"github.com/shopspring/decimal"
)

const lockTTL = 30 * time.Second

type Ledger interface {
	FindByTxID(ctx context.Context, txid string) (*models.Deposit, bool, error)
	Credit(ctx context.Context, deposit *models.Deposit) (*repository.CreditResult, error)
}

type Profiles interface {
	GetByWallet(ctx context.Context, walletAddress string) (*models.Profile, bool, error)
}

type WalletRouter interface {
	Allowed(address string) bool
	Suggest(ctx context.Context, ip string) router.Suggestion
}

// Locker is a best-effort mutual exclusion per key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(topic, key string, event any) error
}

type Policy struct {
	MinAmount             decimal.Decimal
	Tolerance             decimal.Decimal
	InstructionFallback   bool
	FallbackRequireSource bool
}

type Verifier struct {
	notifier
	ledger   Ledger
	profiles Profiles
	chain    chain.Reader
	router   WalletRouter
	locker   Locker
	policy   Policy
	checks   []AmountCheck
}

type VerifierDeps struct {
	Ledger   Ledger
	Profiles Profiles
	Chain    chain.Reader
	Router   WalletRouter
	// Locker and Publisher are optional
	Locker    Locker
	Publisher Publisher
	Metrics   *metrics.Metrics
}

func NewVerifier(deps VerifierDeps, policy Policy, logger *slog.Logger) *Verifier {
	checks := []AmountCheck{BalanceDeltaCheck{}}
	if policy.InstructionFallback {
		checks = append(checks, InstructionScanCheck{RequireSource: policy.FallbackRequireSource})
	}

	return &Verifier{
		notifier: notifier{publisher: deps.Publisher, metrics: deps.Metrics, logger: logger},
		ledger:   deps.Ledger,
		profiles: deps.Profiles,
		chain:    deps.Chain,
		router:   deps.Router,
		locker:   deps.Locker,
		policy:   policy,
		checks:   checks,
	}
}

type VerifyInput struct {
	WalletAddress string
	Amount        decimal.Decimal
	TxID          string
	TargetWallet  string
	ClientIP      string
}

type VerifyResult struct {
	AlreadyProcessed bool
	NewBalance       decimal.Decimal
	Amount           decimal.Decimal
	PlatformWallet   string
	CountryCode      string
	VerificationPath string
}

// Verify credits a claimed on-chain transfer exactly once per transaction id.
// Every failure is an *apperr.Error and leaves the ledger untouched.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)
	in.TxID = strings.TrimSpace(in.TxID)
	in.TargetWallet = strings.TrimSpace(in.TargetWallet)

	if in.WalletAddress == "" || in.TxID == "" || !in.Amount.IsPositive() {
		return nil, apperr.Validation("Missing required fields: walletAddress, amount, txid")
	}
	if in.Amount.LessThan(v.policy.MinAmount) {
		return nil, apperr.Validation("Minimum deposit is %s SOL", v.policy.MinAmount)
	}

	if done, err := v.alreadyProcessed(ctx, in); done != nil || err != nil {
		return done, err
	}

	if v.locker != nil {
		acquired, err := v.locker.Acquire(ctx, "deposit:"+in.TxID, lockTTL)
		switch {
		case err != nil:
			v.logger.Warn("deposit lock unavailable, continuing without it", "txid", in.TxID, "error", err)
		case !acquired:
			return nil, apperr.Conflict("This transaction is already being verified. Please retry shortly.")
		default:
			defer func() {
				if err := v.locker.Release(context.WithoutCancel(ctx), "deposit:"+in.TxID); err != nil {
					v.logger.Warn("failed to release deposit lock", "txid", in.TxID, "error", err)
				}
			}()
		}
	}

	v.logger.Info("verifying deposit", "txid", in.TxID, "wallet", in.WalletAddress, "amount", in.Amount.String())

	tx, err := v.chain.GetTransaction(ctx, in.TxID)
	if errors.Is(err, chain.ErrTransactionNotFound) {
		v.reject("not_found")
		return nil, apperr.NotFound("Transaction failed or not found")
	}
	if err != nil {
		v.reject("chain_error")
		v.upstreamError("chain")
		return nil, apperr.ExternalService("Transaction not found or not confirmed", err)
	}
	if tx.Failed {
		v.reject("failed")
		return nil, apperr.NotFound("Transaction failed or not found")
	}

	target, country, err := v.resolveTarget(ctx, in)
	if err != nil {
		v.reject("invalid_target")
		return nil, err
	}

	if !tx.Involves(target) || !tx.Involves(in.WalletAddress) {
		v.reject("wrong_wallets")
		return nil, apperr.Validation("Transaction does not involve the correct wallets")
	}

	outcome, err := v.checkAmount(tx, in, target)
	if err != nil {
		v.reject("amount_mismatch")
		return nil, err
	}

	source := models.DepositSourceOnChain
	if outcome.Path == PathInstructionScan {
		source = models.DepositSourceFallback
	}

	record := &models.Deposit{
		WalletAddress:      in.WalletAddress,
		Amount:             in.Amount,
		AssetSymbol:        "SOL",
		Status:             models.DepositStatusCompleted,
		TxID:               sql.NullString{String: in.TxID, Valid: true},
		PlatformWallet:     sql.NullString{String: target, Valid: true},
		IsVerified:         true,
		VerificationSource: sql.NullString{String: source, Valid: true},
		CreatedAt:          time.Now().UTC(),
	}

	credit, err := v.ledger.Credit(ctx, record)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// a concurrent call won the race on the txid constraint
		return v.processedResult(ctx, in)
	case errors.Is(err, repository.ErrRecordNotFound):
		v.reject("profile_not_found")
		return nil, apperr.NotFound("User profile not found")
	case err != nil:
		return nil, apperr.Internal("Failed to update balance", err)
	}

	if credit.RecordErr != nil {
		v.recordMissing(record, credit.RecordErr)
	}

	v.logger.Info("deposit verified and credited",
		"txid", in.TxID,
		"wallet", in.WalletAddress,
		"amount", in.Amount.String(),
		"new_balance", credit.NewBalance.String(),
		"platform_wallet", target,
		"path", outcome.Path,
	)

	if v.metrics != nil {
		v.metrics.DepositsVerified.WithLabelValues(source).Inc()
		v.metrics.DepositsCreditedSol.WithLabelValues(source).Add(in.Amount.InexactFloat64())
	}

	v.publish(stream.DepositCreditedTopic, in.WalletAddress, CreditedEvent{
		WalletAddress: in.WalletAddress,
		Amount:        in.Amount,
		NewBalance:    credit.NewBalance,
		TxID:          in.TxID,
		Source:        source,
		CreditedAt:    record.CreatedAt,
	})

	return &VerifyResult{
		NewBalance:       credit.NewBalance,
		Amount:           in.Amount,
		PlatformWallet:   target,
		CountryCode:      country,
		VerificationPath: outcome.Path,
	}, nil
}

func (v *Verifier) alreadyProcessed(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	_, found, err := v.ledger.FindByTxID(ctx, in.TxID)
	if err != nil {
		return nil, apperr.Internal("Failed to check deposit history", err)
	}
	if !found {
		return nil, nil
	}
	return v.processedResult(ctx, in)
}

func (v *Verifier) processedResult(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	v.logger.Info("deposit already processed", "txid", in.TxID, "wallet", in.WalletAddress)

	result := &VerifyResult{AlreadyProcessed: true, Amount: in.Amount}

	profile, found, err := v.profiles.GetByWallet(ctx, in.WalletAddress)
	if err != nil {
		v.logger.Warn("failed to read balance for processed deposit", "wallet", in.WalletAddress, "error", err)
	}
	if found {
		result.NewBalance = profile.SolBalance
	}

	return result, nil
}

// resolveTarget returns the platform wallet the transfer must have reached.
// A caller-supplied target only has to be in the pool; disagreeing with the
// geography suggestion is logged, not rejected.
func (v *Verifier) resolveTarget(ctx context.Context, in VerifyInput) (string, string, error) {
	suggestion := v.router.Suggest(ctx, in.ClientIP)

	if in.TargetWallet != "" {
		if !v.router.Allowed(in.TargetWallet) {
			return "", "", apperr.Validation("Invalid target wallet specified")
		}

		if in.TargetWallet != suggestion.WalletAddress {
			v.logger.Warn("target wallet mismatch with geo detection (using client override)",
				"detected_wallet", suggestion.WalletAddress,
				"provided_wallet", in.TargetWallet,
				"country_code", suggestion.CountryCode,
			)
		}
		return in.TargetWallet, suggestion.CountryCode, nil
	}

	if suggestion.CountryCode == "" && len(suggestion.Wallets) > 0 {
		return suggestion.Wallets[0], "", nil
	}

	return suggestion.WalletAddress, suggestion.CountryCode, nil
}

func (v *Verifier) checkAmount(tx *chain.Transaction, in VerifyInput, target string) (Outcome, error) {
	ev := Evidence{
		Tx:        tx,
		Source:    in.WalletAddress,
		Target:    target,
		Claimed:   in.Amount,
		Threshold: Threshold(in.Amount, v.policy.Tolerance),
	}

	for i, check := range v.checks {
		outcome := check.Check(ev)
		if outcome.Accepted {
			if i > 0 {
				v.logger.Warn("fallback accepted",
					"txid", in.TxID,
					"check", check.Name(),
					"observed", outcome.TargetReceived.String(),
					"source_waived", outcome.SourceWaived,
				)
			}
			return outcome, nil
		}

		if i == 0 && len(v.checks) > 1 {
			v.logger.Warn("primary balance check failed, running fallback checks", "txid", in.TxID)
		}
	}

	received := tx.Received(target)
	sent := tx.Sent(in.WalletAddress)

	return Outcome{}, apperr.AmountMismatch("Amount mismatch. Expected ~%s SOL (platform saw %s SOL, user %s SOL)",
		in.Amount, received.StringFixed(4), sent.StringFixed(4),
	).WithDetails(map[string]any{
		"expected":         in.Amount.InexactFloat64(),
		"platformReceived": received.InexactFloat64(),
		"userSent":         sent.InexactFloat64(),
	})
}

