package mocks

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// MemoryLedger is an in-memory repository.Database. Every operation holds one
// mutex, which gives the same all-or-nothing behaviour the Postgres
// transactions give.
type MemoryLedger struct {
	mu          sync.Mutex
	profiles    map[string]*models.Profile
	deposits    []*models.Deposit
	orders      map[string]*models.DepositOrder
	withdrawals []*models.WithdrawalRequest
	positions   []models.TradingPosition
	activity    []models.ActivityLog

	// RecordInsertErr, when set, makes deposit record inserts inside Credit
	// and Settle fail while the balance credit still goes through.
	RecordInsertErr error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		profiles: map[string]*models.Profile{},
		orders:   map[string]*models.DepositOrder{},
	}
}

var _ repository.Database = (*MemoryLedger)(nil)

// AddProfile seeds a profile with a native balance.
func (l *MemoryLedger) AddProfile(wallet string, solBalance decimal.Decimal) *models.Profile {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := &models.Profile{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		SolBalance:    solBalance,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	l.profiles[wallet] = p
	return p
}

func (l *MemoryLedger) AddPosition(p models.TradingPosition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	l.positions = append(l.positions, p)
}

// AddDeposit seeds a deposit row without touching balances.
func (l *MemoryLedger) AddDeposit(d models.Deposit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	l.deposits = append(l.deposits, &d)
}

func (l *MemoryLedger) AddWithdrawal(w models.WithdrawalRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	l.withdrawals = append(l.withdrawals, &w)
}

// Balance returns the native balance of wallet, zero when unknown.
func (l *MemoryLedger) Balance(wallet string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.profiles[wallet]; ok {
		return p.SolBalance
	}
	return decimal.Zero
}

// Deposits returns a copy of every stored deposit row.
func (l *MemoryLedger) Deposits() []models.Deposit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Deposit, 0, len(l.deposits))
	for _, d := range l.deposits {
		out = append(out, *d)
	}
	return out
}

func (l *MemoryLedger) Withdrawals() []models.WithdrawalRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.WithdrawalRequest, 0, len(l.withdrawals))
	for _, w := range l.withdrawals {
		out = append(out, *w)
	}
	return out
}

func (l *MemoryLedger) ActivityLogs() []models.ActivityLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.activity)
}

func (l *MemoryLedger) Profile() repository.ProfileRepository       { return memProfiles{l} }
func (l *MemoryLedger) Deposit() repository.DepositRepository       { return memDeposits{l} }
func (l *MemoryLedger) Order() repository.OrderRepository           { return memOrders{l} }
func (l *MemoryLedger) Withdrawal() repository.WithdrawalRepository { return memWithdrawals{l} }
func (l *MemoryLedger) Position() repository.PositionRepository     { return memPositions{l} }
func (l *MemoryLedger) Activity() repository.ActivityRepository     { return memActivity{l} }

func (l *MemoryLedger) Ping(ctx context.Context) error { return nil }
func (l *MemoryLedger) Close() error                   { return nil }

func (l *MemoryLedger) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, errors.New("memory ledger has no sql transactions")
}

// callers hold l.mu
func (l *MemoryLedger) credit(wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	p, ok := l.profiles[wallet]
	if !ok {
		return decimal.Zero, repository.ErrRecordNotFound
	}
	p.SolBalance = p.SolBalance.Add(amount)
	p.UpdatedAt = time.Now()
	return p.SolBalance, nil
}

// callers hold l.mu
func (l *MemoryLedger) depositConflicts(d *models.Deposit) bool {
	for _, existing := range l.deposits {
		if d.TxID.Valid && existing.TxID.Valid && existing.TxID.String == d.TxID.String {
			return true
		}
		if d.OrderID.Valid && existing.OrderID.Valid && existing.OrderID.String == d.OrderID.String {
			return true
		}
	}
	return false
}

// callers hold l.mu
func (l *MemoryLedger) insertDeposit(d *models.Deposit) {
	stored := *d
	stored.ID = uuid.NewString()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.AssetSymbol == "" {
		stored.AssetSymbol = "SOL"
	}
	d.ID = stored.ID
	l.deposits = append(l.deposits, &stored)
}

func (l *MemoryLedger) lockedCollateral(wallet string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		if p.WalletAddress == wallet && p.LocksCollateral() {
			total = total.Add(p.CollateralSol)
		}
	}
	return total
}

type memProfiles struct{ l *MemoryLedger }

func (r memProfiles) Insert(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if _, ok := r.l.profiles[profile.WalletAddress]; ok {
		return nil, repository.ErrDuplicate
	}
	p := *profile
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.l.profiles[p.WalletAddress] = &p
	out := p
	return &out, nil
}

func (r memProfiles) GetByWallet(ctx context.Context, wallet string) (*models.Profile, bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	p, ok := r.l.profiles[wallet]
	if !ok {
		return nil, false, nil
	}
	out := *p
	return &out, true, nil
}

func (r memProfiles) UpdateBalances(ctx context.Context, wallet string, sol, usd decimal.NullDecimal) (*models.Profile, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	p, ok := r.l.profiles[wallet]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	if sol.Valid {
		p.SolBalance = sol.Decimal
	}
	if usd.Valid {
		p.Balance = usd.Decimal
	}
	p.UpdatedAt = time.Now()
	out := *p
	return &out, nil
}

func (r memProfiles) SetBanned(ctx context.Context, wallet string, banned bool) (*models.Profile, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	p, ok := r.l.profiles[wallet]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	p.IsBanned = banned
	p.UpdatedAt = time.Now()
	out := *p
	return &out, nil
}

func (r memProfiles) SetAvatar(ctx context.Context, wallet, avatarURL string) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	p, ok := r.l.profiles[wallet]
	if !ok {
		return repository.ErrRecordNotFound
	}
	p.AvatarURL = sql.NullString{String: avatarURL, Valid: true}
	return nil
}

func (r memProfiles) List(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.Profile{}
	for _, p := range r.l.profiles {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b models.Profile) int { return cmp.Compare(a.WalletAddress, b.WalletAddress) })
	return page(out, limit, offset), nil
}

type memDeposits struct{ l *MemoryLedger }

func (r memDeposits) FindByTxID(ctx context.Context, txid string) (*models.Deposit, bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	for _, d := range r.l.deposits {
		if d.TxID.Valid && d.TxID.String == txid {
			out := *d
			return &out, true, nil
		}
	}
	return nil, false, nil
}

func (r memDeposits) LatestCompleted(ctx context.Context, wallet string) (*models.Deposit, bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	var latest *models.Deposit
	for _, d := range r.l.deposits {
		if d.WalletAddress != wallet || d.Status != models.DepositStatusCompleted {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, false, nil
	}
	out := *latest
	return &out, true, nil
}

func (r memDeposits) Insert(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if r.l.depositConflicts(deposit) {
		return nil, repository.ErrDuplicate
	}
	r.l.insertDeposit(deposit)
	out := *r.l.deposits[len(r.l.deposits)-1]
	return &out, nil
}

func (r memDeposits) Credit(ctx context.Context, deposit *models.Deposit) (*repository.CreditResult, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if _, ok := r.l.profiles[deposit.WalletAddress]; !ok {
		return nil, repository.ErrRecordNotFound
	}
	if r.l.depositConflicts(deposit) {
		return nil, repository.ErrDuplicate
	}

	balance, err := r.l.credit(deposit.WalletAddress, deposit.Amount)
	if err != nil {
		return nil, err
	}

	result := &repository.CreditResult{NewBalance: balance}
	if r.l.RecordInsertErr != nil {
		result.RecordErr = r.l.RecordInsertErr
		return result, nil
	}
	r.l.insertDeposit(deposit)
	return result, nil
}

func (r memDeposits) List(ctx context.Context, filter repository.DepositFilter) ([]models.Deposit, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.Deposit{}
	for _, d := range r.l.deposits {
		if filter.WalletAddress != "" && d.WalletAddress != filter.WalletAddress {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}
	slices.SortStableFunc(out, func(a, b models.Deposit) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

type memOrders struct{ l *MemoryLedger }

func (r memOrders) Insert(ctx context.Context, order *models.DepositOrder) (*models.DepositOrder, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if _, ok := r.l.orders[order.OrderID]; ok {
		return nil, repository.ErrDuplicate
	}
	o := *order
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	r.l.orders[o.OrderID] = &o
	out := o
	return &out, nil
}

func (r memOrders) GetOne(ctx context.Context, orderID string) (*models.DepositOrder, bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	o, ok := r.l.orders[orderID]
	if !ok {
		return nil, false, nil
	}
	out := *o
	return &out, true, nil
}

func (r memOrders) RecordStatus(ctx context.Context, orderID, status string, metadata types.NullJSONText) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	o, ok := r.l.orders[orderID]
	if !ok || o.Status == models.OrderStatusCompleted {
		return nil
	}
	o.Status = status
	if metadata.Valid {
		o.Metadata = metadata
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (r memOrders) Settle(ctx context.Context, s *repository.OrderSettlement) (*repository.CreditResult, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	o, ok := r.l.orders[s.Order.OrderID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	if o.Status == models.OrderStatusCompleted {
		return nil, repository.ErrAlreadySettled
	}

	balance, err := r.l.credit(s.Order.WalletAddress, s.Order.CreditedSol.Decimal)
	if err != nil {
		return nil, err
	}

	settled := *s.Order
	settled.Status = models.OrderStatusCompleted
	settled.UpdatedAt = time.Now()
	r.l.orders[settled.OrderID] = &settled

	result := &repository.CreditResult{NewBalance: balance}
	switch {
	case r.l.RecordInsertErr != nil:
		result.RecordErr = r.l.RecordInsertErr
	case r.l.depositConflicts(s.Deposit):
		result.RecordErr = repository.ErrDuplicate
	default:
		r.l.insertDeposit(s.Deposit)
	}
	return result, nil
}

func (r memOrders) ListByWallet(ctx context.Context, wallet string, limit int) ([]models.DepositOrder, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.DepositOrder{}
	for _, o := range r.l.orders {
		if o.WalletAddress == wallet {
			out = append(out, *o)
		}
	}
	slices.SortFunc(out, func(a, b models.DepositOrder) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, limit, 0), nil
}

type memWithdrawals struct{ l *MemoryLedger }

func (r memWithdrawals) Request(ctx context.Context, wallet string, amount decimal.Decimal, check repository.WithdrawalCheck) (*repository.WithdrawalResult, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	p, ok := r.l.profiles[wallet]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}

	snapshot := repository.WithdrawalSnapshot{
		Profile:          *p,
		LockedCollateral: r.l.lockedCollateral(wallet),
	}
	for _, w := range r.l.withdrawals {
		if w.WalletAddress == wallet && w.Status == models.WithdrawalStatusPending {
			snapshot.HasPending = true
		}
	}
	for _, d := range r.l.deposits {
		if d.WalletAddress != wallet || d.Status != models.DepositStatusCompleted {
			continue
		}
		if !snapshot.LatestDepositAt.Valid || d.CreatedAt.After(snapshot.LatestDepositAt.Time) {
			snapshot.LatestDepositAt = sql.NullTime{Time: d.CreatedAt, Valid: true}
		}
	}

	if err := check(snapshot); err != nil {
		return nil, err
	}
	if snapshot.HasPending {
		return nil, repository.ErrDuplicate
	}

	p.SolBalance = p.SolBalance.Sub(amount)
	p.UpdatedAt = time.Now()

	req := &models.WithdrawalRequest{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Amount:        amount,
		Status:        models.WithdrawalStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	r.l.withdrawals = append(r.l.withdrawals, req)

	out := *req
	return &repository.WithdrawalResult{
		Request:          &out,
		NewBalance:       p.SolBalance,
		Available:        snapshot.Profile.SolBalance.Sub(snapshot.LockedCollateral),
		LockedCollateral: snapshot.LockedCollateral,
	}, nil
}

func (r memWithdrawals) GetOne(ctx context.Context, id string) (*models.WithdrawalRequest, bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	for _, w := range r.l.withdrawals {
		if w.ID == id {
			out := *w
			return &out, true, nil
		}
	}
	return nil, false, nil
}

func (r memWithdrawals) ListByWallet(ctx context.Context, wallet string, limit int) ([]models.WithdrawalRequest, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.WithdrawalRequest{}
	for _, w := range r.l.withdrawals {
		if w.WalletAddress == wallet {
			out = append(out, *w)
		}
	}
	slices.SortStableFunc(out, func(a, b models.WithdrawalRequest) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, limit, 0), nil
}

func (r memWithdrawals) List(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.WithdrawalRequest{}
	for _, w := range r.l.withdrawals {
		if status == "" || w.Status == status {
			out = append(out, *w)
		}
	}
	slices.SortStableFunc(out, func(a, b models.WithdrawalRequest) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, limit, offset), nil
}

func (r memWithdrawals) Resolve(ctx context.Context, id, status, notes string, refund bool) (*models.WithdrawalRequest, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	for _, w := range r.l.withdrawals {
		if w.ID != id {
			continue
		}
		if w.Status != models.WithdrawalStatusPending {
			return nil, repository.ErrAlreadySettled
		}
		w.Status = status
		w.Notes = sql.NullString{String: notes, Valid: notes != ""}
		w.UpdatedAt = time.Now()
		if refund && status == models.WithdrawalStatusRejected {
			if _, err := r.l.credit(w.WalletAddress, w.Amount); err != nil {
				return nil, err
			}
		}
		out := *w
		return &out, nil
	}
	return nil, repository.ErrRecordNotFound
}

type memPositions struct{ l *MemoryLedger }

func (r memPositions) LockedCollateral(ctx context.Context, wallet string) (decimal.Decimal, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	return r.l.lockedCollateral(wallet), nil
}

func (r memPositions) ListOpen(ctx context.Context, wallet string) ([]models.TradingPosition, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.TradingPosition{}
	for _, p := range r.l.positions {
		if p.WalletAddress == wallet && p.LocksCollateral() {
			out = append(out, p)
		}
	}
	return out, nil
}

type memActivity struct{ l *MemoryLedger }

func (r memActivity) Insert(ctx context.Context, log *models.ActivityLog) (*models.ActivityLog, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	entry := *log
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.l.activity = append(r.l.activity, entry)
	return &entry, nil
}

func (r memActivity) ListByWallet(ctx context.Context, wallet string, limit int) ([]models.ActivityLog, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	out := []models.ActivityLog{}
	for _, a := range r.l.activity {
		if a.WalletAddress == wallet {
			out = append(out, a)
		}
	}
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
