// Package storetest provides an in-memory store.Store for tests. Transactions
// are serialized by one mutex and applied copy-on-write, so a failing
// transaction leaves no trace, matching the all-or-nothing contract of the
// PostgreSQL store.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
)

type summaryKey struct {
	userID int64
	pt     domain.PeriodType
	key    string
}

type idemKey struct {
	userID int64
	key    string
}

type state struct {
	seq         int64
	users       map[int64]domain.User
	txns        []domain.WalletTransaction
	plans       map[int64]domain.Plan
	subs        map[int64]domain.Subscription
	logs        []domain.DailyReturnLog
	summaries   map[summaryKey]domain.DailyReturnSummary
	recharges   map[int64]domain.RechargeRequest
	withdrawals map[int64]domain.WithdrawalRequest
	idem        map[idemKey]domain.IdempotencyRecord
}

func (s *state) clone() *state {
	c := &state{
		seq:         s.seq,
		users:       make(map[int64]domain.User, len(s.users)),
		txns:        append([]domain.WalletTransaction(nil), s.txns...),
		plans:       make(map[int64]domain.Plan, len(s.plans)),
		subs:        make(map[int64]domain.Subscription, len(s.subs)),
		logs:        append([]domain.DailyReturnLog(nil), s.logs...),
		summaries:   make(map[summaryKey]domain.DailyReturnSummary, len(s.summaries)),
		recharges:   make(map[int64]domain.RechargeRequest, len(s.recharges)),
		withdrawals: make(map[int64]domain.WithdrawalRequest, len(s.withdrawals)),
		idem:        make(map[idemKey]domain.IdempotencyRecord, len(s.idem)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.summaries {
		c.summaries[k] = v
	}
	for k, v := range s.recharges {
		c.recharges[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.idem {
		c.idem[k] = v
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Memory implements store.Store.
type Memory struct {
	mu sync.Mutex
	st *state

	// LockFailures makes the next n transactions fail with domain.ErrLockTimeout.
	LockFailures int
	// Commits counts committed transactions.
	Commits int
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{st: (&state{}).clone()}
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// stamp derives a strictly increasing creation time from the sequence.
func stamp(seq int64) time.Time {
	return epoch.Add(time.Duration(seq) * time.Second)
}

func (m *Memory) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.LockFailures > 0 {
		m.LockFailures--
		return fmt.Errorf("%w: injected", domain.ErrLockTimeout)
	}

	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	m.Commits++
	return nil
}

// Seeding and inspection helpers.

func (m *Memory) AddUser(balance decimal.Decimal, referredBy *int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	m.st.users[id] = domain.User{
		ID:            id,
		WalletBalance: balance,
		ReferralCode:  fmt.Sprintf("REF%06d", id),
		ReferredBy:    referredBy,
		CreatedAt:     stamp(id),
	}
	return id
}

func (m *Memory) AddPlan(price, dailyReturn decimal.Decimal, durationDays int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	m.st.plans[id] = domain.Plan{
		ID:           id,
		Name:         fmt.Sprintf("plan-%d", id),
		Price:        price,
		DailyReturn:  dailyReturn,
		DurationDays: durationDays,
		IsActive:     true,
	}
	return id
}

func (m *Memory) AddSubscription(userID, planID int64, start, end time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.next()
	m.st.subs[id] = domain.Subscription{
		ID:        id,
		UserID:    userID,
		PlanID:    planID,
		Price:     m.st.plans[planID].Price,
		StartDate: start,
		EndDate:   end,
		IsActive:  true,
		CreatedAt: stamp(id),
	}
	return id
}

func (m *Memory) Balance(userID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.users[userID].WalletBalance
}

// Transactions returns every ledger row of the user in commit order.
func (m *Memory) Transactions(userID int64) []domain.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WalletTransaction
	for _, t := range m.st.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// LedgerSum is the signed sum of the user's SUCCESS ledger rows.
func (m *Memory) LedgerSum(userID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range m.Transactions(userID) {
		if t.Status == domain.TxnSuccess {
			sum = sum.Add(t.Signed())
		}
	}
	return sum
}

func (m *Memory) DailyReturnLogs() []domain.DailyReturnLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DailyReturnLog(nil), m.st.logs...)
}

func (m *Memory) Summaries(userID int64) []domain.DailyReturnSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DailyReturnSummary
	for k, v := range m.st.summaries {
		if k.userID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodType != out[j].PeriodType {
			return out[i].PeriodType < out[j].PeriodType
		}
		return out[i].PeriodKey < out[j].PeriodKey
	})
	return out
}

func (m *Memory) Subscription(id int64) domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.subs[id]
}

// CorruptSummary overwrites one rollup row, for repair-path tests.
func (m *Memory) CorruptSummary(userID int64, pt domain.PeriodType, key string, total decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := summaryKey{userID, pt, key}
	row := m.st.summaries[k]
	row.UserID, row.PeriodType, row.PeriodKey, row.TotalAmount = userID, pt, key, total
	m.st.summaries[k] = row
}

// Read paths.

func (m *Memory) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) ListTransactions(ctx context.Context, userID int64, q domain.PageQuery) ([]domain.WalletTransaction, int64, error) {
	q = q.Normalize()
	all := m.Transactions(userID)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if q.SortOrder == "DESC" {
			a, b = b, a
		}
		if q.SortBy == "amount" && !a.Amount.Equal(b.Amount) {
			return a.Amount.LessThan(b.Amount)
		}
		return a.ID < b.ID
	})
	total := int64(len(all))
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return append([]domain.WalletTransaction{}, all[start:end]...), total, nil
}

func (m *Memory) ListAccrualCandidates(ctx context.Context, day time.Time) ([]domain.AccrualCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AccrualCandidate
	for _, s := range m.st.subs {
		if !s.StartDate.After(day) && !s.EndDate.Before(day) {
			out = append(out, domain.AccrualCandidate{
				SubscriptionID: s.ID,
				UserID:         s.UserID,
				PlanID:         s.PlanID,
				DailyReturn:    m.st.plans[s.PlanID].DailyReturn,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out, nil
}

func (m *Memory) ListExpiredSubscriptions(ctx context.Context, day time.Time) ([]domain.Subscription, error) {
	return m.subscriptions(func(s domain.Subscription) bool { return s.IsActive && s.EndDate.Before(day) }), nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	return m.subscriptions(func(s domain.Subscription) bool { return s.UserID == userID }), nil
}

func (m *Memory) subscriptions(keep func(domain.Subscription) bool) []domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Subscription{}
	for _, s := range m.st.subs {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ListSummaries(ctx context.Context, userID int64, pt domain.PeriodType, fromKey string) ([]domain.DailyReturnSummary, error) {
	out := []domain.DailyReturnSummary{}
	for _, s := range m.Summaries(userID) {
		if s.PeriodType == pt && s.PeriodKey >= fromKey {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) SummaryTotals(ctx context.Context, userID int64) (map[domain.PeriodType]decimal.Decimal, error) {
	totals := map[domain.PeriodType]decimal.Decimal{}
	for _, pt := range domain.PeriodTypes {
		totals[pt] = decimal.Zero
	}
	for _, s := range m.Summaries(userID) {
		totals[s.PeriodType] = totals[s.PeriodType].Add(s.TotalAmount)
	}
	return totals, nil
}

func (m *Memory) DailyReturnTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range m.DailyReturnLogs() {
		if l.UserID == userID {
			total = total.Add(l.Amount)
		}
	}
	return total, nil
}

func matches(f domain.RequestFilter, userID int64, status domain.RequestStatus) bool {
	return (f.UserID == 0 || f.UserID == userID) && (f.Status == "" || f.Status == status)
}

func (m *Memory) ListRechargeRequests(ctx context.Context, f domain.RequestFilter) ([]domain.RechargeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.RechargeRequest{}
	for _, r := range m.st.recharges {
		if matches(f, r.UserID, r.Status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out[:min(len(out), listLimit(f))], nil
}

func (m *Memory) ListWithdrawalRequests(ctx context.Context, f domain.RequestFilter) ([]domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.WithdrawalRequest{}
	for _, w := range m.st.withdrawals {
		if matches(f, w.UserID, w.Status) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out[:min(len(out), listLimit(f))], nil
}

func listLimit(f domain.RequestFilter) int {
	if f.Limit <= 0 || f.Limit > domain.MaxPageLimit {
		return domain.MaxPageLimit
	}
	return f.Limit
}
