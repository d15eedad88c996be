package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	mem      *storetest.Memory
	settings *storetest.Settings
	pub      *recordingPublisher
	clock    *time.Time

	wallet      *Wallet
	summary     *SummaryAggregator
	recharges   *RechargeService
	withdrawals *WithdrawalService
	purchases   *PurchaseService
	accrual     *AccrualEngine
	history     *History
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		mem: storetest.New(),
		settings: storetest.NewSettings(domain.Settings{
			MinRecharge:   d("10"),
			MinWithdrawal: d("10"),
			WithdrawalFee: d("5"),
			PrincipalTax:  d("10"),
		}),
		pub:   &recordingPublisher{},
		clock: &now,
	}
	cal := Calendar{Loc: time.UTC, Now: func() time.Time { return *f.clock }}
	log := zap.NewNop()

	f.wallet = NewWallet(f.mem, f.pub, log)
	f.summary = NewSummaryAggregator(f.mem, log)
	f.recharges = NewRechargeService(f.mem, f.wallet, f.settings, f.pub, cal, log)
	f.withdrawals = NewWithdrawalService(f.mem, f.wallet, f.settings, f.pub, cal, log)
	f.purchases = NewPurchaseService(f.mem, f.wallet, f.pub, cal, log)
	f.accrual = NewAccrualEngine(f.mem, f.wallet, f.summary, f.settings, f.pub, cal,
		AccrualOptions{Workers: 4, RetryAttempts: 3, RetryBackoff: time.Millisecond}, log)
	f.history = NewHistory(f.mem)
	return f
}

// fundedUser creates a user whose opening balance is itself a ledger credit,
// so the balance invariant holds from the start.
func (f *fixture) fundedUser(t *testing.T, amount string) int64 {
	t.Helper()
	id := f.mem.AddUser(decimal.Zero, nil)
	if amount != "0" {
		_, err := f.wallet.CreditNow(context.Background(), id, d(amount), domain.SourceReward, 0, "opening balance")
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) setToday(y int, m time.Month, day int) {
	*f.clock = time.Date(y, m, day, 12, 0, 0, 0, time.UTC)
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func assertBalanceInvariant(t *testing.T, f *fixture, userID int64) {
	t.Helper()
	assert.True(t, f.mem.Balance(userID).Equal(f.mem.LedgerSum(userID)),
		"balance %s != ledger sum %s", f.mem.Balance(userID), f.mem.LedgerSum(userID))
}

func assertBalance(t *testing.T, f *fixture, userID int64, want string) {
	t.Helper()
	got := f.mem.Balance(userID)
	assert.True(t, got.Equal(d(want)), "balance = %s, want %s", got, want)
}
