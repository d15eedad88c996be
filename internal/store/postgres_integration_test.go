//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/service"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testDB *store.Postgres

// TestMain migrates the database named by TEST_DB_SOURCE. The schema is
// truncated before every test, so point it at a disposable database.
func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		fmt.Println("TEST_DB_SOURCE not set, skipping integration tests")
		os.Exit(0)
	}

	mig, err := migrate.New("file://../../migrations", "pgx5://"+strings.TrimPrefix(strings.TrimPrefix(dsn, "postgresql://"), "postgres://"))
	if err != nil {
		panic("failed to create migrate instance: " + err.Error())
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		panic("failed to migrate: " + err.Error())
	}
	mig.Close()

	testDB, err = store.NewPostgres(context.Background(), dsn, store.Options{
		MaxConns:    16,
		LockTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		panic("failed to connect: " + err.Error())
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func setupTest(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	_, err := testDB.Db.Exec(ctx, `TRUNCATE users, wallet_transactions, plans, subscriptions,
		daily_return_logs, daily_return_summaries, recharge_requests, withdrawal_requests,
		idempotency_keys RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return ctx
}

func createTestUser(t *testing.T, ctx context.Context) int64 {
	t.Helper()
	var id int64
	err := testDB.Db.QueryRow(ctx,
		"INSERT INTO users (referral_code) VALUES ($1) RETURNING id",
		fmt.Sprintf("ref-%d", time.Now().UnixNano()),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestPlan(t *testing.T, ctx context.Context, price, daily string, days int) int64 {
	t.Helper()
	var id int64
	err := testDB.Db.QueryRow(ctx,
		"INSERT INTO plans (name, price, daily_return, duration_days) VALUES ('it', $1::numeric, $2::numeric, $3) RETURNING id",
		price, daily, days,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertInvariant(t *testing.T, ctx context.Context, userID int64) {
	t.Helper()
	var balance, sum string
	err := testDB.Db.QueryRow(ctx, `
		SELECT u.wallet_balance::text,
		       COALESCE(SUM(CASE WHEN w.type = 'CREDIT' THEN w.amount ELSE -w.amount END)
		                FILTER (WHERE w.status = 'SUCCESS'), 0)::text
		FROM users u LEFT JOIN wallet_transactions w ON w.user_id = u.id
		WHERE u.id = $1 GROUP BY u.wallet_balance`, userID).Scan(&balance, &sum)
	require.NoError(t, err)
	assert.True(t, d(balance).Equal(d(sum)), "balance %s != ledger %s", balance, sum)
}

func TestPostgres_WalletCreditDebit(t *testing.T) {
	ctx := setupTest(t)
	w := service.NewWallet(testDB, nil, zap.NewNop())
	user := createTestUser(t, ctx)

	_, err := w.CreditNow(ctx, user, d("12.34567891"), domain.SourceReward, 0, "")
	require.NoError(t, err)
	txn, err := w.DebitNow(ctx, user, d("2.34567891"), domain.SourcePurchase, 5, "")
	require.NoError(t, err)
	assert.True(t, txn.BalanceAfter.Equal(d("10")))

	_, err = w.DebitNow(ctx, user, d("10.00000001"), domain.SourceWithdraw, 0, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = w.CreditNow(ctx, 999999, d("1"), domain.SourceReward, 0, "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	u, err := testDB.GetUser(ctx, user)
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(d("10")))
	assertInvariant(t, ctx, user)
}

func TestPostgres_BalanceCheckConstraint(t *testing.T) {
	ctx := setupTest(t)
	user := createTestUser(t, ctx)
	err := testDB.InTx(ctx, func(tx store.Tx) error {
		return tx.SetUserBalance(ctx, user, d("-1"))
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestPostgres_LockTimeout(t *testing.T) {
	ctx := setupTest(t)
	user := createTestUser(t, ctx)

	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = testDB.InTx(ctx, func(tx store.Tx) error {
			if _, err := tx.LockUserBalance(ctx, user); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	err := testDB.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockUserBalance(ctx, user)
		return err
	})
	close(release)
	wg.Wait()
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))
}

func TestPostgres_ConcurrentDebits(t *testing.T) {
	ctx := setupTest(t)
	w := service.NewWallet(testDB, nil, zap.NewNop())
	user := createTestUser(t, ctx)
	_, err := w.CreditNow(ctx, user, d("50"), domain.SourceReward, 0, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := w.DebitNow(ctx, user, d("5"), domain.SourcePurchase, 0, "")
				if !domain.IsRetryable(err) {
					return
				}
			}
		}()
	}
	wg.Wait()

	u, err := testDB.GetUser(ctx, user)
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(d("0")))
	assertInvariant(t, ctx, user)
}

func TestPostgres_AccrualIsIdempotent(t *testing.T) {
	ctx := setupTest(t)
	log := zap.NewNop()
	user := createTestUser(t, ctx)
	plan := createTestPlan(t, ctx, "100", "2.5", 30)
	_, err := testDB.Db.Exec(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, price, start_date, end_date)
		VALUES ($1, $2, 100, '2025-03-01', '2025-03-30')`, user, plan)
	require.NoError(t, err)

	wallet := service.NewWallet(testDB, nil, log)
	summary := service.NewSummaryAggregator(testDB, log)
	engine := service.NewAccrualEngine(testDB, wallet, summary, testDB, nil, service.Calendar{Loc: time.UTC},
		service.AccrualOptions{Workers: 4, RetryAttempts: 5, RetryBackoff: 10 * time.Millisecond}, log)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RunAccrualFor(ctx, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var logs int
	require.NoError(t, testDB.Db.QueryRow(ctx, "SELECT COUNT(*) FROM daily_return_logs").Scan(&logs))
	assert.Equal(t, 1, logs)

	check, err := summary.Verify(ctx, user)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.True(t, check.LogTotal.Equal(d("2.5")))

	graph, err := service.NewHistory(testDB).DailyReturns(ctx, user, time.Time{}, domain.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, graph.Data, 1)
	assert.Equal(t, "2025-W11", graph.Data[0].PeriodKey)
	assertInvariant(t, ctx, user)
}

func TestPostgres_RequestsAndIdempotency(t *testing.T) {
	ctx := setupTest(t)
	log := zap.NewNop()
	user := createTestUser(t, ctx)
	wallet := service.NewWallet(testDB, nil, log)
	cal := service.Calendar{Loc: time.UTC}
	recharges := service.NewRechargeService(testDB, wallet, testDB, nil, cal, log)
	withdrawals := service.NewWithdrawalService(testDB, wallet, testDB, nil, cal, log)

	r, err := recharges.Create(ctx, service.RechargeInput{UserID: user, Amount: d("100"), ChainName: "TRON", TransactionID: "0xit"})
	require.NoError(t, err)
	_, err = recharges.Create(ctx, service.RechargeInput{UserID: user, Amount: d("100"), ChainName: "TRON", TransactionID: "0xit"})
	assert.ErrorIs(t, err, domain.ErrDuplicateProof)
	_, err = recharges.Create(ctx, service.RechargeInput{UserID: 424242, Amount: d("100"), ChainName: "TRON", TransactionID: "0xghost"})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = recharges.Approve(ctx, r.ID, 1)
	require.NoError(t, err)
	_, err = recharges.Reject(ctx, r.ID, 1, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	key := service.IdempotencyKey{Key: "it-1", Hash: "abc"}
	first, replayed, err := withdrawals.Create(ctx, service.WithdrawalInput{UserID: user, Amount: d("40"), ChainName: "TRON", BlockchainAddress: "T", Idempotency: key})
	require.NoError(t, err)
	assert.False(t, replayed)
	second, replayed, err := withdrawals.Create(ctx, service.WithdrawalInput{UserID: user, Amount: d("40"), ChainName: "TRON", BlockchainAddress: "T", Idempotency: key})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	_, err = withdrawals.Reject(ctx, first.ID, 1, "no")
	require.NoError(t, err)

	list, err := withdrawals.List(ctx, domain.RequestFilter{UserID: user, Status: domain.RequestRejected})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].NetAmount.Equal(first.NetAmount))

	u, err := testDB.GetUser(ctx, user)
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(d("100")))
	assertInvariant(t, ctx, user)

	txns, total, err := testDB.ListTransactions(ctx, user, domain.PageQuery{Limit: 2, SortBy: "amount", SortOrder: "ASC"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, txns, 2)
}
