package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Tx is the transaction-scoped handle threaded through every ledger write.
// Everything done through one Tx commits or rolls back together.
type Tx interface {
	// LockUserBalance takes the exclusive row lock on the user's balance and
	// returns the balance as of the lock.
	LockUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) error
	InsertWalletTransaction(ctx context.Context, t *domain.WalletTransaction) (int64, error)

	// InsertDailyReturnLog returns inserted=false when a row for the same
	// subscription and date already exists.
	InsertDailyReturnLog(ctx context.Context, l *domain.DailyReturnLog) (id int64, inserted bool, err error)
	SetDailyReturnTransaction(ctx context.Context, logID, txnID int64) error
	ListDailyReturnLogs(ctx context.Context, userID int64) ([]domain.DailyReturnLog, error)
	UpsertSummary(ctx context.Context, userID int64, pt domain.PeriodType, key string, amount decimal.Decimal) error
	DeleteSummaries(ctx context.Context, userID int64) error

	GetPlan(ctx context.Context, planID int64) (*domain.Plan, error)
	InsertSubscription(ctx context.Context, s *domain.Subscription) (int64, error)
	// CloseSubscription flips an active subscription to inactive and returns
	// it, or returns nil when it was already closed.
	CloseSubscription(ctx context.Context, subscriptionID int64) (*domain.Subscription, error)

	InsertRechargeRequest(ctx context.Context, r *domain.RechargeRequest) (int64, error)
	LockRechargeRequest(ctx context.Context, id int64) (*domain.RechargeRequest, error)
	ReviewRechargeRequest(ctx context.Context, id int64, rv domain.Review) error

	InsertWithdrawalRequest(ctx context.Context, w *domain.WithdrawalRequest) (int64, error)
	LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error)
	ReviewWithdrawalRequest(ctx context.Context, id int64, rv domain.Review) error

	// ReserveIdempotencyKey claims key for the user and returns nil, or
	// returns the completed record stored under it. A key reused with a
	// different request hash or scope fails with domain.ErrIdempotencyMismatch.
	ReserveIdempotencyKey(ctx context.Context, userID int64, key, scope, hash string) (*domain.IdempotencyRecord, error)
	CompleteIdempotencyKey(ctx context.Context, userID int64, key string, body []byte) error
}

// Store is the ledger store: a transaction runner plus the read paths.
type Store interface {
	// InTx runs fn in one database transaction and commits when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	ListTransactions(ctx context.Context, userID int64, q domain.PageQuery) ([]domain.WalletTransaction, int64, error)

	ListAccrualCandidates(ctx context.Context, day time.Time) ([]domain.AccrualCandidate, error)
	ListExpiredSubscriptions(ctx context.Context, day time.Time) ([]domain.Subscription, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error)

	ListSummaries(ctx context.Context, userID int64, pt domain.PeriodType, fromKey string) ([]domain.DailyReturnSummary, error)
	SummaryTotals(ctx context.Context, userID int64) (map[domain.PeriodType]decimal.Decimal, error)
	DailyReturnTotal(ctx context.Context, userID int64) (decimal.Decimal, error)

	ListRechargeRequests(ctx context.Context, f domain.RequestFilter) ([]domain.RechargeRequest, error)
	ListWithdrawalRequests(ctx context.Context, f domain.RequestFilter) ([]domain.WithdrawalRequest, error)
}
