package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	accrualUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yield_accrual_units_total",
		Help: "Subscriptions processed by the accrual and principal jobs, by outcome",
	}, []string{"job", "outcome"})

	accrualRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yield_accrual_run_duration_seconds",
		Help:    "Wall time of one accrual or principal run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
)

const (
	outcomeCredited = "credited"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

type AccrualOptions struct {
	Workers       int
	RetryAttempts int
	RetryBackoff  time.Duration
}

// AccrualEngine credits one day of profit per active subscription and returns
// principal on expired ones. Every subscription is an independent unit run in
// its own transaction, so units can be retried or re-run in any order.
type AccrualEngine struct {
	store    store.Store
	wallet   *Wallet
	summary  *SummaryAggregator
	settings SettingsReader
	pub      Publisher
	cal      Calendar
	opts     AccrualOptions
	log      *zap.Logger
}

func NewAccrualEngine(s store.Store, w *Wallet, summary *SummaryAggregator, settings SettingsReader, pub Publisher, cal Calendar, opts AccrualOptions, log *zap.Logger) *AccrualEngine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccrualEngine{
		store:    s,
		wallet:   w,
		summary:  summary,
		settings: settings,
		pub:      pub,
		cal:      cal,
		opts:     opts,
		log:      log,
	}
}

type AccrualReport struct {
	Date      string          `json:"date"`
	Processed int             `json:"processed"`
	Credited  int             `json:"credited"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Total     decimal.Decimal `json:"totalAmount"`
}

type PrincipalReport struct {
	Date      string          `json:"date"`
	Processed int             `json:"processed"`
	Returned  int             `json:"returned"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Total     decimal.Decimal `json:"totalAmount"`
}

// RunAccrualTick accrues for today in the configured time zone.
func (e *AccrualEngine) RunAccrualTick(ctx context.Context) (AccrualReport, error) {
	return e.RunAccrualFor(ctx, e.cal.Today())
}

// RunAccrualFor accrues for an explicit calendar date. Running it twice for
// the same date credits nothing the second time.
func (e *AccrualEngine) RunAccrualFor(ctx context.Context, date time.Time) (AccrualReport, error) {
	day := domain.DateOf(date, nil)
	report := AccrualReport{Date: domain.PeriodKey(domain.PeriodDay, day), Total: decimal.Zero}

	timer := prometheus.NewTimer(accrualRunDuration.WithLabelValues("accrual"))
	defer timer.ObserveDuration()

	candidates, err := e.store.ListAccrualCandidates(ctx, day)
	if err != nil {
		return report, fmt.Errorf("load accrual candidates: %w", err)
	}

	var mu sync.Mutex
	e.fanOut(ctx, len(candidates), func(ctx context.Context, i int) {
		c := candidates[i]
		var txn *domain.WalletTransaction
		err := e.retry(ctx, func() error {
			var err error
			txn, err = e.accrue(ctx, c, day)
			return err
		})

		outcome := outcomeCredited
		switch {
		case err == nil && txn == nil, errors.Is(err, domain.ErrDuplicateAccrual):
			outcome = outcomeSkipped
		case err != nil:
			outcome = outcomeFailed
			e.log.Error("accrual failed",
				zap.Int64("subscription_id", c.SubscriptionID),
				zap.Int64("user_id", c.UserID),
				zap.String("date", report.Date),
				zap.Error(err))
		}
		accrualUnitsTotal.WithLabelValues("accrual", outcome).Inc()

		mu.Lock()
		report.Processed++
		switch outcome {
		case outcomeCredited:
			report.Credited++
			report.Total = report.Total.Add(txn.Amount)
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		mu.Unlock()

		if txn != nil {
			ev := txnEvent(txn)
			accrued := ev
			accrued.ID = uuid.NewString()
			accrued.Type = domain.EventAccrualCredited
			e.pub.Publish(ctx, ev, accrued)
		}
	})

	e.log.Info("accrual run finished",
		zap.String("date", report.Date),
		zap.Int("processed", report.Processed),
		zap.Int("credited", report.Credited),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("total", report.Total.String()))
	return report, ctx.Err()
}

// accrue is one unit: claim the (subscription, day) log row, credit the
// wallet, link the log to the ledger row, then roll the amount into the
// summaries. A nil transaction with a nil error means nothing was due.
func (e *AccrualEngine) accrue(ctx context.Context, c domain.AccrualCandidate, day time.Time) (*domain.WalletTransaction, error) {
	if !c.DailyReturn.IsPositive() {
		return nil, nil
	}

	var txn *domain.WalletTransaction
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		log := &domain.DailyReturnLog{
			SubscriptionID:  c.SubscriptionID,
			UserID:          c.UserID,
			PlanID:          c.PlanID,
			Amount:          c.DailyReturn,
			CreditedForDate: day,
		}
		logID, inserted, err := tx.InsertDailyReturnLog(ctx, log)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrDuplicateAccrual
		}

		txn, err = e.wallet.Credit(ctx, tx, c.UserID, c.DailyReturn, domain.SourceDailyReturn, c.SubscriptionID,
			"daily return "+domain.PeriodKey(domain.PeriodDay, day))
		if err != nil {
			return err
		}
		if err := tx.SetDailyReturnTransaction(ctx, logID, txn.ID); err != nil {
			return err
		}
		return e.summary.Record(ctx, tx, c.UserID, day, c.DailyReturn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ReturnPrincipals closes every subscription that ended before today and
// credits its price less the principal tax. Closing is guarded on is_active,
// so each subscription pays out at most once.
func (e *AccrualEngine) ReturnPrincipals(ctx context.Context) (PrincipalReport, error) {
	today := e.cal.Today()
	report := PrincipalReport{Date: domain.PeriodKey(domain.PeriodDay, today), Total: decimal.Zero}

	timer := prometheus.NewTimer(accrualRunDuration.WithLabelValues("principal"))
	defer timer.ObserveDuration()

	settings, err := e.settings.Settings(ctx)
	if err != nil {
		return report, fmt.Errorf("settings unavailable: %w", err)
	}
	expired, err := e.store.ListExpiredSubscriptions(ctx, today)
	if err != nil {
		return report, fmt.Errorf("load expired subscriptions: %w", err)
	}

	var mu sync.Mutex
	e.fanOut(ctx, len(expired), func(ctx context.Context, i int) {
		sub := expired[i]
		var (
			txn    *domain.WalletTransaction
			closed bool
		)
		err := e.retry(ctx, func() error {
			var err error
			txn, closed, err = e.returnPrincipal(ctx, settings, sub.ID)
			return err
		})

		outcome := outcomeCredited
		switch {
		case err != nil:
			outcome = outcomeFailed
			e.log.Error("principal return failed",
				zap.Int64("subscription_id", sub.ID),
				zap.Int64("user_id", sub.UserID),
				zap.Error(err))
		case !closed:
			outcome = outcomeSkipped
		}
		accrualUnitsTotal.WithLabelValues("principal", outcome).Inc()

		mu.Lock()
		report.Processed++
		switch outcome {
		case outcomeCredited:
			report.Returned++
			if txn != nil {
				report.Total = report.Total.Add(txn.Amount)
			}
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		mu.Unlock()

		if txn != nil {
			e.pub.Publish(ctx, txnEvent(txn))
		}
	})

	e.log.Info("principal run finished",
		zap.String("date", report.Date),
		zap.Int("processed", report.Processed),
		zap.Int("returned", report.Returned),
		zap.Int("failed", report.Failed),
		zap.String("total", report.Total.String()))
	return report, ctx.Err()
}

func (e *AccrualEngine) returnPrincipal(ctx context.Context, settings domain.Settings, subscriptionID int64) (*domain.WalletTransaction, bool, error) {
	var (
		txn    *domain.WalletTransaction
		closed bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		sub, err := tx.CloseSubscription(ctx, subscriptionID)
		if err != nil || sub == nil {
			return err
		}
		closed = true

		amount := settings.PrincipalAfterTax(sub.Price)
		if !amount.IsPositive() {
			return nil
		}
		txn, err = e.wallet.Credit(ctx, tx, sub.UserID, amount, domain.SourcePrincipalReturn, sub.ID, "principal returned")
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return txn, closed, nil
}

// fanOut runs fn for indexes [0, n) on at most Workers goroutines. Units
// report their own failures, so the group itself never fails.
func (e *AccrualEngine) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// retry re-runs op while it fails with a retryable error, waiting
// attempt*RetryBackoff between attempts.
func (e *AccrualEngine) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !domain.IsRetryable(err) || attempt >= e.opts.RetryAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * e.opts.RetryBackoff):
		}
	}
}
