package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/shopspring/decimal"
)

// InsertDailyReturnLog is the accrual idempotency boundary. A concurrent
// insert for the same key waits on the unique index and then takes the
// DO NOTHING branch once the first writer commits.
func (t *pgTx) InsertDailyReturnLog(ctx context.Context, l *domain.DailyReturnLog) (int64, bool, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO daily_return_logs (subscription_id, user_id, plan_id, amount, credited_for_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscription_id, credited_for_date) DO NOTHING
		RETURNING id, created_at`,
		l.SubscriptionID, l.UserID, l.PlanID, l.Amount.String(), l.CreditedForDate,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("daily return log insert failed: %w", err)
	}
	return l.ID, true, nil
}

func (t *pgTx) SetDailyReturnTransaction(ctx context.Context, logID, txnID int64) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE daily_return_logs SET wallet_transaction_id = $1 WHERE id = $2", txnID, logID)
	return err
}

func (t *pgTx) ListDailyReturnLogs(ctx context.Context, userID int64) ([]domain.DailyReturnLog, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, subscription_id, user_id, plan_id, amount::text, credited_for_date, wallet_transaction_id, created_at
		FROM daily_return_logs
		WHERE user_id = $1
		ORDER BY credited_for_date, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.DailyReturnLog
	for rows.Next() {
		var l domain.DailyReturnLog
		var amount string
		if err := rows.Scan(&l.ID, &l.SubscriptionID, &l.UserID, &l.PlanID, &amount,
			&l.CreditedForDate, &l.WalletTransactionID, &l.CreatedAt); err != nil {
			return nil, err
		}
		if err := parseDecimal(&l.Amount, amount); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpsertSummary adds amount to the rollup row, creating it on first use.
func (t *pgTx) UpsertSummary(ctx context.Context, userID int64, pt domain.PeriodType, key string, amount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO daily_return_summaries (user_id, period_type, period_key, total_amount, count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (user_id, period_type, period_key) DO UPDATE
		SET total_amount = daily_return_summaries.total_amount + EXCLUDED.total_amount,
		    count = daily_return_summaries.count + 1,
		    updated_at = NOW()`,
		userID, pt, key, amount.String())
	if err != nil {
		return fmt.Errorf("summary upsert failed: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteSummaries(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, "DELETE FROM daily_return_summaries WHERE user_id = $1", userID)
	return err
}

func (t *pgTx) GetPlan(ctx context.Context, planID int64) (*domain.Plan, error) {
	var p domain.Plan
	var price, daily string
	err := t.tx.QueryRow(ctx,
		"SELECT id, name, price::text, daily_return::text, duration_days, is_active FROM plans WHERE id = $1",
		planID,
	).Scan(&p.ID, &p.Name, &price, &daily, &p.DurationDays, &p.IsActive)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	if err := parseDecimal(&p.Price, price); err != nil {
		return nil, err
	}
	if err := parseDecimal(&p.DailyReturn, daily); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) InsertSubscription(ctx context.Context, s *domain.Subscription) (int64, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, price, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at`,
		s.UserID, s.PlanID, s.Price.String(), s.StartDate, s.EndDate,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("subscription insert failed: %w", err)
	}
	s.IsActive = true
	return s.ID, nil
}

func (t *pgTx) CloseSubscription(ctx context.Context, subscriptionID int64) (*domain.Subscription, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET is_active = FALSE, principal_returned = TRUE
		WHERE id = $1 AND is_active
		RETURNING `+subscriptionColumns, subscriptionID)
	s, err := scanSubscription(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

const subscriptionColumns = "id, user_id, plan_id, price::text, start_date, end_date, is_active, principal_returned, created_at"

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	var price string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &price, &s.StartDate, &s.EndDate,
		&s.IsActive, &s.PrincipalReturned, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseDecimal(&s.Price, price); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Postgres) listSubscriptions(ctx context.Context, where string, args ...any) ([]domain.Subscription, error) {
	rows, err := s.Db.Query(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListAccrualCandidates returns the subscriptions owed a return for day.
// Closed subscriptions are included so a missed final day can be backfilled
// after the principal went back; the daily log's unique key stops repeats.
func (s *Postgres) ListAccrualCandidates(ctx context.Context, day time.Time) ([]domain.AccrualCandidate, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT s.id, s.user_id, s.plan_id, p.daily_return::text
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.start_date <= $1 AND s.end_date >= $1
		ORDER BY s.id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccrualCandidate
	for rows.Next() {
		var c domain.AccrualCandidate
		var daily string
		if err := rows.Scan(&c.SubscriptionID, &c.UserID, &c.PlanID, &daily); err != nil {
			return nil, err
		}
		if err := parseDecimal(&c.DailyReturn, daily); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListExpiredSubscriptions(ctx context.Context, day time.Time) ([]domain.Subscription, error) {
	return s.listSubscriptions(ctx, "is_active AND end_date < $1", day)
}

func (s *Postgres) ListSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	return s.listSubscriptions(ctx, "user_id = $1", userID)
}

// ListSummaries returns rollup rows of one granularity from fromKey onward,
// oldest first. Keys of every granularity sort chronologically as text.
func (s *Postgres) ListSummaries(ctx context.Context, userID int64, pt domain.PeriodType, fromKey string) ([]domain.DailyReturnSummary, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT user_id, period_type, period_key, total_amount::text, count
		FROM daily_return_summaries
		WHERE user_id = $1 AND period_type = $2 AND period_key >= $3
		ORDER BY period_key`, userID, pt, fromKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DailyReturnSummary{}
	for rows.Next() {
		var r domain.DailyReturnSummary
		var total string
		if err := rows.Scan(&r.UserID, &r.PeriodType, &r.PeriodKey, &total, &r.Count); err != nil {
			return nil, err
		}
		if err := parseDecimal(&r.TotalAmount, total); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) SummaryTotals(ctx context.Context, userID int64) (map[domain.PeriodType]decimal.Decimal, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT period_type, COALESCE(SUM(total_amount), 0)::text
		FROM daily_return_summaries
		WHERE user_id = $1
		GROUP BY period_type`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[domain.PeriodType]decimal.Decimal, len(domain.PeriodTypes))
	for _, pt := range domain.PeriodTypes {
		totals[pt] = decimal.Zero
	}
	for rows.Next() {
		var pt domain.PeriodType
		var raw string
		var v decimal.Decimal
		if err := rows.Scan(&pt, &raw); err != nil {
			return nil, err
		}
		if err := parseDecimal(&v, raw); err != nil {
			return nil, err
		}
		totals[pt] = v
	}
	return totals, rows.Err()
}

func (s *Postgres) DailyReturnTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var raw string
	if err := s.Db.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0)::text FROM daily_return_logs WHERE user_id = $1", userID,
	).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err := parseDecimal(&total, raw)
	return total, err
}
