package storetest

import (
	"context"
	"fmt"
	"sort"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/shopspring/decimal"
)

// memTx mutates a private copy of the state that InTx publishes on success.
type memTx struct {
	st *state
}

func (t *memTx) LockUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return decimal.Zero, domain.ErrUserNotFound
	}
	return u.WalletBalance, nil
}

func (t *memTx) SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	u, ok := t.st.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if balance.IsNegative() {
		return fmt.Errorf("%w: check constraint", domain.ErrInsufficientFunds)
	}
	u.WalletBalance = balance
	t.st.users[userID] = u
	return nil
}

func (t *memTx) InsertWalletTransaction(ctx context.Context, w *domain.WalletTransaction) (int64, error) {
	if !w.Amount.IsPositive() {
		return 0, fmt.Errorf("amount check constraint violated: %s", w.Amount)
	}
	w.ID = t.st.next()
	w.CreatedAt = stamp(w.ID)
	t.st.txns = append(t.st.txns, *w)
	return w.ID, nil
}

func (t *memTx) InsertDailyReturnLog(ctx context.Context, l *domain.DailyReturnLog) (int64, bool, error) {
	for _, existing := range t.st.logs {
		if existing.SubscriptionID == l.SubscriptionID && existing.CreditedForDate.Equal(l.CreditedForDate) {
			return 0, false, nil
		}
	}
	l.ID = t.st.next()
	l.CreatedAt = stamp(l.ID)
	t.st.logs = append(t.st.logs, *l)
	return l.ID, true, nil
}

func (t *memTx) SetDailyReturnTransaction(ctx context.Context, logID, txnID int64) error {
	for i := range t.st.logs {
		if t.st.logs[i].ID == logID {
			id := txnID
			t.st.logs[i].WalletTransactionID = &id
			return nil
		}
	}
	return fmt.Errorf("daily return log %d not found", logID)
}

func (t *memTx) ListDailyReturnLogs(ctx context.Context, userID int64) ([]domain.DailyReturnLog, error) {
	var out []domain.DailyReturnLog
	for _, l := range t.st.logs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreditedForDate.Before(out[j].CreditedForDate) })
	return out, nil
}

func (t *memTx) UpsertSummary(ctx context.Context, userID int64, pt domain.PeriodType, key string, amount decimal.Decimal) error {
	k := summaryKey{userID, pt, key}
	row, ok := t.st.summaries[k]
	if !ok {
		row = domain.DailyReturnSummary{UserID: userID, PeriodType: pt, PeriodKey: key, TotalAmount: decimal.Zero}
	}
	row.TotalAmount = row.TotalAmount.Add(amount)
	row.Count++
	t.st.summaries[k] = row
	return nil
}

func (t *memTx) DeleteSummaries(ctx context.Context, userID int64) error {
	for k := range t.st.summaries {
		if k.userID == userID {
			delete(t.st.summaries, k)
		}
	}
	return nil
}

func (t *memTx) GetPlan(ctx context.Context, planID int64) (*domain.Plan, error) {
	p, ok := t.st.plans[planID]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return &p, nil
}

func (t *memTx) InsertSubscription(ctx context.Context, s *domain.Subscription) (int64, error) {
	s.ID = t.st.next()
	s.CreatedAt = stamp(s.ID)
	s.IsActive = true
	t.st.subs[s.ID] = *s
	return s.ID, nil
}

func (t *memTx) CloseSubscription(ctx context.Context, subscriptionID int64) (*domain.Subscription, error) {
	s, ok := t.st.subs[subscriptionID]
	if !ok || !s.IsActive {
		return nil, nil
	}
	s.IsActive = false
	s.PrincipalReturned = true
	t.st.subs[subscriptionID] = s
	return &s, nil
}

func (t *memTx) InsertRechargeRequest(ctx context.Context, r *domain.RechargeRequest) (int64, error) {
	if _, ok := t.st.users[r.UserID]; !ok {
		return 0, domain.ErrUserNotFound
	}
	for _, existing := range t.st.recharges {
		if existing.TransactionID == r.TransactionID {
			return 0, fmt.Errorf("%w: %s", domain.ErrDuplicateProof, r.TransactionID)
		}
	}
	r.ID = t.st.next()
	r.CreatedAt = stamp(r.ID)
	t.st.recharges[r.ID] = *r
	return r.ID, nil
}

func (t *memTx) LockRechargeRequest(ctx context.Context, id int64) (*domain.RechargeRequest, error) {
	r, ok := t.st.recharges[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return &r, nil
}

func (t *memTx) ReviewRechargeRequest(ctx context.Context, id int64, rv domain.Review) error {
	r, ok := t.st.recharges[id]
	if !ok || r.Status != domain.RequestPending {
		return domain.ErrInvalidTransition
	}
	r.Status, r.Reason = rv.Status, rv.Reason
	admin, at := rv.AdminID, rv.At
	r.ApprovedByID, r.ReviewedAt = &admin, &at
	t.st.recharges[id] = r
	return nil
}

func (t *memTx) InsertWithdrawalRequest(ctx context.Context, w *domain.WithdrawalRequest) (int64, error) {
	if !w.NetAmount.Equal(w.Amount.Sub(w.Fee)) || w.NetAmount.IsNegative() {
		return 0, fmt.Errorf("net amount check constraint violated")
	}
	w.ID = t.st.next()
	w.CreatedAt = stamp(w.ID)
	t.st.withdrawals[w.ID] = *w
	return w.ID, nil
}

func (t *memTx) LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return &w, nil
}

func (t *memTx) ReviewWithdrawalRequest(ctx context.Context, id int64, rv domain.Review) error {
	w, ok := t.st.withdrawals[id]
	if !ok || w.Status != domain.RequestPending {
		return domain.ErrInvalidTransition
	}
	w.Status, w.Reason = rv.Status, rv.Reason
	admin, at := rv.AdminID, rv.At
	w.ApprovedByID, w.ReviewedAt = &admin, &at
	t.st.withdrawals[id] = w
	return nil
}

// Transactions are serialized, so a reserved key is always completed by the
// time another transaction can see it.
func (t *memTx) ReserveIdempotencyKey(ctx context.Context, userID int64, key, scope, hash string) (*domain.IdempotencyRecord, error) {
	k := idemKey{userID, key}
	if rec, ok := t.st.idem[k]; ok {
		if rec.RequestHash != hash || rec.Scope != scope {
			return nil, domain.ErrIdempotencyMismatch
		}
		return &rec, nil
	}
	t.st.idem[k] = domain.IdempotencyRecord{UserID: userID, Key: key, Scope: scope, RequestHash: hash}
	return nil, nil
}

func (t *memTx) CompleteIdempotencyKey(ctx context.Context, userID int64, key string, body []byte) error {
	k := idemKey{userID, key}
	rec, ok := t.st.idem[k]
	if !ok {
		return fmt.Errorf("idempotency key %q not reserved", key)
	}
	rec.ResponseBody = append([]byte(nil), body...)
	t.st.idem[k] = rec
	return nil
}
