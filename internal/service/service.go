package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/shopspring/decimal"
)

// SettingsReader is the read-only platform settings collaborator.
type SettingsReader interface {
	Settings(ctx context.Context) (domain.Settings, error)
}

// Publisher fans ledger events out to other systems. Publish is called only
// after the producing transaction committed and must not block the caller on
// delivery failures.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.LedgerEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...domain.LedgerEvent) {}

// Calendar resolves "today" in the accrual time zone.
type Calendar struct {
	Loc *time.Location
	Now func() time.Time
}

func (c Calendar) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Today returns the current calendar date as midnight UTC.
func (c Calendar) Today() time.Time {
	loc := c.Loc
	if loc == nil {
		loc = time.UTC
	}
	return domain.DateOf(c.now(), loc)
}

func txnEvent(t *domain.WalletTransaction) domain.LedgerEvent {
	kind := domain.EventWalletCredited
	if t.Type == domain.TxnDebit {
		kind = domain.EventWalletDebited
	}
	return domain.LedgerEvent{
		ID:            uuid.NewString(),
		Type:          kind,
		UserID:        t.UserID,
		TransactionID: t.ID,
		Source:        t.Source,
		ReferenceID:   t.ReferenceID,
		Amount:        t.Amount,
		Status:        string(t.Status),
		Timestamp:     t.CreatedAt,
	}
}

// reviewEvent reports a request reaching a terminal status. Source tells
// recharges (RECHARGE) from withdrawals (WITHDRAW).
func reviewEvent(userID, requestID int64, source domain.TxnSource, amount decimal.Decimal, status domain.RequestStatus, at time.Time) domain.LedgerEvent {
	return domain.LedgerEvent{
		ID:          uuid.NewString(),
		Type:        domain.EventRequestReviewed,
		UserID:      userID,
		Source:      source,
		ReferenceID: requestID,
		Amount:      amount,
		Status:      string(status),
		Timestamp:   at,
	}
}
