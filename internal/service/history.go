package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
)

// History serves the read paths. Reads go straight to the store and never
// take row locks.
type History struct {
	store store.Store
}

func NewHistory(s store.Store) *History {
	return &History{store: s}
}

func (h *History) Balance(ctx context.Context, userID int64) (*domain.User, error) {
	return h.store.GetUser(ctx, userID)
}

type TransactionPage struct {
	Data []domain.WalletTransaction `json:"data"`
	Meta domain.PageMeta            `json:"meta"`
}

func (h *History) Transactions(ctx context.Context, userID int64, q domain.PageQuery) (*TransactionPage, error) {
	if _, err := h.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	q = q.Normalize()
	rows, total, err := h.store.ListTransactions(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	return &TransactionPage{Data: rows, Meta: domain.NewPageMeta(q, total)}, nil
}

type ReturnsPoint struct {
	PeriodKey   string          `json:"periodKey"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Count       int64           `json:"count"`
}

type ReturnsGraph struct {
	GroupBy domain.PeriodType `json:"groupBy"`
	Data    []ReturnsPoint    `json:"data"`
	Summary struct {
		TotalProfit decimal.Decimal `json:"totalProfit"`
	} `json:"summary"`
}

// DailyReturns reads the rollups of one granularity from the period that
// contains since onwards. Keys sort chronologically within a granularity, so
// the lower bound is a plain key comparison. TotalProfit sums the returned
// points.
func (h *History) DailyReturns(ctx context.Context, userID int64, since time.Time, groupBy domain.PeriodType) (*ReturnsGraph, error) {
	if _, err := h.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	fromKey := ""
	if !since.IsZero() {
		fromKey = domain.PeriodKey(groupBy, since)
	}
	rows, err := h.store.ListSummaries(ctx, userID, groupBy, fromKey)
	if err != nil {
		return nil, err
	}

	g := &ReturnsGraph{GroupBy: groupBy, Data: make([]ReturnsPoint, 0, len(rows))}
	g.Summary.TotalProfit = decimal.Zero
	for _, r := range rows {
		g.Data = append(g.Data, ReturnsPoint{PeriodKey: r.PeriodKey, TotalAmount: r.TotalAmount, Count: r.Count})
		g.Summary.TotalProfit = g.Summary.TotalProfit.Add(r.TotalAmount)
	}
	return g, nil
}
