package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Wallet is the only writer of balances and ledger rows. Callers pass the
// transaction that owns the atomicity boundary; the mutation commits with
// whatever else the caller wrote through the same tx.
type Wallet struct {
	store store.Store
	pub   Publisher
	log   *zap.Logger
}

func NewWallet(s store.Store, pub Publisher, log *zap.Logger) *Wallet {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Wallet{store: s, pub: pub, log: log}
}

// Credit adds amount to the user's balance and appends a SUCCESS CREDIT row.
func (w *Wallet) Credit(ctx context.Context, tx store.Tx, userID int64, amount decimal.Decimal, source domain.TxnSource, referenceID int64, description string) (*domain.WalletTransaction, error) {
	return w.apply(ctx, tx, domain.TxnCredit, userID, amount, source, referenceID, description)
}

// Debit subtracts amount and appends a SUCCESS DEBIT row. A debit larger
// than the balance fails with domain.ErrInsufficientFunds and writes nothing.
func (w *Wallet) Debit(ctx context.Context, tx store.Tx, userID int64, amount decimal.Decimal, source domain.TxnSource, referenceID int64, description string) (*domain.WalletTransaction, error) {
	return w.apply(ctx, tx, domain.TxnDebit, userID, amount, source, referenceID, description)
}

func (w *Wallet) apply(ctx context.Context, tx store.Tx, kind domain.TxnType, userID int64, amount decimal.Decimal, source domain.TxnSource, referenceID int64, description string) (*domain.WalletTransaction, error) {
	if err := domain.CheckAmount(amount); err != nil {
		return nil, err
	}

	balance, err := tx.LockUserBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := balance.Add(amount)
	if kind == domain.TxnDebit {
		if amount.GreaterThan(balance) {
			return nil, domain.ErrInsufficientFunds
		}
		next = balance.Sub(amount)
	} else if next.GreaterThan(domain.MaxAmount) {
		return nil, fmt.Errorf("%w: balance would exceed %s", domain.ErrInvalidAmount, domain.MaxAmount)
	}

	if err := tx.SetUserBalance(ctx, userID, next); err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}

	t := &domain.WalletTransaction{
		UserID:       userID,
		Type:         kind,
		Amount:       amount,
		Source:       source,
		ReferenceID:  referenceID,
		Status:       domain.TxnSuccess,
		Description:  description,
		BalanceAfter: next,
	}
	if _, err := tx.InsertWalletTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("ledger insert failed: %w", err)
	}
	return t, nil
}

// Run executes fn in one transaction with bounded lock waits.
func (w *Wallet) Run(ctx context.Context, fn func(tx store.Tx) error) error {
	return w.store.InTx(ctx, fn)
}

// CreditNow runs a single credit in its own transaction and publishes it.
func (w *Wallet) CreditNow(ctx context.Context, userID int64, amount decimal.Decimal, source domain.TxnSource, referenceID int64, description string) (*domain.WalletTransaction, error) {
	return w.now(ctx, w.Credit, userID, amount, source, referenceID, description)
}

// DebitNow runs a single debit in its own transaction and publishes it.
func (w *Wallet) DebitNow(ctx context.Context, userID int64, amount decimal.Decimal, source domain.TxnSource, referenceID int64, description string) (*domain.WalletTransaction, error) {
	return w.now(ctx, w.Debit, userID, amount, source, referenceID, description)
}

type mutation func(context.Context, store.Tx, int64, decimal.Decimal, domain.TxnSource, int64, string) (*domain.WalletTransaction, error)

func (w *Wallet) now(ctx context.Context, m mutation, userID int64, amount decimal.Decimal, source domain.TxnSource, referenceID int64, description string) (*domain.WalletTransaction, error) {
	var t *domain.WalletTransaction
	err := w.Run(ctx, func(tx store.Tx) error {
		var err error
		t, err = m(ctx, tx, userID, amount, source, referenceID, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.log.Debug("wallet mutation committed",
		zap.Int64("user_id", userID),
		zap.String("type", string(t.Type)),
		zap.String("source", string(source)),
		zap.String("amount", amount.String()))
	w.pub.Publish(ctx, txnEvent(t))
	return t, nil
}
