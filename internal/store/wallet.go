package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/shopspring/decimal"
)

func (t *pgTx) LockUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRow(ctx,
		"SELECT wallet_balance::text FROM users WHERE id = $1 FOR UPDATE", userID,
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return decimal.Zero, domain.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("lock acquisition failed: %w", err)
	}
	var balance decimal.Decimal
	if err := parseDecimal(&balance, raw); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (t *pgTx) SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, "UPDATE users SET wallet_balance = $1 WHERE id = $2", balance.String(), userID)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *pgTx) InsertWalletTransaction(ctx context.Context, w *domain.WalletTransaction) (int64, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (user_id, type, amount, source, reference_id, status, description, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		w.UserID, w.Type, w.Amount.String(), w.Source, w.ReferenceID, w.Status, w.Description, w.BalanceAfter.String(),
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("ledger entry failed: %w", err)
	}
	return w.ID, nil
}

// GetUser retrieves a single user with its cached balance.
func (s *Postgres) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	var raw string
	err := s.Db.QueryRow(ctx,
		"SELECT id, wallet_balance::text, referral_code, referred_by, created_at FROM users WHERE id = $1",
		userID,
	).Scan(&u.ID, &raw, &u.ReferralCode, &u.ReferredBy, &u.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if err := parseDecimal(&u.WalletBalance, raw); err != nil {
		return nil, err
	}
	return &u, nil
}

var transactionSortColumns = map[string]string{
	"createdAt": "created_at",
	"amount":    "amount",
}

// ListTransactions returns one page of a user's ledger and the total row count.
func (s *Postgres) ListTransactions(ctx context.Context, userID int64, q domain.PageQuery) ([]domain.WalletTransaction, int64, error) {
	q = q.Normalize()

	var total int64
	if err := s.Db.QueryRow(ctx,
		"SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1", userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Column and direction come from the Normalize whitelist.
	query := fmt.Sprintf(`
		SELECT id, user_id, type, amount::text, source, reference_id, status, description, balance_after::text, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY %s %s, id %s
		LIMIT $2 OFFSET $3`,
		transactionSortColumns[q.SortBy], q.SortOrder, q.SortOrder)

	rows, err := s.Db.Query(ctx, query, userID, q.Limit, q.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txns := []domain.WalletTransaction{}
	for rows.Next() {
		var w domain.WalletTransaction
		var amount, after string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Type, &amount, &w.Source, &w.ReferenceID,
			&w.Status, &w.Description, &after, &w.CreatedAt); err != nil {
			return nil, 0, err
		}
		if err := parseDecimal(&w.Amount, amount); err != nil {
			return nil, 0, err
		}
		if err := parseDecimal(&w.BalanceAfter, after); err != nil {
			return nil, 0, err
		}
		txns = append(txns, w)
	}
	return txns, total, rows.Err()
}
