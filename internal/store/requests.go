package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/yieldledger/internal/domain"
)

const rechargeColumns = `id, user_id, amount::text, chain_name, blockchain_address, transaction_id,
	proof_key, status, approved_by_id, reason, created_at, reviewed_at`

const withdrawalColumns = `id, user_id, amount::text, fee::text, net_amount::text, chain_name,
	blockchain_address, status, approved_by_id, reason, created_at, reviewed_at`

func scanRecharge(row pgx.Row) (*domain.RechargeRequest, error) {
	var r domain.RechargeRequest
	var amount string
	if err := row.Scan(&r.ID, &r.UserID, &amount, &r.ChainName, &r.BlockchainAddress, &r.TransactionID,
		&r.ProofKey, &r.Status, &r.ApprovedByID, &r.Reason, &r.CreatedAt, &r.ReviewedAt); err != nil {
		return nil, err
	}
	if err := parseDecimal(&r.Amount, amount); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var amount, fee, net string
	if err := row.Scan(&w.ID, &w.UserID, &amount, &fee, &net, &w.ChainName,
		&w.BlockchainAddress, &w.Status, &w.ApprovedByID, &w.Reason, &w.CreatedAt, &w.ReviewedAt); err != nil {
		return nil, err
	}
	if err := parseDecimal(&w.Amount, amount); err != nil {
		return nil, err
	}
	if err := parseDecimal(&w.Fee, fee); err != nil {
		return nil, err
	}
	if err := parseDecimal(&w.NetAmount, net); err != nil {
		return nil, err
	}
	return &w, nil
}

func (t *pgTx) InsertRechargeRequest(ctx context.Context, r *domain.RechargeRequest) (int64, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO recharge_requests (user_id, amount, chain_name, blockchain_address, transaction_id, proof_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		r.UserID, r.Amount.String(), r.ChainName, r.BlockchainAddress, r.TransactionID, r.ProofKey, r.Status,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("recharge insert failed: %w", err)
	}
	return r.ID, nil
}

func (t *pgTx) LockRechargeRequest(ctx context.Context, id int64) (*domain.RechargeRequest, error) {
	r, err := scanRecharge(t.tx.QueryRow(ctx,
		"SELECT "+rechargeColumns+" FROM recharge_requests WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return r, nil
}

func (t *pgTx) ReviewRechargeRequest(ctx context.Context, id int64, rv domain.Review) error {
	return t.review(ctx, "recharge_requests", id, rv)
}

func (t *pgTx) InsertWithdrawalRequest(ctx context.Context, w *domain.WithdrawalRequest) (int64, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (user_id, amount, fee, net_amount, chain_name, blockchain_address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		w.UserID, w.Amount.String(), w.Fee.String(), w.NetAmount.String(), w.ChainName, w.BlockchainAddress, w.Status,
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("withdrawal insert failed: %w", err)
	}
	return w.ID, nil
}

func (t *pgTx) LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(t.tx.QueryRow(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return w, nil
}

func (t *pgTx) ReviewWithdrawalRequest(ctx context.Context, id int64, rv domain.Review) error {
	return t.review(ctx, "withdrawal_requests", id, rv)
}

// review moves a pending request to its terminal status. The status guard in
// the WHERE clause makes a second review a no-op that reports the transition
// as invalid.
func (t *pgTx) review(ctx context.Context, table string, id int64, rv domain.Review) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE `+table+`
		SET status = $1, approved_by_id = $2, reason = $3, reviewed_at = $4
		WHERE id = $5 AND status = 'PENDING'`,
		rv.Status, rv.AdminID, rv.Reason, rv.At, id)
	if err != nil {
		return fmt.Errorf("%s review failed: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func requestWhere(f domain.RequestFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > domain.MaxPageLimit {
		limit = domain.MaxPageLimit
	}
	args = append(args, limit)
	return fmt.Sprintf("%s ORDER BY created_at DESC, id DESC LIMIT $%d", where, len(args)), args
}

func (s *Postgres) ListRechargeRequests(ctx context.Context, f domain.RequestFilter) ([]domain.RechargeRequest, error) {
	where, args := requestWhere(f)
	rows, err := s.Db.Query(ctx, "SELECT "+rechargeColumns+" FROM recharge_requests WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.RechargeRequest{}
	for rows.Next() {
		r, err := scanRecharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Postgres) ListWithdrawalRequests(ctx context.Context, f domain.RequestFilter) ([]domain.WithdrawalRequest, error) {
	where, args := requestWhere(f)
	rows, err := s.Db.Query(ctx, "SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WithdrawalRequest{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
