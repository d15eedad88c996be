package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WithdrawalInput struct {
	UserID            int64
	Amount            decimal.Decimal
	ChainName         string
	BlockchainAddress string
	Idempotency       IdempotencyKey
}

// WithdrawalService reserves funds when a withdrawal is requested: the full
// amount is debited in the transaction that inserts the request. Approval is
// status-only (the payout happens off-ledger); rejection credits the amount
// back.
type WithdrawalService struct {
	store    store.Store
	wallet   *Wallet
	settings SettingsReader
	pub      Publisher
	cal      Calendar
	log      *zap.Logger
}

func NewWithdrawalService(s store.Store, w *Wallet, settings SettingsReader, pub Publisher, cal Calendar, log *zap.Logger) *WithdrawalService {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WithdrawalService{store: s, wallet: w, settings: settings, pub: pub, cal: cal, log: log}
}

// Create inserts the request and debits the full amount in one transaction.
// replayed is true when the idempotency key matched an earlier request, in
// which case that request is returned and nothing is written.
func (s *WithdrawalService) Create(ctx context.Context, in WithdrawalInput) (w *domain.WithdrawalRequest, replayed bool, err error) {
	if err := domain.CheckAmount(in.Amount); err != nil {
		return nil, false, err
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("settings unavailable: %w", err)
	}
	fee, net, err := settings.WithdrawalQuote(in.Amount)
	if err != nil {
		return nil, false, err
	}

	var txn *domain.WalletTransaction
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		// The balance row is locked first so every write below happens under
		// it, and an unknown user fails before any insert.
		if _, err := tx.LockUserBalance(ctx, in.UserID); err != nil {
			return err
		}
		var err error
		w, replayed, err = idempotent(ctx, tx, in.UserID, "withdrawal", in.Idempotency, func() (*domain.WithdrawalRequest, error) {
			req := &domain.WithdrawalRequest{
				UserID:            in.UserID,
				Amount:            in.Amount,
				Fee:               fee,
				NetAmount:         net,
				ChainName:         in.ChainName,
				BlockchainAddress: in.BlockchainAddress,
				Status:            domain.RequestPending,
			}
			if _, err := tx.InsertWithdrawalRequest(ctx, req); err != nil {
				return nil, err
			}
			var err error
			txn, err = s.wallet.Debit(ctx, tx, req.UserID, req.Amount, domain.SourceWithdraw, req.ID, "withdrawal reserved")
			return req, err
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if replayed {
		return w, true, nil
	}

	s.log.Info("withdrawal requested",
		zap.Int64("request_id", w.ID),
		zap.Int64("user_id", w.UserID),
		zap.String("amount", w.Amount.String()),
		zap.String("fee", w.Fee.String()))
	s.pub.Publish(ctx, txnEvent(txn))
	return w, false, nil
}

// Approve marks the request APPROVED. The reserved debit stands.
func (s *WithdrawalService) Approve(ctx context.Context, id, adminID int64) (*domain.WithdrawalRequest, error) {
	return s.review(ctx, id, adminID, domain.RequestApproved, "")
}

// Reject marks the request REJECTED and refunds the reserved amount.
func (s *WithdrawalService) Reject(ctx context.Context, id, adminID int64, reason string) (*domain.WithdrawalRequest, error) {
	return s.review(ctx, id, adminID, domain.RequestRejected, reason)
}

func (s *WithdrawalService) review(ctx context.Context, id, adminID int64, status domain.RequestStatus, reason string) (*domain.WithdrawalRequest, error) {
	var (
		w   *domain.WithdrawalRequest
		txn *domain.WalletTransaction
	)
	rv := domain.Review{AdminID: adminID, Status: status, Reason: reason, At: s.cal.now().UTC()}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		w, err = tx.LockWithdrawalRequest(ctx, id)
		if err != nil {
			return err
		}
		if w.Status.Terminal() {
			return fmt.Errorf("%w: withdrawal %d is %s", domain.ErrInvalidTransition, id, w.Status)
		}
		if err := tx.ReviewWithdrawalRequest(ctx, id, rv); err != nil {
			return err
		}
		if status == domain.RequestRejected {
			txn, err = s.wallet.Credit(ctx, tx, w.UserID, w.Amount, domain.SourceWithdraw, w.ID, "withdrawal refunded")
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.Status, w.Reason = status, reason
	w.ApprovedByID, w.ReviewedAt = &rv.AdminID, &rv.At

	s.log.Info("withdrawal reviewed",
		zap.Int64("request_id", id),
		zap.Int64("admin_id", adminID),
		zap.String("status", string(status)))
	events := []domain.LedgerEvent{reviewEvent(w.UserID, w.ID, domain.SourceWithdraw, w.Amount, status, rv.At)}
	if txn != nil {
		events = append(events, txnEvent(txn))
	}
	s.pub.Publish(ctx, events...)
	return w, nil
}

func (s *WithdrawalService) List(ctx context.Context, f domain.RequestFilter) ([]domain.WithdrawalRequest, error) {
	return s.store.ListWithdrawalRequests(ctx, f)
}
