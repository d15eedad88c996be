package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RechargeInput struct {
	UserID            int64
	Amount            decimal.Decimal
	ChainName         string
	BlockchainAddress string
	TransactionID     string
	ProofKey          string
}

// RechargeService runs the deposit request state machine. Creating a request
// never touches the ledger; approval credits the wallet in the same
// transaction that flips the status.
type RechargeService struct {
	store    store.Store
	wallet   *Wallet
	settings SettingsReader
	pub      Publisher
	cal      Calendar
	log      *zap.Logger
}

func NewRechargeService(s store.Store, w *Wallet, settings SettingsReader, pub Publisher, cal Calendar, log *zap.Logger) *RechargeService {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RechargeService{store: s, wallet: w, settings: settings, pub: pub, cal: cal, log: log}
}

func (s *RechargeService) Create(ctx context.Context, in RechargeInput) (*domain.RechargeRequest, error) {
	if err := domain.CheckAmount(in.Amount); err != nil {
		return nil, err
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings unavailable: %w", err)
	}
	if in.Amount.LessThan(settings.MinRecharge) {
		return nil, fmt.Errorf("%w: minimum recharge is %s", domain.ErrBelowMinimum, settings.MinRecharge)
	}

	r := &domain.RechargeRequest{
		UserID:            in.UserID,
		Amount:            in.Amount,
		ChainName:         in.ChainName,
		BlockchainAddress: in.BlockchainAddress,
		TransactionID:     strings.TrimSpace(in.TransactionID),
		ProofKey:          in.ProofKey,
		Status:            domain.RequestPending,
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertRechargeRequest(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("recharge requested",
		zap.Int64("request_id", r.ID),
		zap.Int64("user_id", r.UserID),
		zap.String("amount", r.Amount.String()))
	return r, nil
}

// Approve credits the requested amount and marks the request APPROVED.
func (s *RechargeService) Approve(ctx context.Context, id, adminID int64) (*domain.RechargeRequest, error) {
	return s.review(ctx, id, adminID, domain.RequestApproved, "")
}

// Reject marks the request REJECTED without any ledger effect.
func (s *RechargeService) Reject(ctx context.Context, id, adminID int64, reason string) (*domain.RechargeRequest, error) {
	return s.review(ctx, id, adminID, domain.RequestRejected, reason)
}

func (s *RechargeService) review(ctx context.Context, id, adminID int64, status domain.RequestStatus, reason string) (*domain.RechargeRequest, error) {
	var (
		r   *domain.RechargeRequest
		txn *domain.WalletTransaction
	)
	rv := domain.Review{AdminID: adminID, Status: status, Reason: reason, At: s.cal.now().UTC()}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.LockRechargeRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return fmt.Errorf("%w: recharge %d is %s", domain.ErrInvalidTransition, id, r.Status)
		}
		if err := tx.ReviewRechargeRequest(ctx, id, rv); err != nil {
			return err
		}
		if status == domain.RequestApproved {
			txn, err = s.wallet.Credit(ctx, tx, r.UserID, r.Amount, domain.SourceRecharge, r.ID,
				fmt.Sprintf("recharge %s approved", r.TransactionID))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Status, r.Reason = status, reason
	r.ApprovedByID, r.ReviewedAt = &rv.AdminID, &rv.At

	s.log.Info("recharge reviewed",
		zap.Int64("request_id", id),
		zap.Int64("admin_id", adminID),
		zap.String("status", string(status)))
	events := []domain.LedgerEvent{reviewEvent(r.UserID, r.ID, domain.SourceRecharge, r.Amount, status, rv.At)}
	if txn != nil {
		events = append(events, txnEvent(txn))
	}
	s.pub.Publish(ctx, events...)
	return r, nil
}

func (s *RechargeService) List(ctx context.Context, f domain.RequestFilter) ([]domain.RechargeRequest, error) {
	return s.store.ListRechargeRequests(ctx, f)
}
