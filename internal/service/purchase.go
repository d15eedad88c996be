package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store"
	"go.uber.org/zap"
)

type PurchaseService struct {
	store  store.Store
	wallet *Wallet
	pub    Publisher
	cal    Calendar
	log    *zap.Logger
}

func NewPurchaseService(s store.Store, w *Wallet, pub Publisher, cal Calendar, log *zap.Logger) *PurchaseService {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PurchaseService{store: s, wallet: w, pub: pub, cal: cal, log: log}
}

// Purchase debits the plan price and opens a subscription that accrues on
// exactly DurationDays calendar days starting today. replayed reports an
// idempotency key hit; the earlier subscription is returned unchanged.
func (s *PurchaseService) Purchase(ctx context.Context, userID, planID int64, k IdempotencyKey) (sub *domain.Subscription, replayed bool, err error) {
	today := s.cal.Today()

	var txn *domain.WalletTransaction
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		// The balance row is locked first so every write below happens under
		// it, and an unknown user fails before any insert.
		if _, err := tx.LockUserBalance(ctx, userID); err != nil {
			return err
		}
		var err error
		sub, replayed, err = idempotent(ctx, tx, userID, "purchase", k, func() (*domain.Subscription, error) {
			plan, err := tx.GetPlan(ctx, planID)
			if err != nil {
				return nil, err
			}
			if !plan.IsActive || plan.DurationDays < 1 {
				return nil, fmt.Errorf("%w: plan %d is not purchasable", domain.ErrPlanNotFound, planID)
			}

			sub := &domain.Subscription{
				UserID:    userID,
				PlanID:    plan.ID,
				Price:     plan.Price,
				StartDate: today,
				EndDate:   today.AddDate(0, 0, plan.DurationDays-1),
				IsActive:  true,
			}
			if _, err := tx.InsertSubscription(ctx, sub); err != nil {
				return nil, err
			}
			txn, err = s.wallet.Debit(ctx, tx, userID, plan.Price, domain.SourcePurchase, sub.ID,
				fmt.Sprintf("purchase of %s", plan.Name))
			return sub, err
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if replayed {
		return sub, true, nil
	}

	s.log.Info("plan purchased",
		zap.Int64("user_id", userID),
		zap.Int64("plan_id", planID),
		zap.Int64("subscription_id", sub.ID))
	s.pub.Publish(ctx, txnEvent(txn))
	return sub, false, nil
}

func (s *PurchaseService) List(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	return s.store.ListSubscriptions(ctx, userID)
}
