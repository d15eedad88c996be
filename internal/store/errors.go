package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/punchamoorthee/yieldledger/internal/domain"
)

const (
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
	codeForeignKey       = "23503"
	codeLockNotAvailable = "55P03"
	codeDeadlock         = "40P01"
	codeSerialization    = "40001"
	codeNumericRange     = "22003"

	constraintRechargeProof   = "uq_recharge_transaction_id"
	constraintDailyReturn     = "uq_daily_return_sub_date"
	constraintBalanceNonNegat = "chk_wallet_balance_non_negative"
	constraintIdempotencyKey  = "pk_idempotency_keys"
)

// translate maps storage errors onto the domain taxonomy. Errors it does not
// recognise are returned unchanged.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeDeadlock, codeSerialization:
		return fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintRechargeProof:
			return fmt.Errorf("%w: %w", domain.ErrDuplicateProof, err)
		case constraintDailyReturn:
			return fmt.Errorf("%w: %w", domain.ErrDuplicateAccrual, err)
		case constraintIdempotencyKey:
			return fmt.Errorf("%w: %w", domain.ErrIdempotencyConflict, err)
		}
	case codeForeignKey:
		if strings.HasSuffix(pgErr.ConstraintName, "_user_id_fkey") {
			return fmt.Errorf("%w: %w", domain.ErrUserNotFound, err)
		}
	case codeNumericRange:
		return fmt.Errorf("%w: %w", domain.ErrInvalidAmount, err)
	case codeCheckViolation:
		if pgErr.ConstraintName == constraintBalanceNonNegat {
			return fmt.Errorf("%w: %w", domain.ErrInsufficientFunds, err)
		}
	}
	return err
}
