package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Options struct {
	MaxConns    int32
	LockTimeout time.Duration
	Logger      *zap.Logger
}

type Postgres struct {
	Db          *pgxpool.Pool
	lockTimeout time.Duration
	log         *zap.Logger
}

var _ Store = (*Postgres)(nil)

func NewPostgres(ctx context.Context, connString string, opts Options) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return NewPostgresFromPool(pool, opts), nil
}

func NewPostgresFromPool(pool *pgxpool.Pool, opts Options) *Postgres {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{Db: pool, lockTimeout: opts.LockTimeout, log: logger}
}

func (s *Postgres) Close() {
	s.Db.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

// InTx bounds lock waits with SET LOCAL lock_timeout so a contended balance
// row fails fast with domain.ErrLockTimeout instead of queueing indefinitely.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", translate(err))
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := s.lockTimeout.Milliseconds()
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)); err != nil {
			return fmt.Errorf("set lock_timeout failed: %w", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		err = translate(err)
		if domain.IsRetryable(err) {
			s.log.Debug("transaction aborted on lock contention", zap.Error(err))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", translate(err))
	}
	return nil
}

// pgTx adapts pgx.Tx to the Tx interface.
type pgTx struct {
	tx pgx.Tx
}

func parseDecimal(dst *decimal.Decimal, s string) error {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse numeric %q: %w", s, err)
	}
	*dst = v
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
