package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs is the work the scheduler triggers on every tick.
type Jobs interface {
	RunAccrualTick(ctx context.Context) (service.AccrualReport, error)
	ReturnPrincipals(ctx context.Context) (service.PrincipalReport, error)
}

// AccrualWorker invokes the daily accrual, then principal return, on a cron
// schedule. A tick that is still running when the next one fires is skipped.
type AccrualWorker struct {
	jobs   Jobs
	cron   *cron.Cron
	logger *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAccrualWorker(jobs Jobs, spec string, loc *time.Location, logger *zap.Logger) (*AccrualWorker, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &AccrualWorker{jobs: jobs, logger: logger}
	cl := cronLogger{logger.Sugar()}
	w.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := w.cron.AddFunc(spec, w.tick); err != nil {
		return nil, fmt.Errorf("invalid accrual schedule %q: %w", spec, err)
	}
	return w, nil
}

// Start begins scheduling. Jobs run with a context derived from ctx; the
// worker stops when ctx is cancelled or Stop is called.
func (w *AccrualWorker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.ctx, w.cancel = ctx, cancel
	w.mu.Unlock()

	w.logger.Info("Starting accrual worker")
	w.cron.Start()
	go func() {
		<-ctx.Done()
		w.cron.Stop()
	}()
}

// Stop prevents further ticks and waits for a running tick to finish or
// for ctx to expire.
func (w *AccrualWorker) Stop(ctx context.Context) {
	w.logger.Info("Stopping accrual worker")
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.logger.Warn("Accrual tick still running at shutdown")
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
}

func (w *AccrualWorker) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	w.RunOnce(ctx)
}

// RunOnce runs one accrual tick followed by principal return. Failures are
// logged; the next tick retries whatever is still due.
func (w *AccrualWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	accrual, err := w.jobs.RunAccrualTick(ctx)
	if err != nil {
		w.logger.Error("Accrual tick failed", zap.Error(err))
	} else if accrual.Failed > 0 {
		w.logger.Warn("Accrual tick finished with failed units",
			zap.String("date", accrual.Date),
			zap.Int("failed", accrual.Failed))
	}

	principal, err := w.jobs.ReturnPrincipals(ctx)
	if err != nil {
		w.logger.Error("Principal return failed", zap.Error(err))
	}

	w.logger.Info("Scheduled tick complete",
		zap.String("date", accrual.Date),
		zap.Int("credited", accrual.Credited),
		zap.Int("principals_returned", principal.Returned),
		zap.Duration("elapsed", time.Since(start)))
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
