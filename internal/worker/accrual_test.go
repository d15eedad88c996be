package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeJobs struct {
	mu         sync.Mutex
	order      []string
	accrualErr error
}

func (f *fakeJobs) RunAccrualTick(ctx context.Context) (service.AccrualReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "accrual")
	return service.AccrualReport{Date: "2025-03-10", Credited: 2}, f.accrualErr
}

func (f *fakeJobs) ReturnPrincipals(ctx context.Context) (service.PrincipalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "principal")
	return service.PrincipalReport{Returned: 1}, nil
}

func (f *fakeJobs) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func TestRunOnceAccruesThenReturnsPrincipal(t *testing.T) {
	jobs := &fakeJobs{}
	w, err := NewAccrualWorker(jobs, "5 0 * * *", time.UTC, zap.NewNop())
	require.NoError(t, err)

	w.RunOnce(context.Background())
	assert.Equal(t, []string{"accrual", "principal"}, jobs.calls())
}

func TestRunOnceContinuesAfterAccrualError(t *testing.T) {
	jobs := &fakeJobs{accrualErr: errors.New("db down")}
	w, err := NewAccrualWorker(jobs, "@daily", nil, nil)
	require.NoError(t, err)

	w.RunOnce(context.Background())
	assert.Equal(t, []string{"accrual", "principal"}, jobs.calls())
}

func TestInvalidSchedule(t *testing.T) {
	_, err := NewAccrualWorker(&fakeJobs{}, "every day please", nil, nil)
	assert.Error(t, err)
}

func TestScheduledTicks(t *testing.T) {
	jobs := &fakeJobs{}
	w, err := NewAccrualWorker(jobs, "@every 1s", time.UTC, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool { return len(jobs.calls()) >= 2 }, 5*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	w.Stop(stopCtx)
}
