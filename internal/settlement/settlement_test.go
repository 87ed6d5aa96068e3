package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTxHash(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		h := NewTxHash()
		require.Len(t, h, 66)
		require.True(t, ValidTxHash(h), h)
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
	}
	assert.False(t, ValidTxHash("0xABC"))
	assert.False(t, ValidTxHash("0x"+"G"+NewTxHash()[3:]))
}

func TestUniformDelay(t *testing.T) {
	draw := UniformDelay(5*time.Second, 15*time.Second)
	for i := 0; i < 2000; i++ {
		d := draw()
		require.GreaterOrEqual(t, d, 5*time.Second)
		require.Less(t, d, 15*time.Second)
		require.Zero(t, d%time.Millisecond)
	}
	assert.Equal(t, time.Second, UniformDelay(time.Second, time.Second)())
}

type fakeConfirmer struct {
	mu      sync.Mutex
	results map[uint64]bool
	errs    map[uint64]error
	calls   []uint64
}

func (f *fakeConfirmer) ConfirmSettlement(_ context.Context, orderID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderID)
	if err := f.errs[orderID]; err != nil {
		return false, err
	}
	return f.results[orderID], nil
}

func newJobs(t *testing.T) repository.SettlementJobRepository {
	t.Helper()
	conn, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return repository.NewSettlementJobRepository(conn)
}

func TestSimulatorSchedule(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	sim := NewSimulator(jobs, FixedDelay(7*time.Second))
	sim.now = func() time.Time { return base }

	d, err := sim.Schedule(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, d)

	job, err := jobs.FindByOrder(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementJobPending, job.State)
	assert.True(t, job.DueAt.Equal(base.Add(7*time.Second)))

	// one confirmation per order
	_, err = sim.Schedule(ctx, 42)
	assert.Error(t, err)
}

func TestWorkerRunOnceOutcomes(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	sim := NewSimulator(jobs, FixedDelay(5*time.Second))
	sim.now = func() time.Time { return base }
	for _, id := range []uint64{1, 2, 3} {
		_, err := sim.Schedule(ctx, id)
		require.NoError(t, err)
	}

	confirmer := &fakeConfirmer{
		results: map[uint64]bool{1: true, 2: false},
		errs:    map[uint64]error{3: errors.New("db down")},
	}
	w := NewWorker(jobs, confirmer, WorkerConfig{PollInterval: time.Second, Lease: 30 * time.Second, BatchSize: 10})

	// nothing is due yet
	w.now = func() time.Time { return base.Add(time.Second) }
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, confirmer.calls)

	w.now = func() time.Time { return base.Add(6 * time.Second) }
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, confirmer.calls)

	want := map[uint64]model.SettlementJobState{
		1: model.SettlementJobDone,
		2: model.SettlementJobSkipped,
		3: model.SettlementJobFailed,
	}
	for orderID, state := range want {
		job, err := jobs.FindByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, state, job.State, "order %d", orderID)
	}
	failed, err := jobs.FindByOrder(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "db down", failed.LastError)

	// finished jobs never fire again, failed ones included
	w.now = func() time.Time { return base.Add(time.Hour) }
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, confirmer.calls, 3)
}

func TestWorkerPicksUpExpiredLease(t *testing.T) {
	ctx := context.Background()
	jobs := newJobs(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	sim := NewSimulator(jobs, FixedDelay(5*time.Second))
	sim.now = func() time.Time { return base }
	_, err := sim.Schedule(ctx, 9)
	require.NoError(t, err)

	// a worker that claimed the job and then died
	claimed, err := jobs.ClaimDue(ctx, "crashed", base.Add(5*time.Second), 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	confirmer := &fakeConfirmer{results: map[uint64]bool{9: true}}
	w := NewWorker(jobs, confirmer, WorkerConfig{PollInterval: time.Second, Lease: 30 * time.Second, BatchSize: 10})

	w.now = func() time.Time { return base.Add(10 * time.Second) }
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	w.now = func() time.Time { return base.Add(time.Minute) }
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{9}, confirmer.calls)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	jobs := newJobs(t)
	w := NewWorker(jobs, &fakeConfirmer{}, WorkerConfig{PollInterval: 10 * time.Millisecond, Lease: time.Second, BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
