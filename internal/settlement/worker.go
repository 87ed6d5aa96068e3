package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/repository"
)

// Confirmer applies the settlement of one order. applied is false when the
// order had already left PENDING_CONFIRMATION, which is not an error.
type Confirmer interface {
	ConfirmSettlement(ctx context.Context, orderID uint64) (applied bool, err error)
}

type WorkerConfig struct {
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int
}

// Worker polls the job table and confirms due settlements. Several workers,
// in one process or many, can share the table: each job is leased before it
// is processed and a crashed worker's lease simply expires.
type Worker struct {
	jobs      repository.SettlementJobRepository
	confirmer Confirmer
	cfg       WorkerConfig
	id        string
	now       func() time.Time
}

func NewWorker(jobs repository.SettlementJobRepository, confirmer Confirmer, cfg WorkerConfig) *Worker {
	return &Worker{
		jobs:      jobs,
		confirmer: confirmer,
		cfg:       cfg,
		id:        uuid.NewString(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) ID() string {
	return w.id
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Str("worker", w.id).Dur("interval", w.cfg.PollInterval).Msg("settlement worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("worker", w.id).Msg("settlement worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("worker", w.id).Msg("settlement poll failed")
			}
		}
	}
}

// RunOnce claims and processes one batch of due jobs and returns how many it
// finished.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ClaimDue(ctx, w.id, w.now(), w.cfg.Lease, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			// unfinished leases expire and are picked up again
			return done, ctx.Err()
		}
		if w.process(ctx, job) {
			done++
		}
	}
	return done, nil
}

func (w *Worker) process(ctx context.Context, job model.SettlementJob) bool {
	logger := log.With().Str("worker", w.id).Uint64("job_id", job.ID).Uint64("order_id", job.OrderID).Logger()

	state := model.SettlementJobDone
	lastErr := ""
	applied, err := w.confirmer.ConfirmSettlement(ctx, job.OrderID)
	switch {
	case err != nil:
		// not retried; the order stays PENDING_CONFIRMATION for an operator
		state = model.SettlementJobFailed
		lastErr = err.Error()
		logger.Error().Err(err).Msg("settlement confirmation failed")
	case !applied:
		state = model.SettlementJobSkipped
		logger.Info().Msg("order no longer pending confirmation, settlement skipped")
	default:
		logger.Info().Msg("settlement confirmed")
	}

	ok, err := w.jobs.Finish(ctx, job.ID, w.id, state, lastErr, w.now())
	if err != nil {
		logger.Error().Err(err).Str("state", string(state)).Msg("recording settlement outcome failed")
		return false
	}
	if !ok {
		logger.Warn().Msg("settlement lease lost before outcome was recorded")
		return false
	}
	return true
}
