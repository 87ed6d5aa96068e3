package settlement

import (
	"context"
	"time"

	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/repository"
)

// Simulator stands in for an external payment network. Scheduling a
// confirmation writes a durable job row that a Worker picks up once due,
// so pending confirmations survive restarts.
type Simulator struct {
	jobs  repository.SettlementJobRepository
	delay DelayFunc
	now   func() time.Time
}

func NewSimulator(jobs repository.SettlementJobRepository, delay DelayFunc) *Simulator {
	return &Simulator{
		jobs:  jobs,
		delay: delay,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Simulator) TxHash() string {
	return NewTxHash()
}

// Schedule enqueues the confirmation of orderID and returns how long until
// it is due. It runs in the caller's transaction when ctx carries one.
func (s *Simulator) Schedule(ctx context.Context, orderID uint64) (time.Duration, error) {
	d := s.delay()
	job := &model.SettlementJob{
		OrderID: orderID,
		DueAt:   s.now().Add(d),
		State:   model.SettlementJobPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return 0, err
	}
	return d, nil
}
