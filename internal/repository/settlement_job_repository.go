package repository

import (
	"context"
	"time"

	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"gorm.io/gorm"
)

type SettlementJobRepository interface {
	Create(ctx context.Context, job *model.SettlementJob) error
	FindByOrder(ctx context.Context, orderID uint64) (*model.SettlementJob, error)
	// ClaimDue leases up to limit pending jobs whose due time has passed and
	// whose previous lease, if any, has expired.
	ClaimDue(ctx context.Context, owner string, now time.Time, lease time.Duration, limit int) ([]model.SettlementJob, error)
	// Finish records the outcome of a job still leased by owner.
	Finish(ctx context.Context, id uint64, owner string, state model.SettlementJobState, lastError string, now time.Time) (bool, error)
	SetDB(db *gorm.DB)
}

type settlementJobRepository struct {
	db *gorm.DB
}

func NewSettlementJobRepository(db *gorm.DB) SettlementJobRepository {
	return &settlementJobRepository{db: db}
}

func (r *settlementJobRepository) Create(ctx context.Context, job *model.SettlementJob) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return db.Conn(ctx, r.db).Create(job).Error
}

func (r *settlementJobRepository) FindByOrder(ctx context.Context, orderID uint64) (*model.SettlementJob, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var job model.SettlementJob
	if err := db.Conn(ctx, r.db).Where("order_id = ?", orderID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *settlementJobRepository) ClaimDue(ctx context.Context, owner string, now time.Time, lease time.Duration, limit int) ([]model.SettlementJob, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	conn := db.Conn(ctx, r.db)

	var ids []uint64
	if err := conn.Model(&model.SettlementJob{}).
		Where("state = ? AND due_at <= ?", model.SettlementJobPending, now).
		Where("leased_until IS NULL OR leased_until < ?", now).
		Order("due_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	until := now.Add(lease)
	claimed := make([]uint64, 0, len(ids))
	for _, id := range ids {
		// another worker may have taken it since the select
		res := conn.Model(&model.SettlementJob{}).
			Where("id = ? AND state = ?", id, model.SettlementJobPending).
			Where("leased_until IS NULL OR leased_until < ?", now).
			Updates(map[string]interface{}{
				"lease_owner":  owner,
				"leased_until": until,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	var jobs []model.SettlementJob
	if err := conn.Where("id IN ?", claimed).Order("due_at ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *settlementJobRepository) Finish(ctx context.Context, id uint64, owner string, state model.SettlementJobState, lastError string, now time.Time) (bool, error) {
	if r.db == nil {
		return false, ErrDBNotReady
	}
	res := db.Conn(ctx, r.db).
		Model(&model.SettlementJob{}).
		Where("id = ? AND state = ? AND lease_owner = ?", id, model.SettlementJobPending, owner).
		Updates(map[string]interface{}{
			"state":        state,
			"last_error":   lastError,
			"finished_at":  now,
			"leased_until": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *settlementJobRepository) SetDB(db *gorm.DB) {
	r.db = db
}
