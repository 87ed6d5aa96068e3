package model

import "time"

type SettlementJobState string

const (
	SettlementJobPending SettlementJobState = "PENDING"
	// SettlementJobDone means the order moved to PAYMENT_CONFIRMED.
	SettlementJobDone SettlementJobState = "DONE"
	// SettlementJobSkipped means the order had already left PENDING_CONFIRMATION when the job fired.
	SettlementJobSkipped SettlementJobState = "SKIPPED"
	// SettlementJobFailed jobs are not retried; the order stays PENDING_CONFIRMATION until an operator acts.
	SettlementJobFailed SettlementJobState = "FAILED"
)

// SettlementJob is the durable "confirm at due time" record for a paid order.
type SettlementJob struct {
	ID          uint64             `gorm:"primaryKey;autoIncrement"`
	OrderID     uint64             `gorm:"column:order_id;not null;uniqueIndex"`
	DueAt       time.Time          `gorm:"column:due_at;not null;index:idx_settlement_due"`
	State       SettlementJobState `gorm:"column:state;size:16;not null;index:idx_settlement_due"`
	LeaseOwner  string             `gorm:"column:lease_owner;size:64"`
	LeasedUntil *time.Time         `gorm:"column:leased_until"`
	LastError   string             `gorm:"column:last_error;type:text"`
	FinishedAt  *time.Time         `gorm:"column:finished_at"`
	CreatedAt   time.Time          `gorm:"autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime"`
}

func (SettlementJob) TableName() string {
	return "settlement_jobs"
}
