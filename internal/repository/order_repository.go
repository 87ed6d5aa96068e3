package repository

import (
	"context"

	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"gorm.io/gorm"
)

// OrderRole narrows an order listing to one side of the trade.
type OrderRole string

const (
	OrderRoleAny    OrderRole = ""
	OrderRoleBuyer  OrderRole = "buy"
	OrderRoleSeller OrderRole = "sell"
)

type OrderFilter struct {
	UserUID string
	Role    OrderRole
	Status  model.OrderStatus // empty matches every status
}

// StatusUpdate is a conditional write: Fields are applied only while the
// row is still in From.
type StatusUpdate struct {
	ID     uint64
	From   model.OrderStatus
	Fields map[string]interface{}
	// RequireNoTxHash additionally demands tx_hash IS NULL.
	RequireNoTxHash bool
}

type OrderRepository interface {
	Create(ctx context.Context, o *model.Order) error
	FindByID(ctx context.Context, id uint64) (*model.Order, error)
	List(ctx context.Context, f OrderFilter) ([]model.Order, error)
	CompareAndSet(ctx context.Context, u StatusUpdate) (bool, error)
	SetDB(db *gorm.DB)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, o *model.Order) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return db.Conn(ctx, r.db).Create(o).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uint64) (*model.Order, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var o model.Order
	if err := db.Conn(ctx, r.db).First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) List(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	q := db.Conn(ctx, r.db).Model(&model.Order{})
	switch f.Role {
	case OrderRoleBuyer:
		q = q.Where("buyer_uid = ?", f.UserUID)
	case OrderRoleSeller:
		q = q.Where("seller_uid = ?", f.UserUID)
	default:
		q = q.Where("buyer_uid = ? OR seller_uid = ?", f.UserUID, f.UserUID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var list []model.Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// CompareAndSet reports whether the row was still in u.From and got updated.
func (r *orderRepository) CompareAndSet(ctx context.Context, u StatusUpdate) (bool, error) {
	if r.db == nil {
		return false, ErrDBNotReady
	}
	q := db.Conn(ctx, r.db).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", u.ID, u.From)
	if u.RequireNoTxHash {
		q = q.Where("tx_hash IS NULL")
	}
	res := q.Updates(u.Fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) SetDB(db *gorm.DB) {
	r.db = db
}
