package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusAwaitingPayment     OrderStatus = "AWAITING_PAYMENT"
	OrderStatusPendingConfirmation OrderStatus = "PENDING_CONFIRMATION"
	OrderStatusPaymentConfirmed    OrderStatus = "PAYMENT_CONFIRMED"
	OrderStatusShipped             OrderStatus = "SHIPPED"
	OrderStatusCompleted           OrderStatus = "COMPLETED"
	OrderStatusCancelled           OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusAwaitingPayment,
	OrderStatusPendingConfirmation,
	OrderStatusPaymentConfirmed,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// OrderStatuses returns every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	for _, v := range orderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type Order struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	BuyerUID       string          `gorm:"column:buyer_uid;size:128;index;not null"`
	SellerUID      string          `gorm:"column:seller_uid;size:128;index;not null"`
	ProductID      uint64          `gorm:"column:product_id;index;not null"`
	AddressID      uint64          `gorm:"column:address_id;not null"`
	ConversationID uint64          `gorm:"column:conversation_id;index"`
	Quantity       int             `gorm:"column:quantity;not null"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount;type:decimal(14,2);not null"`
	Currency       string          `gorm:"column:currency;size:8;not null"`
	Status         OrderStatus     `gorm:"column:status;size:32;index;not null"`
	TxHash         *string         `gorm:"column:tx_hash;size:66;uniqueIndex"`
	Notes          string          `gorm:"column:notes;type:text"`
	CancelledBy    string          `gorm:"column:cancelled_by;size:128"`
	PaidAt         *time.Time      `gorm:"column:paid_at"`
	ConfirmedAt    *time.Time      `gorm:"column:confirmed_at"`
	ShippedAt      *time.Time      `gorm:"column:shipped_at"`
	CompletedAt    *time.Time      `gorm:"column:completed_at"`
	CancelledAt    *time.Time      `gorm:"column:cancelled_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

// IsParticipant reports whether uid is the buyer or the seller.
func (o *Order) IsParticipant(uid string) bool {
	return uid != "" && (uid == o.BuyerUID || uid == o.SellerUID)
}

// ComputeTotal returns price × quantity.
func ComputeTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
