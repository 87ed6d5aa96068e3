package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusSold     ProductStatus = "SOLD"
	ProductStatusInactive ProductStatus = "INACTIVE"
)

// Product is the catalog's view of a listing. It is owned by the catalog;
// this service only reads it.
type Product struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	SellerUID string          `gorm:"column:seller_uid;size:128;index;not null"`
	Title     string          `gorm:"size:120;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null"`
	Currency  string          `gorm:"column:currency;size:8;not null;default:CNY"`
	Status    ProductStatus   `gorm:"column:status;size:16;not null;default:ACTIVE"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) Purchasable() bool {
	return p.Status == ProductStatusActive
}

type Address struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserUID    string    `gorm:"column:user_uid;size:128;index;not null"`
	Recipient  string    `gorm:"size:120;not null"`
	Line1      string    `gorm:"column:line1;size:255;not null"`
	City       string    `gorm:"size:120"`
	PostalCode string    `gorm:"column:postal_code;size:32"`
	Country    string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Address) TableName() string {
	return "addresses"
}
