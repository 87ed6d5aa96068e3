package repository

import (
	"context"

	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"gorm.io/gorm"
)

// CatalogRepository reads the product and address tables owned by the
// catalog and address-book services.
type CatalogRepository interface {
	FindProduct(ctx context.Context, id uint64) (*model.Product, error)
	FindAddress(ctx context.Context, id uint64) (*model.Address, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	CreateAddress(ctx context.Context, a *model.Address) error
	CountProducts(ctx context.Context) (int64, error)
	SetDB(db *gorm.DB)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) FindProduct(ctx context.Context, id uint64) (*model.Product, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.Product
	if err := db.Conn(ctx, r.db).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *catalogRepository) FindAddress(ctx context.Context, id uint64) (*model.Address, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var a model.Address
	if err := db.Conn(ctx, r.db).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateProduct is used by the seeder and tests only.
func (r *catalogRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return db.Conn(ctx, r.db).Create(p).Error
}

func (r *catalogRepository) CreateAddress(ctx context.Context, a *model.Address) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return db.Conn(ctx, r.db).Create(a).Error
}

func (r *catalogRepository) CountProducts(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var n int64
	err := db.Conn(ctx, r.db).Model(&model.Product{}).Count(&n).Error
	return n, err
}

func (r *catalogRepository) SetDB(db *gorm.DB) {
	r.db = db
}
