package service

import (
	"context"

	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/repository"
)

// Catalog answers the lookups this service needs from the product catalog and
// the address book. Missing rows are reported as ErrNotFound.
type Catalog interface {
	Product(ctx context.Context, id uint64) (*model.Product, error)
	Address(ctx context.Context, id uint64) (*model.Address, error)
}

type catalogService struct {
	repo repository.CatalogRepository
}

func NewCatalogService(repo repository.CatalogRepository) Catalog {
	return &catalogService{repo: repo}
}

func (s *catalogService) Product(ctx context.Context, id uint64) (*model.Product, error) {
	p, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *catalogService) Address(ctx context.Context, id uint64) (*model.Address, error) {
	a, err := s.repo.FindAddress(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

type UserProfile struct {
	UID         string
	DisplayName string
	PhotoURL    string
}

// UserDirectory resolves public user profiles. Unknown users are ErrNotFound.
type UserDirectory interface {
	Lookup(ctx context.Context, uid string) (*UserProfile, error)
}

// DisplayName falls back to the uid when the directory is absent or has no
// name for uid.
func DisplayName(ctx context.Context, dir UserDirectory, uid string) string {
	if dir == nil {
		return uid
	}
	p, err := dir.Lookup(ctx, uid)
	if err != nil || p.DisplayName == "" {
		return uid
	}
	return p.DisplayName
}
