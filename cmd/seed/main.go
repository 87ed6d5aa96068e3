package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/demart-backend/internal/config"
	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/repository"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	Seller string
	Title  string
	Price  string
}

type seedAddress struct {
	User      string
	Recipient string
	Line1     string
	City      string
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	catalog := repository.NewCatalogRepository(gdb)
	n, err := catalog.CountProducts(ctx)
	if err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if n > 0 && !strings.EqualFold(os.Getenv("FORCE_SEED"), "true") {
		log.Info().Int64("products", n).Msg("products already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	products := []seedProduct{
		{Seller: "seller-1", Title: "Walnut side table", Price: "180.00"},
		{Seller: "seller-1", Title: "Mechanical keyboard", Price: "320.50"},
		{Seller: "seller-1", Title: "Film camera", Price: "899.00"},
		{Seller: "seller-2", Title: "Trail running shoes", Price: "260.00"},
		{Seller: "seller-2", Title: "Ceramic pour-over set", Price: "95.90"},
	}
	addresses := []seedAddress{
		{User: "buyer-1", Recipient: "Buyer One", Line1: "1 Market Street", City: "Shanghai"},
		{User: "buyer-2", Recipient: "Buyer Two", Line1: "22 Harbour Road", City: "Shenzhen"},
	}

	err = db.NewTxManager(gdb).WithTransaction(ctx, func(ctx context.Context) error {
		for _, sp := range products {
			p := &model.Product{
				SellerUID: sp.Seller,
				Title:     sp.Title,
				Price:     decimal.RequireFromString(sp.Price),
				Currency:  "CNY",
				Status:    model.ProductStatusActive,
			}
			if err := catalog.CreateProduct(ctx, p); err != nil {
				return fmt.Errorf("insert product %q: %w", sp.Title, err)
			}
		}
		for _, sa := range addresses {
			a := &model.Address{
				UserUID:   sa.User,
				Recipient: sa.Recipient,
				Line1:     sa.Line1,
				City:      sa.City,
				Country:   "CN",
			}
			if err := catalog.CreateAddress(ctx, a); err != nil {
				return fmt.Errorf("insert address for %s: %w", sa.User, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("products", len(products)).Int("addresses", len(addresses)).Msg("seeded catalog")
	return nil
}
