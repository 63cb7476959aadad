// Seeder populates a fresh database with a demo catalog, outlet, stock,
// and one offer per discount policy. Useful for local development and
// smoke tests against a real postgres.
package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/catalog"
	"github.com/spn-retail/backend-pos/internal/config"
	"github.com/spn-retail/backend-pos/internal/inventory"
	"github.com/spn-retail/backend-pos/internal/obs"
	"github.com/spn-retail/backend-pos/internal/offers"
	"github.com/spn-retail/backend-pos/internal/store"
	"github.com/spn-retail/backend-pos/internal/store/postgres"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pg.Close()

	existing, err := pg.ListProducts(ctx, store.ProductFilter{Limit: 1})
	if err != nil {
		logger.Fatal().Err(err).Msg("inspect catalog")
	}
	if len(existing) > 0 {
		logger.Info().Msg("catalog already populated, nothing to do")
		return
	}

	catalogSvc := catalog.New(catalog.Config{Store: pg, Logger: logger})
	offersSvc := offers.New(offers.Config{Store: pg, Logger: logger})
	inventorySvc := inventory.New(inventory.Config{Store: pg, Logger: logger})

	outlet, err := inventorySvc.CreateOutlet(ctx, inventory.CreateOutletRequest{
		Name:        "Downtown Outlet",
		Location:    "12 Market Street",
		Phone:       "555-0142",
		ManagerName: "Priya Nair",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed outlet")
	}

	type seedProduct struct {
		name, category          string
		cost, mrp, selling      string
		minStock                int
		warehouseQty            int
		shopQty                 int
		offerType               string
		offerX, offerY          int
		offerPercent, offerFlat string
	}
	seeds := []seedProduct{
		{name: "Basmati Rice 5kg", category: "grocery", cost: "45", mrp: "62", selling: "58", minStock: 10, warehouseQty: 120, shopQty: 40, offerType: "BUY_X_GET_Y", offerX: 2, offerY: 1},
		{name: "Sunflower Oil 1L", category: "grocery", cost: "12", mrp: "18", selling: "16.50", minStock: 15, warehouseQty: 200, shopQty: 60},
		{name: "Green Tea 25 Bags", category: "beverage", cost: "8", mrp: "14", selling: "12", minStock: 10, warehouseQty: 80, shopQty: 25, offerType: "PERCENTAGE", offerPercent: "20"},
		{name: "Almond Cookies 400g", category: "snack", cost: "22", mrp: "35", selling: "30", minStock: 8, warehouseQty: 50, shopQty: 18, offerType: "FLAT", offerFlat: "4"},
		{name: "Hand Soap 250ml", category: "household", cost: "5", mrp: "9", selling: "7.50", minStock: 20, warehouseQty: 150, shopQty: 45},
	}

	now := time.Now().UTC()
	for _, sd := range seeds {
		minStock := sd.minStock
		product, err := catalogSvc.Create(ctx, catalog.CreateProductRequest{
			Name:         sd.name,
			Category:     sd.category,
			CostPrice:    dec(sd.cost),
			MRP:          dec(sd.mrp),
			SellingPrice: dec(sd.selling),
			MinStock:     &minStock,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("name", sd.name).Msg("seed product")
		}

		if _, err := inventorySvc.CreateStock(ctx, inventory.CreateStockRequest{
			ProductCode: product.Code,
			Quantity:    sd.warehouseQty,
		}); err != nil {
			logger.Fatal().Err(err).Str("product", product.Code).Msg("seed warehouse stock")
		}
		if _, err := inventorySvc.CreateStock(ctx, inventory.CreateStockRequest{
			ProductCode: product.Code,
			OutletID:    &outlet.ID,
			Quantity:    sd.shopQty,
		}); err != nil {
			logger.Fatal().Err(err).Str("product", product.Code).Msg("seed outlet stock")
		}

		if sd.offerType == "" {
			continue
		}
		req := offers.CreateOfferRequest{
			ProductCode: product.Code,
			OfferType:   sd.offerType,
			XQuantity:   sd.offerX,
			YQuantity:   sd.offerY,
			StartDate:   now.AddDate(0, 0, -7),
			EndDate:     now.AddDate(0, 1, 0),
		}
		if sd.offerPercent != "" {
			req.DiscountPercent = dec(sd.offerPercent)
		}
		if sd.offerFlat != "" {
			req.DiscountFlat = dec(sd.offerFlat)
		}
		if _, err := offersSvc.Create(ctx, req); err != nil {
			logger.Fatal().Err(err).Str("product", product.Code).Msg("seed offer")
		}
	}

	logger.Info().Int("products", len(seeds)).Msg("seeding completed")
}
