package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/app"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/platform/db"
	"github.com/odyssey-erp/clientdoc/migrations"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	for _, name := range applied {
		fmt.Println("  ·", name)
	}

	catalog := masterdata.NewService(masterdata.NewRepository(pool), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	fmt.Println("→ Seeding buyers...")
	if err := seedBuyers(ctx, catalog); err != nil {
		log.Fatalf("seed buyers: %v", err)
	}
	fmt.Println("→ Seeding store locations...")
	if err := seedLocations(ctx, catalog); err != nil {
		log.Fatalf("seed locations: %v", err)
	}
	fmt.Println("→ Seeding items...")
	if err := seedItems(ctx, catalog); err != nil {
		log.Fatalf("seed items: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedBuyers(ctx context.Context, catalog *masterdata.Service) error {
	buyers := []masterdata.Buyer{
		{Name: "Reliance Retail Ltd", Address: "Maker Chambers IV, Nariman Point, Mumbai", GSTIN: "27AABCR1718E1ZP", State: "Maharashtra", Email: "accounts@example.com"},
		{Name: "Spencer's Retail", Address: "Duncan House, Kolkata", GSTIN: "19AAECS1234F1Z2", State: "West Bengal"},
		{Name: "Namdhari Fresh", Address: "Hebbal, Bengaluru", GSTIN: "29AADCN5678G1Z9", State: "Karnataka"},
	}
	for _, b := range buyers {
		if _, _, err := catalog.UpsertBuyer(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func seedLocations(ctx context.Context, catalog *masterdata.Service) error {
	locations := []masterdata.Location{
		{Name: "Bengaluru Central DC", SiteCode: "BLR01", City: "Bengaluru", GSTIN: "29AADCN5678G1Z9", Priority: "High"},
		{Name: "Mumbai Andheri Store", SiteCode: "MUM04", City: "Mumbai", GSTIN: "27AABCR1718E1ZP", Priority: "Medium"},
		{Name: "Chennai Guindy Store", SiteCode: "MAA02", City: "Chennai", State: "Tamil Nadu", StateCode: "33"},
	}
	for _, l := range locations {
		if _, _, err := catalog.UpsertLocation(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func seedItems(ctx context.Context, catalog *masterdata.Service) error {
	items := []struct {
		item     masterdata.Item
		category string
	}{
		{masterdata.Item{Name: "Thermal Label Printer", ArticleCode: "TLP-200", Price: decimal.RequireFromString("18500")}, "Printers"},
		{masterdata.Item{Name: "Label Roll 100x150", ArticleCode: "LR-100150", Price: decimal.RequireFromString("240"), GSTRate: decimal.RequireFromString("0.12"), HSNCode: "482110"}, "Consumables"},
		{masterdata.Item{Name: "Ribbon Wax 110mm", ArticleCode: "RW-110", Price: decimal.RequireFromString("310")}, "Consumables"},
		{masterdata.Item{Name: "Installation Visit", Price: decimal.RequireFromString("1500"), Unit: "Visit", HSNCode: "998719"}, ""},
	}
	for _, it := range items {
		if _, _, err := catalog.UpsertItem(ctx, it.item, it.category); err != nil {
			return err
		}
	}
	return nil
}
