// Command seeder inserts sample discounts for a shop and prints an admin token for it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autogift/internal/auth"
	"github.com/noah-isme/autogift/internal/config"
	"github.com/noah-isme/autogift/internal/discounts"
	"github.com/noah-isme/autogift/internal/obs"
	"github.com/noah-isme/autogift/internal/store"
	"github.com/noah-isme/autogift/internal/tenant"
)

func main() {
	shopFlag := flag.String("shop", "demo", "shop handle or myshopify domain to seed")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed admin token")
	migrateFirst := flag.Bool("migrate", true, "apply migrations before seeding")
	flag.Parse()

	logger := obs.NewStderrLogger("console", "info")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	shop := tenant.NormalizeShop(*shopFlag)
	if shop == "" {
		logger.Fatal().Msg("shop is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()
	if *migrateFirst {
		if err := store.Migrate(pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	svc := &discounts.Service{Repo: store.Repository{DB: pool}, Logger: logger}
	if err := seed(ctx, svc, shop, time.Now().UTC(), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed discounts")
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		logger.Fatal().Err(err).Msg("token signer")
	}
	token, err := tokens.Sign(auth.Claims{Subject: "seeder", Shop: shop}, *tokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign token")
	}
	fmt.Fprintln(os.Stdout, token)
}

type sample struct {
	title         string
	handle        string
	configuration string
}

var samples = []sample{
	{
		title:  "Free scraper with two waxes",
		handle: "auto-gift",
		configuration: `{"buys":{"type":"PRODUCT","value":[{"productId":"gid://shopify/Product/1","variants":["gid://shopify/ProductVariant/10"]}]},
			"rule":"QUANTITY","conditions":[{"quantity":2,"products":[{"productId":"gid://shopify/Product/2","variants":["gid://shopify/ProductVariant/20"]}],"discounted":"FREE"}]}`,
	},
	{
		title:  "Tiered winter spend gift",
		handle: "auto-gift",
		configuration: `{"buys":{"type":"TAGS","value":["winter"]},"rule":"AMOUNT","conditions":[
			{"amount":"50.00","products":[{"variants":[30]}],"discounted":"PERCENTAGE","discountedPercentage":50},
			{"amount":"100.00","products":[{"variants":[30]}],"discounted":"FREE"}]}`,
	},
	{
		title:  "Heavy boards get a discounted bag",
		handle: "auto-gift",
		configuration: `{"buys":{"type":"FILTER","value":{"filterType":"all_conditions","conditions":[
			{"condition":"type","operator":"equal","value":"Snowboard"},{"condition":"weight","operator":"greater_than","value":"3"}]}},
			"rule":"UNIQUE","conditions":[{"quantity":1,"products":[{"variants":[40]}],"discounted":"FIXED_AMOUNT","discountedEachOff":"15.00"}]}`,
	},
	{
		title:         "Buy five, save ten percent",
		handle:        "volume-discount",
		configuration: `{"quantity":5,"percentage":10}`,
	},
}

func seed(ctx context.Context, svc *discounts.Service, shop string, now time.Time, logger zerolog.Logger) error {
	for _, s := range samples {
		d, err := svc.Create(ctx, store.Discount{
			Shop:           shop,
			Title:          s.title,
			FunctionHandle: s.handle,
			StartsAt:       now,
			CombinesWith:   store.CombinesWith{ShippingDiscounts: true},
			Configuration:  json.RawMessage(s.configuration),
		})
		if errors.Is(err, discounts.ErrConflict) {
			logger.Info().Str("title", s.title).Msg("already seeded")
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s.title, err)
		}
		logger.Info().Str("title", d.Title).Str("id", d.ID.String()).Msg("seeded")
	}
	return nil
}
