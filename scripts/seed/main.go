package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/app"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	"github.com/atlas-travel/atlas-ledger/internal/platform/cache"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
)

type agentSeed struct {
	code        string
	name        string
	creditLimit string
	currency    string
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()

	services := app.NewServices(app.ServiceDeps{Pool: pool, Redis: redisClient, Config: cfg, Logger: logger})

	fmt.Println("→ Seeding chart of accounts...")
	if err := services.SeedChart(ctx, logger); err != nil {
		log.Fatalf("seed chart: %v", err)
	}

	fmt.Println("→ Seeding agents...")
	ids, err := seedAgents(ctx, pool)
	if err != nil {
		log.Fatalf("seed agents: %v", err)
	}

	fmt.Println("→ Seeding sample lifecycle events...")
	if err := seedEvents(ctx, services.Hooks, ids, logger); err != nil {
		log.Fatalf("seed events: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedAgents(ctx context.Context, pool *pgxpool.Pool) (map[string]int64, error) {
	agents := []agentSeed{
		{"AG-001", "Nusantara Tours", "25000.00", "USD"},
		{"AG-002", "Garuda Holidays", "10000.00", "USD"},
		{"AG-003", "Lombok Wisata", "5000.00", "USD"},
	}
	ids := make(map[string]int64, len(agents))
	for _, a := range agents {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO agents (code, name, credit_limit, currency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
			RETURNING id`, a.code, a.name, a.creditLimit, a.currency).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids[a.code] = id
	}
	return ids, nil
}

func seedEvents(ctx context.Context, hooks *integration.Hooks, ids map[string]int64, logger *slog.Logger) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	d := decimal.RequireFromString
	events := []struct {
		typ     string
		payload any
	}{
		{integration.EventTicketIssued, integration.TicketIssued{
			Ticket: integration.Ticket{AgentID: ids["AG-001"], TicketNumber: "1260000000001", BookingRef: "SEED01", Route: "CGK-SIN", Airline: "SQ", OccurredAt: day.Add(9 * time.Hour)},
			Charge: integration.Charge{BaseAmount: d("420.00"), TaxAmount: d("58.00"), FeeAmount: d("12.00"), Currency: "USD"},
		}},
		{integration.EventTicketIssued, integration.TicketIssued{
			Ticket: integration.Ticket{AgentID: ids["AG-002"], TicketNumber: "1260000000002", BookingRef: "SEED02", Route: "DPS-NRT", Airline: "GA", OccurredAt: day.Add(10 * time.Hour)},
			Charge: integration.Charge{BaseAmount: d("910.00"), TaxAmount: d("120.00"), Currency: "USD"},
		}},
		{integration.EventPaymentCaptured, integration.PaymentCaptured{
			AgentID: ids["AG-001"], PaymentReference: "SEED-PAY-01", BookingRef: "SEED01",
			Amount: d("300.00"), Currency: "USD", Status: integration.PaymentStatusCaptured, OccurredAt: day.Add(11 * time.Hour),
		}},
		{integration.EventCommissionRecorded, integration.CommissionRecorded{
			AgentID: ids["AG-002"], Reference: "SEED-COM-01", BookingRef: "SEED02",
			Kind: integration.CommissionKindEarned, Amount: d("45.50"), Currency: "USD", OccurredAt: day.Add(12 * time.Hour),
		}},
	}
	for _, e := range events {
		raw, err := json.Marshal(e.payload)
		if err != nil {
			return err
		}
		out, err := hooks.Dispatch(ctx, integration.Envelope{Type: e.typ, Payload: raw})
		if err != nil {
			return fmt.Errorf("%s: %w", e.typ, err)
		}
		logger.Info("seeded event",
			slog.String("type", e.typ),
			slog.Int64("transaction_id", out.Transaction.ID),
			slog.Bool("duplicate", out.Duplicate),
			slog.Bool("posted", out.Posted))
	}
	return nil
}
