package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// DefaultTopN bounds the route and airline rankings.
const DefaultTopN = 10

// DailyReport is the read projection of one agent-day.
type DailyReport struct {
	AgentID      int64                      `json:"agent_id"`
	Date         time.Time                  `json:"date"`
	Summary      rollups.DailySummary       `json:"summary"`
	Posted       []transactions.Transaction `json:"posted_transactions"`
	Pending      []transactions.Transaction `json:"pending_transactions"`
	PendingTotal decimal.Decimal            `json:"pending_total"`
	Ledger       []agentledger.Entry        `json:"ledger"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// MonthlyReport is the read projection of one agent-month.
type MonthlyReport struct {
	AgentID        int64                  `json:"agent_id"`
	Year           int                    `json:"year"`
	Month          int                    `json:"month"`
	Summary        rollups.MonthlyReport  `json:"summary"`
	TopRoutes      []rollups.Ranked       `json:"top_routes"`
	TopAirlines    []rollups.Ranked       `json:"top_airlines"`
	DailyBreakdown []rollups.DailySummary `json:"daily_breakdown"`
	PendingCount   int                    `json:"pending_count"`
	PendingTotal   decimal.Decimal        `json:"pending_total"`
	GeneratedAt    time.Time              `json:"generated_at"`
}
