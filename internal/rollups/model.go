package rollups

import (
	"time"

	"github.com/shopspring/decimal"
)

// Counters counts lifecycle events in a period.
type Counters struct {
	TicketsIssued    int `json:"tickets_issued"`
	TicketsVoided    int `json:"tickets_voided"`
	TicketsCancelled int `json:"tickets_cancelled"`
	TicketsRefunded  int `json:"tickets_refunded"`
	TicketsReissued  int `json:"tickets_reissued"`
	PaymentsCount    int `json:"payments_count"`
	AncillariesCount int `json:"ancillaries_count"`
	EMDsCount        int `json:"emds_count"`
}

// Money holds the monetary rollups. NetRevenue is derived, never incremented.
type Money struct {
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalRefunds     decimal.Decimal `json:"total_refunds"`
	TotalPayments    decimal.Decimal `json:"total_payments"`
	TotalCommissions decimal.Decimal `json:"total_commissions"`
	NetRevenue       decimal.Decimal `json:"net_revenue"`
}

// DailySummary is keyed by (agent, date).
type DailySummary struct {
	ID             int64           `json:"id,omitempty"`
	AgentID        int64           `json:"agent_id"`
	Date           time.Time       `json:"summary_date"`
	Counters       Counters        `json:"counters"`
	Money          Money           `json:"money"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// Breakdown aggregates one route or airline.
type Breakdown struct {
	Count   int             `json:"count"`
	Sales   decimal.Decimal `json:"sales"`
	Refunds decimal.Decimal `json:"refunds"`
}

// Net returns sales minus refunds.
func (b Breakdown) Net() decimal.Decimal {
	return b.Sales.Sub(b.Refunds)
}

// Detailed is the detailed_data blob of a monthly report.
type Detailed struct {
	Routes   map[string]Breakdown `json:"routes"`
	Airlines map[string]Breakdown `json:"airlines"`
}

// MonthlyReport is keyed by (agent, year, month).
type MonthlyReport struct {
	ID             int64           `json:"id,omitempty"`
	AgentID        int64           `json:"agent_id"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Counters       Counters        `json:"counters"`
	Money          Money           `json:"money"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Detailed       Detailed        `json:"detailed_data"`
}

// Ranked is one row of a top-N list.
type Ranked struct {
	Key       string          `json:"key"`
	Count     int             `json:"count"`
	Sales     decimal.Decimal `json:"sales"`
	NetAmount decimal.Decimal `json:"net_amount"`
}
