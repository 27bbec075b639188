// Package rollups maintains the daily and monthly per-agent aggregates.
//
// Apply functions are strictly additive: each posted transaction contributes
// its deltas once and NetRevenue is recomputed as TotalSales - TotalRefunds.
// Rebuild functions derive the same rows from the transaction log and agent
// ledger alone and are used for repair.
package rollups

import (
	"sort"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Event is one posted transaction together with the ledger row it produced.
type Event struct {
	Transaction transactions.Transaction
	Ledger      agentledger.Entry
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day returns the calendar day ev is booked on: its ledger row's entry date,
// which is the posting day, falling back to the occurrence day.
func (ev Event) Day() time.Time {
	if !ev.Ledger.EntryDate.IsZero() {
		return Day(ev.Ledger.EntryDate)
	}
	return Day(ev.Transaction.OccurredAt)
}

// ApplyDaily adds ev to s. A zero-value s is created lazily from ev.
func ApplyDaily(s DailySummary, ev Event) DailySummary {
	if s.AgentID == 0 {
		s.AgentID = ev.Transaction.AgentID
		s.Date = ev.Day()
		s.OpeningBalance = ev.Ledger.BalanceBefore
	}
	s.Counters = applyCounters(s.Counters, ev.Transaction.Type)
	s.Money = applyMoney(s.Money, ev.Transaction)
	s.ClosingBalance = ev.Ledger.BalanceAfter
	return s
}

// ApplyMonthly adds ev to r, including its route and airline breakdowns.
func ApplyMonthly(r MonthlyReport, ev Event) MonthlyReport {
	if r.AgentID == 0 {
		at := ev.Day()
		r.AgentID = ev.Transaction.AgentID
		r.Year = at.Year()
		r.Month = int(at.Month())
		r.OpeningBalance = ev.Ledger.BalanceBefore
	}
	r.Counters = applyCounters(r.Counters, ev.Transaction.Type)
	r.Money = applyMoney(r.Money, ev.Transaction)
	r.Detailed = applyDetailed(r.Detailed, ev.Transaction)
	r.ClosingBalance = ev.Ledger.BalanceAfter
	return r
}

func applyCounters(c Counters, t transactions.Type) Counters {
	switch t {
	case transactions.TypeTicketIssue:
		c.TicketsIssued++
	case transactions.TypeTicketVoid:
		c.TicketsVoided++
	case transactions.TypeTicketCancel:
		c.TicketsCancelled++
	case transactions.TypeTicketRefund:
		c.TicketsRefunded++
	case transactions.TypeTicketReissue:
		c.TicketsReissued++
	case transactions.TypePaymentReceived:
		c.PaymentsCount++
	case transactions.TypeAncillaryPurchase:
		c.AncillariesCount++
	case transactions.TypeEMDIssue:
		c.EMDsCount++
	}
	return c
}

func applyMoney(m Money, tx transactions.Transaction) Money {
	total := tx.Amounts.Total
	switch {
	case tx.Type.IsSale():
		m.TotalSales = m.TotalSales.Add(total)
	case tx.Type.IsSaleReversal():
		m.TotalRefunds = m.TotalRefunds.Add(total)
	case tx.Type == transactions.TypePaymentReceived:
		m.TotalPayments = m.TotalPayments.Add(total)
	case tx.Type == transactions.TypePaymentRefunded:
		m.TotalPayments = m.TotalPayments.Sub(total)
	case tx.Type == transactions.TypeCommissionEarned:
		m.TotalCommissions = m.TotalCommissions.Add(tx.LedgerAmount())
	}
	m.NetRevenue = m.TotalSales.Sub(m.TotalRefunds)
	return m
}

func applyDetailed(d Detailed, tx transactions.Transaction) Detailed {
	if !tx.Type.IsSale() && !tx.Type.IsSaleReversal() {
		return d
	}
	if d.Routes == nil {
		d.Routes = map[string]Breakdown{}
	}
	if d.Airlines == nil {
		d.Airlines = map[string]Breakdown{}
	}
	if route := tx.Route(); route != "" {
		d.Routes[route] = applyBreakdown(d.Routes[route], tx)
	}
	if airline := tx.Airline(); airline != "" {
		d.Airlines[airline] = applyBreakdown(d.Airlines[airline], tx)
	}
	return d
}

func applyBreakdown(b Breakdown, tx transactions.Transaction) Breakdown {
	if tx.Type.IsSale() {
		b.Count++
		b.Sales = b.Sales.Add(tx.Amounts.Total)
		return b
	}
	b.Refunds = b.Refunds.Add(tx.Amounts.Total)
	return b
}

// TopN ranks breakdown keys by net amount, then count, then key.
func TopN(items map[string]Breakdown, n int) []Ranked {
	out := make([]Ranked, 0, len(items))
	for key, b := range items {
		out = append(out, Ranked{Key: key, Count: b.Count, Sales: b.Sales, NetAmount: b.Net()})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].NetAmount.Cmp(out[j].NetAmount); c != 0 {
			return c > 0
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// RebuildDaily recomputes every daily summary touched by events. Events must be
// posted rows; they are replayed in ledger chain order and bucketed by posting day.
func RebuildDaily(events []Event) []DailySummary {
	sortEvents(events)
	byDay := map[time.Time]DailySummary{}
	var order []time.Time
	for _, ev := range events {
		day := ev.Day()
		s, ok := byDay[day]
		if !ok {
			order = append(order, day)
		}
		byDay[day] = ApplyDaily(s, ev)
	}
	out := make([]DailySummary, 0, len(order))
	for _, day := range order {
		out = append(out, byDay[day])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// RebuildMonthly recomputes every monthly report touched by events.
func RebuildMonthly(events []Event) []MonthlyReport {
	sortEvents(events)
	type key struct{ year, month int }
	byMonth := map[key]MonthlyReport{}
	var order []key
	for _, ev := range events {
		at := ev.Day()
		k := key{at.Year(), int(at.Month())}
		r, ok := byMonth[k]
		if !ok {
			order = append(order, k)
		}
		byMonth[k] = ApplyMonthly(r, ev)
	}
	out := make([]MonthlyReport, 0, len(order))
	for _, k := range order {
		out = append(out, byMonth[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// Pair joins posted transactions with their ledger rows. Rows without a ledger
// entry are skipped: they have not been posted.
func Pair(txs []transactions.Transaction, ledger map[int64]agentledger.Entry) []Event {
	events := make([]Event, 0, len(txs))
	for _, tx := range txs {
		if !tx.AccountingPosted {
			continue
		}
		entry, ok := ledger[tx.ID]
		if !ok {
			continue
		}
		events = append(events, Event{Transaction: tx, Ledger: entry})
	}
	return events
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Ledger, events[j].Ledger
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
