package balance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Figures are the posted aggregates balance decisions are derived from.
type Figures struct {
	// OpenSales sums posted sales that were not reversed afterwards.
	OpenSales decimal.Decimal
	// GrossSales sums every posted sale, reversed or not.
	GrossSales     decimal.Decimal
	Refunds        decimal.Decimal
	NetPayments    decimal.Decimal
	Commissions    decimal.Decimal
	PendingAmount  decimal.Decimal
	PendingCount   int
	LastOccurredAt *time.Time
}

// FiguresFrom folds the transaction log totals. Payments are netted against
// payment refunds whether or not the payment row was flagged reversed, so a
// refunded payment is never subtracted twice.
func FiguresFrom(t transactions.AgentTotals) Figures {
	f := Figures{PendingAmount: t.PendingTotal, PendingCount: t.PendingCount, LastOccurredAt: t.LastOccurredAt}
	for typ, tt := range t.Posted {
		f = fold(f, typ, tt, false)
	}
	for typ, tt := range t.Reversed {
		f = fold(f, typ, tt, true)
	}
	return f
}

func fold(f Figures, typ transactions.Type, tt transactions.TypeTotals, reversed bool) Figures {
	switch {
	case typ.IsSale():
		f.GrossSales = f.GrossSales.Add(tt.Total)
		if !reversed {
			f.OpenSales = f.OpenSales.Add(tt.Total)
		}
	case typ.IsSaleReversal():
		f.Refunds = f.Refunds.Add(tt.Total)
	case typ == transactions.TypePaymentReceived:
		f.NetPayments = f.NetPayments.Add(tt.Total)
	case typ == transactions.TypePaymentRefunded:
		f.NetPayments = f.NetPayments.Sub(tt.Total)
	case typ == transactions.TypeCommissionEarned:
		f.Commissions = f.Commissions.Add(tt.Total)
	}
	return f
}

// Outstanding returns open sales minus net payments, floored at zero.
func Outstanding(f Figures) decimal.Decimal {
	out := f.OpenSales.Sub(f.NetPayments)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// AvailableCredit is limit minus outstanding. It is deliberately not clamped:
// a negative value means the agent is over limit.
func AvailableCredit(limit, outstanding decimal.Decimal) decimal.Decimal {
	return limit.Sub(outstanding)
}

// Decide evaluates a credit request against the available credit.
func Decide(agentID int64, available, requested decimal.Decimal) CreditDecision {
	d := CreditDecision{AgentID: agentID, Requested: requested, AvailableCredit: available, Shortfall: decimal.Zero}
	if requested.LessThanOrEqual(available) {
		d.Allowed = true
		return d
	}
	d.Shortfall = requested.Sub(available)
	return d
}

// AgeDays counts whole calendar days between issue and asOf.
func AgeDays(issue, asOf time.Time) int {
	i := dayOf(issue)
	a := dayOf(asOf)
	if a.Before(i) {
		return 0
	}
	return int(a.Sub(i).Hours() / 24)
}

// BucketFor maps an age in days onto the aging buckets. Thresholds are
// inclusive: day 7 is still "0-7".
func BucketFor(days int) string {
	switch {
	case days <= 7:
		return Bucket0To7
	case days <= 30:
		return Bucket8To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// AllocateFIFO applies payments to sales oldest first and returns the items
// still open as of asOf.
func AllocateFIFO(sales []transactions.Transaction, payments decimal.Decimal, asOf time.Time) []OutstandingItem {
	ordered := make([]transactions.Transaction, len(sales))
	copy(ordered, sales)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := dayOf(ordered[i].IssueDate()), dayOf(ordered[j].IssueDate())
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ordered[i].ID < ordered[j].ID
	})
	remaining := payments
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	items := make([]OutstandingItem, 0, len(ordered))
	for _, s := range ordered {
		amount := s.Amounts.Total
		paid := decimal.Min(amount, remaining)
		remaining = remaining.Sub(paid)
		open := amount.Sub(paid)
		if !open.IsPositive() {
			continue
		}
		issued := dayOf(s.IssueDate())
		age := AgeDays(issued, asOf)
		items = append(items, OutstandingItem{
			TransactionID: s.ID,
			Type:          string(s.Type),
			TicketNumber:  s.Metadata[transactions.MetaTicketNumber],
			BookingRef:    s.BookingRef,
			IssueDate:     issued,
			AgeDays:       age,
			Bucket:        BucketFor(age),
			Amount:        amount,
			Paid:          paid,
			Outstanding:   open,
		})
	}
	return items
}

// Summarise totals the open items per bucket, always returning every bucket.
func Summarise(items []OutstandingItem) ([]AgingBucket, decimal.Decimal) {
	idx := make(map[string]int, len(BucketOrder))
	out := make([]AgingBucket, len(BucketOrder))
	for i, b := range BucketOrder {
		idx[b] = i
		out[i] = AgingBucket{Bucket: b, Amount: decimal.Zero}
	}
	total := decimal.Zero
	for _, it := range items {
		i := idx[it.Bucket]
		out[i].Count++
		out[i].Amount = out[i].Amount.Add(it.Outstanding)
		total = total.Add(it.Outstanding)
	}
	return out, total
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
