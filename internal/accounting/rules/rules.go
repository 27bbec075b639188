// Package rules maps transaction types to balanced debit/credit legs.
//
// Compute is pure: it performs no I/O and depends only on the chart of
// accounts codes. Zero-amount legs are omitted and the result is checked for
// balance before it is returned.
package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

type rule func(a transactions.Amounts) []journals.Line

var table = map[transactions.Type]rule{
	transactions.TypeTicketIssue:       ticketSale,
	transactions.TypeTicketReissue:     ticketSale,
	transactions.TypeTicketVoid:        mirrored(ticketSale, "Ticket void"),
	transactions.TypeTicketCancel:      mirrored(ticketSale, "Ticket cancellation"),
	transactions.TypeTicketRefund:      refund(accounts.CodeTicketRevenue),
	transactions.TypePaymentReceived:   paymentReceived,
	transactions.TypePaymentRefunded:   mirrored(paymentReceived, "Payment refund"),
	transactions.TypeCommissionEarned:  commissionEarned,
	transactions.TypeCommissionPaid:    commissionPaid,
	transactions.TypeAncillaryPurchase: ancillarySale,
	transactions.TypeEMDIssue:          ancillarySale,
	transactions.TypeEMDVoid:           mirrored(ancillarySale, "EMD void"),
	transactions.TypeAncillaryRefund:   refund(accounts.CodeAncillaryRevenue),
	transactions.TypeEMDRefund:         refund(accounts.CodeAncillaryRevenue),
}

// Compute returns the journal legs for one transaction. When the total was
// overridden away from base+tax+fee the difference is carried by a Sales
// Adjustments leg so the receivable or cash leg still moves by the total.
func Compute(t transactions.Type, a transactions.Amounts) ([]journals.Line, error) {
	build, ok := table[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownTransactionType, t)
	}
	if err := a.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	lines := build(a)
	if !a.Total.Equal(a.Expected()) {
		lines = append(lines, adjustment(lines))
	}
	lines = nonZero(lines)
	if err := journals.Validate(lines); err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	return lines, nil
}

// Supports reports whether a rule exists for t.
func Supports(t transactions.Type) bool {
	_, ok := table[t]
	return ok
}

func ticketSale(a transactions.Amounts) []journals.Line {
	return []journals.Line{
		debit(accounts.CodeAccountsReceivable, a.Total, "Ticket sale receivable"),
		credit(accounts.CodeTicketRevenue, a.Base, "Ticket fare revenue"),
		credit(accounts.CodeTaxPayable, a.Tax, "Ticket taxes collected"),
		credit(accounts.CodeAncillaryRevenue, a.Fee, "Service fee revenue"),
	}
}

func ancillarySale(a transactions.Amounts) []journals.Line {
	return []journals.Line{
		debit(accounts.CodeAccountsReceivable, a.Total, "Ancillary sale receivable"),
		credit(accounts.CodeAncillaryRevenue, a.Base.Add(a.Fee), "Ancillary revenue"),
		credit(accounts.CodeTaxPayable, a.Tax, "Ancillary taxes collected"),
	}
}

func refund(revenue string) rule {
	return func(a transactions.Amounts) []journals.Line {
		return []journals.Line{
			debit(revenue, a.Base, "Revenue refunded"),
			debit(accounts.CodeTaxPayable, a.Tax, "Taxes refunded"),
			debit(accounts.CodeRefundExpense, a.Fee, "Refund processing fee"),
			credit(accounts.CodeCash, a.Total, "Refund paid out"),
		}
	}
}

func paymentReceived(a transactions.Amounts) []journals.Line {
	return []journals.Line{
		debit(accounts.CodeCash, a.Base, "Payment received"),
		debit(accounts.CodePaymentFees, a.Fee, "Payment processing fee"),
		credit(accounts.CodeAccountsReceivable, a.Total, "Receivable settled"),
	}
}

func commissionEarned(a transactions.Amounts) []journals.Line {
	amt := commission(a)
	return []journals.Line{
		debit(accounts.CodeCommissionsPaid, amt, "Agent commission expense"),
		credit(accounts.CodeCommissionPayable, amt, "Agent commission payable"),
	}
}

func commissionPaid(a transactions.Amounts) []journals.Line {
	amt := commission(a)
	return []journals.Line{
		debit(accounts.CodeCommissionPayable, amt, "Commission payable settled"),
		credit(accounts.CodeCash, amt, "Commission paid out"),
	}
}

// mirrored swaps every leg of r and relabels it as "<label>: <original>".
func mirrored(r rule, label string) rule {
	return func(a transactions.Amounts) []journals.Line {
		lines := journals.Mirror(r(a))
		for i := range lines {
			lines[i].Description = label + ": " + reversalDescription(lines[i].Description)
		}
		return lines
	}
}

func reversalDescription(desc string) string {
	switch desc {
	case "Ticket sale receivable", "Ancillary sale receivable":
		return "receivable reversed"
	case "Payment received":
		return "cash returned"
	case "Receivable settled":
		return "receivable reinstated"
	case "Payment processing fee":
		return "processing fee reversed"
	}
	if desc == "" {
		return "reversed"
	}
	return strings.ToLower(desc[:1]) + desc[1:] + " reversed"
}

// adjustment balances lines with a Sales Adjustments leg on the short side.
func adjustment(lines []journals.Line) journals.Line {
	diff := decimal.Zero
	for _, l := range lines {
		if l.EntryType == journals.Debit {
			diff = diff.Add(l.Amount)
		} else {
			diff = diff.Sub(l.Amount)
		}
	}
	if diff.IsNegative() {
		return debit(accounts.CodeSalesAdjustments, diff.Neg(), "Total override adjustment")
	}
	return credit(accounts.CodeSalesAdjustments, diff, "Total override adjustment")
}

func commission(a transactions.Amounts) decimal.Decimal {
	if a.Commission.IsPositive() {
		return a.Commission
	}
	return a.Total
}

func debit(code string, amount decimal.Decimal, desc string) journals.Line {
	return journals.Line{AccountCode: code, EntryType: journals.Debit, Amount: amount, Description: desc}
}

func credit(code string, amount decimal.Decimal, desc string) journals.Line {
	return journals.Line{AccountCode: code, EntryType: journals.Credit, Amount: amount, Description: desc}
}

func nonZero(lines []journals.Line) []journals.Line {
	out := lines[:0]
	for _, l := range lines {
		if !l.Amount.IsZero() {
			out = append(out, l)
		}
	}
	return out
}
