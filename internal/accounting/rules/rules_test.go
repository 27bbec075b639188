package rules_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/rules"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type leg struct {
	code  string
	side  journals.EntryType
	value string
}

func requireLegs(t *testing.T, got []journals.Line, want ...leg) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		require.Equal(t, w.code, got[i].AccountCode, "leg %d", i)
		require.Equal(t, w.side, got[i].EntryType, "leg %d", i)
		require.True(t, d(w.value).Equal(got[i].Amount), "leg %d: want %s got %s", i, w.value, got[i].Amount)
	}
}

func ticketAmounts() transactions.Amounts {
	a, err := transactions.Amounts{Base: d("600.00"), Tax: d("90.00")}.Normalize(false)
	if err != nil {
		panic(err)
	}
	return a
}

func TestTicketIssuePostsReceivableAgainstRevenueAndTax(t *testing.T) {
	amounts := ticketAmounts()
	require.True(t, d("690.00").Equal(amounts.Total))

	lines, err := rules.Compute(transactions.TypeTicketIssue, amounts)
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeAccountsReceivable, journals.Debit, "690.00"},
		leg{accounts.CodeTicketRevenue, journals.Credit, "600.00"},
		leg{accounts.CodeTaxPayable, journals.Credit, "90.00"},
	)
}

func TestTicketIssueWithFeeCreditsServiceRevenue(t *testing.T) {
	amounts := transactions.Amounts{Base: d("600.00"), Tax: d("90.00"), Fee: d("90.00"), Total: d("780.00")}
	lines, err := rules.Compute(transactions.TypeTicketIssue, amounts)
	require.NoError(t, err)
	debits, credits := journals.Totals(lines)
	require.True(t, d("780.00").Equal(debits))
	require.True(t, debits.Equal(credits))
	requireLegs(t, lines,
		leg{accounts.CodeAccountsReceivable, journals.Debit, "780.00"},
		leg{accounts.CodeTicketRevenue, journals.Credit, "600.00"},
		leg{accounts.CodeTaxPayable, journals.Credit, "90.00"},
		leg{accounts.CodeAncillaryRevenue, journals.Credit, "90.00"},
	)
}

func TestVoidMirrorsIssue(t *testing.T) {
	amounts := ticketAmounts()
	issue, err := rules.Compute(transactions.TypeTicketIssue, amounts)
	require.NoError(t, err)
	for _, reversal := range []transactions.Type{transactions.TypeTicketVoid, transactions.TypeTicketCancel} {
		lines, err := rules.Compute(reversal, amounts)
		require.NoError(t, err)
		require.Len(t, lines, len(issue))
		for i := range lines {
			require.Equal(t, issue[i].AccountCode, lines[i].AccountCode)
			require.Equal(t, issue[i].EntryType.Opposite(), lines[i].EntryType)
			require.True(t, issue[i].Amount.Equal(lines[i].Amount))
		}
	}
}

func TestTicketRefund(t *testing.T) {
	lines, err := rules.Compute(transactions.TypeTicketRefund, transactions.Amounts{Base: d("500"), Fee: d("25"), Total: d("525")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeTicketRevenue, journals.Debit, "500"},
		leg{accounts.CodeRefundExpense, journals.Debit, "25"},
		leg{accounts.CodeCash, journals.Credit, "525"},
	)
}

func TestPaymentReceived(t *testing.T) {
	lines, err := rules.Compute(transactions.TypePaymentReceived, transactions.Amounts{Base: d("770"), Fee: d("10"), Total: d("780")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeCash, journals.Debit, "770"},
		leg{accounts.CodePaymentFees, journals.Debit, "10"},
		leg{accounts.CodeAccountsReceivable, journals.Credit, "780"},
	)
}

func TestCommissionFallsBackToTotal(t *testing.T) {
	lines, err := rules.Compute(transactions.TypeCommissionEarned, transactions.Amounts{Total: d("45.50")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeCommissionsPaid, journals.Debit, "45.50"},
		leg{accounts.CodeCommissionPayable, journals.Credit, "45.50"},
	)

	lines, err = rules.Compute(transactions.TypeCommissionPaid, transactions.Amounts{Commission: d("12"), Total: d("12")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeCommissionPayable, journals.Debit, "12"},
		leg{accounts.CodeCash, journals.Credit, "12"},
	)
}

func TestEveryTypeBalances(t *testing.T) {
	amounts := transactions.Amounts{Base: d("100.10"), Tax: d("13.37"), Fee: d("4.53"), Commission: d("7.25"), Total: d("118.00")}
	for _, typ := range transactions.AllTypes() {
		a := amounts
		if typ == transactions.TypePaymentReceived || typ == transactions.TypePaymentRefunded {
			a.Tax = decimal.Zero
			a.Total = a.Base.Add(a.Fee)
		}
		lines, err := rules.Compute(typ, a)
		require.NoError(t, err, typ)
		require.True(t, rules.Supports(typ))
		debits, credits := journals.Totals(lines)
		require.True(t, debits.Equal(credits), "%s: %s != %s", typ, debits, credits)
		for _, l := range lines {
			require.True(t, l.Amount.IsPositive(), "%s: zero leg %s", typ, l.AccountCode)
			_, err := accounts.NewChart(accounts.DefaultChart()).Lookup(l.AccountCode)
			require.NoError(t, err, "%s uses unknown account %s", typ, l.AccountCode)
		}
	}
}

func TestZeroLegsAreOmitted(t *testing.T) {
	lines, err := rules.Compute(transactions.TypeAncillaryPurchase, transactions.Amounts{Base: d("35"), Total: d("35")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeAccountsReceivable, journals.Debit, "35"},
		leg{accounts.CodeAncillaryRevenue, journals.Credit, "35"},
	)
}

func TestComputeErrors(t *testing.T) {
	_, err := rules.Compute("ticket_upgrade", transactions.Amounts{Total: d("1")})
	require.ErrorIs(t, err, shared.ErrUnknownTransactionType)
	require.True(t, shared.IsPermanent(err))

	_, err = rules.Compute(transactions.TypeTicketIssue, transactions.Amounts{Base: d("-1"), Total: d("1")})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = rules.Compute(transactions.TypeTicketIssue, transactions.Amounts{Base: d("100.005"), Tax: d("0.005"), Total: d("100.01")})
	require.True(t, errors.Is(err, shared.ErrInvalidAmount))

	_, err = rules.Compute(transactions.TypeCommissionEarned, transactions.Amounts{})
	require.ErrorIs(t, err, shared.ErrTooFewLines)
}

func TestOverriddenTotalPostsDifferenceToSalesAdjustments(t *testing.T) {
	lines, err := rules.Compute(transactions.TypeTicketIssue, transactions.Amounts{Base: d("600"), Tax: d("90"), Total: d("700")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeAccountsReceivable, journals.Debit, "700"},
		leg{accounts.CodeTicketRevenue, journals.Credit, "600"},
		leg{accounts.CodeTaxPayable, journals.Credit, "90"},
		leg{accounts.CodeSalesAdjustments, journals.Credit, "10"},
	)

	lines, err = rules.Compute(transactions.TypeTicketVoid, transactions.Amounts{Base: d("600"), Tax: d("90"), Total: d("680")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeAccountsReceivable, journals.Credit, "680"},
		leg{accounts.CodeTicketRevenue, journals.Debit, "600"},
		leg{accounts.CodeTaxPayable, journals.Debit, "90"},
		leg{accounts.CodeSalesAdjustments, journals.Credit, "10"},
	)

	lines, err = rules.Compute(transactions.TypeTicketRefund, transactions.Amounts{Base: d("500"), Total: d("480")})
	require.NoError(t, err)
	requireLegs(t, lines,
		leg{accounts.CodeTicketRevenue, journals.Debit, "500"},
		leg{accounts.CodeCash, journals.Credit, "480"},
		leg{accounts.CodeSalesAdjustments, journals.Credit, "20"},
	)
}

func TestReversalLegsCarryTheirOwnDescriptions(t *testing.T) {
	issue, err := rules.Compute(transactions.TypeTicketIssue, ticketAmounts())
	require.NoError(t, err)
	void, err := rules.Compute(transactions.TypeTicketVoid, ticketAmounts())
	require.NoError(t, err)
	require.Equal(t, "Ticket sale receivable", issue[0].Description)
	require.Equal(t, "Ticket void: receivable reversed", void[0].Description)
	require.Equal(t, "Ticket void: ticket fare revenue reversed", void[1].Description)

	refund, err := rules.Compute(transactions.TypePaymentRefunded, transactions.Amounts{Base: d("50"), Total: d("50")})
	require.NoError(t, err)
	require.Equal(t, "Payment refund: cash returned", refund[0].Description)
	require.Equal(t, "Payment refund: receivable reinstated", refund[1].Description)
}

func TestComputeIsDeterministic(t *testing.T) {
	amounts := ticketAmounts()
	first, err := rules.Compute(transactions.TypeTicketIssue, amounts)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := rules.Compute(transactions.TypeTicketIssue, amounts)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}
