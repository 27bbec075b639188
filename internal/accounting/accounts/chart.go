package accounts

import (
	"fmt"
	"sort"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

// DefaultChart returns the minimal chart the posting rules depend on.
func DefaultChart() []Account {
	return []Account{
		{Code: CodeCash, Name: "Cash", Type: AccountTypeAsset, NormalBalance: NormalDebit, IsActive: true},
		{Code: CodeAccountsReceivable, Name: "Accounts Receivable", Type: AccountTypeAsset, NormalBalance: NormalDebit, IsActive: true},
		{Code: CodeTaxPayable, Name: "Tax Payable", Type: AccountTypeLiability, NormalBalance: NormalCredit, IsActive: true},
		{Code: CodeCommissionPayable, Name: "Commission Payable", Type: AccountTypeLiability, NormalBalance: NormalCredit, IsActive: true},
		{Code: CodeTicketRevenue, Name: "Ticket Revenue", Type: AccountTypeRevenue, NormalBalance: NormalCredit, IsActive: true},
		{Code: CodeAncillaryRevenue, Name: "Ancillary Revenue", Type: AccountTypeRevenue, NormalBalance: NormalCredit, IsActive: true},
		{Code: CodeSalesAdjustments, Name: "Sales Adjustments", Type: AccountTypeRevenue, NormalBalance: NormalCredit, IsActive: true},
		{Code: CodePaymentFees, Name: "Payment Processing Fees", Type: AccountTypeExpense, NormalBalance: NormalDebit, IsActive: true},
		{Code: CodeRefundExpense, Name: "Refund Processing Expenses", Type: AccountTypeExpense, NormalBalance: NormalDebit, IsActive: true},
		{Code: CodeCommissionsPaid, Name: "Commissions Paid", Type: AccountTypeExpense, NormalBalance: NormalDebit, IsActive: true},
	}
}

// Chart is a read-only snapshot of accounts keyed by code.
type Chart struct {
	byCode map[string]Account
}

// NewChart indexes the supplied accounts.
func NewChart(accounts []Account) Chart {
	idx := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		idx[a.Code] = a
	}
	return Chart{byCode: idx}
}

// Lookup resolves an active account by code.
func (c Chart) Lookup(code string) (Account, error) {
	acc, ok := c.byCode[code]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, code)
	}
	if !acc.IsActive {
		return Account{}, fmt.Errorf("%w: %s is inactive", shared.ErrAccountNotFound, code)
	}
	return acc, nil
}

// Accounts returns the accounts ordered by code.
func (c Chart) Accounts() []Account {
	out := make([]Account, 0, len(c.byCode))
	for _, a := range c.byCode {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
