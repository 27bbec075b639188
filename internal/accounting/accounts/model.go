package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Seeded account codes. The strings are a stable contract used by the posting rules.
const (
	CodeCash               = "1001"
	CodeAccountsReceivable = "1200"
	CodeTaxPayable         = "2100"
	CodeCommissionPayable  = "2200"
	CodeTicketRevenue      = "4001"
	CodeAncillaryRevenue   = "4002"
	CodeSalesAdjustments   = "4900"
	CodePaymentFees        = "5002"
	CodeRefundExpense      = "5003"
	CodeCommissionsPaid    = "5004"
)

// Account models a chart of accounts node.
type Account struct {
	ID            int64         `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Type          AccountType   `json:"type"`
	NormalBalance NormalBalance `json:"normal_balance"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NormalBalanceFor returns the conventional side for an account type.
func NormalBalanceFor(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}
