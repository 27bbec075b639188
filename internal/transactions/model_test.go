package transactions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

func TestNormalizeRejectsSubCentAmounts(t *testing.T) {
	cases := []Amounts{
		{Base: decimal.RequireFromString("100.005"), Tax: decimal.RequireFromString("0.005")},
		{Base: decimal.RequireFromString("10"), Fee: decimal.RequireFromString("0.001")},
		{Base: decimal.RequireFromString("10"), Total: decimal.RequireFromString("10.001")},
	}
	for _, a := range cases {
		_, err := a.Normalize(true)
		require.ErrorIs(t, err, shared.ErrInvalidAmount)
	}
}

func TestNormalizeFillsTotalAndHonoursOverride(t *testing.T) {
	a, err := Amounts{Base: decimal.RequireFromString("600.00"), Tax: decimal.RequireFromString("90.00")}.Normalize(false)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("690").Equal(a.Total))

	mismatch := Amounts{Base: decimal.RequireFromString("600"), Tax: decimal.RequireFromString("90"), Total: decimal.RequireFromString("700")}
	_, err = mismatch.Normalize(false)
	require.ErrorIs(t, err, shared.ErrTotalMismatch)
	a, err = mismatch.Normalize(true)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("700").Equal(a.Total))
}
