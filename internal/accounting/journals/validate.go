package journals

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

// Totals sums both sides of lines.
func Totals(lines []Line) (debits, credits decimal.Decimal) {
	for _, l := range lines {
		switch l.EntryType {
		case Debit:
			debits = debits.Add(l.Amount)
		case Credit:
			credits = credits.Add(l.Amount)
		}
	}
	return debits, credits
}

// Validate ensures lines form a postable journal: at least two positive legs
// and equal debit and credit totals.
func Validate(lines []Line) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if line.EntryType != Debit && line.EntryType != Credit {
			return fmt.Errorf("%w: line %d has entry type %q", shared.ErrValidation, idx, line.EntryType)
		}
		if !line.Amount.IsPositive() {
			return fmt.Errorf("%w: line %d amount must be positive", shared.ErrInvalidAmount, idx)
		}
	}
	debits, credits := Totals(lines)
	if !debits.Equal(credits) {
		return fmt.Errorf("%w: debits %s, credits %s", shared.ErrUnbalanced, debits.StringFixed(2), credits.StringFixed(2))
	}
	return nil
}

// Mirror swaps every leg's side, producing the exact reversal of lines.
func Mirror(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		l.EntryType = l.EntryType.Opposite()
		out[i] = l
	}
	return out
}

// Verify checks the persisted legs of one reference.
func Verify(reference string, entries []Entry) Verification {
	v := Verification{Reference: reference, Lines: len(entries)}
	for _, e := range entries {
		switch e.EntryType {
		case Debit:
			v.Debits = v.Debits.Add(e.Amount)
		case Credit:
			v.Credits = v.Credits.Add(e.Amount)
		}
	}
	v.Difference = v.Debits.Sub(v.Credits)
	v.Balanced = len(entries) >= 2 && v.Difference.IsZero()
	return v
}
