package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
)

// ExitImbalanced is returned when at least one journal reference does not balance.
const ExitImbalanced = 10

// ImbalanceFinder lists unbalanced journal references posted in a window.
type ImbalanceFinder interface {
	Imbalances(ctx context.Context, from, to time.Time) ([]journals.Verification, int, error)
}

// VerifyOptions defines available flags for the verify command.
type VerifyOptions struct {
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Now        func() time.Time
}

// VerifySummary describes the JSON response for verify.
type VerifySummary struct {
	OK         bool                    `json:"ok"`
	From       string                  `json:"from"`
	To         string                  `json:"to"`
	Checked    int                     `json:"checked"`
	Imbalances []journals.Verification `json:"imbalances"`
}

// VerifyCommand re-checks the double-entry invariant for every reference
// posted between From and To (inclusive dates). Without dates it checks the
// last 24 hours.
func VerifyCommand(ctx context.Context, finder ImbalanceFinder, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	from, to, err := verifyWindow(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
		return 1
	}
	bad, checked, err := finder.Imbalances(ctx, from, to)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
		return 1
	}
	if bad == nil {
		bad = []journals.Verification{}
	}
	if opts.JSONOutput {
		summary := VerifySummary{
			OK:         len(bad) == 0,
			From:       from.Format(time.RFC3339),
			To:         to.Format(time.RFC3339),
			Checked:    checked,
			Imbalances: bad,
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, from, to, checked, bad)
	}
	if len(bad) > 0 {
		return ExitImbalanced
	}
	return 0
}

func verifyWindow(opts VerifyOptions) (time.Time, time.Time, error) {
	fromRaw, toRaw := strings.TrimSpace(opts.From), strings.TrimSpace(opts.To)
	if fromRaw == "" && toRaw == "" {
		to := opts.Now()
		return to.Add(-24 * time.Hour), to, nil
	}
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from and --to must be given together")
	}
	from, err := time.Parse(time.DateOnly, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q (expected YYYY-MM-DD)", fromRaw)
	}
	to, err := time.Parse(time.DateOnly, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q (expected YYYY-MM-DD)", toRaw)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toRaw, fromRaw)
	}
	return from, to.AddDate(0, 0, 1), nil
}

func renderVerifyHuman(out io.Writer, from, to time.Time, checked int, bad []journals.Verification) {
	_, _ = fmt.Fprintf(out, "Journal verification %s to %s: %d reference(s) checked\n",
		from.Format(time.RFC3339), to.Format(time.RFC3339), checked)
	if len(bad) == 0 {
		_, _ = fmt.Fprintln(out, "All references balance.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d unbalanced reference(s):\n", len(bad))
	for _, v := range bad {
		_, _ = fmt.Fprintf(out, " - %s debits=%s credits=%s difference=%s\n",
			v.Reference, v.Debits.StringFixed(2), v.Credits.StringFixed(2), v.Difference.StringFixed(2))
	}
}
