package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteCSV serialises an audit trail. Snapshots are written as raw JSON.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"ID", "Transaction", "Action", "Actor", "IP", "User Agent", "Occurred At", "Before", "After"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writer.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.TransactionID, 10),
			string(e.Action),
			e.Actor,
			e.IPAddress,
			e.UserAgent,
			e.OccurredAt.UTC().Format(time.RFC3339),
			string(e.StateBefore),
			string(e.StateAfter),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
