package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

// Action classifies a transaction audit row.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionPost    Action = "POST"
	ActionReverse Action = "REVERSE"
	ActionFail    Action = "FAIL"
	ActionRetry   Action = "RETRY"
)

// Valid reports whether the action is a known audit action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionPost, ActionReverse, ActionFail, ActionRetry:
		return true
	}
	return false
}

// Entry is one append-only row of transaction_audit_logs.
type Entry struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	Action        Action          `json:"action"`
	StateBefore   json.RawMessage `json:"state_before,omitempty"`
	StateAfter    json.RawMessage `json:"state_after,omitempty"`
	Actor         string          `json:"actor"`
	IPAddress     string          `json:"ip_address,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewEntry builds an entry stamped with the request metadata carried by ctx.
// before and after are snapshotted as JSON; nil values stay empty.
func NewEntry(ctx context.Context, transactionID int64, action Action, before, after any, at time.Time) Entry {
	meta := shared.RequestMetaFromContext(ctx)
	return Entry{
		TransactionID: transactionID,
		Action:        action,
		StateBefore:   Snapshot(before),
		StateAfter:    Snapshot(after),
		Actor:         meta.Actor,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		OccurredAt:    at.UTC(),
	}
}

// Snapshot marshals v for storage. Unmarshalable values are recorded as null.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return buf
}
