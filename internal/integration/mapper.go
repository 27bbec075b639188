package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

// Envelope is the wire form of a lifecycle event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type dispatchFunc func(ctx context.Context, h *Hooks, payload json.RawMessage) (Outcome, error)

func typed[E any](handle func(h *Hooks, ctx context.Context, evt E) (Outcome, error)) dispatchFunc {
	return func(ctx context.Context, h *Hooks, payload json.RawMessage) (Outcome, error) {
		var evt E
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Outcome{}, fmt.Errorf("%w: decode payload: %v", shared.ErrValidation, err)
		}
		return handle(h, ctx, evt)
	}
}

var dispatchers = map[string]dispatchFunc{
	EventTicketIssued:       typed((*Hooks).HandleTicketIssued),
	EventTicketReissued:     typed((*Hooks).HandleTicketReissued),
	EventTicketVoided:       typed((*Hooks).HandleTicketVoided),
	EventTicketCancelled:    typed((*Hooks).HandleTicketCancelled),
	EventTicketRefunded:     typed((*Hooks).HandleTicketRefunded),
	EventPaymentCaptured:    typed((*Hooks).HandlePaymentCaptured),
	EventPaymentRefunded:    typed((*Hooks).HandlePaymentRefunded),
	EventCommissionRecorded: typed((*Hooks).HandleCommissionRecorded),
	EventAncillaryPurchased: typed((*Hooks).HandleAncillaryPurchased),
	EventAncillaryRefunded:  typed((*Hooks).HandleAncillaryRefunded),
	EventEMDIssued:          typed((*Hooks).HandleEMDIssued),
	EventEMDVoided:          typed((*Hooks).HandleEMDVoided),
	EventEMDRefunded:        typed((*Hooks).HandleEMDRefunded),
}

// Dispatch decodes env.Payload into the event named by env.Type and handles it.
func (h *Hooks) Dispatch(ctx context.Context, env Envelope) (Outcome, error) {
	fn, ok := dispatchers[env.Type]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: unknown event type %q", shared.ErrValidation, env.Type)
	}
	if len(env.Payload) == 0 {
		return Outcome{}, fmt.Errorf("%w: payload required", shared.ErrValidation)
	}
	return fn(ctx, h, env.Payload)
}

// EventTypes lists the accepted event names.
func EventTypes() []string {
	out := make([]string, 0, len(dispatchers))
	for name := range dispatchers {
		out = append(out, name)
	}
	return out
}
