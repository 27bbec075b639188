package transactions

// Type enumerates business events with financial effect.
type Type string

const (
	TypeTicketIssue       Type = "ticket_issue"
	TypeTicketVoid        Type = "ticket_void"
	TypeTicketCancel      Type = "ticket_cancel"
	TypeTicketRefund      Type = "ticket_refund"
	TypeTicketReissue     Type = "ticket_reissue"
	TypePaymentReceived   Type = "payment_received"
	TypePaymentRefunded   Type = "payment_refunded"
	TypeCommissionEarned  Type = "commission_earned"
	TypeCommissionPaid    Type = "commission_paid"
	TypeAncillaryPurchase Type = "ancillary_purchase"
	TypeAncillaryRefund   Type = "ancillary_refund"
	TypeEMDIssue          Type = "emd_issue"
	TypeEMDVoid           Type = "emd_void"
	TypeEMDRefund         Type = "emd_refund"
)

// AllTypes lists every supported transaction type.
func AllTypes() []Type {
	return []Type{
		TypeTicketIssue, TypeTicketVoid, TypeTicketCancel, TypeTicketRefund, TypeTicketReissue,
		TypePaymentReceived, TypePaymentRefunded, TypeCommissionEarned, TypeCommissionPaid,
		TypeAncillaryPurchase, TypeAncillaryRefund, TypeEMDIssue, TypeEMDVoid, TypeEMDRefund,
	}
}

var prefixes = map[Type]string{
	TypeTicketIssue:       "TKI",
	TypeTicketVoid:        "TKV",
	TypeTicketCancel:      "TKC",
	TypeTicketRefund:      "TKR",
	TypeTicketReissue:     "TKX",
	TypePaymentReceived:   "PMR",
	TypePaymentRefunded:   "PMF",
	TypeCommissionEarned:  "CME",
	TypeCommissionPaid:    "CMP",
	TypeAncillaryPurchase: "ANP",
	TypeAncillaryRefund:   "ANR",
	TypeEMDIssue:          "EMI",
	TypeEMDVoid:           "EMV",
	TypeEMDRefund:         "EMR",
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := prefixes[t]
	return ok
}

// Prefix returns the short code used in transaction and reference numbers.
func (t Type) Prefix() string {
	if p, ok := prefixes[t]; ok {
		return p
	}
	return "TXN"
}

// IsFullReversal reports whether the type mirrors an earlier posting exactly.
func (t Type) IsFullReversal() bool {
	switch t {
	case TypeTicketVoid, TypeTicketCancel, TypeEMDVoid:
		return true
	}
	return false
}

// Reverses returns the original type this type corrects, if any.
func (t Type) Reverses() (Type, bool) {
	switch t {
	case TypeTicketVoid, TypeTicketCancel, TypeTicketRefund:
		return TypeTicketIssue, true
	case TypePaymentRefunded:
		return TypePaymentReceived, true
	case TypeAncillaryRefund:
		return TypeAncillaryPurchase, true
	case TypeEMDVoid, TypeEMDRefund:
		return TypeEMDIssue, true
	}
	return "", false
}

// IsSale reports whether the type books new revenue.
func (t Type) IsSale() bool {
	switch t {
	case TypeTicketIssue, TypeTicketReissue, TypeAncillaryPurchase, TypeEMDIssue:
		return true
	}
	return false
}

// IsSaleReversal reports whether the type takes revenue back.
func (t Type) IsSaleReversal() bool {
	switch t {
	case TypeTicketVoid, TypeTicketCancel, TypeTicketRefund, TypeAncillaryRefund, TypeEMDVoid, TypeEMDRefund:
		return true
	}
	return false
}

// IsCommission reports whether the type concerns agent commission.
func (t Type) IsCommission() bool {
	return t == TypeCommissionEarned || t == TypeCommissionPaid
}

// Status tracks the transaction lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReversed   Status = "reversed"
)

// CanTransition enforces pending -> processing -> completed, any -> failed.
// Completed and failed rows are terminal; a completed row is reversed only via
// its is_reversed flag, never by moving to StatusReversed in place.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusCompleted, StatusFailed, StatusReversed:
		return false
	}
	switch to {
	case StatusFailed:
		return true
	case StatusProcessing:
		return from == StatusPending
	case StatusCompleted:
		return from == StatusPending || from == StatusProcessing
	}
	return false
}
