package transactions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTransactionNumber generates a unique, human-traceable transaction number.
func NewTransactionNumber(t Type, at time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("TXN-%s-%s-%s", t.Prefix(), at.UTC().Format("20060102"), strings.ToUpper(id[:10]))
}

// NewReferenceNumber builds the shared journal reference for one posting:
// type prefix, timestamp and a fragment derived from the transaction id.
func NewReferenceNumber(t Type, at time.Time, transactionID int64) string {
	fragment := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("txn:%d", transactionID)))
	return fmt.Sprintf("%s-%s-%s", t.Prefix(), at.UTC().Format("20060102150405"), strings.ToUpper(strings.ReplaceAll(fragment.String(), "-", "")[:8]))
}

// SourceID derives a stable UUID from the natural correlation key of an event.
func SourceID(t Type, correlationKey string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s", t, correlationKey)))
}
