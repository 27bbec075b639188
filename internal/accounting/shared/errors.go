package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of all malformed-input failures. Callers must not retry.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrInvalidAmount indicates a negative or otherwise unusable amount.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)
	// ErrUnknownTransactionType indicates no posting rule exists for the type.
	ErrUnknownTransactionType = fmt.Errorf("%w: unknown transaction type", ErrValidation)
	// ErrAccountNotFound indicates a rule referenced a missing or inactive account code.
	ErrAccountNotFound = fmt.Errorf("%w: account not found", ErrValidation)
	// ErrTotalMismatch indicates total != base + tax + fee without an explicit override.
	ErrTotalMismatch = fmt.Errorf("%w: total does not equal base + tax + fee", ErrValidation)
	// ErrOriginalNotFound indicates a reversal references an unknown original transaction.
	ErrOriginalNotFound = fmt.Errorf("%w: original transaction not found", ErrValidation)
	// ErrTooFewLines indicates less than two journal legs.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", ErrValidation)

	// ErrUnbalanced indicates debit != credit. Never committed.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")

	// ErrPostingConflict is the root of duplicate-posting detections. The desired state already holds.
	ErrPostingConflict = errors.New("accounting: posting conflict")
	// ErrAlreadyPosted indicates the transaction already carries a journal reference.
	ErrAlreadyPosted = fmt.Errorf("%w: transaction already posted", ErrPostingConflict)
	// ErrSourceAlreadyLinked indicates idempotency conflict on the correlation key.
	ErrSourceAlreadyLinked = fmt.Errorf("%w: source already linked", ErrPostingConflict)
	// ErrDuplicateEvent indicates the lifecycle event was already recorded.
	ErrDuplicateEvent = fmt.Errorf("%w: event already recorded", ErrPostingConflict)
	// ErrAlreadyReversed indicates the original row already points at a reversal.
	ErrAlreadyReversed = fmt.Errorf("%w: transaction already reversed", ErrPostingConflict)

	// ErrTransactionNotFound indicates a missing transaction log row.
	ErrTransactionNotFound = errors.New("accounting: transaction not found")
	// ErrJournalNotFound indicates missing journal rows for a reference.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrInvalidStatus indicates the status transition is not allowed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrNormalBalanceImmutable indicates an attempt to change an account's normal balance.
	ErrNormalBalanceImmutable = errors.New("accounting: normal balance cannot change")
)

// PostingError reports an atomicity failure: the posting transaction rolled back.
type PostingError struct {
	TransactionID int64
	Retryable     bool
	Err           error
}

func (e *PostingError) Error() string {
	return fmt.Sprintf("accounting: posting transaction %d failed: %v", e.TransactionID, e.Err)
}

func (e *PostingError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err signals an already-achieved posting.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPostingConflict)
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUnbalanced)
}
