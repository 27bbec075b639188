// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	accshared "github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrAgentNotFound),
		errors.Is(err, accshared.ErrTransactionNotFound), errors.Is(err, accshared.ErrJournalNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate), accshared.IsConflict(err):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, accshared.ErrValidation), errors.Is(err, ErrEmptyBody):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, accshared.ErrUnbalanced), errors.Is(err, accshared.ErrInvalidStatus):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case isPostingFailure(err):
		Problem(w, http.StatusUnprocessableEntity, "Posting Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func isPostingFailure(err error) bool {
	var pe *accshared.PostingError
	return errors.As(err, &pe)
}
