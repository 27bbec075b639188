package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	accshared "github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

func TestRespondErrorMapsAccountingErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("lookup: %w", accshared.ErrTransactionNotFound), http.StatusNotFound},
		{accshared.ErrDuplicateEvent, http.StatusConflict},
		{accshared.ErrAlreadyPosted, http.StatusConflict},
		{fmt.Errorf("wrap: %w", accshared.ErrTotalMismatch), http.StatusBadRequest},
		{accshared.ErrUnbalanced, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("password=secret"))
	require.NotContains(t, rr.Body.String(), "secret")
}

func TestProblemUsesProblemContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusNotFound, "Not Found", "agent 9")
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestDecodeJSONRejectsEmptyAndTrailingBodies(t *testing.T) {
	var target map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	require.ErrorIs(t, DecodeJSON(req, &target), ErrEmptyBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}{"b":2}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"ticket.issued"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "ticket.issued", target["type"])
}
