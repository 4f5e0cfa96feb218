package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutBody struct {
	BookID   int64 `json:"book_id" validate:"required,gt=0"`
	PatronID int64 `json:"patron_id" validate:"required,gt=0"`
}

func TestDecodeValidates(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"book_id": 1, "patron_id": 7}`))
	var body checkoutBody
	require.NoError(t, Decode(r, &body))
	assert.Equal(t, int64(7), body.PatronID)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"book_id": 1}`))
	err := Decode(r, &checkoutBody{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadRequest))
	assert.Contains(t, err.Error(), "PatronID")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"book_id": 1, "patron_id": 7, "x": 1}`))
	assert.ErrorIs(t, Decode(r, &checkoutBody{}), ErrBadRequest)
}

func TestIDParam(t *testing.T) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "42")
	r := httptest.NewRequest(http.MethodGet, "/books/42", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	id, err := IDParam(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	rctx.URLParams = chi.RouteParams{}
	rctx.URLParams.Add("id", "-3")
	_, err = IDParam(r, "id")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusConflict, "book already checked out")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"book already checked out"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
