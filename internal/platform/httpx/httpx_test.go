package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("invoice 3: %w", ErrNotFound):      http.StatusNotFound,
		fmt.Errorf("tally: %w", ErrConflict):          http.StatusConflict,
		fmt.Errorf("%w: bad quantity", ErrValidation): http.StatusBadRequest,
		errors.New("disk full"):                       http.StatusInternalServerError,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		assert.Equal(t, status, rec.Code, err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestValidateReportsFields(t *testing.T) {
	type form struct {
		Name  string `validate:"required"`
		Email string `validate:"omitempty,email"`
	}
	require.NoError(t, Validate(form{Name: "Acme"}))

	err := Validate(form{Email: "nope"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Name failed required")
	assert.Contains(t, err.Error(), "Email failed email")
}

func TestAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	Attachment(rec, "invoice_INV-1.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=invoice_INV-1.pdf`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
}

func TestIDParam(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/x/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := IDParam(r, "id")
		if err != nil {
			RespondError(w, err)
			return
		}
		JSON(w, http.StatusOK, map[string]int64{"id": id})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/12", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body["id"])

	for _, raw := range []string{"0", "-3", "abc"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/"+raw, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
}
