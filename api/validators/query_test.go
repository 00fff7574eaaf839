package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
)

func withParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"walletId": id.String(), "bad": "nope"})

	got, err := ParseUUIDParam(req, "walletId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s err=%v", id, got, err)
	}
	if _, err := ParseUUIDParam(req, "bad"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseUUIDParam(req, "missing"); err == nil {
		t.Fatalf("expected error for missing param")
	}
}

func TestParseDayParam(t *testing.T) {
	req := withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"date": "2026-03-14", "bad": "14/03/2026"})

	day, err := ParseDayParam(req, "date")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %v", day)
	}
	if _, err := ParseDayParam(req, "bad"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryDayFallsBack(t *testing.T) {
	fallback := time.Date(2026, 5, 2, 17, 30, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/queue", nil)

	day, err := ParseQueryDay(req, "date", fallback)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.Equal(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected truncated fallback, got %v", day)
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tx?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/tx", nil)
	if got, err := ParseQueryInt(req, "limit", 25, 1, 100); err != nil || got != 25 {
		t.Fatalf("expected default 25, got %d err=%v", got, err)
	}
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	type payload struct {
		AmountCents int64  `json:"amount_cents" validate:"gt=0"`
		Reference   string `json:"reference" validate:"max=8"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount_cents":0,"reference":"ok"}`))
	var p payload
	err := DecodeJSONBody(req, &p)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["amount_cents"] != "must be greater than 0" {
		t.Fatalf("unexpected details %v", typed.Details())
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount_cents":5,"extra":true}`))
	if err := DecodeJSONBody(req, &p); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
}
