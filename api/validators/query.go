package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseUUIDParam reads a chi URL parameter as a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// ParseDayParam reads a chi URL parameter as a calendar day (YYYY-MM-DD).
func ParseDayParam(r *http.Request, name string) (time.Time, error) {
	return parseDay(chi.URLParam(r, name), name)
}

// ParseQueryDay reads a calendar day from the query string, falling back
// to fallback when absent.
func ParseQueryDay(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return db.Day(fallback), nil
	}
	return parseDay(raw, key)
}

// ParseDay validates a body field holding a calendar day.
func ParseDay(raw, field string) (time.Time, error) {
	return parseDay(raw, field)
}

func parseDay(raw, field string) (time.Time, error) {
	day, err := db.ParseDay(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "date must be YYYY-MM-DD").WithDetails(map[string]any{"field": field})
	}
	return day, nil
}
