package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type historySource interface {
	ItinerantForDay(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, day time.Time) ([]models.AttendanceRecord, error)
	PriorHistory(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, vendorIDs []uuid.UUID, day time.Time) (map[uuid.UUID]attendance.History, error)
}

// Service builds rankings from the attendance log. Nothing is cached.
type Service struct {
	history historySource
	vendors VendorRepository
	tx      txRunner
	logg    *logger.Logger
}

// NewService wires the queue ranking service.
func NewService(history historySource, vendors VendorRepository, tx txRunner, logg *logger.Logger) (*Service, error) {
	if history == nil {
		return nil, fmt.Errorf("attendance history required")
	}
	if vendors == nil {
		return nil, fmt.Errorf("vendor repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{history: history, vendors: vendors, tx: tx, logg: logg}, nil
}

// Preview returns a fresh ranking of the vendors present on date.
func (s *Service) Preview(ctx context.Context, marketID uuid.UUID, date time.Time) ([]Entry, error) {
	if marketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "market id required")
	}
	var entries []Entry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entries, err = s.Build(ctx, tx, marketID, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Build ranks inside the caller's transaction. Unknown vendors are reported on
// their entry instead of failing the pass.
func (s *Service) Build(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, date time.Time) ([]Entry, error) {
	day := db.Day(date)
	records, err := s.history.ItinerantForDay(ctx, tx, marketID, day)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Entry{}, nil
	}

	vendorIDs := make([]uuid.UUID, 0, len(records))
	for _, record := range records {
		vendorIDs = append(vendorIDs, record.VendorID)
	}
	known, err := s.vendors.WithTx(tx).Existing(ctx, vendorIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
	}
	history, err := s.history.PriorHistory(ctx, tx, marketID, vendorIDs, day)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(vendorIDs))
	for _, id := range vendorIDs {
		h := history[id]
		candidate := Candidate{
			VendorID:              id,
			TotalPriorAttendances: h.TotalPriorAttendances,
			FirstAttendanceDate:   h.FirstAttendanceDate,
		}
		if _, ok := known[id]; !ok {
			candidate.Err = pkgerrors.New(pkgerrors.CodeVendorNotFound, fmt.Sprintf("vendor %s not found", id))
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"market_id": marketID.String(),
				"vendor_id": id.String(),
			})
			s.logg.Warn(logCtx, "queue.vendor_missing")
		}
		candidates = append(candidates, candidate)
	}
	return Rank(candidates), nil
}
