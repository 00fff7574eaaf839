package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// History is a vendor's seniority in one market as of a given day.
type History struct {
	VendorID              uuid.UUID
	TotalPriorAttendances int
	FirstAttendanceDate   *time.Time
}

// CorrectionInput overwrites parts of an attendance record. Note is mandatory.
type CorrectionInput struct {
	RecordID    uuid.UUID
	Outcome     *enums.AttendanceOutcome
	StallNumber *string
	Note        string
}

// Service exposes attendance history and audited corrections.
type Service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the attendance service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("attendance repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, tx: tx, outbox: outbox, logg: logg, now: time.Now}, nil
}

// Repository exposes the underlying repository for callers composing their
// own transactions.
func (s *Service) Repository() Repository {
	return s.repo
}

// PriorHistory counts every attendance record of each vendor in the market
// strictly before day. Presence counts even when no stall was obtained.
func (s *Service) PriorHistory(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, vendorIDs []uuid.UUID, day time.Time) (map[uuid.UUID]History, error) {
	rows, err := s.repo.WithTx(tx).ListPriorDates(ctx, marketID, vendorIDs, db.Day(day))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance history")
	}
	out := make(map[uuid.UUID]History, len(vendorIDs))
	for _, id := range vendorIDs {
		out[id] = History{VendorID: id}
	}
	for _, row := range rows {
		h := out[row.VendorID]
		h.TotalPriorAttendances++
		date := db.Day(row.MarketDate)
		if h.FirstAttendanceDate == nil || date.Before(*h.FirstAttendanceDate) {
			h.FirstAttendanceDate = &date
		}
		out[row.VendorID] = h
	}
	return out, nil
}

// ItinerantForDay returns the records of vendors competing in the day's spunta.
func (s *Service) ItinerantForDay(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, day time.Time) ([]models.AttendanceRecord, error) {
	rows, err := s.repo.WithTx(tx).ListForDay(ctx, marketID, db.Day(day))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attendance")
	}
	out := rows[:0]
	for _, row := range rows {
		if outcomeIsItinerant(row.Outcome) {
			out = append(out, row)
		}
	}
	return out, nil
}

// CorrectAttendance overwrites outcome and/or stall of a record, stamping the
// correction time and note. Rankings read the corrected row from then on.
func (s *Service) CorrectAttendance(ctx context.Context, input CorrectionInput) (*models.AttendanceRecord, error) {
	if input.RecordID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "attendance id required")
	}
	note := strings.TrimSpace(input.Note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correction note required")
	}
	if input.Outcome == nil && input.StallNumber == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to correct")
	}
	if input.Outcome != nil && !input.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid outcome %q", *input.Outcome))
	}

	var result *models.AttendanceRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.Get(ctx, input.RecordID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "attendance record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance record")
		}

		previous := record.Outcome
		now := s.now().UTC()
		updates := map[string]any{
			"corrected_at":    now,
			"correction_note": note,
		}
		if input.Outcome != nil {
			updates["outcome"] = *input.Outcome
			record.Outcome = *input.Outcome
		}
		if input.StallNumber != nil {
			stall := strings.TrimSpace(*input.StallNumber)
			if stall == "" {
				updates["stall_number"] = nil
				record.StallNumber = nil
			} else {
				updates["stall_number"] = stall
				record.StallNumber = &stall
			}
		}
		if err := repo.Update(ctx, record.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update attendance record")
		}
		record.CorrectedAt = &now
		record.CorrectionNote = &note

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAttendanceCorrected,
			AggregateType: enums.AggregateAttendance,
			AggregateID:   record.ID,
			Data: payloads.AttendanceCorrectedEvent{
				AttendanceID:    record.ID,
				MarketID:        record.MarketID,
				VendorID:        record.VendorID,
				MarketDate:      record.MarketDate.Format(db.DateLayout),
				PreviousOutcome: previous,
				Outcome:         record.Outcome,
				Note:            note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit attendance correction")
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"attendance_id": result.ID.String(),
		"vendor_id":     result.VendorID.String(),
		"market_id":     result.MarketID.String(),
	})
	s.logg.Info(logCtx, "attendance.corrected")
	return result, nil
}
