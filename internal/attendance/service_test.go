package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/dbtest"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := db.ParseDay(value)
	if err != nil {
		t.Fatalf("parse day %q: %v", value, err)
	}
	return d
}

func seed(t *testing.T, conn *gorm.DB, marketID, vendorID uuid.UUID, date time.Time, outcome enums.AttendanceOutcome) models.AttendanceRecord {
	t.Helper()
	record := models.AttendanceRecord{
		MarketID:   marketID,
		VendorID:   vendorID,
		MarketDate: date,
		ArrivedAt:  date.Add(7 * time.Hour),
		Outcome:    outcome,
	}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed attendance: %v", err)
	}
	return record
}

func newService(t *testing.T) (*Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	conn := dbtest.Open(t)
	market := models.Market{Name: "Piazza", CostPerSqm: decimal.NewFromInt(1), AnnualMarketDays: 52}
	if err := conn.Create(&market).Error; err != nil {
		t.Fatalf("seed market: %v", err)
	}
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), outbox.NewService(outbox.NewRepository(conn), nil), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, conn, market.ID
}

func TestPriorHistoryCountsStrictlyEarlierDays(t *testing.T) {
	svc, conn, marketID := newService(t)
	x, y, newcomer := uuid.New(), uuid.New(), uuid.New()

	seed(t, conn, marketID, x, day(t, "2023-01-10"), enums.AttendanceAssigned)
	seed(t, conn, marketID, x, day(t, "2023-02-10"), enums.AttendanceForcedRenounce)
	seed(t, conn, marketID, x, day(t, "2024-05-04"), enums.AttendancePresent)
	seed(t, conn, marketID, y, day(t, "2023-06-01"), enums.AttendanceRenounced)
	seed(t, conn, marketID, y, day(t, "2024-05-04"), enums.AttendancePresent)
	seed(t, conn, uuid.New(), y, day(t, "2022-01-01"), enums.AttendanceAssigned)

	history, err := svc.PriorHistory(context.Background(), conn, marketID, []uuid.UUID{x, y, newcomer}, day(t, "2024-05-04"))
	if err != nil {
		t.Fatalf("prior history: %v", err)
	}
	if got := history[x]; got.TotalPriorAttendances != 2 || !got.FirstAttendanceDate.Equal(day(t, "2023-01-10")) {
		t.Fatalf("unexpected history for x: %+v", got)
	}
	if got := history[y]; got.TotalPriorAttendances != 1 || !got.FirstAttendanceDate.Equal(day(t, "2023-06-01")) {
		t.Fatalf("unexpected history for y (other market must not count): %+v", got)
	}
	if got := history[newcomer]; got.TotalPriorAttendances != 0 || got.FirstAttendanceDate != nil {
		t.Fatalf("newcomer should have empty history: %+v", got)
	}
}

func TestItinerantForDaySkipsConcessionaires(t *testing.T) {
	svc, conn, marketID := newService(t)
	today := day(t, "2024-05-04")
	seed(t, conn, marketID, uuid.New(), today, enums.AttendanceConcession)
	present := seed(t, conn, marketID, uuid.New(), today, enums.AttendancePresent)

	rows, err := svc.ItinerantForDay(context.Background(), conn, marketID, today)
	if err != nil {
		t.Fatalf("itinerant for day: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != present.ID {
		t.Fatalf("expected only the present vendor, got %+v", rows)
	}
}

func TestCorrectAttendanceStampsAuditFields(t *testing.T) {
	svc, conn, marketID := newService(t)
	record := seed(t, conn, marketID, uuid.New(), day(t, "2024-05-04"), enums.AttendanceForcedRenounce)
	svc.now = func() time.Time { return time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC) }

	outcome := enums.AttendanceAssigned
	stall := "A7"
	corrected, err := svc.CorrectAttendance(context.Background(), CorrectionInput{
		RecordID:    record.ID,
		Outcome:     &outcome,
		StallNumber: &stall,
		Note:        "operator mistyped the outcome",
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if corrected.Outcome != enums.AttendanceAssigned || corrected.CorrectedAt == nil {
		t.Fatalf("unexpected corrected record %+v", corrected)
	}

	stored, err := svc.Repository().Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Outcome != enums.AttendanceAssigned || stored.StallNumber == nil || *stored.StallNumber != "A7" {
		t.Fatalf("correction not persisted: %+v", stored)
	}
	if stored.CorrectionNote == nil || *stored.CorrectionNote != "operator mistyped the outcome" || stored.CorrectedAt == nil {
		t.Fatalf("audit fields missing: %+v", stored)
	}

	events, err := outbox.NewRepository(conn).ListByAggregate(enums.AggregateAttendance, record.ID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one correction event, got %d err=%v", len(events), err)
	}
}

func TestCorrectAttendanceValidation(t *testing.T) {
	svc, _, _ := newService(t)
	outcome := enums.AttendancePresent
	bogus := enums.AttendanceOutcome("vanished")
	cases := []struct {
		name  string
		input CorrectionInput
		code  pkgerrors.Code
	}{
		{"missing id", CorrectionInput{Outcome: &outcome, Note: "n"}, pkgerrors.CodeValidation},
		{"missing note", CorrectionInput{RecordID: uuid.New(), Outcome: &outcome}, pkgerrors.CodeValidation},
		{"nothing to change", CorrectionInput{RecordID: uuid.New(), Note: "n"}, pkgerrors.CodeValidation},
		{"bad outcome", CorrectionInput{RecordID: uuid.New(), Outcome: &bogus, Note: "n"}, pkgerrors.CodeValidation},
		{"unknown record", CorrectionInput{RecordID: uuid.New(), Outcome: &outcome, Note: "n"}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CorrectAttendance(context.Background(), tc.input)
			if !pkgerrors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}
