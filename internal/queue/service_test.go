package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/dbtest"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
)

type fixture struct {
	conn     *gorm.DB
	svc      *Service
	att      *attendance.Service
	marketID uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	market := models.Market{Name: "Mercato", CostPerSqm: decimal.NewFromInt(1), AnnualMarketDays: 52}
	require.NoError(t, conn.Create(&market).Error)

	client := db.NewFromGorm(conn)
	att, err := attendance.NewService(attendance.NewRepository(conn), client, outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)
	svc, err := NewService(att, NewVendorRepository(conn), client, nil)
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, att: att, marketID: market.ID}
}

func (f fixture) vendor(t *testing.T, id uuid.UUID) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Vendor{ID: id, BusinessName: "v", FiscalCode: id.String(), Active: true}).Error)
}

func (f fixture) attend(t *testing.T, vendorID uuid.UUID, day time.Time, outcome enums.AttendanceOutcome) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.AttendanceRecord{
		MarketID:   f.marketID,
		VendorID:   vendorID,
		MarketDate: db.Day(day),
		ArrivedAt:  day,
		Outcome:    outcome,
	}).Error)
}

func TestPreviewSeniorityScenario(t *testing.T) {
	f := newFixture(t)
	x, y := uuid.New(), uuid.New()
	f.vendor(t, x)
	f.vendor(t, y)

	xStart := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	yStart := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		f.attend(t, x, xStart.AddDate(0, 0, 7*i), enums.AttendanceAssigned)
		f.attend(t, y, yStart.AddDate(0, 0, 7*i), enums.AttendanceRenounced)
	}
	today := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	f.attend(t, y, today, enums.AttendancePresent)
	f.attend(t, x, today, enums.AttendancePresent)

	entries, err := f.svc.Preview(context.Background(), f.marketID, today)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, x, entries[0].VendorID)
	assert.Equal(t, 10, entries[0].TotalPriorAttendances)
	assert.Equal(t, y, entries[1].VendorID)

	again, err := f.svc.Preview(context.Background(), f.marketID, today)
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestPreviewReflectsCorrections(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()
	f.vendor(t, a)
	f.vendor(t, b)
	today := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	f.attend(t, a, today, enums.AttendancePresent)
	f.attend(t, b, today, enums.AttendancePresent)

	entries, err := f.svc.Preview(context.Background(), f.marketID, today)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var record models.AttendanceRecord
	require.NoError(t, f.conn.Where("vendor_id = ?", b).First(&record).Error)
	concession := enums.AttendanceConcession
	_, err = f.att.CorrectAttendance(context.Background(), attendance.CorrectionInput{
		RecordID: record.ID,
		Outcome:  &concession,
		Note:     "holds a concession",
	})
	require.NoError(t, err)

	entries, err = f.svc.Preview(context.Background(), f.marketID, today)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a, entries[0].VendorID)
}

func TestPreviewReportsUnknownVendorPerEntry(t *testing.T) {
	f := newFixture(t)
	known, ghost := uuid.New(), uuid.New()
	f.vendor(t, known)
	today := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	f.attend(t, ghost, today, enums.AttendancePresent)
	f.attend(t, known, today, enums.AttendancePresent)
	f.attend(t, uuid.New(), today, enums.AttendanceConcession)

	entries, err := f.svc.Preview(context.Background(), f.marketID, today)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, known, entries[0].VendorID)
	assert.Equal(t, ghost, entries[1].VendorID)
	assert.Equal(t, string(pkgerrors.CodeVendorNotFound), entries[1].ErrorCode)
}

func TestPreviewRequiresMarket(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Preview(context.Background(), uuid.Nil, time.Now())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
