package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// AttendanceRecord is one vendor's presence at one market on one day. The
// history of these rows drives queue seniority.
type AttendanceRecord struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	MarketID       uuid.UUID               `gorm:"column:market_id;type:uuid;not null;uniqueIndex:ux_attendance_market_vendor_date,priority:1"`
	VendorID       uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_attendance_market_vendor_date,priority:2"`
	MarketDate     time.Time               `gorm:"column:market_date;type:date;not null;uniqueIndex:ux_attendance_market_vendor_date,priority:3"`
	ArrivedAt      time.Time               `gorm:"column:arrived_at;not null"`
	CheckedOutAt   *time.Time              `gorm:"column:checked_out_at"`
	StallNumber    *string                 `gorm:"column:stall_number"`
	Outcome        enums.AttendanceOutcome `gorm:"column:outcome;type:text;not null"`
	CorrectedAt    *time.Time              `gorm:"column:corrected_at"`
	CorrectionNote *string                 `gorm:"column:correction_note"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *AttendanceRecord) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
