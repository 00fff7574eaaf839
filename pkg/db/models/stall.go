package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// Stall is a numbered pitch inside a market. Status and binding describe the
// current market day only.
type Stall struct {
	MarketID     uuid.UUID         `gorm:"column:market_id;type:uuid;primaryKey"`
	Number       string            `gorm:"column:number;primaryKey"`
	Kind         enums.StallKind   `gorm:"column:kind;type:text;not null"`
	Status       enums.StallStatus `gorm:"column:status;type:text;not null"`
	VendorID     *uuid.UUID        `gorm:"column:vendor_id;type:uuid"`
	AreaSqm      decimal.Decimal   `gorm:"column:area_sqm;type:numeric(10,2);not null"`
	AttendanceID *uuid.UUID        `gorm:"column:attendance_id;type:uuid"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
