package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Market is reference data owned by the master-data service.
type Market struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name             string          `gorm:"column:name;not null"`
	CostPerSqm       decimal.Decimal `gorm:"column:cost_per_sqm;type:numeric(12,4);not null"`
	AnnualMarketDays int             `gorm:"column:annual_market_days;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (m *Market) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Vendor is reference data for a trader (ambulante or concessionaire).
type Vendor struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BusinessName string    `gorm:"column:business_name;not null"`
	FiscalCode   string    `gorm:"column:fiscal_code;not null"`
	Active       bool      `gorm:"column:active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Concession grants a vendor a fixed stall for a validity window.
type Concession struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	MarketID    uuid.UUID  `gorm:"column:market_id;type:uuid;not null;index"`
	StallNumber string     `gorm:"column:stall_number;not null"`
	VendorID    uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null;index"`
	ValidFrom   time.Time  `gorm:"column:valid_from;type:date;not null"`
	ValidTo     *time.Time `gorm:"column:valid_to;type:date"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *Concession) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ActiveOn reports whether the concession covers day.
func (c Concession) ActiveOn(day time.Time) bool {
	if day.Before(c.ValidFrom) {
		return false
	}
	return c.ValidTo == nil || !day.After(*c.ValidTo)
}
