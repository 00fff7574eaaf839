package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// FeeSchedule is one installment (or extraordinary charge) owed on a
// concession fee wallet.
type FeeSchedule struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	WalletID          uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:ux_fee_schedules_wallet_year_number,priority:1"`
	Year              int                     `gorm:"column:year;not null;uniqueIndex:ux_fee_schedules_wallet_year_number,priority:2"`
	InstallmentNumber int                     `gorm:"column:installment_number;not null;uniqueIndex:ux_fee_schedules_wallet_year_number,priority:3"`
	Kind              enums.FeeScheduleKind   `gorm:"column:kind;type:text;not null"`
	BaseCents         int64                   `gorm:"column:base_cents;not null"`
	DueDate           time.Time               `gorm:"column:due_date;type:date;not null"`
	Status            enums.FeeScheduleStatus `gorm:"column:status;type:text;not null"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	MoraCentsPaid     int64                   `gorm:"column:mora_cents_paid;not null;default:0"`
	Note              string                  `gorm:"column:note"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (f *FeeSchedule) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
