package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// MarketDaySession persists the allocation state of one market on one day,
// including the frozen spunta queue.
type MarketDaySession struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	MarketID        uuid.UUID          `gorm:"column:market_id;type:uuid;not null;uniqueIndex:ux_market_day_sessions_key,priority:1"`
	MarketDate      time.Time          `gorm:"column:market_date;type:date;not null;uniqueIndex:ux_market_day_sessions_key,priority:2"`
	Phase           enums.SessionPhase `gorm:"column:phase;type:text;not null"`
	Queue           json.RawMessage    `gorm:"column:queue;type:jsonb"`
	StartedAt       time.Time          `gorm:"column:started_at;not null"`
	SpuntaStartedAt *time.Time         `gorm:"column:spunta_started_at"`
	ClosedAt        *time.Time         `gorm:"column:closed_at"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *MarketDaySession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
