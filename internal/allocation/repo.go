package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
)

// SessionRepository persists market day sessions.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *models.MarketDaySession) error
	Find(ctx context.Context, marketID uuid.UUID, day time.Time) (*models.MarketDaySession, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository returns a session repository bound to the provided database.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &sessionRepository{db: tx}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.MarketDaySession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Find returns nil, nil when the day has no session yet.
func (r *sessionRepository) Find(ctx context.Context, marketID uuid.UUID, day time.Time) (*models.MarketDaySession, error) {
	var session models.MarketDaySession
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND market_date = ?", marketID, day).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.MarketDaySession{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
