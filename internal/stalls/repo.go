package stalls

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// Key addresses a stall inside its market.
type Key struct {
	MarketID uuid.UUID
	Number   string
}

// Repository manages persistence for stalls.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, key Key) (*models.Stall, error)
	ListByMarket(ctx context.Context, marketID uuid.UUID) ([]models.Stall, error)
	ListByStatus(ctx context.Context, marketID uuid.UUID, status enums.StallStatus) ([]models.Stall, error)
	FindByVendor(ctx context.Context, marketID, vendorID uuid.UUID, status enums.StallStatus) (*models.Stall, error)
	Create(ctx context.Context, stall *models.Stall) error
	CompareAndSet(ctx context.Context, key Key, expected enums.StallStatus, next Binding) (bool, error)
}

// Binding is the mutable part of a stall row.
type Binding struct {
	Status       enums.StallStatus
	VendorID     *uuid.UUID
	AttendanceID *uuid.UUID
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stall repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, key Key) (*models.Stall, error) {
	var stall models.Stall
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND number = ?", key.MarketID, key.Number).
		First(&stall).Error
	if err != nil {
		return nil, err
	}
	return &stall, nil
}

// ListByMarket returns every stall of a market in natural number order.
func (r *repository) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]models.Stall, error) {
	var rows []models.Stall
	if err := r.db.WithContext(ctx).Where("market_id = ?", marketID).Find(&rows).Error; err != nil {
		return nil, err
	}
	sortStalls(rows)
	return rows, nil
}

func (r *repository) ListByStatus(ctx context.Context, marketID uuid.UUID, status enums.StallStatus) ([]models.Stall, error) {
	var rows []models.Stall
	if err := r.db.WithContext(ctx).
		Where("market_id = ? AND status = ?", marketID, status).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	sortStalls(rows)
	return rows, nil
}

func (r *repository) FindByVendor(ctx context.Context, marketID, vendorID uuid.UUID, status enums.StallStatus) (*models.Stall, error) {
	var stall models.Stall
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND vendor_id = ? AND status = ?", marketID, vendorID, status).
		First(&stall).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stall, nil
}

func (r *repository) Create(ctx context.Context, stall *models.Stall) error {
	return r.db.WithContext(ctx).Create(stall).Error
}

// CompareAndSet moves a stall to next only if it is still in expected.
func (r *repository) CompareAndSet(ctx context.Context, key Key, expected enums.StallStatus, next Binding) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Stall{}).
		Where("market_id = ? AND number = ? AND status = ?", key.MarketID, key.Number, expected).
		Updates(map[string]any{
			"status":        next.Status,
			"vendor_id":     next.VendorID,
			"attendance_id": next.AttendanceID,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func sortStalls(rows []models.Stall) {
	sort.SliceStable(rows, func(i, j int) bool {
		return NaturalLess(rows[i].Number, rows[j].Number)
	})
}
