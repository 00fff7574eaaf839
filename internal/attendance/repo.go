package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// Repository manages persistence for attendance records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.AttendanceRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error)
	FindForDay(ctx context.Context, marketID, vendorID uuid.UUID, day time.Time) (*models.AttendanceRecord, error)
	ListForDay(ctx context.Context, marketID uuid.UUID, day time.Time) ([]models.AttendanceRecord, error)
	ListPriorDates(ctx context.Context, marketID uuid.UUID, vendorIDs []uuid.UUID, before time.Time) ([]VendorDate, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

// VendorDate is one (vendor, market_date) pair from the attendance history.
type VendorDate struct {
	VendorID   uuid.UUID
	MarketDate time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an attendance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindForDay returns nil, nil when the vendor has no record for the day.
func (r *repository) FindForDay(ctx context.Context, marketID, vendorID uuid.UUID, day time.Time) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND vendor_id = ? AND market_date = ?", marketID, vendorID, day).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListForDay(ctx context.Context, marketID uuid.UUID, day time.Time) ([]models.AttendanceRecord, error) {
	var rows []models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND market_date = ?", marketID, day).
		Order("arrived_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListPriorDates returns the attendance dates strictly before the given day.
// Aggregation happens in Go so date columns keep their driver types.
func (r *repository) ListPriorDates(ctx context.Context, marketID uuid.UUID, vendorIDs []uuid.UUID, before time.Time) ([]VendorDate, error) {
	if len(vendorIDs) == 0 {
		return nil, nil
	}
	var rows []models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Select("vendor_id", "market_date").
		Where("market_id = ? AND vendor_id IN ? AND market_date < ?", marketID, vendorIDs, before).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]VendorDate, 0, len(rows))
	for _, row := range rows {
		out = append(out, VendorDate{VendorID: row.VendorID, MarketDate: row.MarketDate})
	}
	return out, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// outcomeIsItinerant reports whether the record takes part in the spunta.
func outcomeIsItinerant(outcome enums.AttendanceOutcome) bool {
	return outcome != enums.AttendanceConcession
}
