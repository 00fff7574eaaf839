// Package markets reads the reference data owned by the master-data service:
// markets, vendors and concessions. Nothing here writes.
package markets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
)

// Repository reads reference rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetMarket(ctx context.Context, id uuid.UUID) (*models.Market, error)
	ListMarketIDs(ctx context.Context) ([]uuid.UUID, error)
	GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	ConcessionsForStall(ctx context.Context, marketID uuid.UUID, stallNumber string) ([]models.Concession, error)
	ConcessionsForMarket(ctx context.Context, marketID uuid.UUID) ([]models.Concession, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reference data reader bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetMarket(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&market).Error; err != nil {
		return nil, err
	}
	return &market, nil
}

func (r *repository) ListMarketIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.Market{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) ConcessionsForStall(ctx context.Context, marketID uuid.UUID, stallNumber string) ([]models.Concession, error) {
	var rows []models.Concession
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND stall_number = ?", marketID, stallNumber).
		Order("valid_from").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ConcessionsForMarket(ctx context.Context, marketID uuid.UUID) ([]models.Concession, error) {
	var rows []models.Concession
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("stall_number").
		Order("valid_from").
		Find(&rows).Error
	return rows, err
}

// Reader wraps Repository with domain error mapping.
type Reader struct {
	repo Repository
}

// NewReader wires a reference reader.
func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

// Market loads a market or fails with MarketNotFound.
func (r *Reader) Market(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Market, error) {
	market, err := r.repo.WithTx(tx).GetMarket(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeMarketNotFound, "market not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market")
	}
	return market, nil
}

// MarketIDs lists every known market.
func (r *Reader) MarketIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.repo.ListMarketIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list markets")
	}
	return ids, nil
}

// Vendor loads a vendor or fails with VendorNotFound.
func (r *Reader) Vendor(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Vendor, error) {
	vendor, err := r.repo.WithTx(tx).GetVendor(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeVendorNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return vendor, nil
}

// HoldsConcession reports whether vendorID holds the stall's concession on day.
func (r *Reader) HoldsConcession(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, stallNumber string, vendorID uuid.UUID, day time.Time) (bool, error) {
	rows, err := r.repo.WithTx(tx).ConcessionsForStall(ctx, marketID, stallNumber)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load concessions")
	}
	day = db.Day(day)
	for _, c := range rows {
		if c.VendorID == vendorID && c.ActiveOn(day) {
			return true, nil
		}
	}
	return false, nil
}

// ConcessionsInYear returns the market's concessions active on any day of year.
func (r *Reader) ConcessionsInYear(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, year int) ([]models.Concession, error) {
	rows, err := r.repo.WithTx(tx).ConcessionsForMarket(ctx, marketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load concessions")
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	out := make([]models.Concession, 0, len(rows))
	for _, c := range rows {
		if db.Day(c.ValidFrom).After(end) {
			continue
		}
		if c.ValidTo != nil && db.Day(*c.ValidTo).Before(start) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
