package queue

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
)

// VendorRepository reads vendor reference data.
type VendorRepository interface {
	WithTx(tx *gorm.DB) VendorRepository
	Existing(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error)
}

type vendorRepository struct {
	db *gorm.DB
}

// NewVendorRepository returns a vendor reader bound to the provided database.
func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &vendorRepository{db: db}
}

func (r *vendorRepository) WithTx(tx *gorm.DB) VendorRepository {
	if tx == nil {
		return r
	}
	return &vendorRepository{db: tx}
}

func (r *vendorRepository) Existing(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}
