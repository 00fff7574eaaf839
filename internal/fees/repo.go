package fees

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// Repository persists fee schedules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, schedule *models.FeeSchedule) error
	Get(ctx context.Context, id uuid.UUID) (*models.FeeSchedule, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, year int) ([]models.FeeSchedule, error)
	ListOpenByWallet(ctx context.Context, walletID uuid.UUID) ([]models.FeeSchedule, error)
	CountForWalletYear(ctx context.Context, walletID uuid.UUID, year int) (int64, error)
	MaxInstallmentNumber(ctx context.Context, walletID uuid.UUID, year int) (int, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, moraCents int64) (bool, error)
	ListOverdue(ctx context.Context, marketID uuid.UUID, dueBefore time.Time) ([]models.FeeSchedule, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to enums.FeeScheduleStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a fee schedule repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, schedule *models.FeeSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.FeeSchedule, error) {
	var schedule models.FeeSchedule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&schedule).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID, year int) ([]models.FeeSchedule, error) {
	query := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	var rows []models.FeeSchedule
	err := query.Order("year").Order("installment_number").Find(&rows).Error
	return rows, err
}

// ListOpenByWallet returns unpaid and in-arrears schedules in payment order:
// year, then installment number. Due dates do not reorder a year.
func (r *repository) ListOpenByWallet(ctx context.Context, walletID uuid.UUID) ([]models.FeeSchedule, error) {
	var rows []models.FeeSchedule
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND status IN ?", walletID, []enums.FeeScheduleStatus{enums.FeeScheduleUnpaid, enums.FeeScheduleInArrears}).
		Order("year").
		Order("installment_number").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountForWalletYear(ctx context.Context, walletID uuid.UUID, year int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FeeSchedule{}).
		Where("wallet_id = ? AND year = ? AND kind = ?", walletID, year, enums.FeeScheduleAnnual).
		Count(&count).Error
	return count, err
}

func (r *repository) MaxInstallmentNumber(ctx context.Context, walletID uuid.UUID, year int) (int, error) {
	var highest int
	err := r.db.WithContext(ctx).
		Model(&models.FeeSchedule{}).
		Where("wallet_id = ? AND year = ?", walletID, year).
		Select("COALESCE(MAX(installment_number), 0)").
		Scan(&highest).Error
	return highest, err
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, moraCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FeeSchedule{}).
		Where("id = ? AND status <> ?", id, enums.FeeSchedulePaid).
		Updates(map[string]any{
			"status":          enums.FeeSchedulePaid,
			"paid_at":         paidAt,
			"mora_cents_paid": moraCents,
			"updated_at":      paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListOverdue(ctx context.Context, marketID uuid.UUID, dueBefore time.Time) ([]models.FeeSchedule, error) {
	var rows []models.FeeSchedule
	err := r.db.WithContext(ctx).
		Model(&models.FeeSchedule{}).
		Select("fee_schedules.*").
		Joins("JOIN wallets ON wallets.id = fee_schedules.wallet_id").
		Where("wallets.market_id = ?", marketID).
		Where("fee_schedules.status = ? AND fee_schedules.due_date < ?", enums.FeeScheduleUnpaid, dueBefore).
		Order("fee_schedules.due_date").
		Find(&rows).Error
	return rows, err
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to enums.FeeScheduleStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FeeSchedule{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
