package wallets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/pagination"
)

// Repository persists wallets and their append-only ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByOwner(ctx context.Context, vendorID, marketID uuid.UUID, walletType enums.WalletType) (*models.Wallet, error)
	Create(ctx context.Context, wallet *models.Wallet) error
	InsertTransaction(ctx context.Context, row *models.LedgerTransaction) error
	AddBalance(ctx context.Context, id uuid.UUID, delta int64) error
	SumTransactions(ctx context.Context, id uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, id uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByOwner(ctx context.Context, vendorID, marketID uuid.UUID, walletType enums.WalletType) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND market_id = ? AND type = ?", vendorID, marketID, walletType).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) InsertTransaction(ctx context.Context, row *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) AddBalance(ctx context.Context, id uuid.UUID, delta int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance_cents": gorm.Expr("balance_cents + ?", delta),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SumTransactions(ctx context.Context, id uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerTransaction{}).
		Where("wallet_id = ?", id).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) ListTransactions(ctx context.Context, id uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", id).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.TransactionID)
	}
	var rows []models.LedgerTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
