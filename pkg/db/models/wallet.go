package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// Wallet holds a cached balance. BalanceCents always equals the sum of the
// wallet's ledger transactions.
type Wallet struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	VendorID     uuid.UUID        `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_wallets_owner_type,priority:1"`
	MarketID     uuid.UUID        `gorm:"column:market_id;type:uuid;not null;uniqueIndex:ux_wallets_owner_type,priority:2"`
	Type         enums.WalletType `gorm:"column:type;type:text;not null;uniqueIndex:ux_wallets_owner_type,priority:3"`
	BalanceCents int64            `gorm:"column:balance_cents;not null;default:0"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// LedgerTransaction is an append-only balance movement.
type LedgerTransaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	WalletID      uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null;index:ix_ledger_wallet_created,priority:1"`
	AmountCents   int64                 `gorm:"column:amount_cents;not null"`
	Kind          enums.TransactionKind `gorm:"column:kind;type:text;not null"`
	ReferenceType string                `gorm:"column:reference_type"`
	ReferenceID   *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	MoraExact     *string               `gorm:"column:mora_exact"`
	Note          string                `gorm:"column:note"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime;index:ix_ledger_wallet_created,priority:2"`
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

func (l *LedgerTransaction) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
