package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/locks"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/metrics"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/pagination"
)

// Reference types written on ledger rows.
const (
	ReferenceDeposit       = "deposit"
	ReferenceAttendance    = "attendance"
	ReferenceFeeSchedule   = "fee_schedule"
	ReferenceExtraordinary = "extraordinary_charge"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ApplyInput describes one ledger movement.
type ApplyInput struct {
	WalletID      uuid.UUID
	AmountCents   int64
	Kind          enums.TransactionKind
	ReferenceType string
	ReferenceID   *uuid.UUID
	MoraExact     *string
	Note          string
	// RequireNonNegative rejects the movement with InsufficientCredit when
	// the resulting balance would drop below zero.
	RequireNonNegative bool
}

// Applied is the appended row and the balance it produced.
type Applied struct {
	Transaction  models.LedgerTransaction
	BalanceCents int64
}

// DepositInput tops up a wallet.
type DepositInput struct {
	WalletID    uuid.UUID
	AmountCents int64
	Reference   string
}

// HistoryPage is one page of ledger rows, newest first.
type HistoryPage struct {
	Items      []models.LedgerTransaction
	NextCursor string
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	WalletID     uuid.UUID
	StoredCents  int64
	LedgerCents  int64
	Consistent   bool
	CheckedAtUTC time.Time
}

// Service is the only mutation path for wallet balances.
type Service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	locks   *locks.Keyed
	metrics *metrics.AllocationMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the wallet ledger. keyed is shared with every component
// that moves money so wallet critical sections line up.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, keyed *locks.Keyed, m *metrics.AllocationMetrics, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if keyed == nil {
		keyed = locks.NewKeyed()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, tx: tx, outbox: outbox, locks: keyed, metrics: m, logg: logg, now: time.Now}, nil
}

// LockKey identifies a wallet by owner so callers can lock before the row
// exists.
func LockKey(vendorID, marketID uuid.UUID, walletType enums.WalletType) string {
	return fmt.Sprintf("wallet:%s:%s:%s", vendorID, marketID, walletType)
}

// Lock acquires the wallet's critical section and returns its release func.
func (s *Service) Lock(ctx context.Context, vendorID, marketID uuid.UUID, walletType enums.WalletType) (func(), error) {
	unlock, err := s.locks.Lock(ctx, LockKey(vendorID, marketID, walletType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	return unlock, nil
}

// LockWallet loads walletID and locks it. The wallet is returned for callers
// that need its owner.
func (s *Service) LockWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, func(), error) {
	wallet, err := s.Get(ctx, nil, walletID)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := s.Lock(ctx, wallet.VendorID, wallet.MarketID, wallet.Type)
	if err != nil {
		return nil, nil, err
	}
	return wallet, unlock, nil
}

// Get loads a wallet, mapping a miss to WalletNotFound.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (*models.Wallet, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	wallet, err := s.repo.WithTx(tx).Get(ctx, walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeWalletNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

// EnsureWallet returns the owner's wallet, creating it on first association.
func (s *Service) EnsureWallet(ctx context.Context, tx *gorm.DB, vendorID, marketID uuid.UUID, walletType enums.WalletType) (*models.Wallet, error) {
	if vendorID == uuid.Nil || marketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor and market required")
	}
	if !walletType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid wallet type %q", walletType))
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindByOwner(ctx, vendorID, marketID, walletType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find wallet")
	}
	if wallet != nil {
		return wallet, nil
	}
	wallet = &models.Wallet{VendorID: vendorID, MarketID: marketID, Type: walletType}
	if err := repo.Create(ctx, wallet); err != nil {
		if db.IsUniqueViolation(err, "ux_wallets_owner_type") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "wallet created concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}

func validateAmount(kind enums.TransactionKind, amount int64) error {
	switch kind {
	case enums.TransactionKindDeposit:
		if amount <= 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "deposit must be positive")
		}
	case enums.TransactionKindMoraCharge:
		if amount >= 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "mora charge must be negative")
		}
	case enums.TransactionKindFeeCharge, enums.TransactionKindDebitStallUse:
		// Zero records an explicit waiver.
		if amount > 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "charge cannot be positive")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", kind))
	}
	return nil
}

// ApplyTransaction appends one ledger row and moves the cached balance by the
// same amount inside tx. Validation happens before anything is written.
func (s *Service) ApplyTransaction(ctx context.Context, tx *gorm.DB, input ApplyInput) (*Applied, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if err := validateAmount(input.Kind, input.AmountCents); err != nil {
		return nil, err
	}

	wallet, err := s.Get(ctx, tx, input.WalletID)
	if err != nil {
		return nil, err
	}
	balance := wallet.BalanceCents + input.AmountCents
	if input.RequireNonNegative && balance < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredit, "insufficient credit").WithDetails(map[string]any{
			"balance_cents":  wallet.BalanceCents,
			"required_cents": -input.AmountCents,
		})
	}

	repo := s.repo.WithTx(tx)
	row := models.LedgerTransaction{
		WalletID:      wallet.ID,
		AmountCents:   input.AmountCents,
		Kind:          input.Kind,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		MoraExact:     input.MoraExact,
		Note:          strings.TrimSpace(input.Note),
		CreatedAt:     s.now().UTC(),
	}
	if err := repo.InsertTransaction(ctx, &row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger transaction")
	}
	if err := repo.AddBalance(ctx, wallet.ID, input.AmountCents); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLedgerRecorded,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID,
		Data: payloads.LedgerTransactionRecordedEvent{
			TransactionID: row.ID,
			WalletID:      wallet.ID,
			Kind:          row.Kind,
			AmountCents:   row.AmountCents,
			BalanceCents:  balance,
			ReferenceType: row.ReferenceType,
			ReferenceID:   row.ReferenceID,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit ledger event")
	}

	s.metrics.ObserveTransaction(string(row.Kind), row.AmountCents)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":    wallet.ID.String(),
		"kind":         row.Kind,
		"amount_cents": row.AmountCents,
	})
	s.logg.Info(logCtx, "ledger.transaction_recorded")
	return &Applied{Transaction: row, BalanceCents: balance}, nil
}

// Deposit tops up a wallet in its own transaction under the wallet lock.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (*Applied, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "deposit must be positive")
	}
	_, unlock, err := s.LockWallet(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var applied *Applied
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		applied, err = s.ApplyTransaction(ctx, tx, ApplyInput{
			WalletID:      input.WalletID,
			AmountCents:   input.AmountCents,
			Kind:          enums.TransactionKindDeposit,
			ReferenceType: ReferenceDeposit,
			Note:          input.Reference,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Balance reads the cached balance.
func (s *Service) Balance(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return s.Get(ctx, nil, walletID)
}

// History pages through the wallet's ledger, newest first.
func (s *Service) History(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if _, err := s.Get(ctx, nil, walletID); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListTransactions(ctx, walletID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger transactions")
	}

	page := &HistoryPage{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[len(page.Items)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{WalletID: walletID, CreatedAt: last.CreatedAt, TransactionID: last.ID})
	}
	return page, nil
}

// Reconcile recomputes the balance from the ledger. A difference is returned
// as LedgerMismatch alongside the figures.
func (s *Service) Reconcile(ctx context.Context, walletID uuid.UUID) (*Reconciliation, error) {
	var result *Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.Get(ctx, tx, walletID)
		if err != nil {
			return err
		}
		sum, err := s.repo.WithTx(tx).SumTransactions(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger")
		}
		result = &Reconciliation{
			WalletID:     walletID,
			StoredCents:  wallet.BalanceCents,
			LedgerCents:  sum,
			Consistent:   sum == wallet.BalanceCents,
			CheckedAtUTC: s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Consistent {
		logCtx := s.logg.WithWalletID(ctx, walletID.String())
		s.logg.Warn(logCtx, "ledger.mismatch")
		return result, pkgerrors.New(pkgerrors.CodeLedgerMismatch, "wallet balance differs from ledger").WithDetails(map[string]any{
			"stored_cents": result.StoredCents,
			"ledger_cents": result.LedgerCents,
		})
	}
	return result, nil
}
