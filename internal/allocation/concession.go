package allocation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

// StartMarketDay opens the concession phase for the day.
func (o *Orchestrator) StartMarketDay(ctx context.Context, key SessionKey) (*SessionView, error) {
	var out *SessionView
	err := o.run(ctx, "start_market_day", key, func(tx *gorm.DB) error {
		if _, err := o.reference.Market(ctx, tx, key.MarketID); err != nil {
			return err
		}
		repo := o.sessions.WithTx(tx)
		existing, err := repo.Find(ctx, key.MarketID, key.day())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market day session")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeSessionAlreadyStarted, "market day already started").WithDetails(map[string]any{
				"phase": existing.Phase,
			})
		}

		session := &models.MarketDaySession{
			MarketID:   key.MarketID,
			MarketDate: key.day(),
			Phase:      enums.SessionConcessionPhase,
			Queue:      []byte("[]"),
			StartedAt:  o.now().UTC(),
		}
		if err := repo.Create(ctx, session); err != nil {
			if db.IsUniqueViolation(err, "ux_market_day_sessions_key") {
				return pkgerrors.Wrap(pkgerrors.CodeSessionAlreadyStarted, err, "market day already started")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create market day session")
		}
		if err := o.emitDay(ctx, tx, enums.EventMarketDayStarted, session, payloads.MarketDayEvent{
			SessionID:  session.ID,
			MarketID:   session.MarketID,
			MarketDate: key.day().Format(db.DateLayout),
			Phase:      session.Phase,
		}); err != nil {
			return err
		}
		out, err = view(session)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckInResult reports what a concessionaire check-in wrote.
type CheckInResult struct {
	Stall      models.Stall
	Attendance models.AttendanceRecord
	// Settled is set when a due installment was paid from the fee wallet.
	Settled *fees.PaymentResult
	// Waiver is the zero debit written when no installment was settled.
	Waiver *models.LedgerTransaction
}

// CheckInConcessionaire occupies the vendor's own stall and records the
// stall use on the fee wallet in the same transaction.
func (o *Orchestrator) CheckInConcessionaire(ctx context.Context, key SessionKey, stallNumber string, vendorID uuid.UUID) (*CheckInResult, error) {
	stallNumber = strings.TrimSpace(stallNumber)
	if stallNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stall number required")
	}
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	var out *CheckInResult
	err := o.run(ctx, "check_in_concessionaire", key, func(tx *gorm.DB) error {
		session, err := o.loadSession(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := requirePhase(session, enums.SessionConcessionPhase); err != nil {
			return err
		}
		if _, err := o.reference.Vendor(ctx, tx, vendorID); err != nil {
			return err
		}
		stallKey := stalls.Key{MarketID: key.MarketID, Number: stallNumber}
		stall, err := o.stalls.Get(ctx, tx, stallKey)
		if err != nil {
			return err
		}
		if stall.Kind != enums.StallKindFixedConcession {
			return pkgerrors.New(pkgerrors.CodeStallConflict, "stall is not a concession stall")
		}
		holds, err := o.reference.HoldsConcession(ctx, tx, key.MarketID, stallNumber, vendorID, key.day())
		if err != nil {
			return err
		}
		if !holds {
			return pkgerrors.New(pkgerrors.CodeStallConflict, "vendor holds no active concession on this stall")
		}
		if err := o.ensureUnassigned(ctx, tx, key.MarketID, vendorID); err != nil {
			return err
		}

		repo := o.attendance.Repository().WithTx(tx)
		existing, err := repo.FindForDay(ctx, key.MarketID, vendorID, key.day())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "vendor already registered today")
		}
		record := models.AttendanceRecord{
			MarketID:    key.MarketID,
			VendorID:    vendorID,
			MarketDate:  key.day(),
			ArrivedAt:   o.now().UTC(),
			StallNumber: &stallNumber,
			Outcome:     enums.AttendanceConcession,
		}
		if err := repo.Create(ctx, &record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record attendance")
		}
		occupied, err := o.stalls.Occupy(ctx, tx, stallKey, vendorID, record.ID)
		if err != nil {
			return err
		}

		wallet, err := o.wallets.EnsureWallet(ctx, tx, vendorID, key.MarketID, enums.WalletTypeConcessionFee)
		if err != nil {
			return err
		}
		result := &CheckInResult{Stall: *occupied, Attendance: record}
		settled, err := o.fees.SettleDueInstallment(ctx, tx, wallet.ID, key.day())
		if err != nil {
			return err
		}
		if settled != nil {
			result.Settled = settled
		} else {
			applied, err := o.wallets.ApplyTransaction(ctx, tx, wallets.ApplyInput{
				WalletID:      wallet.ID,
				AmountCents:   0,
				Kind:          enums.TransactionKindDebitStallUse,
				ReferenceType: wallets.ReferenceAttendance,
				ReferenceID:   &record.ID,
				Note:          "covered by concession",
			})
			if err != nil {
				return err
			}
			result.Waiver = &applied.Transaction
		}
		out = result
		return nil
	}, walletOwner{vendorID: vendorID, walletType: enums.WalletTypeConcessionFee})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) ensureUnassigned(ctx context.Context, tx *gorm.DB, marketID, vendorID uuid.UUID) error {
	held, err := o.stalls.OccupiedBy(ctx, tx, marketID, vendorID)
	if err != nil {
		return err
	}
	if held != nil {
		return pkgerrors.New(pkgerrors.CodeVendorAlreadyAssigned, "vendor already occupies a stall today").WithDetails(map[string]any{
			"stall_number": held.Number,
		})
	}
	return nil
}

// RegisterPresence records an itinerant vendor as present for the spunta.
func (o *Orchestrator) RegisterPresence(ctx context.Context, key SessionKey, vendorID uuid.UUID) (*models.AttendanceRecord, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	var out *models.AttendanceRecord
	err := o.run(ctx, "register_presence", key, func(tx *gorm.DB) error {
		session, err := o.loadSession(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := requirePhase(session, enums.SessionConcessionPhase); err != nil {
			return err
		}
		if _, err := o.reference.Vendor(ctx, tx, vendorID); err != nil {
			return err
		}
		repo := o.attendance.Repository().WithTx(tx)
		existing, err := repo.FindForDay(ctx, key.MarketID, vendorID, key.day())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "vendor already registered today")
		}
		record := models.AttendanceRecord{
			MarketID:   key.MarketID,
			VendorID:   vendorID,
			MarketDate: key.day(),
			ArrivedAt:  o.now().UTC(),
			Outcome:    enums.AttendancePresent,
		}
		if err := repo.Create(ctx, &record); err != nil {
			if db.IsUniqueViolation(err, "ux_attendance_market_vendor_date") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "vendor already registered today")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record attendance")
		}
		out = &record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
