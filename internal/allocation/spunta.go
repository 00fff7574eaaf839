package allocation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

// OfferOutcome is the typed result of one call-up step. Exhaustion is an
// outcome, never an error.
type OfferOutcome string

const (
	OfferOutcomeOffered         OfferOutcome = "offered"
	OfferOutcomeNoEligibleStall OfferOutcome = "no_eligible_stall"
	OfferOutcomeQueueExhausted  OfferOutcome = "queue_exhausted"
)

// OfferResult reports which entry was called and what happened to it.
type OfferResult struct {
	Outcome OfferOutcome
	Entry   *queue.Entry
}

// ConfirmResult reports a confirmed assignment and its stall charge.
type ConfirmResult struct {
	Entry  queue.Entry
	Stall  models.Stall
	Charge wallets.Applied
}

// StartSpunta freezes today's ranking and opens the call-up phase.
func (o *Orchestrator) StartSpunta(ctx context.Context, key SessionKey) (*SessionView, error) {
	var out *SessionView
	err := o.run(ctx, "start_spunta", key, func(tx *gorm.DB) error {
		session, err := o.loadSession(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := requirePhase(session, enums.SessionConcessionPhase); err != nil {
			return err
		}
		entries, err := o.queue.Build(ctx, tx, key.MarketID, key.day())
		if err != nil {
			return err
		}
		snapshot := queue.Snapshot(entries)
		raw, err := snapshot.Encode()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode queue")
		}
		startedAt := o.now().UTC()
		if err := o.sessions.WithTx(tx).Update(ctx, session.ID, map[string]any{
			"phase":             enums.SessionSpuntaPhase,
			"queue":             raw,
			"spunta_started_at": startedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start spunta")
		}
		session.Phase = enums.SessionSpuntaPhase
		session.Queue = raw
		session.SpuntaStartedAt = &startedAt

		if err := o.emitDay(ctx, tx, enums.EventSpuntaStarted, session, payloads.MarketDayEvent{
			SessionID:  session.ID,
			MarketID:   session.MarketID,
			MarketDate: key.day().Format(db.DateLayout),
			Phase:      session.Phase,
			QueueSize:  len(snapshot),
		}); err != nil {
			return err
		}
		out = &SessionView{Session: *session, Queue: snapshot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OfferNext calls the next waiting vendor: it reserves the lowest-numbered
// free itinerant stall, or records a forced renounce when none is left.
func (o *Orchestrator) OfferNext(ctx context.Context, key SessionKey) (*OfferResult, error) {
	var out *OfferResult
	err := o.run(ctx, "offer_next", key, func(tx *gorm.DB) error {
		session, snapshot, err := o.spuntaSession(ctx, tx, key)
		if err != nil {
			return err
		}
		idx := snapshot.NextWaiting()
		if idx < 0 {
			out = &OfferResult{Outcome: OfferOutcomeQueueExhausted}
			return nil
		}
		entry := &snapshot[idx]

		stall, err := o.stalls.FirstFree(ctx, tx, key.MarketID, enums.StallKindItinerant)
		if err != nil {
			return err
		}
		if stall == nil {
			entry.Status = enums.QueueEntryForcedRenounce
			if err := o.setOutcome(ctx, tx, key.MarketID, entry.VendorID, key.day(), enums.AttendanceForcedRenounce, nil); err != nil {
				return err
			}
			if err := o.saveSnapshot(ctx, tx, session, snapshot); err != nil {
				return err
			}
			if err := o.emitOffer(ctx, tx, enums.EventForcedRenounce, session, *entry); err != nil {
				return err
			}
			result := *entry
			out = &OfferResult{Outcome: OfferOutcomeNoEligibleStall, Entry: &result}
			return nil
		}

		if _, err := o.stalls.Reserve(ctx, tx, stalls.Key{MarketID: key.MarketID, Number: stall.Number}, entry.VendorID); err != nil {
			return err
		}
		number := stall.Number
		entry.Status = enums.QueueEntryOffered
		entry.StallNumber = &number
		if err := o.saveSnapshot(ctx, tx, session, snapshot); err != nil {
			return err
		}
		if err := o.emitOffer(ctx, tx, enums.EventOfferMade, session, *entry); err != nil {
			return err
		}
		result := *entry
		out = &OfferResult{Outcome: OfferOutcomeOffered, Entry: &result}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveOffer(string(out.Outcome))
	return out, nil
}

func (o *Orchestrator) spuntaSession(ctx context.Context, tx *gorm.DB, key SessionKey) (*models.MarketDaySession, queue.Snapshot, error) {
	session, err := o.loadSession(ctx, tx, key)
	if err != nil {
		return nil, nil, err
	}
	if err := requirePhase(session, enums.SessionSpuntaPhase); err != nil {
		return nil, nil, err
	}
	snapshot, err := queueOf(session)
	if err != nil {
		return nil, nil, err
	}
	return session, snapshot, nil
}

func pendingOffer(snapshot queue.Snapshot, vendorID uuid.UUID) (int, error) {
	idx := snapshot.Find(vendorID)
	if idx < 0 {
		return -1, pkgerrors.New(pkgerrors.CodeNotFound, "vendor is not in today's queue")
	}
	entry := snapshot[idx]
	if entry.Status != enums.QueueEntryOffered || entry.StallNumber == nil {
		return -1, pkgerrors.New(pkgerrors.CodeStateConflict, "vendor has no pending offer").WithDetails(map[string]any{
			"status": entry.Status,
		})
	}
	return idx, nil
}

// ConfirmOffer turns the vendor's reservation into an occupation and debits
// the stall use from the itinerant credit wallet. If the debit is refused the
// whole command rolls back and the offer stays pending.
func (o *Orchestrator) ConfirmOffer(ctx context.Context, key SessionKey, vendorID uuid.UUID) (*ConfirmResult, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	var out *ConfirmResult
	err := o.run(ctx, "confirm_offer", key, func(tx *gorm.DB) error {
		session, snapshot, err := o.spuntaSession(ctx, tx, key)
		if err != nil {
			return err
		}
		idx, err := pendingOffer(snapshot, vendorID)
		if err != nil {
			return err
		}
		entry := &snapshot[idx]
		if err := o.ensureUnassigned(ctx, tx, key.MarketID, vendorID); err != nil {
			return err
		}

		market, err := o.reference.Market(ctx, tx, key.MarketID)
		if err != nil {
			return err
		}
		record, err := o.attendance.Repository().WithTx(tx).FindForDay(ctx, key.MarketID, vendorID, key.day())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance")
		}
		if record == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "attendance record missing for queued vendor")
		}

		stallKey := stalls.Key{MarketID: key.MarketID, Number: *entry.StallNumber}
		stall, err := o.stalls.Occupy(ctx, tx, stallKey, vendorID, record.ID)
		if err != nil {
			return err
		}
		if err := o.setOutcome(ctx, tx, key.MarketID, vendorID, key.day(), enums.AttendanceAssigned, entry.StallNumber); err != nil {
			return err
		}

		wallet, err := o.wallets.EnsureWallet(ctx, tx, vendorID, key.MarketID, enums.WalletTypeItinerantCredit)
		if err != nil {
			return err
		}
		cost := fees.ToCents(market.CostPerSqm.Mul(stall.AreaSqm))
		charge, err := o.wallets.ApplyTransaction(ctx, tx, wallets.ApplyInput{
			WalletID:           wallet.ID,
			AmountCents:        -cost,
			Kind:               enums.TransactionKindDebitStallUse,
			ReferenceType:      wallets.ReferenceAttendance,
			ReferenceID:        &record.ID,
			Note:               "stall " + stall.Number,
			RequireNonNegative: o.requireCredit,
		})
		if err != nil {
			return err
		}

		entry.Status = enums.QueueEntryAssigned
		if err := o.saveSnapshot(ctx, tx, session, snapshot); err != nil {
			return err
		}
		if err := o.emitOffer(ctx, tx, enums.EventOfferConfirmed, session, *entry); err != nil {
			return err
		}
		out = &ConfirmResult{Entry: *entry, Stall: *stall, Charge: *charge}
		return nil
	}, walletOwner{vendorID: vendorID, walletType: enums.WalletTypeItinerantCredit})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeclineOffer releases the vendor's reserved stall back to the pool. The
// stall is not re-offered automatically.
func (o *Orchestrator) DeclineOffer(ctx context.Context, key SessionKey, vendorID uuid.UUID) (*queue.Entry, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	var out *queue.Entry
	err := o.run(ctx, "decline_offer", key, func(tx *gorm.DB) error {
		session, snapshot, err := o.spuntaSession(ctx, tx, key)
		if err != nil {
			return err
		}
		idx, err := pendingOffer(snapshot, vendorID)
		if err != nil {
			return err
		}
		entry := &snapshot[idx]
		if _, err := o.stalls.Release(ctx, tx, stalls.Key{MarketID: key.MarketID, Number: *entry.StallNumber}); err != nil {
			return err
		}
		if err := o.renounce(ctx, tx, key, session, snapshot, idx); err != nil {
			return err
		}
		result := *entry
		out = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// renounce marks entry idx renounced in both the snapshot and the attendance
// log and emits offer_declined.
func (o *Orchestrator) renounce(ctx context.Context, tx *gorm.DB, key SessionKey, session *models.MarketDaySession, snapshot queue.Snapshot, idx int) error {
	entry := &snapshot[idx]
	entry.Status = enums.QueueEntryRenounced
	if err := o.setOutcome(ctx, tx, key.MarketID, entry.VendorID, key.day(), enums.AttendanceRenounced, nil); err != nil {
		return err
	}
	if err := o.saveSnapshot(ctx, tx, session, snapshot); err != nil {
		return err
	}
	return o.emitOffer(ctx, tx, enums.EventOfferDeclined, session, *entry)
}
