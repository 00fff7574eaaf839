package allocation

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

// ReleaseStall frees a stall on behalf of an external expiry or checkout
// policy. An open attendance gets its checkout time; a pending offer on the
// stall lapses as renounced. Releasing a free stall changes nothing.
func (o *Orchestrator) ReleaseStall(ctx context.Context, key SessionKey, stallNumber string) (*stalls.ReleaseResult, error) {
	stallNumber = strings.TrimSpace(stallNumber)
	if stallNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stall number required")
	}
	var out *stalls.ReleaseResult
	err := o.run(ctx, "release_stall", key, func(tx *gorm.DB) error {
		session, err := o.loadSession(ctx, tx, key)
		if err != nil {
			return err
		}
		result, err := o.stalls.Release(ctx, tx, stalls.Key{MarketID: key.MarketID, Number: stallNumber})
		if err != nil {
			return err
		}
		out = result
		if !result.Changed {
			return nil
		}

		if result.AttendanceID != nil {
			if err := o.attendance.Repository().WithTx(tx).Update(ctx, *result.AttendanceID, map[string]any{
				"checked_out_at": o.now().UTC(),
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check out attendance")
			}
		}
		if result.PreviousStatus != enums.StallStatusReserved {
			return nil
		}
		snapshot, err := queueOf(session)
		if err != nil {
			return err
		}
		if idx := snapshot.PendingOffer(stallNumber); idx >= 0 {
			return o.renounce(ctx, tx, key, session, snapshot, idx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CloseMarketDay lapses every pending offer, releasing reserved stalls, and
// closes the session. Occupied stalls are left for checkout. Closing twice is
// a no-op.
func (o *Orchestrator) CloseMarketDay(ctx context.Context, key SessionKey) (*SessionView, error) {
	var out *SessionView
	err := o.run(ctx, "close_market_day", key, func(tx *gorm.DB) error {
		session, err := o.loadSession(ctx, tx, key)
		if err != nil {
			return err
		}
		if session.Phase == enums.SessionClosed {
			out, err = view(session)
			return err
		}
		if err := requirePhase(session, enums.SessionConcessionPhase, enums.SessionSpuntaPhase); err != nil {
			return err
		}

		snapshot, err := queueOf(session)
		if err != nil {
			return err
		}
		reserved, err := o.stalls.ListReserved(ctx, tx, key.MarketID)
		if err != nil {
			return err
		}
		released := make([]string, 0, len(reserved))
		for _, stall := range reserved {
			if _, err := o.stalls.Release(ctx, tx, stalls.Key{MarketID: key.MarketID, Number: stall.Number}); err != nil {
				return err
			}
			released = append(released, stall.Number)
			if idx := snapshot.PendingOffer(stall.Number); idx >= 0 {
				if err := o.renounce(ctx, tx, key, session, snapshot, idx); err != nil {
					return err
				}
			}
		}

		closedAt := o.now().UTC()
		if err := o.sessions.WithTx(tx).Update(ctx, session.ID, map[string]any{
			"phase":     enums.SessionClosed,
			"closed_at": closedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close market day")
		}
		session.Phase = enums.SessionClosed
		session.ClosedAt = &closedAt

		if err := o.emitDay(ctx, tx, enums.EventMarketDayClosed, session, payloads.MarketDayEvent{
			SessionID:      session.ID,
			MarketID:       session.MarketID,
			MarketDate:     key.day().Format(db.DateLayout),
			Phase:          session.Phase,
			QueueSize:      len(snapshot),
			ReleasedStalls: released,
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
