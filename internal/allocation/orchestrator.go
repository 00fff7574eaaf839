// Package allocation runs market days: concessionaire check-in, the spunta
// call-up loop and end-of-day release. Every command for a market runs under
// that market's lock inside one database transaction.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/locks"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/metrics"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stallMachine interface {
	Reserve(ctx context.Context, tx *gorm.DB, key stalls.Key, vendorID uuid.UUID) (*models.Stall, error)
	Occupy(ctx context.Context, tx *gorm.DB, key stalls.Key, vendorID, attendanceID uuid.UUID) (*models.Stall, error)
	Release(ctx context.Context, tx *gorm.DB, key stalls.Key) (*stalls.ReleaseResult, error)
	FirstFree(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, kind enums.StallKind) (*models.Stall, error)
	Get(ctx context.Context, tx *gorm.DB, key stalls.Key) (*models.Stall, error)
	ListByMarket(ctx context.Context, tx *gorm.DB, marketID uuid.UUID) ([]models.Stall, error)
	OccupiedBy(ctx context.Context, tx *gorm.DB, marketID, vendorID uuid.UUID) (*models.Stall, error)
	ListReserved(ctx context.Context, tx *gorm.DB, marketID uuid.UUID) ([]models.Stall, error)
}

type attendanceLog interface {
	Repository() attendance.Repository
}

type ranker interface {
	Build(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, date time.Time) ([]queue.Entry, error)
	Preview(ctx context.Context, marketID uuid.UUID, date time.Time) ([]queue.Entry, error)
}

type walletLedger interface {
	EnsureWallet(ctx context.Context, tx *gorm.DB, vendorID, marketID uuid.UUID, walletType enums.WalletType) (*models.Wallet, error)
	Lock(ctx context.Context, vendorID, marketID uuid.UUID, walletType enums.WalletType) (func(), error)
	ApplyTransaction(ctx context.Context, tx *gorm.DB, input wallets.ApplyInput) (*wallets.Applied, error)
	Balance(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
}

type feeLedger interface {
	SettleDueInstallment(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, today time.Time) (*fees.PaymentResult, error)
	Schedules(ctx context.Context, walletID uuid.UUID, year int) ([]fees.ScheduleView, error)
}

type referenceReader interface {
	Market(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Market, error)
	Vendor(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Vendor, error)
	HoldsConcession(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, stallNumber string, vendorID uuid.UUID, day time.Time) (bool, error)
}

// SessionKey addresses one market day.
type SessionKey struct {
	MarketID uuid.UUID
	Date     time.Time
}

func (k SessionKey) validate() error {
	if k.MarketID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "market id required")
	}
	if k.Date.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "market date required")
	}
	return nil
}

func (k SessionKey) day() time.Time {
	return db.Day(k.Date)
}

func (k SessionKey) lockKey() string {
	return "market:" + k.MarketID.String()
}

// Deps groups the collaborators of the orchestrator.
type Deps struct {
	Sessions   SessionRepository
	Stalls     stallMachine
	Attendance attendanceLog
	Queue      ranker
	Wallets    walletLedger
	Fees       feeLedger
	Reference  referenceReader
	Tx         txRunner
	Outbox     outboxPublisher
	Locks      *locks.Keyed
	Metrics    *metrics.AllocationMetrics
	Logger     *logger.Logger
	// RequireItinerantCredit rejects a confirmation whose stall charge would
	// take the itinerant credit wallet below zero.
	RequireItinerantCredit bool
}

// Orchestrator is the only entry point for market day mutations.
type Orchestrator struct {
	sessions      SessionRepository
	stalls        stallMachine
	attendance    attendanceLog
	queue         ranker
	wallets       walletLedger
	fees          feeLedger
	reference     referenceReader
	tx            txRunner
	outbox        outboxPublisher
	locks         *locks.Keyed
	metrics       *metrics.AllocationMetrics
	logg          *logger.Logger
	requireCredit bool
	now           func() time.Time
}

// NewOrchestrator validates and wires the orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session repository required")
	case deps.Stalls == nil:
		return nil, fmt.Errorf("stall machine required")
	case deps.Attendance == nil:
		return nil, fmt.Errorf("attendance service required")
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue service required")
	case deps.Wallets == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case deps.Fees == nil:
		return nil, fmt.Errorf("fee service required")
	case deps.Reference == nil:
		return nil, fmt.Errorf("reference reader required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	keyed := deps.Locks
	if keyed == nil {
		keyed = locks.NewKeyed()
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Orchestrator{
		sessions:      deps.Sessions,
		stalls:        deps.Stalls,
		attendance:    deps.Attendance,
		queue:         deps.Queue,
		wallets:       deps.Wallets,
		fees:          deps.Fees,
		reference:     deps.Reference,
		tx:            deps.Tx,
		outbox:        deps.Outbox,
		locks:         keyed,
		metrics:       deps.Metrics,
		logg:          logg,
		requireCredit: deps.RequireItinerantCredit,
		now:           time.Now,
	}, nil
}

// walletOwner names a wallet whose lock a command needs.
type walletOwner struct {
	vendorID   uuid.UUID
	walletType enums.WalletType
}

// run executes fn for key in one transaction, holding the market lock and
// then any wallet locks until after commit.
func (o *Orchestrator) run(ctx context.Context, command string, key SessionKey, fn func(tx *gorm.DB) error, owners ...walletOwner) error {
	if err := key.validate(); err != nil {
		o.metrics.ObserveCommand(command, string(pkgerrors.CodeValidation))
		return err
	}
	err := o.locked(ctx, key, owners, func() error {
		return o.tx.WithTx(ctx, fn)
	})
	o.metrics.ObserveCommand(command, resultLabel(err))

	logCtx := o.logg.WithFields(ctx, map[string]any{
		"market_id":   key.MarketID.String(),
		"market_date": key.day().Format(db.DateLayout),
		"command":     command,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable {
			o.logg.Warn(o.logg.WithField(logCtx, "error_code", string(typed.Code())), "allocation.command_rejected")
		} else {
			o.logg.Error(logCtx, "allocation.command_failed", err)
		}
		return err
	}
	o.logg.Info(logCtx, "allocation."+command)
	return nil
}

// locked holds the market lock and then each wallet lock while fn runs.
func (o *Orchestrator) locked(ctx context.Context, key SessionKey, owners []walletOwner, fn func() error) error {
	unlock, err := o.locks.Lock(ctx, key.lockKey())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock market")
	}
	defer unlock()
	for _, owner := range owners {
		release, err := o.wallets.Lock(ctx, owner.vendorID, key.MarketID, owner.walletType)
		if err != nil {
			return err
		}
		defer release()
	}
	return fn()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}

func (o *Orchestrator) loadSession(ctx context.Context, tx *gorm.DB, key SessionKey) (*models.MarketDaySession, error) {
	session, err := o.sessions.WithTx(tx).Find(ctx, key.MarketID, key.day())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load market day session")
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "market day not started")
	}
	return session, nil
}

func requirePhase(session *models.MarketDaySession, allowed ...enums.SessionPhase) error {
	for _, phase := range allowed {
		if session.Phase == phase {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeInvalidPhase, fmt.Sprintf("command not allowed in phase %s", session.Phase)).WithDetails(map[string]any{
		"phase": session.Phase,
	})
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, tx *gorm.DB, session *models.MarketDaySession, snapshot queue.Snapshot) error {
	raw, err := snapshot.Encode()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode queue")
	}
	if err := o.sessions.WithTx(tx).Update(ctx, session.ID, map[string]any{"queue": raw}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save queue")
	}
	session.Queue = raw
	return nil
}

func (o *Orchestrator) emitDay(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, session *models.MarketDaySession, data any) error {
	if err := o.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateMarketDay,
		AggregateID:   session.ID,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit market day event")
	}
	return nil
}

func (o *Orchestrator) emitOffer(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, session *models.MarketDaySession, entry queue.Entry) error {
	payload := payloads.OfferEvent{
		SessionID:  session.ID,
		MarketID:   session.MarketID,
		MarketDate: db.Day(session.MarketDate).Format(db.DateLayout),
		VendorID:   entry.VendorID,
		Position:   entry.Position,
		Status:     entry.Status,
	}
	if entry.StallNumber != nil {
		payload.StallNumber = *entry.StallNumber
	}
	return o.emitDay(ctx, tx, eventType, session, payload)
}

func (o *Orchestrator) setOutcome(ctx context.Context, tx *gorm.DB, marketID, vendorID uuid.UUID, day time.Time, outcome enums.AttendanceOutcome, stallNumber *string) error {
	repo := o.attendance.Repository().WithTx(tx)
	record, err := repo.FindForDay(ctx, marketID, vendorID, day)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance")
	}
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "attendance record missing for queued vendor")
	}
	updates := map[string]any{"outcome": outcome}
	if stallNumber != nil {
		updates["stall_number"] = *stallNumber
	}
	if err := repo.Update(ctx, record.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update attendance")
	}
	return nil
}

// SessionView is a session with its decoded queue.
type SessionView struct {
	Session models.MarketDaySession
	Queue   queue.Snapshot
}

func view(session *models.MarketDaySession) (*SessionView, error) {
	snapshot, err := queueOf(session)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: *session, Queue: snapshot}, nil
}

// Session reads the day's session and snapshot without taking the market lock.
func (o *Orchestrator) Session(ctx context.Context, key SessionKey) (*SessionView, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	var out *SessionView
	err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		session, err := o.loadSession(ctx, tx, key)
		if err != nil {
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

// StallStatus lists every stall of the market in natural order.
func (o *Orchestrator) StallStatus(ctx context.Context, marketID uuid.UUID) ([]models.Stall, error) {
	if marketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "market id required")
	}
	var rows []models.Stall
	err := o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := o.reference.Market(ctx, tx, marketID); err != nil {
			return err
		}
		var err error
		rows, err = o.stalls.ListByMarket(ctx, tx, marketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// QueuePreview ranks the day's present vendors from scratch.
func (o *Orchestrator) QueuePreview(ctx context.Context, marketID uuid.UUID, date time.Time) ([]queue.Entry, error) {
	return o.queue.Preview(ctx, marketID, date)
}

// WalletBalance reads a wallet's cached balance.
func (o *Orchestrator) WalletBalance(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return o.wallets.Balance(ctx, walletID)
}

// FeeSchedule lists a wallet's schedules with mora as of today.
func (o *Orchestrator) FeeSchedule(ctx context.Context, walletID uuid.UUID, year int) ([]fees.ScheduleView, error) {
	return o.fees.Schedules(ctx, walletID, year)
}

func queueOf(session *models.MarketDaySession) (queue.Snapshot, error) {
	snapshot, err := queue.DecodeSnapshot(session.Queue)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode queue")
	}
	return snapshot, nil
}
