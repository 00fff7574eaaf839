package stalls

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

type event string

const (
	eventReserve event = "reserve"
	eventOccupy  event = "occupy"
	eventRelease event = "release"
)

// transition is the complete stall table. Any status outside the enum fails
// loudly instead of being coerced.
func transition(from enums.StallStatus, ev event) (enums.StallStatus, error) {
	switch from {
	case enums.StallStatusFree:
		switch ev {
		case eventReserve:
			return enums.StallStatusReserved, nil
		case eventOccupy:
			return enums.StallStatusOccupied, nil
		case eventRelease:
			return enums.StallStatusFree, nil
		}
	case enums.StallStatusReserved:
		switch ev {
		case eventReserve:
			return "", pkgerrors.New(pkgerrors.CodeStallNotAvailable, "stall already reserved")
		case eventOccupy:
			return enums.StallStatusOccupied, nil
		case eventRelease:
			return enums.StallStatusFree, nil
		}
	case enums.StallStatusOccupied:
		switch ev {
		case eventReserve:
			return "", pkgerrors.New(pkgerrors.CodeStallNotAvailable, "stall already occupied")
		case eventOccupy:
			return "", pkgerrors.New(pkgerrors.CodeStallConflict, "stall already occupied")
		case eventRelease:
			return enums.StallStatusFree, nil
		}
	default:
		return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown stall status %q", from))
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown stall event %q", ev))
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Machine applies stall transitions inside the caller's transaction.
type Machine struct {
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewMachine wires the stall state machine.
func NewMachine(repo Repository, outbox outboxPublisher, logg *logger.Logger) (*Machine, error) {
	if repo == nil {
		return nil, fmt.Errorf("stall repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Machine{repo: repo, outbox: outbox, logg: logg}, nil
}

// ReleaseResult describes what a release found and changed.
type ReleaseResult struct {
	Stall          models.Stall
	PreviousStatus enums.StallStatus
	VendorID       *uuid.UUID
	AttendanceID   *uuid.UUID
	Changed        bool
}

func (m *Machine) load(ctx context.Context, repo Repository, key Key) (*models.Stall, error) {
	stall, err := repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStallNotFound, fmt.Sprintf("stall %s not found", key.Number))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stall")
	}
	return stall, nil
}

// Reserve holds a free stall for vendorID pending confirmation.
func (m *Machine) Reserve(ctx context.Context, tx *gorm.DB, key Key, vendorID uuid.UUID) (*models.Stall, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	repo := m.repo.WithTx(tx)
	stall, err := m.load(ctx, repo, key)
	if err != nil {
		return nil, err
	}
	next, err := transition(stall.Status, eventReserve)
	if err != nil {
		return nil, err
	}
	if err := m.apply(ctx, tx, repo, stall, next, &vendorID, nil); err != nil {
		return nil, err
	}
	return stall, nil
}

// Occupy binds the stall to vendorID for the day. A reserved stall can only be
// occupied by the vendor it is reserved for.
func (m *Machine) Occupy(ctx context.Context, tx *gorm.DB, key Key, vendorID, attendanceID uuid.UUID) (*models.Stall, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	repo := m.repo.WithTx(tx)
	stall, err := m.load(ctx, repo, key)
	if err != nil {
		return nil, err
	}
	next, err := transition(stall.Status, eventOccupy)
	if err != nil {
		return nil, err
	}
	if stall.Status == enums.StallStatusReserved && (stall.VendorID == nil || *stall.VendorID != vendorID) {
		return nil, pkgerrors.New(pkgerrors.CodeStallConflict, "stall reserved for another vendor")
	}
	var attendance *uuid.UUID
	if attendanceID != uuid.Nil {
		attendance = &attendanceID
	}
	if err := m.apply(ctx, tx, repo, stall, next, &vendorID, attendance); err != nil {
		return nil, err
	}
	return stall, nil
}

// Release frees the stall. Releasing a free stall changes nothing and emits
// nothing.
func (m *Machine) Release(ctx context.Context, tx *gorm.DB, key Key) (*ReleaseResult, error) {
	repo := m.repo.WithTx(tx)
	stall, err := m.load(ctx, repo, key)
	if err != nil {
		return nil, err
	}
	next, err := transition(stall.Status, eventRelease)
	if err != nil {
		return nil, err
	}
	result := &ReleaseResult{
		PreviousStatus: stall.Status,
		VendorID:       stall.VendorID,
		AttendanceID:   stall.AttendanceID,
	}
	if stall.Status == enums.StallStatusFree {
		result.Stall = *stall
		return result, nil
	}
	if err := m.apply(ctx, tx, repo, stall, next, nil, nil); err != nil {
		return nil, err
	}
	result.Stall = *stall
	result.Changed = true
	return result, nil
}

func (m *Machine) apply(ctx context.Context, tx *gorm.DB, repo Repository, stall *models.Stall, next enums.StallStatus, vendorID, attendanceID *uuid.UUID) error {
	from := stall.Status
	key := Key{MarketID: stall.MarketID, Number: stall.Number}
	ok, err := repo.CompareAndSet(ctx, key, from, Binding{Status: next, VendorID: vendorID, AttendanceID: attendanceID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stall")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStallConflict, "stall changed concurrently")
	}

	previousVendor := stall.VendorID
	previousAttendance := stall.AttendanceID
	stall.Status = next
	stall.VendorID = vendorID
	stall.AttendanceID = attendanceID

	payload := payloads.StallTransitionEvent{
		MarketID:     stall.MarketID,
		StallNumber:  stall.Number,
		VendorID:     vendorID,
		From:         from,
		To:           next,
		AttendanceID: attendanceID,
	}
	eventType := enums.EventStallReserved
	switch next {
	case enums.StallStatusOccupied:
		eventType = enums.EventStallOccupied
	case enums.StallStatusFree:
		eventType = enums.EventStallReleased
		payload.VendorID = previousVendor
		payload.AttendanceID = previousAttendance
	}
	if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateMarket,
		AggregateID:   stall.MarketID,
		Data:          payload,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit stall event")
	}

	logCtx := m.logg.WithFields(ctx, map[string]any{
		"market_id":    stall.MarketID.String(),
		"stall_number": stall.Number,
		"from":         from,
		"to":           next,
	})
	m.logg.Debug(logCtx, "stall transition applied")
	return nil
}

// FirstFree returns the lowest-numbered free stall of kind, or nil when none
// is left.
func (m *Machine) FirstFree(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, kind enums.StallKind) (*models.Stall, error) {
	rows, err := m.repo.WithTx(tx).ListByStatus(ctx, marketID, enums.StallStatusFree)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list free stalls")
	}
	for i := range rows {
		if rows[i].Kind == kind {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// Get loads a stall by key, mapping a miss to StallNotFound.
func (m *Machine) Get(ctx context.Context, tx *gorm.DB, key Key) (*models.Stall, error) {
	return m.load(ctx, m.repo.WithTx(tx), key)
}

// ListByMarket returns every stall of the market in natural order.
func (m *Machine) ListByMarket(ctx context.Context, tx *gorm.DB, marketID uuid.UUID) ([]models.Stall, error) {
	rows, err := m.repo.WithTx(tx).ListByMarket(ctx, marketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stalls")
	}
	return rows, nil
}

// OccupiedBy returns the stall vendorID occupies in the market, if any.
func (m *Machine) OccupiedBy(ctx context.Context, tx *gorm.DB, marketID, vendorID uuid.UUID) (*models.Stall, error) {
	stall, err := m.repo.WithTx(tx).FindByVendor(ctx, marketID, vendorID, enums.StallStatusOccupied)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find occupied stall")
	}
	return stall, nil
}

// ListReserved returns the market's reserved stalls.
func (m *Machine) ListReserved(ctx context.Context, tx *gorm.DB, marketID uuid.UUID) ([]models.Stall, error) {
	rows, err := m.repo.WithTx(tx).ListByStatus(ctx, marketID, enums.StallStatusReserved)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reserved stalls")
	}
	return rows, nil
}
