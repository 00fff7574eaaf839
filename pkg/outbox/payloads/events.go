package payloads

import (
	"time"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	"github.com/google/uuid"
)

// StallTransitionEvent is emitted for every stall reserve, occupy and release.
type StallTransitionEvent struct {
	MarketID     uuid.UUID         `json:"market_id"`
	StallNumber  string            `json:"stall_number"`
	VendorID     *uuid.UUID        `json:"vendor_id,omitempty"`
	From         enums.StallStatus `json:"from"`
	To           enums.StallStatus `json:"to"`
	AttendanceID *uuid.UUID        `json:"attendance_id,omitempty"`
}

// LedgerTransactionRecordedEvent mirrors one appended ledger row.
type LedgerTransactionRecordedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	WalletID      uuid.UUID             `json:"wallet_id"`
	Kind          enums.TransactionKind `json:"kind"`
	AmountCents   int64                 `json:"amount_cents"`
	BalanceCents  int64                 `json:"balance_cents"`
	ReferenceType string                `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID            `json:"reference_id,omitempty"`
}

// AnnualFeeGeneratedEvent summarises a canone generation run for a market.
type AnnualFeeGeneratedEvent struct {
	MarketID     uuid.UUID `json:"market_id"`
	Year         int       `json:"year"`
	Installments int       `json:"installments"`
	Wallets      int       `json:"wallets"`
	TotalCents   int64     `json:"total_cents"`
}

// ExtraordinaryChargeEvent is emitted when a one-off charge is scheduled.
type ExtraordinaryChargeEvent struct {
	ScheduleID  uuid.UUID `json:"schedule_id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	AmountCents int64     `json:"amount_cents"`
	DueDate     string    `json:"due_date"`
	Note        string    `json:"note,omitempty"`
}

// InstallmentPaidEvent carries the frozen mora of a settled schedule.
type InstallmentPaidEvent struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	WalletID   uuid.UUID `json:"wallet_id"`
	BaseCents  int64     `json:"base_cents"`
	MoraCents  int64     `json:"mora_cents"`
	MoraExact  string    `json:"mora_exact"`
	PaidCents  int64     `json:"paid_cents"`
	FromCredit bool      `json:"from_credit"`
	PaidAt     time.Time `json:"paid_at"`
}

// InstallmentInArrearsEvent flags a schedule that passed its grace period.
type InstallmentInArrearsEvent struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	WalletID   uuid.UUID `json:"wallet_id"`
	DueDate    string    `json:"due_date"`
	AsOf       string    `json:"as_of"`
}

// MarketDayEvent covers session phase changes.
type MarketDayEvent struct {
	SessionID      uuid.UUID          `json:"session_id"`
	MarketID       uuid.UUID          `json:"market_id"`
	MarketDate     string             `json:"market_date"`
	Phase          enums.SessionPhase `json:"phase"`
	QueueSize      int                `json:"queue_size,omitempty"`
	ReleasedStalls []string           `json:"released_stalls,omitempty"`
}

// OfferEvent covers spunta offers and their resolution.
type OfferEvent struct {
	SessionID   uuid.UUID              `json:"session_id"`
	MarketID    uuid.UUID              `json:"market_id"`
	MarketDate  string                 `json:"market_date"`
	VendorID    uuid.UUID              `json:"vendor_id"`
	Position    int                    `json:"position"`
	StallNumber string                 `json:"stall_number,omitempty"`
	Status      enums.QueueEntryStatus `json:"status"`
}

// AttendanceCorrectedEvent records an audited overwrite of an attendance row.
type AttendanceCorrectedEvent struct {
	AttendanceID    uuid.UUID               `json:"attendance_id"`
	MarketID        uuid.UUID               `json:"market_id"`
	VendorID        uuid.UUID               `json:"vendor_id"`
	MarketDate      string                  `json:"market_date"`
	PreviousOutcome enums.AttendanceOutcome `json:"previous_outcome"`
	Outcome         enums.AttendanceOutcome `json:"outcome"`
	Note            string                  `json:"note"`
}
