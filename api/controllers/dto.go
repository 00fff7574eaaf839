package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/allocation"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
)

type stallDTO struct {
	MarketID     uuid.UUID  `json:"market_id"`
	Number       string     `json:"number"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	VendorID     *uuid.UUID `json:"vendor_id,omitempty"`
	AreaSqm      string     `json:"area_sqm"`
	AttendanceID *uuid.UUID `json:"attendance_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toStallDTO(s models.Stall) stallDTO {
	return stallDTO{
		MarketID:     s.MarketID,
		Number:       s.Number,
		Kind:         string(s.Kind),
		Status:       string(s.Status),
		VendorID:     s.VendorID,
		AreaSqm:      s.AreaSqm.StringFixed(2),
		AttendanceID: s.AttendanceID,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toStallDTOs(rows []models.Stall) []stallDTO {
	out := make([]stallDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toStallDTO(row))
	}
	return out
}

type sessionDTO struct {
	ID              uuid.UUID      `json:"id"`
	MarketID        uuid.UUID      `json:"market_id"`
	MarketDate      string         `json:"market_date"`
	Phase           string         `json:"phase"`
	StartedAt       time.Time      `json:"started_at"`
	SpuntaStartedAt *time.Time     `json:"spunta_started_at,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	Queue           queue.Snapshot `json:"queue"`
}

func toSessionDTO(v *allocation.SessionView) sessionDTO {
	queueRows := v.Queue
	if queueRows == nil {
		queueRows = queue.Snapshot{}
	}
	return sessionDTO{
		ID:              v.Session.ID,
		MarketID:        v.Session.MarketID,
		MarketDate:      v.Session.MarketDate.Format(db.DateLayout),
		Phase:           string(v.Session.Phase),
		StartedAt:       v.Session.StartedAt,
		SpuntaStartedAt: v.Session.SpuntaStartedAt,
		ClosedAt:        v.Session.ClosedAt,
		Queue:           queueRows,
	}
}

type attendanceDTO struct {
	ID             uuid.UUID  `json:"id"`
	MarketID       uuid.UUID  `json:"market_id"`
	VendorID       uuid.UUID  `json:"vendor_id"`
	MarketDate     string     `json:"market_date"`
	ArrivedAt      time.Time  `json:"arrived_at"`
	CheckedOutAt   *time.Time `json:"checked_out_at,omitempty"`
	StallNumber    *string    `json:"stall_number,omitempty"`
	Outcome        string     `json:"outcome"`
	CorrectedAt    *time.Time `json:"corrected_at,omitempty"`
	CorrectionNote *string    `json:"correction_note,omitempty"`
}

func toAttendanceDTO(r models.AttendanceRecord) attendanceDTO {
	return attendanceDTO{
		ID:             r.ID,
		MarketID:       r.MarketID,
		VendorID:       r.VendorID,
		MarketDate:     r.MarketDate.Format(db.DateLayout),
		ArrivedAt:      r.ArrivedAt,
		CheckedOutAt:   r.CheckedOutAt,
		StallNumber:    r.StallNumber,
		Outcome:        string(r.Outcome),
		CorrectedAt:    r.CorrectedAt,
		CorrectionNote: r.CorrectionNote,
	}
}

type walletDTO struct {
	ID           uuid.UUID `json:"id"`
	VendorID     uuid.UUID `json:"vendor_id"`
	MarketID     uuid.UUID `json:"market_id"`
	Type         string    `json:"type"`
	BalanceCents int64     `json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toWalletDTO(w models.Wallet) walletDTO {
	return walletDTO{
		ID:           w.ID,
		VendorID:     w.VendorID,
		MarketID:     w.MarketID,
		Type:         string(w.Type),
		BalanceCents: w.BalanceCents,
		UpdatedAt:    w.UpdatedAt,
	}
}

type transactionDTO struct {
	ID            uuid.UUID  `json:"id"`
	WalletID      uuid.UUID  `json:"wallet_id"`
	AmountCents   int64      `json:"amount_cents"`
	Kind          string     `json:"kind"`
	ReferenceType string     `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	MoraExact     *string    `json:"mora_exact,omitempty"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionDTO(t models.LedgerTransaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		WalletID:      t.WalletID,
		AmountCents:   t.AmountCents,
		Kind:          string(t.Kind),
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		MoraExact:     t.MoraExact,
		Note:          t.Note,
		CreatedAt:     t.CreatedAt,
	}
}

func toTransactionDTOs(rows []models.LedgerTransaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransactionDTO(row))
	}
	return out
}

type appliedDTO struct {
	Transaction  transactionDTO `json:"transaction"`
	BalanceCents int64          `json:"balance_cents"`
}

func toAppliedDTO(a wallets.Applied) appliedDTO {
	return appliedDTO{Transaction: toTransactionDTO(a.Transaction), BalanceCents: a.BalanceCents}
}

type scheduleDTO struct {
	ID                uuid.UUID  `json:"id"`
	WalletID          uuid.UUID  `json:"wallet_id"`
	Year              int        `json:"year"`
	InstallmentNumber int        `json:"installment_number"`
	Kind              string     `json:"kind"`
	BaseCents         int64      `json:"base_cents"`
	DueDate           string     `json:"due_date"`
	Status            string     `json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	MoraCentsPaid     int64      `json:"mora_cents_paid"`
	Note              string     `json:"note,omitempty"`
}

func toScheduleDTO(s models.FeeSchedule) scheduleDTO {
	return scheduleDTO{
		ID:                s.ID,
		WalletID:          s.WalletID,
		Year:              s.Year,
		InstallmentNumber: s.InstallmentNumber,
		Kind:              string(s.Kind),
		BaseCents:         s.BaseCents,
		DueDate:           s.DueDate.Format(db.DateLayout),
		Status:            string(s.Status),
		PaidAt:            s.PaidAt,
		MoraCentsPaid:     s.MoraCentsPaid,
		Note:              s.Note,
	}
}

type scheduleViewDTO struct {
	scheduleDTO
	DaysLate      int    `json:"days_late"`
	MoraCents     int64  `json:"mora_cents"`
	MoraExact     string `json:"mora_exact"`
	TotalDueCents int64  `json:"total_due_cents"`
	Payable       bool   `json:"payable"`
}

func toScheduleViewDTOs(rows []fees.ScheduleView) []scheduleViewDTO {
	out := make([]scheduleViewDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, scheduleViewDTO{
			scheduleDTO:   toScheduleDTO(row.FeeSchedule),
			DaysLate:      row.DaysLate,
			MoraCents:     row.MoraCents,
			MoraExact:     row.MoraExact,
			TotalDueCents: row.TotalDueCents,
			Payable:       row.Payable,
		})
	}
	return out
}

type paymentDTO struct {
	Schedule     scheduleDTO      `json:"schedule"`
	MoraCents    int64            `json:"mora_cents"`
	MoraExact    string           `json:"mora_exact"`
	Transactions []transactionDTO `json:"transactions"`
	BalanceCents int64            `json:"balance_cents"`
}

func toPaymentDTO(p *fees.PaymentResult) *paymentDTO {
	if p == nil {
		return nil
	}
	return &paymentDTO{
		Schedule:     toScheduleDTO(p.Schedule),
		MoraCents:    p.MoraCents,
		MoraExact:    p.MoraExact,
		Transactions: toTransactionDTOs(p.Transactions),
		BalanceCents: p.BalanceCents,
	}
}
