package controllers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/allocation"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/pagination"
)

// MarketDayService is the allocation surface the market routes drive.
type MarketDayService interface {
	StartMarketDay(ctx context.Context, key allocation.SessionKey) (*allocation.SessionView, error)
	CheckInConcessionaire(ctx context.Context, key allocation.SessionKey, stallNumber string, vendorID uuid.UUID) (*allocation.CheckInResult, error)
	RegisterPresence(ctx context.Context, key allocation.SessionKey, vendorID uuid.UUID) (*models.AttendanceRecord, error)
	StartSpunta(ctx context.Context, key allocation.SessionKey) (*allocation.SessionView, error)
	OfferNext(ctx context.Context, key allocation.SessionKey) (*allocation.OfferResult, error)
	ConfirmOffer(ctx context.Context, key allocation.SessionKey, vendorID uuid.UUID) (*allocation.ConfirmResult, error)
	DeclineOffer(ctx context.Context, key allocation.SessionKey, vendorID uuid.UUID) (*queue.Entry, error)
	ReleaseStall(ctx context.Context, key allocation.SessionKey, stallNumber string) (*stalls.ReleaseResult, error)
	CloseMarketDay(ctx context.Context, key allocation.SessionKey) (*allocation.SessionView, error)
	Session(ctx context.Context, key allocation.SessionKey) (*allocation.SessionView, error)
	StallStatus(ctx context.Context, marketID uuid.UUID) ([]models.Stall, error)
	QueuePreview(ctx context.Context, marketID uuid.UUID, date time.Time) ([]queue.Entry, error)
}

// WalletService reads and tops up wallets.
type WalletService interface {
	Balance(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	History(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*wallets.HistoryPage, error)
	Deposit(ctx context.Context, input wallets.DepositInput) (*wallets.Applied, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*wallets.Reconciliation, error)
}

// FeeService generates, lists and settles fee schedules.
type FeeService interface {
	GenerateAnnualFee(ctx context.Context, input fees.GenerateInput) (*fees.GenerateResult, error)
	Schedules(ctx context.Context, walletID uuid.UUID, year int) ([]fees.ScheduleView, error)
	PayInstallment(ctx context.Context, input fees.PayInput) (*fees.PaymentResult, error)
	RegisterExtraordinaryCharge(ctx context.Context, input fees.ChargeInput) (*models.FeeSchedule, error)
}

// AttendanceService applies audited corrections to attendance records.
type AttendanceService interface {
	CorrectAttendance(ctx context.Context, input attendance.CorrectionInput) (*models.AttendanceRecord, error)
}
