package fees

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletLedger interface {
	EnsureWallet(ctx context.Context, tx *gorm.DB, vendorID, marketID uuid.UUID, walletType enums.WalletType) (*models.Wallet, error)
	Get(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (*models.Wallet, error)
	LockWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, func(), error)
	ApplyTransaction(ctx context.Context, tx *gorm.DB, input wallets.ApplyInput) (*wallets.Applied, error)
}

type referenceReader interface {
	Market(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Market, error)
	ConcessionsInYear(ctx context.Context, tx *gorm.DB, marketID uuid.UUID, year int) ([]models.Concession, error)
}

type stallReader interface {
	Get(ctx context.Context, tx *gorm.DB, key stalls.Key) (*models.Stall, error)
}

// GenerateInput requests the canone for every concession of a market.
type GenerateInput struct {
	MarketID     uuid.UUID
	Year         int
	Installments int
	FirstDueDate time.Time
}

// GenerateResult summarises a generation run.
type GenerateResult struct {
	MarketID   uuid.UUID
	Year       int
	Wallets    int
	TotalCents int64
	Schedules  []models.FeeSchedule
}

// ScheduleView is a schedule with its surcharge computed as of today.
type ScheduleView struct {
	models.FeeSchedule
	DaysLate      int
	MoraCents     int64
	MoraExact     string
	TotalDueCents int64
	Payable       bool
}

// PayInput pays one schedule.
type PayInput struct {
	ScheduleID  uuid.UUID
	AmountCents int64
}

// PaymentResult reports the frozen amounts of a settled schedule.
type PaymentResult struct {
	Schedule     models.FeeSchedule
	MoraCents    int64
	MoraExact    string
	Transactions []models.LedgerTransaction
	BalanceCents int64
}

// ChargeInput registers a one-off charge on a wallet.
type ChargeInput struct {
	WalletID    uuid.UUID
	AmountCents int64
	DueDate     time.Time
	Note        string
}

// Service generates and settles fee schedules.
type Service struct {
	repo      Repository
	ledger    walletLedger
	reference referenceReader
	stalls    stallReader
	tx        txRunner
	outbox    outboxPublisher
	policy    Policy
	loc       *time.Location
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the fee schedule service. loc decides which calendar day
// "today" is for mora.
func NewService(repo Repository, ledger walletLedger, reference referenceReader, stallsReader stallReader, tx txRunner, outbox outboxPublisher, policy Policy, loc *time.Location, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fee repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if reference == nil {
		return nil, fmt.Errorf("reference reader required")
	}
	if stallsReader == nil {
		return nil, fmt.Errorf("stall reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if policy.MaxInstallments <= 0 || policy.MaxInstallments > MaxInstallments {
		policy.MaxInstallments = MaxInstallments
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		reference: reference,
		stalls:    stallsReader,
		tx:        tx,
		outbox:    outbox,
		policy:    policy,
		loc:       loc,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Policy returns the active late-payment policy.
func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) today() time.Time {
	return db.Day(s.now().In(s.loc))
}

// GenerateAnnualFee creates the year's installments for every concession of
// the market. Vendors holding several stalls get one wallet and one split of
// the summed fee.
func (s *Service) GenerateAnnualFee(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	if input.MarketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "market id required")
	}
	if input.Year < 2000 || input.Year > 9999 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "year out of range")
	}
	if input.Installments < 1 || input.Installments > s.policy.MaxInstallments {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInstallmentCount, fmt.Sprintf("installments must be between 1 and %d", s.policy.MaxInstallments))
	}
	if input.FirstDueDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first due date required")
	}

	result := &GenerateResult{MarketID: input.MarketID, Year: input.Year}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		market, err := s.reference.Market(ctx, tx, input.MarketID)
		if err != nil {
			return err
		}
		concessions, err := s.reference.ConcessionsInYear(ctx, tx, market.ID, input.Year)
		if err != nil {
			return err
		}

		totals := make(map[uuid.UUID]decimal.Decimal)
		var vendorOrder []uuid.UUID
		for _, c := range concessions {
			stall, err := s.stalls.Get(ctx, tx, stalls.Key{MarketID: market.ID, Number: c.StallNumber})
			if err != nil {
				return err
			}
			fee := AnnualFee(market.CostPerSqm, stall.AreaSqm, market.AnnualMarketDays)
			if _, ok := totals[c.VendorID]; !ok {
				vendorOrder = append(vendorOrder, c.VendorID)
				totals[c.VendorID] = decimal.Zero
			}
			totals[c.VendorID] = totals[c.VendorID].Add(fee)
		}
		sort.Slice(vendorOrder, func(i, j int) bool { return vendorOrder[i].String() < vendorOrder[j].String() })

		repo := s.repo.WithTx(tx)
		for _, vendorID := range vendorOrder {
			wallet, err := s.ledger.EnsureWallet(ctx, tx, vendorID, market.ID, enums.WalletTypeConcessionFee)
			if err != nil {
				return err
			}
			existing, err := repo.CountForWalletYear(ctx, wallet.ID, input.Year)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing schedules")
			}
			if existing > 0 {
				return pkgerrors.New(pkgerrors.CodeFeeAlreadyGenerated, fmt.Sprintf("fee for %d already generated", input.Year)).WithDetails(map[string]any{
					"wallet_id": wallet.ID,
				})
			}
			totalCents := ToCents(totals[vendorID])
			parts, err := SplitInstallments(totalCents, input.Installments, input.FirstDueDate)
			if err != nil {
				return err
			}
			for _, part := range parts {
				schedule := models.FeeSchedule{
					WalletID:          wallet.ID,
					Year:              input.Year,
					InstallmentNumber: part.Number,
					Kind:              enums.FeeScheduleAnnual,
					BaseCents:         part.AmountCents,
					DueDate:           part.DueDate,
					Status:            enums.FeeScheduleUnpaid,
				}
				if err := repo.Create(ctx, &schedule); err != nil {
					if db.IsUniqueViolation(err, "ux_fee_schedules_wallet_year_number") {
						return pkgerrors.Wrap(pkgerrors.CodeFeeAlreadyGenerated, err, "fee already generated")
					}
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create fee schedule")
				}
				result.Schedules = append(result.Schedules, schedule)
			}
			result.Wallets++
			result.TotalCents += totalCents
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAnnualFeeGenerated,
			AggregateType: enums.AggregateMarket,
			AggregateID:   market.ID,
			Data: payloads.AnnualFeeGeneratedEvent{
				MarketID:     market.ID,
				Year:         input.Year,
				Installments: input.Installments,
				Wallets:      result.Wallets,
				TotalCents:   result.TotalCents,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit annual fee event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"market_id":   input.MarketID.String(),
		"year":        input.Year,
		"wallets":     result.Wallets,
		"total_cents": result.TotalCents,
	})
	s.logg.Info(logCtx, "fees.annual_generated")
	return result, nil
}

func (s *Service) view(schedule models.FeeSchedule, today time.Time, payable bool) ScheduleView {
	v := ScheduleView{FeeSchedule: schedule, Payable: payable, TotalDueCents: schedule.BaseCents}
	if schedule.Status == enums.FeeSchedulePaid {
		v.MoraCents = schedule.MoraCentsPaid
		v.TotalDueCents = 0
		return v
	}
	mora := Mora(s.policy, schedule.BaseCents, schedule.DueDate, today)
	v.DaysLate = DaysLate(s.policy, schedule.DueDate, today)
	v.MoraCents = RoundCents(mora)
	v.MoraExact = MoraExact(mora)
	v.TotalDueCents = schedule.BaseCents + v.MoraCents
	return v
}

// Schedules lists the wallet's schedules for year (all years when 0) with
// mora computed as of today. Only the earliest open schedule is payable.
func (s *Service) Schedules(ctx context.Context, walletID uuid.UUID, year int) ([]ScheduleView, error) {
	if _, err := s.ledger.Get(ctx, nil, walletID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByWallet(ctx, walletID, year)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list fee schedules")
	}
	open, err := s.repo.ListOpenByWallet(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open fee schedules")
	}
	var next uuid.UUID
	if len(open) > 0 {
		next = open[0].ID
	}
	today := s.today()
	out := make([]ScheduleView, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.view(row, today, row.ID == next))
	}
	return out, nil
}

func (s *Service) loadSchedule(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.FeeSchedule, error) {
	schedule, err := s.repo.WithTx(tx).Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeScheduleNotFound, "fee schedule not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fee schedule")
	}
	return schedule, nil
}

// PayInstallment settles a schedule with a fresh payment of amountCents. Any
// amount above base plus mora stays on the wallet as credit.
func (s *Service) PayInstallment(ctx context.Context, input PayInput) (*PaymentResult, error) {
	if input.ScheduleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment must be positive")
	}
	schedule, err := s.loadSchedule(ctx, nil, input.ScheduleID)
	if err != nil {
		return nil, err
	}
	_, unlock, err := s.ledger.LockWallet(ctx, schedule.WalletID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *PaymentResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		schedule, err := s.loadSchedule(ctx, tx, input.ScheduleID)
		if err != nil {
			return err
		}
		if err := s.checkPayable(ctx, tx, schedule); err != nil {
			return err
		}
		today := s.today()
		mora := Mora(s.policy, schedule.BaseCents, schedule.DueDate, today)
		moraCents := RoundCents(mora)
		required := schedule.BaseCents + moraCents
		if input.AmountCents < required {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment does not cover installment and mora").WithDetails(map[string]any{
				"required_cents": required,
				"mora_cents":     moraCents,
			})
		}

		deposit, err := s.ledger.ApplyTransaction(ctx, tx, wallets.ApplyInput{
			WalletID:      schedule.WalletID,
			AmountCents:   input.AmountCents,
			Kind:          enums.TransactionKindDeposit,
			ReferenceType: wallets.ReferenceFeeSchedule,
			ReferenceID:   &schedule.ID,
			Note:          "installment payment",
		})
		if err != nil {
			return err
		}
		settled, err := s.settle(ctx, tx, schedule, mora, today, input.AmountCents, false)
		if err != nil {
			return err
		}
		settled.Transactions = append([]models.LedgerTransaction{deposit.Transaction}, settled.Transactions...)
		result = settled
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"schedule_id": result.Schedule.ID.String(),
		"wallet_id":   result.Schedule.WalletID.String(),
		"mora_cents":  result.MoraCents,
	})
	s.logg.Info(logCtx, "fees.installment_paid")
	return result, nil
}

// checkPayable enforces that only the earliest open schedule of the wallet
// can be settled.
func (s *Service) checkPayable(ctx context.Context, tx *gorm.DB, schedule *models.FeeSchedule) error {
	if schedule.Status == enums.FeeSchedulePaid {
		return pkgerrors.New(pkgerrors.CodeInstallmentPaid, "installment already paid")
	}
	open, err := s.repo.WithTx(tx).ListOpenByWallet(ctx, schedule.WalletID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open fee schedules")
	}
	if len(open) > 0 && open[0].ID != schedule.ID {
		return pkgerrors.New(pkgerrors.CodeInstallmentLocked, "an earlier installment is unpaid").WithDetails(map[string]any{
			"blocking_schedule_id": open[0].ID,
		})
	}
	return nil
}

// settle writes fee_charge and mora_charge for schedule and marks it paid.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, schedule *models.FeeSchedule, mora decimal.Decimal, today time.Time, paidCents int64, fromCredit bool) (*PaymentResult, error) {
	moraCents := RoundCents(mora)
	exact := MoraExact(mora)
	result := &PaymentResult{MoraCents: moraCents, MoraExact: exact}

	fee, err := s.ledger.ApplyTransaction(ctx, tx, wallets.ApplyInput{
		WalletID:      schedule.WalletID,
		AmountCents:   -schedule.BaseCents,
		Kind:          enums.TransactionKindFeeCharge,
		ReferenceType: wallets.ReferenceFeeSchedule,
		ReferenceID:   &schedule.ID,
		Note:          fmt.Sprintf("%s installment %d/%d", schedule.Kind, schedule.InstallmentNumber, schedule.Year),
	})
	if err != nil {
		return nil, err
	}
	result.Transactions = append(result.Transactions, fee.Transaction)
	result.BalanceCents = fee.BalanceCents

	if moraCents > 0 {
		charge, err := s.ledger.ApplyTransaction(ctx, tx, wallets.ApplyInput{
			WalletID:      schedule.WalletID,
			AmountCents:   -moraCents,
			Kind:          enums.TransactionKindMoraCharge,
			ReferenceType: wallets.ReferenceFeeSchedule,
			ReferenceID:   &schedule.ID,
			MoraExact:     &exact,
			Note:          fmt.Sprintf("mora %d days", DaysLate(s.policy, schedule.DueDate, today)),
		})
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, charge.Transaction)
		result.BalanceCents = charge.BalanceCents
	}

	paidAt := s.now().UTC()
	ok, err := s.repo.WithTx(tx).MarkPaid(ctx, schedule.ID, paidAt, moraCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark schedule paid")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInstallmentPaid, "installment already paid")
	}
	schedule.Status = enums.FeeSchedulePaid
	schedule.PaidAt = &paidAt
	schedule.MoraCentsPaid = moraCents
	result.Schedule = *schedule

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInstallmentPaid,
		AggregateType: enums.AggregateFeeSchedule,
		AggregateID:   schedule.ID,
		Data: payloads.InstallmentPaidEvent{
			ScheduleID: schedule.ID,
			WalletID:   schedule.WalletID,
			BaseCents:  schedule.BaseCents,
			MoraCents:  moraCents,
			MoraExact:  exact,
			PaidCents:  paidCents,
			FromCredit: fromCredit,
			PaidAt:     paidAt,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit installment paid")
	}
	return result, nil
}

// SettleDueInstallment pays the wallet's earliest open schedule from its
// balance when it is due by today and fully covered. It returns nil when
// nothing was settled. The caller holds the wallet lock and owns tx.
func (s *Service) SettleDueInstallment(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, today time.Time) (*PaymentResult, error) {
	open, err := s.repo.WithTx(tx).ListOpenByWallet(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open fee schedules")
	}
	if len(open) == 0 {
		return nil, nil
	}
	today = db.Day(today)
	schedule := open[0]
	if db.Day(schedule.DueDate).After(today) {
		return nil, nil
	}
	wallet, err := s.ledger.Get(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	mora := Mora(s.policy, schedule.BaseCents, schedule.DueDate, today)
	if wallet.BalanceCents < schedule.BaseCents+RoundCents(mora) {
		return nil, nil
	}
	return s.settle(ctx, tx, &schedule, mora, today, 0, true)
}

// RegisterExtraordinaryCharge schedules a one-off amount owed by the wallet.
// Nothing reaches the ledger until the schedule is paid.
func (s *Service) RegisterExtraordinaryCharge(ctx context.Context, input ChargeInput) (*models.FeeSchedule, error) {
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "charge must be positive")
	}
	if input.DueDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date required")
	}
	_, unlock, err := s.ledger.LockWallet(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	due := db.Day(input.DueDate)
	note := strings.TrimSpace(input.Note)
	var schedule models.FeeSchedule
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		number, err := repo.MaxInstallmentNumber(ctx, input.WalletID, due.Year())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "next installment number")
		}
		schedule = models.FeeSchedule{
			WalletID:          input.WalletID,
			Year:              due.Year(),
			InstallmentNumber: number + 1,
			Kind:              enums.FeeScheduleExtraordinary,
			BaseCents:         input.AmountCents,
			DueDate:           due,
			Status:            enums.FeeScheduleUnpaid,
			Note:              note,
		}
		if err := repo.Create(ctx, &schedule); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create extraordinary charge")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventExtraordinaryCharge,
			AggregateType: enums.AggregateFeeSchedule,
			AggregateID:   schedule.ID,
			Data: payloads.ExtraordinaryChargeEvent{
				ScheduleID:  schedule.ID,
				WalletID:    schedule.WalletID,
				AmountCents: schedule.BaseCents,
				DueDate:     due.Format(db.DateLayout),
				Note:        note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit extraordinary charge")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"schedule_id":  schedule.ID.String(),
		"wallet_id":    schedule.WalletID.String(),
		"amount_cents": schedule.BaseCents,
	})
	s.logg.Info(logCtx, "fees.extraordinary_charge_registered")
	return &schedule, nil
}

// MarkArrears flags the market's unpaid schedules whose grace period ended
// before today. Mora keeps being computed at query time.
func (s *Service) MarkArrears(ctx context.Context, marketID uuid.UUID, today time.Time) (int, error) {
	today = db.Day(today)
	cutoff := today.AddDate(0, 0, -s.policy.GraceDays)
	flipped := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ListOverdue(ctx, marketID, cutoff)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue schedules")
		}
		for _, row := range rows {
			ok, err := repo.SetStatus(ctx, row.ID, enums.FeeScheduleUnpaid, enums.FeeScheduleInArrears)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark schedule in arrears")
			}
			if !ok {
				continue
			}
			flipped++
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventInstallmentsInArrears,
				AggregateType: enums.AggregateFeeSchedule,
				AggregateID:   row.ID,
				Data: payloads.InstallmentInArrearsEvent{
					ScheduleID: row.ID,
					WalletID:   row.WalletID,
					DueDate:    db.Day(row.DueDate).Format(db.DateLayout),
					AsOf:       today.Format(db.DateLayout),
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit arrears event")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if flipped > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"market_id": marketID.String(),
			"count":     flipped,
		})
		s.logg.Info(logCtx, "fees.arrears_marked")
	}
	return flipped, nil
}
