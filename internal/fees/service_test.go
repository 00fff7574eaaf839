package fees

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/markets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/dbtest"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
)

type harness struct {
	conn    *gorm.DB
	fees    *Service
	wallets *wallets.Service
	outbox  *outbox.Repository
	market  models.Market
}

func newHarness(t *testing.T, policy Policy) harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromGorm(conn)
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, nil)

	ledger, err := wallets.NewService(wallets.NewRepository(conn), client, emitter, nil, nil, nil)
	require.NoError(t, err)
	machine, err := stalls.NewMachine(stalls.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), ledger, markets.NewReader(markets.NewRepository(conn)), machine, client, emitter, policy, time.UTC, nil)
	require.NoError(t, err)

	market := models.Market{Name: "Mercato Centrale", CostPerSqm: decimal.RequireFromString("0.50"), AnnualMarketDays: 52}
	require.NoError(t, conn.Create(&market).Error)
	return harness{conn: conn, fees: svc, wallets: ledger, outbox: outboxRepo, market: market}
}

func (h harness) at(day time.Time) {
	h.fees.now = func() time.Time { return day.Add(10 * time.Hour) }
}

func (h harness) concession(t *testing.T, stallNumber string, area string, vendorID uuid.UUID) {
	t.Helper()
	require.NoError(t, h.conn.Create(&models.Stall{
		MarketID: h.market.ID,
		Number:   stallNumber,
		Kind:     enums.StallKindFixedConcession,
		Status:   enums.StallStatusFree,
		AreaSqm:  decimal.RequireFromString(area),
	}).Error)
	require.NoError(t, h.conn.Create(&models.Concession{
		MarketID:    h.market.ID,
		StallNumber: stallNumber,
		VendorID:    vendorID,
		ValidFrom:   d(2020, 1, 1),
	}).Error)
}

func (h harness) feeWallet(t *testing.T) *models.Wallet {
	t.Helper()
	wallet, err := h.wallets.EnsureWallet(context.Background(), h.conn, uuid.New(), h.market.ID, enums.WalletTypeConcessionFee)
	require.NoError(t, err)
	return wallet
}

func (h harness) schedule(t *testing.T, walletID uuid.UUID, number int, base int64, due time.Time) models.FeeSchedule {
	t.Helper()
	row := models.FeeSchedule{
		WalletID:          walletID,
		Year:              due.Year(),
		InstallmentNumber: number,
		Kind:              enums.FeeScheduleAnnual,
		BaseCents:         base,
		DueDate:           due,
		Status:            enums.FeeScheduleUnpaid,
	}
	require.NoError(t, h.conn.Create(&row).Error)
	return row
}

func TestPayInstallmentFreezesMora(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	row := h.schedule(t, wallet.ID, 1, 10000, d(2026, 1, 31))
	h.at(d(2026, 2, 10))

	result, err := h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: row.ID, AmountCents: 10514})
	require.NoError(t, err)
	assert.Equal(t, int64(514), result.MoraCents)
	assert.Equal(t, "5.137", result.MoraExact)
	assert.Equal(t, enums.FeeSchedulePaid, result.Schedule.Status)
	require.Len(t, result.Transactions, 3)

	kinds := []enums.TransactionKind{result.Transactions[0].Kind, result.Transactions[1].Kind, result.Transactions[2].Kind}
	assert.Equal(t, []enums.TransactionKind{enums.TransactionKindDeposit, enums.TransactionKindFeeCharge, enums.TransactionKindMoraCharge}, kinds)
	require.NotNil(t, result.Transactions[2].MoraExact)
	assert.Equal(t, "5.137", *result.Transactions[2].MoraExact)
	assert.Equal(t, int64(-514), result.Transactions[2].AmountCents)

	rec, err := h.wallets.Reconcile(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.StoredCents)

	var stored models.FeeSchedule
	require.NoError(t, h.conn.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, int64(514), stored.MoraCentsPaid)
	assert.NotNil(t, stored.PaidAt)

	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: row.ID, AmountCents: 10514})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInstallmentPaid), "got %v", err)
}

func TestPayInstallmentWithoutMoraWritesNoMoraRow(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	row := h.schedule(t, wallet.ID, 1, 10000, d(2026, 1, 31))
	h.at(d(2026, 1, 31))

	result, err := h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: row.ID, AmountCents: 12000})
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 2)
	assert.Equal(t, int64(2000), result.BalanceCents)
}

func TestPayInstallmentOrdering(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	first := h.schedule(t, wallet.ID, 1, 5000, d(2026, 1, 31))
	second := h.schedule(t, wallet.ID, 2, 5000, d(2026, 7, 31))
	h.at(d(2026, 1, 15))

	_, err := h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: second.ID, AmountCents: 5000})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInstallmentLocked), "got %v", err)

	views, err := h.fees.Schedules(context.Background(), wallet.ID, 2026)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[0].Payable)
	assert.False(t, views[1].Payable)

	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: first.ID, AmountCents: 5000})
	require.NoError(t, err)
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: second.ID, AmountCents: 5000})
	require.NoError(t, err)

	var count int64
	require.NoError(t, h.conn.Model(&models.LedgerTransaction{}).Where("wallet_id = ?", wallet.ID).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestPayInstallmentRejectsShortPayment(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	row := h.schedule(t, wallet.ID, 1, 10000, d(2026, 1, 31))
	h.at(d(2026, 2, 10))

	_, err := h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: row.ID, AmountCents: 10000})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidAmount), "got %v", err)

	var count int64
	require.NoError(t, h.conn.Model(&models.LedgerTransaction{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: uuid.New(), AmountCents: 10})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeScheduleNotFound), "got %v", err)
}

func TestSchedulesComputeMoraAtQueryTime(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	h.schedule(t, wallet.ID, 1, 10000, d(2026, 1, 31))

	h.at(d(2026, 2, 10))
	views, err := h.fees.Schedules(context.Background(), wallet.ID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 10, views[0].DaysLate)
	assert.Equal(t, int64(514), views[0].MoraCents)
	assert.Equal(t, int64(10514), views[0].TotalDueCents)

	h.at(d(2026, 2, 20))
	later, err := h.fees.Schedules(context.Background(), wallet.ID, 0)
	require.NoError(t, err)
	assert.Greater(t, later[0].MoraCents, views[0].MoraCents)
}

func TestGenerateAnnualFee(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	holder, other := uuid.New(), uuid.New()
	h.concession(t, "A1", "10", holder)
	h.concession(t, "A2", "5", holder)
	h.concession(t, "B1", "8", other)

	result, err := h.fees.GenerateAnnualFee(context.Background(), GenerateInput{
		MarketID:     h.market.ID,
		Year:         2026,
		Installments: 4,
		FirstDueDate: d(2026, 3, 31),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Wallets)
	assert.Len(t, result.Schedules, 8)
	// 0.50 × (10+5) × 52 = 390.00 and 0.50 × 8 × 52 = 208.00
	assert.Equal(t, int64(39000+20800), result.TotalCents)

	wallet, err := h.wallets.EnsureWallet(context.Background(), h.conn, holder, h.market.ID, enums.WalletTypeConcessionFee)
	require.NoError(t, err)
	views, err := h.fees.Schedules(context.Background(), wallet.ID, 2026)
	require.NoError(t, err)
	require.Len(t, views, 4)
	assert.Equal(t, int64(9750), views[0].BaseCents)
	assert.Equal(t, d(2026, 6, 30), db.Day(views[1].DueDate))

	_, err = h.fees.GenerateAnnualFee(context.Background(), GenerateInput{
		MarketID:     h.market.ID,
		Year:         2026,
		Installments: 4,
		FirstDueDate: d(2026, 3, 31),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeFeeAlreadyGenerated), "got %v", err)

	events, err := h.outbox.ListByAggregate(enums.AggregateMarket, h.market.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestGenerateAnnualFeeValidation(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	_, err := h.fees.GenerateAnnualFee(context.Background(), GenerateInput{MarketID: h.market.ID, Year: 2026, Installments: 13, FirstDueDate: d(2026, 1, 1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidInstallmentCount), "got %v", err)

	_, err = h.fees.GenerateAnnualFee(context.Background(), GenerateInput{MarketID: uuid.New(), Year: 2026, Installments: 2, FirstDueDate: d(2026, 1, 1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMarketNotFound), "got %v", err)
}

func TestExtraordinaryChargeJoinsOrdering(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	annual := h.schedule(t, wallet.ID, 1, 5000, d(2026, 6, 30))
	h.at(d(2026, 1, 10))

	charge, err := h.fees.RegisterExtraordinaryCharge(context.Background(), ChargeInput{
		WalletID:    wallet.ID,
		AmountCents: 2500,
		DueDate:     d(2026, 2, 28),
		Note:        "waste collection",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, charge.InstallmentNumber)
	assert.Equal(t, enums.FeeScheduleExtraordinary, charge.Kind)

	var count int64
	require.NoError(t, h.conn.Model(&models.LedgerTransaction{}).Count(&count).Error)
	assert.Zero(t, count, "registering a charge must not touch the ledger")

	// the charge falls due first but is numbered after the annual installment
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: charge.ID, AmountCents: 2500})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInstallmentLocked), "got %v", err)
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: annual.ID, AmountCents: 5000})
	require.NoError(t, err)
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: charge.ID, AmountCents: 2500})
	require.NoError(t, err)

	_, err = h.fees.RegisterExtraordinaryCharge(context.Background(), ChargeInput{WalletID: wallet.ID, AmountCents: 0, DueDate: d(2026, 3, 1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidAmount), "got %v", err)
	_, err = h.fees.RegisterExtraordinaryCharge(context.Background(), ChargeInput{WalletID: uuid.New(), AmountCents: 10, DueDate: d(2026, 3, 1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeWalletNotFound), "got %v", err)
}

func TestSettleDueInstallmentFromCredit(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	row := h.schedule(t, wallet.ID, 1, 10000, d(2026, 1, 31))
	_, err := h.wallets.Deposit(context.Background(), wallets.DepositInput{WalletID: wallet.ID, AmountCents: 10000})
	require.NoError(t, err)

	settle := func(today time.Time) *PaymentResult {
		var result *PaymentResult
		require.NoError(t, db.NewFromGorm(h.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
			var err error
			result, err = h.fees.SettleDueInstallment(context.Background(), tx, wallet.ID, today)
			return err
		}))
		return result
	}

	assert.Nil(t, settle(d(2026, 1, 30)), "not due yet")
	assert.Nil(t, settle(d(2026, 2, 10)), "balance does not cover mora")

	result := settle(d(2026, 1, 31))
	require.NotNil(t, result)
	assert.Equal(t, row.ID, result.Schedule.ID)
	assert.Equal(t, int64(0), result.BalanceCents)
	assert.Nil(t, settle(d(2026, 2, 1)), "nothing left to settle")
}

func TestMarkArrears(t *testing.T) {
	policy := scenarioPolicy()
	policy.GraceDays = 5
	h := newHarness(t, policy)
	wallet := h.feeWallet(t)
	overdue := h.schedule(t, wallet.ID, 1, 1000, d(2026, 1, 31))
	h.schedule(t, wallet.ID, 2, 1000, d(2026, 2, 8))

	flipped, err := h.fees.MarkArrears(context.Background(), h.market.ID, d(2026, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	var stored models.FeeSchedule
	require.NoError(t, h.conn.First(&stored, "id = ?", overdue.ID).Error)
	assert.Equal(t, enums.FeeScheduleInArrears, stored.Status)

	again, err := h.fees.MarkArrears(context.Background(), h.market.ID, d(2026, 2, 10))
	require.NoError(t, err)
	assert.Zero(t, again)

	h.at(d(2026, 2, 10))
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: overdue.ID, AmountCents: 2000})
	require.NoError(t, err, "arrears stay payable")
}

func TestPaymentOrderFollowsYearThenInstallmentNumber(t *testing.T) {
	h := newHarness(t, scenarioPolicy())
	wallet := h.feeWallet(t)
	late2025 := h.schedule(t, wallet.ID, 2, 3000, d(2025, 12, 31))
	first2026 := h.schedule(t, wallet.ID, 1, 4000, d(2026, 1, 31))
	second2026 := h.schedule(t, wallet.ID, 2, 4000, d(2026, 1, 15))
	h.at(d(2025, 12, 1))

	for _, locked := range []models.FeeSchedule{first2026, second2026} {
		_, err := h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: locked.ID, AmountCents: 4000})
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInstallmentLocked), "got %v", err)
	}
	_, err := h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: late2025.ID, AmountCents: 3000})
	require.NoError(t, err)

	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: second2026.ID, AmountCents: 4000})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInstallmentLocked), "an earlier due date does not jump the number order")
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: first2026.ID, AmountCents: 4000})
	require.NoError(t, err)
	_, err = h.fees.PayInstallment(context.Background(), PayInput{ScheduleID: second2026.ID, AmountCents: 4000})
	require.NoError(t, err)
}
