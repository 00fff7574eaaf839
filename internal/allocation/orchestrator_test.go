package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/attendance"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/fees"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/markets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/queue"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/stalls"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/internal/wallets"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/dbtest"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/locks"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/metrics"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
)

var marketDay = time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

type env struct {
	conn    *gorm.DB
	orch    *Orchestrator
	wallets *wallets.Service
	fees    *fees.Service
	market  models.Market
	key     SessionKey
}

func newEnv(t *testing.T, requireCredit bool) env {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromGorm(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	keyed := locks.NewKeyed()
	m := metrics.NewAllocationMetrics(prometheus.NewRegistry())

	machine, err := stalls.NewMachine(stalls.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	att, err := attendance.NewService(attendance.NewRepository(conn), client, emitter, nil)
	require.NoError(t, err)
	ranker, err := queue.NewService(att, queue.NewVendorRepository(conn), client, nil)
	require.NoError(t, err)
	ledger, err := wallets.NewService(wallets.NewRepository(conn), client, emitter, keyed, m, nil)
	require.NoError(t, err)
	reference := markets.NewReader(markets.NewRepository(conn))
	feeSvc, err := fees.NewService(fees.NewRepository(conn), ledger, reference, machine, client, emitter, fees.Policy{
		MoraEnabled: true,
		FixedRate:   decimal.RequireFromString("0.05"),
		DailyRate:   decimal.RequireFromString("0.000137"),
	}, time.UTC, nil)
	require.NoError(t, err)

	orch, err := NewOrchestrator(Deps{
		Sessions:               NewSessionRepository(conn),
		Stalls:                 machine,
		Attendance:             att,
		Queue:                  ranker,
		Wallets:                ledger,
		Fees:                   feeSvc,
		Reference:              reference,
		Tx:                     client,
		Outbox:                 emitter,
		Locks:                  keyed,
		Metrics:                m,
		RequireItinerantCredit: requireCredit,
	})
	require.NoError(t, err)
	orch.now = func() time.Time { return marketDay.Add(7 * time.Hour) }

	market := models.Market{Name: "Piazza Grande", CostPerSqm: decimal.RequireFromString("0.45"), AnnualMarketDays: 52}
	require.NoError(t, conn.Create(&market).Error)
	return env{
		conn:    conn,
		orch:    orch,
		wallets: ledger,
		fees:    feeSvc,
		market:  market,
		key:     SessionKey{MarketID: market.ID, Date: marketDay},
	}
}

func (e env) stall(t *testing.T, number string, kind enums.StallKind, area string) {
	t.Helper()
	require.NoError(t, e.conn.Create(&models.Stall{
		MarketID: e.market.ID,
		Number:   number,
		Kind:     kind,
		Status:   enums.StallStatusFree,
		AreaSqm:  decimal.RequireFromString(area),
	}).Error)
}

func (e env) vendor(t *testing.T) uuid.UUID {
	t.Helper()
	v := models.Vendor{BusinessName: "Ambulante", FiscalCode: uuid.NewString(), Active: true}
	require.NoError(t, e.conn.Create(&v).Error)
	return v.ID
}

// history gives vendorID n prior attendances ending the week before marketDay.
func (e env) history(t *testing.T, vendorID uuid.UUID, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, e.conn.Create(&models.AttendanceRecord{
			MarketID:   e.market.ID,
			VendorID:   vendorID,
			MarketDate: marketDay.AddDate(0, 0, -7*i),
			ArrivedAt:  marketDay.AddDate(0, 0, -7*i),
			Outcome:    enums.AttendanceAssigned,
		}).Error)
	}
}

func (e env) credit(t *testing.T, vendorID uuid.UUID, cents int64) *models.Wallet {
	t.Helper()
	wallet, err := e.wallets.EnsureWallet(context.Background(), e.conn, vendorID, e.market.ID, enums.WalletTypeItinerantCredit)
	require.NoError(t, err)
	if cents > 0 {
		_, err = e.wallets.Deposit(context.Background(), wallets.DepositInput{WalletID: wallet.ID, AmountCents: cents})
		require.NoError(t, err)
	}
	return wallet
}

func (e env) stallStatus(t *testing.T, number string) models.Stall {
	t.Helper()
	var stall models.Stall
	require.NoError(t, e.conn.First(&stall, "market_id = ? AND number = ?", e.market.ID, number).Error)
	return stall
}

func (e env) outcome(t *testing.T, vendorID uuid.UUID) models.AttendanceRecord {
	t.Helper()
	var record models.AttendanceRecord
	require.NoError(t, e.conn.First(&record, "market_id = ? AND vendor_id = ? AND market_date = ?", e.market.ID, vendorID, marketDay).Error)
	return record
}

func TestSpuntaWithOneStallForcesRenounceOnTheRest(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "32")

	first, second, third := e.vendor(t), e.vendor(t), e.vendor(t)
	e.history(t, first, 12)
	e.history(t, second, 8)
	e.history(t, third, 3)
	wallet := e.credit(t, first, 5000)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	for _, v := range []uuid.UUID{third, first, second} {
		_, err := e.orch.RegisterPresence(ctx, e.key, v)
		require.NoError(t, err)
	}
	started, err := e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)
	require.Len(t, started.Queue, 3)
	assert.Equal(t, first, started.Queue[0].VendorID)

	offer, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	require.Equal(t, OfferOutcomeOffered, offer.Outcome)
	assert.Equal(t, first, offer.Entry.VendorID)
	assert.Equal(t, "S1", *offer.Entry.StallNumber)
	assert.Equal(t, enums.StallStatusReserved, e.stallStatus(t, "S1").Status)

	confirmed, err := e.orch.ConfirmOffer(ctx, e.key, first)
	require.NoError(t, err)
	assert.Equal(t, enums.QueueEntryAssigned, confirmed.Entry.Status)
	// 0.45 × 32 = 14.40
	assert.Equal(t, int64(-1440), confirmed.Charge.Transaction.AmountCents)
	assert.Equal(t, int64(3560), confirmed.Charge.BalanceCents)

	for _, want := range []uuid.UUID{second, third} {
		res, err := e.orch.OfferNext(ctx, e.key)
		require.NoError(t, err)
		require.Equal(t, OfferOutcomeNoEligibleStall, res.Outcome)
		assert.Equal(t, want, res.Entry.VendorID)
		assert.Equal(t, enums.QueueEntryForcedRenounce, res.Entry.Status)
		assert.Equal(t, enums.AttendanceForcedRenounce, e.outcome(t, want).Outcome)
	}
	done, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, OfferOutcomeQueueExhausted, done.Outcome)

	stall := e.stallStatus(t, "S1")
	assert.Equal(t, enums.StallStatusOccupied, stall.Status)
	require.NotNil(t, stall.VendorID)
	assert.Equal(t, first, *stall.VendorID)
	assigned := e.outcome(t, first)
	assert.Equal(t, enums.AttendanceAssigned, assigned.Outcome)
	require.NotNil(t, assigned.StallNumber)
	assert.Equal(t, "S1", *assigned.StallNumber)

	rec, err := e.wallets.Reconcile(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3560), rec.LedgerCents)

	view, err := e.orch.Session(ctx, e.key)
	require.NoError(t, err)
	statuses := []enums.QueueEntryStatus{view.Queue[0].Status, view.Queue[1].Status, view.Queue[2].Status}
	assert.Equal(t, []enums.QueueEntryStatus{enums.QueueEntryAssigned, enums.QueueEntryForcedRenounce, enums.QueueEntryForcedRenounce}, statuses)
}

func TestConfirmOfferRollsBackOnInsufficientCredit(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "10")
	vendor := e.vendor(t)
	wallet := e.credit(t, vendor, 100)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.RegisterPresence(ctx, e.key, vendor)
	require.NoError(t, err)
	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)

	_, err = e.orch.ConfirmOffer(ctx, e.key, vendor)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredit), "got %v", err)

	stall := e.stallStatus(t, "S1")
	assert.Equal(t, enums.StallStatusReserved, stall.Status, "occupy must roll back with the debit")
	assert.Equal(t, enums.AttendancePresent, e.outcome(t, vendor).Outcome)
	view, err := e.orch.Session(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, enums.QueueEntryOffered, view.Queue[0].Status)
	balance, err := e.orch.WalletBalance(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.BalanceCents)

	_, err = e.wallets.Deposit(ctx, wallets.DepositInput{WalletID: wallet.ID, AmountCents: 400})
	require.NoError(t, err)
	_, err = e.orch.ConfirmOffer(ctx, e.key, vendor)
	require.NoError(t, err)
}

func TestConfirmWithoutCreditPolicyAllowsNegativeBalance(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "10")
	vendor := e.vendor(t)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.RegisterPresence(ctx, e.key, vendor)
	require.NoError(t, err)
	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	res, err := e.orch.ConfirmOffer(ctx, e.key, vendor)
	require.NoError(t, err)
	assert.Equal(t, int64(-450), res.Charge.BalanceCents)
}

func TestDeclineReturnsStallWithoutReoffering(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "10")
	e.stall(t, "S2", enums.StallKindItinerant, "10")
	a, b := e.vendor(t), e.vendor(t)
	e.history(t, a, 2)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	for _, v := range []uuid.UUID{a, b} {
		_, err := e.orch.RegisterPresence(ctx, e.key, v)
		require.NoError(t, err)
	}
	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)

	offer, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	require.Equal(t, a, offer.Entry.VendorID)

	declined, err := e.orch.DeclineOffer(ctx, e.key, a)
	require.NoError(t, err)
	assert.Equal(t, enums.QueueEntryRenounced, declined.Status)
	assert.Equal(t, enums.StallStatusFree, e.stallStatus(t, "S1").Status)
	assert.Equal(t, enums.AttendanceRenounced, e.outcome(t, a).Outcome)

	next, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, b, next.Entry.VendorID, "declined vendor is not called again")

	_, err = e.orch.DeclineOffer(ctx, e.key, a)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	_, err = e.orch.ConfirmOffer(ctx, e.key, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestCheckInConcessionaireRecordsWaiver(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "A12", enums.StallKindFixedConcession, "20")
	holder := e.vendor(t)
	require.NoError(t, e.conn.Create(&models.Concession{MarketID: e.market.ID, StallNumber: "A12", VendorID: holder, ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}).Error)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	res, err := e.orch.CheckInConcessionaire(ctx, e.key, "A12", holder)
	require.NoError(t, err)
	assert.Nil(t, res.Settled)
	require.NotNil(t, res.Waiver)
	assert.Equal(t, int64(0), res.Waiver.AmountCents)
	assert.Equal(t, enums.TransactionKindDebitStallUse, res.Waiver.Kind)
	require.NotNil(t, res.Waiver.ReferenceID)
	assert.Equal(t, res.Attendance.ID, *res.Waiver.ReferenceID)

	stall := e.stallStatus(t, "A12")
	assert.Equal(t, enums.StallStatusOccupied, stall.Status)
	require.NotNil(t, stall.AttendanceID)
	assert.Equal(t, res.Attendance.ID, *stall.AttendanceID)

	_, err = e.orch.CheckInConcessionaire(ctx, e.key, "A12", holder)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeVendorAlreadyAssigned), "got %v", err)
}

func TestCheckInConcessionaireSettlesDueInstallment(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "A1", enums.StallKindFixedConcession, "20")
	holder := e.vendor(t)
	require.NoError(t, e.conn.Create(&models.Concession{MarketID: e.market.ID, StallNumber: "A1", VendorID: holder, ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}).Error)

	wallet, err := e.wallets.EnsureWallet(ctx, e.conn, holder, e.market.ID, enums.WalletTypeConcessionFee)
	require.NoError(t, err)
	_, err = e.wallets.Deposit(ctx, wallets.DepositInput{WalletID: wallet.ID, AmountCents: 20000})
	require.NoError(t, err)
	schedule := models.FeeSchedule{
		WalletID: wallet.ID, Year: 2026, InstallmentNumber: 1, Kind: enums.FeeScheduleAnnual,
		BaseCents: 15000, DueDate: marketDay, Status: enums.FeeScheduleUnpaid,
	}
	require.NoError(t, e.conn.Create(&schedule).Error)

	_, err = e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	res, err := e.orch.CheckInConcessionaire(ctx, e.key, "A1", holder)
	require.NoError(t, err)
	require.NotNil(t, res.Settled)
	assert.Nil(t, res.Waiver)
	assert.Equal(t, schedule.ID, res.Settled.Schedule.ID)
	assert.Equal(t, int64(5000), res.Settled.BalanceCents)
}

func TestCheckInConcessionaireRejections(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "A1", enums.StallKindFixedConcession, "20")
	e.stall(t, "S1", enums.StallKindItinerant, "20")
	holder, stranger := e.vendor(t), e.vendor(t)
	require.NoError(t, e.conn.Create(&models.Concession{MarketID: e.market.ID, StallNumber: "A1", VendorID: holder, ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}).Error)

	_, err := e.orch.CheckInConcessionaire(ctx, e.key, "A1", holder)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSessionNotFound), "got %v", err)

	_, err = e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)

	cases := []struct {
		name   string
		stall  string
		vendor uuid.UUID
		code   pkgerrors.Code
	}{
		{"unknown stall", "Z9", holder, pkgerrors.CodeStallNotFound},
		{"itinerant stall", "S1", holder, pkgerrors.CodeStallConflict},
		{"not the holder", "A1", stranger, pkgerrors.CodeStallConflict},
		{"unknown vendor", "A1", uuid.New(), pkgerrors.CodeVendorNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.orch.CheckInConcessionaire(ctx, e.key, tc.stall, tc.vendor)
			assert.True(t, pkgerrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	assert.Equal(t, enums.StallStatusFree, e.stallStatus(t, "A1").Status)
}

func TestPhaseGuards(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	vendor := e.vendor(t)

	_, err := e.orch.StartMarketDay(ctx, SessionKey{MarketID: uuid.New(), Date: marketDay})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMarketNotFound), "got %v", err)

	_, err = e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.StartMarketDay(ctx, e.key)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSessionAlreadyStarted), "got %v", err)

	_, err = e.orch.OfferNext(ctx, e.key)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidPhase), "got %v", err)

	_, err = e.orch.RegisterPresence(ctx, e.key, vendor)
	require.NoError(t, err)
	_, err = e.orch.RegisterPresence(ctx, e.key, vendor)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)

	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.RegisterPresence(ctx, e.key, e.vendor(t))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidPhase), "got %v", err)
	_, err = e.orch.StartSpunta(ctx, e.key)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidPhase), "got %v", err)

	_, err = e.orch.CloseMarketDay(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.OfferNext(ctx, e.key)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidPhase), "got %v", err)
}

func TestCloseMarketDayLapsesOffersAndKeepsOccupied(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "10")
	e.stall(t, "S2", enums.StallKindItinerant, "10")
	a, b := e.vendor(t), e.vendor(t)
	e.history(t, a, 5)
	e.credit(t, a, 10000)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	for _, v := range []uuid.UUID{a, b} {
		_, err := e.orch.RegisterPresence(ctx, e.key, v)
		require.NoError(t, err)
	}
	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.ConfirmOffer(ctx, e.key, a)
	require.NoError(t, err)
	_, err = e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	require.Equal(t, enums.StallStatusReserved, e.stallStatus(t, "S2").Status)

	closed, err := e.orch.CloseMarketDay(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionClosed, closed.Session.Phase)
	assert.Equal(t, enums.StallStatusOccupied, e.stallStatus(t, "S1").Status)
	assert.Equal(t, enums.StallStatusFree, e.stallStatus(t, "S2").Status)
	assert.Equal(t, enums.QueueEntryRenounced, closed.Queue[1].Status)
	assert.Equal(t, enums.AttendanceRenounced, e.outcome(t, b).Outcome)

	again, err := e.orch.CloseMarketDay(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, closed.Session.ClosedAt.Unix(), again.Session.ClosedAt.Unix())

	released, err := e.orch.ReleaseStall(ctx, e.key, "S1")
	require.NoError(t, err)
	assert.True(t, released.Changed)
	assert.NotNil(t, e.outcome(t, a).CheckedOutAt, "release after close checks the vendor out")
}

func TestReleaseStallIsIdempotentAndLapsesOffer(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "10")
	vendor := e.vendor(t)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		res, err := e.orch.ReleaseStall(ctx, e.key, "S1")
		require.NoError(t, err)
		assert.False(t, res.Changed)
	}

	_, err = e.orch.RegisterPresence(ctx, e.key, vendor)
	require.NoError(t, err)
	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)

	res, err := e.orch.ReleaseStall(ctx, e.key, "S1")
	require.NoError(t, err)
	assert.Equal(t, enums.StallStatusReserved, res.PreviousStatus)
	view, err := e.orch.Session(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, enums.QueueEntryRenounced, view.Queue[0].Status)
}

func TestConcurrentCheckInsBindOnce(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "A1", enums.StallKindFixedConcession, "20")
	holder := e.vendor(t)
	require.NoError(t, e.conn.Create(&models.Concession{MarketID: e.market.ID, StallNumber: "A1", VendorID: holder, ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}).Error)
	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.orch.CheckInConcessionaire(ctx, e.key, "A1", holder); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	var debits int64
	require.NoError(t, e.conn.Model(&models.LedgerTransaction{}).Where("kind = ?", enums.TransactionKindDebitStallUse).Count(&debits).Error)
	assert.Equal(t, int64(1), debits)
}

func TestReadsAndQueuePreview(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.stall(t, "A10", enums.StallKindItinerant, "10")
	e.stall(t, "A2", enums.StallKindItinerant, "10")
	vendor := e.vendor(t)

	rows, err := e.orch.StallStatus(ctx, e.market.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A2", rows[0].Number)

	_, err = e.orch.StallStatus(ctx, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeMarketNotFound), "got %v", err)

	_, err = e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	_, err = e.orch.RegisterPresence(ctx, e.key, vendor)
	require.NoError(t, err)
	preview, err := e.orch.QueuePreview(ctx, e.market.ID, marketDay)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, vendor, preview[0].VendorID)

	_, err = e.orch.Session(ctx, SessionKey{MarketID: e.market.ID, Date: marketDay.AddDate(0, 0, 1)})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSessionNotFound), "got %v", err)
}

// reofferedStall runs a spunta on one stall where the first vendor declines
// and the stall goes to the second. It returns the vendors in queue order.
func (e env) reofferedStall(t *testing.T) (uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	e.stall(t, "S1", enums.StallKindItinerant, "10")
	a, b, c := e.vendor(t), e.vendor(t), e.vendor(t)
	e.history(t, a, 3)
	e.history(t, b, 2)
	e.credit(t, c, 1000)

	_, err := e.orch.StartMarketDay(ctx, e.key)
	require.NoError(t, err)
	for _, v := range []uuid.UUID{a, b, c} {
		_, err := e.orch.RegisterPresence(ctx, e.key, v)
		require.NoError(t, err)
	}
	_, err = e.orch.StartSpunta(ctx, e.key)
	require.NoError(t, err)

	first, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	require.Equal(t, a, first.Entry.VendorID)
	_, err = e.orch.DeclineOffer(ctx, e.key, a)
	require.NoError(t, err)

	second, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	require.Equal(t, b, second.Entry.VendorID)
	require.Equal(t, "S1", *second.Entry.StallNumber)
	return a, b, c
}

func offeredOn(snapshot queue.Snapshot, stallNumber string) int {
	n := 0
	for _, entry := range snapshot {
		if entry.Status == enums.QueueEntryOffered && entry.StallNumber != nil && *entry.StallNumber == stallNumber {
			n++
		}
	}
	return n
}

func TestCloseMarketDayLapsesReofferedStall(t *testing.T) {
	e := newEnv(t, true)
	_, b, _ := e.reofferedStall(t)

	closed, err := e.orch.CloseMarketDay(context.Background(), e.key)
	require.NoError(t, err)
	assert.Equal(t, enums.StallStatusFree, e.stallStatus(t, "S1").Status)
	assert.Equal(t, enums.QueueEntryRenounced, closed.Queue[1].Status)
	assert.Zero(t, offeredOn(closed.Queue, "S1"))
	assert.Equal(t, enums.AttendanceRenounced, e.outcome(t, b).Outcome)
}

func TestReleaseStallLapsesReofferAndStallGoesToNextVendor(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	_, b, c := e.reofferedStall(t)

	res, err := e.orch.ReleaseStall(ctx, e.key, "S1")
	require.NoError(t, err)
	require.True(t, res.Changed)
	assert.Equal(t, enums.AttendanceRenounced, e.outcome(t, b).Outcome)

	third, err := e.orch.OfferNext(ctx, e.key)
	require.NoError(t, err)
	require.Equal(t, c, third.Entry.VendorID)

	view, err := e.orch.Session(ctx, e.key)
	require.NoError(t, err)
	assert.Equal(t, 1, offeredOn(view.Queue, "S1"))
	assert.Equal(t, enums.QueueEntryRenounced, view.Queue[1].Status)

	_, err = e.orch.ConfirmOffer(ctx, e.key, b)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	_, err = e.orch.ConfirmOffer(ctx, e.key, c)
	require.NoError(t, err)
	assert.Equal(t, enums.StallStatusOccupied, e.stallStatus(t, "S1").Status)
}
