package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
)

type fakeMarkets struct {
	ids []uuid.UUID
	err error
}

func (f fakeMarkets) MarketIDs(context.Context) ([]uuid.UUID, error) { return f.ids, f.err }

type fakeArrears struct {
	fail  map[uuid.UUID]error
	seen  []uuid.UUID
	today time.Time
}

func (f *fakeArrears) MarkArrears(_ context.Context, marketID uuid.UUID, today time.Time) (int, error) {
	f.seen = append(f.seen, marketID)
	f.today = today
	if err := f.fail[marketID]; err != nil {
		return 0, err
	}
	return 2, nil
}

func newFeeArrearsJob(t *testing.T, markets marketLister, fees arrearsMarker, loc *time.Location) *feeArrearsJob {
	t.Helper()
	job, err := NewFeeArrearsJob(FeeArrearsJobParams{Logger: logger.Nop(), Markets: markets, Fees: fees, Location: loc})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job.(*feeArrearsJob)
}

func TestFeeArrearsJobSweepsEveryMarket(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	fees := &fakeArrears{fail: map[uuid.UUID]error{b: errors.New("db down")}}
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	job := newFeeArrearsJob(t, fakeMarkets{ids: []uuid.UUID{a, b, c}}, fees, rome)
	// 23:30 UTC on the 9th is already the 10th in Rome.
	job.now = func() time.Time { return time.Date(2026, 6, 9, 23, 30, 0, 0, time.UTC) }

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Fatalf("expected 1 error, got %d", n)
	}
	if len(fees.seen) != 3 {
		t.Fatalf("expected every market swept, got %d", len(fees.seen))
	}
	want := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	if !fees.today.Equal(want) {
		t.Fatalf("expected today %s, got %s", want, fees.today)
	}
}

func TestFeeArrearsJobFailsWhenMarketsUnavailable(t *testing.T) {
	fees := &fakeArrears{}
	job := newFeeArrearsJob(t, fakeMarkets{err: errors.New("boom")}, fees, nil)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(fees.seen) != 0 {
		t.Fatal("no market should be swept")
	}
}

func TestNewFeeArrearsJobValidates(t *testing.T) {
	if _, err := NewFeeArrearsJob(FeeArrearsJobParams{Markets: fakeMarkets{}, Fees: &fakeArrears{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewFeeArrearsJob(FeeArrearsJobParams{Logger: logger.Nop(), Fees: &fakeArrears{}}); err == nil {
		t.Fatal("expected markets error")
	}
	if _, err := NewFeeArrearsJob(FeeArrearsJobParams{Logger: logger.Nop(), Markets: fakeMarkets{}}); err == nil {
		t.Fatal("expected fees error")
	}
}
