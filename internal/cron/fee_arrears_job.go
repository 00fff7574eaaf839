package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
)

type marketLister interface {
	MarketIDs(ctx context.Context) ([]uuid.UUID, error)
}

type arrearsMarker interface {
	MarkArrears(ctx context.Context, marketID uuid.UUID, today time.Time) (int, error)
}

// FeeArrearsJobParams configure the arrears sweep.
type FeeArrearsJobParams struct {
	Logger   *logger.Logger
	Markets  marketLister
	Fees     arrearsMarker
	Location *time.Location
}

// NewFeeArrearsJob flags overdue installments of every market as in arrears.
func NewFeeArrearsJob(params FeeArrearsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Markets == nil {
		return nil, fmt.Errorf("market lister required")
	}
	if params.Fees == nil {
		return nil, fmt.Errorf("fee service required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &feeArrearsJob{
		logg:    params.Logger,
		markets: params.Markets,
		fees:    params.Fees,
		loc:     loc,
		now:     time.Now,
	}, nil
}

type feeArrearsJob struct {
	logg    *logger.Logger
	markets marketLister
	fees    arrearsMarker
	loc     *time.Location
	now     func() time.Time
}

func (j *feeArrearsJob) Name() string { return "fee-arrears" }

// Run sweeps each market independently; one failing market does not stop
// the others.
func (j *feeArrearsJob) Run(ctx context.Context) error {
	ids, err := j.markets.MarketIDs(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	today := db.Day(j.now().In(j.loc))

	var (
		errs    error
		flagged int
	)
	for _, id := range ids {
		n, err := j.fees.MarkArrears(ctx, id, today)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("market %s: %w", id, err))
			continue
		}
		flagged += n
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"markets": len(ids),
		"flagged": flagged,
		"today":   today.Format(db.DateLayout),
		"failed":  len(multierr.Errors(errs)),
	}), "cron.fee_arrears_swept")
	return errs
}
