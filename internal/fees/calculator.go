package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/config"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	pkgerrors "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/errors"
)

// MaxInstallments is the hard ceiling on a canone split.
const MaxInstallments = 12

var hundred = decimal.NewFromInt(100)

// Policy is the late-payment policy applied to every schedule.
type Policy struct {
	MoraEnabled     bool
	FixedRate       decimal.Decimal
	DailyRate       decimal.Decimal
	GraceDays       int
	MaxInstallments int
}

// PolicyFromConfig maps the environment policy block.
func PolicyFromConfig(cfg config.PolicyConfig) Policy {
	return Policy{
		MoraEnabled:     cfg.MoraEnabled,
		FixedRate:       cfg.MoraFixedRate,
		DailyRate:       cfg.MoraDailyRate,
		GraceDays:       cfg.MoraGraceDays,
		MaxInstallments: cfg.MaxInstallments,
	}
}

// Installment is one slice of a split fee.
type Installment struct {
	Number      int
	AmountCents int64
	DueDate     time.Time
}

// AnnualFee is costPerSqm × areaSqm × annualMarketDays, in currency units.
func AnnualFee(costPerSqm, areaSqm decimal.Decimal, annualMarketDays int) decimal.Decimal {
	return costPerSqm.Mul(areaSqm).Mul(decimal.NewFromInt(int64(annualMarketDays)))
}

// ToCents converts currency units to cents rounding half-up.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// SplitInstallments divides totalCents into n installments. Leftover cents go
// one each to the first installments. Installment i is due i×12/n months
// after firstDue.
func SplitInstallments(totalCents int64, n int, firstDue time.Time) ([]Installment, error) {
	if n < 1 || n > MaxInstallments {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInstallmentCount, fmt.Sprintf("installments must be between 1 and %d", MaxInstallments))
	}
	if totalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "fee total cannot be negative")
	}
	if firstDue.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "first due date required")
	}
	share := totalCents / int64(n)
	remainder := totalCents % int64(n)
	first := db.Day(firstDue)

	out := make([]Installment, 0, n)
	for i := 0; i < n; i++ {
		amount := share
		if int64(i) < remainder {
			amount++
		}
		out = append(out, Installment{
			Number:      i + 1,
			AmountCents: amount,
			DueDate:     addMonths(first, i*12/n),
		})
	}
	return out, nil
}

// addMonths moves forward whole months, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := target.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}

// DaysLate is max(0, today − due − grace) in whole days.
func DaysLate(policy Policy, due, today time.Time) int {
	late := db.DaysBetween(due, today) - policy.GraceDays
	if late < 0 {
		return 0
	}
	return late
}

// Mora returns the exact surcharge in cents for baseCents:
// base×fixed + base×daily×daysLate, zero unless enabled and late.
func Mora(policy Policy, baseCents int64, due, today time.Time) decimal.Decimal {
	if !policy.MoraEnabled || baseCents <= 0 {
		return decimal.Zero
	}
	days := DaysLate(policy, due, today)
	if days == 0 {
		return decimal.Zero
	}
	base := decimal.NewFromInt(baseCents)
	fixed := base.Mul(policy.FixedRate)
	daily := base.Mul(policy.DailyRate).Mul(decimal.NewFromInt(int64(days)))
	return fixed.Add(daily)
}

// RoundCents freezes an exact cent amount half-up.
func RoundCents(cents decimal.Decimal) int64 {
	return cents.Round(0).IntPart()
}

// MoraExact renders exact cents as a currency-unit decimal string.
func MoraExact(cents decimal.Decimal) string {
	return cents.Shift(-2).String()
}
