package enums

import "fmt"

// FeeScheduleKind separates canone installments from one-off charges.
type FeeScheduleKind string

const (
	FeeScheduleAnnual        FeeScheduleKind = "annual"
	FeeScheduleExtraordinary FeeScheduleKind = "extraordinary"
)

var validFeeScheduleKinds = []FeeScheduleKind{
	FeeScheduleAnnual,
	FeeScheduleExtraordinary,
}

// String implements fmt.Stringer.
func (f FeeScheduleKind) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FeeScheduleKind.
func (f FeeScheduleKind) IsValid() bool {
	for _, candidate := range validFeeScheduleKinds {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeeScheduleKind converts raw input into a FeeScheduleKind.
func ParseFeeScheduleKind(value string) (FeeScheduleKind, error) {
	for _, candidate := range validFeeScheduleKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee schedule kind %q", value)
}
