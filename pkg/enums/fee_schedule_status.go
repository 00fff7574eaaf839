package enums

import "fmt"

// FeeScheduleStatus tracks installment settlement.
type FeeScheduleStatus string

const (
	FeeScheduleUnpaid    FeeScheduleStatus = "unpaid"
	FeeSchedulePaid      FeeScheduleStatus = "paid"
	FeeScheduleInArrears FeeScheduleStatus = "in_arrears"
)

var validFeeScheduleStatuses = []FeeScheduleStatus{
	FeeScheduleUnpaid,
	FeeSchedulePaid,
	FeeScheduleInArrears,
}

// String implements fmt.Stringer.
func (f FeeScheduleStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FeeScheduleStatus.
func (f FeeScheduleStatus) IsValid() bool {
	for _, candidate := range validFeeScheduleStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeeScheduleStatus converts raw input into a FeeScheduleStatus.
func ParseFeeScheduleStatus(value string) (FeeScheduleStatus, error) {
	for _, candidate := range validFeeScheduleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee schedule status %q", value)
}
