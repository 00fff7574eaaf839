package enums

import "fmt"

// StallStatus tracks the occupancy lifecycle of a stall for the current market day.
type StallStatus string

const (
	StallStatusFree     StallStatus = "free"
	StallStatusReserved StallStatus = "reserved"
	StallStatusOccupied StallStatus = "occupied"
)

var validStallStatuses = []StallStatus{
	StallStatusFree,
	StallStatusReserved,
	StallStatusOccupied,
}

// String implements fmt.Stringer.
func (s StallStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StallStatus.
func (s StallStatus) IsValid() bool {
	for _, candidate := range validStallStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStallStatus converts raw input into a StallStatus.
func ParseStallStatus(value string) (StallStatus, error) {
	for _, candidate := range validStallStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stall status %q", value)
}
