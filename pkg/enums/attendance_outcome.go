package enums

import "fmt"

// AttendanceOutcome records how a vendor's presence on a market day ended.
type AttendanceOutcome string

const (
	AttendancePresent        AttendanceOutcome = "present"
	AttendanceAssigned       AttendanceOutcome = "assigned"
	AttendanceRenounced      AttendanceOutcome = "renounced"
	AttendanceForcedRenounce AttendanceOutcome = "forced_renounce"
	AttendanceConcession     AttendanceOutcome = "concession"
)

var validAttendanceOutcomes = []AttendanceOutcome{
	AttendancePresent,
	AttendanceAssigned,
	AttendanceRenounced,
	AttendanceForcedRenounce,
	AttendanceConcession,
}

// String implements fmt.Stringer.
func (a AttendanceOutcome) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AttendanceOutcome.
func (a AttendanceOutcome) IsValid() bool {
	for _, candidate := range validAttendanceOutcomes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAttendanceOutcome converts raw input into a AttendanceOutcome.
func ParseAttendanceOutcome(value string) (AttendanceOutcome, error) {
	for _, candidate := range validAttendanceOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attendance outcome %q", value)
}
