package enums

import "fmt"

// QueueEntryStatus is the call-up state of a vendor inside a spunta snapshot.
type QueueEntryStatus string

const (
	QueueEntryWaiting        QueueEntryStatus = "waiting"
	QueueEntryOffered        QueueEntryStatus = "offered"
	QueueEntryAssigned       QueueEntryStatus = "assigned"
	QueueEntryRenounced      QueueEntryStatus = "renounced"
	QueueEntryForcedRenounce QueueEntryStatus = "forced_renounce"
)

var validQueueEntryStatuses = []QueueEntryStatus{
	QueueEntryWaiting,
	QueueEntryOffered,
	QueueEntryAssigned,
	QueueEntryRenounced,
	QueueEntryForcedRenounce,
}

// String implements fmt.Stringer.
func (q QueueEntryStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QueueEntryStatus.
func (q QueueEntryStatus) IsValid() bool {
	for _, candidate := range validQueueEntryStatuses {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQueueEntryStatus converts raw input into a QueueEntryStatus.
func ParseQueueEntryStatus(value string) (QueueEntryStatus, error) {
	for _, candidate := range validQueueEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue entry status %q", value)
}
