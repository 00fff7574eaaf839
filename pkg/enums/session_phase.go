package enums

import "fmt"

// SessionPhase is the phase of a market-day session.
type SessionPhase string

const (
	SessionNotStarted      SessionPhase = "not_started"
	SessionConcessionPhase SessionPhase = "concession_phase"
	SessionSpuntaPhase     SessionPhase = "spunta_phase"
	SessionClosed          SessionPhase = "closed"
)

var validSessionPhases = []SessionPhase{
	SessionNotStarted,
	SessionConcessionPhase,
	SessionSpuntaPhase,
	SessionClosed,
}

// String implements fmt.Stringer.
func (s SessionPhase) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionPhase.
func (s SessionPhase) IsValid() bool {
	for _, candidate := range validSessionPhases {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionPhase converts raw input into a SessionPhase.
func ParseSessionPhase(value string) (SessionPhase, error) {
	for _, candidate := range validSessionPhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session phase %q", value)
}
