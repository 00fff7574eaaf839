package enums

import "fmt"

// StallKind separates concession pitches from pitches open to the daily spunta.
type StallKind string

const (
	StallKindFixedConcession StallKind = "fixed_concession"
	StallKindItinerant       StallKind = "itinerant"
)

var validStallKinds = []StallKind{
	StallKindFixedConcession,
	StallKindItinerant,
}

// String implements fmt.Stringer.
func (s StallKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StallKind.
func (s StallKind) IsValid() bool {
	for _, candidate := range validStallKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStallKind converts raw input into a StallKind.
func ParseStallKind(value string) (StallKind, error) {
	for _, candidate := range validStallKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stall kind %q", value)
}
