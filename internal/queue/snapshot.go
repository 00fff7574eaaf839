package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
)

// Snapshot is the ranking frozen at spunta start. Statuses move forward as
// offers are made; positions never change.
type Snapshot []Entry

// DecodeSnapshot reads a snapshot persisted on a market day session.
func DecodeSnapshot(raw json.RawMessage) (Snapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Snapshot{}, nil
	}
	var out Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode queue snapshot: %w", err)
	}
	return out, nil
}

// Encode serializes the snapshot for persistence.
func (s Snapshot) Encode() (json.RawMessage, error) {
	if s == nil {
		s = Snapshot{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode queue snapshot: %w", err)
	}
	return raw, nil
}

// NextWaiting returns the index of the first eligible waiting entry, or -1.
func (s Snapshot) NextWaiting() int {
	for i := range s {
		if s[i].Status == enums.QueueEntryWaiting && s[i].Eligible() {
			return i
		}
	}
	return -1
}

// Find returns the index of vendorID's entry, or -1.
func (s Snapshot) Find(vendorID uuid.UUID) int {
	for i := range s {
		if s[i].VendorID == vendorID {
			return i
		}
	}
	return -1
}

// PendingOffer returns the index of the offered entry holding stallNumber, or
// -1. Renounced entries keep the stall they were offered, so a re-offered
// stall can appear on several entries but only one of them is live.
func (s Snapshot) PendingOffer(stallNumber string) int {
	for i := range s {
		if s[i].Status == enums.QueueEntryOffered && s[i].StallNumber != nil && *s[i].StallNumber == stallNumber {
			return i
		}
	}
	return -1
}
