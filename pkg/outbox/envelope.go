package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who triggered the event: a market operator, a payment
// callback or a scheduled job.
type ActorRef struct {
	Operator string `json:"operator,omitempty"`
	Source   string `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
