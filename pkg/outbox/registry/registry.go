package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/config"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry. Every market event goes to the
// configured topic and is keyed by aggregate id, so per-aggregate ordering
// holds on the partition.
func NewEventRegistry(cfg config.KafkaConfig) (*EventRegistry, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	topic := cfg.Topic
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	stallPayload := func() interface{} { return &payloads.StallTransitionEvent{} }
	for _, eventType := range []enums.OutboxEventType{enums.EventStallReserved, enums.EventStallOccupied, enums.EventStallReleased} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateMarket, Topic: topic, PayloadFactory: stallPayload})
	}

	dayPayload := func() interface{} { return &payloads.MarketDayEvent{} }
	for _, eventType := range []enums.OutboxEventType{enums.EventMarketDayStarted, enums.EventSpuntaStarted, enums.EventMarketDayClosed} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateMarketDay, Topic: topic, PayloadFactory: dayPayload})
	}

	offerPayload := func() interface{} { return &payloads.OfferEvent{} }
	for _, eventType := range []enums.OutboxEventType{enums.EventOfferMade, enums.EventOfferConfirmed, enums.EventOfferDeclined, enums.EventForcedRenounce} {
		reg.register(EventDescriptor{EventType: eventType, AggregateType: enums.AggregateMarketDay, Topic: topic, PayloadFactory: offerPayload})
	}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventLedgerRecorded,
			AggregateType:  enums.AggregateWallet,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.LedgerTransactionRecordedEvent{} },
		},
		{
			EventType:      enums.EventAnnualFeeGenerated,
			AggregateType:  enums.AggregateMarket,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.AnnualFeeGeneratedEvent{} },
		},
		{
			EventType:      enums.EventExtraordinaryCharge,
			AggregateType:  enums.AggregateFeeSchedule,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.ExtraordinaryChargeEvent{} },
		},
		{
			EventType:      enums.EventInstallmentPaid,
			AggregateType:  enums.AggregateFeeSchedule,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.InstallmentPaidEvent{} },
		},
		{
			EventType:      enums.EventInstallmentsInArrears,
			AggregateType:  enums.AggregateFeeSchedule,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.InstallmentInArrearsEvent{} },
		},
		{
			EventType:      enums.EventAttendanceCorrected,
			AggregateType:  enums.AggregateAttendance,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &payloads.AttendanceCorrectedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Descriptor returns the descriptor registered for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
