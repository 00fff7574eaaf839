package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/config"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db/models"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/enums"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	scheduleID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.InstallmentPaidEvent{
		ScheduleID: scheduleID,
		WalletID:   uuid.New(),
		BaseCents:  25000,
		MoraCents:  1587,
		MoraExact:  "1586.5",
		PaidCents:  26587,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventInstallmentPaid,
		AggregateType: enums.AggregateFeeSchedule,
		AggregateID:   scheduleID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "market-events" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.InstallmentPaidEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ScheduleID != scheduleID || payload.MoraCents != 1587 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing metadata: %+v", resolved.Envelope)
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range validOutboxEventTypesForTest() {
		if _, ok := reg.Descriptor(eventType); !ok {
			t.Errorf("event type %s not registered", eventType)
		}
	}
}

func TestEventRegistryResolveFailuresAreNonRetryable(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateMarket,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventStallReserved,
			AggregateType: enums.AggregateWallet,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{"stall_number":"A1"}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventStallReserved,
			AggregateType: enums.AggregateMarket,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventStallReleased,
			AggregateType: enums.AggregateMarket,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventStallReleased,
			AggregateType: enums.AggregateMarket,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.KafkaConfig{}); err == nil {
		t.Fatal("expected error without topic")
	}
}

func validOutboxEventTypesForTest() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventStallReserved,
		enums.EventStallOccupied,
		enums.EventStallReleased,
		enums.EventLedgerRecorded,
		enums.EventAnnualFeeGenerated,
		enums.EventExtraordinaryCharge,
		enums.EventInstallmentPaid,
		enums.EventInstallmentsInArrears,
		enums.EventMarketDayStarted,
		enums.EventSpuntaStarted,
		enums.EventOfferMade,
		enums.EventOfferConfirmed,
		enums.EventOfferDeclined,
		enums.EventForcedRenounce,
		enums.EventMarketDayClosed,
		enums.EventAttendanceCorrected,
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.KafkaConfig{Topic: "market-events"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
