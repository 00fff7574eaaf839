package enums

import "fmt"

// OutboxEventType enumerates the domain events queued through the outbox.
type OutboxEventType string

const (
	EventStallReserved         OutboxEventType = "stall_reserved"
	EventStallOccupied         OutboxEventType = "stall_occupied"
	EventStallReleased         OutboxEventType = "stall_released"
	EventLedgerRecorded        OutboxEventType = "ledger_transaction_recorded"
	EventAnnualFeeGenerated    OutboxEventType = "annual_fee_generated"
	EventExtraordinaryCharge   OutboxEventType = "extraordinary_charge_registered"
	EventInstallmentPaid       OutboxEventType = "installment_paid"
	EventInstallmentsInArrears OutboxEventType = "installments_in_arrears"
	EventMarketDayStarted      OutboxEventType = "market_day_started"
	EventSpuntaStarted         OutboxEventType = "spunta_started"
	EventOfferMade             OutboxEventType = "offer_made"
	EventOfferConfirmed        OutboxEventType = "offer_confirmed"
	EventOfferDeclined         OutboxEventType = "offer_declined"
	EventForcedRenounce        OutboxEventType = "forced_renounce"
	EventMarketDayClosed       OutboxEventType = "market_day_closed"
	EventAttendanceCorrected   OutboxEventType = "attendance_corrected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStallReserved,
	EventStallOccupied,
	EventStallReleased,
	EventLedgerRecorded,
	EventAnnualFeeGenerated,
	EventExtraordinaryCharge,
	EventInstallmentPaid,
	EventInstallmentsInArrears,
	EventMarketDayStarted,
	EventSpuntaStarted,
	EventOfferMade,
	EventOfferConfirmed,
	EventOfferDeclined,
	EventForcedRenounce,
	EventMarketDayClosed,
	EventAttendanceCorrected,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateWallet      OutboxAggregateType = "wallet"
	AggregateFeeSchedule OutboxAggregateType = "fee_schedule"
	AggregateMarketDay   OutboxAggregateType = "market_day"
	AggregateAttendance  OutboxAggregateType = "attendance"
	AggregateMarket      OutboxAggregateType = "market"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	AggregateWallet,
	AggregateFeeSchedule,
	AggregateMarketDay,
	AggregateAttendance,
	AggregateMarket,
}

func (a OutboxAggregateType) String() string {
	return string(a)
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validOutboxAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox aggregate type %q", value)
}
