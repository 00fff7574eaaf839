package metrics

import "github.com/prometheus/client_golang/prometheus"

// AllocationMetrics counts market-day commands, offer outcomes and ledger
// movements. A nil receiver is a no-op so services can run without a registry.
type AllocationMetrics struct {
	commands *prometheus.CounterVec
	offers   *prometheus.CounterVec
	ledger   *prometheus.CounterVec
	amounts  *prometheus.CounterVec
	outbox   *prometheus.CounterVec
}

// NewAllocationMetrics registers the allocation metrics on reg.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "commands_total",
		Help:      "Market-day commands by name and result code.",
	}, []string{"command", "result"})
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "allocation",
		Name:      "offers_total",
		Help:      "Spunta offer outcomes.",
	}, []string{"outcome"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Ledger transactions recorded by kind.",
	}, []string{"kind"})
	amounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "amount_cents_total",
		Help:      "Absolute cents moved by kind.",
	}, []string{"kind"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox rows processed by the publisher by result.",
	}, []string{"result"})
	reg.MustRegister(commands, offers, ledger, amounts, outbox)
	return &AllocationMetrics{
		commands: commands,
		offers:   offers,
		ledger:   ledger,
		amounts:  amounts,
		outbox:   outbox,
	}
}

// ObserveCommand counts a command. result is "ok" or an error code.
func (m *AllocationMetrics) ObserveCommand(command, result string) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(normalizeLabel(command), normalizeLabel(result)).Inc()
}

func (m *AllocationMetrics) ObserveOffer(outcome string) {
	if m == nil || m.offers == nil {
		return
	}
	m.offers.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveTransaction counts a ledger row and the absolute cents it moved.
func (m *AllocationMetrics) ObserveTransaction(kind string, amountCents int64) {
	if m == nil || m.ledger == nil {
		return
	}
	m.ledger.WithLabelValues(normalizeLabel(kind)).Inc()
	if amountCents < 0 {
		amountCents = -amountCents
	}
	m.amounts.WithLabelValues(normalizeLabel(kind)).Add(float64(amountCents))
}

func (m *AllocationMetrics) ObserveOutbox(result string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(result)).Inc()
}
