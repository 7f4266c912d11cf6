// Package metrics implements the Prometheus-backed Recorder the
// transport and transaction layers call into: transaction
// terminations by reason, retransmit counts, and ChannelContext
// open/close gauges. A nil Recorder is never required — every calling
// site already guards on nil — but constructing one and passing it in
// is how a process opts into observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transaction"
	"github.com/new-neon/sippet/transport"
)

// Recorder implements both transport.Metrics and transaction.Metrics
// over a single set of Prometheus collectors.
type Recorder struct {
	channelsOpened    *prometheus.CounterVec
	channelsActive    *prometheus.GaugeVec
	retransmitsTotal  *prometheus.CounterVec
	terminationsTotal *prometheus.CounterVec
}

// New registers its collectors against reg and returns a Recorder.
// Pass prometheus.DefaultRegisterer for the global registry, or a
// fresh prometheus.NewRegistry() in tests to avoid collisions between
// parallel test runs registering the same metric names twice.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		channelsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip",
			Subsystem: "transport",
			Name:      "channel_contexts_opened_total",
			Help:      "Total number of ChannelContexts opened, by protocol.",
		}, []string{"protocol"}),
		channelsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sip",
			Subsystem: "transport",
			Name:      "channel_contexts_active",
			Help:      "Number of currently open ChannelContexts, by protocol.",
		}, []string{"protocol"}),
		retransmitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip",
			Subsystem: "transaction",
			Name:      "retransmits_total",
			Help:      "Total number of request/response retransmits sent, by method.",
		}, []string{"method"}),
		terminationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip",
			Subsystem: "transaction",
			Name:      "terminations_total",
			Help:      "Total number of transactions reaching Terminated, by reason.",
		}, []string{"reason"}),
	}
}

// --- transport.Metrics ---

func (r *Recorder) ChannelContextOpened(proto transport.Protocol) {
	r.channelsOpened.WithLabelValues(string(proto)).Inc()
	r.channelsActive.WithLabelValues(string(proto)).Inc()
}

func (r *Recorder) ChannelContextClosed(proto transport.Protocol) {
	r.channelsActive.WithLabelValues(string(proto)).Dec()
}

// --- transaction.Metrics ---

func (r *Recorder) Retransmit(method message.RequestMethod) {
	r.retransmitsTotal.WithLabelValues(string(method)).Inc()
}

func (r *Recorder) TransactionTerminated(reason transaction.TerminationReason) {
	r.terminationsTotal.WithLabelValues(string(reason)).Inc()
}
