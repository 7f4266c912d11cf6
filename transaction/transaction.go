// Package transaction implements the four RFC 3261 §17 transaction
// state machines (invite-client, non-invite-client, invite-server,
// non-invite-server) on top of [github.com/qmuntal/stateless], and a
// [Layer] that registers itself with a [transport.Layer] as its
// transport.TxFactory.
package transaction

import (
	"time"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/message"
)

// ErrTransaction is the sentinel every package-level error wraps.
const ErrTransaction errs.Error = "transaction: error"

var (
	// ErrWrongMethod is returned by the ICT/IST constructors when handed
	// a non-INVITE request, and by NICT/NIST when handed INVITE or ACK.
	ErrWrongMethod = errs.Wrap(ErrTransaction, "method not valid for this transaction type")
	// ErrTimedOut is reported to the TU via Delegate.OnTransportError
	// when Timer B/F fires with no response, or Timer H with no ACK.
	ErrTimedOut = errs.Wrap(ErrTransaction, "transaction timed out")
)

// TerminationReason classifies why a transaction reached its
// Terminated state, for [Metrics.Terminated].
type TerminationReason string

const (
	// ReasonTerminated covers every termination that isn't a timeout or
	// a transport failure: a final response passed up, an absorbed
	// retransmit window (Timer D/I/J/K) running out, or an explicit
	// Terminate call.
	ReasonTerminated TerminationReason = "terminated"
	// ReasonTimedOut is Timer B/F firing with no response ever seen,
	// or Timer H firing with no ACK.
	ReasonTimedOut TerminationReason = "timed_out"
	// ReasonTransportFailed is a channel Send/receive error.
	ReasonTransportFailed TerminationReason = "transport_failed"
)

// Metrics is the nil-safe recorder hook every transaction calls into;
// see metrics.Recorder for the concrete Prometheus-backed
// implementation.
type Metrics interface {
	Retransmit(method message.RequestMethod)
	TransactionTerminated(reason TerminationReason)
}

func reportRetransmit(m Metrics, method message.RequestMethod) {
	if m != nil {
		m.Retransmit(method)
	}
}

func reportTerminated(m Metrics, reason TerminationReason) {
	if m != nil {
		m.TransactionTerminated(reason)
	}
}

// state is one of the RFC 3261 §17 per-machine states.
type state string

const (
	stateCalling    state = "calling"
	stateTrying     state = "trying"
	stateProceeding state = "proceeding"
	stateCompleted  state = "completed"
	stateConfirmed  state = "confirmed"
	stateTerminated state = "terminated"
)

// trigger is a fsm event. Timer firings and transport-layer inputs
// both become triggers.
type trigger string

const (
	evtRecv1xx      trigger = "recv_1xx"
	evtRecv2xx      trigger = "recv_2xx"
	evtRecv300699   trigger = "recv_300_699"
	evtRecvReq      trigger = "recv_req"
	evtRecvAck      trigger = "recv_ack"
	evtSend1xx      trigger = "send_1xx"
	evtSend2xx      trigger = "send_2xx"
	evtSend300699   trigger = "send_300_699"
	evtTimerA       trigger = "timer_a"
	evtTimerB       trigger = "timer_b"
	evtTimerD       trigger = "timer_d"
	evtTimerE       trigger = "timer_e"
	evtTimerF       trigger = "timer_f"
	evtTimerG       trigger = "timer_g"
	evtTimerH       trigger = "timer_h"
	evtTimerI       trigger = "timer_i"
	evtTimerJ       trigger = "timer_j"
	evtTimerK       trigger = "timer_k"
	evtTimer100     trigger = "timer_100"
	evtTransportErr trigger = "transport_err"
	evtTerminate    trigger = "terminate"
)

// Timings carries T1/T2/T4 and the reliable-transport set a
// transaction needs to compute its retransmit/timeout schedule,
// mirroring transport.Config's equivalent fields (spec §6
// "Configuration (network settings)"). TimerD is independently
// configurable rather than derived from T1/T2/T4, matching the
// teacher's TimingConfig.TimeD — its RFC 3261 default (32s) is far
// longer than any of the T1-derived timers, so tests that scale T1
// down still need a way to scale it too.
type Timings struct {
	T1, T2, T4 time.Duration
	TimerD     time.Duration
	Reliable   bool
}

// DefaultTimings returns the RFC 3261 §17.1.1.2 defaults.
func DefaultTimings(reliable bool) Timings {
	return Timings{
		T1: 500 * time.Millisecond, T2: 4 * time.Second, T4: 5 * time.Second,
		TimerD:   32 * time.Second,
		Reliable: reliable,
	}
}

func (t Timings) timerA0() time.Duration { return t.T1 }
func (t Timings) timerB() time.Duration  { return 64 * t.T1 }
func (t Timings) timerD() time.Duration {
	if t.Reliable {
		return 0
	}
	return t.TimerD
}
func (t Timings) timerE0() time.Duration { return t.T1 }
func (t Timings) timerF() time.Duration  { return 64 * t.T1 }
func (t Timings) timerK() time.Duration {
	if t.Reliable {
		return 0
	}
	return t.T4
}
func (t Timings) timerG0() time.Duration { return t.T1 }
func (t Timings) timerH() time.Duration  { return 64 * t.T1 }
func (t Timings) timerI() time.Duration {
	if t.Reliable {
		return 0
	}
	return t.T4
}
func (t Timings) timerJ() time.Duration {
	if t.Reliable {
		return 0
	}
	return 64 * t.T1
}
func (t Timings) timer100() time.Duration { return 200 * time.Millisecond }

// capRetransmit doubles d, capping at t.T2 — the shared retransmit
// schedule of Timers A/E/G.
func (t Timings) capRetransmit(d time.Duration) time.Duration {
	d *= 2
	if d > t.T2 {
		return t.T2
	}
	return d
}

