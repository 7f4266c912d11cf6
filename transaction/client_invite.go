package transaction

import (
	"context"
	"log/slog"
	"sync/atomic"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/new-neon/sippet/internal/timers"
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transport"
)

// ClientInvite is the RFC 3261 S. 17.1.1 INVITE client transaction
// (ICT): Calling -> Proceeding -> Completed -> Terminated.
type ClientInvite struct {
	id      transport.TxID
	req     *message.Request
	ch      transport.Channel
	netDel  transport.TxDelegate
	tu      Delegate
	timings Timings
	metrics Metrics
	log     *slog.Logger

	fsm *stateless.StateMachine

	tmrA atomic.Pointer[timers.Timer]
	tmrB atomic.Pointer[timers.Timer]
	tmrD atomic.Pointer[timers.Timer]

	lastResp atomic.Pointer[message.Response]
	ack      atomic.Pointer[message.Request]
}

// newClientInvite builds and starts an ICT: it sends req immediately.
func newClientInvite(
	req *message.Request, id transport.TxID, ch transport.Channel,
	netDel transport.TxDelegate, tu Delegate, timings Timings, metrics Metrics, log *slog.Logger,
) (*ClientInvite, error) {
	if req.Method != message.MethodINVITE {
		return nil, errtrace.Wrap(ErrWrongMethod)
	}

	tx := &ClientInvite{id: id, req: req, ch: ch, netDel: netDel, tu: tu, timings: timings, metrics: metrics, log: log}
	tx.fsm = stateless.NewStateMachine(stateCalling)
	tx.configureFSM()

	if err := tx.actCalling(context.Background()); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}

func (tx *ClientInvite) ID() transport.TxID { return tx.id }

func (tx *ClientInvite) configureFSM() {
	fsm := tx.fsm

	fsm.Configure(stateCalling).
		InternalTransition(evtTimerA, tx.actResendReq).
		Permit(evtRecv1xx, stateProceeding).
		Permit(evtRecv2xx, stateTerminated).
		Permit(evtRecv300699, stateCompleted).
		Permit(evtTimerB, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateProceeding).
		OnEntry(tx.actProceeding).
		OnEntryFrom(evtRecv1xx, tx.actPassProvisional).
		InternalTransition(evtRecv1xx, tx.actPassProvisional).
		Permit(evtRecv2xx, stateTerminated).
		Permit(evtRecv300699, stateCompleted).
		Permit(evtTimerB, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateCompleted).
		OnEntry(tx.actCompleted).
		OnEntryFrom(evtRecv300699, tx.actPassFinalSendAck).
		InternalTransition(evtRecv300699, tx.actResendAck).
		Permit(evtTimerD, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateTerminated).
		OnEntry(tx.actTerminated).
		OnEntryFrom(evtRecv2xx, tx.actPassFinal).
		OnEntryFrom(evtTimerB, tx.actTimedOut).
		OnEntryFrom(evtTransportErr, tx.actTransportErrTerminal).
		OnEntryFrom(evtTimerD, tx.actNormalTerminated).
		OnEntryFrom(evtTerminate, tx.actNormalTerminated)
}

// --- transport.ClientTx ---

func (tx *ClientInvite) HandleResponse(resp *message.Response) {
	tx.lastResp.Store(resp)
	var evt trigger
	switch {
	case resp.Status.IsProvisional():
		evt = evtRecv1xx
	case resp.Status.IsSuccess():
		evt = evtRecv2xx
	default:
		evt = evtRecv300699
	}
	if err := tx.fsm.FireCtx(context.Background(), evt); err != nil {
		tx.log.Debug("response ignored by ICT", "transaction", tx.id, "status", resp.Status, "error", err)
	}
}

func (tx *ClientInvite) HandleTransportError(err error) {
	if ferr := tx.fsm.FireCtx(context.Background(), evtTransportErr, err); ferr != nil {
		tx.log.Debug("transport error ignored by ICT", "transaction", tx.id, "error", ferr)
	}
}

// --- actions ---

func (tx *ClientInvite) actCalling(ctx context.Context, _ ...any) error {
	if _, err := tx.ch.Send(tx.req); err != nil {
		return errtrace.Wrap(err)
	}

	if !tx.timings.Reliable {
		tx.tmrA.Store(timers.AfterFunc(tx.timings.timerA0(), tx.onTimerA))
	}
	tx.tmrB.Store(timers.AfterFunc(tx.timings.timerB(), tx.onTimerB))
	return nil
}

func (tx *ClientInvite) actResendReq(ctx context.Context, _ ...any) error {
	reportRetransmit(tx.metrics, tx.req.Method)
	_, err := tx.ch.Send(tx.req)
	return errtrace.Wrap(err)
}

func (tx *ClientInvite) onTimerA() {
	if tx.fsm.MustState() != stateCalling {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerA); err != nil {
		tx.log.Debug("timer A fire failed", "transaction", tx.id, "error", err)
		return
	}
	if tmr := tx.tmrA.Load(); tmr != nil {
		tmr.Reset(tx.timings.capRetransmit(tmr.Duration()))
	}
}

func (tx *ClientInvite) onTimerB() {
	tx.tmrB.Store(nil)
	if tx.fsm.MustState() != stateCalling && tx.fsm.MustState() != stateProceeding {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerB); err != nil {
		tx.log.Debug("timer B fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ClientInvite) actProceeding(ctx context.Context, _ ...any) error {
	if tmr := tx.tmrA.Swap(nil); tmr != nil {
		tmr.Stop()
	}
	return nil
}

func (tx *ClientInvite) actPassProvisional(ctx context.Context, _ ...any) error {
	tx.tu.OnProvisional(tx.id, tx.lastResp.Load())
	return nil
}

func (tx *ClientInvite) actPassFinal(ctx context.Context, _ ...any) error {
	tx.tu.OnFinal(tx.id, tx.lastResp.Load())
	reportTerminated(tx.metrics, ReasonTerminated)
	return nil
}

func (tx *ClientInvite) actNormalTerminated(ctx context.Context, _ ...any) error {
	reportTerminated(tx.metrics, ReasonTerminated)
	return nil
}

func (tx *ClientInvite) actPassFinalSendAck(ctx context.Context, args ...any) error {
	tx.tu.OnFinal(tx.id, tx.lastResp.Load())
	return errtrace.Wrap(tx.actResendAck(ctx, args...))
}

// actResendAck builds the ACK on first use, then resends the same
// message for every absorbed 3xx-6xx retransmit (spec S. 4.4.1).
func (tx *ClientInvite) actResendAck(ctx context.Context, _ ...any) error {
	ack := tx.ack.Load()
	if ack == nil {
		ack = buildAck(tx.req, tx.lastResp.Load())
		tx.ack.Store(ack)
	} else {
		reportRetransmit(tx.metrics, ack.Method)
	}
	_, err := tx.ch.Send(ack)
	return errtrace.Wrap(err)
}

func (tx *ClientInvite) actCompleted(ctx context.Context, _ ...any) error {
	if tmr := tx.tmrB.Swap(nil); tmr != nil {
		tmr.Stop()
	}
	tx.tmrD.Store(timers.AfterFunc(tx.timings.timerD(), tx.onTimerD))
	return nil
}

func (tx *ClientInvite) onTimerD() {
	if tx.fsm.MustState() != stateCompleted {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerD); err != nil {
		tx.log.Debug("timer D fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ClientInvite) actTimedOut(ctx context.Context, _ ...any) error {
	tx.tu.OnTransportError(tx.id, ErrTimedOut)
	reportTerminated(tx.metrics, ReasonTimedOut)
	return nil
}

func (tx *ClientInvite) actTransportErrTerminal(ctx context.Context, args ...any) error {
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	tx.tu.OnTransportError(tx.id, err)
	reportTerminated(tx.metrics, ReasonTransportFailed)
	return nil
}

func (tx *ClientInvite) actTerminated(ctx context.Context, _ ...any) error {
	for _, tmr := range []*atomic.Pointer[timers.Timer]{&tx.tmrA, &tx.tmrB, &tx.tmrD} {
		if t := tmr.Swap(nil); t != nil {
			t.Stop()
		}
	}
	tx.tu.OnTerminated(tx.id)
	tx.netDel.OnTransactionTerminated(tx.id)
	return nil
}

// buildAck builds the ACK for a non-2xx final response to req, per
// RFC 3261 S. 17.1.1.3: same branch/Call-ID/CSeq-number/From as the
// INVITE, CSeq method ACK, To from the response (carries the tag).
func buildAck(req *message.Request, resp *message.Response) *message.Request {
	ack := req.Clone().(*message.Request)
	ack.Method = message.MethodACK

	hdrs := ack.Headers()
	if cseq, ok := ack.CSeq(); ok {
		cseq.Method = string(message.MethodACK)
	}
	if resp != nil {
		if to, ok := resp.To(); ok {
			hdrs.Remove("To")
			hdrs.Add(to.Clone())
		}
	}
	ack.SetBody(nil)
	return ack
}
