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

// ServerTransaction is the TU-facing side of a server transaction: the
// dialog/UAS layer responds through it instead of writing the channel
// directly, so the transaction can apply its own retransmit/ACK
// bookkeeping to every response it is handed.
type ServerTransaction interface {
	ID() transport.TxID
	Respond(resp *message.Response) error
}

// ServerInvite is the RFC 3261 S. 17.2.1 INVITE server transaction
// (IST): Proceeding -> Completed -> Confirmed -> Terminated.
type ServerInvite struct {
	id      transport.TxID
	req     *message.Request
	ch      transport.Channel
	netDel  transport.TxDelegate
	tu      Delegate
	timings Timings
	metrics Metrics
	log     *slog.Logger

	fsm *stateless.StateMachine

	tmr100 atomic.Pointer[timers.Timer]
	tmrG   atomic.Pointer[timers.Timer]
	tmrH   atomic.Pointer[timers.Timer]
	tmrI   atomic.Pointer[timers.Timer]

	lastResp atomic.Pointer[message.Response]
	sent1xx  atomic.Bool
}

func newServerInvite(
	req *message.Request, id transport.TxID, ch transport.Channel,
	netDel transport.TxDelegate, tu Delegate, timings Timings, metrics Metrics, log *slog.Logger,
) (*ServerInvite, error) {
	if req.Method != message.MethodINVITE {
		return nil, errtrace.Wrap(ErrWrongMethod)
	}

	tx := &ServerInvite{id: id, req: req, ch: ch, netDel: netDel, tu: tu, timings: timings, metrics: metrics, log: log}
	tx.fsm = stateless.NewStateMachine(stateProceeding)
	tx.configureFSM()

	if err := tx.actProceeding(context.Background()); err != nil {
		return nil, errtrace.Wrap(err)
	}
	tu.OnRequest(id, req)
	return tx, nil
}

func (tx *ServerInvite) ID() transport.TxID { return tx.id }

func (tx *ServerInvite) configureFSM() {
	fsm := tx.fsm

	fsm.Configure(stateProceeding).
		InternalTransition(evtRecvReq, tx.actResendLast).
		InternalTransition(evtSend1xx, tx.actSendRes).
		InternalTransition(evtTimer100, tx.actSend100).
		Permit(evtSend2xx, stateTerminated).
		Permit(evtSend300699, stateCompleted).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateCompleted).
		OnEntry(tx.actCompleted).
		OnEntryFrom(evtSend300699, tx.actSendRes).
		InternalTransition(evtRecvReq, tx.actResendLast).
		InternalTransition(evtTimerG, tx.actResendLast).
		Permit(evtRecvAck, stateConfirmed).
		Permit(evtTimerH, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateConfirmed).
		OnEntry(tx.actConfirmed).
		InternalTransition(evtRecvReq, tx.actNoop).
		InternalTransition(evtRecvAck, tx.actNoop).
		Permit(evtTimerI, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateTerminated).
		OnEntry(tx.actTerminated).
		OnEntryFrom(evtSend2xx, tx.actPassFinal).
		OnEntryFrom(evtTimerH, tx.actTimedOut).
		OnEntryFrom(evtTransportErr, tx.actTransportErrTerminal).
		OnEntryFrom(evtTimerI, tx.actNormalTerminated).
		OnEntryFrom(evtTerminate, tx.actNormalTerminated)
}

// --- transport.ServerTx ---

// HandleRequestRetransmit handles both an INVITE retransmit and the
// ACK that confirms this transaction: the network layer maps both to
// this transaction's id (ACK's id substitutes INVITE for its method,
// spec S. 4.4), so the two are told apart by the request's own method.
func (tx *ServerInvite) HandleRequestRetransmit(req *message.Request) {
	if req.Method == message.MethodACK {
		if err := tx.fsm.FireCtx(context.Background(), evtRecvAck); err != nil {
			tx.log.Debug("ack ignored by IST", "transaction", tx.id, "error", err)
			return
		}
		tx.tu.OnAck(tx.id, req)
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtRecvReq); err != nil {
		tx.log.Debug("retransmit ignored by IST", "transaction", tx.id, "error", err)
	}
}

func (tx *ServerInvite) HandleTransportError(err error) {
	if ferr := tx.fsm.FireCtx(context.Background(), evtTransportErr, err); ferr != nil {
		tx.log.Debug("transport error ignored by IST", "transaction", tx.id, "error", ferr)
	}
}

// --- ServerTransaction (TU-facing) ---

func (tx *ServerInvite) Respond(resp *message.Response) error {
	tx.lastResp.Store(resp)
	evt := evtSend300699
	switch {
	case resp.Status.IsProvisional():
		evt = evtSend1xx
	case resp.Status.IsSuccess():
		evt = evtSend2xx
	}
	return errtrace.Wrap(tx.fsm.FireCtx(context.Background(), evt))
}

// --- actions ---

func (tx *ServerInvite) actProceeding(ctx context.Context, _ ...any) error {
	tx.tmr100.Store(timers.AfterFunc(tx.timings.timer100(), tx.onTimer100))
	return nil
}

func (tx *ServerInvite) onTimer100() {
	if tx.sent1xx.Load() || tx.fsm.MustState() != stateProceeding {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimer100); err != nil {
		tx.log.Debug("timer 100 fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ServerInvite) actSend100(ctx context.Context, _ ...any) error {
	if tx.sent1xx.Load() {
		return nil
	}
	resp, err := tx.req.NewResponse(message.StatusTrying, nil)
	if err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(tx.sendAndRemember(resp))
}

func (tx *ServerInvite) actSendRes(ctx context.Context, _ ...any) error {
	return errtrace.Wrap(tx.sendAndRemember(tx.lastResp.Load()))
}

func (tx *ServerInvite) sendAndRemember(resp *message.Response) error {
	tx.sent1xx.Store(true)
	_, err := tx.ch.Send(resp)
	return errtrace.Wrap(err)
}

func (tx *ServerInvite) actResendLast(ctx context.Context, _ ...any) error {
	if resp := tx.lastResp.Load(); resp != nil {
		reportRetransmit(tx.metrics, tx.req.Method)
		_, err := tx.ch.Send(resp)
		return errtrace.Wrap(err)
	}
	return nil
}

func (tx *ServerInvite) actNoop(ctx context.Context, _ ...any) error { return nil }

func (tx *ServerInvite) actPassFinal(ctx context.Context, _ ...any) error {
	reportTerminated(tx.metrics, ReasonTerminated)
	_, err := tx.ch.Send(tx.lastResp.Load())
	return errtrace.Wrap(err)
}

func (tx *ServerInvite) actNormalTerminated(ctx context.Context, _ ...any) error {
	reportTerminated(tx.metrics, ReasonTerminated)
	return nil
}

func (tx *ServerInvite) actCompleted(ctx context.Context, _ ...any) error {
	if tmr := tx.tmr100.Swap(nil); tmr != nil {
		tmr.Stop()
	}
	if !tx.timings.Reliable {
		tx.tmrG.Store(timers.AfterFunc(tx.timings.timerG0(), tx.onTimerG))
	}
	tx.tmrH.Store(timers.AfterFunc(tx.timings.timerH(), tx.onTimerH))
	return nil
}

func (tx *ServerInvite) onTimerG() {
	if tx.fsm.MustState() != stateCompleted {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerG); err != nil {
		tx.log.Debug("timer G fire failed", "transaction", tx.id, "error", err)
		return
	}
	if tmr := tx.tmrG.Load(); tmr != nil {
		tmr.Reset(tx.timings.capRetransmit(tmr.Duration()))
	}
}

func (tx *ServerInvite) onTimerH() {
	tx.tmrH.Store(nil)
	if tx.fsm.MustState() != stateCompleted {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerH); err != nil {
		tx.log.Debug("timer H fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ServerInvite) actConfirmed(ctx context.Context, _ ...any) error {
	for _, tmr := range []*atomic.Pointer[timers.Timer]{&tx.tmrG, &tx.tmrH} {
		if t := tmr.Swap(nil); t != nil {
			t.Stop()
		}
	}
	tx.tmrI.Store(timers.AfterFunc(tx.timings.timerI(), tx.onTimerI))
	return nil
}

func (tx *ServerInvite) onTimerI() {
	if tx.fsm.MustState() != stateConfirmed {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerI); err != nil {
		tx.log.Debug("timer I fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ServerInvite) actTimedOut(ctx context.Context, _ ...any) error {
	tx.tu.OnTransportError(tx.id, ErrTimedOut)
	reportTerminated(tx.metrics, ReasonTimedOut)
	return nil
}

func (tx *ServerInvite) actTransportErrTerminal(ctx context.Context, args ...any) error {
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	tx.tu.OnTransportError(tx.id, err)
	reportTerminated(tx.metrics, ReasonTransportFailed)
	return nil
}

func (tx *ServerInvite) actTerminated(ctx context.Context, _ ...any) error {
	for _, tmr := range []*atomic.Pointer[timers.Timer]{&tx.tmr100, &tx.tmrG, &tx.tmrH, &tx.tmrI} {
		if t := tmr.Swap(nil); t != nil {
			t.Stop()
		}
	}
	tx.tu.OnTerminated(tx.id)
	tx.netDel.OnTransactionTerminated(tx.id)
	return nil
}
