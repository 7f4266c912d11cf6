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

// ClientNonInvite is the RFC 3261 S. 17.1.2 non-INVITE client
// transaction (NICT): Trying -> Proceeding -> Completed -> Terminated.
type ClientNonInvite struct {
	id      transport.TxID
	req     *message.Request
	ch      transport.Channel
	netDel  transport.TxDelegate
	tu      Delegate
	timings Timings
	metrics Metrics
	log     *slog.Logger

	fsm *stateless.StateMachine

	tmrE atomic.Pointer[timers.Timer]
	tmrF atomic.Pointer[timers.Timer]
	tmrK atomic.Pointer[timers.Timer]

	lastResp atomic.Pointer[message.Response]
}

func newClientNonInvite(
	req *message.Request, id transport.TxID, ch transport.Channel,
	netDel transport.TxDelegate, tu Delegate, timings Timings, metrics Metrics, log *slog.Logger,
) (*ClientNonInvite, error) {
	if req.Method == message.MethodINVITE || req.Method == message.MethodACK {
		return nil, errtrace.Wrap(ErrWrongMethod)
	}

	tx := &ClientNonInvite{id: id, req: req, ch: ch, netDel: netDel, tu: tu, timings: timings, metrics: metrics, log: log}
	tx.fsm = stateless.NewStateMachine(stateTrying)
	tx.configureFSM()

	if err := tx.actTrying(context.Background()); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}

func (tx *ClientNonInvite) ID() transport.TxID { return tx.id }

func (tx *ClientNonInvite) configureFSM() {
	fsm := tx.fsm

	fsm.Configure(stateTrying).
		InternalTransition(evtTimerE, tx.actResendReq).
		Permit(evtRecv1xx, stateProceeding).
		Permit(evtRecv2xx, stateCompleted).
		Permit(evtRecv300699, stateCompleted).
		Permit(evtTimerF, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateProceeding).
		OnEntry(tx.actProceeding).
		OnEntryFrom(evtRecv1xx, tx.actPassProvisional).
		InternalTransition(evtTimerE, tx.actResendReq).
		InternalTransition(evtRecv1xx, tx.actPassProvisional).
		Permit(evtRecv2xx, stateCompleted).
		Permit(evtRecv300699, stateCompleted).
		Permit(evtTimerF, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateCompleted).
		OnEntry(tx.actCompleted).
		OnEntryFrom(evtRecv2xx, tx.actPassFinal).
		OnEntryFrom(evtRecv300699, tx.actPassFinal).
		Permit(evtTimerK, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateTerminated).
		OnEntry(tx.actTerminated).
		OnEntryFrom(evtTimerF, tx.actTimedOut).
		OnEntryFrom(evtTransportErr, tx.actTransportErrTerminal).
		OnEntryFrom(evtTimerK, tx.actNormalTerminated).
		OnEntryFrom(evtTerminate, tx.actNormalTerminated)
}

func (tx *ClientNonInvite) HandleResponse(resp *message.Response) {
	tx.lastResp.Store(resp)
	evt := evtRecv300699
	if resp.Status.IsProvisional() {
		evt = evtRecv1xx
	} else if resp.Status.IsSuccess() {
		evt = evtRecv2xx
	}
	if err := tx.fsm.FireCtx(context.Background(), evt); err != nil {
		tx.log.Debug("response ignored by NICT", "transaction", tx.id, "status", resp.Status, "error", err)
	}
}

func (tx *ClientNonInvite) HandleTransportError(err error) {
	if ferr := tx.fsm.FireCtx(context.Background(), evtTransportErr, err); ferr != nil {
		tx.log.Debug("transport error ignored by NICT", "transaction", tx.id, "error", ferr)
	}
}

func (tx *ClientNonInvite) actTrying(ctx context.Context, _ ...any) error {
	if _, err := tx.ch.Send(tx.req); err != nil {
		return errtrace.Wrap(err)
	}
	if !tx.timings.Reliable {
		tx.tmrE.Store(timers.AfterFunc(tx.timings.timerE0(), tx.onTimerE))
	}
	tx.tmrF.Store(timers.AfterFunc(tx.timings.timerF(), tx.onTimerF))
	return nil
}

func (tx *ClientNonInvite) actResendReq(ctx context.Context, _ ...any) error {
	reportRetransmit(tx.metrics, tx.req.Method)
	_, err := tx.ch.Send(tx.req)
	return errtrace.Wrap(err)
}

func (tx *ClientNonInvite) onTimerE() {
	st := tx.fsm.MustState()
	if st != stateTrying && st != stateProceeding {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerE); err != nil {
		tx.log.Debug("timer E fire failed", "transaction", tx.id, "error", err)
		return
	}
	if tmr := tx.tmrE.Load(); tmr != nil {
		tmr.Reset(tx.timings.capRetransmit(tmr.Duration()))
	}
}

func (tx *ClientNonInvite) onTimerF() {
	tx.tmrF.Store(nil)
	st := tx.fsm.MustState()
	if st != stateTrying && st != stateProceeding {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerF); err != nil {
		tx.log.Debug("timer F fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ClientNonInvite) actProceeding(ctx context.Context, _ ...any) error { return nil }

func (tx *ClientNonInvite) actPassProvisional(ctx context.Context, _ ...any) error {
	tx.tu.OnProvisional(tx.id, tx.lastResp.Load())
	return nil
}

func (tx *ClientNonInvite) actPassFinal(ctx context.Context, _ ...any) error {
	tx.tu.OnFinal(tx.id, tx.lastResp.Load())
	return nil
}

func (tx *ClientNonInvite) actNormalTerminated(ctx context.Context, _ ...any) error {
	reportTerminated(tx.metrics, ReasonTerminated)
	return nil
}

func (tx *ClientNonInvite) actCompleted(ctx context.Context, _ ...any) error {
	for _, tmr := range []*atomic.Pointer[timers.Timer]{&tx.tmrE, &tx.tmrF} {
		if t := tmr.Swap(nil); t != nil {
			t.Stop()
		}
	}
	tx.tmrK.Store(timers.AfterFunc(tx.timings.timerK(), tx.onTimerK))
	return nil
}

func (tx *ClientNonInvite) onTimerK() {
	if tx.fsm.MustState() != stateCompleted {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerK); err != nil {
		tx.log.Debug("timer K fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ClientNonInvite) actTimedOut(ctx context.Context, _ ...any) error {
	tx.tu.OnTransportError(tx.id, ErrTimedOut)
	reportTerminated(tx.metrics, ReasonTimedOut)
	return nil
}

func (tx *ClientNonInvite) actTransportErrTerminal(ctx context.Context, args ...any) error {
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	tx.tu.OnTransportError(tx.id, err)
	reportTerminated(tx.metrics, ReasonTransportFailed)
	return nil
}

func (tx *ClientNonInvite) actTerminated(ctx context.Context, _ ...any) error {
	for _, tmr := range []*atomic.Pointer[timers.Timer]{&tx.tmrE, &tx.tmrF, &tx.tmrK} {
		if t := tmr.Swap(nil); t != nil {
			t.Stop()
		}
	}
	tx.tu.OnTerminated(tx.id)
	tx.netDel.OnTransactionTerminated(tx.id)
	return nil
}
