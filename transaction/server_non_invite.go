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

// ServerNonInvite is the RFC 3261 S. 17.2.2 non-INVITE server
// transaction (NIST): Trying -> Proceeding -> Completed -> Terminated.
type ServerNonInvite struct {
	id      transport.TxID
	req     *message.Request
	ch      transport.Channel
	netDel  transport.TxDelegate
	tu      Delegate
	timings Timings
	metrics Metrics
	log     *slog.Logger

	fsm *stateless.StateMachine

	tmrJ atomic.Pointer[timers.Timer]

	lastResp atomic.Pointer[message.Response]
}

func newServerNonInvite(
	req *message.Request, id transport.TxID, ch transport.Channel,
	netDel transport.TxDelegate, tu Delegate, timings Timings, metrics Metrics, log *slog.Logger,
) (*ServerNonInvite, error) {
	if req.Method == message.MethodINVITE || req.Method == message.MethodACK {
		return nil, errtrace.Wrap(ErrWrongMethod)
	}

	tx := &ServerNonInvite{id: id, req: req, ch: ch, netDel: netDel, tu: tu, timings: timings, metrics: metrics, log: log}
	tx.fsm = stateless.NewStateMachine(stateTrying)
	tx.configureFSM()

	tu.OnRequest(id, req)
	return tx, nil
}

func (tx *ServerNonInvite) ID() transport.TxID { return tx.id }

func (tx *ServerNonInvite) configureFSM() {
	fsm := tx.fsm

	fsm.Configure(stateTrying).
		InternalTransition(evtRecvReq, tx.actNoop).
		Permit(evtSend1xx, stateProceeding).
		Permit(evtSend2xx, stateCompleted).
		Permit(evtSend300699, stateCompleted).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateProceeding).
		OnEntry(tx.actProceeding).
		OnEntryFrom(evtSend1xx, tx.actSendRes).
		InternalTransition(evtRecvReq, tx.actResendLast).
		InternalTransition(evtSend1xx, tx.actSendRes).
		Permit(evtSend2xx, stateCompleted).
		Permit(evtSend300699, stateCompleted).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateCompleted).
		OnEntry(tx.actCompleted).
		OnEntryFrom(evtSend2xx, tx.actSendRes).
		OnEntryFrom(evtSend300699, tx.actSendRes).
		InternalTransition(evtRecvReq, tx.actResendLast).
		Permit(evtTimerJ, stateTerminated).
		Permit(evtTransportErr, stateTerminated).
		Permit(evtTerminate, stateTerminated)

	fsm.Configure(stateTerminated).
		OnEntry(tx.actTerminated).
		OnEntryFrom(evtTransportErr, tx.actTransportErrTerminal).
		OnEntryFrom(evtTimerJ, tx.actNormalTerminated).
		OnEntryFrom(evtTerminate, tx.actNormalTerminated)
}

func (tx *ServerNonInvite) HandleRequestRetransmit(req *message.Request) {
	if err := tx.fsm.FireCtx(context.Background(), evtRecvReq); err != nil {
		tx.log.Debug("retransmit ignored by NIST", "transaction", tx.id, "error", err)
	}
}

func (tx *ServerNonInvite) HandleTransportError(err error) {
	if ferr := tx.fsm.FireCtx(context.Background(), evtTransportErr, err); ferr != nil {
		tx.log.Debug("transport error ignored by NIST", "transaction", tx.id, "error", ferr)
	}
}

func (tx *ServerNonInvite) Respond(resp *message.Response) error {
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

func (tx *ServerNonInvite) actNoop(ctx context.Context, _ ...any) error { return nil }

func (tx *ServerNonInvite) actProceeding(ctx context.Context, _ ...any) error { return nil }

func (tx *ServerNonInvite) actSendRes(ctx context.Context, _ ...any) error {
	_, err := tx.ch.Send(tx.lastResp.Load())
	return errtrace.Wrap(err)
}

func (tx *ServerNonInvite) actResendLast(ctx context.Context, _ ...any) error {
	if resp := tx.lastResp.Load(); resp != nil {
		reportRetransmit(tx.metrics, tx.req.Method)
		_, err := tx.ch.Send(resp)
		return errtrace.Wrap(err)
	}
	return nil
}

func (tx *ServerNonInvite) actNormalTerminated(ctx context.Context, _ ...any) error {
	reportTerminated(tx.metrics, ReasonTerminated)
	return nil
}

func (tx *ServerNonInvite) actCompleted(ctx context.Context, _ ...any) error {
	tx.tmrJ.Store(timers.AfterFunc(tx.timings.timerJ(), tx.onTimerJ))
	return nil
}

func (tx *ServerNonInvite) onTimerJ() {
	if tx.fsm.MustState() != stateCompleted {
		return
	}
	if err := tx.fsm.FireCtx(context.Background(), evtTimerJ); err != nil {
		tx.log.Debug("timer J fire failed", "transaction", tx.id, "error", err)
	}
}

func (tx *ServerNonInvite) actTransportErrTerminal(ctx context.Context, args ...any) error {
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	tx.tu.OnTransportError(tx.id, err)
	reportTerminated(tx.metrics, ReasonTransportFailed)
	return nil
}

func (tx *ServerNonInvite) actTerminated(ctx context.Context, _ ...any) error {
	if t := tx.tmrJ.Swap(nil); t != nil {
		t.Stop()
	}
	tx.tu.OnTerminated(tx.id)
	tx.netDel.OnTransactionTerminated(tx.id)
	return nil
}
