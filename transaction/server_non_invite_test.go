package transaction_test

import (
	"testing"
	"time"

	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transaction"
	"github.com/new-neon/sippet/transport"
)

func asServerTransaction(t *testing.T, tx transport.ServerTx) transaction.ServerTransaction {
	t.Helper()
	st, ok := tx.(transaction.ServerTransaction)
	if !ok {
		t.Fatalf("%T does not implement transaction.ServerTransaction", tx)
	}
	return st
}

func TestServerNonInvite_RespondAndRetransmitAbsorption(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	metrics := &fakeMetrics{}
	layer := transaction.NewLayer(timings, tu, metrics, nil)

	req := testRequest(t, message.MethodREGISTER, "z9hG4bK-nist-respond")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	rawTx, err := layer.CreateServerTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateServerTransaction() error = %v", err)
	}
	if got := tu.waitRequest(t, 100*time.Millisecond); got != req {
		t.Fatalf("OnRequest req = %+v, want original request", got)
	}

	tx := asServerTransaction(t, rawTx)
	ok := responseFor(req, message.StatusOK)
	if err := tx.Respond(ok); err != nil {
		t.Fatalf("tx.Respond(200) error = %v", err)
	}
	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(ok) {
		t.Fatalf("channel send = %+v, want the 200 OK", sent)
	}

	// A retransmitted request in Completed must re-send the final
	// response, not run the handler again.
	rawTx.HandleRequestRetransmit(req.Clone().(*message.Request))
	retransmit := ch.waitSend(t, 100*time.Millisecond)
	if retransmit != message.Message(ok) {
		t.Fatalf("retransmit send = %+v, want the same 200 OK resent", retransmit)
	}
	select {
	case r := <-tu.request:
		t.Fatalf("unexpected second OnRequest: %+v", r)
	default:
	}

	net.waitTerminated(t, timings.T4*20)
	if got, want := metrics.lastTermination(), transaction.ReasonTerminated; got != want {
		t.Errorf("metrics termination reason = %q, want %q", got, want)
	}
	if metrics.retransmitCount() < 1 {
		t.Errorf("retransmitCount() = %d, want at least 1", metrics.retransmitCount())
	}
}

func TestServerNonInvite_ProvisionalThenFinal(t *testing.T) {
	t.Parallel()

	timings := fastTimings(true)
	tu := newFakeTU()
	layer := transaction.NewLayer(timings, tu, nil, nil)

	req := testRequest(t, message.MethodREGISTER, "z9hG4bK-nist-provisional")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	rawTx, err := layer.CreateServerTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateServerTransaction() error = %v", err)
	}
	tu.waitRequest(t, 100*time.Millisecond)

	tx := asServerTransaction(t, rawTx)
	trying := responseFor(req, message.StatusTrying)
	if err := tx.Respond(trying); err != nil {
		t.Fatalf("tx.Respond(100) error = %v", err)
	}
	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(trying) {
		t.Fatalf("channel send = %+v, want 100 Trying", sent)
	}

	notFound := responseFor(req, message.StatusNotFound)
	if err := tx.Respond(notFound); err != nil {
		t.Fatalf("tx.Respond(404) error = %v", err)
	}
	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(notFound) {
		t.Fatalf("channel send = %+v, want 404 Not Found", sent)
	}

	// A reliable transport skips Timer J (immediate Terminated on entry).
	net.waitTerminated(t, 100*time.Millisecond)
}

func TestServerNonInvite_RejectsAck(t *testing.T) {
	t.Parallel()

	layer := transaction.NewLayer(fastTimings(true), newFakeTU(), nil, nil)

	req := testRequest(t, message.MethodACK, "z9hG4bK-nist-wrong-method")
	ch := newFakeChannel()
	_, err := layer.CreateServerTransaction(req, testTxID(req), ch, newFakeNetDelegate())
	if err == nil {
		t.Fatal("CreateServerTransaction(ACK) error = nil, want ErrWrongMethod")
	}
}
