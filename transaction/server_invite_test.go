package transaction_test

import (
	"testing"
	"time"

	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transaction"
)

func TestServerInvite_ProvisionalThenAccepted(t *testing.T) {
	t.Parallel()

	timings := fastTimings(true)
	tu := newFakeTU()
	layer := transaction.NewLayer(timings, tu, nil, nil)

	req := testInvite(t, "z9hG4bK-ist-accepted")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	rawTx, err := layer.CreateServerTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateServerTransaction() error = %v", err)
	}
	tu.waitRequest(t, 100*time.Millisecond)

	tx := asServerTransaction(t, rawTx)
	ringing := responseFor(req, message.StatusRinging)
	if err := tx.Respond(ringing); err != nil {
		t.Fatalf("tx.Respond(180) error = %v", err)
	}
	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(ringing) {
		t.Fatalf("channel send = %+v, want 180 Ringing", sent)
	}

	ok := responseFor(req, message.StatusOK)
	if err := tx.Respond(ok); err != nil {
		t.Fatalf("tx.Respond(200) error = %v", err)
	}
	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(ok) {
		t.Fatalf("channel send = %+v, want 200 OK", sent)
	}

	// A 2xx sent by the TU terminates the IST immediately (RFC 3261
	// S. 17.2.1): the 2xx's own retransmission is the TU's job, not
	// this transaction's.
	net.waitTerminated(t, 100*time.Millisecond)
}

func TestServerInvite_RejectedWaitsForAckThenConfirmed(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	metrics := &fakeMetrics{}
	layer := transaction.NewLayer(timings, tu, metrics, nil)

	req := testInvite(t, "z9hG4bK-ist-rejected")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	rawTx, err := layer.CreateServerTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateServerTransaction() error = %v", err)
	}
	tu.waitRequest(t, 100*time.Millisecond)

	tx := asServerTransaction(t, rawTx)
	busy := responseFor(req, message.StatusBusyHere)
	if err := tx.Respond(busy); err != nil {
		t.Fatalf("tx.Respond(486) error = %v", err)
	}
	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(busy) {
		t.Fatalf("channel send = %+v, want 486 Busy Here", sent)
	}

	// Timer G retransmits the final response until the ACK arrives.
	retransmit := ch.waitSend(t, timings.T1*10)
	if retransmit != message.Message(busy) {
		t.Fatalf("retransmit send = %+v, want the same 486 resent", retransmit)
	}

	ack := req.Clone().(*message.Request)
	ack.Method = message.MethodACK
	rawTx.HandleRequestRetransmit(ack)
	if got := tu.waitAck(t, 100*time.Millisecond); got != ack {
		t.Fatalf("OnAck req = %+v, want the ACK", got)
	}

	// Confirmed absorbs further ACK/INVITE retransmits silently and then
	// terminates after Timer I.
	ch.ensureNoSend(t, timings.T4*3)
	net.waitTerminated(t, timings.T4*10)
	if got, want := metrics.lastTermination(), transaction.ReasonTerminated; got != want {
		t.Errorf("metrics termination reason = %q, want %q", got, want)
	}
}

func TestServerInvite_Timeout(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	metrics := &fakeMetrics{}
	layer := transaction.NewLayer(timings, tu, metrics, nil)

	req := testInvite(t, "z9hG4bK-ist-timeout")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	rawTx, err := layer.CreateServerTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateServerTransaction() error = %v", err)
	}
	tu.waitRequest(t, 100*time.Millisecond)

	tx := asServerTransaction(t, rawTx)
	busy := responseFor(req, message.StatusBusyHere)
	if err := tx.Respond(busy); err != nil {
		t.Fatalf("tx.Respond(486) error = %v", err)
	}
	ch.waitSend(t, 100*time.Millisecond)

	// No ACK ever arrives: Timer H fires and the IST times out.
	err = tu.waitTransportErr(t, timings.T1*100)
	if err != transaction.ErrTimedOut {
		t.Errorf("OnTransportError err = %v, want ErrTimedOut", err)
	}
	net.waitTerminated(t, 100*time.Millisecond)

	if got, want := metrics.lastTermination(), transaction.ReasonTimedOut; got != want {
		t.Errorf("metrics termination reason = %q, want %q", got, want)
	}
}

func TestServerInvite_Send100TryingAfterTimer100(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	layer := transaction.NewLayer(timings, tu, nil, nil)

	req := testInvite(t, "z9hG4bK-ist-timer100")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	if _, err := layer.CreateServerTransaction(req, id, ch, net); err != nil {
		t.Fatalf("CreateServerTransaction() error = %v", err)
	}
	tu.waitRequest(t, 100*time.Millisecond)

	sent := ch.waitSend(t, 500*time.Millisecond)
	resp, ok := sent.(*message.Response)
	if !ok || resp.Status != message.StatusTrying {
		t.Fatalf("auto-sent response = %+v, want 100 Trying", sent)
	}
}

func TestServerTransaction_ACKRejectedByBothMachines(t *testing.T) {
	t.Parallel()

	// Layer only ever routes an INVITE request to the IST constructor;
	// ACK goes to the NIST constructor, which rejects it outright — a
	// 2xx ACK never reaches transaction creation at all (the network
	// layer hands it straight to the TU, transport.Layer.dispatchRequest),
	// and a non-2xx ACK is absorbed by HandleRequestRetransmit on the
	// existing IST rather than by creating a new transaction.
	layer := transaction.NewLayer(fastTimings(true), newFakeTU(), nil, nil)
	req := testRequest(t, message.MethodACK, "z9hG4bK-ist-wrong-method")
	ch := newFakeChannel()

	_, err := layer.CreateServerTransaction(req, testTxID(req), ch, newFakeNetDelegate())
	if err == nil {
		t.Fatal("CreateServerTransaction(ACK) error = nil, want ErrWrongMethod")
	}
}
