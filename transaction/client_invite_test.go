package transaction_test

import (
	"testing"
	"time"

	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transaction"
)

func TestClientInvite_Accepted(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	metrics := &fakeMetrics{}
	layer := transaction.NewLayer(timings, tu, metrics, nil)

	req := testInvite(t, "z9hG4bK-ict-accepted")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	tx, err := layer.CreateClientTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateClientTransaction() error = %v", err)
	}

	if sent := ch.waitSend(t, 100*time.Millisecond); sent != message.Message(req) {
		t.Fatalf("initial send = %+v, want the INVITE", sent)
	}

	ringing := responseFor(req, message.StatusRinging)
	tx.HandleResponse(ringing)
	if got := tu.waitProvisional(t, 100*time.Millisecond); got != ringing {
		t.Fatalf("OnProvisional response = %+v, want ringing", got)
	}

	ok := responseFor(req, message.StatusOK)
	tx.HandleResponse(ok)
	if got := tu.waitFinal(t, 100*time.Millisecond); got != ok {
		t.Fatalf("OnFinal response = %+v, want 200 OK", got)
	}

	// A 2xx terminates the ICT immediately (RFC 3261 S. 17.1.1.2); no ACK
	// is sent by the transaction layer itself for a 2xx.
	net.waitTerminated(t, 100*time.Millisecond)
	ch.ensureNoSend(t, 20*time.Millisecond)

	if got, want := metrics.lastTermination(), transaction.ReasonTerminated; got != want {
		t.Errorf("metrics termination reason = %q, want %q", got, want)
	}
}

func TestClientInvite_Rejected_SendsAndRetransmitsAck(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	layer := transaction.NewLayer(timings, tu, nil, nil)

	req := testInvite(t, "z9hG4bK-ict-rejected")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	tx, err := layer.CreateClientTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateClientTransaction() error = %v", err)
	}
	ch.waitSend(t, 100*time.Millisecond)

	decline := responseFor(req, message.StatusDecline)
	tx.HandleResponse(decline)

	if got := tu.waitFinal(t, 100*time.Millisecond); got != decline {
		t.Fatalf("OnFinal response = %+v, want 603 Decline", got)
	}
	ack := ch.waitSend(t, 100*time.Millisecond)
	ackReq, ok := ack.(*message.Request)
	if !ok || ackReq.Method != message.MethodACK {
		t.Fatalf("send after 603 = %+v, want an ACK", ack)
	}

	// A retransmitted 603 must re-send the same ACK without bothering the TU again.
	tx.HandleResponse(decline.Clone().(*message.Response))
	retransmit := ch.waitSend(t, 100*time.Millisecond)
	if retransmit.(*message.Request).Method != message.MethodACK {
		t.Fatalf("retransmit send = %+v, want another ACK", retransmit)
	}
	select {
	case r := <-tu.final:
		t.Fatalf("unexpected second OnFinal: %+v", r)
	default:
	}

	net.waitTerminated(t, timings.T4*10)
}

func TestClientInvite_Timeout(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	metrics := &fakeMetrics{}
	layer := transaction.NewLayer(timings, tu, metrics, nil)

	req := testInvite(t, "z9hG4bK-ict-timeout")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	if _, err := layer.CreateClientTransaction(req, id, ch, net); err != nil {
		t.Fatalf("CreateClientTransaction() error = %v", err)
	}
	ch.waitSend(t, 100*time.Millisecond)

	err := tu.waitTransportErr(t, timings.T1*100)
	if err != transaction.ErrTimedOut {
		t.Errorf("OnTransportError err = %v, want ErrTimedOut", err)
	}
	net.waitTerminated(t, 100*time.Millisecond)

	if got, want := metrics.lastTermination(), transaction.ReasonTimedOut; got != want {
		t.Errorf("metrics termination reason = %q, want %q", got, want)
	}
}

func TestClientInvite_RetransmitsRequestUntilProceeding(t *testing.T) {
	t.Parallel()

	timings := fastTimings(false)
	tu := newFakeTU()
	metrics := &fakeMetrics{}
	layer := transaction.NewLayer(timings, tu, metrics, nil)

	req := testInvite(t, "z9hG4bK-ict-retransmit")
	ch := newFakeChannel()
	net := newFakeNetDelegate()
	id := testTxID(req)

	tx, err := layer.CreateClientTransaction(req, id, ch, net)
	if err != nil {
		t.Fatalf("CreateClientTransaction() error = %v", err)
	}
	ch.waitSend(t, 100*time.Millisecond)
	ch.waitSend(t, timings.T1*10)

	if metrics.retransmitCount() < 1 {
		t.Errorf("retransmitCount() = %d, want at least 1", metrics.retransmitCount())
	}

	// Answer it so no background retransmit/timeout timer outlives the test.
	tx.HandleResponse(responseFor(req, message.StatusOK))
	net.waitTerminated(t, 100*time.Millisecond)
}

func TestClientTransaction_ACKRejectedByBothMachines(t *testing.T) {
	t.Parallel()

	// Layer only ever routes an INVITE request to the ICT constructor;
	// every other method (including ACK) goes to the NICT constructor,
	// which rejects ACK just as the ICT constructor would have.
	layer := transaction.NewLayer(fastTimings(true), newFakeTU(), nil, nil)
	req := testRequest(t, message.MethodACK, "z9hG4bK-ack-not-a-transaction")
	ch := newFakeChannel()

	_, err := layer.CreateClientTransaction(req, testTxID(req), ch, newFakeNetDelegate())
	if err == nil {
		t.Fatal("CreateClientTransaction(ACK) error = nil, want ErrWrongMethod")
	}
	ch.ensureNoSend(t, 20*time.Millisecond)
}
