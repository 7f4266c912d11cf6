package transaction

import (
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transport"
)

// Delegate is the TU-facing contract: whoever asks a [Layer] to create
// a transaction receives its upward events through this interface —
// the "pass up" and "TU decides" language of spec S. 4.4 made
// concrete. A dialog or stateful-proxy layer implements it; Layer
// itself only needs transport.TxDelegate to talk back to the network
// layer below.
type Delegate interface {
	// OnProvisional is called for each 1xx a client transaction passes
	// up (ICT/NICT Proceeding).
	OnProvisional(id transport.TxID, resp *message.Response)
	// OnFinal is called once with the final response a client
	// transaction receives, on its transition to Terminated (ICT 2xx)
	// or to Completed (ICT 3xx-6xx and every NICT final).
	OnFinal(id transport.TxID, resp *message.Response)
	// OnRequest is called once, synchronously from the constructor,
	// with the request that started a new server transaction.
	OnRequest(id transport.TxID, req *message.Request)
	// OnAck is called when an IST receives the ACK that confirms it
	// (Completed -> Confirmed); 2xx ACKs never reach a server
	// transaction (spec S. 4.4.3) and so never produce this call.
	OnAck(id transport.TxID, req *message.Request)
	// OnTransportError reports a channel-level send failure (spec S.
	// 4.4 "Failure"), or ErrTimedOut when Timer B/F/H fires; the
	// transaction is terminating when it is called.
	OnTransportError(id transport.TxID, err error)
	// OnTerminated mirrors transport.TxDelegate.OnTransactionTerminated
	// for the TU's own bookkeeping.
	OnTerminated(id transport.TxID)
}
