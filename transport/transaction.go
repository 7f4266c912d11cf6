package transport

import "github.com/new-neon/sippet/message"

// TxID identifies a transaction the way spec's matching rules do: by
// topmost Via branch, the sent-by of that Via, and the request
// method the transaction was created for (server transactions key ACK
// against the method of the request that started the transaction,
// per the ACK-for-2xx special case).
type TxID struct {
	Branch string
	SentBy string
	Method string
}

// ClientTx is the network layer's view of a client transaction: it
// forwards inbound responses and asks for termination.
type ClientTx interface {
	ID() TxID
	HandleResponse(resp *message.Response)
	HandleTransportError(err error)
}

// ServerTx is the network layer's view of a server transaction.
type ServerTx interface {
	ID() TxID
	HandleRequestRetransmit(req *message.Request)
	HandleTransportError(err error)
}

// TxDelegate is implemented by the network layer and notified when a
// transaction the Layer is tracking terminates, so it can release the
// ChannelContext's hold on it.
type TxDelegate interface {
	OnTransactionTerminated(id TxID)
}

// TxFactory is supplied by the transaction layer so the network layer
// can create transactions without importing it; swappable in tests.
// The request is the one that started the transaction (the INVITE or
// other method for a client transaction; the request that missed the
// server table for a server transaction) — the transaction needs it
// in full to retransmit or to build its automatic 100 Trying.
type TxFactory interface {
	CreateClientTransaction(req *message.Request, id TxID, ch Channel, delegate TxDelegate) (ClientTx, error)
	CreateServerTransaction(req *message.Request, id TxID, ch Channel, delegate TxDelegate) (ServerTx, error)
}
