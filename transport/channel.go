package transport

import "github.com/new-neon/sippet/message"

// Channel is a transport-agnostic duplex carrier of messages to one
// peer. The core never implements one directly (concrete UDP/TCP/TLS
// sockets are an external collaborator, per spec's Non-goals); it only
// calls through this interface.
type Channel interface {
	// Connect begins an asynchronous connection attempt; completion
	// is reported via the delegate's OnChannelConnected.
	Connect() error
	// Send enqueues m for transmission; completion is reported via the
	// delegate's OnSendComplete with the same handle.
	Send(m message.Message) (SendHandle, error)
	Close() error
	CloseWithError(err error) error
	// DetachDelegate drops the core's callback target; must be called
	// before a Channel that outlives the core is discarded.
	DetachDelegate()

	Origin() EndPoint
	Destination() EndPoint
	IsSecure() bool
	IsConnected() bool
}

// SendHandle identifies one in-flight Send call for matching against
// its later completion callback.
type SendHandle uint64

// Delegate receives callbacks from a Channel. The network layer
// implements this and passes itself to every Channel it creates.
type Delegate interface {
	OnChannelConnected(ch Channel, err error)
	OnIncomingMessage(ch Channel, m message.Message)
	OnChannelClosed(ch Channel, err error)
	OnSendComplete(ch Channel, handle SendHandle, err error)
}

// ChannelFactory creates a Channel for one wire protocol. Factories
// are borrowed by the Layer, never owned.
type ChannelFactory interface {
	CreateChannel(destination EndPoint, delegate Delegate) (Channel, error)
}
