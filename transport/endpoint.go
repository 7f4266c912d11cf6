// Package transport owns channels keyed by peer endpoint, routes
// messages to transactions or to the application delegate, stamps Via
// headers, and applies idle-timeout/refcount lifecycle to channel
// contexts. It specifies, but does not implement, the concrete
// socket-level Channel — that is left to a registered
// [ChannelFactory] per wire protocol.
package transport

import (
	"strconv"
	"strings"
)

// Protocol is a wire transport protocol.
type Protocol string

const (
	UDP  Protocol = "UDP"
	TCP  Protocol = "TCP"
	TLS  Protocol = "TLS"
	SCTP Protocol = "SCTP"
	WS   Protocol = "WS"
	WSS  Protocol = "WSS"
)

// DefaultPort returns the well-known port for p, per RFC 3261 S. 18.1.
func (p Protocol) DefaultPort() uint16 {
	switch p {
	case TLS, WSS:
		return 5061
	default:
		return 5060
	}
}

// IsReliable reports whether p is a stream-oriented, congestion
// controlled transport (TCP, TLS, SCTP, WS, WSS) as opposed to UDP.
func (p Protocol) IsReliable() bool { return p != UDP }

// EndPoint is a (host, port, protocol) triple, used as the transport
// layer's channel map key. Equality is case-insensitive on host per
// spec.
type EndPoint struct {
	Host     string
	Port     uint16
	Protocol Protocol
}

// Equal reports whether e and other name the same peer.
func (e EndPoint) Equal(other EndPoint) bool {
	return strings.EqualFold(e.Host, other.Host) &&
		e.Port == other.Port &&
		e.Protocol == other.Protocol
}

func (e EndPoint) String() string {
	return string(e.Protocol) + " " + e.Host + ":" + strconv.Itoa(int(e.Port))
}
