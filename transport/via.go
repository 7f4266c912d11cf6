package transport

import (
	"strings"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/params"
	"github.com/new-neon/sippet/uri"
)

func newParams() *params.Params { return params.New() }

// mustAddr converts a transport EndPoint (the channel's local origin)
// into a uri.Addr suitable for a Via sent-by.
func mustAddr(e EndPoint) uri.Addr {
	return uri.HostPort(e.Host, e.Port)
}

// prependVia adds hop to the top of req's Via list, creating the
// header if req has none yet.
func prependVia(req *message.Request, hop header.ViaHop) {
	hdrs := req.Headers()
	if v, ok := hdrs.First("Via"); ok {
		via := v.(*header.Via)
		via.Hops = append([]header.ViaHop{hop}, via.Hops...)
		return
	}
	hdrs.Add(&header.Via{Hops: []header.ViaHop{hop}})
}

// requestEndPoint computes the destination endpoint for an outbound
// request: request-URI host/port, honoring an explicit "transport"
// URI parameter, else defaulting per scheme (sip->UDP, sips->TLS).
func requestEndPoint(req *message.Request) (EndPoint, Protocol) {
	proto := UDP

	var host string
	var port uint16
	if sip, ok := req.URI.(*uri.SIP); ok {
		if sip.Secured {
			proto = TLS
		}
		host = sip.Addr.Host
		port = sip.Addr.PortOrDefault(0)
		if tp, ok := sip.Transport(); ok && tp != "" {
			proto = Protocol(strings.ToUpper(tp))
		}
	}
	if port == 0 {
		port = proto.DefaultPort()
	}
	return EndPoint{Host: host, Port: port, Protocol: proto}, proto
}

// responseEndPoint derives the destination for a response from its
// topmost Via: received/rport take precedence over sent-by.
func responseEndPoint(top header.ViaHop) EndPoint {
	proto := Protocol(strings.ToUpper(top.Transport))

	host := top.Addr.Host
	if received, ok := top.Received(); ok && received != "" {
		host = received
	}

	port := top.Addr.PortOrDefault(proto.DefaultPort())
	if rport, ok := top.RPort(); ok && rport != 0 {
		port = rport
	}

	return EndPoint{Host: host, Port: port, Protocol: proto}
}
