// Package dialog implements the RFC 3261 dialog abstraction (spec §4.5):
// the peer-to-peer relationship an INVITE (or other dialog-forming
// request) establishes between two user agents, the sequencing state it
// carries, and the rules for building further requests inside it.
package dialog

import (
	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/randutil"
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/params"
	"github.com/new-neon/sippet/uri"

	"braces.dev/errtrace"
)

// ErrDialog is the sentinel every package-level error wraps.
const ErrDialog errs.Error = "dialog: error"

var (
	// ErrWrongMethod is returned by CreateRequest for ACK and CANCEL,
	// which have their own dedicated builders (spec §4.5).
	ErrWrongMethod = errs.Wrap(ErrDialog, "method must be built by its dedicated constructor")
	// ErrNotInvite is returned by CreateAck when handed a non-INVITE request.
	ErrNotInvite = errs.Wrap(ErrDialog, "ack requires the invite it acknowledges")
)

// State is one of the three states a dialog moves through.
type State int

const (
	// StateEarly is entered on a 1xx response carrying a To-tag (UAC)
	// or immediately on a request the UAS chooses to answer with one
	// (UAS).
	StateEarly State = iota
	// StateConfirmed is entered on a 2xx final response.
	StateConfirmed
	// StateTerminated is entered on a non-2xx final response, a BYE
	// 2xx, or a transport/timeout error; terminal.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateEarly:
		return "early"
	case StateConfirmed:
		return "confirmed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ID identifies a dialog, per RFC 3261 §12: a Call-ID plus the local
// and remote tags. The local tag at one UA is the remote tag at its
// peer, so the same dialog has a different ID on each side.
type ID struct {
	CallID    string
	LocalTag  string
	RemoteTag string
}

func (id ID) String() string {
	return id.CallID + ":" + id.LocalTag + ":" + id.RemoteTag
}

// Dialog is a single RFC 3261 dialog. It is not safe for concurrent
// use from multiple goroutines — spec §5 runs the whole stack
// single-threaded on one cooperative scheduler, so Dialog carries no
// lock of its own.
type Dialog struct {
	id    ID
	state State

	localSeq     uint32
	haveLocalSeq bool
	remoteSeq    uint32

	localURI     uri.URI
	remoteURI    uri.URI
	remoteTarget uri.URI
	secure       bool
	routeSet     []uri.URI
}

// ID returns the dialog's identifying triple.
func (d *Dialog) ID() ID { return d.id }

// State returns the dialog's current state.
func (d *Dialog) State() State { return d.state }

// LocalSeq returns the last local CSeq number allocated, and whether
// one has been allocated yet.
func (d *Dialog) LocalSeq() (uint32, bool) { return d.localSeq, d.haveLocalSeq }

// RemoteSeq returns the CSeq number of the last request received from the peer.
func (d *Dialog) RemoteSeq() uint32 { return d.remoteSeq }

// LocalURI returns the local party's address.
func (d *Dialog) LocalURI() uri.URI { return d.localURI }

// RemoteURI returns the remote party's address.
func (d *Dialog) RemoteURI() uri.URI { return d.remoteURI }

// RemoteTarget returns the address most recently learned from the
// peer's Contact header, updated on every target refresh.
func (d *Dialog) RemoteTarget() uri.URI { return d.remoteTarget }

// IsSecure reports whether the dialog was established over a sips: request-URI.
func (d *Dialog) IsSecure() bool { return d.secure }

// RouteSet returns the ordered list of servers a request inside this
// dialog must traverse, as derived at dialog creation; UpdateRouteSet
// does not change it. Stored as bare
// URIs: the original per-element display name and parameters carried
// by the Record-Route list are not part of what governs routing.
func (d *Dialog) RouteSet() []uri.URI { return d.routeSet }

// routeSetFrom strips a Record-Route list down to its URIs, reversing
// the order when reverse is set (the UAC derivation, spec §4.5).
func routeSetFrom(rr []header.NameAddr, reverse bool) []uri.URI {
	out := make([]uri.URI, len(rr))
	for i, na := range rr {
		j := i
		if reverse {
			j = len(rr) - 1 - i
		}
		out[j] = na.URI
	}
	return out
}

// NewUAC builds the dialog a UAC derives from the request it sent and
// a 1xx-or-2xx response carrying a To-tag (spec §4.5). Responses with
// no To-tag, or final responses that are not 2xx, do not create a
// dialog; callers must check for those before calling NewUAC.
func NewUAC(req *message.Request, resp *message.Response) (*Dialog, error) {
	from, ok := req.From()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no From"))
	}
	to, ok := resp.To()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "response has no To"))
	}
	remoteTag, _ := to.Tag()
	callID, ok := req.CallID()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no Call-ID"))
	}
	cseq, ok := req.CSeq()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no CSeq"))
	}
	contact, ok := resp.Contact()
	if !ok || contact.Star || len(contact.Elems) == 0 {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "response has no usable Contact"))
	}
	localTag, _ := from.Tag()

	state := StateConfirmed
	if resp.Status.IsProvisional() {
		state = StateEarly
	}
	sip, isSIP := req.URI.(*uri.SIP)

	return &Dialog{
		id:           ID{CallID: callID, LocalTag: localTag, RemoteTag: remoteTag},
		state:        state,
		localSeq:     cseq.Seq,
		haveLocalSeq: true,
		localURI:     from.URI,
		remoteURI:    to.URI,
		remoteTarget: contact.Elems[0].URI,
		secure:       isSIP && sip.Secured,
		routeSet:     routeSetFrom(resp.RecordRoutes(), true),
	}, nil
}

// NewUAS builds the dialog a UAS derives from the request it accepts
// and the response it answers with (spec §4.5). Unlike NewUAC, no
// local CSeq exists yet — the first one is allocated lazily by
// nextLocalSeq on the dialog's first outgoing in-dialog request.
func NewUAS(req *message.Request, resp *message.Response) (*Dialog, error) {
	from, ok := req.From()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no From"))
	}
	to, ok := resp.To()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "response has no To"))
	}
	localTag, _ := to.Tag()
	if localTag == "" {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "response To has no local tag"))
	}
	callID, ok := req.CallID()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no Call-ID"))
	}
	cseq, ok := req.CSeq()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no CSeq"))
	}
	contact, ok := req.Contact()
	if !ok || contact.Star || len(contact.Elems) == 0 {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "request has no usable Contact"))
	}
	remoteTag, _ := from.Tag()

	state := StateConfirmed
	if resp.Status.IsProvisional() {
		state = StateEarly
	}
	sip, isSIP := req.URI.(*uri.SIP)

	return &Dialog{
		id:           ID{CallID: callID, LocalTag: localTag, RemoteTag: remoteTag},
		state:        state,
		remoteSeq:    cseq.Seq,
		localURI:     to.URI,
		remoteURI:    from.URI,
		remoteTarget: contact.Elems[0].URI,
		secure:       isSIP && sip.Secured,
		routeSet:     routeSetFrom(req.RecordRoutes(), false),
	}, nil
}

// Confirm moves an Early dialog to Confirmed, on receipt of the 2xx
// that answers the original INVITE. A no-op from any other state.
func (d *Dialog) Confirm() {
	if d.state == StateEarly {
		d.state = StateConfirmed
	}
}

// Terminate moves the dialog to Terminated: on a non-2xx final
// response, a BYE 2xx, or a transport/timeout error (spec §4.5).
// Idempotent.
func (d *Dialog) Terminate() {
	d.state = StateTerminated
}

// UpdateRemoteSeq records the CSeq of a request just received from the
// peer; callers are expected to have already rejected an out-of-order
// request (a CSeq not greater than the previous one) before calling
// this, per RFC 3261 §12.2.2.
func (d *Dialog) UpdateRemoteSeq(seq uint32) { d.remoteSeq = seq }

// UpdateRouteSet applies a target refresh (a re-INVITE or UPDATE that
// successfully completes) to the dialog's remote target: the first
// Contact of answer, or failing that the first Contact of refresh. The
// route-set is not touched; a Record-Route carried by the refresh or
// its answer is ignored.
func (d *Dialog) UpdateRouteSet(refresh *message.Request, answer *message.Response) {
	if contact, ok := answer.Contact(); ok && !contact.Star && len(contact.Elems) > 0 {
		d.remoteTarget = contact.Elems[0].URI
	} else if contact, ok := refresh.Contact(); ok && !contact.Star && len(contact.Elems) > 0 {
		d.remoteTarget = contact.Elems[0].URI
	}
}

// nextLocalSeq allocates the dialog's next local CSeq number: a random
// 16-bit seed on first use, then a straight increment (spec §4.5,
// RFC 3261 §12.1).
func (d *Dialog) nextLocalSeq() uint32 {
	if !d.haveLocalSeq {
		d.localSeq = randutil.Seq16()
		d.haveLocalSeq = true
		return d.localSeq
	}
	d.localSeq++
	return d.localSeq
}

// CreateRequest builds a new in-dialog request for method, allocating
// a fresh local CSeq. ACK and CANCEL are rejected: ACK-for-2xx has its
// own CSeq rule (see CreateAck) and ACK-for-non-2xx is built
// automatically by the ICT; CANCEL must be built from the request it
// cancels, not from the dialog.
func (d *Dialog) CreateRequest(method message.RequestMethod) (*message.Request, error) {
	if method == message.MethodACK || method == message.MethodCANCEL {
		return nil, errtrace.Wrap(errs.Wrap(ErrWrongMethod, "%s", method))
	}
	return d.buildRequest(method, d.nextLocalSeq()), nil
}

// CreateAck builds the ACK for a 2xx response to invite: same CSeq
// number as the INVITE (not incremented, RFC 3261 §13.2.2.4), carrying
// any credentials the INVITE itself carried. ACK for a non-2xx
// response is not built here — the ICT that sent the INVITE builds
// and retransmits that one internally (spec §4.4.1).
func (d *Dialog) CreateAck(invite *message.Request) (*message.Request, error) {
	if invite.Method != message.MethodINVITE {
		return nil, errtrace.Wrap(ErrNotInvite)
	}
	cseq, ok := invite.CSeq()
	if !ok {
		return nil, errtrace.Wrap(errs.Wrap(ErrDialog, "invite has no CSeq"))
	}
	ack := d.buildRequest(message.MethodACK, cseq.Seq)
	hdrs := ack.Headers()
	if vias := invite.Vias(); len(vias) > 0 {
		hdrs.Add(&header.Via{Hops: []header.ViaHop{vias[0]}})
	}
	for _, name := range []header.Name{"Authorization", "Proxy-Authorization"} {
		for _, h := range invite.Headers().Get(string(name)) {
			hdrs.Add(h.Clone())
		}
	}
	return ack, nil
}

// buildRequest assembles the common header set every in-dialog
// request shares, per spec §4.5's "request construction" rules.
func (d *Dialog) buildRequest(method message.RequestMethod, seq uint32) *message.Request {
	reqURI, route := d.routingFor()
	req := message.NewRequest(method, reqURI)
	hdrs := req.Headers()

	hdrs.Add(&header.Integer{Name: "Max-Forwards", Value: 70})

	from := &header.From{NameAddr: header.NameAddr{URI: d.localURI.Clone(), Params: params.New()}}
	if d.id.LocalTag != "" {
		from.Params.Set("tag", d.id.LocalTag)
	}
	hdrs.Add(from)

	to := &header.To{NameAddr: header.NameAddr{URI: d.remoteURI.Clone(), Params: params.New()}}
	if d.id.RemoteTag != "" {
		to.Params.Set("tag", d.id.RemoteTag)
	}
	hdrs.Add(to)

	hdrs.Add(&header.Token{Name: "Call-ID", Value: d.id.CallID})
	hdrs.Add(&header.CSeq{Seq: seq, Method: string(method)})
	if route != nil {
		hdrs.Add(route)
	}
	return req
}

// routingFor computes the request-URI and optional Route header for a
// new in-dialog request, per spec §4.5's loose/strict-router rules:
//   - empty route-set: request-URI = remote-target, no Route.
//   - first route carries ;lr: request-URI = remote-target, Route =
//     route-set as is.
//   - first route lacks ;lr (strict-router peer): request-URI = first
//     route, Route = rest of the route-set with remote-target appended.
func (d *Dialog) routingFor() (uri.URI, *header.AddrList) {
	if len(d.routeSet) == 0 {
		return d.remoteTarget.Clone(), nil
	}

	first := d.routeSet[0]
	looseRouter := false
	if sip, ok := first.(*uri.SIP); ok {
		looseRouter = sip.LR()
	}

	route := &header.AddrList{Name: "Route"}
	if looseRouter {
		for _, u := range d.routeSet {
			route.Elems = append(route.Elems, header.NameAddr{URI: u.Clone(), Params: params.New()})
		}
		return d.remoteTarget.Clone(), route
	}

	for _, u := range d.routeSet[1:] {
		route.Elems = append(route.Elems, header.NameAddr{URI: u.Clone(), Params: params.New()})
	}
	route.Elems = append(route.Elems, header.NameAddr{URI: d.remoteTarget.Clone(), Params: params.New()})
	return first.Clone(), route
}
