package transport

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/internal/callback"
	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/randutil"
	"github.com/new-neon/sippet/log"
	"github.com/new-neon/sippet/message"
)

// ErrTransport is the sentinel every Layer-level error wraps.
const ErrTransport errs.Error = "transport: error"

var (
	// ErrNoRoute names the case of a response that matches no
	// ChannelContext and cannot be sent directly. No Layer method
	// returns it: sendResponse opens a context for the Via destination
	// instead.
	ErrNoRoute = errs.Wrap(ErrTransport, "no route to destination")
	// ErrSuspended is returned by Send while the Layer is suspended.
	ErrSuspended = errs.Wrap(ErrTransport, "transport layer suspended")
	// ErrInFlight is the duplicate-destination guard from spec S. 7.
	ErrInFlight = errs.Wrap(ErrTransport, "initial request already in flight to this destination")
	// ErrUnsupportedProtocol is returned when no factory is registered
	// for a message's resolved protocol.
	ErrUnsupportedProtocol = errs.Wrap(ErrTransport, "unsupported protocol")
	// ErrAliasProtocolMismatch is returned by AddAlias when primary and
	// alias name different protocols.
	ErrAliasProtocolMismatch = errs.Wrap(ErrTransport, "alias protocol differs from primary")
)

// Resolver turns a symbolic hostname into a literal address. It is the
// collaborator the [resolver] package implements; a nil Resolver means
// hosts are used as-is (already-literal IPs, or left to the OS
// stack's own resolution inside the Channel).
type Resolver interface {
	ResolveHost(host string, proto Protocol) (string, error)
}

// Config carries the timer and policy knobs spec S. 6 names.
type Config struct {
	T1, T2, T4 time.Duration
	// IdleChannelTimeout defaults to 64*T1 when zero.
	IdleChannelTimeout time.Duration
	// ReliableTransports is the set of reliable protocols; defaults to
	// TCP, TLS, SCTP. Layer fills in the default but never reads it:
	// transactions take their Timer D/I/J/K behaviour from
	// transaction.Timings.Reliable.
	ReliableTransports map[Protocol]bool
	EnforceRFC3261Branch bool
	Resolver             Resolver
	Metrics              Metrics
	Logger               *slog.Logger
}

// Metrics is the nil-safe recorder hook the network layer calls into;
// see metrics.Recorder for the concrete Prometheus-backed
// implementation.
type Metrics interface {
	ChannelContextOpened(proto Protocol)
	ChannelContextClosed(proto Protocol)
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.T1 <= 0 {
		out.T1 = 500 * time.Millisecond
	}
	if out.T2 <= 0 {
		out.T2 = 4 * time.Second
	}
	if out.T4 <= 0 {
		out.T4 = 5 * time.Second
	}
	if out.IdleChannelTimeout <= 0 {
		out.IdleChannelTimeout = 64 * out.T1
	}
	if out.ReliableTransports == nil {
		out.ReliableTransports = map[Protocol]bool{TCP: true, TLS: true, SCTP: true}
	}
	if out.Logger == nil {
		out.Logger = log.Noop
	}
	return &out
}

// Layer is the network layer: it owns channels keyed by EndPoint,
// refcounts and idle-times them, stamps Via headers, and routes
// inbound messages to transactions or to the application delegate.
// Every exported method, and every callback Layer receives from a
// Channel or a timer, is documented to run on one logical task runner
// (spec S. 5); Layer itself only provides the mutex needed to make
// that safe when the embedding program does not honor it strictly.
type Layer struct {
	cfg *Config

	mu        sync.Mutex
	factories map[Protocol]ChannelFactory
	contexts  map[EndPoint]*channelContext
	aliases   map[EndPoint]EndPoint
	clientTxs map[TxID]ClientTx
	serverTxs map[TxID]ServerTx
	suspended bool

	txFactory TxFactory
	delegates callback.Manager[Delegate]
}

// NewLayer builds a Layer from cfg (nil uses all defaults).
func NewLayer(cfg *Config, txFactory TxFactory) *Layer {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Layer{
		cfg:       cfg.withDefaults(),
		factories: make(map[Protocol]ChannelFactory),
		contexts:  make(map[EndPoint]*channelContext),
		aliases:   make(map[EndPoint]EndPoint),
		clientTxs: make(map[TxID]ClientTx),
		serverTxs: make(map[TxID]ServerTx),
		txFactory: txFactory,
	}
}

// RegisterChannelFactory installs factory for proto.
func (l *Layer) RegisterChannelFactory(proto Protocol, factory ChannelFactory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[proto] = factory
}

// AddDelegate registers an application delegate; returns a function
// that unregisters it. Multiple delegates may be registered, matching
// original_source's ObserverList (see SPEC_FULL.md S. 4.3).
func (l *Layer) AddDelegate(d Delegate) (remove func()) {
	return l.delegates.Add(d)
}

// resolveEndPoint finds the primary EndPoint for e, following the
// alias map.
func (l *Layer) resolveEndPoint(e EndPoint) EndPoint {
	if primary, ok := l.aliases[e]; ok {
		return primary
	}
	return e
}

// AddAlias registers that messages observed from alias belong to
// primary's ChannelContext. Fails if the two name different
// protocols.
func (l *Layer) AddAlias(primary, alias EndPoint) error {
	if primary.Protocol != alias.Protocol {
		return errtrace.Wrap(ErrAliasProtocolMismatch)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aliases[alias] = primary
	return nil
}

// RequestChannel pins the ChannelContext for endpoint, cancelling its
// idle timer. Returns false if no context currently exists.
func (l *Layer) RequestChannel(endpoint EndPoint) bool {
	l.mu.Lock()
	cc, ok := l.contexts[l.resolveEndPoint(endpoint)]
	l.mu.Unlock()
	if !ok {
		return false
	}
	cc.pin()
	return true
}

// ReleaseChannel unpins the ChannelContext for endpoint; if this
// drops its refcount to zero with no active transactions, its idle
// timer is armed.
func (l *Layer) ReleaseChannel(endpoint EndPoint) {
	l.mu.Lock()
	cc, ok := l.contexts[l.resolveEndPoint(endpoint)]
	l.mu.Unlock()
	if ok {
		cc.unpin()
	}
}

// Suspend flags the layer; outbound Send calls fail with ErrSuspended
// until Resume, and existing channels are closed.
func (l *Layer) Suspend() {
	l.mu.Lock()
	l.suspended = true
	ctxs := make([]*channelContext, 0, len(l.contexts))
	for _, cc := range l.contexts {
		ctxs = append(ctxs, cc)
	}
	l.contexts = make(map[EndPoint]*channelContext)
	l.mu.Unlock()

	for _, cc := range ctxs {
		_ = cc.ch.Close()
	}
}

// Resume clears the suspended flag; a fresh ChannelContext will be
// created lazily on the next Send.
func (l *Layer) Resume() {
	l.mu.Lock()
	l.suspended = false
	l.mu.Unlock()
}

// Send routes m: for a Request, computes the destination endpoint,
// gets-or-creates a ChannelContext, stamps a Via, creates a client
// transaction, and hands the message to the channel; for a Response,
// the destination is derived from the topmost Via and the response is
// written directly to that destination's channel, without consulting
// any server transaction.
func (l *Layer) Send(m message.Message) error {
	l.mu.Lock()
	suspended := l.suspended
	l.mu.Unlock()
	if suspended {
		return errtrace.Wrap(ErrSuspended)
	}

	switch v := m.(type) {
	case *message.Request:
		return errtrace.Wrap(l.sendRequest(v))
	case *message.Response:
		return errtrace.Wrap(l.sendResponse(v))
	default:
		return errtrace.Wrap(errs.Wrap(ErrTransport, "unknown message type %T", m))
	}
}

func (l *Layer) sendRequest(req *message.Request) error {
	dest, proto := requestEndPoint(req)
	if l.cfg.Resolver != nil {
		if ip, err := l.cfg.Resolver.ResolveHost(dest.Host, proto); err == nil {
			dest.Host = ip
		}
	}

	cc, err := l.getOrCreateContext(dest)
	if err != nil {
		return errtrace.Wrap(err)
	}

	// ACK for a 2xx is the one request RFC 3261 S. 13.2.2.4/17.1.1.3
	// hands straight to the transport layer: the INVITE client
	// transaction already terminated on the 2xx it acks, so there is
	// no transaction left to own it, and the dialog layer stamped its
	// own Via (it reuses the INVITE's). Every other request creates a
	// fresh client transaction below.
	if req.Method == message.MethodACK {
		_, err := cc.ch.Send(req)
		return errtrace.Wrap(err)
	}

	via := header.ViaHop{
		ProtoName:    "SIP", ProtoVersion: "2.0",
		Transport: string(dest.Protocol),
		Addr:      mustAddr(cc.ch.Origin()),
		Params:    newParams(),
	}
	branch := randutil.Branch()
	via.Params.Set("branch", branch)
	via.Params.SetFlag("rport")
	prependVia(req, via)

	id := TxID{Branch: branch, SentBy: via.Addr.String(), Method: string(req.Method)}
	tx, err := l.txFactory.CreateClientTransaction(req, id, cc.ch, l)
	if err != nil {
		return errtrace.Wrap(err)
	}
	l.mu.Lock()
	l.clientTxs[id] = tx
	l.mu.Unlock()
	cc.addTx(id)

	_, err = cc.ch.Send(req)
	return errtrace.Wrap(err)
}

func (l *Layer) sendResponse(resp *message.Response) error {
	vias := resp.Vias()
	if len(vias) == 0 {
		return errtrace.Wrap(errs.Wrap(ErrTransport, "response has no Via"))
	}
	top := vias[0]

	// A response still owned by a live server transaction is written
	// by that transaction directly (it controls Completed-state
	// retransmit absorption); Layer.Send only covers the stateless /
	// stray-retransmission path spec S. 4.3 names.
	dest := responseEndPoint(top)
	cc, err := l.getOrCreateContext(dest)
	if err != nil {
		return errtrace.Wrap(err)
	}
	_, err = cc.ch.Send(resp)
	return errtrace.Wrap(err)
}

func (l *Layer) getOrCreateContext(dest EndPoint) (*channelContext, error) {
	dest = l.resolveEndPoint(dest)

	l.mu.Lock()
	if cc, ok := l.contexts[dest]; ok {
		l.mu.Unlock()
		if cc.isConnecting() {
			return nil, errtrace.Wrap(ErrInFlight)
		}
		return cc, nil
	}
	if l.contexts == nil {
		l.contexts = make(map[EndPoint]*channelContext)
	}
	factory, ok := l.factories[dest.Protocol]
	if !ok {
		l.mu.Unlock()
		return nil, errtrace.Wrap(ErrUnsupportedProtocol)
	}
	// Reserve dest, marked connecting, before releasing the lock: a
	// concurrent Send to the same destination must see the in-flight
	// guard rather than race this call's own CreateChannel/Connect
	// (spec S. 7's InFlightToSameDestination).
	cc := &channelContext{connecting: true}
	l.contexts[dest] = cc
	l.mu.Unlock()

	ch, err := factory.CreateChannel(dest, l)
	if err != nil {
		l.mu.Lock()
		delete(l.contexts, dest)
		l.mu.Unlock()
		return nil, errtrace.Wrap(err)
	}

	cc.mu.Lock()
	cc.init(ch, l.cfg.IdleChannelTimeout, func() { l.expireContext(dest) })
	cc.mu.Unlock()
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.ChannelContextOpened(dest.Protocol)
	}

	err = ch.Connect()
	cc.endConnecting()
	if err != nil {
		l.mu.Lock()
		delete(l.contexts, dest)
		l.mu.Unlock()
		return nil, errtrace.Wrap(err)
	}
	return cc, nil
}

func (l *Layer) expireContext(dest EndPoint) {
	l.mu.Lock()
	cc, ok := l.contexts[dest]
	if ok && cc.quiet() {
		delete(l.contexts, dest)
	} else {
		ok = false
	}
	l.mu.Unlock()
	if ok {
		_ = cc.ch.Close()
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.ChannelContextClosed(dest.Protocol)
		}
	}
}

// OnTransactionTerminated implements transport.TxDelegate: it removes
// the transaction's bookkeeping and releases its ChannelContext's
// hold on it.
func (l *Layer) OnTransactionTerminated(id TxID) {
	l.mu.Lock()
	delete(l.clientTxs, id)
	delete(l.serverTxs, id)
	contexts := make([]*channelContext, 0, len(l.contexts))
	for _, cc := range l.contexts {
		contexts = append(contexts, cc)
	}
	l.mu.Unlock()
	for _, cc := range contexts {
		cc.removeTx(id)
	}
}

// --- transport.Delegate (Channel callbacks) ---

func (l *Layer) OnChannelConnected(ch Channel, err error) {
	if err != nil {
		l.cfg.Logger.Warn("channel connect failed", "destination", ch.Destination(), "error", err)
	}
}

func (l *Layer) OnIncomingMessage(ch Channel, m message.Message) {
	switch v := m.(type) {
	case *message.Response:
		l.dispatchResponse(v)
	case *message.Request:
		l.dispatchRequest(ch, v)
	}
}

func (l *Layer) OnChannelClosed(ch Channel, err error) {
	l.delegates.Range(func(d Delegate) { d.OnChannelClosed(ch, err) })
}

func (l *Layer) OnSendComplete(ch Channel, handle SendHandle, err error) {
	if err != nil {
		l.cfg.Logger.Debug("send failed", "destination", ch.Destination(), "error", err)
	}
}

func (l *Layer) dispatchResponse(resp *message.Response) {
	vias := resp.Vias()
	if len(vias) == 0 {
		return
	}
	top := vias[0]
	branch, _ := top.Branch()
	cseqMethod := ""
	if cseq, ok := resp.CSeq(); ok {
		cseqMethod = cseq.Method
	}
	id := TxID{Branch: branch, SentBy: top.Addr.String(), Method: cseqMethod}

	l.mu.Lock()
	tx, ok := l.clientTxs[id]
	l.mu.Unlock()
	if ok {
		tx.HandleResponse(resp)
	}
	// No matching client transaction: per spec S. 4.3, a response with
	// no match is a stray retransmission and is simply dropped here.
}

func (l *Layer) dispatchRequest(ch Channel, req *message.Request) {
	vias := req.Vias()
	var branch, sentBy string
	hasCookie := false
	if len(vias) > 0 {
		branch, _ = vias[0].Branch()
		sentBy = vias[0].Addr.String()
		hasCookie = strings.HasPrefix(branch, randutil.BranchMagicCookie)
	}

	method := string(req.Method)
	if req.Method == message.MethodACK {
		method = string(message.MethodINVITE)
	}
	id := TxID{Branch: branch, SentBy: sentBy, Method: method}

	if hasCookie {
		l.mu.Lock()
		tx, ok := l.serverTxs[id]
		l.mu.Unlock()
		if ok {
			tx.HandleRequestRetransmit(req)
			return
		}
	}

	if req.Method == message.MethodACK {
		// ACK for a 2xx: the INVITE server transaction it would have
		// matched already terminated (2xx retransmission is the TU's
		// job, spec S. 4.4.3), so there is no transaction left to
		// absorb it into; pass it straight to the delegate.
		l.delegates.Range(func(d Delegate) { d.OnIncomingMessage(ch, req) })
		return
	}

	// RFC 2543 fallback matching (From-tag, Call-ID, CSeq, To without
	// tag, request-URI, topmost Via) is not attempted: every server
	// transaction this layer creates is keyed by an RFC 3261 branch, so
	// a non-cookie request always misses here and falls through to
	// transaction creation below, same as a cookie miss.
	if l.txFactory != nil {
		tx, err := l.txFactory.CreateServerTransaction(req, id, ch, l)
		if err != nil {
			l.cfg.Logger.Warn("server transaction creation failed", "error", err)
		} else {
			l.mu.Lock()
			l.serverTxs[id] = tx
			cc, ok := l.contexts[l.resolveEndPoint(ch.Destination())]
			l.mu.Unlock()
			if ok {
				cc.addTx(id)
			}
		}
	}

	l.delegates.Range(func(d Delegate) { d.OnIncomingMessage(ch, req) })
}
