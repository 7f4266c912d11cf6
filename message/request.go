package message

import (
	"io"
	"slices"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/uri"
)

// reqMandatoryHeaders are the headers RFC 3261 S. 8.1.1 requires on
// every request; Validate checks each is present exactly once.
var reqMandatoryHeaders = []header.Name{"Via", "From", "To", "Call-ID", "CSeq", "Max-Forwards"}

// reqCopyHeaders are the request headers NewResponse copies onto the
// response it builds, per RFC 3261 S. 8.2.6.2.
var reqCopyHeaders = []header.Name{"Via", "From", "To", "Call-ID", "CSeq", "Timestamp"}

// Request is an outbound or inbound SIP request.
type Request struct {
	Method  RequestMethod
	URI     uri.URI
	Proto   ProtoInfo
	hdrs    *header.Headers
	body    []byte
}

// NewRequest builds a bare request with an empty header list.
func NewRequest(method RequestMethod, u uri.URI) *Request {
	return &Request{Method: method, URI: u, Proto: SIP20, hdrs: header.NewHeaders()}
}

func (r *Request) IsRequest() bool              { return true }
func (r *Request) Headers() *header.Headers     { return r.hdrs }
func (r *Request) SetHeaders(h *header.Headers)  { r.hdrs = h }
func (r *Request) Body() []byte                 { return r.body }
func (r *Request) SetBody(b []byte)             { r.body = b }

func (r *Request) RenderTo(w io.Writer) (int64, error) {
	var total int64
	n, err := io.WriteString(w, string(r.Method)+" "+r.URI.String()+" "+r.Proto.String()+"\r\n")
	total += int64(n)
	if err != nil {
		return total, errtrace.Wrap(err)
	}
	bn, err := renderHeadersAndBody(w, r.hdrs, r.body)
	return total + bn, errtrace.Wrap(err)
}

func (r *Request) String() string { return renderToString(r) }

func (r *Request) Clone() Message {
	return &Request{
		Method: r.Method,
		URI:    r.URI.Clone(),
		Proto:  r.Proto,
		hdrs:   r.hdrs.Clone(),
		body:   slices.Clone(r.body),
	}
}

// Validate checks the mandatory-header and Content-Length invariants
// RFC 3261 S. 8.1.1/20.14 place on every request.
func (r *Request) Validate() error {
	for _, name := range reqMandatoryHeaders {
		vs := r.hdrs.Get(string(name))
		if len(vs) != 1 {
			return errtrace.Wrap(errs.Wrap(ErrInvalidMessage, "missing or duplicate %s (have %d)", name, len(vs)))
		}
	}
	if cl, ok := r.hdrs.First("Content-Length"); ok {
		if int(cl.(*header.Integer).Value) != len(r.body) {
			return errtrace.Wrap(errs.Wrap(ErrInvalidMessage, "Content-Length mismatch: header=%d body=%d", cl.(*header.Integer).Value, len(r.body)))
		}
	}
	return nil
}

func (r *Request) CallID() (string, bool) {
	h, ok := r.hdrs.First("Call-ID")
	if !ok {
		return "", false
	}
	return h.(*header.Token).Value, true
}

func (r *Request) CSeq() (*header.CSeq, bool) {
	h, ok := r.hdrs.First("CSeq")
	if !ok {
		return nil, false
	}
	return h.(*header.CSeq), true
}

func (r *Request) From() (*header.From, bool) {
	h, ok := r.hdrs.First("From")
	if !ok {
		return nil, false
	}
	return h.(*header.From), true
}

func (r *Request) To() (*header.To, bool) {
	h, ok := r.hdrs.First("To")
	if !ok {
		return nil, false
	}
	return h.(*header.To), true
}

// Vias returns the Via list, topmost first, or nil if absent.
func (r *Request) Vias() []header.ViaHop {
	h, ok := r.hdrs.First("Via")
	if !ok {
		return nil
	}
	return h.(*header.Via).Hops
}

func (r *Request) MaxForwards() (uint64, bool) {
	h, ok := r.hdrs.First("Max-Forwards")
	if !ok {
		return 0, false
	}
	return h.(*header.Integer).Value, true
}

func (r *Request) Contact() (*header.AddrList, bool) {
	h, ok := r.hdrs.First("Contact")
	if !ok {
		return nil, false
	}
	return h.(*header.AddrList), true
}

// RecordRoutes returns the Record-Route list in request order — the
// route-set a UAS derives on dialog creation (spec S. 4.5; unlike the
// UAC side, this is not reversed).
func (r *Request) RecordRoutes() []header.NameAddr {
	h, ok := r.hdrs.First("Record-Route")
	if !ok {
		return nil
	}
	return h.(*header.AddrList).Elems
}

// ResponseOptions configures [Request.NewResponse].
type ResponseOptions struct {
	Reason   string
	Headers  []header.Header
	Body     []byte
	LocalTag string
}

// NewResponse builds a response to this request per RFC 3261 S.
// 8.2.6: it copies Via/From/To/Call-ID/CSeq/Timestamp from the
// request, appends any extra headers from opts, and sets opts.LocalTag
// as the To tag for every status except 100 Trying when LocalTag is
// non-empty and To has no tag yet. No tag is generated when LocalTag
// is empty.
func (r *Request) NewResponse(status ResponseStatus, opts *ResponseOptions) (*Response, error) {
	if r.Method == MethodACK {
		return nil, errtrace.Wrap(errs.Wrap(ErrInvalidMessage, "cannot build a response to ACK"))
	}
	if opts == nil {
		opts = &ResponseOptions{}
	}

	resp := &Response{Status: status, Reason: opts.Reason, Proto: SIP20, hdrs: header.NewHeaders(), body: opts.Body}
	if resp.Reason == "" {
		resp.Reason = defaultReason(status)
	}

	for _, name := range reqCopyHeaders {
		for _, h := range r.hdrs.Get(string(name)) {
			resp.hdrs.Add(h.Clone())
		}
	}

	if status != 100 && opts.LocalTag != "" {
		if to, ok := resp.To(); ok && !to.Params.Has("tag") {
			to.Params.Set("tag", opts.LocalTag)
		}
	}

	for _, h := range opts.Headers {
		resp.hdrs.Add(h)
	}

	if resp.body != nil {
		resp.hdrs.Add(mustInteger("Content-Length", uint64(len(resp.body))))
	}
	return resp, nil
}

func mustInteger(name header.Name, v uint64) header.Header {
	return &header.Integer{Name: name, Value: v}
}
