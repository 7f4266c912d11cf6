package message

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/header"
)

// ResponseStatus is the 3-digit status code (100-699).
type ResponseStatus uint

const (
	StatusTrying               ResponseStatus = 100
	StatusRinging              ResponseStatus = 180
	StatusCallIsBeingForwarded ResponseStatus = 181
	StatusQueued               ResponseStatus = 182
	StatusSessionProgress      ResponseStatus = 183

	StatusOK       ResponseStatus = 200
	StatusAccepted ResponseStatus = 202

	StatusMultipleChoices  ResponseStatus = 300
	StatusMovedPermanently ResponseStatus = 301
	StatusMovedTemporarily ResponseStatus = 302
	StatusUseProxy         ResponseStatus = 305

	StatusBadRequest                  ResponseStatus = 400
	StatusUnauthorized                ResponseStatus = 401
	StatusForbidden                   ResponseStatus = 403
	StatusNotFound                    ResponseStatus = 404
	StatusMethodNotAllowed            ResponseStatus = 405
	StatusNotAcceptable               ResponseStatus = 406
	StatusProxyAuthenticationRequired ResponseStatus = 407
	StatusRequestTimeout              ResponseStatus = 408
	StatusGone                        ResponseStatus = 410
	StatusRequestEntityTooLarge       ResponseStatus = 413
	StatusRequestURITooLong           ResponseStatus = 414
	StatusUnsupportedMediaType        ResponseStatus = 415
	StatusBadExtension                ResponseStatus = 420
	StatusExtensionRequired           ResponseStatus = 421
	StatusIntervalTooBrief            ResponseStatus = 423
	StatusTemporarilyUnavailable      ResponseStatus = 480
	StatusCallDoesNotExist            ResponseStatus = 481
	StatusLoopDetected                ResponseStatus = 482
	StatusTooManyHops                 ResponseStatus = 483
	StatusAddressIncomplete           ResponseStatus = 484
	StatusAmbiguous                   ResponseStatus = 485
	StatusBusyHere                    ResponseStatus = 486
	StatusRequestTerminated           ResponseStatus = 487
	StatusNotAcceptableHere           ResponseStatus = 488
	StatusRequestPending              ResponseStatus = 491

	StatusServerInternalError ResponseStatus = 500
	StatusNotImplemented      ResponseStatus = 501
	StatusBadGateway          ResponseStatus = 502
	StatusServiceUnavailable  ResponseStatus = 503
	StatusGatewayTimeout      ResponseStatus = 504
	StatusVersionNotSupported ResponseStatus = 505

	StatusBusyEverywhere ResponseStatus = 600
	StatusDecline        ResponseStatus = 603
)

var responseReasons = map[ResponseStatus]string{
	StatusTrying: "Trying", StatusRinging: "Ringing",
	StatusCallIsBeingForwarded: "Call Is Being Forwarded", StatusQueued: "Queued",
	StatusSessionProgress: "Session Progress",

	StatusOK: "OK", StatusAccepted: "Accepted",

	StatusMultipleChoices: "Multiple Choices", StatusMovedPermanently: "Moved Permanently",
	StatusMovedTemporarily: "Moved Temporarily", StatusUseProxy: "Use Proxy",

	StatusBadRequest: "Bad Request", StatusUnauthorized: "Unauthorized",
	StatusForbidden: "Forbidden", StatusNotFound: "Not Found",
	StatusMethodNotAllowed: "Method Not Allowed", StatusNotAcceptable: "Not Acceptable",
	StatusProxyAuthenticationRequired: "Proxy Authentication Required",
	StatusRequestTimeout:              "Request Timeout", StatusGone: "Gone",
	StatusRequestEntityTooLarge: "Request Entity Too Large",
	StatusRequestURITooLong:     "Request-URI Too Long",
	StatusUnsupportedMediaType:  "Unsupported Media Type",
	StatusBadExtension:          "Bad Extension", StatusExtensionRequired: "Extension Required",
	StatusIntervalTooBrief:       "Interval Too Brief",
	StatusTemporarilyUnavailable: "Temporarily Unavailable",
	StatusCallDoesNotExist:       "Call/Transaction Does Not Exist",
	StatusLoopDetected:           "Loop Detected", StatusTooManyHops: "Too Many Hops",
	StatusAddressIncomplete: "Address Incomplete", StatusAmbiguous: "Ambiguous",
	StatusBusyHere: "Busy Here", StatusRequestTerminated: "Request Terminated",
	StatusNotAcceptableHere: "Not Acceptable Here", StatusRequestPending: "Request Pending",

	StatusServerInternalError: "Server Internal Error", StatusNotImplemented: "Not Implemented",
	StatusBadGateway: "Bad Gateway", StatusServiceUnavailable: "Service Unavailable",
	StatusGatewayTimeout: "Gateway Time-out", StatusVersionNotSupported: "Version Not Supported",

	StatusBusyEverywhere: "Busy Everywhere", StatusDecline: "Decline",
}

func defaultReason(s ResponseStatus) string {
	if r, ok := responseReasons[s]; ok {
		return r
	}
	return "Unknown"
}

func (s ResponseStatus) IsProvisional() bool { return s >= 100 && s < 200 }
func (s ResponseStatus) IsSuccess() bool     { return s >= 200 && s < 300 }
func (s ResponseStatus) IsRedirect() bool    { return s >= 300 && s < 400 }
func (s ResponseStatus) IsFinal() bool       { return s >= 200 }

// Response is an outbound or inbound SIP response.
type Response struct {
	Proto  ProtoInfo
	Status ResponseStatus
	Reason string
	hdrs   *header.Headers
	body   []byte
}

// NewResponse builds a bare response with an empty header list.
func NewResponse(status ResponseStatus, reason string) *Response {
	if reason == "" {
		reason = defaultReason(status)
	}
	return &Response{Proto: SIP20, Status: status, Reason: reason, hdrs: header.NewHeaders()}
}

func (r *Response) IsRequest() bool             { return false }
func (r *Response) Headers() *header.Headers    { return r.hdrs }
func (r *Response) SetHeaders(h *header.Headers) { r.hdrs = h }
func (r *Response) Body() []byte                { return r.body }
func (r *Response) SetBody(b []byte)            { r.body = b }

func (r *Response) RenderTo(w io.Writer) (int64, error) {
	var total int64
	n, err := io.WriteString(w, fmt.Sprintf("%s %s %s\r\n", r.Proto, strconv.Itoa(int(r.Status)), r.Reason))
	total += int64(n)
	if err != nil {
		return total, errtrace.Wrap(err)
	}
	bn, err := renderHeadersAndBody(w, r.hdrs, r.body)
	return total + bn, errtrace.Wrap(err)
}

func (r *Response) String() string { return renderToString(r) }

func (r *Response) Clone() Message {
	return &Response{Proto: r.Proto, Status: r.Status, Reason: r.Reason, hdrs: r.hdrs.Clone(), body: slices.Clone(r.body)}
}

func (r *Response) CallID() (string, bool) {
	h, ok := r.hdrs.First("Call-ID")
	if !ok {
		return "", false
	}
	return h.(*header.Token).Value, true
}

func (r *Response) CSeq() (*header.CSeq, bool) {
	h, ok := r.hdrs.First("CSeq")
	if !ok {
		return nil, false
	}
	return h.(*header.CSeq), true
}

func (r *Response) From() (*header.From, bool) {
	h, ok := r.hdrs.First("From")
	if !ok {
		return nil, false
	}
	return h.(*header.From), true
}

func (r *Response) To() (*header.To, bool) {
	h, ok := r.hdrs.First("To")
	if !ok {
		return nil, false
	}
	return h.(*header.To), true
}

func (r *Response) Vias() []header.ViaHop {
	h, ok := r.hdrs.First("Via")
	if !ok {
		return nil
	}
	return h.(*header.Via).Hops
}

func (r *Response) Contact() (*header.AddrList, bool) {
	h, ok := r.hdrs.First("Contact")
	if !ok {
		return nil, false
	}
	return h.(*header.AddrList), true
}

func (r *Response) RecordRoutes() []header.NameAddr {
	h, ok := r.hdrs.First("Record-Route")
	if !ok {
		return nil
	}
	return h.(*header.AddrList).Elems
}

// ReverseRecordRoutes returns the response's Record-Route list in
// reverse, which is the route-set a UAC derives on dialog creation.
func (r *Response) ReverseRecordRoutes() []header.NameAddr {
	rr := r.RecordRoutes()
	out := make([]header.NameAddr, len(rr))
	for i, na := range rr {
		out[len(rr)-1-i] = na
	}
	return out
}
