// Package message implements the SIP message model: requests,
// responses, and the shared envelope (version, headers, body) they
// carry. Values are immutable-after-build in spirit — callers that
// need to mutate a message in flight (adding a Via, stamping a tag)
// work through Clone plus direct field/Headers access, same as the
// teacher's message types.
package message

import (
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/internal/errs"
)

// ErrInvalidMessage is the sentinel wrapped by Validate failures.
const ErrInvalidMessage errs.Error = "message: invalid"

// ProtoInfo is a "Name/Version" pair, used for the SIP-Version and for
// a Via hop's sent-protocol name/version components.
type ProtoInfo struct {
	Name    string
	Version string
}

func (p ProtoInfo) String() string { return p.Name + "/" + p.Version }

// SIP20 is the only SIP-Version this module emits; any parsed version
// is clamped to it (RFC 3261 S. 7.1 only defines 2.0, and the parser
// design calls for clamping with a log rather than rejecting outright).
var SIP20 = ProtoInfo{Name: "SIP", Version: "2.0"}

// RequestMethod is a SIP method token.
type RequestMethod string

const (
	MethodACK       RequestMethod = "ACK"
	MethodBYE       RequestMethod = "BYE"
	MethodCANCEL    RequestMethod = "CANCEL"
	MethodINFO      RequestMethod = "INFO"
	MethodINVITE    RequestMethod = "INVITE"
	MethodMESSAGE   RequestMethod = "MESSAGE"
	MethodNOTIFY    RequestMethod = "NOTIFY"
	MethodOPTIONS   RequestMethod = "OPTIONS"
	MethodPRACK     RequestMethod = "PRACK"
	MethodPUBLISH   RequestMethod = "PUBLISH"
	MethodREFER     RequestMethod = "REFER"
	MethodREGISTER  RequestMethod = "REGISTER"
	MethodSUBSCRIBE RequestMethod = "SUBSCRIBE"
	MethodUPDATE    RequestMethod = "UPDATE"
)

// Message is implemented by both Request and Response.
type Message interface {
	IsRequest() bool
	Headers() *header.Headers
	Body() []byte
	RenderTo(w io.Writer) (int64, error)
	String() string
	Clone() Message
}

// renderHeadersAndBody writes the blank-line-terminated header block
// plus body shared by both Request.RenderTo and Response.RenderTo.
func renderHeadersAndBody(w io.Writer, h *header.Headers, body []byte) (int64, error) {
	var total int64
	n, err := h.RenderTo(w)
	total += int64(n)
	if err != nil {
		return total, errtrace.Wrap(err)
	}
	m, err := io.WriteString(w, "\r\n")
	total += int64(m)
	if err != nil {
		return total, errtrace.Wrap(err)
	}
	if len(body) > 0 {
		bn, err := w.Write(body)
		total += int64(bn)
		if err != nil {
			return total, errtrace.Wrap(err)
		}
	}
	return total, nil
}

func renderToString(m Message) string {
	var b strings.Builder
	m.RenderTo(&b) //nolint:errcheck
	return b.String()
}
