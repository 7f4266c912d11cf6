// Package parser turns a single contiguous byte buffer holding one SIP
// message into a [message.Message], or a diagnosable error.
package parser

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/uri"
)

// Reason identifies why a message failed to parse structurally (as
// opposed to one malformed header, which is dropped rather than
// failing the parse).
type Reason string

const (
	ReasonMalformedStartLine Reason = "MalformedStartLine"
	ReasonUnknownVersion     Reason = "UnknownVersion"
	ReasonTruncatedBody      Reason = "TruncatedBody"
)

// ErrParse is the sentinel every structural parse failure wraps.
const ErrParse errs.Error = "parser: parse failed"

// ParseError reports a structural parse failure with its reason code.
type ParseError struct {
	Reason Reason
	Detail string
}

func (e *ParseError) Error() string { return string(e.Reason) + ": " + e.Detail }

func newParseErr(reason Reason, detail string) error {
	return errtrace.Wrap(errs.Wrap(ErrParse, "%s", (&ParseError{Reason: reason, Detail: detail}).Error()))
}

// Logger receives diagnostics for dropped headers and trimmed bodies,
// conditions that do not fail the overall parse. Parse substitutes
// slog.Default() for a nil Logger. SIP-Version clamping is logged
// through slog.Default(), not through this Logger.
type Logger = *slog.Logger

// Parse converts buf into a Message. Header folding (RFC 2616-style
// continuation lines) is resolved first; then the start line decides
// Request vs Response; then each header field is dispatched to its
// registered shape parser. A header that fails its shape parse is
// dropped with a logged diagnostic — the overall parse still
// succeeds as long as the start line and header structure are sound.
func Parse(buf []byte, log Logger) (message.Message, error) {
	if log == nil {
		log = slog.Default()
	}

	headEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	var headerBlock, body []byte
	if headEnd < 0 {
		// Tolerate a bare LF-terminated blank line too.
		if alt := bytes.Index(buf, []byte("\n\n")); alt >= 0 {
			headerBlock, body = buf[:alt], buf[alt+2:]
		} else {
			return nil, newParseErr(ReasonTruncatedBody, "no blank line terminating headers")
		}
	} else {
		headerBlock, body = buf[:headEnd], buf[headEnd+4:]
	}

	lines := splitLines(headerBlock)
	if len(lines) == 0 {
		return nil, newParseErr(ReasonMalformedStartLine, "empty message")
	}
	startLine := string(lines[0])
	fields := unfold(lines[1:])

	if isStatusLine(startLine) {
		resp, err := parseStatusLine(startLine)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		hdrs := parseHeaders(fields, log)
		resp.SetHeaders(hdrs)
		if err := attachBody(resp, hdrs, body, log); err != nil {
			return nil, errtrace.Wrap(err)
		}
		return resp, nil
	}

	req, err := parseRequestLine(startLine)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	hdrs := parseHeaders(fields, log)
	req.SetHeaders(hdrs)
	if err := attachBody(req, hdrs, body, log); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return req, nil
}

// isStatusLine implements the spec's 4-char slop: the start line is a
// status line iff one of its first 4 characters begins a
// case-insensitive match of "SIP". A strict reading of RFC 3261 would
// forbid whitespace before "SIP/", but this lenient 4-char scan
// accepts it, matching the teacher generation's own leniency here —
// see DESIGN.md for the Open Question this resolves.
func isStatusLine(line string) bool {
	n := len(line)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		if strings.HasPrefix(strings.ToUpper(line[i:]), "SIP") {
			return true
		}
	}
	return false
}

func parseStatusLine(line string) (*message.Response, error) {
	line = strings.TrimLeft(line, " \t")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return nil, newParseErr(ReasonMalformedStartLine, line)
	}
	proto, err := parseProto(fields[0])
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	code, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil || code < 100 || code > 699 {
		return nil, newParseErr(ReasonMalformedStartLine, "bad status code: "+fields[1])
	}
	reason := ""
	if len(fields) == 3 {
		reason = fields[2]
	}
	resp := message.NewResponse(message.ResponseStatus(code), reason)
	resp.Proto = proto
	return resp, nil
}

func parseRequestLine(line string) (*message.Request, error) {
	line = strings.TrimLeft(line, " \t")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return nil, newParseErr(ReasonMalformedStartLine, line)
	}
	u, err := uri.Parse(fields[1])
	if err != nil {
		return nil, newParseErr(ReasonMalformedStartLine, "bad request-URI: "+fields[1])
	}
	proto, err := parseProto(fields[2])
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	req := message.NewRequest(message.RequestMethod(fields[0]), u)
	req.Proto = proto
	return req, nil
}

// parseProto parses "SIP/x.y" and clamps any version other than 2.0
// to 2.0 with a log, per the spec's "any parsed version is clamped to
// 2.0" instruction.
func parseProto(s string) (message.ProtoInfo, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "SIP") {
		return message.ProtoInfo{}, newParseErr(ReasonUnknownVersion, s)
	}
	if parts[1] != "2.0" {
		slog.Default().Warn("clamping SIP-Version to 2.0", "parsed", parts[1])
	}
	return message.SIP20, nil
}

type field struct {
	name header.Name
	raw  string
}

func splitLines(block []byte) [][]byte {
	return bytes.Split(block, []byte("\r\n"))
}

// unfold resolves HTTP-style line folding: a continuation line begins
// with a space or tab and is appended to the previous header's value.
func unfold(lines [][]byte) []field {
	var fields []field
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(fields) > 0 {
			fields[len(fields)-1].raw += " " + strings.TrimSpace(string(line))
			continue
		}
		i := bytes.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		name := header.Canonic(strings.TrimSpace(string(line[:i])))
		val := strings.TrimSpace(string(line[i+1:]))
		fields = append(fields, field{name: name, raw: val})
	}
	return fields
}

func parseHeaders(fields []field, log Logger) *header.Headers {
	hdrs := header.NewHeaders()
	for _, f := range fields {
		h, err := header.Parse(string(f.name), f.raw)
		if err != nil {
			log.Warn("dropping malformed header", "name", f.name, "error", err)
			continue
		}
		hdrs.Add(h)
	}
	return hdrs
}

// attachBody enforces the Content-Length contract: a body longer than
// the declared length is truncated to it with a logged diagnostic; a
// body shorter than the declared length is a structural TruncatedBody
// error. Without a Content-Length header the whole body is kept.
func attachBody(m message.Message, hdrs *header.Headers, body []byte, log Logger) error {
	declared := -1
	if h, ok := hdrs.First("Content-Length"); ok {
		declared = int(h.(*header.Integer).Value)
	}
	if declared < 0 {
		setBody(m, body)
		return nil
	}
	if declared > len(body) {
		return newParseErr(ReasonTruncatedBody, "declared "+strconv.Itoa(declared)+" have "+strconv.Itoa(len(body)))
	}
	if declared < len(body) {
		log.Debug("trimming body to declared Content-Length", "declared", declared, "actual", len(body))
	}
	setBody(m, body[:declared])
	return nil
}

func setBody(m message.Message, b []byte) {
	switch v := m.(type) {
	case *message.Request:
		v.SetBody(b)
	case *message.Response:
		v.SetBody(b)
	}
}
