package header

import (
	"io"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
)

// RetryAfter carries a delta-seconds value, an optional free-text
// comment (kept but never interpreted), and optional parameters
// (e.g. "duration").
type RetryAfter struct {
	Seconds uint64
	Comment string
	Params  *params.Params
}

func ParseRetryAfter(raw string) (*RetryAfter, error) {
	raw = lex.TrimLWS(raw)
	h := &RetryAfter{Params: params.New()}

	if i := strings.IndexByte(raw, '('); i >= 0 {
		if j := strings.IndexByte(raw[i:], ')'); j >= 0 {
			h.Comment = raw[i+1 : i+j]
			raw = raw[:i] + raw[i+j+1:]
		}
	}

	head, p := splitParams(raw)
	h.Params = p
	head = lex.TrimLWS(head)
	secs, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Retry-After: bad delta-seconds: %q", head))
	}
	h.Seconds = secs
	return h, nil
}

func (h *RetryAfter) CanonicName() Name { return "Retry-After" }
func (h *RetryAfter) CompactName() Name { return "Retry-After" }

func (h *RetryAfter) RenderValue() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(h.Seconds, 10))
	if h.Comment != "" {
		b.WriteString(" (")
		b.WriteString(h.Comment)
		b.WriteString(")")
	}
	renderParams(&b, h.Params)
	return b.String()
}

func (h *RetryAfter) String() string { return h.RenderValue() }

func (h *RetryAfter) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *RetryAfter) Clone() Header {
	if h == nil {
		return nil
	}
	return &RetryAfter{Seconds: h.Seconds, Comment: h.Comment, Params: h.Params.Clone()}
}

func (h *RetryAfter) Equal(other Header) bool {
	o, ok := other.(*RetryAfter)
	return ok && o != nil && h.Seconds == o.Seconds && h.Comment == o.Comment && paramsEqual(h.Params, o.Params)
}
