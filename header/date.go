package header

import (
	"io"
	"time"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// dateLayout is the RFC 1123 fixed-format date SIP requires (always
// GMT, always this exact layout — S. 20.17).
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Date carries an absolute timestamp, used for the Date header.
type Date struct {
	Value time.Time
}

func ParseDate(raw string) (*Date, error) {
	raw = lex.TrimLWS(raw)
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Date: %v", err))
	}
	return &Date{Value: t}, nil
}

func (h *Date) CanonicName() Name   { return "Date" }
func (h *Date) CompactName() Name   { return "Date" }
func (h *Date) RenderValue() string { return h.Value.UTC().Format(dateLayout) }
func (h *Date) String() string      { return h.RenderValue() }

func (h *Date) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Date) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *Date) Equal(other Header) bool {
	o, ok := other.(*Date)
	return ok && o != nil && h.Value.Equal(o.Value)
}
