package header

import (
	"io"
	"strconv"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// Timestamp carries the Timestamp header's round-trip-delay pair: a
// mandatory send time and an optional processing delay.
type Timestamp struct {
	Value float64
	Delay float64
	HasDelay bool
}

func ParseTimestamp(raw string) (*Timestamp, error) {
	fields := lex.SplitFields(lex.TrimLWS(raw))
	if len(fields) == 0 {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Timestamp: empty value"))
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Timestamp: bad value: %q", fields[0]))
	}
	h := &Timestamp{Value: v}
	if len(fields) > 1 {
		d, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Timestamp: bad delay: %q", fields[1]))
		}
		h.Delay, h.HasDelay = d, true
	}
	return h, nil
}

func (h *Timestamp) CanonicName() Name { return "Timestamp" }
func (h *Timestamp) CompactName() Name { return "Timestamp" }

func (h *Timestamp) RenderValue() string {
	s := formatFloat(h.Value)
	if h.HasDelay {
		s += " " + formatFloat(h.Delay)
	}
	return s
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}

func (h *Timestamp) String() string { return h.RenderValue() }

func (h *Timestamp) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Timestamp) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *Timestamp) Equal(other Header) bool {
	o, ok := other.(*Timestamp)
	return ok && o != nil && h.Value == o.Value && h.Delay == o.Delay && h.HasDelay == o.HasDelay
}
