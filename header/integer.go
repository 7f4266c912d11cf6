package header

import (
	"io"
	"strconv"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// Integer is a single unsigned decimal value: Content-Length, Expires,
// Max-Forwards, Min-Expires.
type Integer struct {
	Name  Name
	Value uint64
}

// ParseInteger parses raw as an Integer header. A malformed
// Content-Length is treated leniently as 0 (per the design decision in
// DESIGN.md) rather than failing the header; every other integer
// header shape fails outright on a non-digit value.
func ParseInteger(name Name, raw string) (*Integer, error) {
	raw = lex.TrimLWS(raw)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		if name == "Content-Length" {
			return &Integer{Name: name, Value: 0}, nil
		}
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: not an integer: %q", name, raw))
	}
	return &Integer{Name: name, Value: v}, nil
}

func (h *Integer) CanonicName() Name   { return h.Name }
func (h *Integer) CompactName() Name   { return CompactOf(h.Name) }
func (h *Integer) RenderValue() string { return strconv.FormatUint(h.Value, 10) }
func (h *Integer) String() string      { return h.RenderValue() }

func (h *Integer) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Integer) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *Integer) Equal(other Header) bool {
	o, ok := other.(*Integer)
	return ok && o != nil && h.Name == o.Name && h.Value == o.Value
}
