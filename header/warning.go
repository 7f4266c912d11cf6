package header

import (
	"io"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// WarningElem is one "code host[:port] quoted-text" entry.
type WarningElem struct {
	Code uint16
	Addr string
	Text string
}

func parseWarningElem(raw string) (WarningElem, error) {
	fields := lex.SplitFields(lex.TrimLWS(raw))
	if len(fields) < 3 {
		return WarningElem{}, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Warning: expected \"code agent text\": %q", raw))
	}
	code, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return WarningElem{}, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Warning: bad code: %q", fields[0]))
	}
	return WarningElem{Code: uint16(code), Addr: fields[1], Text: lex.Unquote(strings.Join(fields[2:], " "))}, nil
}

func (e WarningElem) render(b *strings.Builder) {
	b.WriteString(strconv.FormatUint(uint64(e.Code), 10))
	b.WriteByte(' ')
	b.WriteString(e.Addr)
	b.WriteByte(' ')
	b.WriteString(lex.Quote(e.Text, true))
}

// Warning is the comma-separated multi-valued Warning header.
type Warning struct {
	Elems []WarningElem
}

func ParseWarning(raw string) (*Warning, error) {
	els := splitElements(raw)
	h := &Warning{Elems: make([]WarningElem, 0, len(els))}
	for _, el := range els {
		we, err := parseWarningElem(el)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		h.Elems = append(h.Elems, we)
	}
	return h, nil
}

func (h *Warning) CanonicName() Name { return "Warning" }
func (h *Warning) CompactName() Name { return "Warning" }

func (h *Warning) RenderValue() string {
	var b strings.Builder
	for i, el := range h.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		el.render(&b)
	}
	return b.String()
}

func (h *Warning) String() string { return h.RenderValue() }

func (h *Warning) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Warning) Clone() Header {
	if h == nil {
		return nil
	}
	return &Warning{Elems: append([]WarningElem(nil), h.Elems...)}
}

func (h *Warning) Equal(other Header) bool {
	o, ok := other.(*Warning)
	if !ok || o == nil || len(h.Elems) != len(o.Elems) {
		return false
	}
	for i := range h.Elems {
		if h.Elems[i] != o.Elems[i] {
			return false
		}
	}
	return true
}
