package header

import (
	"io"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// CSeq carries the request sequence number and method, e.g. "314159 INVITE".
type CSeq struct {
	Seq    uint32
	Method string
}

func ParseCSeq(raw string) (*CSeq, error) {
	fields := lex.SplitFields(lex.TrimLWS(raw))
	if len(fields) != 2 {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "CSeq: expected \"seq method\": %q", raw))
	}
	seq, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "CSeq: bad sequence: %q", fields[0]))
	}
	if !lex.IsToken(fields[1]) {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "CSeq: bad method: %q", fields[1]))
	}
	return &CSeq{Seq: uint32(seq), Method: fields[1]}, nil
}

func (h *CSeq) CanonicName() Name   { return "CSeq" }
func (h *CSeq) CompactName() Name   { return "CSeq" }
func (h *CSeq) RenderValue() string { return strconv.FormatUint(uint64(h.Seq), 10) + " " + h.Method }
func (h *CSeq) String() string      { return h.RenderValue() }

func (h *CSeq) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *CSeq) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *CSeq) Equal(other Header) bool {
	o, ok := other.(*CSeq)
	return ok && o != nil && h.Seq == o.Seq && strings.EqualFold(h.Method, o.Method)
}
