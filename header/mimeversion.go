package header

import (
	"io"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// MIMEVersion carries the "major.minor" MIME-Version value.
type MIMEVersion struct {
	Major, Minor int
}

func ParseMIMEVersion(raw string) (*MIMEVersion, error) {
	raw = lex.TrimLWS(raw)
	i := strings.IndexByte(raw, '.')
	if i < 0 {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "MIME-Version: expected major.minor: %q", raw))
	}
	major, err1 := strconv.Atoi(raw[:i])
	minor, err2 := strconv.Atoi(raw[i+1:])
	if err1 != nil || err2 != nil {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "MIME-Version: bad value: %q", raw))
	}
	return &MIMEVersion{Major: major, Minor: minor}, nil
}

func (h *MIMEVersion) CanonicName() Name   { return "MIME-Version" }
func (h *MIMEVersion) CompactName() Name   { return "MIME-Version" }
func (h *MIMEVersion) RenderValue() string { return strconv.Itoa(h.Major) + "." + strconv.Itoa(h.Minor) }
func (h *MIMEVersion) String() string      { return h.RenderValue() }

func (h *MIMEVersion) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *MIMEVersion) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *MIMEVersion) Equal(other Header) bool {
	o, ok := other.(*MIMEVersion)
	return ok && o != nil && h.Major == o.Major && h.Minor == o.Minor
}
