package header

import (
	"io"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
	"github.com/new-neon/sippet/uri"
)

// viaSpecialParams mirrors the teacher's Via.Equal special-param set:
// these are the parameters that participate in comparisons; anything
// else is carried but ignored for equality.
var viaSpecialParams = map[string]bool{
	"maddr": true, "ttl": true, "received": true, "rport": true, "branch": true,
}

// ViaHop is one entry of a (possibly multi-valued) Via header.
type ViaHop struct {
	ProtoName, ProtoVersion string
	Transport               string
	Addr                    uri.Addr
	Params                  *params.Params
}

func parseViaHop(raw string) (ViaHop, error) {
	raw = lex.TrimLWS(raw)
	head, p := splitParams(raw)
	fields := lex.SplitFields(head)
	if len(fields) != 2 {
		return ViaHop{}, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Via: expected \"proto host[:port]\": %q", raw))
	}
	protoParts := strings.Split(fields[0], "/")
	if len(protoParts) != 3 {
		return ViaHop{}, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Via: bad sent-protocol: %q", fields[0]))
	}
	addr, err := uri.ParseAddr(fields[1])
	if err != nil {
		return ViaHop{}, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Via: bad sent-by: %v", err))
	}
	return ViaHop{
		ProtoName:    protoParts[0],
		ProtoVersion: protoParts[1],
		Transport:    protoParts[2],
		Addr:         addr,
		Params:       p,
	}, nil
}

func (v ViaHop) render(b *strings.Builder) {
	b.WriteString(v.ProtoName)
	b.WriteByte('/')
	b.WriteString(v.ProtoVersion)
	b.WriteByte('/')
	b.WriteString(v.Transport)
	b.WriteByte(' ')
	b.WriteString(v.Addr.String())
	renderParams(b, v.Params)
}

func (v ViaHop) String() string {
	var b strings.Builder
	v.render(&b)
	return b.String()
}

func (v ViaHop) Clone() ViaHop {
	return ViaHop{ProtoName: v.ProtoName, ProtoVersion: v.ProtoVersion, Transport: v.Transport, Addr: v.Addr, Params: v.Params.Clone()}
}

func (v ViaHop) equal(o ViaHop) bool {
	if !strings.EqualFold(v.ProtoName, o.ProtoName) || !strings.EqualFold(v.ProtoVersion, o.ProtoVersion) ||
		!strings.EqualFold(v.Transport, o.Transport) || !v.Addr.Equal(o.Addr) {
		return false
	}
	for name := range viaSpecialParams {
		v1, ok1 := v.Params.Get(name)
		v2, ok2 := o.Params.Get(name)
		if ok1 != ok2 || (ok1 && !strings.EqualFold(v1, v2)) {
			return false
		}
	}
	return true
}

func (v ViaHop) Branch() (string, bool) { return v.Params.Get("branch") }
func (v ViaHop) Received() (string, bool) { return v.Params.Get("received") }
func (v ViaHop) MAddr() (string, bool)  { return v.Params.Get("maddr") }

func (v ViaHop) RPort() (uint16, bool) {
	s, ok := v.Params.Get("rport")
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

func (v ViaHop) TTL() (uint8, bool) {
	s, ok := v.Params.Get("ttl")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// Via is the topmost-first ordered list of Via hops.
type Via struct {
	Hops []ViaHop
}

func ParseVia(raw string) (*Via, error) {
	els := splitElements(raw)
	h := &Via{Hops: make([]ViaHop, 0, len(els))}
	for _, el := range els {
		hop, err := parseViaHop(el)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		h.Hops = append(h.Hops, hop)
	}
	return h, nil
}

func (h *Via) CanonicName() Name { return "Via" }
func (h *Via) CompactName() Name { return "v" }

func (h *Via) RenderValue() string {
	var b strings.Builder
	for i, hop := range h.Hops {
		if i > 0 {
			b.WriteString(", ")
		}
		hop.render(&b)
	}
	return b.String()
}

func (h *Via) String() string { return h.RenderValue() }

func (h *Via) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Via) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := &Via{Hops: make([]ViaHop, len(h.Hops))}
	for i, hop := range h.Hops {
		h2.Hops[i] = hop.Clone()
	}
	return h2
}

func (h *Via) Equal(other Header) bool {
	o, ok := other.(*Via)
	if !ok || o == nil || len(h.Hops) != len(o.Hops) {
		return false
	}
	for i := range h.Hops {
		if !h.Hops[i].equal(o.Hops[i]) {
			return false
		}
	}
	return true
}
