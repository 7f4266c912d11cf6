// Package uri implements SIP and SIPS URIs (RFC 3261 S. 19.1) plus a
// fallback representation for any other URI scheme encountered in a
// header value (e.g. tel:, mailto:, http:).
package uri

import (
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
)

// ErrInvalid is the sentinel wrapped by URI parse failures.
const ErrInvalid errs.Error = "uri: invalid"

// URI is the common interface implemented by SIP and the Any fallback.
type URI interface {
	fmt.Stringer
	RenderTo(w io.Writer) (int, error)
	Clone() URI
	IsValid() bool
	Equal(other URI) bool
}

// Addr is a host plus an optional port, as used in a SIP URI's hostport
// component and in Via/Contact/Route header addresses.
type Addr struct {
	Host    string
	Port    uint16
	hasPort bool
}

// Host builds an Addr with no explicit port.
func Host(host string) Addr { return Addr{Host: host} }

// HostPort builds an Addr with an explicit port.
func HostPort(host string, port uint16) Addr { return Addr{Host: host, Port: port, hasPort: true} }

// PortOrDefault returns the explicit port, or def if none was given.
func (a Addr) PortOrDefault(def uint16) uint16 {
	if a.hasPort {
		return a.Port
	}
	return def
}

// HasPort reports whether an explicit port was set.
func (a Addr) HasPort() bool { return a.hasPort }

// IsValid reports whether the address carries a non-empty host.
func (a Addr) IsValid() bool { return a.Host != "" }

// IsZero reports whether the Addr is the zero value.
func (a Addr) IsZero() bool { return a.Host == "" && !a.hasPort }

// Equal compares two addresses, treating an IP literal host as equal
// regardless of textual representation (e.g. "::1" vs "0:0:0:0:0:0:0:1").
func (a Addr) Equal(other Addr) bool {
	if a.hasPort != other.hasPort || (a.hasPort && a.Port != other.Port) {
		return false
	}
	if ip1, err1 := netip.ParseAddr(a.Host); err1 == nil {
		if ip2, err2 := netip.ParseAddr(other.Host); err2 == nil {
			return ip1 == ip2
		}
	}
	return strings.EqualFold(a.Host, other.Host)
}

// String renders "host" or "host:port".
func (a Addr) String() string {
	if !a.hasPort {
		return a.Host
	}
	return a.Host + ":" + strconv.Itoa(int(a.Port))
}

// ParseAddr parses a "host" or "host:port" string.
func ParseAddr(s string) (Addr, error) {
	if s == "" {
		return Addr{}, errtrace.Wrap(errs.Wrap(ErrInvalid, "empty address"))
	}
	i := strings.LastIndexByte(s, ':')
	if i < 0 || strings.Count(s, ":") > 1 && !strings.HasPrefix(s, "[") {
		// bare hostname, or an IPv6 literal without a port and without brackets
		return Host(s), nil
	}
	host, portStr := s[:i], s[i+1:]
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Host(s), nil
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return HostPort(host, uint16(port)), nil
}

// UserInfo holds the optional userinfo component of a SIP URI.
type UserInfo struct {
	name, pass string
	hasPass    bool
}

// User builds a UserInfo with a username and no password.
func User(name string) UserInfo { return UserInfo{name: name} }

// UserPassword builds a UserInfo with a username and password.
func UserPassword(name, pass string) UserInfo { return UserInfo{name: name, pass: pass, hasPass: true} }

func (u UserInfo) Username() string { return u.name }

func (u UserInfo) Password() (string, bool) { return u.pass, u.hasPass }

func (u UserInfo) IsZero() bool { return u.name == "" && !u.hasPass }

func (u UserInfo) Equal(other UserInfo) bool {
	return u.name == other.name && u.pass == other.pass && u.hasPass == other.hasPass
}

func (u UserInfo) String() string {
	var b strings.Builder
	b.WriteString(escape(u.name, isUnreservedUser))
	if u.hasPass {
		b.WriteByte(':')
		b.WriteString(escape(u.pass, isUnreservedUser))
	}
	return b.String()
}

// sipURISpecParams is the set of URI parameters whose presence affects
// Equal comparisons (RFC 3261 S. 19.1.4): any of these present on one
// side must be present and matching on the other; non-special
// parameters found on only one side are ignored.
var sipURISpecParams = map[string]bool{
	"transport": true,
	"user":      true,
	"method":    true,
	"ttl":       true,
	"maddr":     true,
	"lr":        true,
}

// SIP represents a sip: or sips: URI.
type SIP struct {
	User    UserInfo
	Addr    Addr
	Params  *params.Params
	Headers *params.Params
	Secured bool
}

// NewSIP builds a bare sip: URI for the given address.
func NewSIP(addr Addr) *SIP {
	return &SIP{Addr: addr, Params: params.New(), Headers: params.New()}
}

func (u *SIP) Scheme() string {
	if u.Secured {
		return "sips"
	}
	return "sip"
}

func (u *SIP) Clone() URI {
	if u == nil {
		return nil
	}
	return &SIP{
		User:    u.User,
		Addr:    u.Addr,
		Params:  u.Params.Clone(),
		Headers: u.Headers.Clone(),
		Secured: u.Secured,
	}
}

func (u *SIP) IsValid() bool {
	return u != nil && u.Addr.IsValid()
}

func (u *SIP) RenderTo(w io.Writer) (int, error) {
	var b strings.Builder
	b.WriteString(u.Scheme())
	b.WriteByte(':')
	if !u.User.IsZero() {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(u.Addr.String())
	renderURIParams(&b, u.Params)
	renderURIHeaders(&b, u.Headers)
	n, err := io.WriteString(w, b.String())
	return n, errtrace.Wrap(err)
}

func (u *SIP) String() string {
	var b strings.Builder
	u.RenderTo(&b) //nolint:errcheck
	return b.String()
}

func (u *SIP) Equal(other URI) bool {
	o, ok := other.(*SIP)
	if !ok || o == nil {
		return false
	}
	if u.Secured != o.Secured || !u.User.Equal(o.User) || !u.Addr.Equal(o.Addr) {
		return false
	}
	return compareURIParams(u.Params, o.Params) && compareURIHeaders(u.Headers, o.Headers)
}

func (u *SIP) Transport() (string, bool) { return u.Params.Get("transport") }
func (u *SIP) UserType() (string, bool)  { return u.Params.Get("user") }
func (u *SIP) Method() (string, bool)    { return u.Params.Get("method") }
func (u *SIP) MAddr() (string, bool)     { return u.Params.Get("maddr") }
func (u *SIP) LR() bool                  { return u.Params.Has("lr") }

func (u *SIP) TTL() (uint8, bool) {
	v, ok := u.Params.Get("ttl")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

func compareURIParams(a, b *params.Params) bool {
	checked := map[string]bool{}
	for _, name := range a.Names() {
		v1, _ := a.Get(name)
		if b.Has(name) {
			v2, _ := b.Get(name)
			if !strings.EqualFold(v1, v2) {
				return false
			}
		} else if sipURISpecParams[strings.ToLower(name)] {
			return false
		}
		checked[strings.ToLower(name)] = true
	}
	for name := range sipURISpecParams {
		if checked[name] {
			continue
		}
		if b.Has(name) {
			return false
		}
	}
	return true
}

func compareURIHeaders(a, b *params.Params) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, name := range a.Names() {
		v1, _ := a.Get(name)
		v2, ok := b.Get(name)
		if !ok || !strings.EqualFold(v1, v2) {
			return false
		}
	}
	return true
}

func renderURIParams(b *strings.Builder, p *params.Params) {
	names := append([]string(nil), p.Names()...)
	sort.Strings(names)
	for _, name := range names {
		v, _ := p.Get(name)
		b.WriteByte(';')
		b.WriteString(escape(strings.ToLower(name), isUnreservedURIParamChar))
		if p.HasValue(name) {
			b.WriteByte('=')
			b.WriteString(escape(v, isUnreservedURIParamChar))
		}
	}
}

func renderURIHeaders(b *strings.Builder, h *params.Params) {
	if h.Len() == 0 {
		return
	}
	names := append([]string(nil), h.Names()...)
	sort.Strings(names)
	b.WriteByte('?')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		v, _ := h.Get(name)
		b.WriteString(escape(strings.ToLower(name), isUnreservedURIHeaderChar))
		b.WriteByte('=')
		b.WriteString(escape(v, isUnreservedURIHeaderChar))
	}
}

// Any is the fallback representation used for any URI scheme that is
// neither sip: nor sips:, preserving the original text verbatim.
type Any struct {
	Raw string
}

func (u *Any) Scheme() string {
	if i := strings.IndexByte(u.Raw, ':'); i >= 0 {
		return strings.ToLower(u.Raw[:i])
	}
	return ""
}

func (u *Any) Clone() URI {
	if u == nil {
		return nil
	}
	u2 := *u
	return &u2
}

func (u *Any) IsValid() bool { return u != nil && u.Raw != "" }

func (u *Any) String() string { return u.Raw }

func (u *Any) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, u.Raw)
	return n, errtrace.Wrap(err)
}

func (u *Any) Equal(other URI) bool {
	o, ok := other.(*Any)
	return ok && o != nil && u.Raw == o.Raw
}

// Parse parses a URI. A leading "sip:" or "sips:" scheme (checked
// case-insensitively) is parsed structurally into a [SIP]; any other
// scheme is kept verbatim in an [Any].
func Parse(s string) (URI, error) {
	s = lex.TrimLWS(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "sip:") {
		return ParseSIP(s)
	}
	if len(s) >= 5 && strings.EqualFold(s[:5], "sips:") {
		return ParseSIP(s)
	}
	if s == "" {
		return nil, errtrace.Wrap(errs.Wrap(ErrInvalid, "empty URI"))
	}
	return &Any{Raw: s}, nil
}

// ParseSIP parses a sip: or sips: URI.
func ParseSIP(s string) (*SIP, error) {
	secured := false
	switch {
	case strings.HasPrefix(strings.ToLower(s), "sips:"):
		secured = true
		s = s[5:]
	case strings.HasPrefix(strings.ToLower(s), "sip:"):
		s = s[4:]
	default:
		return nil, errtrace.Wrap(errs.Wrap(ErrInvalid, "missing sip/sips scheme"))
	}

	u := &SIP{Secured: secured, Params: params.New(), Headers: params.New()}

	if i := strings.IndexByte(s, '?'); i >= 0 {
		if err := parseURIHeaders(u.Headers, s[i+1:]); err != nil {
			return nil, errtrace.Wrap(err)
		}
		s = s[:i]
	}

	parts := lex.SplitTop(s, ';')
	hostport := parts[0]
	for _, raw := range parts[1:] {
		if raw == "" {
			continue
		}
		if i := strings.IndexByte(raw, '='); i >= 0 {
			u.Params.Set(unescape(raw[:i]), unescape(raw[i+1:]))
		} else {
			u.Params.SetFlag(unescape(raw))
		}
	}

	if i := strings.LastIndexByte(hostport, '@'); i >= 0 {
		userinfo := hostport[:i]
		hostport = hostport[i+1:]
		if j := strings.IndexByte(userinfo, ':'); j >= 0 {
			u.User = UserPassword(unescape(userinfo[:j]), unescape(userinfo[j+1:]))
		} else {
			u.User = User(unescape(userinfo))
		}
	}

	addr, err := ParseAddr(hostport)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	u.Addr = addr
	return u, nil
}

func parseURIHeaders(h *params.Params, s string) error {
	if s == "" {
		return nil
	}
	for _, kv := range strings.Split(s, "&") {
		if kv == "" {
			continue
		}
		if i := strings.IndexByte(kv, '='); i >= 0 {
			h.Set(unescape(kv[:i]), unescape(kv[i+1:]))
		} else {
			h.SetFlag(unescape(kv))
		}
	}
	return nil
}

func isUnreservedUser(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.IndexByte("-_.!~*'()&=+$,;?/", c) >= 0:
		return true
	default:
		return false
	}
}

func isUnreservedURIParamChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.IndexByte("-_.!~*'()[]/:&+$", c) >= 0:
		return true
	default:
		return false
	}
}

func isUnreservedURIHeaderChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case strings.IndexByte("-_.!~*'()[]/:+$", c) >= 0:
		return true
	default:
		return false
	}
}

func escape(s string, unreserved func(byte) bool) string {
	var needed bool
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			needed = true
			break
		}
	}
	if !needed {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
