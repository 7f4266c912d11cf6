package header

import (
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
	"github.com/new-neon/sippet/params"
)

// quotedAuthParams is the set of auth-param names whose values are
// always rendered quoted, per RFC 3261 S. 25's digest-challenge
// grammar (username, realm, nonce, uri, response, cnonce, opaque,
// domain). qop is not in the set and is always rendered bare, even when
// its value is a qop-options list.
var quotedAuthParams = map[string]bool{
	"username": true, "realm": true, "nonce": true, "uri": true,
	"response": true, "cnonce": true, "opaque": true, "domain": true,
}

// Auth carries a scheme token followed by a comma-separated list of
// name=value credentials, used by Authorization, Proxy-Authorization,
// WWW-Authenticate, Proxy-Authenticate.
type Auth struct {
	Name   Name
	Scheme string
	Params *params.Params
}

func ParseAuth(name Name, raw string) (*Auth, error) {
	raw = lex.TrimLWS(raw)
	fields := lex.SplitFields(raw)
	if len(fields) == 0 {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: empty value", name))
	}
	scheme := fields[0]
	rest := lex.TrimLWS(strings.TrimPrefix(raw, scheme))
	h := &Auth{Name: name, Scheme: scheme, Params: params.New()}
	for _, kv := range lex.SplitTop(rest, ',') {
		kv = lex.TrimLWS(kv)
		if kv == "" {
			continue
		}
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: bad auth-param: %q", name, kv))
		}
		k := lex.TrimLWS(kv[:i])
		v := lex.Unquote(lex.TrimLWS(kv[i+1:]))
		h.Params.Set(k, v)
	}
	return h, nil
}

func (h *Auth) CanonicName() Name { return h.Name }
func (h *Auth) CompactName() Name { return CompactOf(h.Name) }

func (h *Auth) RenderValue() string {
	var b strings.Builder
	b.WriteString(h.Scheme)
	b.WriteByte(' ')
	for i, name := range h.Params.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := h.Params.Get(name)
		b.WriteString(name)
		b.WriteByte('=')
		if quotedAuthParams[strings.ToLower(name)] {
			b.WriteString(lex.Quote(v, true))
		} else {
			b.WriteString(v)
		}
	}
	return b.String()
}

func (h *Auth) String() string { return h.RenderValue() }

func (h *Auth) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *Auth) Clone() Header {
	if h == nil {
		return nil
	}
	return &Auth{Name: h.Name, Scheme: h.Scheme, Params: h.Params.Clone()}
}

func (h *Auth) Equal(other Header) bool {
	o, ok := other.(*Auth)
	return ok && o != nil && h.Name == o.Name && strings.EqualFold(h.Scheme, o.Scheme) && paramsEqual(h.Params, o.Params)
}

// AuthParams is the params-only shape used by Authentication-Info: a
// comma-list of name=value with no leading scheme token.
type AuthParams struct {
	Params *params.Params
}

func ParseAuthParams(raw string) (*AuthParams, error) {
	h := &AuthParams{Params: params.New()}
	for _, kv := range lex.SplitTop(lex.TrimLWS(raw), ',') {
		kv = lex.TrimLWS(kv)
		if kv == "" {
			continue
		}
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "Authentication-Info: bad auth-param: %q", kv))
		}
		h.Params.Set(lex.TrimLWS(kv[:i]), lex.Unquote(lex.TrimLWS(kv[i+1:])))
	}
	return h, nil
}

func (h *AuthParams) CanonicName() Name { return "Authentication-Info" }
func (h *AuthParams) CompactName() Name { return "Authentication-Info" }

func (h *AuthParams) RenderValue() string {
	var b strings.Builder
	for i, name := range h.Params.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := h.Params.Get(name)
		b.WriteString(name)
		b.WriteByte('=')
		if quotedAuthParams[strings.ToLower(name)] {
			b.WriteString(lex.Quote(v, true))
		} else {
			b.WriteString(v)
		}
	}
	return b.String()
}

func (h *AuthParams) String() string { return h.RenderValue() }

func (h *AuthParams) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *AuthParams) Clone() Header {
	if h == nil {
		return nil
	}
	return &AuthParams{Params: h.Params.Clone()}
}

func (h *AuthParams) Equal(other Header) bool {
	o, ok := other.(*AuthParams)
	return ok && o != nil && paramsEqual(h.Params, o.Params)
}
