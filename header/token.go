package header

import (
	"io"
	"strings"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/internal/lex"
)

// ErrMalformedHeader is the sentinel wrapped by per-header parse
// failures; the parser package drops the offending header and logs
// the wrapped detail rather than failing the whole message.
const ErrMalformedHeader errs.Error = "header: malformed"

// Token is a single RFC 2616 token value, used for Call-ID and
// Priority.
type Token struct {
	Name  Name
	Value string
}

func ParseToken(name Name, raw string) (*Token, error) {
	raw = lex.TrimLWS(raw)
	if name != "Call-ID" && !lex.IsToken(raw) {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: not a token: %q", name, raw))
	}
	if raw == "" {
		return nil, errtrace.Wrap(errs.Wrap(ErrMalformedHeader, "%s: empty value", name))
	}
	return &Token{Name: name, Value: raw}, nil
}

func (h *Token) CanonicName() Name   { return h.Name }
func (h *Token) CompactName() Name   { return CompactOf(h.Name) }
func (h *Token) RenderValue() string { return h.Value }
func (h *Token) String() string      { return h.Value }

func (h *Token) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.Value)
	return n, errtrace.Wrap(err)
}

func (h *Token) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *Token) Equal(other Header) bool {
	o, ok := other.(*Token)
	return ok && o != nil && h.Name == o.Name && strings.EqualFold(h.Value, o.Value)
}

// TokenList is a comma-separated list of tokens, in parsed order.
// Covers Allow, Require, Supported, Unsupported, In-Reply-To,
// Proxy-Require, Content-Encoding, Content-Language.
type TokenList struct {
	Name   Name
	Values []string
}

func ParseTokenList(name Name, raw string) (*TokenList, error) {
	els := splitElements(raw)
	h := &TokenList{Name: name, Values: make([]string, 0, len(els))}
	for _, el := range els {
		h.Values = append(h.Values, el)
	}
	return h, nil
}

func (h *TokenList) CanonicName() Name { return h.Name }
func (h *TokenList) CompactName() Name { return CompactOf(h.Name) }

func (h *TokenList) RenderValue() string { return strings.Join(h.Values, ", ") }
func (h *TokenList) String() string      { return h.RenderValue() }

func (h *TokenList) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.RenderValue())
	return n, errtrace.Wrap(err)
}

func (h *TokenList) Clone() Header {
	if h == nil {
		return nil
	}
	return &TokenList{Name: h.Name, Values: append([]string(nil), h.Values...)}
}

func (h *TokenList) Equal(other Header) bool {
	o, ok := other.(*TokenList)
	if !ok || o == nil || h.Name != o.Name || len(h.Values) != len(o.Values) {
		return false
	}
	for i := range h.Values {
		if !strings.EqualFold(h.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

// Text is a trimmed-but-otherwise-verbatim UTF-8 value, used for
// Organization, Server, Subject, User-Agent.
type Text struct {
	Name  Name
	Value string
}

func ParseText(name Name, raw string) (*Text, error) {
	return &Text{Name: name, Value: lex.TrimLWS(raw)}, nil
}

func (h *Text) CanonicName() Name   { return h.Name }
func (h *Text) CompactName() Name   { return CompactOf(h.Name) }
func (h *Text) RenderValue() string { return h.Value }
func (h *Text) String() string      { return h.Value }

func (h *Text) RenderTo(w io.Writer) (int, error) {
	n, err := io.WriteString(w, h.Value)
	return n, errtrace.Wrap(err)
}

func (h *Text) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := *h
	return &h2
}

func (h *Text) Equal(other Header) bool {
	o, ok := other.(*Text)
	return ok && o != nil && h.Name == o.Name && h.Value == o.Value
}
