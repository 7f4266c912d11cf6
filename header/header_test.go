package header_test

import (
	"strings"
	"testing"

	"github.com/new-neon/sippet/header"
)

func TestCanonic(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"via", "Via"},
		{"v", "Via"},
		{"call-id", "Call-ID"},
		{"i", "Call-ID"},
		{"CSEQ", "CSeq"},
		{"content-length", "Content-Length"},
		{"l", "Content-Length"},
		{"www-authenticate", "WWW-Authenticate"},
		{"x-custom-header", "X-Custom-Header"},
		{"", ""},
	}
	for _, c := range cases {
		if got := header.Canonic(c.in); string(got) != c.want {
			t.Errorf("Canonic(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCompactOf(t *testing.T) {
	t.Parallel()

	if got := header.CompactOf("Via"); got != "v" {
		t.Errorf("CompactOf(Via) = %q, want %q", got, "v")
	}
	if got := header.CompactOf("X-Custom-Header"); got != "X-Custom-Header" {
		t.Errorf("CompactOf(X-Custom-Header) = %q, want itself (no compact form defined)", got)
	}
}

func TestHeaders_AddGetFirstRemove(t *testing.T) {
	t.Parallel()

	hdrs := header.NewHeaders()
	hdrs.Add(&header.Token{Name: "Call-ID", Value: "abc@example.com"})
	hdrs.Add(&header.Integer{Name: "Max-Forwards", Value: 70})
	hdrs.Add(&header.Generic{Name: "X-Custom", Value: "one"})
	hdrs.Add(&header.Generic{Name: "X-Custom", Value: "two"})

	if got := hdrs.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4", got)
	}
	vals := hdrs.Get("x-custom")
	if len(vals) != 2 {
		t.Fatalf("Get(x-custom) = %v, want 2 entries", vals)
	}
	first, ok := hdrs.First("call-id")
	if !ok || first.(*header.Token).Value != "abc@example.com" {
		t.Errorf("First(call-id) = %v, %v, want the Call-ID token", first, ok)
	}

	hdrs.Remove("X-Custom")
	if got := hdrs.Len(); got != 2 {
		t.Fatalf("Len() after Remove = %d, want 2", got)
	}
	if len(hdrs.Get("x-custom")) != 0 {
		t.Error("Get(x-custom) after Remove should be empty")
	}
}

func TestHeaders_Clone_IsIndependent(t *testing.T) {
	t.Parallel()

	hdrs := header.NewHeaders()
	hdrs.Add(&header.Token{Name: "Call-ID", Value: "abc@example.com"})

	clone := hdrs.Clone()
	clone.Remove("Call-ID")

	if hdrs.Len() != 1 {
		t.Error("original mutated by removing from the clone")
	}
}

func TestHeaders_RenderTo(t *testing.T) {
	t.Parallel()

	hdrs := header.NewHeaders()
	hdrs.Add(&header.Token{Name: "Call-ID", Value: "abc@example.com"})
	hdrs.Add(&header.Integer{Name: "Max-Forwards", Value: 70})

	var b strings.Builder
	if _, err := hdrs.RenderTo(&b); err != nil {
		t.Fatalf("RenderTo() error = %v", err)
	}
	want := "Call-ID: abc@example.com\r\nMax-Forwards: 70\r\n"
	if got := b.String(); got != want {
		t.Errorf("RenderTo() = %q, want %q", got, want)
	}
}

func TestHeaders_NilReceiver_BehavesEmpty(t *testing.T) {
	t.Parallel()

	var hdrs *header.Headers
	if hdrs.Len() != 0 {
		t.Errorf("nil Headers.Len() = %d, want 0", hdrs.Len())
	}
	if hdrs.All() != nil {
		t.Error("nil Headers.All() should be nil")
	}
	if hdrs.Clone() != nil {
		t.Error("nil Headers.Clone() should be nil")
	}
}
