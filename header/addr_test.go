package header_test

import (
	"testing"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/uri"
)

func TestParseNameAddr_AngleForm(t *testing.T) {
	t.Parallel()

	na, err := header.ParseNameAddr(`"Bob" <sip:bob@biloxi.example.com>;tag=456248`)
	if err != nil {
		t.Fatalf("ParseNameAddr() error = %v", err)
	}
	if na.DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want %q", na.DisplayName, "Bob")
	}
	sipURI, ok := na.URI.(*uri.SIP)
	if !ok {
		t.Fatalf("URI = %T, want *uri.SIP", na.URI)
	}
	if sipURI.Addr.Host != "biloxi.example.com" {
		t.Errorf("URI host = %q, want %q", sipURI.Addr.Host, "biloxi.example.com")
	}
	if tag, ok := na.Tag(); !ok || tag != "456248" {
		t.Errorf("Tag() = %q, %v, want %q, true", tag, ok, "456248")
	}
}

func TestParseNameAddr_AngleForm_NoDisplayName(t *testing.T) {
	t.Parallel()

	na, err := header.ParseNameAddr("<sip:alice@atlanta.example.com>")
	if err != nil {
		t.Fatalf("ParseNameAddr() error = %v", err)
	}
	if na.DisplayName != "" {
		t.Errorf("DisplayName = %q, want empty", na.DisplayName)
	}
	if na.URI == nil || na.URI.String() != "sip:alice@atlanta.example.com" {
		t.Errorf("URI = %v, want sip:alice@atlanta.example.com", na.URI)
	}
}

func TestParseNameAddr_AddrSpecForm_ParamsMoveToElement(t *testing.T) {
	t.Parallel()

	// No angle brackets to delimit the URI, so the SIP URI parser
	// greedily consumes the trailing ;user=phone as its own param;
	// ParseNameAddr then reassigns it to the element's own Params,
	// since the addr-spec grammar has no generic-param of its own for
	// ParseNameAddr to otherwise attach it to.
	na, err := header.ParseNameAddr("sip:+12125551212@gw1.example.net;user=phone")
	if err != nil {
		t.Fatalf("ParseNameAddr() error = %v", err)
	}
	if v, ok := na.Params.Get("user"); !ok || v != "phone" {
		t.Errorf("NameAddr.Params[user] = %q, %v, want %q, true", v, ok, "phone")
	}
	sipURI, ok := na.URI.(*uri.SIP)
	if !ok {
		t.Fatalf("URI = %T, want *uri.SIP", na.URI)
	}
	if sipURI.Params.Len() != 0 {
		t.Errorf("URI.Params = %v, want empty (moved to the element)", sipURI.Params.Names())
	}
}

func TestParseAddrList_QuotedCommaInDisplayName(t *testing.T) {
	t.Parallel()

	// A comma inside a quoted display-name must not split the element:
	// this is the header field where naive comma-splitting breaks.
	raw := `"Smith, John" <sip:j@a.example.com>, <sip:k@b.example.com>`
	list, err := header.ParseAddrList("Contact", raw)
	if err != nil {
		t.Fatalf("ParseAddrList() error = %v", err)
	}
	if len(list.Elems) != 2 {
		t.Fatalf("len(Elems) = %d, want 2", len(list.Elems))
	}
	if got := list.Elems[0].DisplayName; got != "Smith, John" {
		t.Errorf("Elems[0].DisplayName = %q, want %q", got, "Smith, John")
	}
	if got := list.Elems[0].URI.String(); got != "sip:j@a.example.com" {
		t.Errorf("Elems[0].URI = %q, want %q", got, "sip:j@a.example.com")
	}
	if got := list.Elems[1].URI.String(); got != "sip:k@b.example.com" {
		t.Errorf("Elems[1].URI = %q, want %q", got, "sip:k@b.example.com")
	}
	if list.Elems[1].DisplayName != "" {
		t.Errorf("Elems[1].DisplayName = %q, want empty", list.Elems[1].DisplayName)
	}
}

func TestParseAddrList_ContactStar(t *testing.T) {
	t.Parallel()

	list, err := header.ParseAddrList("Contact", "*")
	if err != nil {
		t.Fatalf("ParseAddrList() error = %v", err)
	}
	if !list.Star {
		t.Error("Star = false, want true for Contact: *")
	}
	if len(list.Elems) != 0 {
		t.Errorf("len(Elems) = %d, want 0 for the wildcard form", len(list.Elems))
	}
	if got := list.RenderValue(); got != "*" {
		t.Errorf("RenderValue() = %q, want %q", got, "*")
	}
}

func TestParseAddrList_RouteSetOrderPreserved(t *testing.T) {
	t.Parallel()

	raw := "<sip:proxy1.example.com;lr>, <sip:proxy2.example.com;lr>"
	list, err := header.ParseAddrList("Record-Route", raw)
	if err != nil {
		t.Fatalf("ParseAddrList() error = %v", err)
	}
	if len(list.Elems) != 2 {
		t.Fatalf("len(Elems) = %d, want 2", len(list.Elems))
	}
	if got := list.Elems[0].URI.String(); got != "sip:proxy1.example.com;lr" {
		t.Errorf("Elems[0].URI = %q, want %q", got, "sip:proxy1.example.com;lr")
	}
	if got := list.Elems[1].URI.String(); got != "sip:proxy2.example.com;lr" {
		t.Errorf("Elems[1].URI = %q, want %q", got, "sip:proxy2.example.com;lr")
	}
}

func TestFrom_Equal_IgnoresNonSpecialParams(t *testing.T) {
	t.Parallel()

	a, err := header.ParseFrom(`"Alice" <sip:alice@atlanta.example.com>;tag=1928301774`)
	if err != nil {
		t.Fatalf("ParseFrom() error = %v", err)
	}
	b, err := header.ParseFrom(`<sip:alice@atlanta.example.com>;tag=1928301774;extra=ignored`)
	if err != nil {
		t.Fatalf("ParseFrom() error = %v", err)
	}
	if !a.Equal(b) {
		t.Error("Equal() = false, want true (only tag is compared, display-name and extra params are not)")
	}
}

func TestFrom_Equal_DifferentTag(t *testing.T) {
	t.Parallel()

	a, err := header.ParseFrom("<sip:alice@atlanta.example.com>;tag=1")
	if err != nil {
		t.Fatalf("ParseFrom() error = %v", err)
	}
	b, err := header.ParseFrom("<sip:alice@atlanta.example.com>;tag=2")
	if err != nil {
		t.Fatalf("ParseFrom() error = %v", err)
	}
	if a.Equal(b) {
		t.Error("Equal() = true for two different tags, want false")
	}
}

func TestNameAddr_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{
		`"Bob" <sip:bob@biloxi.example.com>;tag=456248`,
		"<sip:alice@atlanta.example.com>",
		"<sip:proxy.example.com;lr>",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			na, err := header.ParseNameAddr(raw)
			if err != nil {
				t.Fatalf("ParseNameAddr(%q) error = %v", raw, err)
			}
			if got := na.String(); got != raw {
				t.Errorf("String() = %q, want %q", got, raw)
			}
		})
	}
}
