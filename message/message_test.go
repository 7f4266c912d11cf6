package message_test

import (
	"strings"
	"testing"

	"github.com/new-neon/sippet/header"
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/params"
	"github.com/new-neon/sippet/uri"
)

func sipURI(user, host string) *uri.SIP {
	u := uri.NewSIP(uri.Host(host))
	if user != "" {
		u.User = uri.User(user)
	}
	return u
}

func nameAddr(u uri.URI) header.NameAddr {
	return header.NameAddr{URI: u, Params: params.New()}
}

func minimalRequest(t *testing.T, method message.RequestMethod) *message.Request {
	t.Helper()

	req := message.NewRequest(method, sipURI("bob", "biloxi.example.com"))
	hdrs := req.Headers()

	via := header.ViaHop{
		ProtoName: "SIP", ProtoVersion: "2.0", Transport: "UDP",
		Addr: uri.HostPort("192.0.2.1", 5060), Params: params.New(),
	}
	via.Params.Set("branch", "z9hG4bK-1")
	hdrs.Add(&header.Via{Hops: []header.ViaHop{via}})
	hdrs.Add(&header.Integer{Name: "Max-Forwards", Value: 70})

	from := &header.From{NameAddr: nameAddr(sipURI("alice", "atlanta.example.com"))}
	from.Params.Set("tag", "alice-tag")
	hdrs.Add(from)
	hdrs.Add(&header.To{NameAddr: nameAddr(sipURI("bob", "biloxi.example.com"))})
	hdrs.Add(&header.Token{Name: "Call-ID", Value: "call-1@atlanta.example.com"})
	hdrs.Add(&header.CSeq{Seq: 1, Method: string(method)})
	return req
}

func TestRequest_Validate_MissingMandatoryHeader(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() on a well-formed request error = %v", err)
	}

	req.Headers().Remove("Call-ID")
	if err := req.Validate(); err == nil {
		t.Fatal("Validate() with Call-ID removed error = nil, want non-nil")
	}
}

func TestRequest_Validate_ContentLengthMismatch(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	req.SetBody([]byte("v=0"))
	req.Headers().Add(&header.Integer{Name: "Content-Length", Value: 999})

	if err := req.Validate(); err == nil {
		t.Fatal("Validate() with mismatched Content-Length error = nil, want non-nil")
	}
}

func TestRequest_NewResponse_CopiesDialogHeaders(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	resp, err := req.NewResponse(message.StatusOK, &message.ResponseOptions{LocalTag: "bob-tag"})
	if err != nil {
		t.Fatalf("NewResponse() error = %v", err)
	}

	if resp.Status != message.StatusOK {
		t.Errorf("Status = %d, want %d", resp.Status, message.StatusOK)
	}
	if resp.Reason != "OK" {
		t.Errorf("Reason = %q, want %q", resp.Reason, "OK")
	}
	if callID, ok := resp.CallID(); !ok || callID != "call-1@atlanta.example.com" {
		t.Errorf("CallID() = %q, %v, want copied from request", callID, ok)
	}
	if cseq, ok := resp.CSeq(); !ok || cseq.Seq != 1 || cseq.Method != "INVITE" {
		t.Errorf("CSeq() = %+v, %v, want copied from request", cseq, ok)
	}
	to, ok := resp.To()
	if !ok {
		t.Fatal("To() missing on response")
	}
	if tag, ok := to.Tag(); !ok || tag != "bob-tag" {
		t.Errorf("To tag = %q, %v, want %q, true", tag, ok, "bob-tag")
	}
}

func TestRequest_NewResponse_100Trying_NoLocalTagStamped(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	resp, err := req.NewResponse(message.StatusTrying, &message.ResponseOptions{LocalTag: "bob-tag"})
	if err != nil {
		t.Fatalf("NewResponse() error = %v", err)
	}
	to, ok := resp.To()
	if !ok {
		t.Fatal("To() missing on response")
	}
	if _, ok := to.Tag(); ok {
		t.Error("100 Trying response should not have a To tag stamped")
	}
}

func TestRequest_NewResponse_RejectsACK(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodACK)
	if _, err := req.NewResponse(message.StatusOK, nil); err == nil {
		t.Fatal("NewResponse() for an ACK request error = nil, want non-nil")
	}
}

func TestRequest_NewResponse_AutoContentLength(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	body := []byte("v=0\r\no=alice 1 1 IN IP4 atlanta.example.com\r\n")
	resp, err := req.NewResponse(message.StatusOK, &message.ResponseOptions{Body: body})
	if err != nil {
		t.Fatalf("NewResponse() error = %v", err)
	}
	cl, ok := resp.Headers().First("Content-Length")
	if !ok {
		t.Fatal("Content-Length header missing after setting a body")
	}
	if got := cl.(*header.Integer).Value; got != uint64(len(body)) {
		t.Errorf("Content-Length = %d, want %d", got, len(body))
	}
}

func TestRequest_Clone_IsIndependent(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	clone := req.Clone().(*message.Request)
	clone.Headers().Remove("Call-ID")

	if _, ok := req.CallID(); !ok {
		t.Error("original request lost its Call-ID after mutating the clone")
	}
}

func TestRequest_RenderTo_RoundTripsThroughFields(t *testing.T) {
	t.Parallel()

	req := minimalRequest(t, message.MethodINVITE)
	req.SetBody([]byte("v=0"))
	req.Headers().Add(&header.Integer{Name: "Content-Length", Value: 3})

	rendered := req.String()
	if !strings.HasPrefix(rendered, "INVITE sip:bob@biloxi.example.com SIP/2.0\r\n") {
		t.Errorf("rendered start line wrong:\n%s", rendered)
	}
	if !strings.HasSuffix(rendered, "\r\n\r\nv=0") {
		t.Errorf("rendered body/terminator wrong:\n%s", rendered)
	}
}

func TestResponse_ReverseRecordRoutes(t *testing.T) {
	t.Parallel()

	resp := message.NewResponse(message.StatusOK, "")
	rr1 := nameAddr(sipURI("", "proxy1.example.com"))
	rr2 := nameAddr(sipURI("", "proxy2.example.com"))
	resp.Headers().Add(&header.AddrList{Name: "Record-Route", Elems: []header.NameAddr{rr1, rr2}})

	got := resp.ReverseRecordRoutes()
	if len(got) != 2 || got[0].URI.String() != rr2.URI.String() || got[1].URI.String() != rr1.URI.String() {
		t.Errorf("ReverseRecordRoutes() = %v, want reversed order", got)
	}
}

func TestResponseStatus_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status                                 message.ResponseStatus
		provisional, success, redirect, final bool
	}{
		{message.StatusTrying, true, false, false, false},
		{message.StatusOK, false, true, false, true},
		{message.StatusMovedPermanently, false, false, true, true},
		{message.StatusBadRequest, false, false, false, true},
	}
	for _, c := range cases {
		if got := c.status.IsProvisional(); got != c.provisional {
			t.Errorf("%d.IsProvisional() = %v, want %v", c.status, got, c.provisional)
		}
		if got := c.status.IsSuccess(); got != c.success {
			t.Errorf("%d.IsSuccess() = %v, want %v", c.status, got, c.success)
		}
		if got := c.status.IsRedirect(); got != c.redirect {
			t.Errorf("%d.IsRedirect() = %v, want %v", c.status, got, c.redirect)
		}
		if got := c.status.IsFinal(); got != c.final {
			t.Errorf("%d.IsFinal() = %v, want %v", c.status, got, c.final)
		}
	}
}
