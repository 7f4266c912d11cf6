package header

import "braces.dev/errtrace"

// ParseFunc builds one Header from its raw (unfolded, but not yet
// comma-split) field value.
type ParseFunc func(raw string) (Header, error)

// registry maps every canonical header name this module understands
// structurally to its parse function. Any name absent here is parsed
// as [Generic] by the parser package. This is the exhaustive list from
// RFC 3261's header grammar (S. 20), grouped by the shared parsing
// shape rather than duplicated per name.
var registry = map[Name]ParseFunc{}

func register(name Name, fn ParseFunc) { registry[name] = fn }

func wrapToken(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseToken(name, raw)) }
}

func wrapTokenList(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseTokenList(name, raw)) }
}

func wrapText(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseText(name, raw)) }
}

func wrapInteger(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseInteger(name, raw)) }
}

func wrapAddrList(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseAddrList(name, raw)) }
}

func wrapAuth(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseAuth(name, raw)) }
}

func wrapTokenParamsList(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseTokenParamsList(name, raw)) }
}

func wrapURIWithParamsList(name Name) ParseFunc {
	return func(raw string) (Header, error) { return wrapErr(ParseURIWithParamsList(name, raw)) }
}

// wrapErr adapts a `(*T, error)` constructor, where *T implements
// Header, to the uniform ParseFunc signature, returning a nil Header
// interface (not a non-nil interface around a nil *T) on failure.
func wrapErr[T Header](v T, err error) (Header, error) {
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return v, nil
}

func init() {
	register("Call-ID", wrapToken("Call-ID"))
	register("Priority", wrapToken("Priority"))

	register("Allow", wrapTokenList("Allow"))
	register("Require", wrapTokenList("Require"))
	register("Supported", wrapTokenList("Supported"))
	register("Unsupported", wrapTokenList("Unsupported"))
	register("In-Reply-To", wrapTokenList("In-Reply-To"))
	register("Proxy-Require", wrapTokenList("Proxy-Require"))
	register("Content-Encoding", wrapTokenList("Content-Encoding"))
	register("Content-Language", wrapTokenList("Content-Language"))

	register("Organization", wrapText("Organization"))
	register("Server", wrapText("Server"))
	register("Subject", wrapText("Subject"))
	register("User-Agent", wrapText("User-Agent"))

	register("Content-Length", wrapInteger("Content-Length"))
	register("Expires", wrapInteger("Expires"))
	register("Max-Forwards", wrapInteger("Max-Forwards"))
	register("Min-Expires", wrapInteger("Min-Expires"))

	register("CSeq", func(raw string) (Header, error) { return wrapErr(ParseCSeq(raw)) })
	register("Date", func(raw string) (Header, error) { return wrapErr(ParseDate(raw)) })
	register("Timestamp", func(raw string) (Header, error) { return wrapErr(ParseTimestamp(raw)) })
	register("MIME-Version", func(raw string) (Header, error) { return wrapErr(ParseMIMEVersion(raw)) })
	register("Retry-After", func(raw string) (Header, error) { return wrapErr(ParseRetryAfter(raw)) })

	register("Alert-Info", wrapURIWithParamsList("Alert-Info"))
	register("Call-Info", wrapURIWithParamsList("Call-Info"))
	register("Error-Info", wrapURIWithParamsList("Error-Info"))

	register("Content-Type", func(raw string) (Header, error) { return wrapErr(ParseContentType(raw)) })
	register("Accept", func(raw string) (Header, error) { return wrapErr(ParseAccept(raw)) })

	register("Content-Disposition", func(raw string) (Header, error) { return wrapErr(ParseContentDisposition(raw)) })
	register("Accept-Encoding", wrapTokenParamsList("Accept-Encoding"))
	register("Accept-Language", wrapTokenParamsList("Accept-Language"))

	register("From", func(raw string) (Header, error) { return wrapErr(ParseFrom(raw)) })
	register("To", func(raw string) (Header, error) { return wrapErr(ParseTo(raw)) })
	register("Contact", wrapAddrList("Contact"))
	register("Record-Route", wrapAddrList("Record-Route"))
	register("Route", wrapAddrList("Route"))
	register("Reply-To", wrapAddrList("Reply-To"))

	register("Authorization", wrapAuth("Authorization"))
	register("Proxy-Authorization", wrapAuth("Proxy-Authorization"))
	register("WWW-Authenticate", wrapAuth("WWW-Authenticate"))
	register("Proxy-Authenticate", wrapAuth("Proxy-Authenticate"))
	register("Authentication-Info", func(raw string) (Header, error) { return wrapErr(ParseAuthParams(raw)) })

	register("Via", func(raw string) (Header, error) { return wrapErr(ParseVia(raw)) })
	register("Warning", func(raw string) (Header, error) { return wrapErr(ParseWarning(raw)) })
}

// Lookup returns the structural parser registered for a canonical or
// compact header name, and whether one was found.
func Lookup(name string) (ParseFunc, bool) {
	fn, ok := registry[Canonic(name)]
	return fn, ok
}

// Parse parses one header field's raw value using the structural
// parser registered for name, falling back to [Generic] for any name
// with no registered shape.
func Parse(name string, raw string) (Header, error) {
	canon := Canonic(name)
	if fn, ok := registry[canon]; ok {
		h, err := fn(raw)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		return h, nil
	}
	return &Generic{Name: string(canon), Value: raw}, nil
}
