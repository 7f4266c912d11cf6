// Package resolver implements the [transport.Resolver] collaborator:
// it turns a symbolic hostname from a request-URI or Route into a
// literal address the transport layer can dial. Per spec S. 4.3's
// Non-goal, it resolves A/AAAA only — no NAPTR/SRV RFC 3263 procedure
// runs by default. The SRV lookup is implemented and exported anyway
// so a caller that wants the fuller procedure can opt in explicitly;
// it is simply never invoked from ResolveHost itself.
package resolver

import (
	"cmp"
	"context"
	"net"
	"slices"
	"time"

	"braces.dev/errtrace"
	"github.com/miekg/dns"

	"github.com/new-neon/sippet/internal/errs"
	"github.com/new-neon/sippet/transport"
)

// ErrResolve is the sentinel every error from this package wraps.
const ErrResolve errs.Error = "resolver: error"

// ErrNoAddress is returned when a lookup succeeds but yields no usable
// record.
var ErrNoAddress = errs.Wrap(ErrResolve, "no address found")

// Resolver implements [transport.Resolver] through its embedded
// net.Resolver; only LookupSRV goes through a miekg/dns client. It
// mirrors the shape of the teacher's own dns.Resolver,
// specialized to the single ResolveHost entry point the transport
// layer calls.
type Resolver struct {
	net.Resolver

	// NameServer is a literal "host:port" DNS server to query directly
	// via miekg/dns for SRV lookups. If empty, /etc/resolv.conf is
	// consulted. Unused by ResolveHost itself, since A/AAAA resolution
	// goes through the embedded net.Resolver.
	NameServer string
	// Timeout bounds a single DNS exchange; defaults to 5s.
	Timeout time.Duration
}

// New returns a Resolver using the system's default resolver
// configuration.
func New() *Resolver {
	return &Resolver{}
}

// ResolveHost looks up A and AAAA records for host and returns the
// first IPv4 address, else the first address found; proto is not
// consulted. Literal IP addresses are returned unchanged without a
// lookup. This satisfies [transport.Resolver].
func (r *Resolver) ResolveHost(host string, proto transport.Protocol) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
	defer cancel()

	ips, err := r.Resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return "", errtrace.Wrap(errs.Wrap(ErrResolve, "lookup %s: %w", host, err))
	}
	if len(ips) == 0 {
		return "", errtrace.Wrap(ErrNoAddress)
	}

	// Prefer the family WS/WSS/TCP/TLS/UDP would actually dial; IPv4
	// first since that is what most SIP deployments still run.
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return ips[0].String(), nil
}

// SRV is a single RFC 2782 service record, sorted-order result of
// [Resolver.LookupSRV].
type SRV struct {
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// LookupSRV queries "_service._proto.host" and returns its targets
// sorted by Priority then Weight, per RFC 2782. Present for a caller
// that wants the full RFC 3263 procedure; ResolveHost never calls it.
func (r *Resolver) LookupSRV(ctx context.Context, service, proto, host string) ([]*SRV, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn("_"+service+"._"+proto+"."+host), dns.TypeSRV)
	m.RecursionDesired = true

	nameserver, err := r.nameserver()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	client := &dns.Client{Timeout: r.timeout()}
	resp, _, err := client.ExchangeContext(ctx, m, nameserver)
	if err != nil {
		return nil, errtrace.Wrap(errs.Wrap(ErrResolve, "SRV %s.%s.%s: %w", service, proto, host, err))
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, errtrace.Wrap(errs.Wrap(ErrResolve, "SRV %s.%s.%s: rcode %s", service, proto, host, dns.RcodeToString[resp.Rcode]))
	}

	recs := make([]*SRV, 0, len(resp.Answer))
	for _, ans := range resp.Answer {
		if rr, ok := ans.(*dns.SRV); ok {
			recs = append(recs, &SRV{
				Target:   rr.Target,
				Port:     rr.Port,
				Priority: rr.Priority,
				Weight:   rr.Weight,
			})
		}
	}

	sortSRV(recs)
	return recs, nil
}

// sortSRV orders recs by ascending Priority, then descending Weight,
// per RFC 2782's target-selection rule.
func sortSRV(recs []*SRV) {
	slices.SortFunc(recs, func(a, b *SRV) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(b.Weight, a.Weight)
	})
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 5 * time.Second
}

func (r *Resolver) nameserver() (string, error) {
	if r.NameServer != "" {
		if _, _, err := net.SplitHostPort(r.NameServer); err != nil {
			return net.JoinHostPort(r.NameServer, "53"), nil //nolint:nilerr
		}
		return r.NameServer, nil
	}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return "", errtrace.Wrap(err)
	}
	if len(conf.Servers) == 0 {
		return "", errtrace.Wrap(errs.Wrap(ErrResolve, "no DNS servers configured"))
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}
