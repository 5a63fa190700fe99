package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/grafana/netverify/pkg/logging"
	"github.com/miekg/dns"
)

// SinkholeAddr is the answer an upstream DNS policy gives for names that are
// not allowed out of the sandbox.
var SinkholeAddr = netip.IPv4Unspecified()

// ResolvedAddress is the connectable form of a Target host.
type ResolvedAddress struct {
	IP       netip.Addr
	Sinkhole bool
}

// Lookuper is satisfied by *net.Resolver.
type Lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type Resolver struct {
	lookup Lookuper
	log    logging.Logger
}

// NewResolver returns a Resolver backed by l, or by the system resolver
// when l is nil.
func NewResolver(l Lookuper, log logging.Logger) *Resolver {
	if l == nil {
		l = net.DefaultResolver
	}
	return &Resolver{lookup: l, log: log}
}

// Resolve turns host into an IPv4 address. Literal addresses never reach
// the Lookuper.
func (r *Resolver) Resolve(ctx context.Context, host string) (ResolvedAddress, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		ip = ip.Unmap()
		if !ip.Is4() {
			return ResolvedAddress{}, fmt.Errorf("%w: %s is not an IPv4 address", ErrDNSFailure, host)
		}
		r.log.Debug("literal address, skipping DNS", "host", host)
		return ResolvedAddress{IP: ip}, nil
	}

	addrs, err := r.lookup.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		r.log.Debug("DNS resolution failed", "host", host, "err", err)
		return ResolvedAddress{}, fmt.Errorf("%w: %w", ErrDNSFailure, err)
	}
	if len(addrs) == 0 {
		r.log.Debug("DNS resolution failed", "host", host, "err", "no address records")
		return ResolvedAddress{}, fmt.Errorf("%w: %s: no address records", ErrDNSFailure, host)
	}

	ip := addrs[0].Unmap()
	r.log.Debug("DNS resolved", "host", host, "ip", ip)

	return ResolvedAddress{IP: ip, Sinkhole: ip == SinkholeAddr}, nil
}

// DNSLookuper asks one specific nameserver for A records instead of going
// through the system resolver configuration.
type DNSLookuper struct {
	server string
	client *dns.Client
}

func NewDNSLookuper(server string, timeout time.Duration) *DNSLookuper {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSLookuper{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupNetIP only ever asks for A records; network is accepted for
// interface compatibility.
func (l *DNSLookuper) LookupNetIP(ctx context.Context, _ string, host string) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := l.client.ExchangeContext(ctx, m, l.server)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, &net.DNSError{Err: err.Error(), Name: host, Server: l.server, IsTimeout: isTimeout(err)}
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, &net.DNSError{
			Err:        dns.RcodeToString[in.Rcode],
			Name:       host,
			Server:     l.server,
			IsNotFound: in.Rcode == dns.RcodeNameError,
		}
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if ip, ok := netip.AddrFromSlice(a.A); ok {
			addrs = append(addrs, ip.Unmap())
		}
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, Server: l.server, IsNotFound: true}
	}

	return addrs, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
