// Package topology supplements core/protocol's pure TopologyView with
// network-facing address resolution: turning a Member's bare hostname
// address into the IP endpoints a transport actually dials.
package topology

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"nhbchain/core/protocol"
)

// Resolver looks up the dialable network endpoints for a member's address.
// Addresses that are already host:port with a literal IP are returned
// as-is; bare hostnames are resolved via DNS A/AAAA lookup against the
// configured resolver, so gossip can reach peers published by DNS name
// rather than a fixed IP (common for topologies that span operators).
type Resolver struct {
	// Nameserver is the "host:port" of the DNS server to query. Empty uses
	// the system resolver via net.DefaultResolver instead of raw DNS.
	Nameserver string
	Timeout    time.Duration
}

// Resolve returns the dialable endpoints for a member's address. An address
// with a literal IP host is returned unchanged as the sole endpoint.
func (r Resolver) Resolve(ctx context.Context, address string) ([]string, error) {
	if address == "" {
		return nil, nil
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return []string{address}, nil
	}
	if r.Nameserver == "" {
		return r.resolveSystem(ctx, host, port)
	}
	return r.resolveDNS(ctx, host, port)
}

func (r Resolver) resolveSystem(ctx context.Context, host, port string) ([]string, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("topology: resolve %s: %w", host, err)
	}
	return joinEndpoints(ips, port), nil
}

func (r Resolver) resolveDNS(ctx context.Context, host, port string) ([]string, error) {
	client := &dns.Client{Timeout: r.timeout()}
	fqdn := dns.Fqdn(host)

	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, dns.TypeA)
	resp, _, err := client.ExchangeContext(ctx, msg, r.Nameserver)
	if err != nil {
		return nil, fmt.Errorf("topology: dns query %s: %w", host, err)
	}

	var ips []net.IPAddr
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			ips = append(ips, net.IPAddr{IP: a.A})
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("topology: no A records for %s", host)
	}
	return joinEndpoints(ips, port), nil
}

func (r Resolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return 2 * time.Second
	}
	return r.Timeout
}

func joinEndpoints(ips []net.IPAddr, port string) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		if port == "" {
			out = append(out, ip.IP.String())
			continue
		}
		out = append(out, net.JoinHostPort(ip.IP.String(), port))
	}
	return out
}

// ResolveMembers resolves every directly-addressable member of a topology,
// returning a map of member key to its resolved endpoints. Members whose
// address fails to resolve are omitted rather than failing the whole call,
// since topology/path discovery (and therefore partial reachability) is
// explicitly out of the protocol core's scope.
func ResolveMembers(ctx context.Context, r Resolver, t protocol.Topology) map[protocol.Key][]string {
	out := make(map[protocol.Key][]string)
	for key, m := range t.Members {
		if m.Address == "" {
			continue
		}
		if strings.TrimSpace(m.Address) == "" {
			continue
		}
		endpoints, err := r.Resolve(ctx, m.Address)
		if err != nil || len(endpoints) == 0 {
			continue
		}
		out[key] = endpoints
	}
	return out
}
