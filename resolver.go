package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// AddrResolver resolves a host name to one IPv4 address.
type AddrResolver interface {
	LookupIPv4(ctx context.Context, host string) (netip.Addr, error)
}

type systemResolver struct{ r *net.Resolver }

func (s systemResolver) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no A records for %s", host)
	}
	return addrs[0].Unmap(), nil
}

// dnsResolver asks one DNS server directly (dns_server in config).
type dnsResolver struct {
	server string
	client *dns.Client
}

func newDNSResolver(server string, timeout time.Duration) *dnsResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &dnsResolver{server: server, client: &dns.Client{Timeout: timeout}}
}

func (d *dnsResolver) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true
	r, _, err := d.client.ExchangeContext(ctx, m, d.server)
	if err != nil {
		return netip.Addr{}, err
	}
	if r.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns %s: %s", host, dns.RcodeToString[r.Rcode])
	}
	for _, ans := range r.Answer {
		if a, ok := ans.(*dns.A); ok {
			if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
				return addr, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("no A records for %s", host)
}

type ResolverOptions struct {
	DNSTimeout time.Duration
	GeoTimeout time.Duration
	GeoRPS     float64 // 0 = без ограничения
}

// FlagResolver turns a link host into a country flag. It never fails: every error
// ends as "" and is cached like a real answer until the TTL runs out.
type FlagResolver struct {
	cache   *FlagCache
	dns     AddrResolver
	geo     Geolocator
	limiter *rate.Limiter
	group   singleflight.Group
	opts    ResolverOptions
}

func NewFlagResolver(cache *FlagCache, res AddrResolver, geo Geolocator, opts ResolverOptions) *FlagResolver {
	if opts.DNSTimeout <= 0 {
		opts.DNSTimeout = 5 * time.Second
	}
	if opts.GeoTimeout <= 0 {
		opts.GeoTimeout = 5 * time.Second
	}
	if res == nil {
		res = systemResolver{r: net.DefaultResolver}
	}
	fr := &FlagResolver{cache: cache, dns: res, geo: geo, opts: opts}
	if opts.GeoRPS > 0 {
		fr.limiter = rate.NewLimiter(rate.Limit(opts.GeoRPS), max(1, int(opts.GeoRPS)))
	}
	return fr
}

func (fr *FlagResolver) Resolve(ctx context.Context, host string) string {
	key := strings.ToLower(strings.TrimSpace(host))
	if key == "" {
		return ""
	}
	if flag, ok := fr.cache.Get(key); ok {
		return flag
	}
	// поиск общий для всех ждущих и не зависит от отмены одного из них;
	// сверху его ограничивают DNSTimeout и GeoTimeout
	ch := fr.group.DoChan(key, func() (any, error) {
		if flag, ok := fr.cache.Get(key); ok {
			return flag, nil
		}
		flag, err := fr.lookup(context.WithoutCancel(ctx), key)
		if err != nil {
			logrus.WithField("host", key).Debugln("[flags] lookup failed:", err)
		}
		fr.cache.Set(key, flag)
		return flag, nil
	})
	select {
	case <-ctx.Done():
		return ""
	case r := <-ch:
		return r.Val.(string)
	}
}

func (fr *FlagResolver) lookup(ctx context.Context, host string) (string, error) {
	ip := host
	if !isIPLiteral(host) {
		ascii := host
		if !isASCII(host) {
			var err error
			if ascii, err = idna.Lookup.ToASCII(host); err != nil {
				return "", fmt.Errorf("idna: %w", err)
			}
		}
		dctx, cancel := context.WithTimeout(ctx, fr.opts.DNSTimeout)
		addr, err := fr.dns.LookupIPv4(dctx, ascii)
		cancel()
		if err != nil {
			return "", fmt.Errorf("resolve: %w", err)
		}
		ip = addr.String()
	}
	if fr.geo == nil {
		return "", errors.New("no geolocator configured")
	}

	gctx, cancel := context.WithTimeout(ctx, fr.opts.GeoTimeout)
	defer cancel()
	if fr.limiter != nil {
		if err := fr.limiter.Wait(gctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}
	res, err := fr.geo.Lookup(gctx, ip)
	if err != nil {
		return "", fmt.Errorf("geolocate %s: %w", ip, err)
	}
	if validFlag(res.Flag) {
		return strings.TrimSpace(res.Flag), nil
	}
	return CountryFlag(res.CountryCode), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
