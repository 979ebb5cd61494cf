package auth

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// proxyList is a set of trusted proxy networks.
type proxyList []*net.IPNet

// parseProxies accepts CIDRs and bare addresses.
func parseProxies(entries []string) (proxyList, error) {
	list := make(proxyList, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 8 * net.IPv4len
			}
			list = append(list, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		list = append(list, n)
	}
	return list, nil
}

func (p proxyList) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range p {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// ClientIP returns the address used for rate limiting. X-Forwarded-For is
// honored only when the direct peer is a trusted proxy.
func (g *Gate) ClientIP(r *http.Request) string {
	peer := remoteIP(r)
	if len(g.proxies) > 0 && g.proxies.contains(peer) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	if peer == nil {
		return r.RemoteAddr
	}
	return peer.String()
}
