// Package ipchecker extracts the client address of an HTTP request. Proxy
// headers are honoured only when the direct peer sits in a trusted subnet.
package ipchecker

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPChecker resolves client IP addresses, trusting forwarding headers only
// from peers inside the configured subnet.
type IPChecker struct {
	trustedSubnet *net.IPNet
}

// New creates an IPChecker. An empty trustedSubnet means no proxy is trusted
// and the peer address is always used.
//
// The trustedSubnet must be in CIDR notation (e.g., "192.168.1.0/24").
func New(trustedSubnet string) (*IPChecker, error) {
	if trustedSubnet == "" {
		return &IPChecker{
			trustedSubnet: nil,
		}, nil
	}
	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}
	return &IPChecker{
		trustedSubnet: allowedNet,
	}, nil
}

// Check reports whether ip belongs to the trusted subnet.
func (checker *IPChecker) Check(ip net.IP) bool {
	return checker.trustedSubnet != nil && ip != nil && checker.trustedSubnet.Contains(ip)
}

// GetClientIP returns the address the request should be attributed to. For a
// trusted peer the "X-Real-IP" header is used first, then the first
// "X-Forwarded-For" entry; otherwise the peer address from RemoteAddr.
func (checker *IPChecker) GetClientIP(request *http.Request) (net.IP, error) {
	peer, err := remoteIP(request.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/GetClientIP(): error while `remoteIP()` calling: %w", err)
	}
	if !checker.Check(peer) {
		return peer, nil
	}

	if ip := net.ParseIP(strings.TrimSpace(request.Header.Get("X-Real-IP"))); ip != nil {
		return ip, nil
	}
	if xff := request.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip, nil
		}
	}

	return peer, nil
}

// IsTrustedSubnetEmpty returns true if no trusted proxy subnet is configured.
func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return checker.trustedSubnet == nil
}

func remoteIP(remoteAddr string) (net.IP, error) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("unparseable remote address %q", remoteAddr)
	}

	return ip, nil
}
