// Package ipchecker restricts a route to callers from a trusted subnet. The
// aggregator webhook uses it when the deployment knows the vendor's egress
// range.
package ipchecker

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/jjbank/internal/logger"
)

// IPChecker holds an optional trusted subnet. Without one every caller is
// allowed.
type IPChecker struct {
	trustedSubnet *net.IPNet
}

// New parses trustedSubnet in CIDR notation (e.g. "52.21.26.131/32").
// An empty string disables the restriction.
func New(trustedSubnet string) (*IPChecker, error) {
	if trustedSubnet == "" {
		return &IPChecker{}, nil
	}
	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}

	return &IPChecker{trustedSubnet: allowedNet}, nil
}

// Allows reports whether clientIP may call the restricted route.
func (checker *IPChecker) Allows(clientIP net.IP) bool {
	if checker.trustedSubnet == nil {
		return true
	}
	return clientIP != nil && checker.trustedSubnet.Contains(clientIP)
}

// ClientIP extracts the caller's address, checking in order the "X-Real-IP"
// header, the first "X-Forwarded-For" entry and RemoteAddr.
func ClientIP(request *http.Request) (net.IP, error) {
	if ip := net.ParseIP(strings.TrimSpace(request.Header.Get("X-Real-IP"))); ip != nil {
		return ip, nil
	}
	if xff := request.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip, nil
		}
	}
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/ClientIP(): error while `net.SplitHostPort()` calling: %w", err)
	}

	return net.ParseIP(host), nil
}

// Restrict answers 403 to callers outside the trusted subnet.
func (checker *IPChecker) Restrict(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if checker.trustedSubnet == nil {
			h.ServeHTTP(response, request)
			return
		}

		clientIP, err := ClientIP(request)
		if err != nil || !checker.Allows(clientIP) {
			logger.Log.Infow("request from outside the trusted subnet", "uri", request.RequestURI, "ip", clientIP)
			response.WriteHeader(http.StatusForbidden)
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
