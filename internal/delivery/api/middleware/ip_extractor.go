package middleware

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// NewIPExtractor decides which address c.RealIP reports. Without trusted proxies
// the TCP peer address is used and forwarding headers are ignored. With trusted
// proxies X-Forwarded-For is honoured only for hops inside those ranges.
func NewIPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	options := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, proxy := range trustedProxies {
		ipNet, err := parseProxyRange(proxy)
		if err != nil {
			return nil, err
		}
		options = append(options, echo.TrustIPRange(ipNet))
	}

	return echo.ExtractIPFromXFFHeader(options...), nil
}

// parseProxyRange accepts a CIDR or a single address.
func parseProxyRange(proxy string) (*net.IPNet, error) {
	proxy = strings.TrimSpace(proxy)
	if strings.Contains(proxy, "/") {
		_, ipNet, err := net.ParseCIDR(proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trusted proxy range %q", proxy)
		}

		return ipNet, nil
	}

	ip := net.ParseIP(proxy)
	if ip == nil {
		return nil, errors.Errorf("invalid trusted proxy address %q", proxy)
	}

	bits := 128
	if ip.To4() != nil {
		ip = ip.To4()
		bits = 32
	}

	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
