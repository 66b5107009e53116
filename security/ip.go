package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client IP address from the request, consulting
// X-Forwarded-For and X-Real-IP when the service sits behind a trusted proxy.
//
// Only enable trustProxy when a trusted reverse proxy terminates connections;
// otherwise the headers are attacker-controlled. trustedProxyCount is how
// many proxies to trust counting from the right of X-Forwarded-For, which
// prevents spoofing in multi-proxy setups.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := ipFromRealIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// ipFromForwardedFor parses X-Forwarded-For and extracts the client IP.
// The header format is "client-ip, proxy1, proxy2, ..." with the rightmost
// entries appended by the proxies closest to us.
//
// Example with trustedProxyCount=2:
//
//	Client (1.2.3.4) -> UntrustedProxy -> TrustedProxy2 -> TrustedProxy1 (us)
//	X-Forwarded-For: "1.2.3.4, untrusted-ip, proxy2-ip"
//	We extract: ips[len(ips) - trustedProxyCount - 1] = ips[0] = "1.2.3.4"
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	if len(ips) == 0 {
		return ""
	}

	clientIP := strings.TrimSpace(ips[clientIPIndex(len(ips), trustedProxyCount)])
	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

// clientIPIndex determines the index of the client IP in the forwarded list.
// If trustedProxyCount is 0, one trusted proxy is assumed. When the list is
// shorter than expected the leftmost entry is used.
func clientIPIndex(numIPs, trustedProxyCount int) int {
	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}

	idx := numIPs - proxyCount - 1
	if idx < 0 {
		return 0
	}
	return idx
}

func ipFromRealIP(xri string) string {
	if xri == "" {
		return ""
	}
	if net.ParseIP(xri) != nil {
		return xri
	}
	return ""
}

// ipFromRemoteAddr extracts the IP of the direct connection, which may be a
// proxy when the proxy headers are not trusted.
func ipFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
