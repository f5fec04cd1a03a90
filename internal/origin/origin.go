// Package origin validates browser Origin headers for the relay's HTTP and
// WebSocket endpoints.
package origin

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates an Origin header value and returns its canonical
// `scheme://host[:port]` form plus the host[:port] part for same-host checks.
//
// Default ports are stripped, scheme and hostname are lowercased, and the
// special value "null" (sandboxed iframes, file://) is passed through.
func Normalize(header string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	// An origin is scheme://host[:port] and nothing else.
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", "", false
	}

	var port int
	if rawPort := u.Port(); rawPort != "" {
		n, err := strconv.Atoi(rawPort)
		if err != nil || n <= 0 || n > 65535 {
			return "", "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host = hostname
	if strings.Contains(hostname, ":") {
		// IPv6 literal.
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.Itoa(port)
	}
	return scheme + "://" + host, host, true
}

// Allowed reports whether the normalized origin may access the relay.
//
// With a non-empty allow list, each entry must be "*" or a normalized origin.
// With an empty allow list the policy is same-host only: the origin's
// host[:port] must match the request's Host header, treating default ports as
// equivalent.
func Allowed(normalized, originHost, requestHost string, allowList []string) bool {
	if len(allowList) > 0 {
		for _, entry := range allowList {
			if entry == "*" || entry == normalized {
				return true
			}
		}
		return false
	}

	if normalized == "null" {
		return false
	}
	return hostsEquivalent(originHost, requestHost)
}

func hostsEquivalent(a, b string) bool {
	return canonicalHost(a) == canonicalHost(b)
}

func canonicalHost(hostport string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, ""
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if port == "80" || port == "443" || port == "" {
		return host
	}
	return host + ":" + port
}
