package view

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	. "drover/internal/logging"
)

// URLSafetyError is a URL rejected before any navigation happened.
type URLSafetyError struct {
	URL    string
	Reason string
}

func (e *URLSafetyError) Error() string {
	return fmt.Sprintf("URL blocked: %s", e.Reason)
}

// ValidateURLSafety rejects URLs the browser must never be driven to.
// It guards against SSRF by allowing only http/https, resolving the
// hostname to catch encoding tricks, and blocking loopback, private,
// link-local and cloud metadata addresses.
func ValidateURLSafety(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("scheme '%s' not allowed, only http/https", parsed.Scheme)}
	}

	host := parsed.Hostname()
	if host == "" {
		return &URLSafetyError{URL: urlStr, Reason: "empty hostname"}
	}

	if isCloudMetadataHost(host) {
		return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("cloud metadata hostname blocked: %s", host)}
	}

	// Resolving catches decimal/hex/octal IP encodings, short forms
	// like 127.1, and domains that point back into private space.
	ips, err := net.LookupIP(host)
	if err != nil {
		ip := net.ParseIP(host)
		if ip == nil {
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
		}
		ips = []net.IP{ip}
	}

	for _, ip := range ips {
		if reason := isBlockedIP(ip); reason != "" {
			L_debug("urlsafety: blocked IP", "url", urlStr, "host", host, "ip", ip.String(), "reason", reason)
			return &URLSafetyError{URL: urlStr, Reason: fmt.Sprintf("%s (%s resolves to %s)", reason, host, ip.String())}
		}
	}

	L_trace("urlsafety: URL passed validation", "url", urlStr, "host", host)
	return nil
}

// isBlockedIP returns a reason when the IP must not be reached, or "".
func isBlockedIP(ip net.IP) string {
	if ip.IsLoopback() {
		return "loopback address blocked"
	}
	if ip.IsPrivate() {
		return "private network address blocked"
	}
	if ip.IsLinkLocalUnicast() {
		return "link-local address blocked"
	}
	if ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return "multicast address blocked"
	}
	if ip.IsUnspecified() {
		return "unspecified address blocked"
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return "cloud metadata address blocked"
	}

	// IPv4-mapped IPv6 addresses: unwrap and recheck the IPv4.
	if ip4 := ip.To4(); ip4 != nil && !ip.Equal(ip4) {
		if reason := isBlockedIP(ip4); reason != "" {
			return reason + " (IPv4-mapped)"
		}
	}

	return ""
}

func isCloudMetadataHost(host string) bool {
	host = strings.ToLower(host)

	metadataHosts := []string{
		"metadata.google.internal",
		"metadata.goog",
		"kubernetes.default.svc",
		"kubernetes.default",
		"metadata",
	}

	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}

	return false
}
