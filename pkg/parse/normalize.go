package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// NormalizeURL standardizes a URL for use as a graph node identity
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https), removes trailing slashes from paths (unless root "/"), ensures empty path becomes "/", and removes fragments and query strings
// Two URLs differing only in query or fragment therefore map to the same node
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u
	normalized.User = nil

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = strings.TrimRight(normalized.Path, "/")
		if normalized.Path == "" {
			normalized.Path = "/"
		}
	}
	normalized.RawPath = ""

	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.RawQuery = ""
	normalized.ForceQuery = false

	return normalized.String()
}

// Resolve turns an href found on a page into an absolute URL using base
// Hrefs with a scheme other than http/https (mailto:, javascript:, tel:, data:) are rejected with ErrScopeViolation
func Resolve(rawRef string, base *url.URL) (*url.URL, error) {
	ref := strings.TrimSpace(rawRef)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return nil, fmt.Errorf("%w: empty or fragment-only reference %q", utils.ErrScopeViolation, rawRef)
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %w", utils.ErrParsing, rawRef, err)
	}

	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}

	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	case "":
		if base == nil {
			// Host-relative reference with nothing to resolve against; callers treat empty host as same-site
			return resolved, nil
		}
		return nil, fmt.Errorf("%w: unresolvable reference %q", utils.ErrScopeViolation, rawRef)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q in %q", utils.ErrScopeViolation, resolved.Scheme, rawRef)
	}
	return resolved, nil
}

// Normalize resolves rawRef against base and returns its canonical form along with the resolved URL
func Normalize(rawRef string, base *url.URL) (string, *url.URL, error) {
	resolved, err := Resolve(rawRef, base)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(resolved), resolved, nil
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI (requiring a scheme) and then normalizes it using NormalizeURL
// Used for seeds and configured URLs. Returns the normalized string, the parsed URL object, and any parse error
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", nil, fmt.Errorf("%w: unsupported scheme %q", utils.ErrScopeViolation, parsed.Scheme)
	}
	return NormalizeURL(parsed), parsed, nil
}
