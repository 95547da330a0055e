package parse

import (
	"net/url"
	"regexp"
	"strings"
)

// Scope decides which URLs the crawler may follow
type Scope struct {
	Host       string           // Target host name without port; compared case-insensitively
	Disallowed []*regexp.Regexp // Optional path filters
}

// NewScope builds a Scope for host; patterns are matched against the URL path
func NewScope(host string, disallowed []*regexp.Regexp) Scope {
	return Scope{Host: strings.ToLower(host), Disallowed: disallowed}
}

// InScope reports whether u may be visited: its host name matches exactly or is empty (same-site reference),
// and its path hits no disallowed pattern. Ports are not part of the comparison
func (s Scope) InScope(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Host != "" && !strings.EqualFold(u.Hostname(), s.Host) {
		return false
	}
	for _, re := range s.Disallowed {
		if re.MatchString(u.Path) {
			return false
		}
	}
	return true
}
