package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, caches and evaluates robots.txt per host.
type RobotsHandler struct {
	fetcher   *Fetcher
	userAgent string
	cache     map[string]*robotstxt.RobotsData // host -> parsed data (nil = unavailable, allow all)
	mu        sync.Mutex
	log       *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler that fetches through fetcher, so robots requests obey the same delay.
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:   fetcher,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether the user agent may fetch target.
// Missing, unreachable or unparsable robots.txt allows everything.
func (rh *RobotsHandler) Allowed(ctx context.Context, target *url.URL) bool {
	data := rh.robotsFor(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rh.userAgent)
}

func (rh *RobotsHandler) robotsFor(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host

	rh.mu.Lock()
	data, found := rh.cache[host]
	rh.mu.Unlock()
	if found {
		return data
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Info("Fetching robots.txt...")

	result, err := rh.fetcher.Fetch(ctx, robotsURL)
	if result == nil {
		// Transport failure or exhausted retries; not cached when the context ended so a later call can retry.
		robotsLog.Warnf("robots.txt unavailable, allowing all: %v", err)
		if ctx.Err() == nil {
			rh.store(host, nil)
		}
		return nil
	}

	// FromStatusAndBytes applies the standard semantics: 4xx allows all, 5xx disallows all.
	data, parseErr := robotstxt.FromStatusAndBytes(result.StatusCode, result.Body)
	if parseErr != nil {
		robotsLog.Warnf("Error parsing robots.txt, allowing all: %v", parseErr)
		data = nil
	} else {
		robotsLog.WithField("status_code", result.StatusCode).Info("Parsed robots.txt")
	}
	rh.store(host, data)
	return data
}

func (rh *RobotsHandler) store(host string, data *robotstxt.RobotsData) {
	rh.mu.Lock()
	rh.cache[host] = data
	rh.mu.Unlock()
}
