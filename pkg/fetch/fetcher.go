package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/utils"
)

// Result is a fetched page: raw bytes plus the response metadata callers branch on
type Result struct {
	URL         string // Requested URL
	FinalURL    string // After redirects; relative links resolve against this
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher issues rate-limited GETs with retry and exponential backoff.
// It never mutates crawler or harvester state.
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig // Retry settings, user agent, body cap
	limiter *RateLimiter      // Mandatory per-host delay; nil disables it
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, limiter *RateLimiter, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}
}

// Fetch retrieves rawURL using the configured max_retries.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	return f.FetchWithRetry(ctx, rawURL, f.cfg.MaxRetries)
}

// FetchWithRetry retrieves rawURL, retrying network errors, timeouts, 5xx and 429 up to maxRetries times.
// A definitive 4xx returns immediately with a populated Result and an ErrClientHTTPError.
// Exhausted retries return ErrRetryFailed wrapping the last error.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string, maxRetries int) (*Result, error) {
	resp, err := f.do(ctx, rawURL, maxRetries)
	if resp == nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &Result{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	limit := f.cfg.MaxBodyBytes
	var reader io.Reader = resp.Body
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, readErr := io.ReadAll(reader)
	if readErr != nil {
		f.log.WithField("url", rawURL).Warnf("Failed reading response body: %v", readErr)
		return result, fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, rawURL, readErr)
	}

	// Oversized bodies fail rather than being parsed truncated
	if limit > 0 && int64(len(body)) > limit {
		result.Body = body[:limit]
		if err != nil {
			return result, err
		}
		f.log.WithField("url", rawURL).Warnf("Response body exceeds max_body_bytes (%d)", limit)
		return result, fmt.Errorf("%w: %s exceeds %d bytes", utils.ErrResponseBodyRead, rawURL, limit)
	}
	result.Body = body

	return result, err
}

// Download streams rawURL into dst under the same delay and retry policy as FetchWithRetry.
// maxBytes > 0 fails the download when the body is larger. Returns bytes written.
func (f *Fetcher) Download(ctx context.Context, rawURL string, dst io.Writer, maxBytes int64) (int64, error) {
	resp, err := f.do(ctx, rawURL, f.cfg.MaxRetries)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return 0, err
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return 0, fmt.Errorf("%w: %s is %d bytes, limit %d", utils.ErrResponseBodyRead, rawURL, resp.ContentLength, maxBytes)
	}

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	written, copyErr := io.Copy(dst, reader)
	if copyErr != nil {
		return written, fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, rawURL, copyErr)
	}
	if maxBytes > 0 && written > maxBytes {
		return written, fmt.Errorf("%w: %s exceeds %d bytes", utils.ErrResponseBodyRead, rawURL, maxBytes)
	}
	return written, nil
}

// do runs the retry loop and returns the live response; the caller must close its body.
// On a non-retryable non-2xx status both the response and an error are returned.
func (f *Fetcher) do(ctx context.Context, rawURL string, maxRetries int) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, rawURL, err)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w after error: %w", ctx.Err(), lastErr)
			}
			return nil, ctx.Err()
		}

		// --- Exponential Backoff Delay ---
		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		// --- Politeness Delay (every attempt, regardless of the previous outcome) ---
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, parsed.Host); err != nil {
				if lastErr != nil {
					return nil, fmt.Errorf("%w waiting for rate limiter after error: %w", err, lastErr)
				}
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, rawURL, err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			// Our own context ending is final; client timeouts and transport errors are retried.
			if ctx.Err() != nil {
				reqLog.Warnf("Context done during HTTP request: %v", err)
				return nil, ctx.Err()
			}
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			lastErr = fmt.Errorf("%w: %w", utils.ErrNetwork, err)
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
			drainAndClose(resp)
			continue

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
			drainAndClose(resp)
			continue

		case statusCode >= 400:
			resLog.Warn("Client error (4xx), not retrying")
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff returns initial*2^(attempt-1) capped at max_retry_delay, with +/-10% jitter
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.cfg.InitialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || (f.cfg.MaxRetryDelay > 0 && delay > f.cfg.MaxRetryDelay) {
		delay = f.cfg.MaxRetryDelay
	}
	if delay <= 0 {
		return 0
	}
	if spread := int64(delay) / 5; spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - delay/10
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
