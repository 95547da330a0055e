package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	if got := CategorizeError(nil); got != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", got, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"RobotsDisallowed", ErrRobotsDisallowed, "Policy_Robots"},
		{"ScopeViolation", ErrScopeViolation, "Policy_Scope"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Network", ErrNetwork, "Network_Other"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"Persistence", ErrPersistence, "Persistence_Write"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"retry over 5xx", fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 503", ErrServerHTTPError)), "RetryFailed_HTTPServer"},
		{"retry over 429", fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 429", ErrClientHTTPError)), "RetryFailed_HTTPClient"},
		{"retry over refused", fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("dial tcp: connection refused")), "RetryFailed_ConnectionRefused"},
		{"retry over timeout", fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("context deadline exceeded (Client.Timeout)")), "RetryFailed_NetworkTimeout"},
		{"404", fmt.Errorf("%w: status 404 404 Not Found", ErrClientHTTPError), "HTTP_404"},
		{"403", fmt.Errorf("%w: status 403 403 Forbidden", ErrClientHTTPError), "HTTP_403"},
		{"418", fmt.Errorf("%w: status 418 418 I'm a teapot", ErrClientHTTPError), "HTTP_4xx"},
		{"JSON parse", WrapErrorf(ErrParsing, "invalid JSON-LD block"), "Content_ParsingJSON"},
		{"permission persistence", fmt.Errorf("%w: %w", ErrPersistence, os.ErrPermission), "Persistence_Permission"},
		{"missing file", fmt.Errorf("%w: %w", ErrFilesystem, os.ErrNotExist), "Filesystem_NotExist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Fallbacks(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{context.Canceled, "System_ContextCanceled"},
		{context.DeadlineExceeded, "System_ContextDeadlineExceeded"},
		{errors.New("read: connection reset by peer"), "Network_ConnectionReset"},
		{errors.New("lookup x: no such host"), "Network_DNSLookup"},
		{errors.New("something else"), "Unknown"},
	}
	for _, tt := range tests {
		if got := CategorizeError(tt.err); got != tt.expected {
			t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}

func TestIsPersistenceError(t *testing.T) {
	if !IsPersistenceError(WrapErrorf(ErrPersistence, "rename %s", "progress.json")) {
		t.Error("wrapped persistence error not detected")
	}
	if IsPersistenceError(ErrFilesystem) {
		t.Error("filesystem error reported as persistence error")
	}
}

// --- Sanitize Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"poster.jpg", "poster.jpg"},
		{"a/b\\c.pdf", "a_b_c.pdf"},
		{"  __x__  ", "x"},
		{"what?*<>.txt", "what_.txt"},
		{"", "untitled"},
		{"..", "untitled"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_LongNames(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("a", 300))
	if len(got) != maxFilenameLength {
		t.Errorf("len = %d, want %d", len(got), maxFilenameLength)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  Live \n\t at   Winterland "); got != "Live at Winterland" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}

// --- Regex Tests ---

func TestCompileRegexPatterns(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{`^/admin`, "", `\.php$`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compiled) != 2 {
		t.Fatalf("got %d patterns, want 2", len(compiled))
	}

	_, err = CompileRegexPatterns([]string{`(`})
	if !errors.Is(err, ErrConfigValidation) {
		t.Errorf("invalid pattern error = %v, want ErrConfigValidation", err)
	}
}

// --- Hash Tests ---

func TestURLHashPrefix(t *testing.T) {
	// md5("https://example.com/a.pdf")
	full := URLHashPrefix("https://example.com/a.pdf", 0)
	if len(full) != 32 {
		t.Fatalf("full hash length = %d, want 32", len(full))
	}
	prefix := URLHashPrefix("https://example.com/a.pdf", 8)
	if prefix != full[:8] {
		t.Errorf("prefix %q is not the head of %q", prefix, full)
	}
	if URLHashPrefix("https://example.com/b.pdf", 8) == prefix {
		t.Error("different URLs produced the same prefix")
	}
}
