// Package fetcher retrieves raw page text for the import-by-link flow. It
// deliberately does not parse HTML, the caller gets the text or one of four
// failure kinds, each with its own user-facing message. Failed fetches are
// not retried automatically, the user re-submits.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	log "github.com/go-pkgz/lgr"
)

// failure kinds for import-by-link, each mapped to a distinct user message
var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrTimeout         = errors.New("request timed out")
	ErrInvalidResponse = errors.New("invalid response")
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 2 * 1024 * 1024 // plenty for any job posting page
)

// browser-like headers, some job sites refuse obvious bots
var requestHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

// Fetcher performs one-shot page fetches with a fixed timeout
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Fetcher, timeout <= 0 uses the 30s default
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, timeout: timeout}
}

// Fetch returns the raw page text for the given url string. Errors are one
// of ErrInvalidURL, ErrTimeout, ErrInvalidResponse or a wrapped network
// error, see UserMessage for presentation.
func (f *Fetcher) Fetch(ctx context.Context, urlString string) (string, error) {
	u, err := url.Parse(urlString)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, urlString)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, urlString)
	}
	for k, v := range requestHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, urlString)
		}
		return "", fmt.Errorf("failed to fetch %s: %w", urlString, err)
	}
	defer resp.Body.Close() // nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, urlString)
		}
		return "", fmt.Errorf("%w: failed to read body from %s", ErrInvalidResponse, urlString)
	}

	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: undecodable body from %s", ErrInvalidResponse, urlString)
	}

	log.Printf("[DEBUG] fetched %s, status %d, %d bytes", urlString, resp.StatusCode, len(body))
	return string(body), nil
}

// UserMessage maps a Fetch error to the message shown to the user
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return "Please enter a valid job posting URL"
	case errors.Is(err, ErrTimeout):
		return "Request took too long to respond"
	case errors.Is(err, ErrInvalidResponse):
		return "Unable to read the job posting details"
	default:
		return "Unable to access the job posting: " + err.Error()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
