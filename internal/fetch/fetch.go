// Package fetch retrieves the current content of one watched resource.
//
// A fetch is a single bounded attempt. Anything other than an HTTP 200 with a
// readable body is a soft failure: it is reported in Result, never returned
// as an error that would abort the run.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrBodyTooLarge = errors.New("response body exceeds limit")

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "urlwatch/1.0"
)

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds one whole attempt, including reading the body.
	Timeout time.Duration
	// MaxBodyBytes caps the body size; 0 means unlimited.
	MaxBodyBytes int64
	UserAgent    string
	// RatePerSec paces successive requests; 0 disables pacing.
	RatePerSec float64
}

// Result is the classified outcome of one fetch.
type Result struct {
	StatusCode int
	Content    []byte
	Err        error
	Took       time.Duration
}

// OK reports whether the fetch produced new content.
func (r Result) OK() bool { return r.Err == nil && r.StatusCode == http.StatusOK }

// Reason describes a soft failure for logs.
func (r Result) Reason() string {
	switch {
	case r.OK():
		return ""
	case r.Err != nil:
		return r.Err.Error()
	default:
		return fmt.Sprintf("http status %d", r.StatusCode)
	}
}

// Fetcher is what the pipeline calls.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) Result
}

// HTTPFetcher fetches over net/http and follows redirects.
// It is safe for concurrent use.
type HTTPFetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New builds an HTTPFetcher. A nil client means a fresh http.Client; the
// per-attempt timeout is applied through the request context either way.
func New(cfg Config, client *http.Client) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{}
	}
	f := &HTTPFetcher{cfg: cfg, client: client}
	if cfg.RatePerSec > 0 {
		// burst 1: requests are spaced, never bunched.
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) Result {
	start := time.Now()
	res := f.fetch(ctx, locator)
	res.Took = time.Since(start)
	return res
}

func (f *HTTPFetcher) fetch(ctx context.Context, locator string) Result {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Result{Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return Result{StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.cfg.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.cfg.MaxBodyBytes > 0 && int64(len(b)) > f.cfg.MaxBodyBytes {
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.cfg.MaxBodyBytes)}
	}
	return Result{StatusCode: resp.StatusCode, Content: b}
}
