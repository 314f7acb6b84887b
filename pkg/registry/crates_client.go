package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/fulmenhq/cargo-licenses/pkg/logger"
)

const (
	// DefaultBaseURL is the public crates.io registry.
	DefaultBaseURL = "https://crates.io"
	// DefaultUserAgent identifies the tool; crates.io rejects requests without one.
	DefaultUserAgent = "cargo-licenses (https://github.com/fulmenhq/cargo-licenses)"

	maxPages = 100
)

// Options configures a CratesClient.
type Options struct {
	BaseURL   string
	UserAgent string
	// MaxRetries bounds retries of transient failures; 0 disables retrying.
	MaxRetries int
	// RetryInterval is the first backoff interval between retries.
	RetryInterval time.Duration
	// BreakerThreshold is the number of failures that opens the circuit for a host.
	BreakerThreshold int64
}

// CratesClient lists crate releases from a crates.io compatible registry.
type CratesClient struct {
	baseURL       string
	userAgent     string
	maxRetries    int
	retryInterval time.Duration
	threshold     int64
	fetcher       HTTPFetcher

	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewCratesClient creates a CratesClient with real HTTP for production use
func NewCratesClient(opts Options, timeout time.Duration) *CratesClient {
	return NewCratesClientWithFetcher(opts, NewRealHTTPFetcher(NewHTTPClient(timeout)))
}

// NewCratesClientWithFetcher creates a CratesClient with injectable HTTP for testing
func NewCratesClientWithFetcher(opts Options, fetcher HTTPFetcher) *CratesClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &CratesClient{
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		userAgent:     opts.UserAgent,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
		threshold:     opts.BreakerThreshold,
		fetcher:       fetcher,
		breakers:      make(map[string]*circuit.Breaker),
	}
}

type versionsResponse struct {
	Versions []struct {
		Num       string `json:"num"`
		License   string `json:"license"`
		Yanked    bool   `json:"yanked"`
		CreatedAt string `json:"created_at"`
	} `json:"versions"`
	Meta struct {
		Total    int    `json:"total"`
		NextPage string `json:"next_page"`
	} `json:"meta"`
}

// VersionsURL is the endpoint listing the releases of a crate.
func (c *CratesClient) VersionsURL(name string) string {
	return fmt.Sprintf("%s/api/v1/crates/%s/versions", c.baseURL, url.PathEscape(name))
}

// Versions lists every published release of a crate, following pagination.
func (c *CratesClient) Versions(ctx context.Context, name string) (Releases, error) {
	first := c.VersionsURL(name)
	pageURL := first
	seen := make(map[string]struct{})

	var releases Releases
	for page := 0; page < maxPages; page++ {
		seen[pageURL] = struct{}{}

		var body versionsResponse
		if err := c.getJSON(ctx, pageURL, name, &body); err != nil {
			return nil, err
		}
		for _, v := range body.Versions {
			releases = append(releases, Release{
				Number:      v.Num,
				License:     strings.TrimSpace(v.License),
				Yanked:      v.Yanked,
				PublishedAt: parseTime(v.CreatedAt),
			})
		}

		if body.Meta.NextPage == "" || len(body.Versions) == 0 {
			break
		}
		next := first + body.Meta.NextPage
		if !strings.HasPrefix(body.Meta.NextPage, "?") {
			next = first + "?" + body.Meta.NextPage
		}
		if _, dup := seen[next]; dup {
			break
		}
		pageURL = next
	}

	logger.Debug("Fetched crate releases", logger.String("crate", name), logger.Int("releases", len(releases)))
	return releases, nil
}

// getJSON fetches target through the host circuit breaker, retrying
// transient failures, and decodes the body into out.
func (c *CratesClient) getJSON(ctx context.Context, target, name string, out interface{}) error {
	host := hostOf(target)
	breaker := c.breaker(host)
	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var notFound error
	err := breaker.Call(func() error {
		err := c.retry(ctx, target, name, out)
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}
	if err != nil {
		return err
	}
	return notFound
}

func (c *CratesClient) retry(ctx context.Context, target, name string, out interface{}) error {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.maxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.retryInterval
		exp.MaxInterval = 30 * time.Second
		exp.MaxElapsedTime = 0
		exp.Reset()
		policy = backoff.WithMaxRetries(exp, uint64(c.maxRetries))
	}

	op := func() error {
		err := c.fetch(ctx, target, name, out)
		if err == nil || transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying registry request",
			logger.String("url", target),
			logger.Duration("wait", wait),
			logger.Err(err))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
	}
	return err
}

func (c *CratesClient) fetch(ctx context.Context, target, name string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.fetcher.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode registry response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Name: name}
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", target, ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s returned %d: %w", target, resp.StatusCode, ErrUpstreamDown)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

// transient reports whether a failed request is worth repeating.
func transient(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false
	}
	return true
}

// breaker returns or creates the circuit breaker for a host.
func (c *CratesClient) breaker(host string) *circuit.Breaker {
	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(c.threshold),
	})
	c.breakers[host] = b
	return b
}

// BreakerStates reports "open" or "closed" per registry host.
func (c *CratesClient) BreakerStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for host, b := range c.breakers {
		if b.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
