// Package httpx is the outbound HTTP substrate shared by all adapters:
// pooled transport, User-Agent stamping, token-bucket rate limiting and
// capped body reads. It performs no status-code interpretation; the
// provider layer owns error classification.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"research-master/internal/version"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBody  = 16 << 20 // 16 MiB
	DownloadTimeout = 300 * time.Second
	DownloadMaxBody = 512 << 20
)

// Response is a fully drained HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client wraps one http.Client with the cross-cutting request policy.
type Client struct {
	hc        *http.Client
	userAgent string
	limiter   *rate.Limiter
	maxBody   int64
	headers   http.Header
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit installs a token bucket of perSec requests per second.
// perSec <= 0 leaves the client unlimited.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.hc.Transport = rt }
}

func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// WithHeader adds a static header to every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Set(key, value)
	}
}

func New(opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8
	c := &Client{
		hc: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		userAgent: version.UserAgent(),
		maxBody:   defaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do waits for a rate-limit token, stamps headers and executes the
// request, draining the body into memory. Non-2xx responses are returned
// without error; callers interpret status codes.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req = req.WithContext(ctx)
	for key, vals := range c.headers {
		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxBody)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) Get(ctx context.Context, rawurl string, h http.Header) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	mergeHeader(req, h)
	return c.Do(ctx, req)
}

func (c *Client) Post(ctx context.Context, rawurl, contentType string, body []byte, h http.Header) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, rawurl, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	mergeHeader(req, h)
	return c.Do(ctx, req)
}

// Stream issues a GET and hands back the live response for callers that
// copy large bodies straight to disk. The caller closes the body.
func (c *Client) Stream(ctx context.Context, rawurl string, h http.Header) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	mergeHeader(req, h)
	for key, vals := range c.headers {
		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.hc.Do(req)
}

func mergeHeader(req *http.Request, h http.Header) {
	for key, vals := range h {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}
}

// RedactURL removes credential-bearing query parameters so URLs are safe
// to log.
func RedactURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	q := u.Query()
	changed := false
	for _, key := range []string{"api_key", "apikey", "apiKey", "key", "token"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
