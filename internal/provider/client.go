package provider

import (
	"context"
	"encoding/json"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"research-master/internal/breaker"
	"research-master/internal/errors"
	"research-master/internal/httpx"
	"research-master/internal/metrics"
	"research-master/internal/retry"
)

// Client executes one provider's requests through the full resilience
// stack: circuit breaker outermost, then retry, then the rate-limited
// HTTP substrate. One Client per adapter.
type Client struct {
	provider    string
	http        *httpx.Client
	download    *httpx.Client
	maxDownload int64
	policy      retry.Policy
	breaker     *breaker.Manager
	logger      *slog.Logger
}

func NewClient(providerID string, hc *httpx.Client, pol retry.Policy, bm *breaker.Manager, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("provider", providerID))
	c := &Client{
		provider: providerID,
		http:     hc,
		policy:   pol,
		breaker:  bm,
		logger:   logger,
	}
	c.policy.Notify = func(attempt int, delay time.Duration, err error) {
		metrics.ObserveRetry(providerID)
		logger.Debug("retrying request",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("reason", err.Error()))
	}
	return c
}

// WithDownloadClient sets a second substrate client with the long
// timeout and large body cap used for PDF transfers.
func (c *Client) WithDownloadClient(hc *httpx.Client) *Client {
	c.download = hc
	return c
}

// WithDownloadCap bounds a single download; a transfer past n bytes
// fails rather than truncates.
func (c *Client) WithDownloadCap(n int64) *Client {
	c.maxDownload = n
	return c
}

func (c *Client) ProviderID() string { return c.provider }

func (c *Client) do(ctx context.Context, op string, issue func(context.Context) (*httpx.Response, error)) (*httpx.Response, error) {
	start := time.Now()
	out, err := c.breaker.Execute(c.provider, func() (any, error) {
		return retry.Do(ctx, c.policy, func(ctx context.Context) (*httpx.Response, error) {
			resp, err := issue(ctx)
			if err != nil {
				return nil, c.transportError(err)
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			return nil, c.statusError(resp)
		})
	})

	status := 0
	if err == nil {
		status = out.(*httpx.Response).StatusCode
	} else {
		var e *errors.Error
		if stderrors.As(err, &e) {
			status = e.Status
		}
	}
	metrics.ObserveRequest(c.provider, op, status, time.Since(start))

	if err != nil {
		return nil, err
	}
	return out.(*httpx.Response), nil
}

// GetJSON fetches rawurl and decodes the 2xx body into out (skipped when
// out is nil).
func (c *Client) GetJSON(ctx context.Context, op, rawurl string, h http.Header, out any) error {
	resp, err := c.do(ctx, op, func(ctx context.Context) (*httpx.Response, error) {
		return c.http.Get(ctx, rawurl, h)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.Parse(c.provider, "decoding json response", err)
	}
	return nil
}

func (c *Client) GetXML(ctx context.Context, op, rawurl string, h http.Header, out any) error {
	resp, err := c.do(ctx, op, func(ctx context.Context) (*httpx.Response, error) {
		return c.http.Get(ctx, rawurl, h)
	})
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(resp.Body, out); err != nil {
		return errors.Parse(c.provider, "decoding xml response", err)
	}
	return nil
}

// GetBytes returns the raw 2xx body, for HTML scraping and the DBLP
// regex fallback.
func (c *Client) GetBytes(ctx context.Context, op, rawurl string, h http.Header) ([]byte, error) {
	resp, err := c.do(ctx, op, func(ctx context.Context) (*httpx.Response, error) {
		return c.http.Get(ctx, rawurl, h)
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) PostJSON(ctx context.Context, op, rawurl string, h http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.InvalidRequestf("encoding request body: %v", err)
	}
	return c.PostRaw(ctx, op, rawurl, "application/json", payload, h, out)
}

// PostRaw sends body verbatim, for endpoints that take a query language
// rather than JSON, and decodes the 2xx JSON response into out.
func (c *Client) PostRaw(ctx context.Context, op, rawurl, contentType string, body []byte, h http.Header, out any) error {
	resp, err := c.do(ctx, op, func(ctx context.Context) (*httpx.Response, error) {
		return c.http.Post(ctx, rawurl, contentType, body, h)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.Parse(c.provider, "decoding json response", err)
	}
	return nil
}

// Download streams rawurl into w. The breaker and retry cover the
// connection and status exchange; the body copy runs once, so callers
// write to a temp file and discard it on error.
func (c *Client) Download(ctx context.Context, rawurl string, w io.Writer) (int64, error) {
	hc := c.download
	if hc == nil {
		hc = c.http
	}
	start := time.Now()
	out, err := c.breaker.Execute(c.provider, func() (any, error) {
		return retry.Do(ctx, c.policy, func(ctx context.Context) (*http.Response, error) {
			resp, err := hc.Stream(ctx, rawurl, nil)
			if err != nil {
				return nil, c.transportError(err)
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
			resp.Body.Close()
			return nil, c.statusError(&httpx.Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       body,
			})
		})
	})
	if err != nil {
		metrics.ObserveRequest(c.provider, "download", 0, time.Since(start))
		return 0, err
	}

	resp := out.(*http.Response)
	defer resp.Body.Close()
	limit := c.maxDownload
	if limit <= 0 {
		limit = httpx.DownloadMaxBody
	}
	n, err := io.Copy(w, io.LimitReader(resp.Body, limit+1))
	metrics.ObserveRequest(c.provider, "download", resp.StatusCode, time.Since(start))
	if err != nil {
		return n, errors.Network(c.provider, fmt.Errorf("streaming download: %w", err))
	}
	if n > limit {
		return n, errors.Otherf("%s: download exceeds the %d MB file size limit", c.provider, limit>>20)
	}
	return n, nil
}

func (c *Client) transportError(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Network(c.provider, err)
}

func (c *Client) statusError(resp *httpx.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFound(c.provider, "resource not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.RateLimited(c.provider, parseRetryAfter(resp.Header))
	case resp.StatusCode >= 500:
		return errors.API(c.provider, resp.StatusCode, truncateBody(resp.Body))
	default:
		return errors.API(c.provider, resp.StatusCode, truncateBody(resp.Body))
	}
}

// parseRetryAfter supports both delta-seconds and HTTP-date forms.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncateBody(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
