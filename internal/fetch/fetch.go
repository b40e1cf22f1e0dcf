// Package fetch retrieves remote documents for the site adapters.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/Zareix/fictracker/internal/cache"
)

const (
	defaultRedirectMaxHops   = 5
	defaultPerRequestTimeout = 45 * time.Second
	defaultMaxBodyBytes      = 64 << 20
)

var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrUnsupportedType   = errors.New("unsupported content type")
	ErrBodyTooLarge      = errors.New("response body too large")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Request describes one GET.
type Request struct {
	URL    string
	Header http.Header
	// Accept lists allowed Content-Type prefixes. Empty accepts anything.
	Accept []string
}

// Response is a fully read response body.
type Response struct {
	Body        []byte
	ContentType string
	StatusCode  int
	// URL is the final URL after redirects.
	URL string
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Client wraps http.Client with timeouts, a redirect cap, a concurrency gate,
// an optional rate limit and an optional revalidation cache. A Client is safe
// for concurrent use once configured.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// PerRequestTimeout bounds each request. Zero means default (45s).
	PerRequestTimeout time.Duration
	// RedirectMaxHops caps redirect following. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int
	// RateLimit is the sustained request rate per second. Zero disables it.
	RateLimit float64
	// MaxBodyBytes caps the body size. Zero means default (64 MiB).
	MaxBodyBytes int64
	// Cache enables conditional revalidation when set.
	Cache *cache.HTTPCache

	limiter     chan struct{}
	limiterOnce sync.Once
	pacer       *rate.Limiter
	pacerOnce   sync.Once
}

// Get fetches rawURL and returns the decoded body text.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (string, error) {
	resp, err := c.Do(ctx, Request{URL: rawURL, Header: header})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Do performs a GET. Only 2xx responses (or a 304 served from cache) succeed.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, r.URL)
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	if c.timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout())
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Cache != nil {
		if meta, err := c.Cache.LoadMeta(ctx, r.URL); err == nil && meta != nil {
			if meta.ETag != "" {
				req.Header.Set("If-None-Match", meta.ETag)
			}
			if meta.LastModified != "" {
				req.Header.Set("If-Modified-Since", meta.LastModified)
			}
		}
	}

	start := time.Now()
	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	log.Ctx(ctx).Debug().
		Str("url", r.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("fetched")

	if resp.StatusCode == http.StatusNotModified && c.Cache != nil {
		return c.fromCache(ctx, r.URL, resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: r.URL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if len(r.Accept) > 0 && !hasPrefixFold(contentType, r.Accept) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		if err := c.Cache.Save(ctx, r.URL, contentType, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), body); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("url", r.URL).Msg("cache save failed")
		}
	}
	body, err = decode(body, contentType)
	if err != nil {
		return nil, err
	}
	return &Response{
		Body:        body,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		URL:         resp.Request.URL.String(),
	}, nil
}

func (c *Client) fromCache(ctx context.Context, rawURL string, resp *http.Response) (*Response, error) {
	body, err := c.Cache.LoadBody(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("load cached body: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta.ContentType != "" {
		contentType = meta.ContentType
	}
	body, err = decode(body, contentType)
	if err != nil {
		return nil, err
	}
	return &Response{
		Body:        body,
		ContentType: contentType,
		StatusCode:  http.StatusOK,
		URL:         resp.Request.URL.String(),
	}, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	return b, nil
}

// decode converts text bodies to UTF-8 using the declared or sniffed charset.
// Binary bodies are returned untouched.
func decode(body []byte, contentType string) ([]byte, error) {
	if !isText(contentType) {
		return body, nil
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// unknown label; keep the raw bytes
		return body, nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}

func isText(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func hasPrefixFold(ct string, prefixes []string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, p := range prefixes {
		if strings.HasPrefix(ct, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (c *Client) timeout() time.Duration {
	if c.PerRequestTimeout > 0 {
		return c.PerRequestTimeout
	}
	return defaultPerRequestTimeout
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirectFunc()}
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = defaultRedirectMaxHops
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return fmt.Errorf("redirect: %w", ErrUnsupportedScheme)
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) wait(ctx context.Context) error {
	if c.RateLimit <= 0 {
		return nil
	}
	c.pacerOnce.Do(func() {
		c.pacer = rate.NewLimiter(rate.Limit(c.RateLimit), 1)
	})
	return c.pacer.Wait(ctx)
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
