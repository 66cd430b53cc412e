package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	DefaultMaxRedirects = 5
	DefaultMaxRetries   = 2
	DefaultTimeout      = 10 * time.Second

	defaultUserAgent = "ocm-maven-resolver"
)

// Options configures a Client.
type Options struct {
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxRedirects          int
	MaxRetries            int
	// RetryMinWait and RetryMaxWait bound the backoff between retries.
	RetryMinWait time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
	// Base replaces the underlying transport, e.g. in tests.
	Base http.RoundTripper
}

// Option is a functional option for NewClient.
type Option func(*Options)

// WithTimeouts sets the dial and response header timeouts.
func WithTimeouts(dial, responseHeader time.Duration) Option {
	return func(o *Options) {
		if dial > 0 {
			o.DialTimeout = dial
		}
		if responseHeader > 0 {
			o.ResponseHeaderTimeout = responseHeader
		}
	}
}

// WithMaxRedirects limits the number of followed redirects.
func WithMaxRedirects(n int) Option {
	return func(o *Options) {
		o.MaxRedirects = n
	}
}

// WithRetries sets the number of retries of transient failures and the backoff bounds.
func WithRetries(n int, minWait, maxWait time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = n
		if minWait > 0 {
			o.RetryMinWait = minWait
		}
		if maxWait > 0 {
			o.RetryMaxWait = maxWait
		}
	}
}

// WithUserAgent sets the User-Agent header for HTTP requests.
func WithUserAgent(userAgent string) Option {
	return func(o *Options) {
		if userAgent != "" {
			o.UserAgent = userAgent
		}
	}
}

// WithBaseTransport replaces the underlying transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *Options) {
		o.Base = rt
	}
}

// Client opens http(s) and file URLs.
type Client struct {
	http      *http.Client
	userAgent string
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a client. Transient HTTP failures are retried with backoff,
// and gzip or deflate encoded responses are decoded transparently.
func NewClient(opts ...Option) *Client {
	options := &Options{
		DialTimeout:           DefaultTimeout,
		ResponseHeaderTimeout: DefaultTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxRedirects:          DefaultMaxRedirects,
		MaxRetries:            DefaultMaxRetries,
		RetryMinWait:          200 * time.Millisecond,
		RetryMaxWait:          3 * time.Second,
		UserAgent:             defaultUserAgent,
	}
	for _, opt := range opts {
		opt(options)
	}

	base := options.Base
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   options.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   options.DialTimeout,
			ResponseHeaderTimeout: options.ResponseHeaderTimeout,
			IdleConnTimeout:       options.IdleConnTimeout,
			ForceAttemptHTTP2:     true,
		}
	}

	policy := &retry.GenericPolicy{
		Retryable: retry.DefaultPredicate,
		Backoff:   retry.DefaultBackoff,
		MinWait:   options.RetryMinWait,
		MaxWait:   options.RetryMaxWait,
		MaxRetry:  options.MaxRetries,
	}
	transport := retry.NewTransport(base)
	transport.Policy = func() retry.Policy { return policy }

	maxRedirects := options.MaxRedirects
	return &Client{
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: options.UserAgent,
	}
}

// Open opens the resource at rawURL. Missing resources yield an error wrapping ErrNotFound.
func (c *Client) Open(ctx context.Context, rawURL string) (*Resource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "file":
		return openFile(u)
	case "http", "https":
		return c.openHTTP(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q in %q", u.Scheme, rawURL)
	}
}

func (c *Client) openHTTP(ctx context.Context, rawURL string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d: %w", rawURL, resp.StatusCode, ErrNotFound)
	default:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := decode(resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}

	size := resp.ContentLength
	if body != resp.Body {
		size = -1
	}
	return &Resource{
		ReadCloser: body,
		URL:        resp.Request.URL.String(),
		Header:     resp.Header,
		Size:       size,
	}, nil
}

func decode(resp *http.Response) (io.ReadCloser, error) {
	var (
		r   io.ReadCloser
		err error
	)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(resp.Body)
	case "deflate":
		r, err = zlib.NewReader(resp.Body)
	default:
		return resp.Body, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &decodingReader{ReadCloser: r, body: resp.Body}, nil
}

// decodingReader closes both the decoder and the underlying body.
type decodingReader struct {
	io.ReadCloser
	body io.Closer
}

func (d *decodingReader) Close() error {
	return errors.Join(d.ReadCloser.Close(), d.body.Close())
}

func openFile(u *url.URL) (*Resource, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", u, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", u, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", u, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory: %w", u, ErrNotFound)
	}
	return &Resource{
		ReadCloser: f,
		URL:        u.String(),
		Header:     http.Header{},
		Size:       fi.Size(),
	}, nil
}
