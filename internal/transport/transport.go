package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"exbitrage/internal/logger"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultDebugProxy = "http://127.0.0.1:8080"
	DefaultUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13_6) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/79.0.3945.79 Safari/537.36"
)

type Options struct {
	Timeout   time.Duration
	UserAgent string
	// Debug routes traffic through ProxyURL with certificate checks off and logs
	// response bodies. Development only.
	Debug    bool
	ProxyURL string
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	Logger            *logger.Log
}

type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode/100 == 2
}

// Client issues one request at a time. The mutex makes a Client safe to share
// between goroutines, but calls still run sequentially on its session.
type Client struct {
	httpClient *http.Client
	userAgent  string
	debug      bool
	limiter    *rate.Limiter
	log        *logger.Entry

	mu sync.Mutex
}

func New(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Debug {
		proxy := strings.TrimSpace(opts.ProxyURL)
		if proxy == "" {
			proxy = DefaultDebugProxy
		}
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid debug proxy url %q: %w", proxy, err)
		}
		base.Proxy = http.ProxyURL(proxyURL)
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // debug interception proxy
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: base},
		userAgent:  ua,
		debug:      opts.Debug,
		limiter:    limiter,
		log:        log.WithComponent("transport"),
	}, nil
}

func (c *Client) Debug() bool { return c.debug }

func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, headers, nil)
}

func (c *Client) Post(ctx context.Context, rawURL string, headers http.Header, body []byte) (*Response, error) {
	return c.Do(ctx, http.MethodPost, rawURL, headers, body)
}

// Do sends the request and returns the response whatever its status code.
// Only failures to get a response at all are returned as errors.
func (c *Client) Do(ctx context.Context, method, rawURL string, headers http.Header, body []byte) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	log := c.log.WithFields(logger.Fields{
		"request_id": uuid.NewString(),
		"method":     method,
		"host":       req.URL.Host,
		"path":       req.URL.Path,
	})
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("read response failed")
		return nil, err
	}
	log = log.WithFields(logger.Fields{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if c.debug {
		log.WithField("response_text", string(data)).Debug("response")
	} else {
		log.Debug("response")
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
