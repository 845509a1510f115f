package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultHTTPTimeoutSeconds     = 30
	defaultHTTPIdleTimeoutSeconds = 90

	defaultMaxRetryAttempts    = 3
	defaultRetryBackoffBaseMS  = 200
	defaultRetryBackoffCeiling = 5 * time.Second
)

// TokenSource supplies the current bearer credential for outgoing requests.
// An empty token means no Authorization header is attached.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func defaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: defaultMaxRetryAttempts,
		Backoff: func(attempt int) time.Duration {
			backoff := time.Duration(defaultRetryBackoffBaseMS<<uint(attempt-1)) * time.Millisecond
			if backoff > defaultRetryBackoffCeiling {
				return defaultRetryBackoffCeiling
			}
			return backoff
		},
	}
}

// HTTPOption configures HTTP client behavior.
// It can be used to configure timeout, transport, and other HTTP client settings.
type HTTPOption func(*httpConfig)

// httpConfig holds HTTP client configuration.
type httpConfig struct {
	timeout       time.Duration
	transport     http.RoundTripper
	jar           http.CookieJar
	checkRedirect func(req *http.Request, via []*http.Request) error
	idleTimeout   time.Duration
	enableH2C     bool
	cliCredCfg    *clientcredentials.Config
	tokenSource   TokenSource
	retryPolicy   *RetryPolicy

	traceRequests       bool
	traceRequestHeaders bool
}

func (c *httpConfig) process(opts ...HTTPOption) {
	for _, opt := range opts {
		opt(c)
	}

	if c.retryPolicy == nil {
		c.retryPolicy = defaultRetryPolicy()
	}
	if c.retryPolicy.MaxAttempts <= 0 {
		c.retryPolicy.MaxAttempts = defaultMaxRetryAttempts
	}
	if c.retryPolicy.Backoff == nil {
		c.retryPolicy.Backoff = defaultRetryPolicy().Backoff
	}
}

// WithHTTPTimeout sets the request timeout.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = timeout
	}
}

// WithHTTPTransport sets the HTTP transport.
func WithHTTPTransport(transport http.RoundTripper) HTTPOption {
	return func(c *httpConfig) {
		c.transport = transport
	}
}

// WithHTTPCookieJar sets the cookie jar.
func WithHTTPCookieJar(jar http.CookieJar) HTTPOption {
	return func(c *httpConfig) {
		c.jar = jar
	}
}

// WithHTTPCheckRedirect sets the redirect policy.
func WithHTTPCheckRedirect(checkRedirect func(req *http.Request, via []*http.Request) error) HTTPOption {
	return func(c *httpConfig) {
		c.checkRedirect = checkRedirect
	}
}

// WithHTTPIdleTimeout sets the idle timeout.
func WithHTTPIdleTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.idleTimeout = timeout
	}
}

// WithHTTPEnableH2C enables cleartext HTTP/2 for the client.
func WithHTTPEnableH2C() HTTPOption {
	return func(c *httpConfig) {
		c.enableH2C = true
	}
}

// WithHTTPClientCredentials attaches a machine credential token source to the client.
func WithHTTPClientCredentials(cfg *clientcredentials.Config) HTTPOption {
	return func(c *httpConfig) {
		c.cliCredCfg = cfg
	}
}

// WithHTTPTokenSource sets the bearer token source attached to every request.
func WithHTTPTokenSource(ts TokenSource) HTTPOption {
	return func(c *httpConfig) {
		c.tokenSource = ts
	}
}

// WithHTTPRetryPolicy sets the retry policy for transient failures.
func WithHTTPRetryPolicy(policy *RetryPolicy) HTTPOption {
	return func(c *httpConfig) {
		c.retryPolicy = policy
	}
}

// WithHTTPTraceRequests enables request logging.
func WithHTTPTraceRequests() HTTPOption {
	return func(c *httpConfig) {
		c.traceRequests = true
	}
}

// WithHTTPTraceRequestHeaders enables header logging.
func WithHTTPTraceRequestHeaders() HTTPOption {
	return func(c *httpConfig) {
		c.traceRequestHeaders = true
	}
}

// NewHTTPClient creates a new HTTP client with the provided options.
// If no transport is specified, it defaults to otelhttp.NewTransport(http.DefaultTransport).
func NewHTTPClient(ctx context.Context, opts ...HTTPOption) *http.Client {
	cfg := &httpConfig{
		timeout:     time.Duration(defaultHTTPTimeoutSeconds) * time.Second,
		idleTimeout: time.Duration(defaultHTTPIdleTimeoutSeconds) * time.Second,
	}
	cfg.process(opts...)

	if cfg.transport == nil {
		if cfg.enableH2C {
			cfg.transport = &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(dialCtx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(dialCtx, network, addr)
				},
			}
		} else {
			cfg.transport = otelhttp.NewTransport(http.DefaultTransport)
		}
	}

	if cfg.cliCredCfg != nil {
		cfg.transport = &oauth2.Transport{
			Source: cfg.cliCredCfg.TokenSource(ctx),
			Base:   cfg.transport,
		}
	}

	if cfg.traceRequests {
		cfg.transport = NewLoggingTransport(cfg.transport,
			WithTransportLogRequests(true),
			WithTransportLogResponses(true),
			WithTransportLogHeaders(cfg.traceRequestHeaders),
			WithTransportLogBody(true))
	}

	client := &http.Client{
		Transport:     cfg.transport,
		Timeout:       cfg.timeout,
		Jar:           cfg.jar,
		CheckRedirect: cfg.checkRedirect,
	}

	if cfg.idleTimeout > 0 {
		if t, ok := client.Transport.(*http.Transport); ok {
			t.IdleConnTimeout = cfg.idleTimeout
		}
	}

	return client
}
