package client

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"
)

const (
	defaultMaxBodySize = 1024 // Max body size to log (1KB)

	redactedHeaderValue = "[REDACTED]"
)

// LoggingTransportOption configures the logging HTTP transport.
type LoggingTransportOption func(*loggingTransport)

// loggingTransport is an HTTP transport that logs requests and responses.
// The Authorization header is always redacted since every request in this
// module may carry the bearer credential.
type loggingTransport struct {
	transport    http.RoundTripper
	logRequests  bool
	logResponses bool
	logHeaders   bool
	logBody      bool
	maxBodySize  int64
}

// NewLoggingTransport creates a new logging HTTP transport.
// By default, it logs requests and responses but not headers or body for security.
func NewLoggingTransport(transport http.RoundTripper, opts ...LoggingTransportOption) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &loggingTransport{
		transport:    transport,
		logRequests:  true,
		logResponses: true,
		logHeaders:   false,
		logBody:      false,
		maxBodySize:  defaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithTransportLogRequests enables or disables request logging.
func WithTransportLogRequests(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logRequests = enabled
	}
}

// WithTransportLogResponses enables or disables response logging.
func WithTransportLogResponses(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logResponses = enabled
	}
}

// WithTransportLogHeaders enables or disables header logging.
// Note: Be careful when enabling this as headers may contain sensitive information.
func WithTransportLogHeaders(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logHeaders = enabled
	}
}

// WithTransportLogBody enables or disables body logging.
// Note: Be careful when enabling this as bodies may contain sensitive information or be large.
func WithTransportLogBody(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logBody = enabled
	}
}

// WithTransportMaxBodySize sets the maximum body size to log.
func WithTransportMaxBodySize(size int64) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.maxBodySize = size
	}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	if t.logRequests {
		t.logRequest(req)
	}

	resp, err := t.transport.RoundTrip(req)

	if t.logResponses {
		duration := time.Since(start)

		logger := util.Log(ctx).WithField("duration", duration.String())
		if err != nil {
			logger.WithError(err).Error("HTTP request failed")
			return resp, err
		}

		if resp != nil {
			logger = logger.WithFields(map[string]any{
				"status":     resp.StatusCode,
				"statusText": http.StatusText(resp.StatusCode),
			})
			if t.logHeaders {
				logger = logger.WithField("headers", flattenHeaders(resp.Header))
			}
			if t.logBody && resp.Body != nil {
				logger = t.withBody(logger, &resp.Body)
			}
		}

		logger.Info("HTTP response received")
	}

	return resp, err
}

func (t *loggingTransport) logRequest(req *http.Request) {
	logger := util.Log(req.Context()).WithFields(map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
		"host":   req.Host,
	})

	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(req.Header))
	}

	if t.logBody && req.Body != nil {
		logger = t.withBody(logger, &req.Body)
	}

	logger.Info("HTTP request sent")
}

func (t *loggingTransport) withBody(logger *util.LogEntry, body *io.ReadCloser) *util.LogEntry {
	original := *body

	bodyBytes, readErr := io.ReadAll(io.LimitReader(original, t.maxBodySize))
	if len(bodyBytes) > 0 {
		logger = logger.WithField("body", string(bodyBytes))
	}
	if readErr != nil {
		logger = logger.WithError(readErr)
	}

	// Only the logged prefix was consumed; splice it back in front of the
	// unread remainder so the caller sees the complete stream.
	*body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(bodyBytes), original),
		closer: original,
	}
	return logger
}

// replayBody re-serves the bytes consumed for logging ahead of the rest
// of the original body, and closes the original.
type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		if strings.EqualFold(name, "Authorization") {
			flat[name] = redactedHeaderValue
			continue
		}
		flat[name] = strings.Join(values, " , ")
	}
	return flat
}

// WrapClient wraps an existing HTTP client with logging transport.
func WrapClient(client *http.Client, opts ...LoggingTransportOption) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}

	transport := NewLoggingTransport(client.Transport, opts...)
	newClient := *client
	newClient.Transport = transport
	return &newClient
}
