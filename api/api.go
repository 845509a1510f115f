package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fixlocal/appcore/client"
)

// ErrUnauthorized marks an unauthorized class response. Callers decide
// whether it forces a logout; this package only distinguishes it.
var ErrUnauthorized = errors.New("request was not authorized")

// ErrMalformedResponse marks a payload the server returned that does not
// match the expected envelope. Upstream it is handled like any other
// fetch failure.
var ErrMalformedResponse = errors.New("malformed server response")

// Response is the envelope every backend endpoint wraps its payload in.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func decodeEnvelope[T any](ctx context.Context, resp *client.InvokeResponse) (*Response[T], error) {
	if resp.Unauthorized() {
		_ = resp.Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	}

	var envelope Response[T]
	if err := resp.Decode(ctx, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = envelope.Error
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("request failed: %s", message)
	}

	return &envelope, nil
}
