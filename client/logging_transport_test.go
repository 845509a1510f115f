package client_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fixlocal/appcore/client"
)

type LoggingTransportSuite struct {
	suite.Suite
}

func TestLoggingTransportSuite(t *testing.T) {
	suite.Run(t, new(LoggingTransportSuite))
}

// A traced response larger than the logged prefix must still decode in
// full; logging may only observe the stream, never consume it.
func (s *LoggingTransportSuite) TestTracedResponseBodySurvivesLogging() {
	ctx := context.Background()

	data := map[string]string{}
	for i := range 100 {
		data[fmt.Sprintf("screen.widget.key_%03d", i)] = strings.Repeat("x", 40)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"version": "1",
			"data":    data,
		})
	}))
	defer server.Close()

	inv := client.NewManager(ctx, client.WithHTTPTraceRequests())

	resp, err := inv.Invoke(ctx, http.MethodGet, server.URL, nil, nil)
	s.Require().NoError(err)

	var decoded struct {
		Success bool              `json:"success"`
		Version string            `json:"version"`
		Data    map[string]string `json:"data"`
	}
	s.Require().NoError(resp.Decode(ctx, &decoded))
	s.True(decoded.Success)
	s.Len(decoded.Data, 100)
}

func (s *LoggingTransportSuite) TestWrappedClientReturnsFullBody() {
	body := strings.Repeat("a", 8192)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	cl := client.WrapClient(server.Client(), client.WithTransportLogBody(true))

	resp, err := cl.Get(server.URL)
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()

	got, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(body, string(got))
}
