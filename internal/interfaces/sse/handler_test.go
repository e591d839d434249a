package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/realtime/envelope"
)

func newServer(t *testing.T, tokens *auth.TokenService) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewDiscardLogger()
	h := hub.New(log)
	require.NoError(t, h.Start(context.Background()))

	router := gin.New()
	InitSSERouter(log, h, tokens, router.Group(""))
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		h.Stop(context.Background())
		srv.Close()
	})
	return srv, h
}

// readEvent scans the stream until an "event:" line and returns its name
// and data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestStreamDeliversEnvelopes(t *testing.T) {
	tokens := auth.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	srv, h := newServer(t, tokens)
	token, err := tokens.Issue("u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/sales/u1?token="+token, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := bufio.NewReader(resp.Body)
	event, data := readEvent(t, stream)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, `"channel":"sales"`)

	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.Publish(context.Background(), hub.Target{Channel: "sales"}, envelope.NewSale("MacBook", "Awa", 1299)))

	event, data = readEvent(t, stream)
	assert.Equal(t, envelope.TypeNewSale, event)
	env, err := envelope.Decode([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "MacBook", env.Data.String(envelope.KeyProductName))

	cancel()
	assert.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStreamRequiresToken(t *testing.T) {
	srv, h := newServer(t, auth.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour))

	resp, err := http.Get(srv.URL + "/sse/sales/u1")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, h.ConnectionCount())
}

func TestGetConnectionsEmpty(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/sse/connections")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
