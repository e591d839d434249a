package websocket

import (
	"context"
	"encoding/json"
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
	"go-notification-realtime/internal/realtime"
	"go-notification-realtime/internal/realtime/envelope"
)

const secret = "0123456789abcdef0123456789abcdef"

func newServer(t *testing.T, tokens *auth.TokenService) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewDiscardLogger()
	h := hub.New(log)
	require.NoError(t, h.Start(context.Background()))

	router := gin.New()
	InitWebSocketRouter(log, h, tokens, router.Group(""))
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		h.Stop(context.Background())
		srv.Close()
	})
	return srv, h
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestClientReceivesPublishedEvents(t *testing.T) {
	tokens := auth.NewTokenService(secret, time.Hour)
	srv, h := newServer(t, tokens)

	token, err := tokens.Issue("u1", "notifications")
	require.NoError(t, err)

	client, err := realtime.NewClient("u1",
		realtime.WithURL(wsURL(srv)),
		realtime.WithToken(token),
		realtime.WithLogger(logger.NewDiscardLogger()),
	)
	require.NoError(t, err)
	defer client.Close()

	toasts := make(chan realtime.Toast, 4)
	metrics := make(chan envelope.Data, 1)
	client.On(realtime.EventShowToast, func(p any) { toasts <- p.(realtime.Toast) })
	client.On(realtime.EventMetricsUpdated, func(p any) { metrics <- p.(envelope.Data) })

	require.NoError(t, client.Connect(""))
	require.True(t, client.WaitConnected(5*time.Second))
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn := h.GetConnections()[0]
	assert.Equal(t, "u1", conn.UserID())
	assert.Equal(t, "notifications", conn.Channel())
	assert.Equal(t, hub.TypeWebSocket, conn.Type())

	require.NoError(t, h.Publish(context.Background(), hub.Target{UserID: "u1"}, envelope.PaymentReceived(42, "card")))
	select {
	case toast := <-toasts:
		assert.Equal(t, realtime.SeveritySuccess, toast.Severity)
		assert.Equal(t, "Payment of 42 received via card", toast.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no toast")
	}

	require.NoError(t, client.RequestMetrics())
	select {
	case data := <-metrics:
		assert.Equal(t, "1", data.String("connections"))
	case <-time.After(5 * time.Second):
		t.Fatal("no metrics reply")
	}

	client.Disconnect()
	assert.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestConnectRejectsBadTokens(t *testing.T) {
	tokens := auth.NewTokenService(secret, time.Hour)
	srv, h := newServer(t, tokens)

	token, err := tokens.Issue("u1", "notifications")
	require.NoError(t, err)

	cases := []struct {
		name string
		path string
		want int
	}{
		{"missing token", "/ws/notifications/u1", http.StatusUnauthorized},
		{"garbage token", "/ws/notifications/u1?token=nope", http.StatusUnauthorized},
		{"other user", "/ws/notifications/u2?token=" + token, http.StatusForbidden},
		{"other channel", "/ws/sales/u1?token=" + token, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, h.ConnectionCount())
}

func TestConnectWhileHubStopped(t *testing.T) {
	srv, h := newServer(t, nil)
	require.NoError(t, h.Stop(context.Background()))

	resp, err := http.Get(srv.URL + "/ws/notifications/u1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetConnections(t *testing.T) {
	srv, h := newServer(t, nil)

	client, err := realtime.NewClient("u7",
		realtime.WithURL(wsURL(srv)),
		realtime.WithLogger(logger.NewDiscardLogger()),
	)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Connect("sales"))
	require.True(t, client.WaitConnected(5*time.Second))
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/v1/ws/connections")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Total       int              `json:"total_connections"`
		Connections []map[string]any `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "u7", body.Connections[0]["user_id"])
	assert.Equal(t, "sales", body.Connections[0]["channel"])
}
