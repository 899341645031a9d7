package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"requisition-backend/internal/auth"
	"requisition-backend/internal/config"
	"requisition-backend/internal/events"
	"requisition-backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Hub, *auth.TokenManager, string) {
	t.Helper()
	hub, tokens, url, _ := startTestServer(t)
	return hub, tokens, url
}

func startTestServer(t *testing.T) (*Hub, *auth.TokenManager, string, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Set(zap.NewNop())

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	tokens := auth.NewTokenManager(config.JWTConfig{Secret: "ws-test", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	allowed := func(_ context.Context, role string) (bool, error) { return role == "dse", nil }

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, tokens, allowed) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, tokens, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", cancel
}

func TestServeWsRejects(t *testing.T) {
	_, tokens, url := newTestServer(t)
	storekeeper, _, err := tokens.IssueAccess(uuid.New(), "storekeeper")
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "?token=nope", http.StatusUnauthorized},
		{"role without dashboard access", "?token=" + storekeeper, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url+tt.query, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, tokens, url := newTestServer(t)
	token, _, err := tokens.IssueAccess(uuid.New(), "dse")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.New(events.RequestStatusChanged, map[string]string{"status": "APPROVED"})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, body, err := conn.ReadMessage()
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, events.RequestStatusChanged, got.Type)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubShutdownReleasesClients(t *testing.T) {
	hub, tokens, url, cancel := startTestServer(t)
	token, _, err := tokens.IssueAccess(uuid.New(), "dse")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, hub.ClientCount())

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
