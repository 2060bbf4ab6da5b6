package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/internal/core"
	"missionhub/internal/notify"
	"missionhub/pkg/models"
)

func newTestHandler(t *testing.T) (*httptest.Server, *notify.LocalBus, *Hub, core.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := notify.NewLocalBus()
	hub := NewHub(bus)
	tokens := core.NewTokenService("ws-secret", "")
	h := NewHandler(ctx, hub, tokens, []string{"*"})

	r := gin.New()
	r.GET("/ws/notifications", h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, bus, hub, tokens
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications?token=" + token
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRejectsMissingToken(t *testing.T) {
	srv, _, _, _ := newTestHandler(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushesBadgeEvents(t *testing.T) {
	srv, bus, hub, tokens := newTestHandler(t)
	tok, err := tokens.Issue(core.Identity{LearnerID: "l1"}, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, tok), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, 1, hub.Connections("l1"))

	require.NoError(t, bus.Notify(context.Background(), models.BadgeEvent{
		LearnerID: "l1", AttemptID: "att-1", Badge: models.Badge{ID: "first"}, AwardedAt: time.Now(),
	}))
	msg := readMessage(t, conn)
	assert.Equal(t, "badge_awarded", msg.Type)
	require.NotNil(t, msg.Badge)
	assert.Equal(t, "first", msg.Badge.ID)
	assert.Equal(t, "att-1", msg.AttemptID)
}

func TestTokenFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/notifications?token=q", nil)
	assert.Equal(t, "q", tokenFrom(req))
	req.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", tokenFrom(req))
}
