package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"missionhub/internal/core"
	"missionhub/pkg/models"
)

// Handler upgrades authenticated requests onto the hub
type Handler struct {
	hub      *Hub
	tokens   core.TokenService
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewHandler creates the /ws/notifications handler. Connections end when
// ctx is done.
func NewHandler(ctx context.Context, hub *Hub, tokens core.TokenService, allowedOrigins []string) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		ctx:    ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Serve is the gin handler
func (h *Handler) Serve(c *gin.Context) {
	id, err := h.tokens.Verify(tokenFrom(c.Request))
	if err != nil {
		appErr := models.NewAppError(err, "authentication required")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToHTTPError())
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		return
	}

	client := &Client{hub: h.hub, conn: conn, learnerID: id.LearnerID}
	if !h.hub.register(client) {
		appErr := &models.AppError{Code: models.ErrCodeRateLimited, Message: "too many connections", Protocol: "websocket"}
		code, text := appErr.ToWebSocketError()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
		_ = conn.Close()
		return
	}
	client.serve(h.ctx)
}

// tokenFrom reads a bearer token from the header or the token query
// parameter (browsers cannot set headers on websocket requests)
func tokenFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients may omit Origin
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		if u, err := url.Parse(origin); err == nil {
			host := strings.ToLower(u.Hostname())
			return host == "localhost" || host == "127.0.0.1"
		}
		return false
	}
}
