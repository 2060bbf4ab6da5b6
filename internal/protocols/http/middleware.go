package http

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"missionhub/internal/core"
	"missionhub/pkg/logger"
	"missionhub/pkg/models"
	"missionhub/pkg/utils"
)

const (
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
	// SessionHeader scopes theory acknowledgements to a client session
	SessionHeader = "X-Session-ID"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = utils.NewPrefixedID("req")
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.HTTP(c.Request.Method, path, c.Writer.Status(), int(time.Since(start).Milliseconds()))
	}
}

func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithRequestID(c.Request.Context()).
			With("panic", fmt.Sprint(recovered)).
			Error("handler panic recovered")
		abortWithError(c, &models.AppError{
			Code:       models.ErrCodeInternal,
			Message:    "internal error",
			StatusCode: http.StatusInternalServerError,
		})
	})
}

// corsMiddleware handles CORS
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && set[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionHeader+", "+requestIDHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthMiddleware validates the bearer token and stores the identity
func AuthMiddleware(tokens core.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abortWithError(c, models.NewAppError(models.ErrUnauthorized, "missing bearer token"))
			return
		}

		id, err := tokens.Verify(parts[1])
		if err != nil {
			abortWithError(c, models.NewAppError(err, "invalid token"))
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// GetIdentity extracts the verified caller from the gin context
func GetIdentity(c *gin.Context) (*core.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	id, ok := v.(*core.Identity)
	return id, ok
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			abortWithError(c, models.NewAppError(models.ErrUnauthorized, ""))
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		abortWithError(c, models.NewAppError(models.ErrForbidden, "role not permitted"))
	}
}

// limiterIdleTTL is how long a learner's bucket survives without requests
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// learnerLimiter keeps one token bucket per learner. Buckets idle for
// longer than idle are swept at most once per idle period.
type learnerLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	limiters  map[string]*limiterEntry
}

func newLearnerLimiter(rps float64, burst int) *learnerLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &learnerLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     limiterIdleTTL,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *learnerLimiter) allow(learnerID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweepLocked(now)
	}
	e, ok := l.limiters[learnerID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[learnerID] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

func (l *learnerLimiter) sweepLocked(now time.Time) {
	for id, e := range l.limiters {
		if now.Sub(e.seen) >= l.idle {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// RateLimitMiddleware bounds write requests per learner
func RateLimitMiddleware(l *learnerLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if ok && !l.allow(id.LearnerID) {
			abortWithError(c, &models.AppError{
				Code:       models.ErrCodeRateLimited,
				Message:    "too many requests",
				StatusCode: http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}
