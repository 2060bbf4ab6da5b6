package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"missionhub/pkg/logger"
	"missionhub/pkg/models"
)

var errMissingBody = errors.New("request body required")

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// respondRefused reports an expected refusal (denial, closed attempt,
// out-of-order) together with the state the caller needs to recover
func respondRefused(c *gin.Context, status int, code string, data interface{}) {
	c.JSON(status, models.APIResponse{
		Success:   false,
		Code:      code,
		Message:   code,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func abortWithError(c *gin.Context, appErr *models.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToHTTPError())
}

// respondError classifies err into the taxonomy; internal details are
// logged, not returned
func respondError(c *gin.Context, err error) {
	appErr := models.NewAppError(err, "")
	appErr.Protocol = "http"
	if appErr.Code == models.ErrCodeInternal {
		logger.WithRequestID(c.Request.Context()).
			With("path", c.FullPath()).
			With("error", err.Error()).
			Error("request failed")
		appErr.Message = "internal error"
	}
	abortWithError(c, appErr)
}
