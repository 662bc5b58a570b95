package response

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/pkg/logger"
)

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error sends an error response. Domain errors are mapped to their HTTP
// status; anything else becomes a 500 with the cause logged, not returned.
func Error(c *gin.Context, err error) {
	appErr := domainerrors.FromDomain(err)
	if appErr.Status >= 500 {
		logger.Error(c.Request.Context(), "Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.AbortWithStatusJSON(appErr.Status, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// ErrorWithStatus sends an error response with a specific status and message
func ErrorWithStatus(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
