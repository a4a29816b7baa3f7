package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
)

// ErrorHandler recovers panics and renders the uniform error envelope
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := c.GetString("request_id")

		var appErr *apperr.Error

		switch err := recovered.(type) {
		case *apperr.Error:
			appErr = err
			appErr.RequestID = requestID
		case error:
			logger.Error("internal server error",
				zap.String("error", err.Error()),
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			appErr = &apperr.Error{
				Kind:      apperr.KindInternal,
				Message:   "Internal server error",
				RequestID: requestID,
			}
		default:
			logger.Error("unknown panic",
				zap.Any("recovered", recovered),
				zap.String("request_id", requestID),
			)
			appErr = &apperr.Error{
				Kind:      apperr.KindInternal,
				Message:   "Internal server error",
				RequestID: requestID,
			}
		}

		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(appErr.HTTPStatus(), appErr)
	})
}

// HandleError is a helper for handlers to render error returns
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	appErr := apperr.From(err)
	appErr.RequestID = c.GetString("request_id")
	c.Header("Content-Type", "application/json")
	c.AbortWithStatusJSON(appErr.HTTPStatus(), appErr)
}
