package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/infra/logger"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// TokenGate decides whether a bearer token grants access and to which account.
type TokenGate interface {
	Authenticate(ctx context.Context, token string) (subject string, ok bool, err error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, message))
}

// RequireAuth admits requests whose bearer token passes gate and stores the subject under
// SubjectKey.
func RequireAuth(gate TokenGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			unauthorized(c, "not authenticated")
			return
		}

		subject, ok, err := gate.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.WithContext(c.Request.Context()).Error("authentication check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			return
		}
		if !ok {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(SubjectKey, subject)
		GetRequestContext(c).Subject = subject

		c.Next()
	}
}

// GetSubject returns the username stored by RequireAuth.
func GetSubject(c *gin.Context) (string, bool) {
	value, exists := c.Get(SubjectKey)
	if !exists {
		return "", false
	}
	subject, ok := value.(string)
	return subject, ok && subject != ""
}
