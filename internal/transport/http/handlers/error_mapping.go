package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/infra/logger"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves err against cases in order. A case with an empty Message
// answers with err's own text. Unmatched errors are logged and answered with fallbackStatus
// and fallbackMessage so internal details never reach clients.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			if cs.Status == http.StatusUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	_ = c.Error(err)
	logger.WithContext(c.Request.Context()).Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// Cases shared by several handlers.
var (
	invalidInputCase   = ErrorCase{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest}
	passwordPolicyCase = ErrorCase{Err: usecase.ErrPasswordPolicy, Status: http.StatusBadRequest}
	userConflictCase   = ErrorCase{Err: usecase.ErrUserConflict, Status: http.StatusConflict, Message: "username or email already in use"}
	userNotFoundCase   = ErrorCase{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"}
)
