package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/josemoyano04/user-manager/internal/transport/http/middleware"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// RecoveryHandler exposes the password recovery flow.
type RecoveryHandler struct {
	recovery *usecase.PasswordRecoveryService
}

// NewRecoveryHandler constructs RecoveryHandler.
func NewRecoveryHandler(recovery *usecase.PasswordRecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

// RecoveryMiddlewares holds optional per-route middleware, typically rate limits.
type RecoveryMiddlewares struct {
	Request []gin.HandlerFunc
	Verify  []gin.HandlerFunc
}

// RegisterRoutes binds /recovery-password/*. requireAuth guards the reset.
func (h *RecoveryHandler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc, mw RecoveryMiddlewares) {
	group := r.Group("/recovery-password")
	group.POST("/request", append(append([]gin.HandlerFunc{}, mw.Request...), h.requestCode)...)
	group.POST("/verify-code", append(append([]gin.HandlerFunc{}, mw.Verify...), h.verifyCode)...)
	group.POST("/reset", requireAuth, h.reset)
}

// RequestCode godoc
// @Summary Mail a password recovery code
// @Tags Recovery
// @Accept json
// @Produce json
// @Param request body RecoveryCodeRequest true "Recovery request"
// @Success 200 {object} RecoveryCodeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /recovery-password/request [post]
func (h *RecoveryHandler) requestCode(c *gin.Context) {
	var req RecoveryCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid recovery payload"))
		return
	}

	result, err := h.recovery.RequestCode(c.Request.Context(), usecase.RecoveryRequestInput{
		Email:      req.Email,
		Template:   req.EmailTemplateHTML,
		CustomCode: req.CustomCode,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			invalidInputCase,
			{Err: usecase.ErrCustomCodeNotAllowed, Status: http.StatusBadRequest, Message: "custom recovery codes are disabled"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "email is not registered"},
			{Err: usecase.ErrEmailDelivery, Status: http.StatusBadGateway, Message: "recovery email could not be sent"},
		}, http.StatusInternalServerError, "failed to issue recovery code")
		return
	}

	c.JSON(http.StatusOK, RecoveryCodeResponse{
		Message:   "recovery code sent",
		ExpiresAt: result.ExpiresAt,
		DevCode:   result.Code,
	})
}

func (h *RecoveryHandler) verifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	token, err := h.recovery.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRecoveryCodeIncorrect, Status: http.StatusBadRequest, Message: "recovery code is incorrect"},
			{Err: usecase.ErrRecoveryCodeExpired, Status: http.StatusBadRequest, Message: "recovery code has expired"},
			invalidInputCase,
			userNotFoundCase,
		}, http.StatusInternalServerError, "failed to verify recovery code")
		return
	}

	c.JSON(http.StatusOK, VerifyCodeResponse{
		Message:     "code verified",
		AccessToken: token.Value,
		TokenType:   token.TokenType,
	})
}

func (h *RecoveryHandler) reset(c *gin.Context) {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "not authenticated"))
		return
	}

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	err := h.recovery.ResetPassword(c.Request.Context(), subject, req.Email, req.NewPassword)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTokenOwnership, Status: http.StatusUnauthorized, Message: "token does not belong to this account"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "email is not registered"},
			invalidInputCase,
			passwordPolicyCase,
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}
