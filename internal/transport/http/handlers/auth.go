package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/josemoyano04/user-manager/internal/infra/security"
	"github.com/josemoyano04/user-manager/internal/transport/http/middleware"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// AuthHandler exposes login and the current-user lookup.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds /login and /user/me. loginMiddlewares run ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r gin.IRouter, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	r.POST("/login", append(chain, h.login)...)
	r.GET("/user/me", h.me)
}

// Login godoc
// @Summary Exchange credentials for a bearer token
// @Tags Authentication
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Username"
// @Param password formData string true "Password"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /login [post]
func (h *AuthHandler) login(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "username and password are required"))
		return
	}

	token, err := h.auth.Login(c.Request.Context(), username, password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "incorrect username or password"},
			invalidInputCase,
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token.Value, TokenType: token.TokenType})
}

// me resolves the bearer strictly, so format, expiry and signature problems are reported
// separately instead of the gate's uniform 401.
func (h *AuthHandler) me(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "not authenticated"))
		return
	}

	profile, err := h.auth.CurrentUser(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: security.ErrTokenFormat, Status: http.StatusBadRequest, Message: "token format invalid"},
			{Err: security.ErrTokenExpired, Status: http.StatusBadRequest, Message: "token expired"},
			{Err: security.ErrTokenInvalid, Status: http.StatusBadRequest, Message: "token invalid"},
			userNotFoundCase,
		}, http.StatusInternalServerError, "could not load user")
		return
	}

	c.JSON(http.StatusOK, newUserResponse(profile))
}
