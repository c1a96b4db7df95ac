package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/josemoyano04/user-manager/internal/transport/http/middleware"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// UserHandler exposes account registration, update and deletion.
type UserHandler struct {
	users *usecase.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes binds the /user endpoints. requireAuth guards update and delete.
func (h *UserHandler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	group := r.Group("/user")
	group.POST("/register", h.register)
	group.PUT("/update", requireAuth, h.update)
	group.DELETE("/delete", requireAuth, h.delete)
}

// Register godoc
// @Summary Register a new account
// @Tags Users
// @Accept json
// @Produce json
// @Param request body UserRequest true "Account"
// @Success 201 {object} UserMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /user/register [post]
func (h *UserHandler) register(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	profile, err := h.users.Register(c.Request.Context(), req.toInput())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			invalidInputCase,
			passwordPolicyCase,
			userConflictCase,
		}, http.StatusInternalServerError, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, UserMessageResponse{Message: "user registered", User: newUserResponse(profile)})
}

func (h *UserHandler) update(c *gin.Context) {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "not authenticated"))
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid update payload"))
		return
	}

	profile, err := h.users.Update(c.Request.Context(), subject, req.toInput())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			invalidInputCase,
			passwordPolicyCase,
			userConflictCase,
			userNotFoundCase,
		}, http.StatusInternalServerError, "failed to update user")
		return
	}

	c.JSON(http.StatusOK, UserMessageResponse{Message: "user updated", User: newUserResponse(profile)})
}

func (h *UserHandler) delete(c *gin.Context) {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "not authenticated"))
		return
	}

	if err := h.users.Delete(c.Request.Context(), subject); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{userNotFoundCase}, http.StatusInternalServerError, "failed to delete user")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user '" + subject + "' deleted"})
}
