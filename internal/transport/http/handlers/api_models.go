package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/transport/http/middleware"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenResponse is returned by /login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserResponse(profile domain.UserProfile) UserResponse {
	return UserResponse{
		FullName: profile.FullName,
		Username: profile.Username,
		Email:    profile.Email,
	}
}

// UserRequest is the payload of /user/register and /user/update.
type UserRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (r UserRequest) toInput() usecase.UserInput {
	return usecase.UserInput{
		FullName: r.FullName,
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
	}
}

// UserMessageResponse pairs a confirmation message with the resulting account.
type UserMessageResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// RecoveryCodeRequest asks for a recovery code to be mailed.
type RecoveryCodeRequest struct {
	Email             string `json:"email" binding:"required,email"`
	EmailTemplateHTML string `json:"email_template_html"`
	CustomCode        string `json:"custom_code"`
}

// RecoveryCodeResponse confirms a code was issued. DevCode is only present in development.
type RecoveryCodeResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	DevCode   string    `json:"dev_code,omitempty"`
}

// VerifyCodeRequest redeems a recovery code.
type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyCodeResponse carries the token granted for a valid code.
type VerifyCodeResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ResetPasswordRequest sets a new password for the bearer's account.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"new_password" binding:"required"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
