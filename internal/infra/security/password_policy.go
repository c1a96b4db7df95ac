package security

import (
	"github.com/josemoyano04/user-manager/internal/core/port"
)

// PasswordPolicy is the configured validator for new and reset passwords.
type PasswordPolicy struct {
	validator *PasswordValidator
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)

// NewPasswordPolicy builds a policy from the password.min_length and password.min_score settings.
func NewPasswordPolicy(minLength, minScore int) *PasswordPolicy {
	return &PasswordPolicy{
		validator: NewPasswordValidator(
			RequireNonBlankRule(),
			MinLengthRule(minLength),
			RequirePasswordStrengthRule(minScore),
		),
	}
}

func (p *PasswordPolicy) Validate(password string) error {
	return p.validator.Validate(password)
}
