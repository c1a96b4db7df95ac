package domain

import "time"

// RecoveryCodeLength is the number of digits in a password recovery code.
const RecoveryCodeLength = 5

// RecoveryCode is the single outstanding password recovery code for an email address.
type RecoveryCode struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// IsExpired reports whether the code can no longer be redeemed at the supplied moment.
func (c RecoveryCode) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// RecoveryEmail carries everything needed to render and deliver a recovery code.
type RecoveryEmail struct {
	To       string
	Username string
	Code     string
	// Template is an optional caller supplied HTML document.
	Template  string
	ExpiresAt time.Time
}
