package domain

import "time"

// TokenTypeBearer is the token type label returned alongside every access token.
const TokenTypeBearer = "Bearer"

// AccessToken is a signed, stateless session credential.
type AccessToken struct {
	Value     string
	TokenType string
	Subject   string
	ExpiresAt time.Time
}

// ExpiresIn returns the remaining lifetime in whole seconds relative to now.
func (t AccessToken) ExpiresIn(now time.Time) int {
	remaining := t.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}
