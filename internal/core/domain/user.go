package domain

import "strings"

// User mirrors the persisted representation in the users table.
type User struct {
	FullName     string
	Username     string
	Email        string
	PasswordHash string
}

// UserProfile is the public view of a user returned to clients.
type UserProfile struct {
	FullName string
	Username string
	Email    string
}

// Profile strips credential material from the user.
func (u User) Profile() UserProfile {
	return UserProfile{
		FullName: u.FullName,
		Username: u.Username,
		Email:    u.Email,
	}
}

// Normalize trims surrounding whitespace from identifying fields.
func (u User) Normalize() User {
	u.FullName = strings.TrimSpace(u.FullName)
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	return u
}
