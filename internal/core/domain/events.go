package domain

import "time"

// UserRegisteredEvent represents the payload for usermanager.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	Username     string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// UserUpdatedEvent represents the payload for usermanager.user.updated messages.
type UserUpdatedEvent struct {
	EventID          string
	PreviousUsername string
	Username         string
	Email            string
	UpdatedAt        time.Time
	Metadata         map[string]any
}

// UserDeletedEvent represents the payload for usermanager.user.deleted messages.
type UserDeletedEvent struct {
	EventID   string
	Username  string
	DeletedAt time.Time
	Metadata  map[string]any
}

// PasswordRecoveryRequestedEvent represents the payload for usermanager.password.recovery_requested messages.
type PasswordRecoveryRequestedEvent struct {
	EventID           string
	Username          string
	MaskedDestination string
	RequestedAt       time.Time
	ExpiresAt         time.Time
	CustomCode        bool
	IPAddress         *string
	Metadata          map[string]any
}

// PasswordChangedEvent represents the payload for usermanager.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	Username  string
	ChangedAt time.Time
	ChangedBy string
	Reason    string
	Metadata  map[string]any
}
