package jobs

import "time"

// UserWelcomePayload greets a freshly signed up user.
// Kept denormalised so the worker never has to read the users table.
type UserWelcomePayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestID   string    `json:"requestId,omitempty"`
}
