package notifications

import "context"

type WelcomeInput struct {
	UserID string
	Email  string
	Name   string
}

type Notifier interface {
	SendWelcome(ctx context.Context, input WelcomeInput) error
}
