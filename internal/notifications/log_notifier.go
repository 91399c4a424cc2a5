package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier "delivers" by writing a structured log line. It stands in for a
// mail provider until one is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, in WelcomeInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.welcome",
		"user_id", in.UserID,
		"email", in.Email,
		"name", in.Name,
	)
	return nil
}
