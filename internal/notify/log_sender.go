package notify

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them.
// Intended for local development.
type LogSender struct {
	Channel Channel
	Logger  *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification (not delivered)", "channel", s.Channel, "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
