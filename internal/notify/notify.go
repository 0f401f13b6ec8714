// Package notify delivers short messages (verification codes) to users over
// a configured channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"passport/internal/apperr"
)

// Channel names a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// ErrChannelUnavailable is returned for unknown or unconfigured channels.
var ErrChannelUnavailable = apperr.New(apperr.KindBadRequest, "notify_channel_unavailable", "Notification channel is not available")

// ParseChannel validates a channel name taken from user input.
func ParseChannel(raw string) (Channel, error) {
	switch Channel(raw) {
	case ChannelEmail, ChannelTelegram:
		return Channel(raw), nil
	default:
		return "", ErrChannelUnavailable.WithMessage("Unknown notification channel %q", raw)
	}
}

// Message is a single notification. To is channel specific: an email address
// or a Telegram chat id.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Dispatcher routes messages to the sender registered for a channel.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[Channel]Sender
	logger  *slog.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{senders: make(map[Channel]Sender), logger: logger}
}

// Register installs the sender for a channel, replacing any previous one.
func (d *Dispatcher) Register(ch Channel, sender Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[ch] = sender
}

// Available reports whether a sender is registered for ch.
func (d *Dispatcher) Available(ch Channel) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.senders[ch]
	return ok
}

// Send delivers msg over ch.
func (d *Dispatcher) Send(ctx context.Context, ch Channel, msg Message) error {
	d.mu.RLock()
	sender, ok := d.senders[ch]
	d.mu.RUnlock()
	if !ok {
		return ErrChannelUnavailable.WithMessage("Notification channel %q is not configured", ch)
	}

	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s notification: %w", ch, err)
	}
	d.logger.Debug("notification sent", "channel", ch)
	return nil
}
