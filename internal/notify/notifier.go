// Package notify delivers cycle outcome messages.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"ytuploader/internal/core"
)

// MultiNotifier fans a message out to several notifiers.
type MultiNotifier struct {
	notifiers []core.Notifier
}

func NewMultiNotifier(notifiers ...core.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send tries every notifier and joins their errors.
func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes messages to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(_ context.Context, title, body string) error {
	n.Logger.Info("notification", "title", title, "body", body)
	return nil
}

// NoOpNotifier does nothing.
type NoOpNotifier struct{}

func (NoOpNotifier) Send(context.Context, string, string) error {
	return nil
}

var (
	_ core.Notifier = (*BarkNotifier)(nil)
	_ core.Notifier = (*MultiNotifier)(nil)
	_ core.Notifier = LogNotifier{}
	_ core.Notifier = NoOpNotifier{}
)
