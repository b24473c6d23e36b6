// Package notify contains concrete Notifier implementations for the
// escalation hand-off channel. The interface and notification envelope
// reside in the core package.
package notify

import (
	"context"
	"sync"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
)

// LogNotifier writes escalation notifications to the structured log. Useful
// as a development default when no paging channel is wired.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier constructs a LogNotifier; a nil logger is replaced by
// NoOpLogger.
func NewLogNotifier(l logging.Logger) *LogNotifier {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &LogNotifier{logger: l}
}

// Send implements core.Notifier.
func (n *LogNotifier) Send(ctx context.Context, notification core.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Warn("escalation notification",
		"conversation_id", notification.ConversationID,
		"contact_id", notification.ContactID,
		"recipient_class", notification.RecipientClass,
		"reason", notification.Reason,
		"priority", string(notification.Priority),
		"context_snippet", notification.ContextSnippet,
	)
	return nil
}

// RecordingNotifier captures notifications for assertions in tests. An
// injectable failure lets tests exercise the log-and-continue delivery
// failure path.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []core.Notification

	// FailWith, when non-nil, is returned by every Send call.
	FailWith error
}

// NewRecordingNotifier constructs an empty RecordingNotifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Send implements core.Notifier.
func (n *RecordingNotifier) Send(ctx context.Context, notification core.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailWith != nil {
		return n.FailWith
	}
	n.sent = append(n.sent, notification)
	return nil
}

// Sent returns a copy of all delivered notifications.
func (n *RecordingNotifier) Sent() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.sent...)
}

var (
	_ core.Notifier = (*LogNotifier)(nil)
	_ core.Notifier = (*RecordingNotifier)(nil)
)
