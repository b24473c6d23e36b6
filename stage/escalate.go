package stage

import (
	"context"
	"unicode/utf8"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
)

// snippetLen bounds the conversation excerpt included in a notification.
const snippetLen = 160

// EscalateOptions configures the escalation stage.
type EscalateOptions struct {
	// RecipientClass names the human recipient group for notifications.
	RecipientClass string

	// Logger records notification failures; they are never retried.
	Logger logging.Logger
}

// Escalate notifies a human recipient that the conversation needs takeover.
// It is terminal: whatever the notification outcome, nothing runs after it.
// A failed send is logged and swallowed so the turn still completes with the
// escalation recorded in state.
type Escalate struct {
	notifier core.Notifier
	opts     EscalateOptions
	log      *logging.PipelineLogger
}

// NewEscalate creates the escalation stage.
func NewEscalate(notifier core.Notifier, optFns ...func(o *EscalateOptions)) *Escalate {
	opts := EscalateOptions{
		RecipientClass: "human-agent",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Escalate{
		notifier: notifier,
		opts:     opts,
		log:      logging.NewPipelineLogger(opts.Logger).WithComponent("escalate"),
	}
}

// Name implements core.Stage.
func (e *Escalate) Name() core.StageName {
	return core.StageEscalate
}

// Execute implements core.Stage.
func (e *Escalate) Execute(ctx context.Context, state *core.ConversationState) (*core.StatePatch, error) {
	reason := "unspecified"
	if state.EscalationReason != nil && *state.EscalationReason != "" {
		reason = *state.EscalationReason
	}

	n := core.Notification{
		RecipientClass: e.opts.RecipientClass,
		Reason:         reason,
		Priority:       state.Priority,
		ContextSnippet: snippet(state.Content),
		ContactID:      state.ContactID,
		ConversationID: state.ConversationID,
	}

	if err := e.notifier.Send(ctx, n); err != nil {
		e.log.Error("escalation notification failed",
			"conversation_id", state.ConversationID, "reason", reason, "error", err)
	}

	return &core.StatePatch{NeedsEscalation: boolPtr(true)}, nil
}

func snippet(content string) string {
	if len(content) <= snippetLen {
		return content
	}
	cut := snippetLen
	// Never split a multibyte rune mid-sequence.
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

var _ core.Stage = (*Escalate)(nil)
