package core

import (
	"context"
	"time"
)

// InboundTurn is the admission-layer contract for one inbound message.
type InboundTurn struct {
	ConversationID string    `json:"conversation_id"`
	ContactID      string    `json:"contact_id"`
	Channel        Channel   `json:"channel"`
	Content        string    `json:"content"`
	ReceivedAt     time.Time `json:"received_at"`
}

// RetrievalQuery describes one knowledge lookup issued by the generation
// loop.
type RetrievalQuery struct {
	Query               string  `json:"query"`
	CategoryFilter      string  `json:"category_filter,omitempty"`
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// RetrievalService is the vector similarity search boundary. Search returns
// candidates ordered by descending similarity, ties broken by most recent
// document identifier. A transport failure surfaces as an error wrapping
// ErrRetrievalUnavailable; the generation stage degrades gracefully rather
// than failing the turn.
type RetrievalService interface {
	Search(ctx context.Context, q RetrievalQuery) ([]RetrievalResult, error)
}

// ContactUpsert carries the attribute overwrite map and the add-only label
// set for one CRM contact update.
type ContactUpsert struct {
	ContactID  string            `json:"contact_id"`
	Attributes map[string]string `json:"attributes"`
	Labels     []string          `json:"labels"`
}

// CRMClient is the contact-record store boundary. Upsert overwrites the
// provided attributes and union-adds labels; labels are never removed.
// Upsert must be idempotent so checkpoint replay after a crash is safe.
type CRMClient interface {
	Upsert(ctx context.Context, up ContactUpsert) error
}

// Notification describes one escalation hand-off to a human.
type Notification struct {
	RecipientClass string   `json:"recipient_class"`
	Reason         string   `json:"reason"`
	Priority       Priority `json:"priority"`
	ContextSnippet string   `json:"context_snippet"`
	ContactID      string   `json:"contact_id"`
	ConversationID string   `json:"conversation_id"`
}

// Notifier delivers escalation notifications through an external channel.
// Delivery failures are logged by the caller, not retried indefinitely: the
// record annotation is expected to reach a human regardless.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
