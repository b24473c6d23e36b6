package core

import "errors"

// Boundary failure sentinels. Stages match on these with errors.Is to pick a
// degradation path; only generation retry exhaustion and explicit escalation
// triggers may change the user-visible outcome of a turn.
var (
	// ErrCheckpointNotFound is returned by CheckpointStore.Get when no
	// checkpoint exists for the conversation.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrRetrievalUnavailable marks a retrieval service transport failure.
	// The generation loop answers without augmentation instead of failing.
	ErrRetrievalUnavailable = errors.New("retrieval service unavailable")

	// ErrSyncUnavailable marks a CRM transport failure. The sync stage
	// records a deferred-sync marker instead of blocking the turn.
	ErrSyncUnavailable = errors.New("crm service unavailable")
)

// Escalation reason codes stored in ConversationState.EscalationReason and
// forwarded in notifications.
const (
	EscalationReasonHighPriority      = "high_priority"
	EscalationReasonNegativeSentiment = "negative_sentiment"
	EscalationReasonIntentTrigger     = "intent_trigger"
	EscalationReasonPipelineFailure   = "pipeline_failure"
)
