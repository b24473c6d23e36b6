package core

import "strings"

// Intent is the fixed classification taxonomy for inbound turns. The Router
// stage always produces a member of this set; unrecognized model output is
// normalized to IntentGeneral.
type Intent string

const (
	IntentGeneral      Intent = "general"
	IntentQuestion     Intent = "question"
	IntentSupport      Intent = "support"
	IntentSales        Intent = "sales"
	IntentBilling      Intent = "billing"
	IntentComplaint    Intent = "complaint"
	IntentCancellation Intent = "cancellation"
)

// Intents lists every member of the taxonomy.
var Intents = []Intent{
	IntentGeneral,
	IntentQuestion,
	IntentSupport,
	IntentSales,
	IntentBilling,
	IntentComplaint,
	IntentCancellation,
}

// NormalizeIntent maps arbitrary classifier output onto the taxonomy,
// falling back to IntentGeneral for anything unrecognized.
func NormalizeIntent(raw string) Intent {
	v := Intent(strings.ToLower(strings.TrimSpace(raw)))
	for _, it := range Intents {
		if v == it {
			return it
		}
	}
	return IntentGeneral
}

// Priority is the three-level urgency classification of a turn.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// NormalizePriority maps arbitrary classifier output onto the priority set,
// falling back to PriorityLow.
func NormalizePriority(raw string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityMedium:
		return PriorityMedium
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityLow
	}
}

// Channel identifies the transport a turn arrived on.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// ClampSentiment bounds a sentiment value to the [-1, 1] range.
func ClampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
