package core

import "context"

// StageName identifies a node in the fixed pipeline graph. Routing decisions
// return a member of this closed enumeration rather than dispatching on
// runtime types, keeping the graph statically auditable.
type StageName string

const (
	StageRouter     StageName = "router"
	StageExtraction StageName = "extraction"
	StageGeneration StageName = "generation"
	StageSync       StageName = "sync"
	StageEscalate   StageName = "escalate"

	// StageEnd is the terminal marker; no stage executes for it.
	StageEnd StageName = "end"
)

// Stage is a single pipeline unit. Execute consumes the current state and
// returns a partial-state patch; it must not mutate the state directly. The
// orchestrator applies the patch, evaluates the outgoing decision and writes
// a checkpoint before invoking the next stage.
//
// Implementations must respect context cancellation on every external call
// and treat a call timeout identically to a transport error.
type Stage interface {
	Name() StageName
	Execute(ctx context.Context, state *ConversationState) (*StatePatch, error)
}

// Decision is a side-effect-free predicate over state selecting the next
// stage to execute.
type Decision func(state *ConversationState) StageName
