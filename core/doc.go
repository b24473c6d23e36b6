// Package core contains the domain model and service contracts shared by all
// ConvoMesh packages: the ConversationState threaded through every pipeline
// stage, the partial-state patch stages return, the closed stage-name
// enumeration the orchestrator routes over, and the boundary interfaces for
// checkpoint persistence, knowledge retrieval, CRM synchronization and
// escalation notification.
//
// Keeping the contracts centralized here lets implementation packages
// (checkpoint, retrieval, crm, notify, stage, engine) depend on core without
// introducing dependency cycles, mirroring the store-interface layout used
// throughout the codebase.
package core
