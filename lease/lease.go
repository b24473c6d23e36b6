// Package lease implements time-bounded per-conversation mutual exclusion.
// The orchestrator acquires a lease before running a turn, renews it on
// every checkpoint write, and releases it on the terminal transition. A
// stale lease whose owner crashed becomes reclaimable once its TTL expires,
// so no conversation is locked forever.
package lease

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL bounds how long an unrenewed lease stays authoritative.
const DefaultTTL = 30 * time.Second

var (
	// ErrHeld is returned when another owner holds an unexpired lease.
	ErrHeld = errors.New("lease held by another owner")
	// ErrNotOwner is returned when renewing or releasing a lease the caller
	// does not own.
	ErrNotOwner = errors.New("lease not owned by caller")
)

type entry struct {
	owner     string
	expiresAt time.Time
}

// Registry is an in-memory lease table keyed by conversation identifier.
// Safe for concurrent use. The clock is injectable for tests.
type Registry struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	leases map[string]entry
}

// NewRegistry constructs a Registry with the given TTL (DefaultTTL when
// non-positive).
func NewRegistry(ttl time.Duration, optFns ...func(*Registry)) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		ttl:    ttl,
		now:    time.Now,
		leases: make(map[string]entry),
	}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) func(*Registry) {
	return func(r *Registry) { r.now = now }
}

// Acquire claims the lease for conversationID on behalf of owner. It
// succeeds when no lease exists, the previous lease expired (stale owner
// reclaim), or the caller already owns it (re-acquire extends the expiry).
func (r *Registry) Acquire(conversationID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if cur, ok := r.leases[conversationID]; ok && cur.owner != owner && cur.expiresAt.After(now) {
		return fmt.Errorf("%w: conversation %s", ErrHeld, conversationID)
	}
	r.leases[conversationID] = entry{owner: owner, expiresAt: now.Add(r.ttl)}
	return nil
}

// Renew extends the caller's lease. Renewing an expired lease succeeds as
// long as no other owner reclaimed it in between.
func (r *Registry) Renew(conversationID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.leases[conversationID]
	if !ok || cur.owner != owner {
		return fmt.Errorf("%w: conversation %s", ErrNotOwner, conversationID)
	}
	r.leases[conversationID] = entry{owner: owner, expiresAt: r.now().Add(r.ttl)}
	return nil
}

// Release drops the caller's lease. Releasing a lease someone else owns is
// an error; releasing an absent lease is a no-op (idempotent release after
// expiry-reclaim races).
func (r *Registry) Release(conversationID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.leases[conversationID]
	if !ok {
		return nil
	}
	if cur.owner != owner {
		return fmt.Errorf("%w: conversation %s", ErrNotOwner, conversationID)
	}
	delete(r.leases, conversationID)
	return nil
}

// Holder reports the current owner and whether the lease is live.
func (r *Registry) Holder(conversationID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.leases[conversationID]
	if !ok || !cur.expiresAt.After(r.now()) {
		return "", false
	}
	return cur.owner, true
}
