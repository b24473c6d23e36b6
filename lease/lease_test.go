package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source for TTL tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewRegistry(ttl, WithClock(clock.Now)), clock
}

func TestRegistry_Acquire_MutualExclusion(t *testing.T) {
	reg, _ := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))

	err := reg.Acquire("conv-1", "worker-b")
	assert.ErrorIs(t, err, ErrHeld)

	holder, ok := reg.Holder("conv-1")
	require.True(t, ok)
	assert.Equal(t, "worker-a", holder)
}

func TestRegistry_Acquire_SameOwnerExtends(t *testing.T) {
	reg, clock := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))
	clock.Advance(20 * time.Second)
	require.NoError(t, reg.Acquire("conv-1", "worker-a"))

	// Without the extension the lease would have expired here.
	clock.Advance(20 * time.Second)
	holder, ok := reg.Holder("conv-1")
	require.True(t, ok)
	assert.Equal(t, "worker-a", holder)
}

func TestRegistry_Acquire_StaleReclaim(t *testing.T) {
	reg, clock := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "crashed-worker"))
	clock.Advance(31 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-b"))
	holder, ok := reg.Holder("conv-1")
	require.True(t, ok)
	assert.Equal(t, "worker-b", holder)
}

func TestRegistry_Renew(t *testing.T) {
	reg, clock := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))
	clock.Advance(25 * time.Second)
	require.NoError(t, reg.Renew("conv-1", "worker-a"))
	clock.Advance(25 * time.Second)

	_, ok := reg.Holder("conv-1")
	assert.True(t, ok)
}

func TestRegistry_Renew_NotOwner(t *testing.T) {
	reg, _ := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))

	assert.ErrorIs(t, reg.Renew("conv-1", "worker-b"), ErrNotOwner)
	assert.ErrorIs(t, reg.Renew("conv-2", "worker-a"), ErrNotOwner)
}

func TestRegistry_Renew_AfterReclaimFails(t *testing.T) {
	reg, clock := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))
	clock.Advance(31 * time.Second)
	require.NoError(t, reg.Acquire("conv-1", "worker-b"))

	assert.ErrorIs(t, reg.Renew("conv-1", "worker-a"), ErrNotOwner)
}

func TestRegistry_Release(t *testing.T) {
	reg, _ := newTestRegistry(30 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))
	require.NoError(t, reg.Release("conv-1", "worker-a"))

	_, ok := reg.Holder("conv-1")
	assert.False(t, ok)

	// Released conversations are immediately acquirable.
	assert.NoError(t, reg.Acquire("conv-1", "worker-b"))
}

func TestRegistry_Release_AbsentIsNoOp(t *testing.T) {
	reg, _ := newTestRegistry(30 * time.Second)
	assert.NoError(t, reg.Release("conv-1", "worker-a"))
}

func TestRegistry_Release_NotOwner(t *testing.T) {
	reg, _ := newTestRegistry(30 * time.Second)
	require.NoError(t, reg.Acquire("conv-1", "worker-a"))
	assert.ErrorIs(t, reg.Release("conv-1", "worker-b"), ErrNotOwner)
}

func TestRegistry_Holder_ExpiredIsNotLive(t *testing.T) {
	reg, clock := newTestRegistry(10 * time.Second)

	require.NoError(t, reg.Acquire("conv-1", "worker-a"))
	clock.Advance(11 * time.Second)

	_, ok := reg.Holder("conv-1")
	assert.False(t, ok)
}
