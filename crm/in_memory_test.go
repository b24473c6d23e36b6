package crm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convomesh/core"
)

func TestInMemoryClient_Upsert_CreatesContact(t *testing.T) {
	client := NewInMemoryClient()

	err := client.Upsert(context.Background(), core.ContactUpsert{
		ContactID:  "contact-1",
		Attributes: map[string]string{"name": "Dana", "email": "dana@example.com"},
		Labels:     []string{"priority:high", "intent:sales"},
	})
	require.NoError(t, err)

	contact, ok := client.Get("contact-1")
	require.True(t, ok)
	assert.Equal(t, "Dana", contact.Attributes["name"])
	assert.Equal(t, []string{"intent:sales", "priority:high"}, contact.Labels)
}

func TestInMemoryClient_Upsert_AttributesOverwriteLabelsUnion(t *testing.T) {
	client := NewInMemoryClient()
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, core.ContactUpsert{
		ContactID:  "contact-1",
		Attributes: map[string]string{"name": "Old", "phone": "555"},
		Labels:     []string{"a"},
	}))
	require.NoError(t, client.Upsert(ctx, core.ContactUpsert{
		ContactID:  "contact-1",
		Attributes: map[string]string{"name": "New"},
		Labels:     []string{"b"},
	}))

	contact, ok := client.Get("contact-1")
	require.True(t, ok)
	assert.Equal(t, "New", contact.Attributes["name"])
	assert.Equal(t, "555", contact.Attributes["phone"])
	assert.Equal(t, []string{"a", "b"}, contact.Labels)
}

func TestInMemoryClient_Upsert_Idempotent(t *testing.T) {
	client := NewInMemoryClient()
	ctx := context.Background()
	up := core.ContactUpsert{
		ContactID:  "contact-1",
		Attributes: map[string]string{"name": "Dana"},
		Labels:     []string{"x", "y"},
	}

	require.NoError(t, client.Upsert(ctx, up))
	first, _ := client.Get("contact-1")

	require.NoError(t, client.Upsert(ctx, up))
	second, _ := client.Get("contact-1")

	assert.Equal(t, first, second)
	assert.Equal(t, 2, client.UpsertCount)
}

func TestInMemoryClient_Upsert_InjectedFailure(t *testing.T) {
	client := NewInMemoryClient()
	client.FailWith = errors.New("connection refused")

	err := client.Upsert(context.Background(), core.ContactUpsert{ContactID: "contact-1"})

	assert.Error(t, err)
	_, ok := client.Get("contact-1")
	assert.False(t, ok)
	assert.Equal(t, 1, client.UpsertCount)
}
