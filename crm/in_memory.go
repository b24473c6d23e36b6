// Package crm contains concrete CRMClient implementations. The client
// interface and upsert envelope reside in the core package.
package crm

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/convomesh/core"
)

// Contact is the in-memory representation of one CRM contact record.
type Contact struct {
	ContactID  string
	Attributes map[string]string
	Labels     []string
}

// InMemoryClient is a process-local CRMClient suitable for tests and
// examples. Upserts follow the production contract: attributes overwrite,
// labels union-add and are never removed. An injectable failure hook lets
// tests simulate an unreachable CRM.
type InMemoryClient struct {
	mu       sync.Mutex
	contacts map[string]*Contact

	// FailWith, when non-nil, is returned by every Upsert call.
	FailWith error
	// UpsertCount tallies attempts including failed ones.
	UpsertCount int
}

// NewInMemoryClient constructs an empty in-memory CRM.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{contacts: make(map[string]*Contact)}
}

// Upsert implements core.CRMClient.
func (c *InMemoryClient) Upsert(ctx context.Context, up core.ContactUpsert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UpsertCount++
	if c.FailWith != nil {
		return c.FailWith
	}

	contact, ok := c.contacts[up.ContactID]
	if !ok {
		contact = &Contact{ContactID: up.ContactID, Attributes: make(map[string]string)}
		c.contacts[up.ContactID] = contact
	}
	for k, v := range up.Attributes {
		contact.Attributes[k] = v
	}
	existing := make(map[string]bool, len(contact.Labels))
	for _, l := range contact.Labels {
		existing[l] = true
	}
	for _, l := range up.Labels {
		if !existing[l] {
			contact.Labels = append(contact.Labels, l)
			existing[l] = true
		}
	}
	sort.Strings(contact.Labels)
	return nil
}

// Get returns a copy of the stored contact, or false when absent.
func (c *InMemoryClient) Get(contactID string) (Contact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	contact, ok := c.contacts[contactID]
	if !ok {
		return Contact{}, false
	}
	out := Contact{ContactID: contact.ContactID, Attributes: make(map[string]string, len(contact.Attributes))}
	for k, v := range contact.Attributes {
		out.Attributes[k] = v
	}
	out.Labels = append([]string(nil), contact.Labels...)
	return out, true
}

var _ core.CRMClient = (*InMemoryClient)(nil)
