// Package events publishes entity change notifications after the
// transaction that made the change has committed.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

// Action names a change.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionRestored Action = "restored"
)

// ChangeEvent describes one committed change to an entity.
type ChangeEvent struct {
	ID         uuid.UUID `json:"id"`
	Table      string    `json:"table"`
	Action     Action    `json:"action"`
	TenantRef  uuid.UUID `json:"tenant_id"`
	EntityRef  uuid.UUID `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Change builds the event for entity.
func Change(entity models.Entity, action Action) ChangeEvent {
	rec := entity.Record()
	return ChangeEvent{
		ID:         uuid.New(),
		Table:      entity.TableName(),
		Action:     action,
		TenantRef:  entity.OwnerRef(),
		EntityRef:  rec.LogicalID,
		OccurredAt: rec.UpdatedAt,
	}
}

// Publisher delivers change events. Publish must not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, events ...ChangeEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...ChangeEvent) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (p *MemoryPublisher) Publish(_ context.Context, events ...ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChangeEvent(nil), p.events...)
}
