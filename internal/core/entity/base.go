package entity

import (
	"reflect"
)

// DomainEvent is raised by business logic on an entity and dispatched after
// the entity has been saved.
type DomainEvent interface {
	EventName() string
}

// Identifiable is implemented by every record entity.
type Identifiable interface {
	// IdentityKey returns the key as an opaque comparable value.
	IdentityKey() (any, bool)
}

// EventSource exposes pending domain events to whoever dispatches them.
type EventSource interface {
	Events() []DomainEvent
	ClearEvents()
}

// Base carries identity and pending domain events. Embed it in entities.
type Base[K comparable] struct {
	identity Identity[K]
	events   []DomainEvent
}

// NewBase creates a persisted-looking base with a caller-assigned key.
func NewBase[K comparable](k K) Base[K] {
	return Base[K]{identity: Some(k)}
}

// ID returns the key and whether it has been assigned.
func (b *Base[K]) ID() (K, bool) {
	return b.identity.Get()
}

// Identity returns the identity option.
func (b *Base[K]) Identity() Identity[K] {
	return b.identity
}

// IdentityKey implements Identifiable.
func (b *Base[K]) IdentityKey() (any, bool) {
	k, ok := b.identity.Get()
	if !ok {
		return nil, false
	}
	return k, true
}

// IsTransient reports whether the entity has not been persisted yet.
func (b *Base[K]) IsTransient() bool {
	return b.identity.IsTransient()
}

// AssignID sets the key. Called by the store after a generated key is known,
// or by the caller before commit.
func (b *Base[K]) AssignID(k K) {
	b.identity = Some(k)
}

// AddEvent appends a domain event.
func (b *Base[K]) AddEvent(e DomainEvent) {
	b.events = append(b.events, e)
}

// RemoveEvent drops the first occurrence of e.
func (b *Base[K]) RemoveEvent(e DomainEvent) {
	for i, ev := range b.events {
		if ev == e {
			b.events = append(b.events[:i], b.events[i+1:]...)
			return
		}
	}
}

// Events returns pending events in the order they were added.
func (b *Base[K]) Events() []DomainEvent {
	out := make([]DomainEvent, len(b.events))
	copy(out, b.events)
	return out
}

// ClearEvents drops all pending events.
func (b *Base[K]) ClearEvents() {
	b.events = nil
}

// Equal reports identity equality: same concrete type and the same present
// key. Transient entities are only equal to themselves.
func Equal(a, b Identifiable) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	ka, okA := a.IdentityKey()
	kb, okB := b.IdentityKey()
	if !okA || !okB {
		return sameReference(a, b)
	}
	return ka == kb
}

func sameReference(a, b Identifiable) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return false
}
