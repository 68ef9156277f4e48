package service

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/internal/domain/model"
	"github.com/okian/awards/internal/stream"
	"github.com/okian/awards/pkg/logger"
)

// EventTypeCache keeps the event type table in memory for the life of the
// process. Lookups never block; before the first snapshot arrives they
// return defaults.
type EventTypeCache struct {
	backend store.Backend
	log     logger.Logger

	mu     sync.RWMutex
	types  []model.EventType
	loaded bool
	ready  chan struct{}
	sub    *stream.Stream[[]model.EventType]
	done   chan struct{}
}

// NewEventTypeCache creates a cache reading from backend. Call Start to sync.
func NewEventTypeCache(backend store.Backend, log logger.Logger) *EventTypeCache {
	if log == nil {
		log = logger.Nop()
	}
	return &EventTypeCache{
		backend: backend,
		log:     log.Named("event-types"),
		ready:   make(chan struct{}),
	}
}

// Start subscribes to the event type table. Calling it again while running
// does nothing.
func (c *EventTypeCache) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return
	}

	q := store.Collection(eventTypesPath)
	c.sub = stream.Subscribe(context.WithoutCancel(ctx), c.backend, q, decodeEventType,
		stream.WithName("event-types"), stream.WithLogger(c.log))
	c.done = make(chan struct{})
	go c.sync(ctx, c.sub, c.done)
}

func (c *EventTypeCache) sync(ctx context.Context, sub *stream.Stream[[]model.EventType], done chan struct{}) {
	defer close(done)
	for types := range sub.Updates() {
		c.mu.Lock()
		c.types = types
		if !c.loaded {
			c.loaded = true
			close(c.ready)
		}
		c.mu.Unlock()
		c.log.Debug(ctx, "event types updated", logger.Int("count", len(types)))
	}
	if err := sub.Err(); err != nil && !errors.Is(err, stream.ErrCanceled) {
		c.log.Error(ctx, "event type sync stopped", logger.Error(err))
	}
}

// Stop cancels the subscription. The last known table stays readable.
func (c *EventTypeCache) Stop() {
	c.mu.Lock()
	sub, done := c.sub, c.done
	c.sub, c.done = nil, nil
	c.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Cancel()
	<-done
}

// Ready is closed once the first snapshot has been loaded.
func (c *EventTypeCache) Ready() <-chan struct{} { return c.ready }

// Loaded reports whether a snapshot has been received.
func (c *EventTypeCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// List returns the current table.
func (c *EventTypeCache) List() []model.EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.EventType(nil), c.types...)
}

// Lookup finds an event type by slug or document id.
func (c *EventTypeCache) Lookup(ref string) (model.EventType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.types {
		if t.Matches(ref) {
			return t, true
		}
	}
	return model.EventType{}, false
}

// DisplayName returns the display name for ref, or model.UnknownEventName.
func (c *EventTypeCache) DisplayName(ref string) string {
	if t, ok := c.Lookup(ref); ok {
		return t.DisplayName
	}
	return model.UnknownEventName
}

// Color returns the color for ref, if the event type has one.
func (c *EventTypeCache) Color(ref string) (string, bool) {
	t, ok := c.Lookup(ref)
	if !ok || t.Color == "" {
		return "", false
	}
	return t.Color, true
}
