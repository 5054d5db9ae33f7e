// Package events provides the in-process publish/subscribe channel that keeps
// plan-status consumers consistent without network round trips. It is a plain
// observer list keyed by event kind: no queuing, no retry, no cross-process
// delivery.
package events

import (
	"log/slog"
	"sort"
	"sync"

	"plansync/internal/types"
)

// Kind names one of the four supported event kinds. The values match the
// eventType tags the API embeds in mutating responses.
type Kind string

const (
	PropertyCreated     Kind = "propertyCreated"
	PropertyToggled     Kind = "propertyToggled"
	PropertyDeleted     Kind = "propertyDeleted"
	PropertyCountSynced Kind = "propertyCountSynced"
)

// known reports whether k is one of the four supported kinds.
func (k Kind) known() bool {
	switch k {
	case PropertyCreated, PropertyToggled, PropertyDeleted, PropertyCountSynced:
		return true
	}
	return false
}

// Detail is the payload delivered to subscribers. Snapshot is optional: when
// a mutating call returned a freshly computed snapshot, carrying it here lets
// the cache update itself without a refetch. Subscribers must treat Detail as
// read-only; all of them receive the same value.
type Detail struct {
	PropertyID string                   `json:"propertyId,omitempty"`
	Snapshot   *types.PlanLimitSnapshot `json:"snapshot,omitempty"`
}

// Handler receives event details. Handlers run synchronously on the
// publishing goroutine and should return quickly.
type Handler func(Detail)

// Bus is a process-wide event channel. The zero value is not usable; create
// one with NewBus. Each authenticated session owns its own Bus instance so
// tests and concurrent sessions stay isolated.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Kind]map[int]Handler
	logger *slog.Logger
}

// NewBus creates an empty Bus. A nil logger defaults to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Kind]map[int]Handler),
		logger: logger,
	}
}

// Subscribe registers a handler for one event kind and returns an
// unsubscribe function. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(kind Kind, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[kind][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[kind], id)
	}
}

// Publish delivers detail to every subscriber of kind, synchronously, in
// subscription order. Unknown kinds are logged and dropped, never an error:
// a newer server may emit kinds an older client does not understand.
func (b *Bus) Publish(kind Kind, detail Detail) {
	if !kind.known() {
		b.logger.Warn("dropping event of unknown kind", "kind", string(kind))
		return
	}

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[kind]))
	ids := make([]int, 0, len(b.subs[kind]))
	for id := range b.subs[kind] {
		ids = append(ids, id)
	}
	// Map iteration order is random; deliver in subscription order so
	// same-kind events reach a given subscriber in publish order relative
	// to its peers.
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[kind][id])
	}
	b.mu.Unlock()

	// Handlers run outside the lock so they may subscribe/unsubscribe.
	for _, fn := range handlers {
		fn(detail)
	}
}
