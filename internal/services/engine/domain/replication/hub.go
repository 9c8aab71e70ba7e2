package replication

import (
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// ErrObserverAttached indicates an observer that already has a synchronizer.
var ErrObserverAttached = errors.New("observer is already attached")

// Hub keeps one synchronizer per observer on a shared journal. Like the
// journal it is driven from the game's serialization domain.
type Hub struct {
	journal    *journal.Journal
	visibility Visibility
	observers  map[Observer]*attachment
}

type attachment struct {
	sync   *Synchronizer
	handle journal.Handle
}

// NewHub creates a hub for j.
func NewHub(j *journal.Journal, visibility Visibility) *Hub {
	return &Hub{journal: j, visibility: visibility, observers: make(map[Observer]*attachment)}
}

// Attach registers observer, sends it the bootstrap packet, and starts
// forwarding committed batches to sink.
func (h *Hub) Attach(observer Observer, sink Sink) (*Synchronizer, error) {
	if _, ok := h.observers[observer]; ok {
		return nil, fmt.Errorf("%w: %s", ErrObserverAttached, observer)
	}
	s := NewSynchronizer(h.journal, observer, h.visibility, sink)
	if err := s.Bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", observer, err)
	}
	handle := h.journal.Register(&guardedListener{hub: h, sync: s})
	h.observers[observer] = &attachment{sync: s, handle: handle}
	return s, nil
}

// Detach stops forwarding to observer.
func (h *Hub) Detach(observer Observer) bool {
	a, ok := h.observers[observer]
	if !ok {
		return false
	}
	h.journal.Unregister(a.handle)
	delete(h.observers, observer)
	return true
}

// Observers lists attached observers in sorted order.
func (h *Hub) Observers() []Observer {
	out := make([]Observer, 0, len(h.observers))
	for observer := range h.observers {
		out = append(out, observer)
	}
	slices.Sort(out)
	return out
}

// Synchronizer returns the synchronizer for observer.
func (h *Hub) Synchronizer(observer Observer) (*Synchronizer, bool) {
	a, ok := h.observers[observer]
	if !ok {
		return nil, false
	}
	return a.sync, true
}

// VisibilityChanged routes a visibility change to its observer.
func (h *Hub) VisibilityChanged(id object.ID, observer Observer, nowVisible bool) {
	if a, ok := h.observers[observer]; ok {
		a.sync.VisibilityChanged(id, observer, nowVisible)
	}
}

// Update marks id for every observer.
func (h *Hub) Update(id object.ID) {
	for _, a := range h.observers {
		a.sync.Update(id)
	}
}

// Flush delivers pending visibility updates to every observer.
func (h *Hub) Flush() {
	for _, observer := range h.Observers() {
		a := h.observers[observer]
		if err := a.sync.Flush(); err != nil {
			h.drop(observer, err)
		}
	}
}

func (h *Hub) drop(observer Observer, err error) {
	log.Printf("replication: detach %s after delivery failure: %v", observer, err)
	h.Detach(observer)
}

// guardedListener detaches observers whose sink fails.
type guardedListener struct {
	hub  *Hub
	sync *Synchronizer
}

func (g *guardedListener) BeginTransaction(kind journal.Kind) {
	g.sync.BeginTransaction(kind)
}

func (g *guardedListener) Synchronize(cmd command.Command) {
	g.sync.Synchronize(cmd)
}

func (g *guardedListener) EndCurrentTransaction(rolledBack bool) {
	g.sync.EndCurrentTransaction(rolledBack)
	if err := g.sync.Err(); err != nil {
		g.hub.drop(g.sync.Observer(), err)
	}
}
