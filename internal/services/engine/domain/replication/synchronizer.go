package replication

import (
	"maps"
	"slices"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Synchronizer is one observer's filtered view of a journal. It implements
// journal.Listener and runs on the journal's goroutine.
type Synchronizer struct {
	observer   Observer
	visibility Visibility
	journal    *journal.Journal
	sink       Sink

	// shown is the visibility the observer had at the last flush.
	shown map[object.ID]bool
	// dirty are objects whose visibility may have changed since.
	dirty map[object.ID]struct{}

	batchKind journal.Kind
	batch     []command.Command
	seq       uint64
	err       error
}

// NewSynchronizer creates a synchronizer. It is not registered on j; use
// Attach or Hub for that.
func NewSynchronizer(j *journal.Journal, observer Observer, visibility Visibility, sink Sink) *Synchronizer {
	if visibility == nil {
		visibility = Everything
	}
	return &Synchronizer{
		observer:   observer,
		visibility: visibility,
		journal:    j,
		sink:       sink,
		shown:      make(map[object.ID]bool),
		dirty:      make(map[object.ID]struct{}),
	}
}

// Observer returns the observer this synchronizer serves.
func (s *Synchronizer) Observer() Observer { return s.observer }

// Err returns the first delivery error. Deliveries stop after it.
func (s *Synchronizer) Err() error { return s.err }

// Seq returns the sequence number of the last delivered packet.
func (s *Synchronizer) Seq() uint64 { return s.seq }

// Bootstrap sends the observer everything it may see of the committed state,
// baseline included. The state is rebuilt from the journal's initial
// synchronization command so that work in open transactions never leaks.
func (s *Synchronizer) Bootstrap() error {
	committed := object.NewManager()
	s.journal.InitialSynchronizationCommand().Execute(committed)

	f := filter{manager: committed, visibility: s.visibility, observer: s.observer}
	var reveals []command.Command
	for _, id := range committed.IDs() {
		obj, _ := committed.Get(id)
		if !s.visibility.IsVisible(obj, s.observer) {
			continue
		}
		reveals = append(reveals, command.RevealOf(obj, f))
		s.shown[id] = true
	}
	return s.deliver(Packet{Kind: journal.KindNone, Bootstrap: true, Command: &command.Multi{Commands: reveals}})
}

// Update marks an object whose visibility to this observer may have changed.
// Only the net visibility at the next flush matters.
func (s *Synchronizer) Update(id object.ID) {
	s.dirty[id] = struct{}{}
}

// VisibilityChanged records a visibility change notification from the game
// layer. Notifications for other observers are ignored.
func (s *Synchronizer) VisibilityChanged(id object.ID, observer Observer, _ bool) {
	if observer != s.observer {
		return
	}
	s.Update(id)
}

// BeginTransaction implements journal.Listener.
func (s *Synchronizer) BeginTransaction(kind journal.Kind) {
	s.batchKind = kind
	s.batch = s.batch[:0]
}

// Synchronize implements journal.Listener.
func (s *Synchronizer) Synchronize(cmd command.Command) {
	s.batch = append(s.batch, cmd)
}

// EndCurrentTransaction implements journal.Listener.
func (s *Synchronizer) EndCurrentTransaction(rolledBack bool) {
	batch := s.batch
	s.batch = nil
	if rolledBack || len(batch) == 0 {
		return
	}
	var cmd command.Command = batch[0]
	if len(batch) > 1 {
		cmd = &command.Multi{Commands: batch}
	}
	_ = s.flush(s.batchKind, cmd)
}

// Flush delivers pending visibility updates without a committed command.
func (s *Synchronizer) Flush() error {
	return s.flush(journal.KindNone, nil)
}

func (s *Synchronizer) flush(kind journal.Kind, cmd command.Command) error {
	manager := s.journal.Manager()
	candidates := maps.Clone(s.dirty)
	created := make(map[object.ID]bool)
	collectTargets(cmd, candidates, created)
	clear(s.dirty)

	before := make(map[object.ID]bool, len(candidates))
	covered := make(map[object.ID]bool)
	var concealed []object.ID
	for id := range candidates {
		was := s.shown[id]
		before[id] = was
		now := false
		obj, live := manager.Get(id)
		if live {
			now = s.visibility.IsVisible(obj, s.observer)
		}
		if now && !was && !created[id] {
			covered[id] = true
		}
		// Destroyed objects leave through the synchronized Destroy.
		if was && !now && live {
			concealed = append(concealed, id)
		}
		if now {
			s.shown[id] = true
		} else {
			delete(s.shown, id)
		}
	}

	f := filter{
		manager:    manager,
		visibility: s.visibility,
		observer:   s.observer,
		known:      func(id object.ID) bool { return before[id] },
		hidden:     covered,
	}
	var parts []command.Command
	if out := command.Synchronize(cmd, f); out != nil {
		parts = append(parts, out)
	}
	reveal := filter{manager: manager, visibility: s.visibility, observer: s.observer}
	for _, id := range slices.Sorted(maps.Keys(covered)) {
		obj, _ := manager.Get(id)
		parts = append(parts, command.RevealOf(obj, reveal))
	}
	slices.Sort(concealed)
	for _, id := range concealed {
		parts = append(parts, &command.Conceal{Object: id})
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return s.deliver(Packet{Kind: kind, Command: parts[0]})
	default:
		return s.deliver(Packet{Kind: kind, Command: &command.Multi{Commands: parts}})
	}
}

func (s *Synchronizer) deliver(p Packet) error {
	if s.err != nil {
		return s.err
	}
	s.seq++
	p.Seq = s.seq
	p.Observer = s.observer
	if err := s.sink.Deliver(p); err != nil {
		s.err = err
		return err
	}
	return nil
}

// collectTargets gathers the objects cmd touches and the ones it creates.
func collectTargets(cmd command.Command, targets map[object.ID]struct{}, created map[object.ID]bool) {
	switch typed := cmd.(type) {
	case nil:
		return
	case *command.Multi:
		for _, child := range typed.Commands {
			collectTargets(child, targets, created)
		}
	case *command.Inverse:
		collectTargets(typed.Of, targets, nil)
	case *command.Create:
		targets[typed.ID()] = struct{}{}
		if created != nil {
			created[typed.ID()] = true
		}
	case command.Targeted:
		targets[typed.Target()] = struct{}{}
	}
}
