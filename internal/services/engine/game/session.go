// Package game ties one game's state, journal, sequencer, replication and
// history into a session that transports can drive safely.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
)

var (
	// ErrIDRequired indicates a session without an id.
	ErrIDRequired = errors.New("game id is required")
	// ErrStateRequired indicates a session without initial state.
	ErrStateRequired = errors.New("initial state is required")
	// ErrEntryRequired indicates Start without an entry step.
	ErrEntryRequired = errors.New("entry step is required")
	// ErrNotStarted indicates an operation that needs a running program.
	ErrNotStarted = errors.New("game has not started")
	// ErrAlreadyStarted indicates a second Start.
	ErrAlreadyStarted = errors.New("game already started")
)

// Config describes a session.
type Config struct {
	ID         string
	Registry   *command.Registry
	Visibility replication.Visibility
	// History is optional. When set every committed operation is recorded.
	History history.Store
	Limits  sequencer.Limits
	// Fallback answers for unseated players. Nil means decision.Default.
	Fallback decision.DecisionMaker
}

// Session serializes every access to one game. Decision makers run outside
// the session lock against a private fork of the game.
type Session struct {
	id       string
	registry *command.Registry

	mu         sync.Mutex
	manager    *object.Manager
	journal    *journal.Journal
	hub        *replication.Hub
	visibility replication.Visibility
	recorder   *history.Recorder
	limits     sequencer.Limits
	seq        *sequencer.Sequencer
	changed    chan struct{}
	err        error

	seats       *decision.Router
	seatMu      sync.Mutex
	seatChanged chan struct{}
}

// New creates a session over state. The session takes ownership of state.
func New(ctx context.Context, cfg Config, state *object.Manager) (*Session, error) {
	if cfg.ID == "" {
		return nil, ErrIDRequired
	}
	if state == nil {
		return nil, ErrStateRequired
	}
	registry := cfg.Registry
	if registry == nil {
		registry = command.NewBuiltinRegistry()
	}
	visibility := cfg.Visibility
	if visibility == nil {
		visibility = replication.Everything
	}
	j := journal.New(state)
	s := &Session{
		id:         cfg.ID,
		registry:   registry,
		manager:    state,
		journal:    j,
		hub:        replication.NewHub(j, visibility),
		visibility: visibility,
		limits:     cfg.Limits,
		changed:    make(chan struct{}),

		seats:       decision.NewRouter(cfg.Fallback),
		seatChanged: make(chan struct{}),
	}
	if cfg.History != nil {
		rec, err := history.NewRecorder(ctx, cfg.History, registry, cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("history recorder: %w", err)
		}
		// A fresh history opens with the starting state so it replays onto an
		// empty manager.
		if baseline := j.Baseline(); baseline != nil && rec.Seq() == 0 {
			if err := rec.Record(ctx, journal.KindBaseline, baseline); err != nil {
				return nil, fmt.Errorf("record baseline: %w", err)
			}
		}
		j.Register(rec)
		s.recorder = rec
	}
	return s, nil
}

// ID returns the game id.
func (s *Session) ID() string { return s.id }

// Registry returns the command registry used for history and transport.
func (s *Session) Registry() *command.Registry { return s.registry }

// Err returns the error that terminated the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start installs the rule program. It does not run it.
func (s *Session) Start(entry sequencer.Step) error {
	if entry == nil {
		return ErrEntryRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if s.seq != nil {
		return ErrAlreadyStarted
	}
	s.seq = sequencer.New(s.journal, entry, sequencer.WithLimits(s.limits))
	return nil
}

// State reports the program status and the pending choice, if any.
func (s *Session) State() (sequencer.Status, decision.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return 0, nil, err
	}
	if s.seq == nil {
		return 0, nil, ErrNotStarted
	}
	return s.seq.Status(), s.seq.Pending(), nil
}

// Result returns the program result once completed.
func (s *Session) Result() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == nil {
		return nil
	}
	return s.seq.Result()
}

// Advance runs the program until it completes or suspends on a choice.
func (s *Session) Advance(ctx context.Context) (sequencer.Status, decision.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(ctx)
}

// Answer resolves the pending choice on behalf of player and advances.
func (s *Session) Answer(ctx context.Context, player object.ID, answer any) (sequencer.Status, decision.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return 0, nil, err
	}
	if s.seq == nil {
		return 0, nil, ErrNotStarted
	}
	if pending := s.seq.Pending(); pending != nil && pending.Player() != player {
		return 0, nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "choice belongs to another player", map[string]string{
			"expected": fmt.Sprint(pending.Player()),
			"actual":   fmt.Sprint(player),
		})
	}
	if err := s.seq.Resume(answer); err != nil {
		return 0, nil, s.fail(err)
	}
	return s.advance(ctx)
}

// Play drives the game to completion, asking dm for every choice. dm sees a
// private fork of the game and may explore it freely.
func (s *Session) Play(ctx context.Context, dm decision.DecisionMaker) (any, error) {
	if dm == nil {
		dm = decision.Default{}
	}
	status, pending, err := s.Advance(ctx)
	for err == nil && status != sequencer.StatusCompleted {
		view, ferr := s.fork()
		if ferr != nil {
			return nil, ferr
		}
		answer, derr := dm.Decide(ctx, view, pending)
		if derr != nil {
			return nil, derr
		}
		status, pending, err = s.Answer(ctx, pending.Player(), answer)
	}
	if err != nil {
		return nil, err
	}
	return s.Result(), nil
}

// Seat routes player's choices to maker until release is called.
func (s *Session) Seat(player object.ID, maker decision.DecisionMaker) (release func()) {
	inner := s.seats.Seat(player, maker)
	s.seatsChanged()
	return func() {
		inner()
		s.seatsChanged()
	}
}

// Seated reports whether player has a decision maker.
func (s *Session) Seated(player object.ID) bool {
	return s.seats.Seated(player)
}

// WaitSeated blocks until every player is seated or ctx ends.
func (s *Session) WaitSeated(ctx context.Context, players ...object.ID) error {
	for {
		s.seatMu.Lock()
		changed := s.seatChanged
		s.seatMu.Unlock()
		ready := true
		for _, player := range players {
			if !s.seats.Seated(player) {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Run plays the game with the seated decision makers.
func (s *Session) Run(ctx context.Context) (any, error) {
	return s.Play(ctx, s.seats)
}

// Join attaches an observer. Its sink first receives the bootstrap packet and
// then every committed batch it may see.
func (s *Session) Join(observer replication.Observer, sink replication.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	_, err := s.hub.Attach(observer, sink)
	return err
}

// Leave detaches an observer.
func (s *Session) Leave(observer replication.Observer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.Detach(observer)
}

// Observers lists attached observers.
func (s *Session) Observers() []replication.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.Observers()
}

// Snapshot returns the bootstrap packet observer would receive on joining.
func (s *Session) Snapshot(observer replication.Observer) (replication.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return replication.Packet{}, err
	}
	var packet replication.Packet
	capture := replication.SinkFunc(func(p replication.Packet) error {
		packet = p
		return nil
	})
	if err := replication.NewSynchronizer(s.journal, observer, s.visibility, capture).Bootstrap(); err != nil {
		return replication.Packet{}, err
	}
	return packet, nil
}

// VisibilityChanged forwards a visibility notification and flushes it.
func (s *Session) VisibilityChanged(id object.ID, observer replication.Observer, nowVisible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.VisibilityChanged(id, observer, nowVisible)
	s.hub.Flush()
}

// Changed returns a channel closed at the next state change. Transports use
// it to wake up after Advance or Answer.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Inspect runs fn with the live state under the session lock. fn must not
// retain m.
func (s *Session) Inspect(fn func(m *object.Manager)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.manager)
}

func (s *Session) advance(ctx context.Context) (sequencer.Status, decision.Choice, error) {
	if err := s.usable(); err != nil {
		return 0, nil, err
	}
	if s.seq == nil {
		return 0, nil, ErrNotStarted
	}
	defer s.notify()
	err := s.seq.Run(ctx, nil)
	s.hub.Flush()
	if err == nil && s.recorder != nil {
		if rerr := s.recorder.Err(); rerr != nil {
			err = apperrors.Wrap(apperrors.CodeSessionTerminated, "history recording failed", rerr)
		}
	}
	if err != nil {
		return s.seq.Status(), s.seq.Pending(), s.fail(err)
	}
	return s.seq.Status(), s.seq.Pending(), nil
}

func (s *Session) fork() (*sequencer.Sequencer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return nil, err
	}
	if s.seq == nil {
		return nil, ErrNotStarted
	}
	return s.seq.Fork(journal.New(s.manager.Clone())), nil
}

func (s *Session) seatsChanged() {
	s.seatMu.Lock()
	defer s.seatMu.Unlock()
	close(s.seatChanged)
	s.seatChanged = make(chan struct{})
}

func (s *Session) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// fail terminates the session on fatal errors and passes others through.
func (s *Session) fail(err error) error {
	if apperrors.IsFatal(err) || apperrors.IsCode(err, apperrors.CodeSessionTerminated) || s.journal.Err() != nil {
		s.err = err
		log.Printf("game %s terminated: %v", s.id, err)
		for _, observer := range s.hub.Observers() {
			s.hub.Detach(observer)
		}
	}
	return err
}

func (s *Session) usable() error {
	if s.err != nil {
		return apperrors.Wrap(apperrors.CodeSessionTerminated, "game session terminated", s.err)
	}
	return nil
}
