package decision

import (
	"context"
	"math/rand"
	"sync"

	"github.com/louisbranch/rulecore/internal/random"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Scripted answers from a queue and falls back to defaults once it runs dry.
type Scripted struct {
	mu      sync.Mutex
	answers []any
	asked   []Choice
}

// NewScripted creates a scripted maker that returns answers in order.
func NewScripted(answers ...any) *Scripted {
	return &Scripted{answers: append([]any(nil), answers...)}
}

// Push queues more answers.
func (s *Scripted) Push(answers ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answers...)
}

// Remaining returns the number of queued answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Asked returns every choice the maker has seen.
func (s *Scripted) Asked() []Choice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Choice(nil), s.asked...)
}

// Decide implements DecisionMaker.
func (s *Scripted) Decide(_ context.Context, _ View, choice Choice) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, choice)
	if len(s.answers) == 0 {
		return choice.Default(), nil
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

// Random picks uniformly among enumerated candidates.
type Random struct {
	mu          sync.Mutex
	rng         *rand.Rand
	enumerators *Enumerators
}

// NewRandom creates a random maker. A zero seed draws a fresh one.
func NewRandom(seed int64, enumerators *Enumerators) (*Random, error) {
	rng, err := random.New(seed)
	if err != nil {
		return nil, err
	}
	return &Random{rng: rng, enumerators: enumerators}, nil
}

// Decide implements DecisionMaker. Choices without candidates get their default.
func (r *Random) Decide(_ context.Context, view View, choice Choice) (any, error) {
	candidates, ok := r.enumerators.Enumerate(view, choice)
	if !ok || len(candidates) == 0 {
		return choice.Default(), nil
	}
	r.mu.Lock()
	i := r.rng.Intn(len(candidates))
	r.mu.Unlock()
	return candidates[i], nil
}

// Router sends each choice to the maker seated for its player. Players
// without a seat, such as disconnected ones, get the fallback.
type Router struct {
	mu       sync.RWMutex
	seats    map[object.ID]seat
	serial   uint64
	fallback DecisionMaker
}

type seat struct {
	maker  DecisionMaker
	serial uint64
}

// NewRouter creates a router. A nil fallback answers with defaults.
func NewRouter(fallback DecisionMaker) *Router {
	if fallback == nil {
		fallback = Default{}
	}
	return &Router{seats: make(map[object.ID]seat), fallback: fallback}
}

// Seat assigns maker to player, replacing any previous seat. The returned
// release removes the seat unless another maker has taken it since.
func (r *Router) Seat(player object.ID, maker DecisionMaker) (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serial++
	serial := r.serial
	r.seats[player] = seat{maker: maker, serial: serial}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.seats[player]; ok && current.serial == serial {
			delete(r.seats, player)
		}
	}
}

// Seated reports whether player has a seat.
func (r *Router) Seated(player object.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seats[player]
	return ok
}

// Decide implements DecisionMaker.
func (r *Router) Decide(ctx context.Context, view View, choice Choice) (any, error) {
	r.mu.RLock()
	current, ok := r.seats[choice.Player()]
	r.mu.RUnlock()
	if !ok {
		return r.fallback.Decide(ctx, view, choice)
	}
	return current.maker.Decide(ctx, view, choice)
}
