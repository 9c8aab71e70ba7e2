package decision

import (
	"context"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Kind identifies a choice type, such as "select_target".
type Kind string

// Choice describes one pending decision.
type Choice interface {
	Kind() Kind
	// Player is the player who must answer.
	Player() object.ID
	// Default is the answer used when nobody can or does answer validly.
	Default() any
}

// Base implements Choice for embedding in concrete choice types.
type Base struct {
	ChoiceKind    Kind      `json:"kind"`
	ForPlayer     object.ID `json:"player"`
	DefaultAnswer any       `json:"default"`
}

// Kind implements Choice.
func (b Base) Kind() Kind { return b.ChoiceKind }

// Player implements Choice.
func (b Base) Player() object.ID { return b.ForPlayer }

// Default implements Choice.
func (b Base) Default() any { return b.DefaultAnswer }

// View is the read-only state a decision maker may inspect.
type View interface {
	Manager() *object.Manager
}

// DecisionMaker answers choices. Decide is called synchronously at a
// suspension point; the asking step validates the answer and re-asks when it
// is invalid.
type DecisionMaker interface {
	Decide(ctx context.Context, view View, choice Choice) (any, error)
}

// Func adapts a function to DecisionMaker.
type Func func(ctx context.Context, view View, choice Choice) (any, error)

// Decide implements DecisionMaker.
func (f Func) Decide(ctx context.Context, view View, choice Choice) (any, error) {
	return f(ctx, view, choice)
}

// Default answers every choice with its default.
type Default struct{}

// Decide implements DecisionMaker.
func (Default) Decide(_ context.Context, _ View, choice Choice) (any, error) {
	return choice.Default(), nil
}
