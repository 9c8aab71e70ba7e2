package search

import (
	"slices"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
)

// The test game: player one attacks player two for 1-3, then player two may
// counter for 0-2 times the attack.
const (
	attacker object.ID = 1
	defender object.ID = 2
)

func newGame(order ...int) (*sequencer.Sequencer, *decision.Enumerators) {
	m := object.NewManager()
	m.Insert(&object.Object{ID: attacker, Kind: "player", Props: map[object.Property]any{"life": 10}})
	m.Insert(&object.Object{ID: defender, Kind: "player", Props: map[object.Property]any{"life": 10}})
	j := journal.New(m)

	if len(order) == 0 {
		order = []int{1, 2, 3}
	}
	enumerators := decision.NewEnumerators()
	_ = enumerators.Register("attack", func(decision.View, decision.Choice) []any {
		out := make([]any, len(order))
		for i, n := range order {
			out[i] = n
		}
		return out
	})
	_ = enumerators.Register("counter", func(decision.View, decision.Choice) []any {
		return []any{0, 1, 2}
	})
	return sequencer.New(j, &attackStep{}), enumerators
}

// lifeDiff scores the life difference from the perspective player's side.
var lifeDiff = ScorerFunc(func(m *object.Manager, perspective object.ID) float64 {
	other := defender
	if perspective == defender {
		other = attacker
	}
	return float64(m.Int(perspective, "life") - m.Int(other, "life"))
})

type attackStep struct{}

func (s *attackStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	answer, ok := c.Answer()
	if !ok {
		return c.Ask(decision.Base{ChoiceKind: "attack", ForPlayer: attacker, DefaultAnswer: 1})
	}
	n, valid := answer.(int)
	if !valid || !slices.Contains([]int{1, 2, 3}, n) {
		return s, nil
	}
	m := c.Manager()
	if err := c.Execute(command.SetValueOn(m, defender, "life", m.Int(defender, "life")-n)); err != nil {
		return nil, err
	}
	if err := c.Execute(command.SetValueOn(m, attacker, "last_attack", n)); err != nil {
		return nil, err
	}
	return &counterStep{}, nil
}

type counterStep struct{}

func (s *counterStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	answer, ok := c.Answer()
	if !ok {
		return c.Ask(decision.Base{ChoiceKind: "counter", ForPlayer: defender, DefaultAnswer: 0})
	}
	n, valid := answer.(int)
	if !valid || n < 0 || n > 2 {
		return s, nil
	}
	m := c.Manager()
	damage := n * m.Int(attacker, "last_attack")
	return nil, c.Execute(command.SetValueOn(m, attacker, "life", m.Int(attacker, "life")-damage))
}
