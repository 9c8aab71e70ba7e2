package duel

import (
	"slices"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
)

// Step kinds.
const (
	StepTurn   sequencer.StepKind = "duel.turn"
	StepPlay   sequencer.StepKind = "duel.play"
	StepTarget sequencer.StepKind = "duel.target"
	StepDamage sequencer.StepKind = "duel.damage"
)

// Start returns the entry step for a game lasting at most maxTurns turns.
// Zero means no limit.
func Start(maxTurns int) sequencer.Step {
	return &TurnStep{Turn: 1, MaxTurns: maxTurns}
}

// NewStepRegistry returns a registry able to encode every duel step.
func NewStepRegistry() (*sequencer.StepRegistry, error) {
	r := sequencer.NewStepRegistry()
	factories := map[sequencer.StepKind]func() sequencer.KindedStep{
		StepTurn:   func() sequencer.KindedStep { return &TurnStep{} },
		StepPlay:   func() sequencer.KindedStep { return &PlayStep{} },
		StepTarget: func() sequencer.KindedStep { return &TargetStep{} },
		StepDamage: func() sequencer.KindedStep { return &DamageStep{} },
	}
	for _, kind := range []sequencer.StepKind{StepTurn, StepPlay, StepTarget, StepDamage} {
		if err := r.Register(kind, factories[kind]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// TurnStep starts a turn and queues the next one.
type TurnStep struct {
	Turn     int `json:"turn"`
	MaxTurns int `json:"max_turns"`
}

// StepKind implements sequencer.KindedStep.
func (s *TurnStep) StepKind() sequencer.StepKind { return StepTurn }

// Execute implements sequencer.Step.
func (s *TurnStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	m := c.Manager()
	if s.MaxTurns > 0 && s.Turn > s.MaxTurns {
		c.Halt(Result{Turns: s.Turn - 1})
		return nil, nil
	}
	active := PlayerOne
	if s.Turn%2 == 0 {
		active = PlayerTwo
	}
	g, err := c.Journal().BeginGroup()
	if err != nil {
		return nil, err
	}
	if err := c.Execute(command.SetValueOn(m, GameID, PropTurn, s.Turn)); err != nil {
		return nil, err
	}
	if err := c.Execute(command.SetValueOn(m, GameID, PropActive, active)); err != nil {
		return nil, err
	}
	if err := g.End(); err != nil {
		return nil, err
	}
	c.ScheduleAfter(&TurnStep{Turn: s.Turn + 1, MaxTurns: s.MaxTurns})
	return &PlayStep{Player: active}, nil
}

// PlayStep asks the active player for a card to play or Pass.
type PlayStep struct {
	Player object.ID `json:"player"`
}

// StepKind implements sequencer.KindedStep.
func (s *PlayStep) StepKind() sequencer.StepKind { return StepPlay }

// Execute implements sequencer.Step.
func (s *PlayStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	answer, ok := c.Answer()
	if !ok {
		return c.Ask(decision.Base{ChoiceKind: ChoicePlay, ForPlayer: s.Player, DefaultAnswer: Pass})
	}
	card, valid := answer.(object.ID)
	if !valid {
		return s, nil
	}
	if card == Pass {
		return nil, nil
	}
	if !slices.Contains(Hand(c.Manager(), s.Player), card) {
		return s, nil
	}
	return &TargetStep{Player: s.Player, Card: card}, nil
}

// TargetStep asks where the played card goes, then moves it to the
// graveyard and deals its damage.
type TargetStep struct {
	Player object.ID `json:"player"`
	Card   object.ID `json:"card"`
}

// StepKind implements sequencer.KindedStep.
func (s *TargetStep) StepKind() sequencer.StepKind { return StepTarget }

// Execute implements sequencer.Step.
func (s *TargetStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	answer, ok := c.Answer()
	if !ok {
		return c.Ask(decision.Base{ChoiceKind: ChoiceTarget, ForPlayer: s.Player, DefaultAnswer: Opponent(s.Player)})
	}
	target, valid := answer.(object.ID)
	if !valid || (target != PlayerOne && target != PlayerTwo) {
		return s, nil
	}
	m := c.Manager()
	if err := c.Execute(command.SetValueOn(m, s.Card, PropZone, ZoneGraveyard)); err != nil {
		return nil, err
	}
	return &DamageStep{Target: target, Amount: m.Int(s.Card, PropPower)}, nil
}

// DamageStep lowers a player's life and ends the game when it reaches zero.
type DamageStep struct {
	Target object.ID `json:"target"`
	Amount int       `json:"amount"`
}

// StepKind implements sequencer.KindedStep.
func (s *DamageStep) StepKind() sequencer.StepKind { return StepDamage }

// Execute implements sequencer.Step.
func (s *DamageStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	m := c.Manager()
	life := m.Int(s.Target, PropLife) - s.Amount
	if err := c.Execute(command.SetValueOn(m, s.Target, PropLife, life)); err != nil {
		return nil, err
	}
	if life > 0 {
		return nil, nil
	}
	winner := Opponent(s.Target)
	if err := c.Execute(command.SetValueOn(m, GameID, PropWinner, winner)); err != nil {
		return nil, err
	}
	c.Halt(Result{Winner: winner, Turns: m.Int(GameID, PropTurn)})
	return nil, nil
}
