package sequencer

import (
	"slices"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

const testPlayer object.ID = 1

func newTestJournal() *journal.Journal {
	m := object.NewManager()
	m.Insert(&object.Object{ID: testPlayer, Kind: "player", Props: map[object.Property]any{"life": 20}})
	return journal.New(m)
}

// setStep writes one property and falls through.
type setStep struct {
	Property object.Property `json:"property"`
	Value    int             `json:"value"`
}

func (s *setStep) StepKind() StepKind { return "set" }

func (s *setStep) Execute(c *Context) (Step, error) {
	return nil, c.Execute(command.SetValueOn(c.Manager(), testPlayer, s.Property, s.Value))
}

type pickChoice struct {
	decision.Base
	Options []int `json:"options"`
}

// pickStep asks for one of Options and stores the answer in "picked".
type pickStep struct {
	Options []int `json:"options"`
	Default int   `json:"default"`
}

func (s *pickStep) StepKind() StepKind { return "pick" }

func (s *pickStep) Execute(c *Context) (Step, error) {
	answer, ok := c.Answer()
	if !ok {
		return c.Ask(pickChoice{
			Base:    decision.Base{ChoiceKind: "pick", ForPlayer: testPlayer, DefaultAnswer: s.Default},
			Options: s.Options,
		})
	}
	n, valid := answer.(int)
	if !valid || !slices.Contains(s.Options, n) {
		return s, nil
	}
	return nil, c.Execute(command.SetValueOn(c.Manager(), testPlayer, "picked", n))
}

func testRegistry() *StepRegistry {
	r := NewStepRegistry()
	if err := r.Register("set", func() KindedStep { return &setStep{} }); err != nil {
		panic(err)
	}
	if err := r.Register("pick", func() KindedStep { return &pickStep{} }); err != nil {
		panic(err)
	}
	return r
}

// seqStep runs steps in order.
type seqStep struct {
	steps []Step
}

func (s *seqStep) Execute(c *Context) (Step, error) {
	if len(s.steps) == 0 {
		return nil, nil
	}
	if len(s.steps) > 1 {
		c.ScheduleAfter(&seqStep{steps: s.steps[1:]})
	}
	return s.steps[0], nil
}
