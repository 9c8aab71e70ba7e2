package sequencer

import (
	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Step is one tick of the interpreter. It returns the step to continue with,
// or nil to fall through to whatever is below it on the stack.
//
// A step that needs a decision returns c.Ask(choice). When resumed it is
// invoked again with c.Answer set; returning itself rejects the answer and
// asks again.
type Step interface {
	Execute(c *Context) (Step, error)
}

// StepFunc adapts a function to Step. Function steps cannot be encoded.
type StepFunc func(c *Context) (Step, error)

// Execute implements Step.
func (f StepFunc) Execute(c *Context) (Step, error) { return f(c) }

// Context is handed to a step for one invocation.
type Context struct {
	seq       *Sequencer
	answer    any
	answered  bool
	choice    decision.Choice
	scheduled []Step
	after     []Step
	halted    bool
}

// Journal returns the journal every mutation must go through.
func (c *Context) Journal() *journal.Journal { return c.seq.journal }

// Manager returns the state replica. Read it freely; change it only through
// Execute.
func (c *Context) Manager() *object.Manager { return c.seq.journal.Manager() }

// Execute records cmd in the journal.
func (c *Context) Execute(cmd command.Command) error {
	return c.seq.journal.Execute(cmd)
}

// Answer returns the answer to the choice this step asked, when the step is
// being resumed.
func (c *Context) Answer() (any, bool) {
	return c.answer, c.answered
}

// Ask suspends the sequencer on choice with the current step left on top.
// Steps return its result directly. The asking invocation must not also
// Schedule, ScheduleAfter or Halt: the step runs again once answered, so
// those calls belong there. Mixing them fails the run with
// SEQUENCER_ASK_CONFLICT.
func (c *Context) Ask(choice decision.Choice) (Step, error) {
	if choice == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "choice is required")
	}
	c.choice = choice
	return nil, nil
}

// Schedule runs steps before the returned continuation. The last scheduled
// step runs first.
func (c *Context) Schedule(steps ...Step) {
	for _, step := range steps {
		if step != nil {
			c.scheduled = append(c.scheduled, step)
		}
	}
}

// ScheduleAfter runs steps after the returned continuation, in the order
// given.
func (c *Context) ScheduleAfter(steps ...Step) {
	for _, step := range steps {
		if step != nil {
			c.after = append(c.after, step)
		}
	}
}

// Complete records the run's result without stopping it.
func (c *Context) Complete(result any) {
	c.seq.result = result
}

// Halt records the result and discards every remaining step.
func (c *Context) Halt(result any) {
	c.seq.result = result
	c.halted = true
}
