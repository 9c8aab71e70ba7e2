package sequencer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/platform/otel"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
)

// Status is the interpreter state.
type Status int

const (
	// StatusRunning means steps remain and no choice is pending.
	StatusRunning Status = iota
	// StatusSuspended means a choice awaits an answer.
	StatusSuspended
	// StatusCompleted means the step stack is empty.
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Limits bounds the interpreter.
type Limits struct {
	// MaxRetries is how many rejected answers in a row a choice tolerates
	// before the sequencer answers with the default itself. Zero means
	// unbounded.
	MaxRetries int
}

// Option configures a sequencer.
type Option func(*Sequencer)

// WithLimits sets the interpreter limits.
func WithLimits(limits Limits) Option {
	return func(s *Sequencer) { s.limits = limits }
}

// Sequencer runs one rule program against one journal.
type Sequencer struct {
	journal  *journal.Journal
	stack    []Step
	status   Status
	pending  decision.Choice
	answer   any
	answered bool
	result   any
	retries  int
	limits   Limits
	running  bool
	fault    error
}

// New creates a sequencer with entry on its stack.
func New(j *journal.Journal, entry Step, opts ...Option) *Sequencer {
	s := &Sequencer{journal: j}
	if entry != nil {
		s.stack = append(s.stack, entry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Journal returns the journal steps mutate through.
func (s *Sequencer) Journal() *journal.Journal { return s.journal }

// Manager returns the state replica. It lets the sequencer act as a
// decision.View.
func (s *Sequencer) Manager() *object.Manager { return s.journal.Manager() }

// Status returns the interpreter state.
func (s *Sequencer) Status() Status { return s.status }

// Pending returns the choice awaiting an answer, or nil.
func (s *Sequencer) Pending() decision.Choice {
	if s.status != StatusSuspended {
		return nil
	}
	return s.pending
}

// Result returns the value recorded by Complete or Halt.
func (s *Sequencer) Result() any { return s.result }

// Depth returns the number of steps on the stack.
func (s *Sequencer) Depth() int { return len(s.stack) }

// Retries returns how many answers in a row the pending choice rejected.
func (s *Sequencer) Retries() int { return s.retries }

// Err returns the fatal error that stopped the sequencer, if any.
func (s *Sequencer) Err() error { return s.fault }

// Resume supplies the answer to the pending choice. The answer is consumed by
// the next Run.
func (s *Sequencer) Resume(answer any) error {
	if err := s.check(); err != nil {
		return err
	}
	switch s.status {
	case StatusCompleted:
		return apperrors.New(apperrors.CodeSequencerCompleted, "sequencer already completed")
	case StatusRunning:
		return apperrors.New(apperrors.CodeSequencerNotSuspended, "no choice is pending")
	}
	s.answer, s.answered = answer, true
	s.status = StatusRunning
	s.pending = nil
	return nil
}

// Run interprets steps until the stack empties, a step fails, or a choice is
// pending and dm is nil. With a decision maker, choices are answered inline.
// Cancellation is checked between steps.
func (s *Sequencer) Run(ctx context.Context, dm decision.DecisionMaker) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer().Start(ctx, "sequencer.Run")
	defer span.End()

	err := s.run(ctx, dm)
	span.SetAttributes(
		attribute.String("sequencer.status", s.status.String()),
		attribute.Int("sequencer.depth", len(s.stack)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return err
}

// RunAtomic runs inside one journal transaction of the given kind. On error
// the transaction is rolled back and the step stack restored, so neither the
// state nor the program moved.
func (s *Sequencer) RunAtomic(ctx context.Context, dm decision.DecisionMaker, kind journal.Kind) error {
	if err := s.check(); err != nil {
		return err
	}
	saved := s.save()
	if err := s.journal.BeginTransaction(kind, s); err != nil {
		return err
	}
	runErr := s.Run(ctx, dm)
	if runErr != nil {
		if err := s.journal.EndTransaction(true, s); err != nil {
			return errors.Join(runErr, err)
		}
		s.restore(saved)
		return runErr
	}
	return s.journal.EndTransaction(false, s)
}

// Fork copies the interpreter onto another journal, normally one over a
// cloned replica. Steps are shared since they are immutable.
func (s *Sequencer) Fork(j *journal.Journal) *Sequencer {
	fork := s.save()
	fork.journal = j
	return fork
}

func (s *Sequencer) run(ctx context.Context, dm decision.DecisionMaker) error {
	for {
		if s.status == StatusCompleted {
			return nil
		}
		if len(s.stack) == 0 {
			s.status = StatusCompleted
			s.pending = nil
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.status == StatusSuspended {
			answer, ok, err := s.nextAnswer(ctx, dm)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			s.answer, s.answered = answer, true
			s.status = StatusRunning
			s.pending = nil
		}
		if err := s.tick(); err != nil {
			return err
		}
	}
}

func (s *Sequencer) nextAnswer(ctx context.Context, dm decision.DecisionMaker) (any, bool, error) {
	if limit := s.limits.MaxRetries; limit > 0 && s.retries >= limit {
		if s.retries > limit {
			return nil, false, apperrors.WithMetadata(apperrors.CodeSequencerRetryLimit, "choice rejected its default answer", map[string]string{
				"player": fmt.Sprint(s.pending.Player()),
				"kind":   string(s.pending.Kind()),
			})
		}
		return s.pending.Default(), true, nil
	}
	if dm == nil {
		return nil, false, nil
	}
	answer, err := dm.Decide(ctx, s, s.pending)
	if err != nil {
		return nil, false, fmt.Errorf("decide %s: %w", s.pending.Kind(), err)
	}
	return answer, true, nil
}

func (s *Sequencer) tick() error {
	n := len(s.stack)
	top := s.stack[n-1]
	c := &Context{seq: s, answer: s.answer, answered: s.answered}
	s.answer, s.answered = nil, false

	next, err := top.Execute(c)
	if err != nil {
		if apperrors.IsFatal(err) {
			s.fault = err
		}
		return err
	}
	if c.choice != nil {
		if len(c.scheduled) > 0 || len(c.after) > 0 || c.halted {
			err := apperrors.WithMetadata(apperrors.CodeSequencerAskConflict, "step asked a choice and changed the stack in one invocation", map[string]string{
				"kind":      string(c.choice.Kind()),
				"scheduled": fmt.Sprint(len(c.scheduled) + len(c.after)),
				"halted":    fmt.Sprint(c.halted),
			})
			s.fault = err
			return err
		}
		if c.answered {
			s.retries++
		}
		s.pending = c.choice
		s.status = StatusSuspended
		return nil
	}
	if c.answered {
		if sameStep(next, top) {
			s.retries++
		} else {
			s.retries = 0
		}
	}

	s.stack = s.stack[:n-1]
	if c.halted {
		s.stack = nil
		return nil
	}
	for i := len(c.after) - 1; i >= 0; i-- {
		s.stack = append(s.stack, c.after[i])
	}
	if next != nil {
		s.stack = append(s.stack, next)
	}
	s.stack = append(s.stack, c.scheduled...)
	return nil
}

func (s *Sequencer) check() error {
	if s.fault != nil {
		return s.fault
	}
	if s.running {
		err := apperrors.New(apperrors.CodeSequencerReentered, "sequencer re-entered from one of its own steps")
		s.fault = err
		return err
	}
	return nil
}

func (s *Sequencer) enter() error {
	if err := s.check(); err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *Sequencer) leave() {
	s.running = false
}

func (s *Sequencer) save() *Sequencer {
	return &Sequencer{
		journal:  s.journal,
		stack:    append([]Step(nil), s.stack...),
		status:   s.status,
		pending:  s.pending,
		answer:   s.answer,
		answered: s.answered,
		result:   s.result,
		retries:  s.retries,
		limits:   s.limits,
		fault:    s.fault,
	}
}

func (s *Sequencer) restore(saved *Sequencer) {
	s.stack = saved.stack
	s.status = saved.status
	s.pending = saved.pending
	s.answer = saved.answer
	s.answered = saved.answered
	s.result = saved.result
	s.retries = saved.retries
}

// sameStep reports whether a step returned itself. Only pointer steps can be
// told apart from an equal copy.
func sameStep(a, b Step) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta.Kind() != reflect.Pointer || ta != reflect.TypeOf(b) {
		return false
	}
	return a == b
}
