package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
)

// StepKind names an encodable step type.
type StepKind string

// KindedStep is a step that can be encoded. Its exported fields are encoded
// as JSON.
type KindedStep interface {
	Step
	StepKind() StepKind
}

// StepEnvelope is the encoded form of one step.
type StepEnvelope struct {
	Kind    StepKind        `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Snapshot is the encoded interpreter: the step stack from bottom to top. A
// pending choice is not stored; the top step asks it again on the next Run.
type Snapshot struct {
	Completed bool            `json:"completed,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Steps     []StepEnvelope  `json:"steps"`
}

// StepRegistry maps step kinds to constructors for decoding.
type StepRegistry struct {
	factories map[StepKind]func() KindedStep
}

// NewStepRegistry creates an empty registry.
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{factories: make(map[StepKind]func() KindedStep)}
}

// Register adds a step kind. factory must return a pointer that JSON can
// decode into.
func (r *StepRegistry) Register(kind StepKind, factory func() KindedStep) error {
	if r == nil {
		return errors.New("step registry is required")
	}
	kind = StepKind(strings.TrimSpace(string(kind)))
	if kind == "" {
		return errors.New("step kind is required")
	}
	if factory == nil {
		return fmt.Errorf("step %s requires a factory", kind)
	}
	if r.factories == nil {
		r.factories = make(map[StepKind]func() KindedStep)
	}
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("step kind already registered: %s", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Snapshot encodes the interpreter. It refuses while the sequencer is running
// or holds an answer that has not been consumed.
func (r *StepRegistry) Snapshot(s *Sequencer) (Snapshot, error) {
	if s.running {
		return Snapshot{}, apperrors.New(apperrors.CodeSequencerReentered, "snapshot while running")
	}
	if s.answered {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidArgument, "snapshot with an unconsumed answer")
	}
	snap := Snapshot{
		Completed: s.status == StatusCompleted,
		Steps:     make([]StepEnvelope, 0, len(s.stack)),
	}
	if s.result != nil {
		raw, err := json.Marshal(s.result)
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode result: %w", err)
		}
		snap.Result = raw
	}
	for _, step := range s.stack {
		kinded, ok := step.(KindedStep)
		if !ok {
			return Snapshot{}, apperrors.WithMetadata(apperrors.CodeSequencerUnknownStep, "step cannot be encoded", map[string]string{
				"kind": fmt.Sprintf("%T", step),
			})
		}
		if _, ok := r.factories[kinded.StepKind()]; !ok {
			return Snapshot{}, apperrors.WithMetadata(apperrors.CodeSequencerUnknownStep, "step kind is not registered", map[string]string{
				"kind": string(kinded.StepKind()),
			})
		}
		payload, err := json.Marshal(kinded)
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode step %s: %w", kinded.StepKind(), err)
		}
		snap.Steps = append(snap.Steps, StepEnvelope{Kind: kinded.StepKind(), Payload: payload})
	}
	return snap, nil
}

// Restore rebuilds a sequencer over j from a snapshot. A restored result
// decodes into its JSON form.
func (r *StepRegistry) Restore(snap Snapshot, j *journal.Journal, opts ...Option) (*Sequencer, error) {
	s := New(j, nil, opts...)
	for _, env := range snap.Steps {
		factory, ok := r.factories[env.Kind]
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeSequencerUnknownStep, "step kind is not registered", map[string]string{
				"kind": string(env.Kind),
			})
		}
		step := factory()
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, step); err != nil {
				return nil, fmt.Errorf("decode step %s: %w", env.Kind, err)
			}
		}
		s.stack = append(s.stack, step)
	}
	if len(snap.Result) > 0 {
		var result any
		if err := json.Unmarshal(snap.Result, &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		s.result = result
	}
	if snap.Completed {
		s.status = StatusCompleted
		s.stack = nil
	}
	return s, nil
}
