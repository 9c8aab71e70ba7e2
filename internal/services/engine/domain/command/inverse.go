package command

import (
	"encoding/json"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// KindInverse identifies an undo of a previously committed command.
const KindInverse Kind = "inverse"

// Inverse applies the revert of Of. Undo publishes it so replicas step back
// along with the authoritative state.
type Inverse struct {
	Of Command
}

// Kind implements Kinded.
func (c *Inverse) Kind() Kind { return KindInverse }

// Execute reverts the wrapped command.
func (c *Inverse) Execute(m *object.Manager) { c.Of.Unexecute(m) }

// Unexecute reapplies the wrapped command.
func (c *Inverse) Unexecute(m *object.Manager) { c.Of.Execute(m) }

// IsEmpty mirrors the wrapped command.
func (c *Inverse) IsEmpty() bool { return c.Of == nil || c.Of.IsEmpty() }

// Synchronize redacts the wrapped command.
func (c *Inverse) Synchronize(f Filter) Command {
	inner := Synchronize(c.Of, f)
	if inner == nil {
		return nil
	}
	return &Inverse{Of: inner}
}

func encodeInverse(r *Registry, cmd Command) (json.RawMessage, error) {
	env, err := r.Encode(cmd.(*Inverse).Of)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func decodeInverse(r *Registry, raw json.RawMessage) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	inner, err := r.Decode(env)
	if err != nil {
		return nil, err
	}
	return &Inverse{Of: inner}, nil
}
