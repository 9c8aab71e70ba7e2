package command

import (
	"encoding/json"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Synthetic kinds sent when an object enters or leaves an observer's view.
const (
	KindReveal  Kind = "reveal"
	KindConceal Kind = "conceal"
)

// Reveal replaces an observer's copy of an object with its current visible
// form. Replication sends it when an object becomes visible. It only ever runs
// on observer replicas, which is why Unexecute simply forgets the object.
type Reveal struct {
	Object *object.Object
}

// RevealOf builds a Reveal of obj redacted through f.
func RevealOf(obj *object.Object, f Filter) *Reveal {
	return &Reveal{Object: redact(obj, f)}
}

// Kind implements Kinded.
func (c *Reveal) Kind() Kind { return KindReveal }

// Target returns the revealed object's ID.
func (c *Reveal) Target() object.ID { return c.Object.ID }

// Execute inserts or replaces the object.
func (c *Reveal) Execute(m *object.Manager) { m.Insert(c.Object) }

// Unexecute forgets the object.
func (c *Reveal) Unexecute(m *object.Manager) { m.Remove(c.Object.ID) }

// IsEmpty is always false.
func (c *Reveal) IsEmpty() bool { return false }

// Public reports that a Reveal is already redacted.
func (c *Reveal) Public() bool { return true }

// Conceal removes an object from an observer's replica when it stops being
// visible. Like Reveal it only runs on observer replicas; the observer may no
// longer know the object, so Unexecute has nothing to restore.
type Conceal struct {
	Object object.ID
}

// Kind implements Kinded.
func (c *Conceal) Kind() Kind { return KindConceal }

// Target returns the concealed object's ID.
func (c *Conceal) Target() object.ID { return c.Object }

// Execute forgets the object.
func (c *Conceal) Execute(m *object.Manager) { m.Remove(c.Object) }

// Unexecute does nothing.
func (c *Conceal) Unexecute(*object.Manager) {}

// IsEmpty is always false.
func (c *Conceal) IsEmpty() bool { return false }

// Public reports that a Conceal carries only the ID.
func (c *Conceal) Public() bool { return true }

type concealPayload struct {
	Object object.ID `json:"object"`
}

func encodeConceal(_ *Registry, cmd Command) (json.RawMessage, error) {
	return json.Marshal(concealPayload{Object: cmd.(*Conceal).Object})
}

func decodeConceal(_ *Registry, raw json.RawMessage) (Command, error) {
	var payload concealPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &Conceal{Object: payload.Object}, nil
}

func encodeReveal(_ *Registry, cmd Command) (json.RawMessage, error) {
	obj, err := encodeObject(cmd.(*Reveal).Object)
	if err != nil {
		return nil, err
	}
	return json.Marshal(destroyPayload{Object: obj})
}

func decodeReveal(_ *Registry, raw json.RawMessage) (Command, error) {
	var payload destroyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	obj, err := decodeObject(payload.Object)
	if err != nil {
		return nil, err
	}
	return &Reveal{Object: obj}, nil
}
