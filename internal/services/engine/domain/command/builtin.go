package command

import (
	"reflect"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Built-in command kinds.
const (
	KindSetValue Kind = "set_value"
	KindCreate   Kind = "create_object"
	KindDestroy  Kind = "destroy_object"
)

// SetValue changes one property of one object.
type SetValue struct {
	Object      object.ID
	Property    object.Property
	Value       any
	Previous    any
	HadPrevious bool
}

// SetValueOn builds a SetValue against the current state of m.
func SetValueOn(m *object.Manager, id object.ID, prop object.Property, value any) *SetValue {
	previous, had := m.Value(id, prop)
	return &SetValue{
		Object:      id,
		Property:    prop,
		Value:       value,
		Previous:    previous,
		HadPrevious: had,
	}
}

// Kind implements Kinded.
func (c *SetValue) Kind() Kind { return KindSetValue }

// Target returns the object the command touches.
func (c *SetValue) Target() object.ID { return c.Object }

// Execute stores the new value.
func (c *SetValue) Execute(m *object.Manager) {
	m.SetValue(c.Object, c.Property, c.Value)
}

// Unexecute restores the previous value, or clears a property that did not
// exist before.
func (c *SetValue) Unexecute(m *object.Manager) {
	if c.HadPrevious {
		m.SetValue(c.Object, c.Property, c.Previous)
		return
	}
	m.ClearValue(c.Object, c.Property)
}

// IsEmpty reports whether the value does not change.
func (c *SetValue) IsEmpty() bool {
	return c.HadPrevious && reflect.DeepEqual(c.Previous, c.Value)
}

// Create adds a new object.
type Create struct {
	Object *object.Object
	// PreviousNext is the allocator position before creation.
	PreviousNext object.ID
}

// CreateOn builds a Create that allocates the next ID of m.
func CreateOn(m *object.Manager, kind string, props map[object.Property]any) *Create {
	obj := &object.Object{ID: m.NextID(), Kind: kind, Props: props}
	return &Create{Object: obj.Clone(), PreviousNext: m.NextID()}
}

// Kind implements Kinded.
func (c *Create) Kind() Kind { return KindCreate }

// Target returns the created object's ID.
func (c *Create) Target() object.ID { return c.Object.ID }

// ID returns the created object's ID.
func (c *Create) ID() object.ID { return c.Object.ID }

// Execute inserts the object.
func (c *Create) Execute(m *object.Manager) {
	m.Insert(c.Object)
}

// Unexecute removes the object and rewinds the allocator.
func (c *Create) Unexecute(m *object.Manager) {
	m.Remove(c.Object.ID)
	m.SetNextID(c.PreviousNext)
}

// IsEmpty is always false.
func (c *Create) IsEmpty() bool { return false }

// Destroy removes an object, remembering it for revert.
type Destroy struct {
	Object *object.Object
}

// DestroyOn builds a Destroy for a live object of m.
func DestroyOn(m *object.Manager, id object.ID) (*Destroy, bool) {
	obj, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return &Destroy{Object: obj.Clone()}, true
}

// Kind implements Kinded.
func (c *Destroy) Kind() Kind { return KindDestroy }

// Target returns the destroyed object's ID.
func (c *Destroy) Target() object.ID { return c.Object.ID }

// Execute removes the object.
func (c *Destroy) Execute(m *object.Manager) {
	m.Remove(c.Object.ID)
}

// Unexecute reinserts the remembered object.
func (c *Destroy) Unexecute(m *object.Manager) {
	m.Insert(c.Object)
}

// IsEmpty is always false.
func (c *Destroy) IsEmpty() bool { return false }

// Seed returns Creates that rebuild every object of m on an empty manager, in
// ID order. Reverting it in full empties the manager again.
func Seed(m *object.Manager) *Multi {
	seed := &Multi{}
	next := object.NewManager().NextID()
	for _, id := range m.IDs() {
		obj, _ := m.Get(id)
		seed.Commands = append(seed.Commands, &Create{Object: obj.Clone(), PreviousNext: next})
		if id >= next {
			next = id + 1
		}
	}
	return seed
}
