package object

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// ID identifies an object within one manager.
type ID int

// None is the zero ID; no object ever receives it.
const None ID = 0

// Property names one value slot on an object.
type Property string

// Object is one game entity. Property values must be treated as immutable.
type Object struct {
	ID    ID
	Kind  string
	Props map[Property]any
}

// Clone returns a copy whose property map can be changed independently.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	return &Object{ID: o.ID, Kind: o.Kind, Props: maps.Clone(o.Props)}
}

// Value returns a property value.
func (o *Object) Value(prop Property) (any, bool) {
	if o == nil {
		return nil, false
	}
	value, ok := o.Props[prop]
	return value, ok
}

// Manager owns every object of one game replica.
type Manager struct {
	objects map[ID]*Object
	next    ID
}

// NewManager creates an empty manager whose first allocated ID is 1.
func NewManager() *Manager {
	return &Manager{objects: make(map[ID]*Object), next: 1}
}

// NextID returns the ID the next created object will receive.
func (m *Manager) NextID() ID {
	return m.next
}

// SetNextID rewinds or advances ID allocation. Commands use it to restore the
// allocator on revert.
func (m *Manager) SetNextID(next ID) {
	m.next = next
}

// Len returns the number of live objects.
func (m *Manager) Len() int {
	return len(m.objects)
}

// Get returns the live object with the given ID.
func (m *Manager) Get(id ID) (*Object, bool) {
	obj, ok := m.objects[id]
	return obj, ok
}

// Value returns a property of a live object.
func (m *Manager) Value(id ID, prop Property) (any, bool) {
	obj, ok := m.objects[id]
	if !ok {
		return nil, false
	}
	return obj.Value(prop)
}

// Int returns an integer property or zero.
func (m *Manager) Int(id ID, prop Property) int {
	value, _ := m.Value(id, prop)
	n, _ := value.(int)
	return n
}

// String returns a string property or "".
func (m *Manager) String(id ID, prop Property) string {
	value, _ := m.Value(id, prop)
	s, _ := value.(string)
	return s
}

// IDs returns the live object IDs in ascending order.
func (m *Manager) IDs() []ID {
	return slices.Sorted(maps.Keys(m.objects))
}

// Find returns the IDs of objects whose kind matches, ascending.
func (m *Manager) Find(kind string) []ID {
	var ids []ID
	for _, id := range m.IDs() {
		if m.objects[id].Kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

// Insert adds obj, replacing any object with the same ID, and advances the
// allocator past it.
func (m *Manager) Insert(obj *Object) {
	if obj == nil || obj.ID == None {
		panic("object: insert requires an object with an id")
	}
	m.objects[obj.ID] = obj.Clone()
	if obj.ID >= m.next {
		m.next = obj.ID + 1
	}
}

// Remove deletes an object and returns it.
func (m *Manager) Remove(id ID) (*Object, bool) {
	obj, ok := m.objects[id]
	if ok {
		delete(m.objects, id)
	}
	return obj, ok
}

// SetValue stores a property. It panics when the object does not exist since
// a command targeting a missing object is a rules defect.
func (m *Manager) SetValue(id ID, prop Property, value any) {
	obj, ok := m.objects[id]
	if !ok {
		panic(fmt.Sprintf("object: set %s on missing object %d", prop, id))
	}
	if obj.Props == nil {
		obj.Props = make(map[Property]any)
	}
	obj.Props[prop] = value
}

// ClearValue removes a property.
func (m *Manager) ClearValue(id ID, prop Property) {
	if obj, ok := m.objects[id]; ok {
		delete(obj.Props, prop)
	}
}

// Clone returns an independent replica. Search workers each own one.
func (m *Manager) Clone() *Manager {
	clone := &Manager{objects: make(map[ID]*Object, len(m.objects)), next: m.next}
	for id, obj := range m.objects {
		clone.objects[id] = obj.Clone()
	}
	return clone
}

// Equal reports structural equality, including the ID allocator.
func (m *Manager) Equal(other *Manager) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.next != other.next || len(m.objects) != len(other.objects) {
		return false
	}
	for id, obj := range m.objects {
		peer, ok := other.objects[id]
		if !ok || obj.Kind != peer.Kind || len(obj.Props) != len(peer.Props) {
			return false
		}
		for prop, value := range obj.Props {
			peerValue, ok := peer.Props[prop]
			if !ok || !reflect.DeepEqual(value, peerValue) {
				return false
			}
		}
	}
	return true
}

// Diff describes the first difference found between two managers, or "" when
// they are equal. Tests use it for readable failures.
func (m *Manager) Diff(other *Manager) string {
	if m.Equal(other) {
		return ""
	}
	if m.next != other.next {
		return fmt.Sprintf("next id %d != %d", m.next, other.next)
	}
	for _, id := range m.IDs() {
		obj := m.objects[id]
		peer, ok := other.objects[id]
		if !ok {
			return fmt.Sprintf("object %d missing from other", id)
		}
		if obj.Kind != peer.Kind {
			return fmt.Sprintf("object %d kind %q != %q", id, obj.Kind, peer.Kind)
		}
		if !reflect.DeepEqual(obj.Props, peer.Props) {
			return fmt.Sprintf("object %d props %v != %v", id, obj.Props, peer.Props)
		}
	}
	for _, id := range other.IDs() {
		if _, ok := m.objects[id]; !ok {
			return fmt.Sprintf("object %d missing from receiver", id)
		}
	}
	return "managers differ"
}
