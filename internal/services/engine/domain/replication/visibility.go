package replication

import "github.com/louisbranch/rulecore/internal/services/engine/domain/object"

// Observer identifies a player seat or spectator.
type Observer string

// Visibility decides whether an observer may know an object.
type Visibility interface {
	IsVisible(obj *object.Object, observer Observer) bool
}

// PropertyVisibility optionally hides individual properties of visible
// objects.
type PropertyVisibility interface {
	IsPropertyVisible(obj *object.Object, prop object.Property, observer Observer) bool
}

// VisibilityFunc adapts a function to Visibility.
type VisibilityFunc func(obj *object.Object, observer Observer) bool

// IsVisible implements Visibility.
func (f VisibilityFunc) IsVisible(obj *object.Object, observer Observer) bool {
	return f(obj, observer)
}

// Everything shows every object to every observer.
var Everything = VisibilityFunc(func(*object.Object, Observer) bool { return true })

// filter evaluates visibility for one observer against one replica.
type filter struct {
	manager    *object.Manager
	visibility Visibility
	observer   Observer
	// known answers for objects missing from the replica.
	known func(id object.ID) bool
	// hidden are objects excluded from this flush.
	hidden map[object.ID]bool
}

func (f filter) Visible(id object.ID) bool {
	if f.hidden[id] {
		return false
	}
	obj, ok := f.manager.Get(id)
	if !ok {
		return f.known != nil && f.known(id)
	}
	return f.visibility.IsVisible(obj, f.observer)
}

func (f filter) PropertyVisible(id object.ID, prop object.Property) bool {
	pv, ok := f.visibility.(PropertyVisibility)
	if !ok {
		return true
	}
	obj, exists := f.manager.Get(id)
	if !exists {
		return true
	}
	return pv.IsPropertyVisible(obj, prop, f.observer)
}
