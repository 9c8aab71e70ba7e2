package command

import (
	"maps"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Filter answers what one observer may see.
type Filter interface {
	// Visible reports whether the observer may know the object exists.
	Visible(id object.ID) bool
	// PropertyVisible reports whether the observer may read one property of a
	// visible object.
	PropertyVisible(id object.ID, prop object.Property) bool
}

// Synchronizable commands know how to redact themselves for one observer.
// Synchronize returns nil when nothing of the command is visible.
type Synchronizable interface {
	Synchronize(f Filter) Command
}

// Public marks commands that carry no observer-specific information.
type Public interface {
	Public() bool
}

// Targeted commands touch exactly one object.
type Targeted interface {
	Target() object.ID
}

// Synchronize redacts cmd for the observer behind f. Commands that are neither
// Synchronizable nor Public are dropped.
func Synchronize(cmd Command, f Filter) Command {
	if cmd == nil {
		return nil
	}
	switch typed := cmd.(type) {
	case Synchronizable:
		out := typed.Synchronize(f)
		if out == nil || out.IsEmpty() {
			return nil
		}
		return out
	case Public:
		if typed.Public() && !cmd.IsEmpty() {
			return cmd
		}
	}
	return nil
}

// Synchronize filters children and drops the composite when none survive.
func (c *Multi) Synchronize(f Filter) Command {
	var kept []Command
	for _, child := range c.Commands {
		if out := Synchronize(child, f); out != nil {
			kept = append(kept, out)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &Multi{Commands: kept}
}

// Synchronize drops changes to hidden objects or hidden properties.
func (c *SetValue) Synchronize(f Filter) Command {
	if !f.Visible(c.Object) || !f.PropertyVisible(c.Object, c.Property) {
		return nil
	}
	return c
}

// Synchronize keeps the creation but strips hidden properties.
func (c *Create) Synchronize(f Filter) Command {
	if !f.Visible(c.Object.ID) {
		return nil
	}
	return &Create{Object: redact(c.Object, f), PreviousNext: c.PreviousNext}
}

// Synchronize keeps the destruction but strips hidden properties.
func (c *Destroy) Synchronize(f Filter) Command {
	if !f.Visible(c.Object.ID) {
		return nil
	}
	return &Destroy{Object: redact(c.Object, f)}
}

func redact(obj *object.Object, f Filter) *object.Object {
	out := &object.Object{ID: obj.ID, Kind: obj.Kind, Props: maps.Clone(obj.Props)}
	for prop := range obj.Props {
		if !f.PropertyVisible(obj.ID, prop) {
			delete(out.Props, prop)
		}
	}
	return out
}
