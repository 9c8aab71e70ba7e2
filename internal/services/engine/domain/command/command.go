package command

import (
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// Kind identifies a command type on the wire and in persisted history.
type Kind string

// Command is the smallest reversible state change.
type Command interface {
	// Execute applies the change.
	Execute(m *object.Manager)
	// Unexecute reverts a change previously applied by Execute.
	Unexecute(m *object.Manager)
	// IsEmpty reports whether executing the command changes nothing.
	IsEmpty() bool
}

// Kinded is implemented by commands that can be encoded by a Registry.
type Kinded interface {
	Kind() Kind
}

// KindMulti identifies composite commands.
const KindMulti Kind = "multi"

// Multi applies children in order and reverts them in reverse order.
type Multi struct {
	Commands []Command
}

// NewMulti returns a composite of the non-nil commands.
func NewMulti(commands ...Command) *Multi {
	children := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		if cmd != nil {
			children = append(children, cmd)
		}
	}
	return &Multi{Commands: children}
}

// Kind implements Kinded.
func (c *Multi) Kind() Kind { return KindMulti }

// Execute applies children in order.
func (c *Multi) Execute(m *object.Manager) {
	for _, cmd := range c.Commands {
		cmd.Execute(m)
	}
}

// Unexecute reverts children in reverse order.
func (c *Multi) Unexecute(m *object.Manager) {
	for i := len(c.Commands) - 1; i >= 0; i-- {
		c.Commands[i].Unexecute(m)
	}
}

// IsEmpty reports whether every child is empty.
func (c *Multi) IsEmpty() bool {
	for _, cmd := range c.Commands {
		if !cmd.IsEmpty() {
			return false
		}
	}
	return true
}

// Len returns the number of direct children.
func (c *Multi) Len() int {
	return len(c.Commands)
}

// Flatten returns the leaf commands of cmd in execution order.
func Flatten(cmd Command) []Command {
	multi, ok := cmd.(*Multi)
	if !ok {
		if cmd == nil {
			return nil
		}
		return []Command{cmd}
	}
	var leaves []Command
	for _, child := range multi.Commands {
		leaves = append(leaves, Flatten(child)...)
	}
	return leaves
}
