package journal

import "github.com/louisbranch/rulecore/internal/services/engine/domain/command"

// Kind labels a committed batch. KindNone marks a command executed outside
// any scope.
type Kind string

const (
	// KindNone labels a bare top-level command.
	KindNone Kind = ""
	// KindGroup labels a committed group.
	KindGroup Kind = "group"
	// KindUndo labels the inverse published by Undo.
	KindUndo Kind = "undo"
	// KindBaseline labels the state a journal started from when it is
	// recorded.
	KindBaseline Kind = "baseline"
)

// Listener observes committed top-level operations. Each operation arrives as
// BeginTransaction, Synchronize, EndCurrentTransaction.
type Listener interface {
	BeginTransaction(kind Kind)
	Synchronize(cmd command.Command)
	EndCurrentTransaction(rolledBack bool)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	OnBegin       func(kind Kind)
	OnSynchronize func(cmd command.Command)
	OnEnd         func(rolledBack bool)
}

// BeginTransaction implements Listener.
func (f ListenerFuncs) BeginTransaction(kind Kind) {
	if f.OnBegin != nil {
		f.OnBegin(kind)
	}
}

// Synchronize implements Listener.
func (f ListenerFuncs) Synchronize(cmd command.Command) {
	if f.OnSynchronize != nil {
		f.OnSynchronize(cmd)
	}
}

// EndCurrentTransaction implements Listener.
func (f ListenerFuncs) EndCurrentTransaction(rolledBack bool) {
	if f.OnEnd != nil {
		f.OnEnd(rolledBack)
	}
}

// Handle identifies a registered listener.
type Handle uint64

type registration struct {
	handle   Handle
	listener Listener
}
