package journal

import (
	"fmt"
	"reflect"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

type scope struct {
	kind     Kind
	token    any
	group    *Group
	commands []command.Command
}

// Journal is the command log of one game replica. It is not safe for
// concurrent use; one logical operation mutates a game at a time.
type Journal struct {
	manager   *object.Manager
	baseline  *command.Multi
	log       []command.Command
	scopes    []*scope
	listeners []registration
	handles   Handle
	fault     error
}

// New creates a journal that applies commands to m. Objects already in m
// become the journal's baseline: they are part of the committed state but not
// of the log.
func New(m *object.Manager) *Journal {
	j := &Journal{manager: m}
	if m != nil && m.Len() > 0 {
		j.baseline = command.Seed(m)
	}
	return j
}

// Baseline returns the commands that rebuild the state the journal started
// from, or nil when it started empty.
func (j *Journal) Baseline() *command.Multi {
	return j.baseline
}

// Manager returns the replica the journal mutates.
func (j *Journal) Manager() *object.Manager {
	if j == nil {
		return nil
	}
	return j.manager
}

// Detach disconnects the journal from its replica. Later mutations fail with
// JOURNAL_DETACHED.
func (j *Journal) Detach() {
	j.manager = nil
}

// Err returns the fault that stopped the journal, if any.
func (j *Journal) Err() error {
	return j.fault
}

// Depth returns the number of open transactions and groups.
func (j *Journal) Depth() int {
	return len(j.scopes)
}

// InTransaction reports whether a rollback-capable scope is open.
func (j *Journal) InTransaction() bool {
	for _, s := range j.scopes {
		if s.group == nil {
			return true
		}
	}
	return false
}

// Len returns the number of committed top-level commands.
func (j *Journal) Len() int {
	return len(j.log)
}

// Commands returns the committed top-level commands in order.
func (j *Journal) Commands() []command.Command {
	out := make([]command.Command, len(j.log))
	copy(out, j.log)
	return out
}

// InitialSynchronizationCommand returns one composite that rebuilds the
// committed state on an empty manager: the baseline followed by every
// committed top-level command. Work inside scopes that are still open is
// excluded since it may yet be rolled back.
func (j *Journal) InitialSynchronizationCommand() *command.Multi {
	commands := make([]command.Command, 0, len(j.log)+1)
	if j.baseline != nil {
		commands = append(commands, j.baseline)
	}
	return &command.Multi{Commands: append(commands, j.log...)}
}

// Register adds a listener. Listeners are notified in registration order.
func (j *Journal) Register(l Listener) Handle {
	j.handles++
	j.listeners = append(j.listeners, registration{handle: j.handles, listener: l})
	return j.handles
}

// Unregister removes a listener and reports whether it was registered.
func (j *Journal) Unregister(h Handle) bool {
	for i, reg := range j.listeners {
		if reg.handle == h {
			j.listeners = append(j.listeners[:i:i], j.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Execute applies cmd and records it in the innermost open scope, or commits
// it at top level when no scope is open. Empty commands are ignored.
func (j *Journal) Execute(cmd command.Command) error {
	if err := j.usable(); err != nil {
		return err
	}
	if cmd == nil || cmd.IsEmpty() {
		return nil
	}
	cmd.Execute(j.manager)
	if n := len(j.scopes); n > 0 {
		top := j.scopes[n-1]
		top.commands = append(top.commands, cmd)
		return nil
	}
	j.commit(KindNone, cmd)
	return nil
}

// BeginTransaction opens a rollback-capable scope. Token may be nil; when set
// it must be comparable and EndTransaction must present an equal token.
func (j *Journal) BeginTransaction(kind Kind, token any) error {
	if err := j.usable(); err != nil {
		return err
	}
	if !isComparable(token) {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, "transaction token must be comparable", map[string]string{
			"type": fmt.Sprintf("%T", token),
		})
	}
	j.scopes = append(j.scopes, &scope{kind: kind, token: token})
	return nil
}

// EndTransaction closes the innermost transaction. On commit its commands are
// merged into the parent scope as one composite; on rollback they are
// reverted in reverse order and never reported.
func (j *Journal) EndTransaction(rollback bool, token any) error {
	if err := j.usable(); err != nil {
		return err
	}
	n := len(j.scopes)
	if n == 0 {
		return j.poison(apperrors.New(apperrors.CodeTransactionNotOpen, "end transaction without an open transaction"))
	}
	top := j.scopes[n-1]
	if top.group != nil {
		return j.poison(apperrors.New(apperrors.CodeScopeOutOfOrder, "end transaction while a group is still open"))
	}
	if !isComparable(token) || top.token != token {
		return j.poison(apperrors.WithMetadata(apperrors.CodeTransactionTokenMismatch, "transaction token mismatch", map[string]string{
			"expected": fmt.Sprint(top.token),
			"actual":   fmt.Sprint(token),
		}))
	}
	j.scopes = j.scopes[:n-1]
	if rollback {
		for i := len(top.commands) - 1; i >= 0; i-- {
			top.commands[i].Unexecute(j.manager)
		}
		return nil
	}
	j.merge(top)
	return nil
}

// Undo reverts the last committed top-level command and publishes its
// inverse. It refuses while any scope is open.
func (j *Journal) Undo() (command.Command, error) {
	if err := j.usable(); err != nil {
		return nil, err
	}
	if len(j.scopes) > 0 {
		return nil, apperrors.New(apperrors.CodeJournalScopeOpen, "undo while a scope is open")
	}
	n := len(j.log)
	if n == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "nothing to undo")
	}
	last := j.log[n-1]
	j.log = j.log[:n-1]
	last.Unexecute(j.manager)
	j.notify(KindUndo, &command.Inverse{Of: last})
	return last, nil
}

func (j *Journal) merge(s *scope) {
	if len(s.commands) == 0 {
		return
	}
	composite := &command.Multi{Commands: s.commands}
	if n := len(j.scopes); n > 0 {
		parent := j.scopes[n-1]
		parent.commands = append(parent.commands, composite)
		return
	}
	j.commit(s.kind, composite)
}

func (j *Journal) commit(kind Kind, cmd command.Command) {
	j.log = append(j.log, cmd)
	j.notify(kind, cmd)
}

func (j *Journal) notify(kind Kind, cmd command.Command) {
	listeners := make([]registration, len(j.listeners))
	copy(listeners, j.listeners)
	for _, reg := range listeners {
		reg.listener.BeginTransaction(kind)
		reg.listener.Synchronize(cmd)
		reg.listener.EndCurrentTransaction(false)
	}
}

func (j *Journal) usable() error {
	if j == nil {
		return apperrors.New(apperrors.CodeJournalDetached, "no journal attached")
	}
	if j.fault != nil {
		return apperrors.Wrap(apperrors.CodeJournalFaulted, "journal is faulted", j.fault)
	}
	if j.manager == nil {
		return j.poison(apperrors.New(apperrors.CodeJournalDetached, "journal is detached from its state"))
	}
	return nil
}

func (j *Journal) poison(err error) error {
	j.fault = err
	return err
}

func isComparable(token any) bool {
	return token == nil || reflect.TypeOf(token).Comparable()
}
