package journal

import (
	"testing"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// traceCommand records applies and reverts into a shared trace.
type traceCommand struct {
	name  string
	trace *[]string
}

func (c *traceCommand) Execute(*object.Manager)   { *c.trace = append(*c.trace, "+"+c.name) }
func (c *traceCommand) Unexecute(*object.Manager) { *c.trace = append(*c.trace, "-"+c.name) }
func (c *traceCommand) IsEmpty() bool             { return false }

type recordingListener struct {
	events []string
	cmds   []command.Command
}

func (l *recordingListener) BeginTransaction(kind Kind) {
	l.events = append(l.events, "begin:"+string(kind))
}

func (l *recordingListener) Synchronize(cmd command.Command) {
	l.events = append(l.events, "sync")
	l.cmds = append(l.cmds, cmd)
}

func (l *recordingListener) EndCurrentTransaction(rolledBack bool) {
	if rolledBack {
		l.events = append(l.events, "end:rollback")
		return
	}
	l.events = append(l.events, "end")
}

func newTestJournal() (*Journal, *object.Manager) {
	m := object.NewManager()
	m.Insert(&object.Object{ID: 1, Kind: "player", Props: map[object.Property]any{"life": 20}})
	return New(m), m
}

func setLife(t *testing.T, j *Journal, life int) command.Command {
	t.Helper()
	cmd := command.SetValueOn(j.Manager(), 1, "life", life)
	if err := j.Execute(cmd); err != nil {
		t.Fatalf("execute: %v", err)
	}
	return cmd
}

func TestExecuteEmptyCommandIsIgnored(t *testing.T) {
	j, m := newTestJournal()
	l := &recordingListener{}
	j.Register(l)

	if err := j.Execute(command.SetValueOn(m, 1, "life", 20)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := j.Execute(nil); err != nil {
		t.Fatalf("execute nil: %v", err)
	}
	if j.Len() != 0 {
		t.Fatalf("log length = %d, want 0", j.Len())
	}
	if len(l.events) != 0 {
		t.Fatalf("events = %v, want none", l.events)
	}
}

func TestTopLevelExecuteNotifiesAroundEachCommand(t *testing.T) {
	j, _ := newTestJournal()
	l := &recordingListener{}
	j.Register(l)

	setLife(t, j, 10)
	setLife(t, j, 5)

	want := []string{"begin:", "sync", "end", "begin:", "sync", "end"}
	if len(l.events) != len(want) {
		t.Fatalf("events = %v, want %v", l.events, want)
	}
	for i := range want {
		if l.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", l.events, want)
		}
	}
}

func TestRollbackRestoresStateAtAnyDepth(t *testing.T) {
	for depth := 1; depth <= 4; depth++ {
		j, m := newTestJournal()
		before := m.Clone()

		if err := j.BeginTransaction("outer", nil); err != nil {
			t.Fatalf("begin: %v", err)
		}
		for level := 1; level < depth; level++ {
			setLife(t, j, level)
			create := command.CreateOn(m, "token", map[object.Property]any{"level": level})
			if err := j.Execute(create); err != nil {
				t.Fatalf("execute: %v", err)
			}
			if err := j.BeginTransaction("inner", level); err != nil {
				t.Fatalf("begin: %v", err)
			}
		}
		setLife(t, j, 99)
		for level := depth - 1; level >= 1; level-- {
			if err := j.EndTransaction(false, level); err != nil {
				t.Fatalf("commit level %d: %v", level, err)
			}
		}
		if err := j.EndTransaction(true, nil); err != nil {
			t.Fatalf("rollback: %v", err)
		}
		if !m.Equal(before) {
			t.Fatalf("depth %d: state not restored: %s", depth, m.Diff(before))
		}
		if j.Depth() != 0 {
			t.Fatalf("depth = %d, want 0", j.Depth())
		}
	}
}

func TestEndTransactionTokenMismatchIsFatal(t *testing.T) {
	j, _ := newTestJournal()
	if err := j.BeginTransaction("search", "a"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	err := j.EndTransaction(true, "b")
	if !apperrors.IsCode(err, apperrors.CodeTransactionTokenMismatch) {
		t.Fatalf("expected token mismatch, got %v", err)
	}
	if !apperrors.IsFatal(err) {
		t.Fatal("expected fatal error")
	}
	err = j.Execute(command.SetValueOn(j.Manager(), 1, "life", 3))
	if !apperrors.IsCode(err, apperrors.CodeJournalFaulted) {
		t.Fatalf("expected faulted journal, got %v", err)
	}
	if !apperrors.IsCode(j.Err(), apperrors.CodeTransactionTokenMismatch) {
		t.Fatalf("err = %v", j.Err())
	}
}

func TestEndTransactionMatchingTokens(t *testing.T) {
	tests := []struct {
		name  string
		token any
	}{
		{name: "both absent", token: nil},
		{name: "string", token: "search"},
		{name: "int", token: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, _ := newTestJournal()
			if err := j.BeginTransaction("k", tt.token); err != nil {
				t.Fatalf("begin: %v", err)
			}
			if err := j.EndTransaction(false, tt.token); err != nil {
				t.Fatalf("end: %v", err)
			}
			if j.Err() != nil {
				t.Fatalf("unexpected fault: %v", j.Err())
			}
		})
	}
}

func TestEndTransactionWithoutBeginIsFatal(t *testing.T) {
	j, _ := newTestJournal()
	err := j.EndTransaction(false, nil)
	if !apperrors.IsCode(err, apperrors.CodeTransactionNotOpen) {
		t.Fatalf("expected not open, got %v", err)
	}
	if j.Err() == nil {
		t.Fatal("expected journal to be faulted")
	}
}

func TestDetachedJournalIsFatal(t *testing.T) {
	j, m := newTestJournal()
	j.Detach()
	err := j.Execute(command.SetValueOn(m, 1, "life", 1))
	if !apperrors.IsCode(err, apperrors.CodeJournalDetached) {
		t.Fatalf("expected detached, got %v", err)
	}

	var missing *Journal
	if err := missing.Execute(nil); !apperrors.IsCode(err, apperrors.CodeJournalDetached) {
		t.Fatalf("expected detached for nil journal, got %v", err)
	}
}

func TestRollbackAfterCommittedCommand(t *testing.T) {
	j, _ := newTestJournal()
	l := &recordingListener{}
	j.Register(l)

	a := setLife(t, j, 15)
	if err := j.BeginTransaction("", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	setLife(t, j, 1)
	if err := j.EndTransaction(true, nil); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	log := j.Commands()
	if len(log) != 1 || log[0] != a {
		t.Fatalf("log = %v, want [A]", log)
	}
	if len(l.cmds) != 1 || l.cmds[0] != a {
		t.Fatalf("listener received %v, want [A]", l.cmds)
	}
	if j.Manager().Int(1, "life") != 15 {
		t.Fatalf("life = %d, want 15", j.Manager().Int(1, "life"))
	}
}

func TestRollbackRevertsInReverseOrder(t *testing.T) {
	j, _ := newTestJournal()
	var trace []string
	cmd := func(name string) command.Command { return &traceCommand{name: name, trace: &trace} }

	mustOK := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	mustOK(j.BeginTransaction("", nil))
	mustOK(j.Execute(cmd("A")))
	mustOK(j.BeginTransaction("", nil))
	mustOK(j.Execute(cmd("B")))
	mustOK(j.EndTransaction(false, nil))
	mustOK(j.Execute(cmd("C")))
	mustOK(j.EndTransaction(true, nil))

	want := []string{"+A", "+B", "+C", "-C", "-B", "-A"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestListenerNotifiedOncePerOperationThreeLevelsDeep(t *testing.T) {
	j, _ := newTestJournal()
	l := &recordingListener{}
	j.Register(l)

	// Committed: transaction > group > transaction.
	if err := j.BeginTransaction("turn", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	g, err := j.BeginGroup()
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := j.BeginTransaction("ability", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	setLife(t, j, 12)
	if err := j.EndTransaction(false, nil); err != nil {
		t.Fatalf("end: %v", err)
	}
	setLife(t, j, 11)
	if err := g.End(); err != nil {
		t.Fatalf("group end: %v", err)
	}
	setLife(t, j, 10)
	if err := j.EndTransaction(false, nil); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Rolled back: group > transaction > group.
	outer, err := j.BeginGroup()
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := j.BeginTransaction("draft", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	inner, err := j.BeginGroup()
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	setLife(t, j, 1)
	if err := inner.End(); err != nil {
		t.Fatalf("group end: %v", err)
	}
	if err := j.EndTransaction(true, nil); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := outer.End(); err != nil {
		t.Fatalf("group end: %v", err)
	}

	if len(l.cmds) != 1 {
		t.Fatalf("notifications = %d, want 1", len(l.cmds))
	}
	if l.events[0] != "begin:turn" {
		t.Fatalf("events = %v", l.events)
	}
	if got := len(command.Flatten(l.cmds[0])); got != 3 {
		t.Fatalf("leaf commands = %d, want 3", got)
	}
	if j.Manager().Int(1, "life") != 10 {
		t.Fatalf("life = %d, want 10", j.Manager().Int(1, "life"))
	}
}

func TestInitialSynchronizationExcludesOpenTransaction(t *testing.T) {
	j, _ := newTestJournal()
	a := setLife(t, j, 18)
	if err := j.BeginTransaction("", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	setLife(t, j, 3)

	snapshot := j.InitialSynchronizationCommand()
	if snapshot.Len() != 2 || snapshot.Commands[0] != j.Baseline() || snapshot.Commands[1] != a {
		t.Fatalf("snapshot = %v, want [baseline A]", snapshot.Commands)
	}

	replica := object.NewManager()
	snapshot.Execute(replica)
	if replica.Int(1, "life") != 18 {
		t.Fatalf("replica life = %d, want 18", replica.Int(1, "life"))
	}
}

func TestBaselineCapturesStateBuiltBeforeJournal(t *testing.T) {
	m := object.NewManager()
	m.Insert(&object.Object{ID: 1, Kind: "player", Props: map[object.Property]any{"life": 20}})
	m.Insert(&object.Object{ID: 4, Kind: "card", Props: map[object.Property]any{"owner": object.ID(1)}})
	j := New(m)
	if j.Len() != 0 {
		t.Fatalf("log length = %d, want 0", j.Len())
	}
	setLife(t, j, 12)

	replica := object.NewManager()
	j.InitialSynchronizationCommand().Execute(replica)
	if !replica.Equal(m) {
		t.Fatalf("replica differs from live state: %s", replica.Diff(m))
	}

	if New(object.NewManager()).Baseline() != nil {
		t.Fatal("empty manager should have no baseline")
	}
}

func TestUncomparableTokenIsRejected(t *testing.T) {
	j, _ := newTestJournal()
	err := j.BeginTransaction("draft", []string{"a"})
	if !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if j.Depth() != 0 || j.Err() != nil {
		t.Fatalf("depth=%d err=%v, want untouched journal", j.Depth(), j.Err())
	}

	if err := j.BeginTransaction("draft", "turn-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = j.EndTransaction(false, []string{"a"})
	if !apperrors.IsCode(err, apperrors.CodeTransactionTokenMismatch) {
		t.Fatalf("expected token mismatch, got %v", err)
	}
	if j.Err() == nil {
		t.Fatal("mismatched end must fault the journal")
	}
}

func TestUndoPublishesInverse(t *testing.T) {
	j, m := newTestJournal()
	setLife(t, j, 7)
	l := &recordingListener{}
	j.Register(l)

	if _, err := j.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if m.Int(1, "life") != 20 {
		t.Fatalf("life = %d, want 20", m.Int(1, "life"))
	}
	if j.Len() != 0 {
		t.Fatalf("log length = %d, want 0", j.Len())
	}
	if len(l.cmds) != 1 || l.events[0] != "begin:undo" {
		t.Fatalf("events = %v", l.events)
	}
	if _, ok := l.cmds[0].(*command.Inverse); !ok {
		t.Fatalf("undo published %T", l.cmds[0])
	}
	if _, err := j.Undo(); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUndoRefusedWhileScopeOpen(t *testing.T) {
	j, _ := newTestJournal()
	setLife(t, j, 7)
	if err := j.BeginTransaction("", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := j.Undo(); !apperrors.IsCode(err, apperrors.CodeJournalScopeOpen) {
		t.Fatalf("expected scope open, got %v", err)
	}
	if j.Err() != nil {
		t.Fatal("refused undo must not fault the journal")
	}
}

func TestUnregisterStopsNotifications(t *testing.T) {
	j, _ := newTestJournal()
	first := &recordingListener{}
	second := &recordingListener{}
	h := j.Register(first)
	j.Register(second)

	setLife(t, j, 3)
	if !j.Unregister(h) {
		t.Fatal("expected handle to be registered")
	}
	if j.Unregister(h) {
		t.Fatal("expected second unregister to fail")
	}
	setLife(t, j, 2)

	if len(first.cmds) != 1 || len(second.cmds) != 2 {
		t.Fatalf("first=%d second=%d", len(first.cmds), len(second.cmds))
	}
}

func TestGroupEndedOutOfOrderIsFatal(t *testing.T) {
	j, _ := newTestJournal()
	g, err := j.BeginGroup()
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := j.BeginTransaction("", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := g.End(); !apperrors.IsCode(err, apperrors.CodeScopeOutOfOrder) {
		t.Fatalf("expected out of order, got %v", err)
	}
	if j.Err() == nil {
		t.Fatal("expected journal to be faulted")
	}
}

func TestListenerFuncsIgnoresMissingCallbacks(t *testing.T) {
	j, _ := newTestJournal()
	var synced int
	j.Register(ListenerFuncs{OnSynchronize: func(command.Command) { synced++ }})
	setLife(t, j, 4)
	if synced != 1 {
		t.Fatalf("synced = %d, want 1", synced)
	}
}
