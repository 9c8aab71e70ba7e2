package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func seedState() *object.Manager {
	m := object.NewManager()
	m.Insert(&object.Object{ID: 1, Kind: "player", Props: map[object.Property]any{"life": 20, "name": "ada"}})
	return m
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreRecordsAndReplaysGame(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()
	reg := command.NewBuiltinRegistry()

	live := seedState()
	j := journal.New(live)
	rec, err := history.NewRecorder(ctx, store, reg, "g1")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	j.Register(rec)

	g, err := j.BeginGroup()
	if err != nil {
		t.Fatalf("begin group: %v", err)
	}
	if err := j.Execute(command.CreateOn(live, "card", map[object.Property]any{"cost": 2, "tags": []string{"fire"}})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := g.End(); err != nil {
		t.Fatalf("end group: %v", err)
	}
	if err := j.Execute(command.SetValueOn(live, 1, "life", 17)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if d, ok := command.DestroyOn(live, 2); !ok {
		t.Fatal("card 2 not found")
	} else if err := j.Execute(d); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := rec.Err(); err != nil {
		t.Fatalf("recorder: %v", err)
	}

	replica := seedState()
	res, err := history.Replay(ctx, store, reg, "g1", replica, history.Options{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Applied != 3 {
		t.Fatalf("applied = %d, want 3", res.Applied)
	}
	if !replica.Equal(live) {
		t.Fatalf("replica differs: %s", replica.Diff(live))
	}
}

func TestStoreRejectsSequenceGap(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "history.db"))
	err := store.Append(context.Background(), history.Entry{
		GameID:  "g1",
		Seq:     3,
		Command: command.Envelope{Kind: command.KindSetValue, Payload: []byte(`{}`)},
	})
	if !apperrors.IsCode(err, apperrors.CodeHistorySequenceGap) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeHistorySequenceGap)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	reg := command.NewBuiltinRegistry()

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec, err := history.NewRecorder(ctx, first, reg, "g1")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.Record(ctx, journal.KindNone, command.SetValueOn(seedState(), 1, "life", 9)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := openTestStore(t, path)
	last, ok, err := second.Last(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("last = %v, %v", ok, err)
	}
	if last.Seq != 1 || last.Hash == "" {
		t.Fatalf("last = %+v, want seq 1 with hash", last)
	}
	ids, err := second.GameIDs(ctx)
	if err != nil {
		t.Fatalf("game ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "g1" {
		t.Fatalf("game ids = %v, want [g1]", ids)
	}
	if _, err := history.Verify(ctx, second, "g1"); err != nil {
		t.Fatalf("verify after reopen: %v", err)
	}
}

func TestLastOnEmptyGame(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "history.db"))
	_, ok, err := store.Last(context.Background(), "missing")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if ok {
		t.Fatal("expected no entry for unknown game")
	}
}
