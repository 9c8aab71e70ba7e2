package game

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/search"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
)

var testSetup = duel.Setup{
	Life: 3,
	Hands: [2][]duel.Card{
		{{Name: "bolt", Power: 2}, {Name: "spark", Power: 1}},
		{{Name: "shock", Power: 1}},
	},
}

func newSession(t *testing.T, store history.Store) *Session {
	t.Helper()
	s, err := New(context.Background(), Config{ID: "g1", Visibility: duel.Visibility, History: store}, duel.NewState(testSetup))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(duel.Start(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestPlayRecordsReplayableHistory(t *testing.T) {
	store := history.NewMemory()
	s := newSession(t, store)

	got, err := s.Play(context.Background(), decision.NewScripted(object.ID(4), duel.PlayerTwo, duel.Pass, object.ID(5), duel.PlayerTwo))
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res := got.(duel.Result); res.Winner != duel.PlayerOne {
		t.Fatalf("result = %+v, want player one", res)
	}

	entries, err := store.List(context.Background(), "g1", 0, 1)
	if err != nil || len(entries) != 1 || entries[0].Kind != "baseline" {
		t.Fatalf("first entry = %+v (err %v), want baseline", entries, err)
	}
	replica := object.NewManager()
	if _, err := history.Replay(context.Background(), store, s.Registry(), "g1", replica, history.Options{}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	s.Inspect(func(live *object.Manager) {
		if !replica.Equal(live) {
			t.Fatalf("replay differs: %s", replica.Diff(live))
		}
	})
}

func TestAnswerRejectsOtherPlayer(t *testing.T) {
	s := newSession(t, nil)
	status, pending, err := s.Advance(context.Background())
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if status != sequencer.StatusSuspended || pending.Player() != duel.PlayerOne {
		t.Fatalf("state = %s %#v, want suspended on player one", status, pending)
	}
	_, _, err = s.Answer(context.Background(), duel.PlayerTwo, duel.Pass)
	if !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeInvalidArgument)
	}
	if s.Err() != nil {
		t.Fatalf("session terminated on a bad answer: %v", s.Err())
	}

	status, pending, err = s.Answer(context.Background(), duel.PlayerOne, duel.Pass)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if status != sequencer.StatusSuspended || pending.Player() != duel.PlayerTwo {
		t.Fatalf("state = %s %#v, want player two to play", status, pending)
	}
}

func TestSnapshotHidesOpponentHand(t *testing.T) {
	s := newSession(t, nil)
	packet, err := s.Snapshot(duel.ObserverFor(duel.PlayerTwo))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !packet.Bootstrap {
		t.Fatal("snapshot packet is not a bootstrap")
	}
	replica := object.NewManager()
	packet.Command.Execute(replica)
	if _, ok := replica.Get(4); ok {
		t.Fatal("player two sees player one's hand")
	}
	if _, ok := replica.Get(6); !ok {
		t.Fatal("player two cannot see its own card")
	}
	s.Inspect(func(live *object.Manager) {
		assertVisibleReplica(t, replica, live, duel.ObserverFor(duel.PlayerTwo))
	})
}

// assertVisibleReplica checks that replica holds exactly the objects observer
// may see in live, with the same properties.
func assertVisibleReplica(t *testing.T, replica, live *object.Manager, observer replication.Observer) {
	t.Helper()
	want := object.NewManager()
	for _, id := range live.IDs() {
		obj, _ := live.Get(id)
		if duel.Visibility.IsVisible(obj, observer) {
			want.Insert(obj)
		}
	}
	if !replica.Equal(want) {
		t.Fatalf("%s replica differs from visible state: %s", observer, replica.Diff(want))
	}
}

func TestLateJoinerMatchesLiveState(t *testing.T) {
	s := newSession(t, nil)
	ctx := context.Background()
	if _, _, err := s.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	for _, answer := range []any{object.ID(4), duel.PlayerTwo} {
		if _, _, err := s.Answer(ctx, duel.PlayerOne, answer); err != nil {
			t.Fatalf("answer %v: %v", answer, err)
		}
	}

	replica := object.NewManager()
	if err := s.Join(duel.Spectator, replication.SinkFunc(func(p replication.Packet) error {
		p.Command.Execute(replica)
		return nil
	})); err != nil {
		t.Fatalf("join: %v", err)
	}
	s.Inspect(func(live *object.Manager) {
		assertVisibleReplica(t, replica, live, duel.Spectator)
	})

	if _, _, err := s.Answer(ctx, duel.PlayerTwo, object.ID(6)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, _, err := s.Answer(ctx, duel.PlayerTwo, duel.PlayerOne); err != nil {
		t.Fatalf("answer: %v", err)
	}
	s.Inspect(func(live *object.Manager) {
		assertVisibleReplica(t, replica, live, duel.Spectator)
	})
}

func TestJoinStreamsCommittedBatches(t *testing.T) {
	s := newSession(t, nil)
	var packets []replication.Packet
	if err := s.Join(duel.Spectator, replication.SinkFunc(func(p replication.Packet) error {
		packets = append(packets, p)
		return nil
	})); err != nil {
		t.Fatalf("join: %v", err)
	}
	changed := s.Changed()
	if _, _, err := s.Advance(context.Background()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	select {
	case <-changed:
	default:
		t.Fatal("changed channel not closed after advance")
	}
	if len(packets) != 2 {
		t.Fatalf("packets = %d, want bootstrap and turn start", len(packets))
	}
	if packets[1].Kind != "group" || packets[1].Seq != 2 {
		t.Fatalf("second packet = kind %q seq %d, want group seq 2", packets[1].Kind, packets[1].Seq)
	}
	if got := s.Observers(); len(got) != 1 || got[0] != duel.Spectator {
		t.Fatalf("observers = %v", got)
	}
	if !s.Leave(duel.Spectator) {
		t.Fatal("leave reported no observer")
	}
}

func TestSearchSeatWinsImmediately(t *testing.T) {
	setup := testSetup
	setup.Life = 2
	s, err := New(context.Background(), Config{ID: "g2", Visibility: duel.Visibility}, duel.NewState(setup))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(duel.Start(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	enumerators := decision.NewEnumerators()
	if err := duel.RegisterEnumerators(enumerators); err != nil {
		t.Fatalf("enumerators: %v", err)
	}
	driver := search.NewDriver(enumerators, search.ScorerFunc(duel.LifeLead), search.DefaultLimits().SetDepth(2))
	router := decision.NewRouter(decision.Default{})
	release := router.Seat(duel.PlayerOne, search.AsDecisionMaker(driver))
	defer release()

	got, err := s.Play(context.Background(), router)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	res := got.(duel.Result)
	if res.Winner != duel.PlayerOne || res.Turns != 1 {
		t.Fatalf("result = %+v, want player one on turn 1", res)
	}
}

type brokenStep struct{}

func (brokenStep) Execute(c *sequencer.Context) (sequencer.Step, error) {
	return nil, c.Journal().EndTransaction(false, nil)
}

func TestFatalErrorTerminatesSession(t *testing.T) {
	s, err := New(context.Background(), Config{ID: "g3"}, duel.NewState(testSetup))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(brokenStep{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _, err = s.Advance(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeTransactionNotOpen) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTransactionNotOpen)
	}
	if s.Err() == nil {
		t.Fatal("session still alive after fatal error")
	}
	_, _, err = s.Advance(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeSessionTerminated) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeSessionTerminated)
	}
}

func TestGamesIndex(t *testing.T) {
	games := NewGames()
	s := newSession(t, nil)
	if err := games.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := games.Add(s); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("duplicate add err = %v", err)
	}
	if got, err := games.Get("g1"); err != nil || got != s {
		t.Fatalf("get = %v, %v", got, err)
	}
	if _, err := games.Get("missing"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if !games.Remove("g1") || len(games.IDs()) != 0 {
		t.Fatal("remove did not forget the game")
	}
}
