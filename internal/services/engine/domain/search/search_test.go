package search

import (
	"context"
	"math"
	"testing"
	"time"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
)

func suspend(t *testing.T, seq *sequencer.Sequencer) {
	t.Helper()
	if err := seq.Run(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if seq.Status() != sequencer.StatusSuspended {
		t.Fatalf("status = %s, want suspended", seq.Status())
	}
}

func TestExploreLeavesStateUnchangedForEveryOrder(t *testing.T) {
	orders := [][]int{{1, 2, 3}, {1, 3, 2}, {2, 1, 3}, {2, 3, 1}, {3, 1, 2}, {3, 2, 1}}
	for _, order := range orders {
		seq, enumerators := newGame(order...)
		suspend(t, seq)
		before := seq.Manager().Clone()
		var notified int
		seq.Journal().Register(journal.ListenerFuncs{OnSynchronize: func(command.Command) { notified++ }})

		driver := NewDriver(enumerators, lifeDiff, DefaultLimits().SetDepth(2))
		res, err := driver.Explore(context.Background(), seq)
		if err != nil {
			t.Fatalf("order %v: explore: %v", order, err)
		}
		if res.Explored != 3 {
			t.Fatalf("order %v: explored = %d, want 3", order, res.Explored)
		}
		if !seq.Manager().Equal(before) {
			t.Fatalf("order %v: state changed: %s", order, seq.Manager().Diff(before))
		}
		if seq.Journal().Depth() != 0 || seq.Journal().Len() != 0 {
			t.Fatalf("order %v: journal depth=%d len=%d", order, seq.Journal().Depth(), seq.Journal().Len())
		}
		if notified != 0 {
			t.Fatalf("order %v: listeners notified %d times", order, notified)
		}
		if seq.Pending() == nil || seq.Pending().Kind() != "attack" {
			t.Fatalf("order %v: pending = %#v", order, seq.Pending())
		}
		if res.Best != 1 {
			t.Fatalf("order %v: best = %v, want 1", order, res.Best)
		}
	}
}

func TestExploreDepthOneIsGreedy(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	res, err := NewDriver(enumerators, lifeDiff, nil).Explore(context.Background(), seq)
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	if res.Best != 3 || res.BestScore != 3 {
		t.Fatalf("best = %v (%v), want 3 (3)", res.Best, res.BestScore)
	}
	if res.StopReason&StopExhausted == 0 {
		t.Fatalf("stop reason = %s", res.StopReason)
	}
}

func TestExploreMinimaxDepthTwo(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	res, err := NewDriver(enumerators, lifeDiff, DefaultLimits().SetDepth(2)).Explore(context.Background(), seq)
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	want := []float64{-1, -2, -3}
	for i, score := range want {
		if res.Scores[i] != score {
			t.Fatalf("scores = %v, want %v", res.Scores, want)
		}
	}
	if res.BestIndex != 0 {
		t.Fatalf("best index = %d, want 0", res.BestIndex)
	}
}

func TestExploreParallelMatchesSerial(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	before := seq.Manager().Clone()
	driver := NewDriver(enumerators, lifeDiff, DefaultLimits().SetDepth(2).SetThreads(3))

	res, err := driver.CrossCheck(context.Background(), seq)
	if err != nil {
		t.Fatalf("cross check: %v", err)
	}
	if res.Best != 1 {
		t.Fatalf("best = %v, want 1", res.Best)
	}
	if !seq.Manager().Equal(before) {
		t.Fatalf("state changed: %s", seq.Manager().Diff(before))
	}
}

func TestCrossCheckMismatchIsFatal(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	root := seq.Manager()
	// Scores differently on worker replicas than on the shared state.
	biased := ScorerFunc(func(m *object.Manager, perspective object.ID) float64 {
		if m == root {
			return lifeDiff(m, perspective)
		}
		return -lifeDiff(m, perspective)
	})
	driver := NewDriver(enumerators, biased, DefaultLimits().SetThreads(2))

	_, err := driver.CrossCheck(context.Background(), seq)
	if !apperrors.IsCode(err, apperrors.CodeSearchCrossCheckMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if !apperrors.IsFatal(err) {
		t.Fatal("expected mismatch to be fatal")
	}
}

func TestCandidateLimitStopsEarly(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	res, err := NewDriver(enumerators, lifeDiff, DefaultLimits().SetCandidates(2)).Explore(context.Background(), seq)
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	if res.Explored != 2 || res.StopReason&StopCandidates == 0 {
		t.Fatalf("explored=%d reason=%s", res.Explored, res.StopReason)
	}
	if !math.IsNaN(res.Scores[2]) {
		t.Fatalf("unexplored score = %v, want NaN", res.Scores[2])
	}
}

func TestCancellationBetweenCandidatesRollsBack(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	before := seq.Manager().Clone()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stopped Stats
	listener := NewStatsListener().
		OnCandidate(func(Stats) { cancel() }).
		OnStop(func(s Stats) { stopped = s })
	driver := NewDriver(enumerators, lifeDiff, DefaultLimits().SetDepth(2)).SetListener(listener)

	res, err := driver.Explore(ctx, seq)
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	if res.Explored != 1 {
		t.Fatalf("explored = %d, want 1", res.Explored)
	}
	if stopped.StopReason&StopInterrupt == 0 {
		t.Fatalf("stop reason = %s", stopped.StopReason)
	}
	if !seq.Manager().Equal(before) {
		t.Fatalf("state changed: %s", seq.Manager().Diff(before))
	}
}

func TestMovetimeLimit(t *testing.T) {
	seq, enumerators := newGame()
	suspend(t, seq)
	slow := ScorerFunc(func(m *object.Manager, p object.ID) float64 {
		time.Sleep(10 * time.Millisecond)
		return lifeDiff(m, p)
	})
	res, err := NewDriver(enumerators, slow, DefaultLimits().SetMovetime(2 * time.Millisecond)).Explore(context.Background(), seq)
	if err != nil {
		t.Fatalf("explore: %v", err)
	}
	if res.Explored != 1 || res.StopReason&StopMovetime == 0 {
		t.Fatalf("explored=%d reason=%s", res.Explored, res.StopReason)
	}
}

func TestExploreRequiresPendingChoice(t *testing.T) {
	seq, enumerators := newGame()
	_, err := NewDriver(enumerators, lifeDiff, nil).Explore(context.Background(), seq)
	if !apperrors.IsCode(err, apperrors.CodeSequencerNotSuspended) {
		t.Fatalf("expected not suspended, got %v", err)
	}
}

func TestExploreWithoutCandidates(t *testing.T) {
	seq, _ := newGame()
	suspend(t, seq)
	driver := NewDriver(decision.NewEnumerators(), lifeDiff, nil)
	if _, err := driver.Explore(context.Background(), seq); !apperrors.IsCode(err, apperrors.CodeSearchNoCandidates) {
		t.Fatalf("expected no candidates, got %v", err)
	}
	answer, err := AsDecisionMaker(driver).Decide(context.Background(), seq, seq.Pending())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if answer != 1 {
		t.Fatalf("answer = %v, want default 1", answer)
	}
}

func TestSearchSeatPlaysThroughRouter(t *testing.T) {
	seq, enumerators := newGame()
	driver := NewDriver(enumerators, lifeDiff, DefaultLimits().SetDepth(2))
	router := decision.NewRouter(nil)
	router.Seat(attacker, AsDecisionMaker(driver))
	router.Seat(defender, decision.NewScripted(2))

	if err := seq.Run(context.Background(), router); err != nil {
		t.Fatalf("run: %v", err)
	}
	m := seq.Manager()
	if m.Int(attacker, "last_attack") != 1 {
		t.Fatalf("attack = %d, want 1", m.Int(attacker, "last_attack"))
	}
	if m.Int(attacker, "life") != 8 || m.Int(defender, "life") != 9 {
		t.Fatalf("life = %d/%d, want 8/9", m.Int(attacker, "life"), m.Int(defender, "life"))
	}
}

func TestStopReasonString(t *testing.T) {
	if got := (StopInterrupt | StopMovetime).String(); got != "Interrupt|Movetime" {
		t.Fatalf("string = %q", got)
	}
	if StopNone.String() != "None" {
		t.Fatal("expected None")
	}
}

func TestLimitsSettersClamp(t *testing.T) {
	l := DefaultLimits().SetDepth(0).SetThreads(-1).SetCandidates(-3).SetMovetime(-time.Second)
	if l.Depth != 1 || l.Threads != 1 || l.Candidates != 0 || l.Movetime != 0 {
		t.Fatalf("limits = %s", l)
	}
}
