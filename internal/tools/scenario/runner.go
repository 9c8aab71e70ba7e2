package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/muesli/termenv"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/search"
	"github.com/louisbranch/rulecore/internal/services/engine/game"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
)

// AssertionMode controls how failed expectations are reported.
type AssertionMode int

const (
	// AssertionStrict fails the run on the first report.
	AssertionStrict AssertionMode = iota
	// AssertionLogOnly logs failed expectations and succeeds.
	AssertionLogOnly
)

// Config controls scenario execution.
type Config struct {
	Timeout    time.Duration
	Assertions AssertionMode
	Verbose    bool
	Logger     *log.Logger
	// Out receives the transcript. Nil discards it.
	Out io.Writer
	// Output options for the transcript, such as a fixed color profile.
	OutputOptions []termenv.OutputOption
}

// DefaultConfig returns default runner configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		Assertions: AssertionStrict,
	}
}

// Report summarizes one run.
type Report struct {
	Scenario string
	Result   duel.Result
	Entries  int
	Failures []string
}

// ErrExpectationsFailed is returned in strict mode when an expectation fails.
var ErrExpectationsFailed = errors.New("scenario expectations failed")

// RunFile loads and runs the scenario at path.
func RunFile(ctx context.Context, cfg Config, path string) (Report, error) {
	scenario, err := LoadScenarioFromFile(path)
	if err != nil {
		return Report{}, err
	}
	return Run(ctx, cfg, scenario)
}

// Run plays scenario to completion with its scripted and AI seats, checks that
// the recorded history replays to the final state, and evaluates the
// expectations.
func Run(ctx context.Context, cfg Config, scenario *Scenario) (Report, error) {
	if scenario == nil {
		return Report{}, errors.New("scenario is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}

	state := duel.NewState(scenario.Setup)
	answers := make(map[object.ID][]any, 2)
	for _, player := range []object.ID{duel.PlayerOne, duel.PlayerTwo} {
		resolved, err := resolveAnswers(state, player, scenario.Answers[player])
		if err != nil {
			return Report{}, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		answers[player] = resolved
	}

	store := history.NewMemory()
	session, err := game.New(ctx, game.Config{ID: scenario.Name, Visibility: duel.Visibility, History: store}, state)
	if err != nil {
		return Report{}, err
	}
	if err := session.Start(duel.Start(scenario.Setup.MaxTurns)); err != nil {
		return Report{}, err
	}

	t := newTranscript(out, session.Registry(), cfg.Verbose, cfg.OutputOptions...)
	t.header(scenario.Name)
	if err := session.Join(duel.Spectator, t); err != nil {
		return Report{}, err
	}

	enumerators := decision.NewEnumerators()
	if err := duel.RegisterEnumerators(enumerators); err != nil {
		return Report{}, err
	}
	scripted := make(map[object.ID]*decision.Scripted, 2)
	for _, player := range []object.ID{duel.PlayerOne, duel.PlayerTwo} {
		var maker decision.DecisionMaker
		if seat, ok := scenario.AI[player]; ok {
			limits := search.DefaultLimits().SetDepth(seat.Depth).SetThreads(seat.Threads)
			maker = search.AsDecisionMaker(search.NewDriver(enumerators, search.ScorerFunc(duel.LifeLead), limits))
		} else {
			s := decision.NewScripted(answers[player]...)
			scripted[player] = s
			maker = s
		}
		release := session.Seat(player, narrated{inner: maker, transcript: t})
		defer release()
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	got, err := session.Run(runCtx)
	if err != nil {
		return Report{}, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	res, _ := got.(duel.Result)
	t.result(res)

	report := Report{Scenario: scenario.Name, Result: res}
	replayed, err := verifyReplay(ctx, store, session)
	if err != nil {
		return report, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	report.Entries = replayed

	for player, s := range scripted {
		if left := s.Remaining(); left > 0 {
			report.Failures = append(report.Failures, fmt.Sprintf("player %d left %d scripted answers unused", player, left))
		}
	}
	session.Inspect(func(m *object.Manager) {
		report.Failures = append(report.Failures, checkExpectations(scenario.Expect, res, m)...)
	})

	for _, failure := range report.Failures {
		t.failure(failure)
		if cfg.Assertions == AssertionLogOnly {
			logger.Printf("scenario %s: %s", scenario.Name, failure)
		}
	}
	if len(report.Failures) > 0 && cfg.Assertions == AssertionStrict {
		return report, fmt.Errorf("%w: %s: %s", ErrExpectationsFailed, scenario.Name, strings.Join(report.Failures, "; "))
	}
	if cfg.Verbose {
		logger.Printf("scenario %s: %d history entries replayed", scenario.Name, replayed)
	}
	return report, nil
}

func resolveAnswers(m *object.Manager, player object.ID, answers []Answer) ([]any, error) {
	used := make(map[object.ID]bool)
	out := make([]any, 0, len(answers))
	for i, answer := range answers {
		switch answer.Kind {
		case AnswerPass:
			out = append(out, duel.Pass)
		case AnswerTarget:
			out = append(out, answer.Target)
		case AnswerPlay:
			id, ok := findCard(m, player, answer.Card, used)
			if !ok {
				return nil, fmt.Errorf("player %d answer %d: no card %q in hand", player, i+1, answer.Card)
			}
			used[id] = true
			out = append(out, id)
		default:
			return nil, fmt.Errorf("player %d answer %d: unknown kind %q", player, i+1, answer.Kind)
		}
	}
	return out, nil
}

func findCard(m *object.Manager, player object.ID, name string, used map[object.ID]bool) (object.ID, bool) {
	for _, id := range duel.Hand(m, player) {
		if !used[id] && m.String(id, duel.PropName) == name {
			return id, true
		}
	}
	return object.None, false
}

// verifyReplay rebuilds the game from its history alone. The first entry
// carries the starting state, so replay begins from an empty manager.
func verifyReplay(ctx context.Context, store history.Store, session *game.Session) (int, error) {
	replica := object.NewManager()
	res, err := history.Replay(ctx, store, session.Registry(), session.ID(), replica, history.Options{})
	if err != nil {
		return 0, fmt.Errorf("replay history: %w", err)
	}
	var diff string
	session.Inspect(func(live *object.Manager) {
		if !replica.Equal(live) {
			diff = replica.Diff(live)
		}
	})
	if diff != "" {
		return res.Applied, fmt.Errorf("replayed state differs from live state: %s", diff)
	}
	return res.Applied, nil
}

func checkExpectations(expect []Expectation, res duel.Result, m *object.Manager) []string {
	var failures []string
	for _, e := range expect {
		var got int
		switch e.Kind {
		case ExpectWinner:
			got = int(res.Winner)
		case ExpectTurns:
			got = res.Turns
		case ExpectLife:
			got = m.Int(e.Player, duel.PropLife)
		default:
			failures = append(failures, fmt.Sprintf("unknown expectation %q", e.Kind))
			continue
		}
		if got != e.Value {
			label := e.Kind
			if e.Kind == ExpectLife {
				label = fmt.Sprintf("player %d life", e.Player)
			}
			failures = append(failures, fmt.Sprintf("%s = %d, want %d", label, got, e.Value))
		}
	}
	return failures
}
