package search

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/platform/otel"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
	"go.opentelemetry.io/otel/attribute"
)

// KindSearch labels the transactions a search opens. They are always rolled
// back.
const KindSearch journal.Kind = "search"

// Scorer evaluates a state from one player's perspective. Higher is better.
type Scorer interface {
	Score(m *object.Manager, perspective object.ID) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(m *object.Manager, perspective object.ID) float64

// Score implements Scorer.
func (f ScorerFunc) Score(m *object.Manager, perspective object.ID) float64 {
	return f(m, perspective)
}

// Result is the outcome of one search.
type Result struct {
	Choice     decision.Choice
	Candidates []any
	// Scores lines up with Candidates. Unexplored candidates score NaN.
	Scores     []float64
	Best       any
	BestIndex  int
	BestScore  float64
	Explored   int
	StopReason StopReason
	Elapsed    time.Duration
}

// Driver explores choices. It holds no per-search state and can be shared.
type Driver struct {
	enumerators *decision.Enumerators
	scorer      Scorer
	limits      *Limits
	listener    *StatsListener
}

// NewDriver creates a driver. Nil limits mean DefaultLimits.
func NewDriver(enumerators *decision.Enumerators, scorer Scorer, limits *Limits) *Driver {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Driver{enumerators: enumerators, scorer: scorer, limits: limits}
}

// SetListener attaches search callbacks.
func (d *Driver) SetListener(l *StatsListener) *Driver {
	d.listener = l
	return d
}

// Limits returns the driver's limits.
func (d *Driver) Limits() *Limits { return d.limits }

// Search runs the parallel driver when more than one thread is configured and
// the serial driver otherwise.
func (d *Driver) Search(ctx context.Context, seq *sequencer.Sequencer) (Result, error) {
	if d.limits.Threads > 1 {
		return d.ExploreParallel(ctx, seq)
	}
	return d.Explore(ctx, seq)
}

// Explore scores every candidate answer to seq's pending choice on seq's own
// journal. Each candidate runs inside a transaction that is rolled back, so
// the state is unchanged when Explore returns, early exits included.
func (d *Driver) Explore(ctx context.Context, seq *sequencer.Sequencer) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer().Start(ctx, "search.Explore")
	defer span.End()

	res, err := d.prepare(seq)
	if err != nil {
		return res, err
	}
	limiter := NewLimiter(d.limits)
	limiter.Reset(ctx)
	perspective := res.Choice.Player()
	var mu sync.Mutex

	for i, candidate := range res.Candidates {
		if !limiter.Ok(res.Explored, len(res.Candidates)) {
			break
		}
		score, err := d.branch(ctx, seq.Journal(), seq, candidate, perspective, d.limits.Depth)
		if err != nil {
			if isInterrupt(err) {
				limiter.SetStop(true)
				break
			}
			return res, err
		}
		d.record(&res, &mu, limiter, i, score)
	}
	d.finish(&res, limiter)
	span.SetAttributes(
		attribute.Int("search.explored", res.Explored),
		attribute.String("search.stop_reason", res.StopReason.String()),
	)
	return res, nil
}

func (d *Driver) prepare(seq *sequencer.Sequencer) (Result, error) {
	res := Result{BestIndex: -1, BestScore: math.Inf(-1)}
	choice := seq.Pending()
	if choice == nil {
		return res, apperrors.New(apperrors.CodeSequencerNotSuspended, "search requires a pending choice")
	}
	res.Choice = choice
	res.Best = choice.Default()
	candidates, _ := d.enumerators.Enumerate(seq, choice)
	if len(candidates) == 0 {
		return res, apperrors.WithMetadata(apperrors.CodeSearchNoCandidates, "choice has no candidates", map[string]string{
			"kind": string(choice.Kind()),
		})
	}
	res.Candidates = candidates
	res.Scores = make([]float64, len(candidates))
	for i := range res.Scores {
		res.Scores[i] = math.NaN()
	}
	return res, nil
}

func (d *Driver) record(res *Result, mu *sync.Mutex, limiter *Limiter, i int, score float64) {
	mu.Lock()
	defer mu.Unlock()
	res.Scores[i] = score
	res.Explored++
	res.Best, res.BestIndex, res.BestScore = best(res.Candidates, res.Scores, res.Choice.Default())
	d.listener.candidate(Stats{
		Explored:  res.Explored,
		Candidate: res.Candidates[i],
		Score:     score,
		Best:      res.Best,
		BestScore: res.BestScore,
		Elapsed:   limiter.Elapsed(),
	})
}

func (d *Driver) finish(res *Result, limiter *Limiter) {
	res.Elapsed = limiter.Elapsed()
	res.StopReason = limiter.Reason(res.Explored, len(res.Candidates))
	d.listener.stopped(Stats{
		Explored:   res.Explored,
		Best:       res.Best,
		BestScore:  res.BestScore,
		Elapsed:    res.Elapsed,
		StopReason: res.StopReason,
	})
}

// best picks the highest score, the lowest index winning ties so serial and
// parallel searches agree.
func best(candidates []any, scores []float64, fallback any) (any, int, float64) {
	index, score := -1, math.Inf(-1)
	for i, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if index == -1 || s > score {
			index, score = i, s
		}
	}
	if index == -1 {
		return fallback, -1, score
	}
	return candidates[index], index, score
}

type branchToken struct {
	depth int
}

// branch applies candidate to a fork of seq inside a transaction, scores the
// outcome, and rolls the transaction back.
func (d *Driver) branch(ctx context.Context, j *journal.Journal, seq *sequencer.Sequencer, candidate any, perspective object.ID, depth int) (float64, error) {
	token := &branchToken{depth: depth}
	if err := j.BeginTransaction(KindSearch, token); err != nil {
		return 0, err
	}
	score, runErr := d.play(ctx, j, seq, candidate, perspective, depth)
	if err := j.EndTransaction(true, token); err != nil {
		return 0, errors.Join(runErr, err)
	}
	return score, runErr
}

func (d *Driver) play(ctx context.Context, j *journal.Journal, seq *sequencer.Sequencer, candidate any, perspective object.ID, depth int) (float64, error) {
	fork := seq.Fork(j)
	if err := fork.Resume(candidate); err != nil {
		return 0, err
	}
	if err := fork.Run(ctx, nil); err != nil {
		return 0, err
	}
	if fork.Status() == sequencer.StatusSuspended && depth > 1 {
		return d.value(ctx, j, fork, perspective, depth-1)
	}
	return d.scorer.Score(j.Manager(), perspective), nil
}

// value is the minimax value of a suspended position: the perspective player
// maximizes, everyone else minimizes.
func (d *Driver) value(ctx context.Context, j *journal.Journal, seq *sequencer.Sequencer, perspective object.ID, depth int) (float64, error) {
	choice := seq.Pending()
	candidates, _ := d.enumerators.Enumerate(seq, choice)
	if len(candidates) == 0 {
		candidates = []any{choice.Default()}
	}
	maximize := choice.Player() == perspective
	result := math.Inf(1)
	if maximize {
		result = math.Inf(-1)
	}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		score, err := d.branch(ctx, j, seq, candidate, perspective, depth)
		if err != nil {
			return 0, err
		}
		if maximize {
			result = math.Max(result, score)
		} else {
			result = math.Min(result, score)
		}
	}
	return result, nil
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
