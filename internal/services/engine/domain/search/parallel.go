package search

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/louisbranch/rulecore/internal/platform/otel"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ExploreParallel scores root candidates on Limits.Threads workers. Every
// worker owns a clone of the state, a journal over it and a fork of seq, so
// seq's own state is never touched.
func (d *Driver) ExploreParallel(ctx context.Context, seq *sequencer.Sequencer) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer().Start(ctx, "search.ExploreParallel")
	defer span.End()

	res, err := d.prepare(seq)
	if err != nil {
		return res, err
	}
	threads := min(max(d.limits.Threads, 1), len(res.Candidates))
	limiter := NewLimiter(d.limits)
	limiter.Reset(ctx)
	perspective := res.Choice.Player()

	type worker struct {
		journal *journal.Journal
		seq     *sequencer.Sequencer
	}
	workers := make([]worker, threads)
	for i := range workers {
		j := journal.New(seq.Manager().Clone())
		workers[i] = worker{journal: j, seq: seq.Fork(j)}
	}

	limit := len(res.Candidates)
	if d.limits.Candidates > 0 {
		limit = min(limit, d.limits.Candidates)
	}
	var (
		mu   sync.Mutex
		next atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= limit || limiter.Expired() {
					return nil
				}
				score, err := d.branch(gctx, w.journal, w.seq, res.Candidates[i], perspective, d.limits.Depth)
				if err != nil {
					if isInterrupt(err) {
						limiter.SetStop(true)
						return nil
					}
					return err
				}
				d.record(&res, &mu, limiter, i, score)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	d.finish(&res, limiter)
	span.SetAttributes(
		attribute.Int("search.explored", res.Explored),
		attribute.Int("search.threads", threads),
		attribute.String("search.stop_reason", res.StopReason.String()),
	)
	return res, nil
}
