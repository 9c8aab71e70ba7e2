package search

import (
	"context"
	"fmt"
	"math"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
)

// scoreTolerance absorbs float noise between drivers.
const scoreTolerance = 1e-9

// CrossCheck runs the serial and the parallel driver on the same position.
// Any disagreement is a fatal SEARCH_CROSS_CHECK_MISMATCH.
func (d *Driver) CrossCheck(ctx context.Context, seq *sequencer.Sequencer) (Result, error) {
	serial, err := d.Explore(ctx, seq)
	if err != nil {
		return serial, err
	}
	parallel, err := d.ExploreParallel(ctx, seq)
	if err != nil {
		return serial, err
	}
	if serial.StopReason&StopExhausted == 0 || parallel.StopReason&StopExhausted == 0 {
		// Truncated searches explore different subsets and are not comparable.
		return serial, nil
	}
	if serial.BestIndex != parallel.BestIndex {
		return serial, mismatch("best candidate", serial.BestIndex, parallel.BestIndex)
	}
	for i := range serial.Scores {
		if math.Abs(serial.Scores[i]-parallel.Scores[i]) > scoreTolerance {
			return serial, mismatch(fmt.Sprintf("score of candidate %d", i), serial.Scores[i], parallel.Scores[i])
		}
	}
	return serial, nil
}

func mismatch(what string, serial, parallel any) error {
	return apperrors.WithMetadata(apperrors.CodeSearchCrossCheckMismatch, "serial and parallel search disagree on "+what, map[string]string{
		"serial":   fmt.Sprint(serial),
		"parallel": fmt.Sprint(parallel),
	})
}
