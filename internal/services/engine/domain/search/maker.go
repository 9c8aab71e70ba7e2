package search

import (
	"context"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
)

// Maker answers choices by searching. Seat it in a decision.Router to give a
// player an AI.
type Maker struct {
	driver *Driver
}

// AsDecisionMaker wraps d.
func AsDecisionMaker(d *Driver) *Maker {
	return &Maker{driver: d}
}

// Decide implements decision.DecisionMaker. It needs the asking sequencer as
// its view; anything else, and choices without candidates, get the default.
func (m *Maker) Decide(ctx context.Context, view decision.View, choice decision.Choice) (any, error) {
	seq, ok := view.(*sequencer.Sequencer)
	if !ok {
		return choice.Default(), nil
	}
	res, err := m.driver.Search(ctx, seq)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeSearchNoCandidates) {
			return choice.Default(), nil
		}
		return nil, err
	}
	return res.Best, nil
}
