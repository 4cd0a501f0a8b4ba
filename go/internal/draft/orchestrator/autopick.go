package orchestrator

import (
	"github.com/mcdev12/fearless/go/internal/draft/engine"
)

// AutoActionStrategy picks the selection applied when a team runs out of time.
type AutoActionStrategy interface {
	Choose(state engine.DraftState, team engine.Team) engine.Selection
}

// PreviewStrategy locks in the team's current preview, or skips the turn
// when the team has none.
type PreviewStrategy struct{}

// Choose implements AutoActionStrategy.Choose
func (PreviewStrategy) Choose(state engine.DraftState, team engine.Team) engine.Selection {
	if sel, ok := engine.PreviewFor(state, team); ok {
		return sel
	}
	return engine.Skipped()
}

// SkipStrategy always skips the expired turn.
type SkipStrategy struct{}

// Choose implements AutoActionStrategy.Choose
func (SkipStrategy) Choose(engine.DraftState, engine.Team) engine.Selection {
	return engine.Skipped()
}
