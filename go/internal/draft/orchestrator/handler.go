package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

// HandleCommand routes an inbound client message to the matching operation.
// The draft must exist before the message is decoded any further.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd events.Command) (engine.DraftState, error) {
	if _, ok := o.store.Get(cmd.DraftID); !ok {
		return engine.DraftState{}, fmt.Errorf("%w: %s", ErrDraftNotFound, cmd.DraftID)
	}

	team, err := engine.ParseTeam(cmd.Team)
	if err != nil {
		return engine.DraftState{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	log.Debug().
		Str("command", cmd.Type).
		Str("draft_id", cmd.DraftID).
		Str("team", string(team)).
		Msg("handling draft command")

	switch strings.ToUpper(cmd.Type) {
	case events.CommandPreview:
		return o.SetPreview(ctx, cmd.DraftID, team, cmd.ChampionID)
	case events.CommandAction:
		return o.ApplyAction(ctx, cmd.DraftID, engine.Action{
			DraftID:  cmd.DraftID,
			Team:     team,
			Champion: engine.Picked(cmd.ChampionID),
		})
	case events.CommandReady:
		return o.SetReady(ctx, cmd.DraftID, team, cmd.Ready)
	default:
		return engine.DraftState{}, fmt.Errorf("%w: unknown command type %q", ErrInvalidRequest, cmd.Type)
	}
}
