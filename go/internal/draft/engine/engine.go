package engine

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrDraftComplete       = errors.New("draft is complete")
	ErrInvalidStep         = errors.New("invalid draft step")
	ErrWrongTurn           = errors.New("not your turn")
	ErrWrongPhase          = errors.New("wrong phase")
	ErrChampionLocked      = errors.New("champion is locked by fearless draft")
	ErrChampionAlreadyUsed = errors.New("champion already used")
)

// IsValidation reports whether err is a rule rejection caused by the caller,
// as opposed to an internal consistency failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrDraftComplete) ||
		errors.Is(err, ErrWrongTurn) ||
		errors.Is(err, ErrWrongPhase) ||
		errors.Is(err, ErrChampionLocked) ||
		errors.Is(err, ErrChampionAlreadyUsed)
}

// Action is a ban or pick submitted for the current step.
type Action struct {
	DraftID  string    `json:"draftId"`
	Team     Team      `json:"team"`
	Champion Selection `json:"championId"`
}

// NewDraftState builds a not-yet-started draft positioned at step 0.
func NewDraftState(p DraftParams) DraftState {
	first := BuildTurnOrder(p.FirstPickTeam)[0]
	turn := first.Team

	locked := slices.Clone(p.LockedChampionIDs)
	if locked == nil {
		locked = []string{}
	}

	var seriesID *string
	if p.SeriesID != nil {
		id := *p.SeriesID
		seriesID = &id
	}

	return DraftState{
		DraftID:           p.DraftID,
		BlueTeamName:      p.BlueTeamName,
		RedTeamName:       p.RedTeamName,
		FirstPickTeam:     p.FirstPickTeam,
		Phase:             first.Phase,
		Step:              0,
		Turn:              &turn,
		BluePicks:         []Selection{},
		RedPicks:          []Selection{},
		Bans:              []Selection{},
		Previews:          map[Team]string{},
		Mode:              p.Mode,
		SeriesID:          seriesID,
		GameNumber:        p.GameNumber,
		LockedChampionIDs: locked,
	}
}

// ApplyAction validates action against s and returns the next snapshot.
// s is never modified; on error the returned state is s unchanged.
func ApplyAction(s DraftState, action Action) (DraftState, error) {
	if s.Phase == PhaseComplete {
		return s, ErrDraftComplete
	}

	step, ok := stepAt(s.FirstPickTeam, s.Step)
	if !ok {
		return s, fmt.Errorf("%w: %d", ErrInvalidStep, s.Step)
	}

	if action.Team != step.Team {
		return s, fmt.Errorf("%w: step %d belongs to %s", ErrWrongTurn, s.Step, step.Team)
	}

	if step.Phase != s.Phase {
		return s, fmt.Errorf("%w: step %d expects %s, draft is in %s", ErrWrongPhase, s.Step, step.Phase, s.Phase)
	}

	championID, picked := action.Champion.ChampionID()

	// Locks restrict picks only.
	if picked && step.Phase == PhasePick && s.IsLocked(championID) {
		return s, fmt.Errorf("%w: %s", ErrChampionLocked, championID)
	}

	if picked && s.Used(championID) {
		return s, fmt.Errorf("%w: %s", ErrChampionAlreadyUsed, championID)
	}

	next := s.Clone()
	if step.Phase == PhaseBan {
		next.Bans = append(next.Bans, action.Champion)
	} else if action.Team == TeamBlue {
		next.BluePicks = append(next.BluePicks, action.Champion)
	} else {
		next.RedPicks = append(next.RedPicks, action.Champion)
	}

	last := action.Champion
	next.LastPickedChampion = &last
	next.Step = s.Step + 1

	if next.Step >= TurnOrderLength {
		next.Phase = PhaseComplete
		next.Turn = nil
		next.TurnStartedAt = 0
		next.TurnDurationSeconds = 0
		next.ServerNow = 0
		next.TurnEndsAt = 0
		return next, nil
	}

	upcoming := BuildTurnOrder(s.FirstPickTeam)[next.Step]
	turn := upcoming.Team
	next.Phase = upcoming.Phase
	next.Turn = &turn
	return next, nil
}
