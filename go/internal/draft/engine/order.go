package engine

// TurnOrderLength is the number of steps in every draft.
const TurnOrderLength = 20

// BuildTurnOrder returns the 20-step ban/pick order relative to the team
// that picks first.
func BuildTurnOrder(firstPick Team) []DraftStep {
	first := firstPick
	second := firstPick.Other()

	return []DraftStep{
		// Ban phase 1
		{Phase: PhaseBan, Team: first},
		{Phase: PhaseBan, Team: second},
		{Phase: PhaseBan, Team: first},
		{Phase: PhaseBan, Team: second},
		{Phase: PhaseBan, Team: first},
		{Phase: PhaseBan, Team: second},
		// Pick phase 1
		{Phase: PhasePick, Team: first},
		{Phase: PhasePick, Team: second},
		{Phase: PhasePick, Team: second},
		{Phase: PhasePick, Team: first},
		{Phase: PhasePick, Team: first},
		{Phase: PhasePick, Team: second},
		// Ban phase 2
		{Phase: PhaseBan, Team: second},
		{Phase: PhaseBan, Team: first},
		{Phase: PhaseBan, Team: second},
		{Phase: PhaseBan, Team: first},
		// Pick phase 2
		{Phase: PhasePick, Team: second},
		{Phase: PhasePick, Team: first},
		{Phase: PhasePick, Team: first},
		{Phase: PhasePick, Team: second},
	}
}

// stepAt returns the turn order entry for step, or false when step is out of range.
func stepAt(firstPick Team, step int) (DraftStep, bool) {
	if step < 0 || step >= TurnOrderLength {
		return DraftStep{}, false
	}
	return BuildTurnOrder(firstPick)[step], true
}
