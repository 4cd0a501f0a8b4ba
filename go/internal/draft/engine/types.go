package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Team identifies one side of a draft.
type Team string

const (
	TeamBlue Team = "BLUE"
	TeamRed  Team = "RED"
)

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamBlue {
		return TeamRed
	}
	return TeamBlue
}

// Valid reports whether t is BLUE or RED.
func (t Team) Valid() bool {
	return t == TeamBlue || t == TeamRed
}

// ParseTeam accepts "BLUE"/"RED" in any case.
func ParseTeam(s string) (Team, error) {
	switch Team(strings.ToUpper(strings.TrimSpace(s))) {
	case TeamBlue:
		return TeamBlue, nil
	case TeamRed:
		return TeamRed, nil
	default:
		return "", fmt.Errorf("unknown team %q", s)
	}
}

// Phase is the kind of action expected at the current step.
type Phase string

const (
	PhaseBan      Phase = "BAN"
	PhasePick     Phase = "PICK"
	PhaseComplete Phase = "COMPLETE"
)

// Mode distinguishes standalone drafts from games of a fearless series.
type Mode string

const (
	ModeSingle         Mode = "SINGLE"
	ModeFearlessSeries Mode = "FEARLESS_SERIES"
)

// DraftStep is one entry of the turn order.
type DraftStep struct {
	Phase Phase `json:"phase"`
	Team  Team  `json:"team"`
}

// NoneChampionID is the wire form of a skipped selection.
const NoneChampionID = "NONE"

// Selection is the outcome of a single turn: either a champion or a skip.
// The zero value is a skip.
type Selection struct {
	championID string
}

// Picked returns a selection naming championID. A blank id or the NONE
// sentinel yields a skip.
func Picked(championID string) Selection {
	id := strings.TrimSpace(championID)
	if id == "" || id == NoneChampionID {
		return Selection{}
	}
	return Selection{championID: id}
}

// Skipped returns the empty selection used for timed-out turns.
func Skipped() Selection {
	return Selection{}
}

// IsSkipped reports whether no champion was selected.
func (s Selection) IsSkipped() bool {
	return s.championID == ""
}

// ChampionID returns the selected champion and whether one was selected.
func (s Selection) ChampionID() (string, bool) {
	return s.championID, s.championID != ""
}

func (s Selection) String() string {
	if s.IsSkipped() {
		return NoneChampionID
	}
	return s.championID
}

func (s Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("selection must be a string: %w", err)
	}
	if raw == nil {
		*s = Skipped()
		return nil
	}
	*s = Picked(*raw)
	return nil
}
