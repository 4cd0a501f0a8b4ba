package engine

import (
	"maps"
	"slices"
)

// DraftState is an immutable snapshot of one draft. Every mutation builds a
// new value; slices and maps are never shared between two snapshots.
type DraftState struct {
	DraftID       string `json:"draftId"`
	BlueTeamName  string `json:"blueTeamName"`
	RedTeamName   string `json:"redTeamName"`
	FirstPickTeam Team   `json:"firstPickTeam"`

	Phase Phase `json:"phase"`
	Step  int   `json:"step"`
	Turn  *Team `json:"turn"`

	BluePicks []Selection `json:"bluePicks"`
	RedPicks  []Selection `json:"redPicks"`
	Bans      []Selection `json:"bans"`

	Previews           map[Team]string `json:"previews"`
	LastPickedChampion *Selection      `json:"lastPickedChampion"`

	// Epoch milliseconds. Both zero while not started or once complete.
	TurnStartedAt       int64 `json:"turnStartedAt"`
	TurnDurationSeconds int   `json:"turnDurationSeconds"`

	// Filled on published copies only.
	ServerNow  int64 `json:"serverNow"`
	TurnEndsAt int64 `json:"turnEndsAt"`

	BlueReady bool `json:"blueReady"`
	RedReady  bool `json:"redReady"`

	Mode              Mode     `json:"mode"`
	SeriesID          *string  `json:"seriesId"`
	GameNumber        int      `json:"gameNumber"`
	LockedChampionIDs []string `json:"lockedChampionIds"`
}

// DraftParams carries the identity and series linkage of a new draft.
type DraftParams struct {
	DraftID           string
	BlueTeamName      string
	RedTeamName       string
	FirstPickTeam     Team
	Mode              Mode
	SeriesID          *string
	GameNumber        int
	LockedChampionIDs []string
}

// IsComplete reports whether all 20 steps have been resolved.
func (s DraftState) IsComplete() bool {
	return s.Phase == PhaseComplete
}

// IsStarted reports whether the turn clock is running.
func (s DraftState) IsStarted() bool {
	return s.TurnStartedAt > 0 && s.TurnDurationSeconds > 0
}

// BothReady reports whether both teams passed the ready check.
func (s DraftState) BothReady() bool {
	return s.BlueReady && s.RedReady
}

// TurnEndsAtMillis returns when the running turn expires, or 0 when no turn is running.
func (s DraftState) TurnEndsAtMillis() int64 {
	if !s.IsStarted() {
		return 0
	}
	return s.TurnStartedAt + int64(s.TurnDurationSeconds)*1000
}

// Used reports whether championID already appears in bans or picks.
func (s DraftState) Used(championID string) bool {
	for _, list := range [][]Selection{s.Bans, s.BluePicks, s.RedPicks} {
		for _, sel := range list {
			if id, ok := sel.ChampionID(); ok && id == championID {
				return true
			}
		}
	}
	return false
}

// IsLocked reports whether championID was picked in an earlier game of the series.
func (s DraftState) IsLocked(championID string) bool {
	return slices.Contains(s.LockedChampionIDs, championID)
}

// PicksFor returns the pick list of team.
func (s DraftState) PicksFor(team Team) []Selection {
	if team == TeamBlue {
		return s.BluePicks
	}
	return s.RedPicks
}

// Clone returns a deep copy of s.
func (s DraftState) Clone() DraftState {
	c := s
	c.BluePicks = slices.Clone(nonNil(s.BluePicks))
	c.RedPicks = slices.Clone(nonNil(s.RedPicks))
	c.Bans = slices.Clone(nonNil(s.Bans))
	c.LockedChampionIDs = slices.Clone(nonNilStrings(s.LockedChampionIDs))
	c.Previews = maps.Clone(s.Previews)
	if c.Previews == nil {
		c.Previews = map[Team]string{}
	}
	if s.Turn != nil {
		t := *s.Turn
		c.Turn = &t
	}
	if s.LastPickedChampion != nil {
		sel := *s.LastPickedChampion
		c.LastPickedChampion = &sel
	}
	if s.SeriesID != nil {
		id := *s.SeriesID
		c.SeriesID = &id
	}
	return c
}

// WithTiming returns a copy with the turn clock set. Passing zeros stops the clock.
func (s DraftState) WithTiming(startedAt int64, durationSeconds int) DraftState {
	c := s.Clone()
	c.TurnStartedAt = startedAt
	c.TurnDurationSeconds = durationSeconds
	c.ServerNow = 0
	c.TurnEndsAt = 0
	return c
}

// WithReady returns a copy with team's ready flag set.
func (s DraftState) WithReady(team Team, ready bool) DraftState {
	c := s.Clone()
	switch team {
	case TeamBlue:
		c.BlueReady = ready
	case TeamRed:
		c.RedReady = ready
	}
	return c
}

// ForClient returns a copy carrying the ephemeral server clock fields.
func (s DraftState) ForClient(nowMillis int64) DraftState {
	c := s.Clone()
	c.ServerNow = nowMillis
	c.TurnEndsAt = s.TurnEndsAtMillis()
	return c
}

func nonNil(in []Selection) []Selection {
	if in == nil {
		return []Selection{}
	}
	return in
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
