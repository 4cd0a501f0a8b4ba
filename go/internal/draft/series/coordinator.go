package series

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrSeriesNotFound = errors.New("series not found")
	ErrInvalidBestOf  = errors.New("bestOf must be 3 or 5")
	ErrSeriesComplete = errors.New("series is already complete")
	ErrGameInProgress = errors.New("current game is not complete yet")
	ErrInvalidRequest = errors.New("invalid request")
)

// DraftRegistry stores and serves drafts. The orchestrator satisfies it.
type DraftRegistry interface {
	RegisterDraft(ctx context.Context, state engine.DraftState) (engine.DraftState, error)
	Get(ctx context.Context, draftID string) (engine.DraftState, error)
}

// Publisher announces series events on the series channel.
type Publisher interface {
	PublishSeries(ctx context.Context, event events.SeriesDraftCreatedPayload) error
}

// SeriesState is the progress of a multi-game fearless series.
type SeriesState struct {
	SeriesID          string      `json:"seriesId"`
	BlueTeamName      string      `json:"blueTeamName"`
	RedTeamName       string      `json:"redTeamName"`
	FirstPickTeam     engine.Team `json:"firstPickTeam"`
	BestOf            int         `json:"bestOf"`
	CurrentGame       int         `json:"currentGame"`
	CurrentDraftID    string      `json:"currentDraftId"`
	LockedChampionIDs []string    `json:"lockedChampionIds"`
}

// IsComplete reports whether every game of the series has been created.
func (s SeriesState) IsComplete() bool {
	return s.CurrentGame >= s.BestOf
}

type CreateSeriesRequest struct {
	BlueTeamName  string      `json:"blueTeamName"`
	RedTeamName   string      `json:"redTeamName"`
	FirstPickTeam engine.Team `json:"firstPickTeam"`
	BestOf        int         `json:"bestOf"`
}

type NextGameRequest struct {
	BlueTeamName  string      `json:"blueTeamName"`
	RedTeamName   string      `json:"redTeamName"`
	FirstPickTeam engine.Team `json:"firstPickTeam"`
}

type seriesEntry struct {
	mu     sync.Mutex
	state  SeriesState
	locked map[string]struct{}
}

// Coordinator chains the drafts of each series and carries the fearless
// lock set from one game to the next.
type Coordinator struct {
	drafts    DraftRegistry
	publisher Publisher

	mu     sync.RWMutex
	series map[string]*seriesEntry
}

func NewCoordinator(drafts DraftRegistry, publisher Publisher) *Coordinator {
	return &Coordinator{
		drafts:    drafts,
		publisher: publisher,
		series:    make(map[string]*seriesEntry),
	}
}

// CreateSeries starts a series and registers its first draft, which waits
// for the ready check like any other draft.
func (c *Coordinator) CreateSeries(ctx context.Context, req CreateSeriesRequest) (engine.DraftState, error) {
	if req.BestOf != 3 && req.BestOf != 5 {
		return engine.DraftState{}, fmt.Errorf("%w: got %d", ErrInvalidBestOf, req.BestOf)
	}
	blue, red, err := validateTeams(req.BlueTeamName, req.RedTeamName, req.FirstPickTeam)
	if err != nil {
		return engine.DraftState{}, err
	}

	seriesID := uuid.New().String()
	draft := newGameDraft(seriesID, blue, red, req.FirstPickTeam, 1, nil)

	entry := &seriesEntry{
		state: SeriesState{
			SeriesID:          seriesID,
			BlueTeamName:      blue,
			RedTeamName:       red,
			FirstPickTeam:     req.FirstPickTeam,
			BestOf:            req.BestOf,
			CurrentGame:       1,
			CurrentDraftID:    draft.DraftID,
			LockedChampionIDs: []string{},
		},
		locked: make(map[string]struct{}),
	}

	registered, err := c.drafts.RegisterDraft(ctx, draft)
	if err != nil {
		return engine.DraftState{}, fmt.Errorf("register game 1 draft: %w", err)
	}

	c.mu.Lock()
	c.series[seriesID] = entry
	c.mu.Unlock()
	c.announce(ctx, seriesID, 1, draft.DraftID)

	log.Info().
		Str("series_id", seriesID).
		Str("draft_id", draft.DraftID).
		Int("best_of", req.BestOf).
		Msg("series created")

	return registered, nil
}

// NextGame folds the completed game's picks into the lock set and creates
// the next game's draft.
func (c *Coordinator) NextGame(ctx context.Context, seriesID string, req NextGameRequest) (engine.DraftState, error) {
	entry, ok := c.entry(seriesID)
	if !ok {
		return engine.DraftState{}, fmt.Errorf("%w: %s", ErrSeriesNotFound, seriesID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.state
	if s.IsComplete() {
		return engine.DraftState{}, fmt.Errorf("%w: %d of %d games played", ErrSeriesComplete, s.CurrentGame, s.BestOf)
	}

	current, err := c.drafts.Get(ctx, s.CurrentDraftID)
	if err != nil {
		return engine.DraftState{}, fmt.Errorf("load game %d draft: %w", s.CurrentGame, err)
	}
	if !current.IsComplete() {
		return engine.DraftState{}, fmt.Errorf("%w: game %d", ErrGameInProgress, s.CurrentGame)
	}

	blue, red, err := validateTeams(req.BlueTeamName, req.RedTeamName, req.FirstPickTeam)
	if err != nil {
		return engine.DraftState{}, err
	}

	locked := make(map[string]struct{}, len(entry.locked)+10)
	for id := range entry.locked {
		locked[id] = struct{}{}
	}
	for _, picks := range [][]engine.Selection{current.BluePicks, current.RedPicks} {
		for _, sel := range picks {
			if id, ok := sel.ChampionID(); ok {
				locked[id] = struct{}{}
			}
		}
	}
	lockedIDs := sortedKeys(locked)

	gameNumber := s.CurrentGame + 1
	draft := newGameDraft(seriesID, blue, red, req.FirstPickTeam, gameNumber, lockedIDs)

	registered, err := c.drafts.RegisterDraft(ctx, draft)
	if err != nil {
		return engine.DraftState{}, fmt.Errorf("register game %d draft: %w", gameNumber, err)
	}

	s.BlueTeamName = blue
	s.RedTeamName = red
	s.FirstPickTeam = req.FirstPickTeam
	s.CurrentGame = gameNumber
	s.CurrentDraftID = draft.DraftID
	s.LockedChampionIDs = lockedIDs
	entry.state = s
	entry.locked = locked

	c.announce(ctx, seriesID, gameNumber, draft.DraftID)

	log.Info().
		Str("series_id", seriesID).
		Str("draft_id", draft.DraftID).
		Int("game_number", gameNumber).
		Int("locked", len(lockedIDs)).
		Msg("series advanced to next game")

	return registered, nil
}

// GetSeries returns a copy of the series state.
func (c *Coordinator) GetSeries(ctx context.Context, seriesID string) (SeriesState, error) {
	entry, ok := c.entry(seriesID)
	if !ok {
		return SeriesState{}, fmt.Errorf("%w: %s", ErrSeriesNotFound, seriesID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	out := entry.state
	out.LockedChampionIDs = append([]string{}, entry.state.LockedChampionIDs...)
	return out, nil
}

// HandleDraftCompleted advances the owning series when its current game
// finishes, reusing the series' teams and first pick. Register it with the
// orchestrator's completion hooks to enable automatic advancing.
func (c *Coordinator) HandleDraftCompleted(ctx context.Context, state engine.DraftState) {
	if state.Mode != engine.ModeFearlessSeries || state.SeriesID == nil {
		return
	}

	s, err := c.GetSeries(ctx, *state.SeriesID)
	if err != nil {
		log.Warn().Err(err).Str("draft_id", state.DraftID).Msg("completed draft references unknown series")
		return
	}
	if s.CurrentDraftID != state.DraftID || s.IsComplete() {
		return
	}

	_, err = c.NextGame(ctx, s.SeriesID, NextGameRequest{
		BlueTeamName:  s.BlueTeamName,
		RedTeamName:   s.RedTeamName,
		FirstPickTeam: s.FirstPickTeam,
	})
	// A concurrent manual advance wins the race.
	if err != nil && !errors.Is(err, ErrSeriesComplete) && !errors.Is(err, ErrGameInProgress) {
		log.Error().Err(err).Str("series_id", s.SeriesID).Msg("failed to auto-advance series")
	}
}

// Count returns the number of series held in memory.
func (c *Coordinator) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.series)
}

func (c *Coordinator) entry(seriesID string) (*seriesEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.series[seriesID]
	return e, ok
}

func (c *Coordinator) announce(ctx context.Context, seriesID string, gameNumber int, draftID string) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSeries(ctx, events.NewSeriesDraftCreated(seriesID, gameNumber, draftID)); err != nil {
		log.Warn().Err(err).Str("series_id", seriesID).Msg("failed to publish series event")
	}
}

func newGameDraft(seriesID, blue, red string, firstPick engine.Team, gameNumber int, locked []string) engine.DraftState {
	return engine.NewDraftState(engine.DraftParams{
		DraftID:           uuid.New().String(),
		BlueTeamName:      blue,
		RedTeamName:       red,
		FirstPickTeam:     firstPick,
		Mode:              engine.ModeFearlessSeries,
		SeriesID:          &seriesID,
		GameNumber:        gameNumber,
		LockedChampionIDs: locked,
	})
}

func validateTeams(blue, red string, firstPick engine.Team) (string, string, error) {
	blue = strings.TrimSpace(blue)
	red = strings.TrimSpace(red)
	if blue == "" || red == "" {
		return "", "", fmt.Errorf("%w: team names are required", ErrInvalidRequest)
	}
	if !firstPick.Valid() {
		return "", "", fmt.Errorf("%w: first pick team must be BLUE or RED", ErrInvalidRequest)
	}
	return blue, red, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
