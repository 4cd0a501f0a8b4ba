package series

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mu     sync.Mutex
	series []events.SeriesDraftCreatedPayload
}

func (m *mockPublisher) PublishDraft(context.Context, engine.DraftState) error {
	return nil
}

func (m *mockPublisher) PublishSeries(_ context.Context, event events.SeriesDraftCreatedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = append(m.series, event)
	return nil
}

func (m *mockPublisher) seriesEvents() []events.SeriesDraftCreatedPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.SeriesDraftCreatedPayload(nil), m.series...)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *orchestrator.Orchestrator, *mockPublisher) {
	t.Helper()
	pub := &mockPublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	o := orchestrator.New(orchestrator.Config{TurnDuration: 30 * time.Second}, pub, clock)
	t.Cleanup(o.Timer().Stop)
	return NewCoordinator(o, pub), o, pub
}

func createBestOf(t *testing.T, c *Coordinator, bestOf int) engine.DraftState {
	t.Helper()
	d, err := c.CreateSeries(context.Background(), CreateSeriesRequest{
		BlueTeamName:  "Blue Side",
		RedTeamName:   "Red Side",
		FirstPickTeam: engine.TeamBlue,
		BestOf:        bestOf,
	})
	require.NoError(t, err)
	return d
}

// playOut readies both teams and resolves every step. Bans use "ban-<step>",
// picks use "<prefix>-<step>" except the steps in skip.
func playOut(t *testing.T, o *orchestrator.Orchestrator, draftID, prefix string, skip map[int]bool) engine.DraftState {
	t.Helper()
	ctx := context.Background()
	_, err := o.SetReady(ctx, draftID, engine.TeamBlue, true)
	require.NoError(t, err)
	s, err := o.SetReady(ctx, draftID, engine.TeamRed, true)
	require.NoError(t, err)

	for !s.IsComplete() {
		sel := engine.Picked(fmt.Sprintf("%s-%d", prefix, s.Step))
		if s.Phase == engine.PhaseBan {
			sel = engine.Picked(fmt.Sprintf("ban-%s-%d", prefix, s.Step))
		}
		if skip[s.Step] {
			sel = engine.Skipped()
		}
		s, err = o.ApplyAction(ctx, draftID, engine.Action{Team: *s.Turn, Champion: sel})
		require.NoError(t, err)
	}
	return s
}

func nextReq() NextGameRequest {
	return NextGameRequest{BlueTeamName: "Red Side", RedTeamName: "Blue Side", FirstPickTeam: engine.TeamRed}
}

func TestCreateSeries(t *testing.T) {
	c, o, pub := newTestCoordinator(t)

	d := createBestOf(t, c, 3)

	assert.Equal(t, engine.ModeFearlessSeries, d.Mode)
	assert.Equal(t, 1, d.GameNumber)
	require.NotNil(t, d.SeriesID)
	assert.Empty(t, d.LockedChampionIDs)
	assert.False(t, d.IsStarted())

	s, err := c.GetSeries(context.Background(), *d.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.BestOf)
	assert.Equal(t, 1, s.CurrentGame)
	assert.Equal(t, d.DraftID, s.CurrentDraftID)

	_, err = o.Get(context.Background(), d.DraftID)
	require.NoError(t, err)

	assert.Equal(t, []events.SeriesDraftCreatedPayload{{
		Type:       events.EventTypeSeriesDraftCreated,
		SeriesID:   *d.SeriesID,
		GameNumber: 1,
		DraftID:    d.DraftID,
	}}, pub.seriesEvents())
}

func TestCreateSeries_Validation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	for _, bestOf := range []int{0, 1, 2, 4, 7} {
		_, err := c.CreateSeries(ctx, CreateSeriesRequest{BlueTeamName: "A", RedTeamName: "B", FirstPickTeam: engine.TeamBlue, BestOf: bestOf})
		assert.ErrorIs(t, err, ErrInvalidBestOf, "bestOf %d", bestOf)
	}

	_, err := c.CreateSeries(ctx, CreateSeriesRequest{BlueTeamName: "", RedTeamName: "B", FirstPickTeam: engine.TeamBlue, BestOf: 3})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.CreateSeries(ctx, CreateSeriesRequest{BlueTeamName: "A", RedTeamName: "B", BestOf: 5})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, c.Count())
}

type failingRegistry struct{}

func (failingRegistry) RegisterDraft(context.Context, engine.DraftState) (engine.DraftState, error) {
	return engine.DraftState{}, errors.New("store unavailable")
}

func (failingRegistry) Get(_ context.Context, id string) (engine.DraftState, error) {
	return engine.DraftState{}, fmt.Errorf("%w: %s", orchestrator.ErrDraftNotFound, id)
}

func TestCreateSeries_RegisterFailureLeavesNoSeries(t *testing.T) {
	pub := &mockPublisher{}
	c := NewCoordinator(failingRegistry{}, pub)

	_, err := c.CreateSeries(context.Background(), CreateSeriesRequest{
		BlueTeamName:  "Blue Side",
		RedTeamName:   "Red Side",
		FirstPickTeam: engine.TeamBlue,
		BestOf:        3,
	})
	require.Error(t, err)
	assert.Zero(t, c.Count())
	assert.Empty(t, pub.seriesEvents())
}

func TestNextGame_LocksPicksOnly(t *testing.T) {
	c, o, pub := newTestCoordinator(t)
	ctx := context.Background()
	d := createBestOf(t, c, 3)

	// Skip four of the ten picks so six champions are locked.
	game1 := playOut(t, o, d.DraftID, "g1", map[int]bool{6: true, 11: true, 16: true, 19: true})

	next, err := c.NextGame(ctx, *d.SeriesID, nextReq())
	require.NoError(t, err)

	var want []string
	for _, sel := range append(append([]engine.Selection{}, game1.BluePicks...), game1.RedPicks...) {
		if id, ok := sel.ChampionID(); ok {
			want = append(want, id)
		}
	}
	require.Len(t, want, 6)
	assert.ElementsMatch(t, want, next.LockedChampionIDs)
	for _, id := range next.LockedChampionIDs {
		assert.NotContains(t, id, "ban-")
	}

	assert.Equal(t, 2, next.GameNumber)
	assert.Equal(t, "Red Side", next.BlueTeamName)
	assert.Equal(t, engine.TeamRed, next.FirstPickTeam)
	assert.False(t, next.IsStarted())

	s, err := c.GetSeries(ctx, *d.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentGame)
	assert.Equal(t, next.DraftID, s.CurrentDraftID)
	assert.ElementsMatch(t, want, s.LockedChampionIDs)

	evs := pub.seriesEvents()
	require.Len(t, evs, 2)
	assert.Equal(t, 2, evs[1].GameNumber)
	assert.Equal(t, next.DraftID, evs[1].DraftID)
}

func TestNextGame_LocksAccumulate(t *testing.T) {
	c, o, _ := newTestCoordinator(t)
	ctx := context.Background()
	d := createBestOf(t, c, 3)

	playOut(t, o, d.DraftID, "g1", nil)
	g2, err := c.NextGame(ctx, *d.SeriesID, nextReq())
	require.NoError(t, err)
	assert.Len(t, g2.LockedChampionIDs, 10)

	playOut(t, o, g2.DraftID, "g2", nil)
	g3, err := c.NextGame(ctx, *d.SeriesID, nextReq())
	require.NoError(t, err)
	assert.Len(t, g3.LockedChampionIDs, 20)
	assert.Subset(t, g3.LockedChampionIDs, g2.LockedChampionIDs)

	playOut(t, o, g3.DraftID, "g3", nil)
	_, err = c.NextGame(ctx, *d.SeriesID, nextReq())
	assert.ErrorIs(t, err, ErrSeriesComplete)
}

func TestNextGame_LockedChampionCannotBePickedAgain(t *testing.T) {
	c, o, _ := newTestCoordinator(t)
	ctx := context.Background()
	d := createBestOf(t, c, 3)
	playOut(t, o, d.DraftID, "g1", nil)

	g2, err := c.NextGame(ctx, *d.SeriesID, NextGameRequest{BlueTeamName: "A", RedTeamName: "B", FirstPickTeam: engine.TeamBlue})
	require.NoError(t, err)
	locked := g2.LockedChampionIDs[0]

	_, err = o.SetReady(ctx, g2.DraftID, engine.TeamBlue, true)
	require.NoError(t, err)
	s, err := o.SetReady(ctx, g2.DraftID, engine.TeamRed, true)
	require.NoError(t, err)

	// Bans may still target a locked champion.
	s, err = o.ApplyAction(ctx, g2.DraftID, engine.Action{Team: *s.Turn, Champion: engine.Picked(locked)})
	require.NoError(t, err)
	for s.Phase == engine.PhaseBan {
		s, err = o.ApplyAction(ctx, g2.DraftID, engine.Action{Team: *s.Turn, Champion: engine.Skipped()})
		require.NoError(t, err)
	}

	_, err = o.ApplyAction(ctx, g2.DraftID, engine.Action{Team: *s.Turn, Champion: engine.Picked(g2.LockedChampionIDs[1])})
	assert.ErrorIs(t, err, engine.ErrChampionLocked)
}

func TestNextGame_Errors(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.NextGame(ctx, "missing", nextReq())
	assert.ErrorIs(t, err, ErrSeriesNotFound)

	d := createBestOf(t, c, 5)
	_, err = c.NextGame(ctx, *d.SeriesID, nextReq())
	assert.ErrorIs(t, err, ErrGameInProgress)

	_, err = c.GetSeries(ctx, "missing")
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestNextGame_InvalidTeams(t *testing.T) {
	c, o, _ := newTestCoordinator(t)
	ctx := context.Background()
	d := createBestOf(t, c, 3)
	playOut(t, o, d.DraftID, "g1", nil)

	_, err := c.NextGame(ctx, *d.SeriesID, NextGameRequest{BlueTeamName: "A", RedTeamName: "  ", FirstPickTeam: engine.TeamBlue})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.NextGame(ctx, *d.SeriesID, NextGameRequest{BlueTeamName: "A", RedTeamName: "B"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	s, err := c.GetSeries(ctx, *d.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentGame)
}

func TestNextGame_ConcurrentAdvanceCreatesOneGame(t *testing.T) {
	c, o, _ := newTestCoordinator(t)
	ctx := context.Background()
	d := createBestOf(t, c, 5)
	playOut(t, o, d.DraftID, "g1", nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.NextGame(ctx, *d.SeriesID, nextReq()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrGameInProgress)
			}
		}()
	}
	wg.Wait()

	s, err := c.GetSeries(ctx, *d.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, 1, successes)
	assert.Equal(t, 2, s.CurrentGame)
}

func TestHandleDraftCompleted_AutoAdvances(t *testing.T) {
	c, o, pub := newTestCoordinator(t)
	o.OnDraftCompleted(c.HandleDraftCompleted)
	ctx := context.Background()
	d := createBestOf(t, c, 3)

	playOut(t, o, d.DraftID, "g1", nil)

	s, err := c.GetSeries(ctx, *d.SeriesID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentGame)
	assert.Equal(t, "Blue Side", s.BlueTeamName)
	assert.Len(t, s.LockedChampionIDs, 10)
	require.Len(t, pub.seriesEvents(), 2)

	g2, err := o.Get(ctx, s.CurrentDraftID)
	require.NoError(t, err)
	assert.Equal(t, engine.TeamBlue, g2.FirstPickTeam)

	playOut(t, o, g2.DraftID, "g2", nil)
	playOut(t, o, mustSeries(t, c, *d.SeriesID).CurrentDraftID, "g3", nil)

	final := mustSeries(t, c, *d.SeriesID)
	assert.Equal(t, 3, final.CurrentGame)
	assert.True(t, final.IsComplete())
	assert.Len(t, pub.seriesEvents(), 3)
}

func TestHandleDraftCompleted_IgnoresSingleDrafts(t *testing.T) {
	c, o, pub := newTestCoordinator(t)
	o.OnDraftCompleted(c.HandleDraftCompleted)

	d, err := o.CreateDraft(context.Background(), orchestrator.CreateDraftRequest{BlueTeamName: "A", RedTeamName: "B", FirstPickTeam: engine.TeamRed})
	require.NoError(t, err)
	playOut(t, o, d.DraftID, "solo", nil)

	assert.Empty(t, pub.seriesEvents())
}

func mustSeries(t *testing.T, c *Coordinator, id string) SeriesState {
	t.Helper()
	s, err := c.GetSeries(context.Background(), id)
	require.NoError(t, err)
	return s
}
