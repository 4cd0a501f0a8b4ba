package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// mockPublisher records every published snapshot.
type mockPublisher struct {
	mu     sync.Mutex
	states []engine.DraftState
	err    error
}

func (m *mockPublisher) PublishDraft(_ context.Context, state engine.DraftState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return m.err
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

func (m *mockPublisher) last() engine.DraftState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[len(m.states)-1]
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *mockPublisher, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	pub := &mockPublisher{}
	o := New(Config{TurnDuration: 30 * time.Second, NumWorkers: 2}, pub, clock)
	t.Cleanup(o.timer.Stop)
	return o, pub, clock
}

func createDraft(t *testing.T, o *Orchestrator) engine.DraftState {
	t.Helper()
	s, err := o.CreateDraft(context.Background(), CreateDraftRequest{
		BlueTeamName:  "Blue Side",
		RedTeamName:   "Red Side",
		FirstPickTeam: engine.TeamBlue,
	})
	require.NoError(t, err)
	return s
}

func startedDraft(t *testing.T, o *Orchestrator) engine.DraftState {
	t.Helper()
	s := createDraft(t, o)
	ctx := context.Background()
	_, err := o.SetReady(ctx, s.DraftID, engine.TeamBlue, true)
	require.NoError(t, err)
	s, err = o.SetReady(ctx, s.DraftID, engine.TeamRed, true)
	require.NoError(t, err)
	require.True(t, s.IsStarted())
	return s
}

func jobFor(s engine.DraftState) TimeoutJob {
	return TimeoutJob{DraftID: s.DraftID, Phase: s.Phase, Step: s.Step, StartedAt: s.TurnStartedAt}
}

func TestCreateDraft(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)

	s := createDraft(t, o)

	assert.NotEmpty(t, s.DraftID)
	assert.Equal(t, engine.ModeSingle, s.Mode)
	assert.Equal(t, 1, s.GameNumber)
	assert.False(t, s.IsStarted())
	assert.False(t, o.timer.Pending(s.DraftID))
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, testEpoch.UnixMilli(), pub.last().ServerNow)
}

func TestCreateDraft_InvalidRequest(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.CreateDraft(ctx, CreateDraftRequest{BlueTeamName: " ", RedTeamName: "Red", FirstPickTeam: engine.TeamBlue})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.CreateDraft(ctx, CreateDraftRequest{BlueTeamName: "Blue", RedTeamName: "Red"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, pub.count())
}

func TestGet_NotFound(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	_, err := o.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDraftNotFound)

	_, err = o.ApplyAction(context.Background(), "missing", engine.Action{Team: engine.TeamBlue})
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestReadyCheck_StartsDraftOnce(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := createDraft(t, o)

	s, err := o.SetReady(ctx, s.DraftID, engine.TeamBlue, true)
	require.NoError(t, err)
	assert.True(t, s.BlueReady)
	assert.False(t, s.IsStarted())
	assert.Zero(t, o.timer.Len())

	s, err = o.SetReady(ctx, s.DraftID, engine.TeamRed, true)
	require.NoError(t, err)
	assert.True(t, s.IsStarted())
	assert.Equal(t, testEpoch.UnixMilli(), s.TurnStartedAt)
	assert.Equal(t, 30, s.TurnDurationSeconds)
	assert.Equal(t, 1, o.timer.Len())
	published := pub.count()

	s, err = o.SetReady(ctx, s.DraftID, engine.TeamBlue, false)
	require.NoError(t, err)
	assert.True(t, s.BlueReady, "readiness is frozen once started")
	assert.Equal(t, published, pub.count())
	assert.Equal(t, 1, o.timer.Len())
}

func TestStartDraft(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := createDraft(t, o)

	s, err := o.StartDraft(ctx, s.DraftID)
	require.NoError(t, err)
	assert.False(t, s.IsStarted(), "not started without both ready flags")

	s = startedDraft(t, o)
	started := s.TurnStartedAt
	s, err = o.StartDraft(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, started, s.TurnStartedAt)
}

func TestApplyAction_IgnoredBeforeStart(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	s := createDraft(t, o)

	s, err := o.ApplyAction(context.Background(), s.DraftID, engine.Action{Team: engine.TeamBlue, Champion: engine.Picked("Ahri")})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Step)
	assert.Equal(t, 1, pub.count())
}

func TestApplyAction_AdvancesAndRearms(t *testing.T) {
	o, pub, clock := newTestOrchestrator(t)
	ctx := context.Background()
	s := startedDraft(t, o)
	require.NoError(t, func() error {
		_, err := o.SetPreview(ctx, s.DraftID, engine.TeamBlue, "Zed")
		return err
	}())

	clock.Advance(5 * time.Second)
	s, err := o.ApplyAction(ctx, s.DraftID, engine.Action{Team: engine.TeamBlue, Champion: engine.Picked("Ahri")})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Step)
	assert.Equal(t, []engine.Selection{engine.Picked("Ahri")}, s.Bans)
	assert.NotContains(t, s.Previews, engine.TeamBlue)
	assert.Equal(t, testEpoch.Add(5*time.Second).UnixMilli(), s.TurnStartedAt)
	assert.True(t, o.timer.Pending(s.DraftID))

	last := pub.last()
	assert.Equal(t, s.TurnStartedAt, last.ServerNow)
	assert.Equal(t, s.TurnStartedAt+30_000, last.TurnEndsAt)

	stored, ok := o.store.Get(s.DraftID)
	require.True(t, ok)
	assert.Zero(t, stored.ServerNow)
	assert.Zero(t, stored.TurnEndsAt)
}

func TestApplyAction_RejectedLeavesDraftUntouched(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	s := startedDraft(t, o)
	published := pub.count()

	_, err := o.ApplyAction(context.Background(), s.DraftID, engine.Action{Team: engine.TeamRed, Champion: engine.Picked("Ahri")})
	require.ErrorIs(t, err, engine.ErrWrongTurn)

	got, err := o.Get(context.Background(), s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Step)
	assert.Equal(t, s.TurnStartedAt, got.TurnStartedAt)
	assert.Equal(t, published, pub.count())
}

func TestApplyAction_ConcurrentSubmissionsLinearize(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	s := startedDraft(t, o)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.ApplyAction(context.Background(), s.DraftID, engine.Action{
				Team:     engine.TeamBlue,
				Champion: engine.Picked(string(rune('a' + i))),
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, engine.ErrWrongTurn)
		}(i)
	}
	wg.Wait()

	got, err := o.Get(context.Background(), s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, got.Step)
	assert.Len(t, got.Bans, 1)
}

func TestSetPreview(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := createDraft(t, o)

	s, err := o.SetPreview(ctx, s.DraftID, engine.TeamBlue, "Ahri")
	require.NoError(t, err)
	assert.Empty(t, s.Previews, "previews are ignored before the draft starts")

	s = startedDraft(t, o)
	before := pub.count()
	s, err = o.SetPreview(ctx, s.DraftID, engine.TeamRed, "Lux")
	require.NoError(t, err)
	assert.Equal(t, "Lux", s.Previews[engine.TeamRed])
	assert.Equal(t, before+1, pub.count())
}

func TestOnTurnTimeout_UsesPreview(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := startedDraft(t, o)

	s, err := o.SetPreview(ctx, s.DraftID, engine.TeamBlue, "Ahri")
	require.NoError(t, err)

	require.NoError(t, o.OnTurnTimeout(ctx, jobFor(s)))

	got, err := o.Get(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, []engine.Selection{engine.Picked("Ahri")}, got.Bans)
	assert.NotContains(t, got.Previews, engine.TeamBlue)
}

func TestOnTurnTimeout_SkipsWithoutPreview(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := startedDraft(t, o)

	require.NoError(t, o.OnTurnTimeout(ctx, jobFor(s)))

	got, err := o.Get(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Step)
	require.Len(t, got.Bans, 1)
	assert.True(t, got.Bans[0].IsSkipped())
}

func TestOnTurnTimeout_RejectedPreviewFallsBackToSkip(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := startedDraft(t, o)

	s, err := o.ApplyAction(ctx, s.DraftID, engine.Action{Team: engine.TeamBlue, Champion: engine.Picked("Ahri")})
	require.NoError(t, err)
	s, err = o.SetPreview(ctx, s.DraftID, engine.TeamRed, "Ahri")
	require.NoError(t, err)

	require.NoError(t, o.OnTurnTimeout(ctx, jobFor(s)))

	got, err := o.Get(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Step)
	assert.Equal(t, []engine.Selection{engine.Picked("Ahri"), engine.Skipped()}, got.Bans)
	assert.NotContains(t, got.Previews, engine.TeamRed)
}

func TestOnTurnTimeout_StaleJobIgnored(t *testing.T) {
	o, pub, clock := newTestOrchestrator(t)
	ctx := context.Background()
	s := startedDraft(t, o)
	stale := jobFor(s)

	clock.Advance(time.Second)
	_, err := o.ApplyAction(ctx, s.DraftID, engine.Action{Team: engine.TeamBlue, Champion: engine.Picked("Ahri")})
	require.NoError(t, err)
	published := pub.count()

	require.NoError(t, o.OnTurnTimeout(ctx, stale))

	got, err := o.Get(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, published, pub.count())

	// Same step but an older start time is stale as well.
	stale = jobFor(got)
	stale.StartedAt--
	require.NoError(t, o.OnTurnTimeout(ctx, stale))
	got, err = o.Get(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Step)
}

func TestOnTurnTimeout_MissingDraftIsIgnored(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	err := o.OnTurnTimeout(context.Background(), TimeoutJob{DraftID: "missing", Phase: engine.PhaseBan})
	require.NoError(t, err)
	assert.Zero(t, pub.count())
	assert.Zero(t, o.timer.Len())
}

func TestSetStrategy_ConcurrentWithTimeouts(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := startedDraft(t, o)
	_, err := o.SetPreview(ctx, s.DraftID, engine.TeamBlue, "Ahri")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			o.SetStrategy(SkipStrategy{})
		}
	}()
	for i := 0; i < 5; i++ {
		live, err := o.Get(ctx, s.DraftID)
		require.NoError(t, err)
		require.NoError(t, o.OnTurnTimeout(ctx, jobFor(live)))
	}
	wg.Wait()

	o.SetStrategy(SkipStrategy{})
	live, err := o.Get(ctx, s.DraftID)
	require.NoError(t, err)
	assert.Equal(t, 5, live.Step)
	_, ok := o.strategy().(SkipStrategy)
	assert.True(t, ok)
}

func TestTimerFiresThroughWorkerPool(t *testing.T) {
	o, _, clock := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	s := startedDraft(t, o)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(30 * time.Second)

	assert.Eventually(t, func() bool {
		got, err := o.Get(context.Background(), s.DraftID)
		return err == nil && got.Step == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, err := o.Get(context.Background(), s.DraftID)
	require.NoError(t, err)
	require.Len(t, got.Bans, 1)
	assert.True(t, got.Bans[0].IsSkipped())
	assert.Equal(t, testEpoch.Add(30*time.Second).UnixMilli(), got.TurnStartedAt)
}

func TestCompletion(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	var mu sync.Mutex
	var completed []engine.DraftState
	o.OnDraftCompleted(func(_ context.Context, s engine.DraftState) {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, s)
	})

	s := startedDraft(t, o)
	for !s.IsComplete() {
		var err error
		s, err = o.ApplyAction(ctx, s.DraftID, engine.Action{Team: *s.Turn, Champion: engine.Skipped()})
		require.NoError(t, err)
	}

	assert.Nil(t, s.Turn)
	assert.Zero(t, s.TurnStartedAt)
	assert.Zero(t, s.TurnEndsAt)
	assert.False(t, o.timer.Pending(s.DraftID))

	s, err := o.ApplyAction(ctx, s.DraftID, engine.Action{Team: engine.TeamBlue, Champion: engine.Picked("Ahri")})
	require.NoError(t, err, "actions on a complete draft are ignored")
	assert.Equal(t, engine.TurnOrderLength, s.Step)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, 1)
	assert.Equal(t, s.DraftID, completed[0].DraftID)
}

func TestRegisterDraft(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	seriesID := "series-1"
	state := engine.NewDraftState(engine.DraftParams{
		DraftID:           "draft-2",
		BlueTeamName:      "Blue",
		RedTeamName:       "Red",
		FirstPickTeam:     engine.TeamRed,
		Mode:              engine.ModeFearlessSeries,
		SeriesID:          &seriesID,
		GameNumber:        2,
		LockedChampionIDs: []string{"Ahri"},
	})

	_, err := o.RegisterDraft(context.Background(), state)
	require.NoError(t, err)

	got, err := o.Get(context.Background(), "draft-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ahri"}, got.LockedChampionIDs)
	assert.Equal(t, 1, pub.count())

	summaries := o.ActiveDrafts(context.Background())
	require.Len(t, summaries, 1)
	assert.Equal(t, engine.ModeFearlessSeries, summaries[0].Mode)
	assert.Equal(t, 2, summaries[0].GameNumber)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	o, pub, _ := newTestOrchestrator(t)
	pub.err = errors.New("bus down")

	_, err := o.CreateDraft(context.Background(), CreateDraftRequest{BlueTeamName: "A", RedTeamName: "B", FirstPickTeam: engine.TeamBlue})
	assert.NoError(t, err)
}

func TestHandleCommand(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()
	s := createDraft(t, o)

	_, err := o.HandleCommand(ctx, events.Command{Type: "READY", DraftID: s.DraftID, Team: "blue", Ready: true})
	require.NoError(t, err)
	s, err = o.HandleCommand(ctx, events.Command{Type: "READY", DraftID: s.DraftID, Team: "RED", Ready: true})
	require.NoError(t, err)
	require.True(t, s.IsStarted())

	s, err = o.HandleCommand(ctx, events.Command{Type: "PREVIEW", DraftID: s.DraftID, Team: "BLUE", ChampionID: "Ahri"})
	require.NoError(t, err)
	assert.Equal(t, "Ahri", s.Previews[engine.TeamBlue])

	s, err = o.HandleCommand(ctx, events.Command{Type: "ACTION", DraftID: s.DraftID, Team: "BLUE", ChampionID: "NONE"})
	require.NoError(t, err)
	require.Len(t, s.Bans, 1)
	assert.True(t, s.Bans[0].IsSkipped())

	_, err = o.HandleCommand(ctx, events.Command{Type: "ACTION", DraftID: "missing", Team: "BLUE"})
	assert.ErrorIs(t, err, ErrDraftNotFound)

	_, err = o.HandleCommand(ctx, events.Command{Type: "ACTION", DraftID: s.DraftID, Team: "GREEN"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.HandleCommand(ctx, events.Command{Type: "CHAT", DraftID: s.DraftID, Team: "RED"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeNotFound, ErrorCode(ErrDraftNotFound))
	assert.Equal(t, CodeInvalidArgument, ErrorCode(engine.ErrChampionLocked))
	assert.Equal(t, CodeFailedPrecondition, ErrorCode(engine.ErrWrongTurn))
	assert.Equal(t, CodeInternal, ErrorCode(engine.ErrInvalidStep))
}
