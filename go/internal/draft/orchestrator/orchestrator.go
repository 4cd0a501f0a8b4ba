package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTurnDuration = 30 * time.Second
	defaultNumWorkers   = 4
)

// Publisher pushes draft snapshots to subscribers of the draft's channel.
// Implementations must not block.
type Publisher interface {
	PublishDraft(ctx context.Context, state engine.DraftState) error
}

// CompletionHook is called once a draft reaches COMPLETE, after the draft's
// lock has been released.
type CompletionHook func(ctx context.Context, state engine.DraftState)

// Config tunes turn timing and the timeout worker pool.
type Config struct {
	TurnDuration time.Duration
	NumWorkers   int
	QueueSize    int
}

// CreateDraftRequest describes a standalone draft.
type CreateDraftRequest struct {
	BlueTeamName  string      `json:"blueTeamName"`
	RedTeamName   string      `json:"redTeamName"`
	FirstPickTeam engine.Team `json:"firstPickTeam"`
}

// Summary is a light view of a stored draft.
type Summary struct {
	DraftID    string       `json:"draftId"`
	Phase      engine.Phase `json:"phase"`
	Step       int          `json:"step"`
	Mode       engine.Mode  `json:"mode"`
	SeriesID   *string      `json:"seriesId,omitempty"`
	GameNumber int          `json:"gameNumber"`
}

type Orchestrator struct {
	store     *Store
	timer     *TurnTimer
	publisher Publisher
	clock     clockwork.Clock

	stratMu sync.RWMutex
	strat   AutoActionStrategy

	turnSeconds int
	instanceID  string // short id for logging

	numWorkers int
	workCh     chan TimeoutJob
	quit       chan struct{}
	quitOnce   sync.Once

	hooksMu sync.RWMutex
	hooks   []CompletionHook
}

// New creates an orchestrator. Call Run to start processing turn timeouts.
func New(cfg Config, publisher Publisher, clock clockwork.Clock) *Orchestrator {
	if cfg.TurnDuration <= 0 {
		cfg.TurnDuration = DefaultTurnDuration
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = defaultNumWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.NumWorkers * 2
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	o := &Orchestrator{
		store:       NewStore(),
		publisher:   publisher,
		clock:       clock,
		strat:       PreviewStrategy{},
		turnSeconds: int(cfg.TurnDuration / time.Second),
		instanceID:  uuid.New().String()[:8],
		numWorkers:  cfg.NumWorkers,
		workCh:      make(chan TimeoutJob, cfg.QueueSize),
		quit:        make(chan struct{}),
	}
	if o.turnSeconds <= 0 {
		o.turnSeconds = int(DefaultTurnDuration / time.Second)
	}
	o.timer = NewTurnTimer(clock, o.enqueue)
	return o
}

// SetStrategy replaces the auto action strategy used on timeouts. It is safe
// to call while timeouts are being processed.
func (o *Orchestrator) SetStrategy(strat AutoActionStrategy) {
	o.stratMu.Lock()
	defer o.stratMu.Unlock()
	o.strat = strat
}

func (o *Orchestrator) strategy() AutoActionStrategy {
	o.stratMu.RLock()
	defer o.stratMu.RUnlock()
	return o.strat
}

// OnDraftCompleted registers a hook run whenever a draft completes.
func (o *Orchestrator) OnDraftCompleted(hook CompletionHook) {
	o.hooksMu.Lock()
	defer o.hooksMu.Unlock()
	o.hooks = append(o.hooks, hook)
}

// Timer exposes the turn timer, mainly for inspection.
func (o *Orchestrator) Timer() *TurnTimer {
	return o.timer
}

// TurnDurationSeconds is the length of every turn.
func (o *Orchestrator) TurnDurationSeconds() int {
	return o.turnSeconds
}

// CreateDraft creates and stores a standalone draft. The turn clock is not
// started until both teams are ready.
func (o *Orchestrator) CreateDraft(ctx context.Context, req CreateDraftRequest) (engine.DraftState, error) {
	blue := strings.TrimSpace(req.BlueTeamName)
	red := strings.TrimSpace(req.RedTeamName)
	if blue == "" || red == "" {
		return engine.DraftState{}, fmt.Errorf("%w: team names are required", ErrInvalidRequest)
	}
	if !req.FirstPickTeam.Valid() {
		return engine.DraftState{}, fmt.Errorf("%w: first pick team must be BLUE or RED", ErrInvalidRequest)
	}

	state := engine.NewDraftState(engine.DraftParams{
		DraftID:       uuid.New().String(),
		BlueTeamName:  blue,
		RedTeamName:   red,
		FirstPickTeam: req.FirstPickTeam,
		Mode:          engine.ModeSingle,
		GameNumber:    1,
	})

	o.store.Put(state)
	published := o.publish(ctx, state)

	log.Info().
		Str("draft_id", state.DraftID).
		Str("first_pick", string(state.FirstPickTeam)).
		Msg("draft created")

	return published, nil
}

// RegisterDraft stores a draft built elsewhere, such as the next game of a
// series, and publishes it.
func (o *Orchestrator) RegisterDraft(ctx context.Context, state engine.DraftState) (engine.DraftState, error) {
	if strings.TrimSpace(state.DraftID) == "" {
		return engine.DraftState{}, fmt.Errorf("%w: draft id is required", ErrInvalidRequest)
	}

	state = state.WithTiming(state.TurnStartedAt, state.TurnDurationSeconds)
	o.store.Put(state)
	o.timer.Schedule(state)
	published := o.publish(ctx, state)

	log.Info().
		Str("draft_id", state.DraftID).
		Str("mode", string(state.Mode)).
		Int("game_number", state.GameNumber).
		Msg("draft registered")

	return published, nil
}

// Get returns the current snapshot with the server clock fields filled.
func (o *Orchestrator) Get(ctx context.Context, draftID string) (engine.DraftState, error) {
	state, ok := o.store.Get(draftID)
	if !ok {
		return engine.DraftState{}, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	return state.ForClient(o.nowMillis()), nil
}

// ActiveDrafts lists every stored draft.
func (o *Orchestrator) ActiveDrafts(ctx context.Context) []Summary {
	ids := o.store.IDs()
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		s, ok := o.store.Get(id)
		if !ok {
			continue
		}
		out = append(out, Summary{
			DraftID:    s.DraftID,
			Phase:      s.Phase,
			Step:       s.Step,
			Mode:       s.Mode,
			SeriesID:   s.SeriesID,
			GameNumber: s.GameNumber,
		})
	}
	return out
}

// StartDraft starts the turn clock once both teams are ready. It is a no-op
// for drafts that are complete, already running, or not yet ready.
func (o *Orchestrator) StartDraft(ctx context.Context, draftID string) (engine.DraftState, error) {
	return o.mutate(ctx, draftID, func(s engine.DraftState) (engine.DraftState, outcome, error) {
		if s.IsComplete() || s.IsStarted() || !s.BothReady() {
			return s, unchanged, nil
		}
		return o.stamp(s), rearm, nil
	})
}

// SetReady records a team's ready flag. Once both flags are set the turn
// clock starts. Readiness cannot change after the draft has started.
func (o *Orchestrator) SetReady(ctx context.Context, draftID string, team engine.Team, ready bool) (engine.DraftState, error) {
	if !team.Valid() {
		return engine.DraftState{}, fmt.Errorf("%w: unknown team %q", ErrInvalidRequest, team)
	}
	return o.mutate(ctx, draftID, func(s engine.DraftState) (engine.DraftState, outcome, error) {
		if s.IsComplete() || s.IsStarted() {
			return s, unchanged, nil
		}
		next := s.WithReady(team, ready)
		if next.BothReady() {
			return o.stamp(next), rearm, nil
		}
		return next, updated, nil
	})
}

// SetPreview records the champion a team is hovering during a running draft.
func (o *Orchestrator) SetPreview(ctx context.Context, draftID string, team engine.Team, championID string) (engine.DraftState, error) {
	if !team.Valid() {
		return engine.DraftState{}, fmt.Errorf("%w: unknown team %q", ErrInvalidRequest, team)
	}
	return o.mutate(ctx, draftID, func(s engine.DraftState) (engine.DraftState, outcome, error) {
		if s.IsComplete() || !s.IsStarted() {
			return s, unchanged, nil
		}
		return engine.SetPreview(s, team, championID), updated, nil
	})
}

// ApplyAction resolves the current turn with action. Rule violations are
// returned and leave the draft untouched.
func (o *Orchestrator) ApplyAction(ctx context.Context, draftID string, action engine.Action) (engine.DraftState, error) {
	action.DraftID = draftID
	return o.mutate(ctx, draftID, func(s engine.DraftState) (engine.DraftState, outcome, error) {
		if s.IsComplete() || !s.IsStarted() {
			return s, unchanged, nil
		}
		next, err := engine.ResolveTurn(s, action)
		if err != nil {
			return s, unchanged, err
		}
		return o.stamp(next), rearm, nil
	})
}

// OnTurnTimeout resolves an expired turn. Jobs captured for a turn that has
// since been resolved, or for a draft that no longer exists, are ignored.
func (o *Orchestrator) OnTurnTimeout(ctx context.Context, job TimeoutJob) error {
	_, err := o.mutate(ctx, job.DraftID, func(s engine.DraftState) (engine.DraftState, outcome, error) {
		if s.IsComplete() || s.Turn == nil {
			return s, unchanged, nil
		}
		if s.Phase != job.Phase || s.Step != job.Step || s.TurnStartedAt != job.StartedAt {
			log.Debug().
				Str("draft_id", job.DraftID).
				Int("step", job.Step).
				Int("live_step", s.Step).
				Msg("stale turn timeout ignored")
			return s, unchanged, nil
		}

		team := *s.Turn
		choice := o.strategy().Choose(s, team)
		next, err := engine.ResolveTurn(s, engine.Action{DraftID: s.DraftID, Team: team, Champion: choice})
		if err != nil && !choice.IsSkipped() {
			log.Info().
				Err(err).
				Str("draft_id", s.DraftID).
				Str("team", string(team)).
				Str("champion_id", choice.String()).
				Msg("preview rejected on timeout, skipping turn")
			next, err = engine.ResolveTurn(s, engine.Action{DraftID: s.DraftID, Team: team, Champion: engine.Skipped()})
		}
		if err != nil {
			return s, unchanged, err
		}

		log.Info().
			Str("draft_id", s.DraftID).
			Str("team", string(team)).
			Str("phase", string(s.Phase)).
			Int("step", s.Step).
			Str("champion_id", choice.String()).
			Msg("turn timed out, auto action applied")

		return o.stamp(next), rearm, nil
	})
	if errors.Is(err, ErrDraftNotFound) {
		log.Debug().Str("draft_id", job.DraftID).Msg("turn timeout for unknown draft ignored")
		return nil
	}
	return err
}

type outcome int

const (
	unchanged outcome = iota
	updated
	rearm
)

// mutate runs fn under the draft's lock. Changed snapshots are stored and
// published before the lock is released; completion hooks run after.
func (o *Orchestrator) mutate(ctx context.Context, draftID string, fn func(engine.DraftState) (engine.DraftState, outcome, error)) (engine.DraftState, error) {
	entry, ok := o.store.lock(draftID)
	if !ok {
		return engine.DraftState{}, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}

	prev := entry.state
	next, result, err := fn(prev.Clone())
	if err != nil {
		entry.mu.Unlock()
		if !engine.IsValidation(err) {
			log.Error().Err(err).Str("draft_id", draftID).Int("step", prev.Step).Msg("draft mutation failed")
		}
		return prev.ForClient(o.nowMillis()), err
	}
	if result == unchanged {
		entry.mu.Unlock()
		return prev.ForClient(o.nowMillis()), nil
	}

	entry.state = next
	if result == rearm {
		o.timer.Schedule(next)
	}
	published := o.publish(ctx, next)
	entry.mu.Unlock()

	if next.IsComplete() && !prev.IsComplete() {
		log.Info().Str("draft_id", draftID).Msg("draft completed")
		o.runHooks(ctx, next)
	}
	return published, nil
}

// stamp restarts the turn clock, or clears it once the draft is complete.
func (o *Orchestrator) stamp(s engine.DraftState) engine.DraftState {
	if s.IsComplete() {
		return s.WithTiming(0, 0)
	}
	return s.WithTiming(o.nowMillis(), o.turnSeconds)
}

func (o *Orchestrator) publish(ctx context.Context, state engine.DraftState) engine.DraftState {
	out := state.ForClient(o.nowMillis())
	if o.publisher == nil {
		return out
	}
	if err := o.publisher.PublishDraft(ctx, out); err != nil {
		log.Warn().Err(err).Str("draft_id", state.DraftID).Msg("failed to publish draft state")
	}
	return out
}

func (o *Orchestrator) runHooks(ctx context.Context, state engine.DraftState) {
	o.hooksMu.RLock()
	hooks := make([]CompletionHook, len(o.hooks))
	copy(hooks, o.hooks)
	o.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, state.Clone())
	}
}

func (o *Orchestrator) nowMillis() int64 {
	return o.clock.Now().UnixMilli()
}
