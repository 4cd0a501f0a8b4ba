package orchestrator

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/rs/zerolog/log"
)

// TimeoutJob identifies the turn a timer was armed for. OnTurnTimeout only
// acts when the live draft still matches all three fields.
type TimeoutJob struct {
	DraftID   string
	Phase     engine.Phase
	Step      int
	StartedAt int64
}

type armedTimer struct {
	timer clockwork.Timer
	done  chan struct{}
	job   TimeoutJob
}

// TurnTimer keeps at most one outstanding turn timer per draft.
type TurnTimer struct {
	clock clockwork.Clock
	fire  func(TimeoutJob)

	mu     sync.Mutex
	timers map[string]*armedTimer
}

// NewTurnTimer returns a timer that calls fire with the captured job when a
// turn expires. fire runs on the timer's goroutine.
func NewTurnTimer(clock clockwork.Clock, fire func(TimeoutJob)) *TurnTimer {
	return &TurnTimer{
		clock:  clock,
		fire:   fire,
		timers: make(map[string]*armedTimer),
	}
}

// Schedule cancels any timer for the draft and, if its turn clock is
// running, arms a new one for the remaining turn time.
func (t *TurnTimer) Schedule(state engine.DraftState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked(state.DraftID)

	if state.IsComplete() || !state.IsStarted() {
		return
	}

	delay := time.Duration(state.TurnEndsAtMillis()-t.clock.Now().UnixMilli()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	armed := &armedTimer{
		timer: t.clock.NewTimer(delay),
		done:  make(chan struct{}),
		job: TimeoutJob{
			DraftID:   state.DraftID,
			Phase:     state.Phase,
			Step:      state.Step,
			StartedAt: state.TurnStartedAt,
		},
	}
	t.timers[state.DraftID] = armed

	go t.wait(armed)

	log.Debug().
		Str("draft_id", state.DraftID).
		Str("phase", string(state.Phase)).
		Int("step", state.Step).
		Dur("duration", delay).
		Msg("scheduled turn timer")
}

// Cancel stops the draft's timer. It is a no-op when none is armed or the
// timer already fired.
func (t *TurnTimer) Cancel(draftID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked(draftID)
}

// Pending reports whether a timer is armed for the draft.
func (t *TurnTimer) Pending(draftID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[draftID]
	return ok
}

// Len returns the number of armed timers.
func (t *TurnTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels every armed timer.
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.timers {
		t.cancelLocked(id)
		log.Debug().Str("draft_id", id).Msg("cancelled timer on shutdown")
	}
}

func (t *TurnTimer) wait(armed *armedTimer) {
	select {
	case <-armed.timer.Chan():
		t.mu.Lock()
		if t.timers[armed.job.DraftID] == armed {
			delete(t.timers, armed.job.DraftID)
		}
		t.mu.Unlock()

		log.Debug().
			Str("draft_id", armed.job.DraftID).
			Int("step", armed.job.Step).
			Msg("turn timer fired")
		t.fire(armed.job)
	case <-armed.done:
	}
}

func (t *TurnTimer) cancelLocked(draftID string) {
	armed, ok := t.timers[draftID]
	if !ok {
		return
	}
	stopAndDrainTimer(armed.timer)
	close(armed.done)
	delete(t.timers, draftID)
	log.Debug().Str("draft_id", draftID).Msg("cancelled turn timer")
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
