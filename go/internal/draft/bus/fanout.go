package bus

import (
	"context"
	"errors"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
)

// Target receives both draft snapshots and series events.
type Target interface {
	PublishDraft(ctx context.Context, state engine.DraftState) error
	PublishSeries(ctx context.Context, event events.SeriesDraftCreatedPayload) error
}

// FanoutPublisher forwards every publish to all targets.
type FanoutPublisher struct {
	targets []Target
}

func NewFanoutPublisher(targets ...Target) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

// Add appends a target. Not safe for use once publishing has started.
func (f *FanoutPublisher) Add(t Target) {
	f.targets = append(f.targets, t)
}

func (f *FanoutPublisher) PublishDraft(ctx context.Context, state engine.DraftState) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.PublishDraft(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutPublisher) PublishSeries(ctx context.Context, event events.SeriesDraftCreatedPayload) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.PublishSeries(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
