package gateway

import (
	"context"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
)

// Publisher pushes draft snapshots and series events to WebSocket
// subscribers. It never blocks; messages are dropped when the queue is full.
type Publisher struct {
	cm *ConnectionManager
}

func NewPublisher(cm *ConnectionManager) *Publisher {
	return &Publisher{cm: cm}
}

func (p *Publisher) PublishDraft(_ context.Context, state engine.DraftState) error {
	p.cm.BroadcastToChannel(events.DraftChannel(state.DraftID), state)
	return nil
}

func (p *Publisher) PublishSeries(_ context.Context, event events.SeriesDraftCreatedPayload) error {
	p.cm.BroadcastToChannel(events.SeriesChannel(event.SeriesID), event)
	return nil
}
