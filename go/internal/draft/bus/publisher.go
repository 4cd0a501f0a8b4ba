package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamPublisher publishes draft snapshots and series events to JetStream.
// Publishing is asynchronous so it never blocks a draft mutation.
type JetStreamPublisher struct {
	js     jetstream.JetStream
	config Config
	now    func() time.Time
}

func NewJetStreamPublisher(ctx context.Context, js jetstream.JetStream, cfg Config) (*JetStreamPublisher, error) {
	p := &JetStreamPublisher{js: js, config: cfg, now: time.Now}
	if err := p.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *JetStreamPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Fearless draft snapshots, series events and client commands",
		Subjects: []string{
			fmt.Sprintf("%s.>", p.config.SubjectPrefix),
			fmt.Sprintf("%s.>", p.config.CommandSubject),
		},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     p.config.MaxAge,
		Storage:    jetstream.FileStorage,
		Replicas:   1,
		Duplicates: p.config.DuplicateWindow,
	}
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := p.streamConfig()

	if _, err := p.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().
		Str("stream", sc.Name).
		Strs("subjects", sc.Subjects).
		Msg("JetStream stream ready")
	return nil
}

// PublishDraft implements orchestrator.Publisher.
func (p *JetStreamPublisher) PublishDraft(ctx context.Context, state engine.DraftState) error {
	msg, err := p.draftMessage(state)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

// PublishSeries implements series.Publisher.
func (p *JetStreamPublisher) PublishSeries(ctx context.Context, event events.SeriesDraftCreatedPayload) error {
	msg, err := p.seriesMessage(event)
	if err != nil {
		return err
	}
	return p.publish(msg)
}

func (p *JetStreamPublisher) publish(msg *nats.Msg) error {
	if _, err := p.js.PublishMsgAsync(msg, jetstream.WithMsgID(msg.Header.Get("Event-ID"))); err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", msg.Header.Get("Event-ID")).
		Msg("published to JetStream")
	return nil
}

func (p *JetStreamPublisher) draftMessage(state engine.DraftState) (*nats.Msg, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal draft state: %w", err)
	}
	env := events.Envelope{
		EventID:   uuid.New().String(),
		EventType: events.EventTypeDraftState,
		DraftID:   state.DraftID,
		Timestamp: p.now().UTC(),
		Payload:   payload,
	}
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, events.DraftChannel(state.DraftID))
	return newMessage(subject, env)
}

func (p *JetStreamPublisher) seriesMessage(event events.SeriesDraftCreatedPayload) (*nats.Msg, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal series event: %w", err)
	}
	env := events.Envelope{
		EventID:   uuid.New().String(),
		EventType: event.Type,
		DraftID:   event.DraftID,
		SeriesID:  event.SeriesID,
		Timestamp: p.now().UTC(),
		Payload:   payload,
	}
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, events.SeriesChannel(event.SeriesID))
	return newMessage(subject, env)
}

func newMessage(subject string, env events.Envelope) (*nats.Msg, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Event-Type", env.EventType)
	msg.Header.Set("Event-ID", env.EventID)
	if env.DraftID != "" {
		msg.Header.Set("Draft-ID", env.DraftID)
	}
	if env.SeriesID != "" {
		msg.Header.Set("Series-ID", env.SeriesID)
	}
	return msg, nil
}
