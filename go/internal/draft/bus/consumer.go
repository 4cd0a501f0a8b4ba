package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// CommandHandler applies an inbound client command. The orchestrator
// satisfies it.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd events.Command) (engine.DraftState, error)
}

// disposition is what the consumer does with a message once handled.
type disposition int

const (
	ack disposition = iota
	nak
)

// CommandConsumer feeds preview, action and ready commands published on the
// command subject into the orchestrator.
type CommandConsumer struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	handler  CommandHandler
	config   Config
}

func NewCommandConsumer(ctx context.Context, js jetstream.JetStream, handler CommandHandler, cfg Config) (*CommandConsumer, error) {
	c := &CommandConsumer{js: js, handler: handler, config: cfg}
	if err := c.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

// ensureConsumer creates or gets the durable command consumer
func (c *CommandConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Draft command consumer",
		FilterSubject: fmt.Sprintf("%s.>", c.config.CommandSubject),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Str("consumer", c.config.ConsumerName).Msg("created JetStream command consumer")
	} else {
		log.Info().Str("consumer", c.config.ConsumerName).Msg("using existing JetStream command consumer")
	}

	c.consumer = consumer
	return nil
}

// Run consumes commands until ctx is cancelled.
func (c *CommandConsumer) Run(ctx context.Context) error {
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		switch c.process(ctx, msg.Subject(), msg.Data()) {
		case nak:
			if err := msg.Nak(); err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject()).Msg("failed to nak command")
			}
		default:
			if err := msg.Ack(); err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject()).Msg("failed to ack command")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("subject", c.config.CommandSubject).Msg("command consumer started")
	<-ctx.Done()
	log.Info().Msg("command consumer stopped")
	return nil
}

// process handles one command message. Rejections are final and acked; only
// internal failures are redelivered.
func (c *CommandConsumer) process(ctx context.Context, subject string, data []byte) disposition {
	cmd, err := decodeCommand(subject, c.config.CommandSubject, data)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("dropping malformed command")
		return ack
	}

	_, err = c.handler.HandleCommand(ctx, cmd)
	if err == nil {
		return ack
	}

	code := orchestrator.ErrorCode(err)
	if code == orchestrator.CodeInternal {
		log.Error().Err(err).Str("draft_id", cmd.DraftID).Str("command", cmd.Type).Msg("command failed, requesting redelivery")
		return nak
	}

	log.Info().
		Err(err).
		Str("draft_id", cmd.DraftID).
		Str("command", cmd.Type).
		Str("team", cmd.Team).
		Str("code", code).
		Msg("command rejected")
	return ack
}

var errMalformedCommand = errors.New("malformed command")

// decodeCommand parses a command. The draft id falls back to the subject
// token after prefix when the body omits it.
func decodeCommand(subject, prefix string, data []byte) (events.Command, error) {
	var cmd events.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return events.Command{}, fmt.Errorf("%w: %v", errMalformedCommand, err)
	}

	if cmd.DraftID == "" {
		if id, ok := strings.CutPrefix(subject, prefix+"."); ok && !strings.Contains(id, ".") {
			cmd.DraftID = id
		}
	}
	if cmd.DraftID == "" {
		return events.Command{}, fmt.Errorf("%w: missing draft id", errMalformedCommand)
	}
	if cmd.Type == "" {
		return events.Command{}, fmt.Errorf("%w: missing command type", errMalformedCommand)
	}
	return cmd, nil
}
