package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds the NATS connection, stream and consumer settings.
type Config struct {
	URL            string
	StreamName     string
	SubjectPrefix  string // events go to <prefix>.draft.<id> and <prefix>.series.<id>
	CommandSubject string // commands arrive on <subject>.<draftId>
	ConsumerName   string

	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	DuplicateWindow time.Duration // Window for duplicate detection
	MaxPending      int           // Max in-flight async publishes

	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "FEARLESS_DRAFT",
		SubjectPrefix:   "fearless.events",
		CommandSubject:  "fearless.commands",
		ConsumerName:    "fearless-commands",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		MaxPending:      4096,
		MaxDeliver:      5,
		AckWait:         30 * time.Second,
		MaxAckPending:   256,
	}
}

// Connect opens a NATS connection and a JetStream context. Failed async
// publishes are logged.
func Connect(cfg Config) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("fearless-draft"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(cfg.MaxPending),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Str("event_id", msg.Header.Get(nats.MsgIdHdr)).
				Msg("async publish to JetStream failed")
		}),
	)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}
