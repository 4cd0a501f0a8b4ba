package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fearless/go/internal/draft"
	"github.com/mcdev12/fearless/go/internal/draft/bus"
	"github.com/mcdev12/fearless/go/internal/draft/gateway"
	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/mcdev12/fearless/go/internal/draft/series"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Series       *series.Coordinator
	Gateway      *gateway.Service
	Draft        *draft.Service

	// Nil unless NATS is enabled
	Commands *bus.CommandConsumer
	nc       *nats.Conn

	wg sync.WaitGroup
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Orchestrator and gateway depend on each other through the fanout:
	// the orchestrator publishes into it and the gateway joins it once built.
	fanout := bus.NewFanoutPublisher()

	orch := orchestrator.New(config.orchestratorConfig(), fanout, clockwork.NewRealClock())
	coordinator := series.NewCoordinator(orch, fanout)
	if config.Draft.SeriesAutoAdvance {
		orch.OnDraftCompleted(coordinator.HandleDraftCompleted)
	}

	gatewayService := gateway.NewService(config.gatewayConfig(), orch, coordinator)
	fanout.Add(gatewayService.Publisher())

	services := &Services{
		Orchestrator: orch,
		Series:       coordinator,
		Gateway:      gatewayService,
		Draft:        draft.NewService(orch, coordinator),
	}

	if config.NATS.Enabled {
		if err := services.setupBus(ctx, config.busConfig(), fanout); err != nil {
			return nil, err
		}
	}

	return services, nil
}

func (s *Services) setupBus(ctx context.Context, cfg bus.Config, fanout *bus.FanoutPublisher) error {
	nc, js, err := bus.Connect(cfg)
	if err != nil {
		return err
	}

	publisher, err := bus.NewJetStreamPublisher(ctx, js, cfg)
	if err != nil {
		nc.Close()
		return fmt.Errorf("setup event publisher: %w", err)
	}
	fanout.Add(publisher)

	commands, err := bus.NewCommandConsumer(ctx, js, s.Orchestrator, cfg)
	if err != nil {
		nc.Close()
		return fmt.Errorf("setup command consumer: %w", err)
	}

	s.nc = nc
	s.Commands = commands

	log.Info().
		Str("url", cfg.URL).
		Str("stream", cfg.StreamName).
		Msg("NATS bus enabled")
	return nil
}

// Run starts the background loops. They stop when ctx is cancelled.
func (s *Services) Run(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.Orchestrator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator stopped with error")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway stopped with error")
		}
	}()

	if s.Commands != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Commands.Run(ctx); err != nil {
				log.Error().Err(err).Msg("command consumer stopped with error")
			}
		}()
	}
}

// Close waits for the loops started by Run and drains the NATS connection.
func (s *Services) Close() {
	s.wg.Wait()
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
}
