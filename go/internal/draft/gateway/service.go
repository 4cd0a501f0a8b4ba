package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the draft gateway: it pushes snapshots and series events to
// WebSocket clients and accepts their commands.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	publisher         *Publisher
}

// Config holds configuration for the draft gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the draft gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new draft gateway service
func NewService(config Config, drafts DraftBackend, series SeriesBackend) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, drafts, series),
		stateHandler:      NewStateHandler(drafts, series),
		publisher:         NewPublisher(connectionManager),
	}
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting draft gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("draft gateway service stopped")
	return nil
}

// Publisher returns the publisher that feeds WebSocket subscribers.
func (s *Service) Publisher() *Publisher {
	return s.publisher
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("draft gateway routes registered")
}

// GetStats returns statistics about active connections
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
