// Package api provides the HTTP REST API for FleetCore.
//
// It exposes broker session management, device registry operations, and
// latest-value telemetry reads to operator tooling.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tessera-iot/fleetcore/internal/audit"
	"github.com/tessera-iot/fleetcore/internal/auth"
	"github.com/tessera-iot/fleetcore/internal/broker"
	"github.com/tessera-iot/fleetcore/internal/device"
	"github.com/tessera-iot/fleetcore/internal/docstore"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/config"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionController is the slice of the orchestrator the API needs.
// Defined here so handler tests can substitute a fake without a live
// MQTT transport.
type SessionController interface {
	Connect(ctx context.Context, brokerID string) error
	Disconnect(brokerID string) error
	Enqueue(brokerID string, cmd broker.Command) error
}

// HealthChecker reports whether a backing store is reachable.
// Satisfied by database.DB and docstore.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SessionCounter reports how many broker sessions are live.
// Satisfied by broker.Registry.
type SessionCounter interface {
	Count() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Brokers  broker.Repository
	Devices  device.Repository
	Records  docstore.Store
	Sessions SessionController
	Sync     *broker.Synchronizer
	Audit    audit.Repository
	DB       HealthChecker  // optional: reported by the health endpoint
	DocStore HealthChecker  // optional: reported by the health endpoint
	Registry SessionCounter // optional: live session count for the health endpoint
	Version  string
}

// Server is the HTTP API server for FleetCore.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	auth     *auth.Service
	brokers  broker.Repository
	devices  device.Repository
	records  docstore.Store
	sessions SessionController
	sync     *broker.Synchronizer
	audit    audit.Repository
	db       HealthChecker
	docstore HealthChecker
	registry SessionCounter
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, auth, repositories, sessions)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Brokers == nil {
		return nil, fmt.Errorf("broker repository is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session controller is required")
	}

	return &Server{
		cfg:      deps.Config,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		auth:     deps.Auth,
		brokers:  deps.Brokers,
		devices:  deps.Devices,
		records:  deps.Records,
		sessions: deps.Sessions,
		sync:     deps.Sync,
		audit:    deps.Audit,
		db:       deps.DB,
		docstore: deps.DocStore,
		registry: deps.Registry,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
