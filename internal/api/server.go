package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/bridges/govee"
	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of the govee bridge the server inspects.
// This interface is satisfied by *govee.Bridge.
type Bridge interface {
	Running() bool
	DiscoveryComplete() bool
	Store() *entity.Store
	Boosted(id string) bool
	RefreshDeviceList()
	Usage() goveeapi.Usage
	CurrentIntervals() govee.Intervals
}

// MQTTSubscriber relays bridge publications to WebSocket clients.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  Bridge
	MQTT    MQTTSubscriber // optional; without it the state stream stays silent
	Topics  mqtt.Topics
	QoS     byte
	Version string
}

// Server is the diagnostics HTTP server.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	bridge  Bridge
	mqtt    MQTTSubscriber
	topics  mqtt.Topics
	qos     byte
	version string
	hub     *Hub

	startTime time.Time

	mu     sync.Mutex
	server *http.Server
	addr   string
	cancel context.CancelFunc
}

// New creates a new API server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		mqtt:      deps.MQTT,
		topics:    deps.Topics,
		qos:       deps.QoS,
		version:   deps.Version,
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
		startTime: time.Now(),
	}, nil
}

// Start binds the listener, subscribes to state topics for the WebSocket
// relay and serves in the background until Close.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding api listener: %w", err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	if err := s.subscribeStateUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to state updates for WebSocket", "error", err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.addr = listener.Addr().String()

	s.logger.Info("API server listening", "address", s.addr, "auth", s.cfg.JWTSecret != "")

	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close stops the WebSocket hub and shuts the server down, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is serving.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
