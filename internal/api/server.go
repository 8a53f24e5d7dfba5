package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/audit"
	"github.com/nerrad567/gray-logic-irbridge/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-irbridge/internal/history"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

const (
	// shutdownGrace bounds how long Close waits for in-flight requests.
	shutdownGrace = 10 * time.Second

	defaultMetricsPath = "/metrics"
)

var (
	errNoLogger      = errors.New("api: logger is required")
	errNoAccessories = errors.New("api: accessory registry is required")
	errNotStarted    = errors.New("api: server not started")
)

// Registry looks up accessories. *appliance.Manager satisfies it.
type Registry interface {
	Get(name string) (appliance.Accessory, error)
	List() []appliance.Accessory
}

// HistoryReader answers history queries. *history.Store satisfies it.
type HistoryReader interface {
	Readings(ctx context.Context, accessory string, kind sensor.Kind, limit int) ([]history.Reading, error)
	Changes(ctx context.Context, accessory string, limit int) ([]history.Change, error)
}

// AuditLog records and lists change requests. *audit.Log satisfies it.
type AuditLog interface {
	Record(ctx context.Context, accessory, characteristic string, value any, source, subject string, result error) (*audit.Entry, error)
	List(ctx context.Context, filter audit.Filter) (*audit.Page, error)
}

// DeviceLister reports gateway devices. *broadlink.Gateway satisfies it.
type DeviceLister interface {
	Status() []broadlink.DeviceStatus
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	// Accessories is required.
	Accessories Registry

	// Optional collaborators. Nil disables the matching routes or checks.
	History HistoryReader
	Audit   AuditLog
	Devices DeviceLister
	Checks  map[string]HealthChecker

	// Metrics is served on MetricsPath outside the authenticated group.
	Metrics     http.Handler
	MetricsPath string

	// Hub is shared with the refresh notifiers. If nil the server creates
	// its own, which then receives no changes.
	Hub *Hub

	Version string
}

// Server exposes the accessories over REST and a WebSocket change feed.
//
// Thread Safety:
//   - Start and Close must not race each other. Handlers run concurrently.
type Server struct {
	cfg         config.APIConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	accessories Registry
	history     HistoryReader
	audit       AuditLog
	devices     DeviceLister
	checks      map[string]HealthChecker
	metrics     http.Handler
	metricsPath string
	version     string
	started     time.Time
	server      *http.Server
	listener    net.Listener
	hub         *Hub
	stopHub     context.CancelFunc
}

// New validates deps and builds an unstarted server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errNoLogger
	case deps.Accessories == nil:
		return nil, errNoAccessories
	}

	s := &Server{
		cfg:         deps.Config,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		accessories: deps.Accessories,
		history:     deps.History,
		audit:       deps.Audit,
		devices:     deps.Devices,
		checks:      deps.Checks,
		metrics:     deps.Metrics,
		metricsPath: deps.MetricsPath,
		version:     deps.Version,
		started:     time.Now(),
		hub:         deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if s.metricsPath == "" {
		s.metricsPath = defaultMetricsPath
	}
	return s, nil
}

// Hub returns the WebSocket hub. Register it as a refresh notifier so
// clients see characteristic changes.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns a fresh router with every route mounted.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background until Close. A
// port already in use is reported here rather than from the goroutine.
//
// Parameters:
//   - ctx: Lifetime of the WebSocket hub
//
// Returns:
//   - error: Listener bind failure
func (s *Server) Start(ctx context.Context) error {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       seconds(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: seconds(s.cfg.Timeouts.Read),
		WriteTimeout:      seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       seconds(s.cfg.Timeouts.Idle),
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	hubCtx, stop := context.WithCancel(ctx)
	go s.hub.Run(hubCtx)
	s.server, s.listener, s.stopHub = srv, ln, stop

	go s.serve(srv, ln)
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", ln.Addr().String(), "tls", tls.Enabled)

	var err error
	if tls.Enabled {
		err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
	} else {
		err = srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server stopped", "error", err)
	}
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and drains in-flight requests for
// up to shutdownGrace. Closing an unstarted server is a no-op.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// HealthCheck reports whether Start has run.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.server == nil {
		return errNotStarted
	}
	return nil
}
