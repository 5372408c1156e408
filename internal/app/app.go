package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/ciricc/e3bench/internal/config"
	"github.com/ciricc/e3bench/internal/health"
	"github.com/ciricc/e3bench/internal/monitor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

var ErrBusy = errors.New("another measurement session is running")

type Application struct {
	Config        config.Config
	Logger        *slog.Logger
	HealthChecker *health.HealthChecker
	monitor       monitor.SessionMonitor
	grpcServer    *grpc.Server
	listener      net.Listener
}

type Option func(o *options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends log records to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New builds the logger and the session monitor, and starts the gRPC
// health endpoint when cfg.Health.Address is set.
func New(cfg config.Config, opts ...Option) (*Application, error) {
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	log, err := NewLogger(o.logOutput, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	// One measurement at a time: anything else on the board skews it
	sessionMonitor := monitor.NewSemaphoreMonitor(1)

	healthChecker := health.NewHealthChecker(sessionMonitor)
	healthChecker.SetServingStatus(
		health.MeasurementService,
		grpc_health_v1.HealthCheckResponse_SERVING,
	)

	a := &Application{
		Config:        cfg,
		Logger:        log,
		HealthChecker: healthChecker,
		monitor:       sessionMonitor,
	}

	if cfg.Health.Address != "" {
		if err := a.serveHealth(cfg.Health.Address); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Application) serveHealth(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listen health: %w", err)
	}
	a.listener = lis
	a.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.HealthChecker)

	a.Logger.Info("health endpoint listening", "address", lis.Addr().String())
	go func() {
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.Logger.Error("health endpoint stopped", "error", err)
		}
	}()
	return nil
}

// HealthAddress returns the address the health endpoint listens on, or
// an empty string when it is disabled.
func (a *Application) HealthAddress() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Session claims the measurement slot of this process. It does not
// coordinate with other e3bench processes. The returned function ends
// the session; it is safe to call more than once.
func (a *Application) Session(ctx context.Context, name string) (func(), error) {
	if !a.monitor.TryAcquire(name) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, a.monitor.Metrics().Session)
	}
	a.Logger.DebugContext(ctx, "measurement session started", "session", name)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		a.monitor.Release()
		a.Logger.DebugContext(ctx, "measurement session ended", "session", name)
	}, nil
}

func (a *Application) Close() error {
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	return nil
}

// NewLogger returns a text or JSON slog logger at the named level.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
