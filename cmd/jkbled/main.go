// Command jkbled is the JK BMS session daemon: it loads a protocol
// description per configured device, maintains a Device Session
// against each one, and exposes Prometheus metrics and a gRPC health
// check endpoint, grounded in the teacher's cmd/gobfd daemon structure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lowvolt/jkble/internal/config"
	"github.com/lowvolt/jkble/internal/healthd"
	jkblemetrics "github.com/lowvolt/jkble/internal/metrics"
	"github.com/lowvolt/jkble/internal/jkprotocol"
	"github.com/lowvolt/jkble/internal/session"
	"github.com/lowvolt/jkble/internal/transport"
	appversion "github.com/lowvolt/jkble/internal/version"
)

// shutdownTimeout bounds how long the HTTP servers are given to drain
// in-flight requests once shutdown begins.
const shutdownTimeout = 10 * time.Second

// errNoTransportBackend is returned when no GATT transport has been
// registered for this build. jkbled does not implement a host-provided
// GATT stack (BlueZ, CoreBluetooth, WinRT, ...) itself; a platform
// build links one in by setting newTransport before calling run, the
// same way the teacher's cmd/gobfd links in a concrete SenderFactory
// rather than hard-coding one into the BFD session manager.
var errNoTransportBackend = errors.New("jkbled: no GATT transport backend registered for this build")

// newTransport constructs the transport.Transport a device's Session
// talks through. The default implementation always fails: this binary
// is the protocol and session-lifecycle core described by the design
// document, not a platform GATT driver.
var newTransport = func(dc config.DeviceConfig) (transport.Transport, error) {
	return nil, fmt.Errorf("device %s: %w", dc.ID, errNoTransportBackend)
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("jkbled starting",
		slog.String("version", appversion.Version),
		slog.String("health_addr", cfg.Health.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("devices", len(cfg.Devices)),
	)

	reg := prometheus.NewRegistry()
	collector := jkblemetrics.NewCollector(reg)

	if err := runServers(cfg, collector, reg, logger); err != nil {
		logger.Error("jkbled exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("jkbled stopped")
	return 0
}

// runServers sets up the health and metrics HTTP servers and one
// session runner goroutine per configured device, under an errgroup
// with a signal-aware context for graceful shutdown.
func runServers(cfg *config.Config, collector *jkblemetrics.Collector, reg *prometheus.Registry, logger *slog.Logger) error {
	healthSrv := healthd.NewServer(cfg.Health.Addr)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	startHTTPServers(gCtx, g, cfg, healthSrv, metricsSrv, logger)

	for _, dc := range cfg.Devices {
		dc := dc
		g.Go(func() error {
			runDevice(gCtx, dc, cfg.Session, collector, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, healthSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the health and metrics HTTP server goroutines.
func startHTTPServers(ctx context.Context, g *errgroup.Group, cfg *config.Config, healthSrv, metricsSrv *http.Server, logger *slog.Logger) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("health server listening", slog.String("addr", cfg.Health.Addr))
		return listenAndServe(ctx, &lc, healthSrv, cfg.Health.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// runDevice maintains a Device Session for dc until ctx is cancelled,
// reconnecting after every disconnect with the configured backoff. An
// error loading the protocol file is logged and disables this device
// only; errors constructing the transport or session are logged and
// retried after the backoff. Neither aborts the whole daemon, so one
// misconfigured device does not take down sessions for the others.
func runDevice(ctx context.Context, dc config.DeviceConfig, defaults config.SessionDefault, collector *jkblemetrics.Collector, logger *slog.Logger) {
	deviceLogger := logger.With(slog.String("device_id", dc.ID), slog.String("device_name", dc.Name))

	spec, err := jkprotocol.LoadFile(dc.ProtocolFile)
	if err != nil {
		deviceLogger.Error("failed to load protocol definition, device disabled", slog.String("error", err.Error()))
		return
	}

	backoff := defaults.ReconnectBackoff
	var previous *session.DeviceIdentity

	for {
		t, err := newTransport(dc)
		if err != nil {
			deviceLogger.Error("failed to construct transport", slog.String("error", err.Error()))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}

		sess, err := session.New(spec, t, deviceLogger, &daemonObserver{logger: deviceLogger}, session.WithMetrics(collector))
		if err != nil {
			deviceLogger.Error("failed to construct session", slog.String("error", err.Error()))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}

		if err := sess.Connect(ctx, previous); err != nil {
			deviceLogger.Warn("connect failed", slog.String("error", err.Error()))
		} else {
			previous = sess.Identity()
			waitForDisconnect(ctx, sess)
		}

		if ctx.Err() != nil {
			_ = sess.Disconnect(session.ReasonUser)
			return
		}
		if !sleepOrDone(ctx, backoff) {
			return
		}
	}
}

// waitForDisconnect blocks until the session leaves StatusConnected or
// the context is cancelled, polling at a coarse interval: Session has
// no "wait until disconnected" primitive of its own, by design (§5 —
// consumers observe transitions through Observer.OnStatusChange rather
// than blocking on them).
func waitForDisconnect(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.Status() != session.StatusConnected {
				return
			}
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, reporting which
// happened first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// gracefulShutdown disconnects is handled per-device by runDevice
// itself on context cancellation; this function only drains the HTTP
// servers, mirroring the teacher's gracefulShutdown minus the BFD
// session-drain step that jkbled has no analog for.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
