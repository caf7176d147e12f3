package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/pursuit-ops/isochroned/internal/api"
	"github.com/pursuit-ops/isochroned/internal/config"
	"github.com/pursuit-ops/isochroned/internal/influx"
	"github.com/pursuit-ops/isochroned/internal/logging"
	intOtel "github.com/pursuit-ops/isochroned/internal/otel"
	"github.com/pursuit-ops/isochroned/internal/scheduler"
)

// build info, set via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

var (
	// SlogManager handles all slog-based logging
	SlogManager = logging.NewSlogManager()

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger = slog.Default()

	// ZLogger feeds the scheduler, database and influx managers
	ZLogger = zerolog.Nop()

	SessionStartTime = time.Now()
)

func main() {
	configDir := pflag.StringP("config", "c", ".", "directory containing "+config.FileName)
	pflag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "isochroned:", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	if err := config.Load(configDir); err != nil {
		return err
	}

	closers, err := setupLogging()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()
	if err != nil {
		return err
	}
	Logger.Info("Starting isochroned", "version", Version, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(config.GetStorageConfig())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer store.Close()

	notifier, hub, err := newNotifier(config.GetNotifyConfig())
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer notifier.Close()

	recorder := newRecorder(ctx)
	if recorder != nil {
		defer recorder.Close()
	}

	deps := newStrategies()
	deps.Store = store
	deps.Notifier = notifier
	deps.Logger = logging.NewSchedulerLogger(ZLogger.With().Str("component", "scheduler").Logger())
	if recorder != nil {
		deps.Recorder = recorder
	}

	sc := config.GetSchedulerConfig()
	sched, err := scheduler.New(scheduler.Config{
		Interval:            sc.Interval,
		AbsoluteMaxDuration: sc.AbsoluteMaxDuration,
	}, deps)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	n, err := sched.RepairStale(ctx)
	if err != nil {
		Logger.Error("Failed to stop tracks left over from a previous run", "error", err)
	} else if n > 0 {
		Logger.Info("Stopped tracks left over from a previous run", "count", n)
	}

	apiDeps := api.Dependencies{Store: store, Computer: sched, Logger: Logger}
	if hub != nil {
		apiDeps.Feed = hub
	}
	srv := &http.Server{
		Addr:              viper.GetString("http.addr"),
		Handler:           api.New(apiDeps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		Logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	err = g.Wait()
	Logger.Info("Shutting down")
	if flushErr := SlogManager.Flush(context.Background()); flushErr != nil {
		Logger.Warn("Failed to flush logs", "error", flushErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setupLogging opens the session log file and configures slog, OTel and
// zerolog. The returned closers are released in reverse order on exit.
func setupLogging() ([]io.Closer, error) {
	var closers []io.Closer
	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return closers, fmt.Errorf("create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, logging.ServiceName, SessionStartTime)
	logFile, err := os.OpenFile(filepath.Clean(logPath), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return closers, fmt.Errorf("open log file: %w", err)
	}
	closers = append(closers, logFile)

	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		provider, err := intOtel.New(intOtel.FromConfig(otelCfg, logFile))
		if err != nil {
			slog.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelLogProvider = provider.LoggerProvider()
			closers = append(closers, shutdownCloser{provider})
		}
	}

	SlogManager.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{slog.String("version", Version)}
	})
	SlogManager.Setup(logFile, level, otelLogProvider)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", logPath)

	zl, graylog, err := logging.NewZerolog(logging.ZerologConfig{
		Level:          level,
		Console:        os.Stderr,
		File:           logFile,
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	})
	if err != nil {
		Logger.Error("Graylog unavailable, continuing without it", "error", err)
		zl, graylog, err = logging.NewZerolog(logging.ZerologConfig{
			Level:   level,
			Console: os.Stderr,
			File:    logFile,
		})
		if err != nil {
			return closers, err
		}
	}
	closers = append(closers, graylog)
	ZLogger = zl
	return closers, nil
}

type shutdownCloser struct {
	p *intOtel.Provider
}

func (s shutdownCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.p.Shutdown(ctx)
}

// newRecorder connects the InfluxDB computation recorder. It returns nil
// when influx is disabled or cannot be set up.
func newRecorder(ctx context.Context) *influx.Manager {
	m := influx.NewManager(ZLogger.With().Str("component", "influx").Logger(), config.GetInfluxConfig())
	if err := m.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Error("Failed to set up InfluxDB recorder", "error", err)
		}
		return nil
	}
	return m
}
